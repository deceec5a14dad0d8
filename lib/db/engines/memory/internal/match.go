package internal

import (
	"strings"

	"github.com/ValentinKolb/dDB/lib/db"
	"github.com/ValentinKolb/dDB/lib/document"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// --------------------------------------------------------------------------
// Query Wrapper
// --------------------------------------------------------------------------

// UnwrapQuery splits a legacy query document into the selector and the sort
// specification. Both {$query, $orderby} and {query, orderby} are accepted,
// any other document is returned as the plain selector.
func UnwrapQuery(filter bson.D) (selector, orderBy bson.D) {
	for _, pair := range [][2]string{{"$query", "$orderby"}, {"query", "orderby"}} {
		raw, ok := document.Get(filter, pair[0])
		if !ok {
			continue
		}
		selector, _ = document.AsDocument(raw)
		if o, ok := document.Get(filter, pair[1]); ok {
			orderBy, _ = document.AsDocument(o)
		}
		return selector, orderBy
	}
	return filter, nil
}

// --------------------------------------------------------------------------
// Matching
// --------------------------------------------------------------------------

// Matches reports whether doc satisfies the query selector.
func Matches(doc bson.D, selector bson.D) (bool, error) {
	for _, e := range selector {
		var ok bool
		var err error

		switch e.Key {
		case "$and", "$or", "$nor":
			ok, err = matchLogical(doc, e.Key, e.Value)
		case "$comment":
			ok = true
		default:
			if strings.HasPrefix(e.Key, "$") {
				return false, db.ErrInvalidArgument("unknown top level operator: %s", e.Key)
			}
			ok, err = matchField(doc, e.Key, e.Value)
		}

		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchLogical(doc bson.D, op string, arg any) (bool, error) {
	clauses, ok := document.AsArray(arg)
	if !ok || len(clauses) == 0 {
		return false, db.ErrInvalidArgument("%s must be a nonempty array", op)
	}

	for _, clause := range clauses {
		sub, ok := document.AsDocument(clause)
		if !ok {
			return false, db.ErrInvalidArgument("%s entries need to be full objects", op)
		}
		matched, err := Matches(doc, sub)
		if err != nil {
			return false, err
		}
		switch {
		case op == "$and" && !matched:
			return false, nil
		case op == "$or" && matched:
			return true, nil
		case op == "$nor" && matched:
			return false, nil
		}
	}
	return op != "$or", nil
}

func matchField(doc bson.D, path string, cond any) (bool, error) {
	values, found := document.LookupAll(doc, path)

	if ops, ok := operatorDocument(cond); ok {
		return matchOperators(values, found, ops)
	}
	if document.TypeOf(cond) == bsontype.Regex {
		return matchRegex(values, cond)
	}
	return matchEq(values, found, cond), nil
}

// operatorDocument returns cond as a document if its first key is an operator.
func operatorDocument(cond any) (bson.D, bool) {
	d, ok := document.AsDocument(cond)
	if !ok || len(d) == 0 || !strings.HasPrefix(d[0].Key, "$") {
		return nil, false
	}
	return d, true
}

// candidates expands array values into their elements (keeping the array
// itself) so a predicate matches an array if it matches any element.
func candidates(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
		if a, ok := document.AsArray(v); ok {
			out = append(out, a...)
		}
	}
	return out
}

func matchEq(values []any, found bool, arg any) bool {
	if document.Normalize(arg) == nil && !found {
		return true
	}
	return lo.ContainsBy(candidates(values), func(c any) bool {
		return document.Equal(c, arg)
	})
}

func matchRegex(values []any, arg any) (bool, error) {
	re, err := document.ToRegex(arg)
	if err != nil {
		return false, err
	}
	for _, c := range candidates(values) {
		switch v := c.(type) {
		case string:
			ok, err := re.Match(v)
			if err != nil || ok {
				return ok, err
			}
		default:
			if document.TypeOf(c) == bsontype.Regex && document.Equal(c, re) {
				return true, nil
			}
		}
	}
	return false, nil
}

func matchCompare(values []any, arg any, accept func(c int) bool) bool {
	return lo.ContainsBy(candidates(values), func(c any) bool {
		return document.SameClass(c, arg) && accept(document.Compare(c, arg))
	})
}

func matchIn(values []any, found bool, arg any) (bool, error) {
	list, ok := document.AsArray(arg)
	if !ok {
		return false, db.ErrInvalidArgument("$in needs an array")
	}
	for _, elem := range list {
		if document.TypeOf(elem) == bsontype.Regex {
			matched, err := matchRegex(values, elem)
			if err != nil || matched {
				return matched, err
			}
			continue
		}
		if matchEq(values, found, elem) {
			return true, nil
		}
	}
	return false, nil
}

// matchOperators evaluates an operator document such as {$gt: 1, $lt: 5}
// against the values found at a path. All operators must hold.
func matchOperators(values []any, found bool, ops bson.D) (bool, error) {
	for _, op := range ops {
		ok, err := matchOperator(values, found, op.Key, op.Value, ops)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchOperator(values []any, found bool, op string, arg any, ops bson.D) (bool, error) {
	switch op {
	case "$eq":
		return matchEq(values, found, arg), nil
	case "$ne":
		return !matchEq(values, found, arg), nil
	case "$gt":
		return matchCompare(values, arg, func(c int) bool { return c > 0 }), nil
	case "$gte":
		return matchCompare(values, arg, func(c int) bool { return c >= 0 }), nil
	case "$lt":
		return matchCompare(values, arg, func(c int) bool { return c < 0 }), nil
	case "$lte":
		return matchCompare(values, arg, func(c int) bool { return c <= 0 }), nil
	case "$in":
		return matchIn(values, found, arg)
	case "$nin":
		ok, err := matchIn(values, found, arg)
		return !ok, err
	case "$exists":
		return Truthy(arg) == found, nil
	case "$type":
		return matchType(values, arg)
	case "$regex":
		re, err := document.FromExtendedForm(ops)
		if err != nil {
			return false, err
		}
		return matchRegex(values, re)
	case "$options":
		if !document.Has(ops, "$regex") {
			return false, db.ErrInvalidArgument("$options needs a $regex")
		}
		return true, nil
	case "$not":
		if sub, ok := operatorDocument(arg); ok {
			matched, err := matchOperators(values, found, sub)
			return !matched, err
		}
		if document.TypeOf(arg) == bsontype.Regex {
			matched, err := matchRegex(values, arg)
			return !matched, err
		}
		return false, db.ErrInvalidArgument("$not needs a regex or a document")
	case "$size":
		size, ok := document.ToFloat(arg)
		if !ok {
			return false, db.ErrInvalidArgument("$size needs a number")
		}
		return lo.ContainsBy(values, func(v any) bool {
			a, isArray := document.AsArray(v)
			return isArray && float64(len(a)) == size
		}), nil
	case "$all":
		return matchAll(values, found, arg)
	case "$elemMatch":
		return matchElem(values, arg)
	case "$mod":
		return matchMod(values, arg)
	case "$comment":
		return true, nil
	default:
		return false, db.ErrInvalidArgument("unknown operator: %s", op)
	}
}

func matchAll(values []any, found bool, arg any) (bool, error) {
	list, ok := document.AsArray(arg)
	if !ok {
		return false, db.ErrInvalidArgument("$all needs an array")
	}
	if len(list) == 0 {
		return false, nil
	}
	for _, elem := range list {
		var matched bool
		var err error
		if sub, isOp := operatorDocument(elem); isOp {
			matched, err = matchOperators(values, found, sub)
		} else if document.TypeOf(elem) == bsontype.Regex {
			matched, err = matchRegex(values, elem)
		} else {
			matched = matchEq(values, found, elem)
		}
		if err != nil || !matched {
			return false, err
		}
	}
	return true, nil
}

func matchElem(values []any, arg any) (bool, error) {
	cond, ok := document.AsDocument(arg)
	if !ok {
		return false, db.ErrInvalidArgument("$elemMatch needs an Object")
	}

	_, isOp := operatorDocument(cond)
	isOp = isOp && !lo.Contains([]string{"$and", "$or", "$nor"}, cond[0].Key)

	for _, v := range values {
		elems, ok := document.AsArray(v)
		if !ok {
			continue
		}
		for _, elem := range elems {
			var matched bool
			var err error
			if isOp {
				matched, err = matchOperators([]any{elem}, true, cond)
			} else if sub, isDoc := document.AsDocument(elem); isDoc {
				matched, err = Matches(sub, cond)
			}
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
		}
	}
	return false, nil
}

func matchMod(values []any, arg any) (bool, error) {
	list, ok := document.AsArray(arg)
	if !ok || len(list) != 2 {
		return false, db.ErrInvalidArgument("malformed mod, needs to be an array of 2 elements")
	}
	divisor, ok1 := document.ToFloat(list[0])
	remainder, ok2 := document.ToFloat(list[1])
	if !ok1 || !ok2 || int64(divisor) == 0 {
		return false, db.ErrInvalidArgument("malformed mod, divisor and remainder need to be numbers, divisor not 0")
	}
	return lo.ContainsBy(candidates(values), func(c any) bool {
		f, ok := document.ToFloat(c)
		return ok && int64(f)%int64(divisor) == int64(remainder)
	}), nil
}

var typeAliases = map[string]bsontype.Type{
	"double":     bsontype.Double,
	"string":     bsontype.String,
	"object":     bsontype.EmbeddedDocument,
	"array":      bsontype.Array,
	"binData":    bsontype.Binary,
	"undefined":  bsontype.Undefined,
	"objectId":   bsontype.ObjectID,
	"bool":       bsontype.Boolean,
	"date":       bsontype.DateTime,
	"null":       bsontype.Null,
	"regex":      bsontype.Regex,
	"javascript": bsontype.JavaScript,
	"symbol":     bsontype.Symbol,
	"int":        bsontype.Int32,
	"timestamp":  bsontype.Timestamp,
	"long":       bsontype.Int64,
	"decimal":    bsontype.Decimal128,
	"minKey":     bsontype.MinKey,
	"maxKey":     bsontype.MaxKey,
}

func matchType(values []any, arg any) (bool, error) {
	accept := func(t bsontype.Type) bool { return false }

	switch a := arg.(type) {
	case string:
		if a == "number" {
			accept = func(t bsontype.Type) bool {
				return t == bsontype.Double || t == bsontype.Int32 || t == bsontype.Int64 || t == bsontype.Decimal128
			}
			break
		}
		want, ok := typeAliases[a]
		if !ok {
			return false, db.ErrInvalidArgument("unknown type name alias: %s", a)
		}
		accept = func(t bsontype.Type) bool { return t == want }
	default:
		code, ok := document.ToFloat(arg)
		if !ok {
			return false, db.ErrInvalidArgument("type must be represented as a number or a string")
		}
		want := bsontype.Type(byte(int8(code)))
		accept = func(t bsontype.Type) bool { return t == want }
	}

	return lo.ContainsBy(candidates(values), func(c any) bool {
		return accept(document.TypeOf(c))
	}), nil
}

// Truthy interprets flag-like values (booleans, numbers, null).
func Truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case nil:
		return false
	}
	if f, ok := document.ToFloat(v); ok {
		return f != 0
	}
	return true
}
