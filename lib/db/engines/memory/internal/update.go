package internal

import (
	"math"
	"strings"

	"github.com/ValentinKolb/dDB/lib/db"
	"github.com/ValentinKolb/dDB/lib/document"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// --------------------------------------------------------------------------
// Update Classification
// --------------------------------------------------------------------------

// IsOperatorUpdate reports whether update consists of update operators
// ($set, $inc, ...) rather than a replacement document. Mixing both fails.
func IsOperatorUpdate(update bson.D) (bool, error) {
	operators := len(lo.Filter(update, func(e bson.E, _ int) bool { return strings.HasPrefix(e.Key, "$") }))
	if operators > 0 && operators != len(update) {
		return false, db.ErrInvalidArgument("update document mixes operators and plain fields")
	}
	return operators > 0, nil
}

// ApplyUpdate returns the result of applying update to doc. doc is modified,
// callers pass a clone. inserting enables $setOnInsert. The primary key
// (idField) can not be changed by an update.
func ApplyUpdate(doc bson.D, update bson.D, idField string, inserting bool) (bson.D, error) {
	isOperator, err := IsOperatorUpdate(update)
	if err != nil {
		return nil, err
	}

	oldID, hadID := document.Get(doc, idField)

	var out bson.D
	if isOperator {
		out, err = applyOperators(doc, update, inserting)
		if err != nil {
			return nil, err
		}
	} else {
		out = document.Clone(update)
		if hadID {
			if newID, ok := document.Get(out, idField); ok && !document.Equal(oldID, newID) {
				return nil, db.ErrImmutableID()
			}
			out = PrependField(out, idField, oldID)
		}
	}

	if idField != "" && hadID {
		if newID, ok := document.Get(out, idField); !ok || !document.Equal(oldID, newID) {
			return nil, db.ErrImmutableID()
		}
	}
	return out, nil
}

// PrependField moves (or adds) key to the front of doc.
func PrependField(doc bson.D, key string, value any) bson.D {
	rest := document.Remove(doc, key)
	return append(bson.D{{Key: key, Value: value}}, rest...)
}

// --------------------------------------------------------------------------
// Operators
// --------------------------------------------------------------------------

func applyOperators(doc bson.D, update bson.D, inserting bool) (bson.D, error) {
	for _, op := range update {
		fields, ok := document.AsDocument(op.Value)
		if !ok {
			return nil, db.ErrInvalidArgument("modifier %s needs a document argument", op.Key)
		}

		for _, f := range fields {
			var err error
			doc, err = applyOperator(doc, op.Key, f.Key, f.Value, inserting)
			if err != nil {
				return nil, err
			}
		}
	}
	return doc, nil
}

func applyOperator(doc bson.D, op, path string, arg any, inserting bool) (bson.D, error) {
	current, exists := document.Lookup(doc, path)

	switch op {
	case "$set":
		return document.SetPath(doc, path, document.CloneValue(arg))

	case "$setOnInsert":
		if !inserting {
			return doc, nil
		}
		return document.SetPath(doc, path, document.CloneValue(arg))

	case "$unset":
		return document.RemovePath(doc, path), nil

	case "$inc", "$mul":
		if !document.IsNumber(arg) {
			return nil, db.ErrInvalidArgument("cannot %s with non-numeric argument", op[1:])
		}
		if !exists {
			if op == "$mul" {
				return document.SetPath(doc, path, arithmetic(zeroLike(arg), arg, op))
			}
			return document.SetPath(doc, path, arg)
		}
		if !document.IsNumber(current) {
			return nil, db.ErrInvalidArgument("cannot apply %s to a value of non-numeric type (%s)", op, document.TypeOf(current))
		}
		return document.SetPath(doc, path, arithmetic(current, arg, op))

	case "$min", "$max":
		if exists {
			c := document.Compare(arg, current)
			if (op == "$min" && c >= 0) || (op == "$max" && c <= 0) {
				return doc, nil
			}
		}
		return document.SetPath(doc, path, document.CloneValue(arg))

	case "$rename":
		target, ok := arg.(string)
		if !ok || target == "" {
			return nil, db.ErrInvalidArgument("$rename target must be a string")
		}
		if !exists {
			return doc, nil
		}
		return document.SetPath(document.RemovePath(doc, path), target, current)

	case "$push", "$pushAll", "$addToSet":
		list, err := arrayAt(current, exists, path)
		if err != nil {
			return nil, err
		}
		values := []any{arg}
		if op == "$pushAll" {
			each, ok := document.AsArray(arg)
			if !ok {
				return nil, db.ErrInvalidArgument("$pushAll requires an array")
			}
			values = each
		} else if d, ok := document.AsDocument(arg); ok && document.Has(d, "$each") {
			each, _ := document.Get(d, "$each")
			eachList, ok := document.AsArray(each)
			if !ok {
				return nil, db.ErrInvalidArgument("$each requires an array")
			}
			values = eachList
		}
		for _, v := range values {
			if op == "$addToSet" && lo.ContainsBy(list, func(e any) bool { return document.Equal(e, v) }) {
				continue
			}
			list = append(list, document.CloneValue(v))
		}
		return document.SetPath(doc, path, list)

	case "$pop":
		if !exists {
			return doc, nil
		}
		list, err := arrayAt(current, exists, path)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return doc, nil
		}
		if f, _ := document.ToFloat(arg); f < 0 {
			list = list[1:]
		} else {
			list = list[:len(list)-1]
		}
		return document.SetPath(doc, path, append(bson.A{}, list...))

	case "$pull", "$pullAll":
		if !exists {
			return doc, nil
		}
		list, err := arrayAt(current, exists, path)
		if err != nil {
			return nil, err
		}
		remove := func(elem any) (bool, error) { return pullMatches(elem, arg) }
		if op == "$pullAll" {
			values, ok := document.AsArray(arg)
			if !ok {
				return nil, db.ErrInvalidArgument("$pullAll requires an array argument")
			}
			remove = func(elem any) (bool, error) {
				return lo.ContainsBy(values, func(v any) bool { return document.Equal(elem, v) }), nil
			}
		}
		kept := bson.A{}
		for _, elem := range list {
			drop, err := remove(elem)
			if err != nil {
				return nil, err
			}
			if !drop {
				kept = append(kept, elem)
			}
		}
		return document.SetPath(doc, path, kept)

	default:
		return nil, db.ErrInvalidArgument("unknown modifier: %s", op)
	}
}

// pullMatches decides whether an array element is removed by $pull.
func pullMatches(elem any, cond any) (bool, error) {
	if ops, ok := operatorDocument(cond); ok {
		return matchOperators([]any{elem}, true, ops)
	}
	if d, ok := document.AsDocument(cond); ok {
		sub, isDoc := document.AsDocument(elem)
		if !isDoc {
			return false, nil
		}
		return Matches(sub, d)
	}
	if document.TypeOf(cond) == bsontype.Regex {
		return matchRegex([]any{elem}, cond)
	}
	return document.Equal(elem, cond), nil
}

func arrayAt(current any, exists bool, path string) (bson.A, error) {
	if !exists {
		return bson.A{}, nil
	}
	list, ok := document.AsArray(current)
	if !ok {
		return nil, db.ErrInvalidArgument("Cannot apply array operator to non-array field '%s'", path)
	}
	return append(bson.A{}, list...), nil
}

// --------------------------------------------------------------------------
// Arithmetic
// --------------------------------------------------------------------------

func zeroLike(v any) any {
	switch document.TypeOf(v) {
	case bsontype.Int32:
		return int32(0)
	case bsontype.Int64:
		return int64(0)
	default:
		return 0.0
	}
}

// arithmetic adds or multiplies two numbers. The result keeps integer types
// where both operands are integers, widening int32 to int64 on overflow.
func arithmetic(a, b any, op string) any {
	ta, tb := document.TypeOf(a), document.TypeOf(b)
	isInt := func(t bsontype.Type) bool { return t == bsontype.Int32 || t == bsontype.Int64 }

	if isInt(ta) && isInt(tb) {
		fa, _ := document.ToFloat(a)
		fb, _ := document.ToFloat(b)
		x, y := int64(fa), int64(fb)
		var r int64
		if op == "$mul" {
			r = x * y
		} else {
			r = x + y
		}
		if ta == bsontype.Int32 && tb == bsontype.Int32 && r >= math.MinInt32 && r <= math.MaxInt32 {
			return int32(r)
		}
		return r
	}

	fa, _ := document.ToFloat(a)
	fb, _ := document.ToFloat(b)
	if op == "$mul" {
		return fa * fb
	}
	return fa + fb
}
