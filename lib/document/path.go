package document

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// --------------------------------------------------------------------------
// Top-Level Fields
// --------------------------------------------------------------------------

// Get returns the value stored under key and whether the key exists.
func Get(doc bson.D, key string) (any, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Has reports whether key exists in doc.
func Has(doc bson.D, key string) bool {
	_, ok := Get(doc, key)
	return ok
}

// Set replaces the value of key in place or appends it. The (possibly
// reallocated) document is returned.
func Set(doc bson.D, key string, value any) bson.D {
	for i := range doc {
		if doc[i].Key == key {
			doc[i].Value = value
			return doc
		}
	}
	return append(doc, bson.E{Key: key, Value: value})
}

// Remove deletes key from doc, keeping the order of the remaining fields.
func Remove(doc bson.D, key string) bson.D {
	for i := range doc {
		if doc[i].Key == key {
			return append(doc[:i:i], doc[i+1:]...)
		}
	}
	return doc
}

// Keys returns the field names of doc in order.
func Keys(doc bson.D) []string {
	keys := make([]string, len(doc))
	for i, e := range doc {
		keys[i] = e.Key
	}
	return keys
}

// --------------------------------------------------------------------------
// Dotted Paths
// --------------------------------------------------------------------------

// Lookup resolves a dotted path ("a.b.0.c"). Numeric segments address array
// positions. Arrays are not traversed implicitly, see LookupAll for that.
func Lookup(doc bson.D, path string) (any, bool) {
	var current any = doc
	for _, part := range strings.Split(path, ".") {
		switch TypeOf(current) {
		case bsontype.EmbeddedDocument:
			d, _ := AsDocument(current)
			v, ok := Get(d, part)
			if !ok {
				return nil, false
			}
			current = v
		case bsontype.Array:
			a, _ := AsArray(current)
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(a) {
				return nil, false
			}
			current = a[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// LookupAll resolves a dotted path the way query predicates see it: when a
// segment hits an array without a numeric position, the remainder of the path
// is resolved against every element. The second result reports whether any
// value was found.
func LookupAll(doc bson.D, path string) ([]any, bool) {
	out := lookupAll(doc, strings.Split(path, "."), nil)
	return out, len(out) > 0
}

func lookupAll(current any, parts []string, out []any) []any {
	if len(parts) == 0 {
		return append(out, current)
	}
	switch TypeOf(current) {
	case bsontype.EmbeddedDocument:
		d, _ := AsDocument(current)
		v, ok := Get(d, parts[0])
		if !ok {
			return out
		}
		return lookupAll(v, parts[1:], out)
	case bsontype.Array:
		a, _ := AsArray(current)
		if idx, err := strconv.Atoi(parts[0]); err == nil {
			if idx >= 0 && idx < len(a) {
				out = lookupAll(a[idx], parts[1:], out)
			}
			return out
		}
		for _, elem := range a {
			if IsDocument(elem) {
				out = lookupAll(elem, parts, out)
			}
		}
		return out
	default:
		return out
	}
}

// SetPath assigns value at a dotted path, creating intermediate documents
// as needed. Setting a field below a scalar fails.
func SetPath(doc bson.D, path string, value any) (bson.D, error) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		return Set(doc, head, value), nil
	}
	child, _ := Get(doc, head)
	updated, err := setIn(child, rest, value)
	if err != nil {
		return doc, fmt.Errorf("cannot set '%s': %w", path, err)
	}
	return Set(doc, head, updated), nil
}

func setIn(container any, path string, value any) (any, error) {
	switch TypeOf(container) {
	case bsontype.Null:
		return SetPath(bson.D{}, path, value)
	case bsontype.EmbeddedDocument:
		d, _ := AsDocument(container)
		return SetPath(d, path, value)
	case bsontype.Array:
		a, _ := AsArray(container)
		head, rest, nested := strings.Cut(path, ".")
		idx, err := strconv.Atoi(head)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("cannot create field '%s' in array", head)
		}
		for len(a) <= idx {
			a = append(a, nil)
		}
		if !nested {
			a[idx] = value
			return a, nil
		}
		elem, err := setIn(a[idx], rest, value)
		if err != nil {
			return nil, err
		}
		a[idx] = elem
		return a, nil
	default:
		return nil, fmt.Errorf("cannot create field in element of type %s", TypeOf(container))
	}
}

// RemovePath deletes the value at a dotted path. Array positions are set to
// null instead of being removed, matching $unset semantics.
func RemovePath(doc bson.D, path string) bson.D {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		return Remove(doc, head)
	}
	child, ok := Get(doc, head)
	if !ok {
		return doc
	}
	return Set(doc, head, removeIn(child, rest))
}

func removeIn(container any, path string) any {
	switch TypeOf(container) {
	case bsontype.EmbeddedDocument:
		d, _ := AsDocument(container)
		return RemovePath(d, path)
	case bsontype.Array:
		a, _ := AsArray(container)
		head, rest, nested := strings.Cut(path, ".")
		idx, err := strconv.Atoi(head)
		if err != nil || idx < 0 || idx >= len(a) {
			return a
		}
		if nested {
			a[idx] = removeIn(a[idx], rest)
		} else {
			a[idx] = nil
		}
		return a
	default:
		return container
	}
}
