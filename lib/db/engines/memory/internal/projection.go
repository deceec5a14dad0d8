package internal

import (
	"slices"
	"strings"

	"github.com/ValentinKolb/dDB/lib/db"
	"github.com/ValentinKolb/dDB/lib/document"
	"go.mongodb.org/mongo-driver/bson"
)

// --------------------------------------------------------------------------
// Projection
// --------------------------------------------------------------------------

// Project applies a field projection to doc. Either all listed fields are
// included (and everything else dropped) or all listed fields are excluded.
// The primary key is kept unless explicitly excluded.
func Project(doc bson.D, projection bson.D, idField string) (bson.D, error) {
	if len(projection) == 0 {
		return doc, nil
	}

	includeID := true
	var include, exclude []string
	for _, p := range projection {
		if p.Key == idField {
			includeID = Truthy(p.Value)
			continue
		}
		if Truthy(p.Value) {
			include = append(include, p.Key)
		} else {
			exclude = append(exclude, p.Key)
		}
	}

	if len(include) > 0 && len(exclude) > 0 {
		return nil, db.ErrInvalidArgument("projection cannot have a mix of inclusion and exclusion")
	}

	if len(include) == 0 {
		out := doc
		for _, path := range exclude {
			out = document.RemovePath(out, path)
		}
		if !includeID {
			out = document.Remove(out, idField)
		}
		return out, nil
	}

	out := bson.D{}
	if id, ok := document.Get(doc, idField); ok && includeID {
		out = append(out, bson.E{Key: idField, Value: id})
	}

	// top level fields keep the order of the document, nested paths are
	// appended in projection order
	var nested []string
	for _, path := range include {
		if strings.Contains(path, ".") {
			nested = append(nested, path)
		}
	}
	for _, e := range doc {
		if e.Key != idField && slices.Contains(include, e.Key) {
			out = append(out, e)
		}
	}
	for _, path := range nested {
		if v, ok := document.Lookup(doc, path); ok {
			var err error
			if out, err = document.SetPath(out, path, v); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Sorting
// --------------------------------------------------------------------------

// Sort orders docs in place by the given sort specification ({field: 1|-1}).
// The sort is stable, so documents with equal keys keep their natural order.
func Sort(docs []bson.D, orderBy bson.D) {
	if len(orderBy) == 0 {
		return
	}
	slices.SortStableFunc(docs, CompareBy(orderBy))
}

// CompareBy returns a comparison function ordering documents by orderBy.
func CompareBy(orderBy bson.D) func(a, b bson.D) int {
	return func(a, b bson.D) int {
		for _, o := range orderBy {
			va, _ := document.Lookup(a, o.Key)
			vb, _ := document.Lookup(b, o.Key)
			c := document.Compare(va, vb)
			if dir, ok := document.ToFloat(o.Value); ok && dir < 0 {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	}
}
