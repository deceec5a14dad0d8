package memory

import (
	"github.com/ValentinKolb/dDB/lib/db"
	"github.com/ValentinKolb/dDB/lib/document"
	"github.com/puzpuzpuz/xsync/v3"
	"go.mongodb.org/mongo-driver/bson"
)

// bytes accounted per index entry on top of the key itself
const indexEntryOverhead = 16

// UniqueIndex maps the normalised value of a single field onto the record id
// of the document holding it. Documents without the field are indexed under
// null, so at most one such document can exist.
//
// Thread-safety: the association is held in a concurrent map. Check followed
// by Add is not atomic on its own, the owning collection serialises writes.
type UniqueIndex struct {
	field     string
	name      string
	ascending bool
	entries   *xsync.MapOf[string, uniqueEntry]
}

type uniqueEntry struct {
	id  uint64
	key any
}

// NewUniqueIndex creates an empty unique index on field. An empty name is
// derived from the field and direction.
func NewUniqueIndex(field, name string, ascending bool) *UniqueIndex {
	if name == "" {
		name = field + "_"
		if !ascending {
			name += "-1"
		}
	}
	return &UniqueIndex{
		field:     field,
		name:      name,
		ascending: ascending,
		entries:   xsync.NewMapOf[string, uniqueEntry](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.IIndex)
// --------------------------------------------------------------------------

func (idx *UniqueIndex) Name() string {
	return idx.name
}

func (idx *UniqueIndex) Field() string {
	return idx.field
}

func (idx *UniqueIndex) Ascending() bool {
	return idx.ascending
}

func (idx *UniqueIndex) Check(ns string, doc bson.D, self uint64) error {
	value := idx.valueOf(doc)
	if entry, ok := idx.entries.Load(document.Key(value)); ok && entry.id != self {
		return db.ErrDuplicateKey(ns, idx.Name(), printable(value))
	}
	return nil
}

func (idx *UniqueIndex) Add(ns string, doc bson.D, id uint64) error {
	value := idx.valueOf(doc)

	var conflict bool
	idx.entries.Compute(document.Key(value), func(old uniqueEntry, loaded bool) (uniqueEntry, bool) {
		if loaded && old.id != id {
			conflict = true
			return old, false
		}
		return uniqueEntry{id: id, key: value}, false
	})

	if conflict {
		return db.ErrDuplicateKey(ns, idx.Name(), printable(value))
	}
	return nil
}

func (idx *UniqueIndex) Remove(doc bson.D, id uint64) {
	idx.entries.Compute(document.Key(idx.valueOf(doc)), func(old uniqueEntry, loaded bool) (uniqueEntry, bool) {
		// delete only if the entry belongs to the given record
		return old, !loaded || old.id == id
	})
}

func (idx *UniqueIndex) Lookup(value any) (uint64, bool) {
	entry, ok := idx.entries.Load(document.Key(value))
	return entry.id, ok
}

func (idx *UniqueIndex) Count() int {
	return idx.entries.Size()
}

func (idx *UniqueIndex) SizeBytes() int {
	size := 0
	idx.entries.Range(func(key string, _ uniqueEntry) bool {
		size += len(key) + indexEntryOverhead
		return true
	})
	return size
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (idx *UniqueIndex) valueOf(doc bson.D) any {
	v, _ := document.Lookup(doc, idx.field)
	return v
}

func printable(v any) any {
	if s, ok := v.(string); ok {
		return `"` + s + `"`
	}
	if v == nil {
		return "null"
	}
	return v
}
