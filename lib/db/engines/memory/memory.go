package memory

import (
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/ValentinKolb/dDB/lib/db"
	"github.com/ValentinKolb/dDB/lib/db/engines/memory/internal"
	"github.com/ValentinKolb/dDB/lib/document"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

var log = logger.GetLogger("engine")

const supportedFeatures = db.FeatureInsert |
	db.FeatureUpdate |
	db.FeatureDelete |
	db.FeatureQuery |
	db.FeatureDistinct |
	db.FeatureFindAndModify |
	db.FeatureUniqueIndex |
	db.FeatureValidate

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

type engineImpl struct{}

// NewEngine returns the engine creating in-memory collections and indexes.
func NewEngine() db.IEngine {
	return engineImpl{}
}

func (engineImpl) NewCollection(database, name, idField string) db.ICollection {
	return NewCollection(database, name, idField)
}

func (engineImpl) NewUniqueIndex(field, name string, ascending bool) db.IIndex {
	return NewUniqueIndex(field, name, ascending)
}

// --------------------------------------------------------------------------
// Core Collection Structure
// --------------------------------------------------------------------------

// record is a stored document together with its stable record id
type record struct {
	id   uint64
	doc  bson.D
	size int
}

// collectionImpl keeps its documents in insertion order. A single RWMutex
// guards the records and every attached index, so index checks and the
// following mutation happen atomically.
type collectionImpl struct {
	database string
	name     string
	idField  string
	uuid     uuid.UUID

	mu       sync.RWMutex
	records  []*record
	byID     map[uint64]*record
	nextID   uint64
	indexes  []db.IIndex
	dataSize int
}

// NewCollection creates an empty in-memory collection. No index is attached,
// the primary key index is added by the owner through AddIndex.
func NewCollection(database, name, idField string) db.ICollection {
	return &collectionImpl{
		database: database,
		name:     name,
		idField:  idField,
		uuid:     uuid.New(),
		byID:     make(map[uint64]*record),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.ICollection)
// --------------------------------------------------------------------------

func (c *collectionImpl) DatabaseName() string { return c.database }

func (c *collectionImpl) Name() string { return c.name }

func (c *collectionImpl) FullName() string { return c.database + "." + c.name }

func (c *collectionImpl) IDField() string { return c.idField }

func (c *collectionImpl) Insert(docs ...bson.D) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, doc := range docs {
		if _, err := c.insertLocked(doc); err != nil {
			return i, err
		}
	}
	return len(docs), nil
}

func (c *collectionImpl) Update(selector, update bson.D, upsert, multi bool) (bson.D, error) {
	isOperator, err := internal.IsOperatorUpdate(update)
	if err != nil {
		return nil, err
	}
	if multi && !isOperator {
		return nil, db.ErrInvalidArgument("multi update only works with $ operators")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	limit := 1
	if multi {
		limit = 0
	}
	matched, err := c.matchLocked(selector, limit)
	if err != nil {
		return nil, err
	}

	n := 0
	for _, rec := range matched {
		updated, err := internal.ApplyUpdate(document.Clone(rec.doc), update, c.idField, false)
		if err != nil {
			return nil, err
		}
		if err := c.replaceLocked(rec, updated); err != nil {
			return nil, err
		}
		n++
	}

	if n == 0 && upsert {
		inserted, err := c.upsertLocked(selector, update, isOperator)
		if err != nil {
			return nil, err
		}
		id, _ := document.Get(inserted, c.idField)
		return bson.D{
			{Key: "n", Value: int32(1)},
			{Key: "updatedExisting", Value: false},
			{Key: "upserted", Value: id},
		}, nil
	}

	return bson.D{
		{Key: "n", Value: int32(n)},
		{Key: "updatedExisting", Value: n > 0},
	}, nil
}

func (c *collectionImpl) Delete(selector bson.D, limit int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	matched, err := c.matchLocked(selector, limit)
	if err != nil {
		return 0, err
	}
	c.removeLocked(matched)
	return len(matched), nil
}

func (c *collectionImpl) FindAndModify(cmd bson.D) (bson.D, error) {
	query := documentField(cmd, "query")
	orderBy := documentField(cmd, "sort")
	update := documentField(cmd, "update")
	fields := documentField(cmd, "fields")
	remove := flag(cmd, "remove")
	returnNew := flag(cmd, "new")
	upsert := flag(cmd, "upsert")

	if !remove && update == nil {
		return nil, db.ErrInvalidArgument("need remove or update")
	}
	if remove && (upsert || returnNew) {
		return nil, db.ErrInvalidArgument("remove cannot be combined with upsert or new")
	}

	isOperator := false
	if !remove {
		var err error
		if isOperator, err = internal.IsOperatorUpdate(update); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	limit := 1
	if len(orderBy) > 0 {
		limit = 0
	}
	matched, err := c.matchLocked(query, limit)
	if err != nil {
		return nil, err
	}
	if len(orderBy) > 0 {
		compare := internal.CompareBy(orderBy)
		slices.SortStableFunc(matched, func(a, b *record) int { return compare(a.doc, b.doc) })
	}

	var lastErrorObject bson.D
	var value bson.D

	switch {
	case len(matched) > 0 && remove:
		rec := matched[0]
		value = document.Clone(rec.doc)
		c.removeLocked(matched[:1])
		lastErrorObject = bson.D{{Key: "n", Value: int32(1)}}

	case len(matched) > 0:
		rec := matched[0]
		old := document.Clone(rec.doc)
		updated, err := internal.ApplyUpdate(document.Clone(rec.doc), update, c.idField, false)
		if err != nil {
			return nil, err
		}
		if err := c.replaceLocked(rec, updated); err != nil {
			return nil, err
		}
		value = old
		if returnNew {
			value = document.Clone(updated)
		}
		lastErrorObject = bson.D{{Key: "updatedExisting", Value: true}, {Key: "n", Value: int32(1)}}

	case remove:
		lastErrorObject = bson.D{{Key: "n", Value: int32(0)}}

	case upsert:
		inserted, err := c.upsertLocked(query, update, isOperator)
		if err != nil {
			return nil, err
		}
		id, _ := document.Get(inserted, c.idField)
		if returnNew {
			value = document.Clone(inserted)
		}
		lastErrorObject = bson.D{
			{Key: "updatedExisting", Value: false},
			{Key: "n", Value: int32(1)},
			{Key: "upserted", Value: id},
		}

	default:
		lastErrorObject = bson.D{{Key: "updatedExisting", Value: false}, {Key: "n", Value: int32(0)}}
	}

	var result any
	if value != nil {
		projected, err := internal.Project(value, fields, c.idField)
		if err != nil {
			return nil, err
		}
		result = projected
	}

	return bson.D{
		{Key: "lastErrorObject", Value: lastErrorObject},
		{Key: "value", Value: result},
		{Key: "ok", Value: 1.0},
	}, nil
}

func (c *collectionImpl) AddIndex(index db.IIndex) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.indexes {
		if existing.Name() == index.Name() {
			return nil
		}
	}

	for i, rec := range c.records {
		if err := index.Add(c.FullName(), rec.doc, rec.id); err != nil {
			for _, added := range c.records[:i] {
				index.Remove(added.doc, added.id)
			}
			log.Warningf("index %s on %s not built: %v", index.Name(), c.FullName(), err)
			return err
		}
	}
	c.indexes = append(c.indexes, index)
	log.Debugf("index %s on %s built over %d records", index.Name(), c.FullName(), len(c.records))
	return nil
}

func (c *collectionImpl) Query(filter bson.D, skip, limit int, projection bson.D) (iter.Seq[bson.D], error) {
	selector, orderBy := internal.UnwrapQuery(filter)
	if limit < 0 {
		limit = -limit
	}
	if skip < 0 {
		skip = 0
	}

	// without a sort order the scan can stop once enough documents are found
	scanLimit := 0
	if len(orderBy) == 0 && limit > 0 {
		scanLimit = skip + limit
	}

	c.mu.RLock()
	matched, err := c.matchLocked(selector, scanLimit)
	docs := make([]bson.D, len(matched))
	for i, rec := range matched {
		docs[i] = document.Clone(rec.doc)
	}
	c.mu.RUnlock()

	if err != nil {
		return nil, err
	}

	internal.Sort(docs, orderBy)

	docs = docs[min(skip, len(docs)):]
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}

	for i := range docs {
		if docs[i], err = internal.Project(docs[i], projection, c.idField); err != nil {
			return nil, err
		}
	}
	return slices.Values(docs), nil
}

func (c *collectionImpl) Count(filter bson.D) (int, error) {
	selector, _ := internal.UnwrapQuery(filter)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(selector) == 0 {
		return len(c.records), nil
	}
	matched, err := c.matchLocked(selector, 0)
	return len(matched), err
}

func (c *collectionImpl) Distinct(cmd bson.D) (bson.D, error) {
	raw, _ := document.Get(cmd, "key")
	key, ok := raw.(string)
	if !ok || key == "" {
		return nil, db.ErrInvalidArgument("distinct key must be a string")
	}
	query := documentField(cmd, "query")

	c.mu.RLock()
	defer c.mu.RUnlock()

	matched, err := c.matchLocked(query, 0)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	values := bson.A{}
	add := func(v any) {
		k := document.Key(v)
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			values = append(values, document.CloneValue(v))
		}
	}

	for _, rec := range matched {
		found, _ := document.LookupAll(rec.doc, key)
		for _, v := range found {
			if list, isArray := document.AsArray(v); isArray {
				for _, elem := range list {
					add(elem)
				}
				continue
			}
			add(v)
		}
	}

	return bson.D{{Key: "values", Value: values}, {Key: "ok", Value: 1.0}}, nil
}

func (c *collectionImpl) GetStats() bson.D {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := len(c.records)
	avgObjSize := 0.0
	if count > 0 {
		avgObjSize = float64(c.dataSize) / float64(count)
	}

	indexSize := bson.D{}
	totalIndexSize := 0
	for _, idx := range c.indexes {
		size := idx.SizeBytes()
		totalIndexSize += size
		indexSize = append(indexSize, bson.E{Key: idx.Name(), Value: int64(size)})
	}

	return bson.D{
		{Key: "ns", Value: c.FullName()},
		{Key: "uuid", Value: c.uuid.String()},
		{Key: "count", Value: int32(count)},
		{Key: "size", Value: int64(c.dataSize)},
		{Key: "avgObjSize", Value: avgObjSize},
		{Key: "storageSize", Value: int32(0)},
		{Key: "numExtents", Value: int32(0)},
		{Key: "nindexes", Value: int32(len(c.indexes))},
		{Key: "lastExtentSize", Value: int32(0)},
		{Key: "paddingFactor", Value: 1.0},
		{Key: "flags", Value: int32(0)},
		{Key: "totalIndexSize", Value: int64(totalIndexSize)},
		{Key: "indexSize", Value: indexSize},
		{Key: "ok", Value: 1.0},
	}
}

func (c *collectionImpl) Validate() bson.D {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keysPerIndex := bson.D{}
	problems := bson.A{}
	for _, idx := range c.indexes {
		keysPerIndex = append(keysPerIndex, bson.E{Key: idx.Name(), Value: int32(idx.Count())})
		if idx.Count() != len(c.records) {
			problems = append(problems, "index "+idx.Name()+" has a wrong number of entries")
		}
		for _, rec := range c.records {
			v, _ := document.Lookup(rec.doc, idx.Field())
			if id, ok := idx.Lookup(v); !ok || id != rec.id {
				problems = append(problems, "index "+idx.Name()+" does not reference every document")
				break
			}
		}
	}

	return bson.D{
		{Key: "ns", Value: c.FullName()},
		{Key: "uuid", Value: c.uuid.String()},
		{Key: "nrecords", Value: int32(len(c.records))},
		{Key: "nIndexes", Value: int32(len(c.indexes))},
		{Key: "keysPerIndex", Value: keysPerIndex},
		{Key: "valid", Value: len(problems) == 0},
		{Key: "errors", Value: problems},
		{Key: "ok", Value: 1.0},
	}
}

func (c *collectionImpl) GetNumIndexes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.indexes)
}

func (c *collectionImpl) SupportsFeature(feature db.Feature) bool {
	return feature&supportedFeatures == feature
}

func (c *collectionImpl) GetInfo() db.CollectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	indexSize := 0
	for _, idx := range c.indexes {
		indexSize += idx.SizeBytes()
	}

	var features []db.Feature
	for f := db.FeatureInsert; f <= db.FeatureValidate; f <<= 1 {
		if c.SupportsFeature(f) {
			features = append(features, f)
		}
	}

	return db.CollectionInfo{
		Count:             len(c.records),
		DataSizeBytes:     c.dataSize,
		IndexSizeBytes:    indexSize,
		NumIndexes:        len(c.indexes),
		Impl:              db.ImplMemory,
		SupportedFeatures: features,
	}
}

// --------------------------------------------------------------------------
// Helper Methods (callers hold c.mu)
// --------------------------------------------------------------------------

// insertLocked stores a copy of doc, assigning an ObjectId primary key if
// none is present. Every index is checked before anything is modified.
func (c *collectionImpl) insertLocked(doc bson.D) (*record, error) {
	d := document.Clone(doc)

	if c.idField != "" {
		id, ok := document.Get(d, c.idField)
		if !ok {
			id = primitive.NewObjectID()
		}
		switch document.TypeOf(id) {
		case bsontype.Array:
			return nil, db.ErrInvalidArgument("can't use an array for %s", c.idField)
		case bsontype.Regex:
			return nil, db.ErrInvalidArgument("can't use a regex for %s", c.idField)
		}
		d = internal.PrependField(d, c.idField, id)
	}

	for _, idx := range c.indexes {
		if err := idx.Check(c.FullName(), d, 0); err != nil {
			return nil, err
		}
	}

	c.nextID++
	rec := &record{id: c.nextID, doc: d, size: document.Size(d)}
	for i, idx := range c.indexes {
		if err := idx.Add(c.FullName(), d, rec.id); err != nil {
			for _, added := range c.indexes[:i] {
				added.Remove(d, rec.id)
			}
			return nil, err
		}
	}

	c.records = append(c.records, rec)
	c.byID[rec.id] = rec
	c.dataSize += rec.size
	return rec, nil
}

// replaceLocked swaps the document of rec, keeping its record id.
func (c *collectionImpl) replaceLocked(rec *record, updated bson.D) error {
	for _, idx := range c.indexes {
		if err := idx.Check(c.FullName(), updated, rec.id); err != nil {
			return err
		}
	}
	for _, idx := range c.indexes {
		idx.Remove(rec.doc, rec.id)
		_ = idx.Add(c.FullName(), updated, rec.id)
	}

	size := document.Size(updated)
	c.dataSize += size - rec.size
	rec.doc, rec.size = updated, size
	return nil
}

func (c *collectionImpl) removeLocked(recs []*record) {
	if len(recs) == 0 {
		return
	}
	for _, rec := range recs {
		for _, idx := range c.indexes {
			idx.Remove(rec.doc, rec.id)
		}
		delete(c.byID, rec.id)
		c.dataSize -= rec.size
	}
	c.records = slices.DeleteFunc(c.records, func(r *record) bool {
		_, ok := c.byID[r.id]
		return !ok
	})
}

// upsertLocked builds and inserts the document for an upsert that matched
// nothing: a replacement is used as is, operators are applied to the
// equality fields of the selector.
func (c *collectionImpl) upsertLocked(selector, update bson.D, isOperator bool) (bson.D, error) {
	var doc bson.D
	if isOperator {
		seed, err := seedFromSelector(bson.D{}, selector)
		if err != nil {
			return nil, err
		}
		if doc, err = internal.ApplyUpdate(seed, update, c.idField, true); err != nil {
			return nil, err
		}
	} else {
		doc = document.Clone(update)
		if id, ok := document.Get(selector, c.idField); ok && !document.Has(doc, c.idField) && !isOperatorDocument(id) {
			doc = internal.PrependField(doc, c.idField, id)
		}
	}

	rec, err := c.insertLocked(doc)
	if err != nil {
		return nil, err
	}
	return rec.doc, nil
}

// matchLocked returns the records matching selector in natural order,
// stopping after limit records (0 means no limit). Selectors of the form
// {_id: <value>} are answered through the primary key index.
func (c *collectionImpl) matchLocked(selector bson.D, limit int) ([]*record, error) {
	if rec, ok := c.lookupByID(selector); ok {
		if rec == nil {
			return nil, nil
		}
		return []*record{rec}, nil
	}

	var matched []*record
	for _, rec := range c.records {
		ok, err := internal.Matches(rec.doc, selector)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, rec)
			if limit > 0 && len(matched) >= limit {
				break
			}
		}
	}
	return matched, nil
}

// lookupByID resolves an exact primary key selector. The second result is
// false if the selector can not be answered by the index.
func (c *collectionImpl) lookupByID(selector bson.D) (*record, bool) {
	if c.idField == "" || len(selector) != 1 || selector[0].Key != c.idField {
		return nil, false
	}
	value := selector[0].Value
	if isOperatorDocument(value) || document.TypeOf(value) == bsontype.Regex || document.IsArray(value) {
		return nil, false
	}

	for _, idx := range c.indexes {
		if idx.Field() != c.idField {
			continue
		}
		id, ok := idx.Lookup(value)
		if !ok {
			return nil, true
		}
		return c.byID[id], true
	}
	return nil, false
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// seedFromSelector collects the equality conditions of a selector into the
// initial document of an upsert.
func seedFromSelector(seed bson.D, selector bson.D) (bson.D, error) {
	var err error
	for _, e := range selector {
		switch {
		case e.Key == "$and":
			clauses, _ := document.AsArray(e.Value)
			for _, clause := range clauses {
				if sub, ok := document.AsDocument(clause); ok {
					if seed, err = seedFromSelector(seed, sub); err != nil {
						return nil, err
					}
				}
			}
		case strings.HasPrefix(e.Key, "$"):
			continue
		case isOperatorDocument(e.Value):
			ops, _ := document.AsDocument(e.Value)
			if eq, ok := document.Get(ops, "$eq"); ok {
				if seed, err = document.SetPath(seed, e.Key, document.CloneValue(eq)); err != nil {
					return nil, err
				}
			}
		case document.TypeOf(e.Value) == bsontype.Regex:
			continue
		default:
			if seed, err = document.SetPath(seed, e.Key, document.CloneValue(e.Value)); err != nil {
				return nil, err
			}
		}
	}
	return seed, nil
}

func isOperatorDocument(v any) bool {
	d, ok := document.AsDocument(v)
	return ok && len(d) > 0 && strings.HasPrefix(d[0].Key, "$")
}

func documentField(cmd bson.D, key string) bson.D {
	v, _ := document.Get(cmd, key)
	d, _ := document.AsDocument(v)
	return d
}

func flag(cmd bson.D, key string) bool {
	v, ok := document.Get(cmd, key)
	return ok && internal.Truthy(v)
}
