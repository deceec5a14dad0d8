package lstore

import (
	"iter"
	"strings"
	"sync"

	"github.com/ValentinKolb/dDB/lib/db"
	"github.com/ValentinKolb/dDB/lib/document"
	"github.com/ValentinKolb/dDB/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"go.mongodb.org/mongo-driver/bson"
)

var log = logger.GetLogger("store")

const (
	// MaxNamespaceLength is the maximum length of a collection name
	MaxNamespaceLength = 128

	systemPrefix         = "system."
	indexesCollection    = "system.indexes"
	namespacesCollection = "system.namespaces"
	primaryKey           = "_id"
)

// databaseImpl owns the collections of one database.
//
// Thread-safety: mu guards the shape of collections and the mirror entries
// written alongside. Document level operations run without holding mu, the
// collections synchronise themselves.
type databaseImpl struct {
	name   string
	engine db.IEngine
	onDrop func(name string)

	mu          sync.RWMutex
	collections map[string]db.ICollection
	namespaces  db.ICollection
	indexes     db.ICollection

	lastError  *xsync.MapOf[store.ConnID, *db.Error]
	lastUpdate *xsync.MapOf[store.ConnID, bson.D]
}

// NewDatabase creates an empty database. Both pseudo-collections are
// registered right away. onDrop is called by the dropDatabase command and is
// expected to remove the database from its backend.
func NewDatabase(name string, engine db.IEngine, onDrop func(name string)) store.IDatabase {
	d := &databaseImpl{
		name:        name,
		engine:      engine,
		onDrop:      onDrop,
		collections: make(map[string]db.ICollection),
		namespaces:  engine.NewCollection(name, namespacesCollection, ""),
		indexes:     engine.NewCollection(name, indexesCollection, ""),
		lastError:   xsync.NewMapOf[store.ConnID, *db.Error](),
		lastUpdate:  xsync.NewMapOf[store.ConnID, bson.D](),
	}

	for _, coll := range []db.ICollection{d.namespaces, d.indexes} {
		d.collections[coll.Name()] = coll
		_, _ = d.namespaces.Insert(bson.D{{Key: "name", Value: coll.FullName()}})
	}
	return d
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (d *databaseImpl) Name() string {
	return d.name
}

func (d *databaseImpl) HandleInsert(req *store.Insert) {
	d.clearLastResult(req.Conn)
	n, err := d.insert(req)
	if err == nil && req.Collection == indexesCollection {
		// registered descriptors leave no write result behind
		return
	}
	d.storeWriteResult(req.Conn, "insert", req.Collection, bson.D{{Key: "n", Value: int32(n)}}, err)
}

func (d *databaseImpl) HandleUpdate(req *store.Update) {
	d.clearLastResult(req.Conn)
	result, err := d.update(req)
	d.storeWriteResult(req.Conn, "update", req.Collection, result, err)
}

func (d *databaseImpl) HandleDelete(req *store.Delete) {
	d.clearLastResult(req.Conn)
	n, err := d.delete(req)
	d.storeWriteResult(req.Conn, "delete", req.Collection, bson.D{{Key: "n", Value: int32(n)}}, err)
}

func (d *databaseImpl) HandleQuery(req *store.Query) (iter.Seq[bson.D], error) {
	coll, err := d.resolve(req.Collection, false, false)
	if err != nil {
		return nil, err
	}
	if coll == nil {
		return func(yield func(bson.D) bool) {}, nil
	}
	return coll.Query(req.Filter, req.Skip, req.Limit, req.Projection)
}

func (d *databaseImpl) HandleClose(conn store.ConnID) {
	d.lastError.Delete(conn)
	d.lastUpdate.Delete(conn)
}

func (d *databaseImpl) IsEmpty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for name := range d.collections {
		if !strings.HasPrefix(name, systemPrefix) {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

func (d *databaseImpl) insert(req *store.Insert) (int, error) {
	if req.Collection == indexesCollection {
		for i, descriptor := range req.Documents {
			if err := d.addIndex(descriptor); err != nil {
				return i, err
			}
		}
		return len(req.Documents), nil
	}
	if strings.HasPrefix(req.Collection, systemPrefix) {
		return 0, db.ErrSystemInsert()
	}

	coll, err := d.resolve(req.Collection, true, false)
	if err != nil {
		return 0, err
	}
	return coll.Insert(req.Documents...)
}

func (d *databaseImpl) update(req *store.Update) (bson.D, error) {
	if strings.HasPrefix(req.Collection, systemPrefix) {
		return nil, db.ErrSystemUpdate()
	}

	coll, err := d.resolve(req.Collection, true, false)
	if err != nil {
		return nil, err
	}
	return coll.Update(req.Selector, req.Update, req.Upsert, req.Multi)
}

func (d *databaseImpl) delete(req *store.Delete) (int, error) {
	if strings.HasPrefix(req.Collection, systemPrefix) {
		return 0, db.ErrSystemDelete()
	}

	coll, err := d.resolve(req.Collection, false, false)
	if err != nil || coll == nil {
		return 0, err
	}

	limit := 0
	if req.Single {
		limit = 1
	}
	return coll.Delete(req.Selector, limit)
}

// clearLastResult forgets the outcome of the previous write of conn.
func (d *databaseImpl) clearLastResult(conn store.ConnID) {
	d.lastError.Delete(conn)
	d.lastUpdate.Delete(conn)
}

// storeWriteResult records either the result or the error of a write for
// the next getlasterror of conn.
func (d *databaseImpl) storeWriteResult(conn store.ConnID, op, collection string, result bson.D, err error) {
	if err == nil {
		d.lastUpdate.Store(conn, result)
		return
	}

	e := db.AsError(err)
	if e.Kind == db.KindSilentNotFound {
		log.Debugf("%s on %s.%s (conn %d): %v", op, d.name, collection, conn, e)
	} else {
		log.Errorf("%s on %s.%s (conn %d) failed: %v", op, d.name, collection, conn, e)
	}
	d.lastError.Store(conn, e)
}

// --------------------------------------------------------------------------
// Collection Management
// --------------------------------------------------------------------------

// checkName validates a collection name used for lookups.
func (d *databaseImpl) checkName(name string) error {
	if name == "" {
		return db.ErrInvalidNamespace(d.name + ".")
	}
	if len(name) > MaxNamespaceLength {
		return db.ErrNamespaceTooLong(MaxNamespaceLength)
	}
	return nil
}

// resolve looks up a collection. A missing collection is created when
// create is set, reported as NamespaceNotFound when failIfMissing is set and
// returned as nil otherwise.
func (d *databaseImpl) resolve(name string, create, failIfMissing bool) (db.ICollection, error) {
	if err := d.checkName(name); err != nil {
		return nil, err
	}

	d.mu.RLock()
	coll := d.collections[name]
	d.mu.RUnlock()

	switch {
	case coll != nil:
		return coll, nil
	case create:
		coll, _, err := d.createCollection(name)
		return coll, err
	case failIfMissing:
		return nil, db.ErrNamespaceNotFound()
	default:
		return nil, nil
	}
}

// createCollection creates the collection name unless it already exists.
// The collection is registered, mirrored and given its primary key index in
// one critical section, so no caller can observe it without the index. The
// second result reports whether a new collection was created.
func (d *databaseImpl) createCollection(name string) (db.ICollection, bool, error) {
	if err := d.checkName(name); err != nil {
		return nil, false, err
	}
	if strings.Contains(name, "$") {
		return nil, false, db.ErrReservedNamespace()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.createCollectionLocked(name)
}

// createCollectionLocked is createCollection for callers holding d.mu. The
// name must already be validated.
func (d *databaseImpl) createCollectionLocked(name string) (db.ICollection, bool, error) {
	if coll, ok := d.collections[name]; ok {
		return coll, false, nil
	}

	coll := d.engine.NewCollection(d.name, name, primaryKey)
	d.collections[name] = coll
	if _, err := d.namespaces.Insert(bson.D{{Key: "name", Value: coll.FullName()}}); err != nil {
		return nil, false, err
	}

	descriptor := bson.D{
		{Key: "name", Value: primaryKey + "_"},
		{Key: "ns", Value: coll.FullName()},
		{Key: "key", Value: bson.D{{Key: primaryKey, Value: int32(1)}}},
	}
	if err := d.registerIndexLocked(coll, descriptor); err != nil {
		return nil, false, err
	}

	log.Debugf("created collection %s", coll.FullName())
	return coll, true, nil
}

// addIndex registers an index descriptor {name, ns, key} and creates the
// target collection if needed. Lookup and registration share one critical
// section, so a concurrent drop never leaves the descriptor behind.
func (d *databaseImpl) addIndex(descriptor bson.D) error {
	ns, _ := document.Get(descriptor, "ns")
	namespace, ok := ns.(string)
	if !ok {
		return db.ErrInvalidArgument("index descriptor needs a string ns")
	}
	dot := strings.Index(namespace, ".")
	if dot < 0 {
		return db.ErrInvalidNamespace(namespace)
	}
	name := namespace[dot+1:]
	if err := d.checkName(name); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	coll, ok := d.collections[name]
	if !ok {
		if strings.Contains(name, "$") {
			return db.ErrReservedNamespace()
		}
		var err error
		if coll, _, err = d.createCollectionLocked(name); err != nil {
			return err
		}
	}
	return d.registerIndexLocked(coll, descriptor)
}

// registerIndexLocked mirrors a descriptor in system.indexes and attaches a
// unique index if the key is exactly the primary key. Other keys are only
// mirrored. Callers hold d.mu.
func (d *databaseImpl) registerIndexLocked(coll db.ICollection, descriptor bson.D) error {
	rawKey, _ := document.Get(descriptor, "key")
	key, ok := document.AsDocument(rawKey)
	if !ok || len(key) == 0 {
		return db.ErrInvalidArgument("index descriptor needs a key document")
	}

	name, _ := document.Get(descriptor, "name")
	indexName, _ := name.(string)
	ns, _ := document.Get(descriptor, "ns")
	existing, err := d.indexes.Count(bson.D{{Key: "ns", Value: ns}, {Key: "name", Value: name}})
	if err != nil {
		return err
	}
	if existing == 0 {
		if _, err := d.indexes.Insert(descriptor); err != nil {
			return err
		}
	}

	if len(key) != 1 || key[0].Key != primaryKey {
		log.Debugf("index %v on %s is recorded without enforcement", key, coll.FullName())
		return nil
	}

	direction, _ := document.ToFloat(key[0].Value)
	return coll.AddIndex(d.engine.NewUniqueIndex(primaryKey, indexName, direction == 1))
}

// dropCollection removes a user collection together with its mirror entries.
func (d *databaseImpl) dropCollection(name string) (db.ICollection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	coll, ok := d.collections[name]
	if !ok {
		return nil, db.ErrNamespaceNotFound()
	}
	if strings.HasPrefix(name, systemPrefix) {
		return nil, db.ErrSystemDrop(coll.FullName())
	}

	delete(d.collections, name)
	if _, err := d.namespaces.Delete(bson.D{{Key: "name", Value: coll.FullName()}}, 0); err != nil {
		return nil, err
	}
	if _, err := d.indexes.Delete(bson.D{{Key: "ns", Value: coll.FullName()}}, 0); err != nil {
		return nil, err
	}

	log.Debugf("dropped collection %s", coll.FullName())
	return coll, nil
}

// userCollections returns a snapshot of all collections outside system.*
func (d *databaseImpl) userCollections() []db.ICollection {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]db.ICollection, 0, len(d.collections))
	for name, coll := range d.collections {
		if !strings.HasPrefix(name, systemPrefix) {
			out = append(out, coll)
		}
	}
	return out
}
