package lstore

import (
	"strings"

	"github.com/ValentinKolb/dDB/lib/db"
	"github.com/ValentinKolb/dDB/lib/document"
	"github.com/ValentinKolb/dDB/lib/store"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
)

// commandHandler runs one command. conn is the issuing connection and cmd the
// full command document whose first element names the command.
type commandHandler func(d *databaseImpl, conn store.ConnID, cmd bson.D) (bson.D, error)

// commands maps lower case command names onto their handlers
var commands = map[string]commandHandler{
	"count":         (*databaseImpl).cmdCount,
	"getlasterror":  (*databaseImpl).cmdGetLastError,
	"distinct":      (*databaseImpl).cmdDistinct,
	"drop":          (*databaseImpl).cmdDrop,
	"dropdatabase":  (*databaseImpl).cmdDropDatabase,
	"dbstats":       (*databaseImpl).cmdDBStats,
	"collstats":     (*databaseImpl).cmdCollStats,
	"validate":      (*databaseImpl).cmdValidate,
	"findandmodify": (*databaseImpl).cmdFindAndModify,
	"create":        (*databaseImpl).cmdCreate,
	"createindexes": (*databaseImpl).cmdCreateIndexes,
}

// IsDatabaseCommand reports whether name (in any case) is handled by a
// database rather than by the server itself.
func IsDatabaseCommand(name string) bool {
	_, ok := commands[strings.ToLower(name)]
	return ok
}

func (d *databaseImpl) HandleCommand(conn store.ConnID, name string, cmd bson.D) (bson.D, error) {
	handler, ok := commands[strings.ToLower(name)]
	if !ok {
		log.Errorf("unknown command %q on %s: %v", name, d.name, cmd)
		return nil, db.ErrNoSuchCommand(name)
	}

	result, err := handler(d, conn, cmd)
	if err != nil {
		if db.IsSilent(err) {
			log.Debugf("command %s on %s: %v", name, d.name, err)
		} else {
			log.Warningf("command %s on %s failed: %v", name, d.name, err)
		}
		return nil, err
	}
	return result, nil
}

// --------------------------------------------------------------------------
// Command Handlers
// --------------------------------------------------------------------------

func (d *databaseImpl) cmdCount(_ store.ConnID, cmd bson.D) (bson.D, error) {
	name, err := collectionArgument(cmd)
	if err != nil {
		return nil, err
	}
	coll, err := d.resolve(name, false, false)
	if err != nil {
		return nil, err
	}
	if coll == nil {
		return bson.D{
			{Key: "missing", Value: true},
			{Key: "n", Value: int32(0)},
			{Key: "ok", Value: 1.0},
		}, nil
	}

	query, _ := document.Get(cmd, "query")
	filter, _ := document.AsDocument(query)
	n, err := coll.Count(filter)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: "n", Value: int32(n)}, {Key: "ok", Value: 1.0}}, nil
}

// cmdGetLastError returns (and forgets) the outcome of the last write of
// conn. A stored error takes precedence over a stored result. Only w is
// accepted as second key and has no effect.
func (d *databaseImpl) cmdGetLastError(conn store.ConnID, cmd bson.D) (bson.D, error) {
	if len(cmd) > 1 && cmd[1].Key != "w" {
		return nil, db.NewInternalError("unknown subcommand: %s", cmd[1].Key)
	}

	if e, ok := d.lastError.LoadAndDelete(conn); ok {
		d.lastUpdate.Delete(conn)
		return bson.D{
			{Key: "err", Value: e.Msg},
			{Key: "code", Value: int32(e.Code)},
			{Key: "connectionId", Value: int32(conn)},
			{Key: "ok", Value: 1.0},
		}, nil
	}

	result := bson.D{{Key: "ok", Value: 1.0}}
	if last, ok := d.lastUpdate.LoadAndDelete(conn); ok {
		for _, e := range last {
			result = document.Set(result, e.Key, e.Value)
		}
	}
	return result, nil
}

func (d *databaseImpl) cmdDistinct(_ store.ConnID, cmd bson.D) (bson.D, error) {
	coll, err := d.requireCollection(cmd)
	if err != nil {
		return nil, err
	}
	return coll.Distinct(cmd)
}

func (d *databaseImpl) cmdDrop(_ store.ConnID, cmd bson.D) (bson.D, error) {
	name, err := collectionArgument(cmd)
	if err != nil {
		return nil, err
	}
	coll, err := d.dropCollection(name)
	if err != nil {
		return nil, err
	}
	return bson.D{
		{Key: "nIndexesWas", Value: int32(coll.GetNumIndexes())},
		{Key: "ns", Value: coll.FullName()},
		{Key: "ok", Value: 1.0},
	}, nil
}

func (d *databaseImpl) cmdDropDatabase(_ store.ConnID, _ bson.D) (bson.D, error) {
	if d.onDrop != nil {
		d.onDrop(d.name)
	}
	log.Infof("dropped database %s", d.name)
	return bson.D{{Key: "dropped", Value: d.name}, {Key: "ok", Value: 1.0}}, nil
}

// cmdDBStats aggregates the user collections. The pseudo-collections are
// counted as collections but do not contribute objects or sizes.
func (d *databaseImpl) cmdDBStats(_ store.ConnID, _ bson.D) (bson.D, error) {
	var objects, dataSize, indexSize int64
	for _, coll := range d.userCollections() {
		info := coll.GetInfo()
		objects += int64(info.Count)
		dataSize += int64(info.DataSizeBytes)
		indexSize += int64(info.IndexSizeBytes)
	}

	avgObjSize := 0.0
	if objects > 0 {
		avgObjSize = float64(dataSize) / float64(objects)
	}

	collections, err := d.namespaces.Count(nil)
	if err != nil {
		return nil, err
	}
	indexes, err := d.indexes.Count(nil)
	if err != nil {
		return nil, err
	}

	return bson.D{
		{Key: "db", Value: d.name},
		{Key: "collections", Value: int32(collections)},
		{Key: "objects", Value: objects},
		{Key: "avgObjSize", Value: avgObjSize},
		{Key: "dataSize", Value: dataSize},
		{Key: "storageSize", Value: int64(0)},
		{Key: "numExtents", Value: int32(0)},
		{Key: "indexes", Value: int32(indexes)},
		{Key: "indexSize", Value: indexSize},
		{Key: "fileSize", Value: int32(0)},
		{Key: "nsSizeMB", Value: int32(0)},
		{Key: "ok", Value: 1.0},
	}, nil
}

func (d *databaseImpl) cmdCollStats(_ store.ConnID, cmd bson.D) (bson.D, error) {
	coll, err := d.requireCollection(cmd)
	if err != nil {
		return nil, err
	}
	return coll.GetStats(), nil
}

func (d *databaseImpl) cmdValidate(_ store.ConnID, cmd bson.D) (bson.D, error) {
	coll, err := d.requireCollection(cmd)
	if err != nil {
		return nil, err
	}
	return coll.Validate(), nil
}

func (d *databaseImpl) cmdFindAndModify(_ store.ConnID, cmd bson.D) (bson.D, error) {
	name, err := collectionArgument(cmd)
	if err != nil {
		return nil, err
	}
	coll, err := d.resolve(name, true, false)
	if err != nil {
		return nil, err
	}
	return coll.FindAndModify(cmd)
}

func (d *databaseImpl) cmdCreate(_ store.ConnID, cmd bson.D) (bson.D, error) {
	name, err := collectionArgument(cmd)
	if err != nil {
		return nil, err
	}
	coll, created, err := d.createCollection(name)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, db.ErrNamespaceExists(coll.FullName())
	}
	return bson.D{{Key: "ok", Value: 1.0}}, nil
}

// cmdCreateIndexes registers every entry of the indexes array through the
// same path as an insert into system.indexes.
func (d *databaseImpl) cmdCreateIndexes(_ store.ConnID, cmd bson.D) (bson.D, error) {
	name, err := collectionArgument(cmd)
	if err != nil {
		return nil, err
	}
	raw, _ := document.Get(cmd, "indexes")
	specs, ok := document.AsArray(raw)
	if !ok || len(specs) == 0 {
		return nil, db.ErrInvalidArgument("indexes must be a non-empty array")
	}

	before := 0
	existing, err := d.resolve(name, false, false)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		before = existing.GetNumIndexes()
	}

	fullName := d.name + "." + name
	for _, spec := range specs {
		index, ok := document.AsDocument(spec)
		if !ok {
			return nil, db.ErrInvalidArgument("index specification must be a document")
		}
		descriptor := bson.D{{Key: "ns", Value: fullName}}
		descriptor = append(descriptor, lo.Filter(index, func(e bson.E, _ int) bool { return e.Key != "ns" })...)
		if err := d.addIndex(descriptor); err != nil {
			return nil, err
		}
	}

	coll, err := d.resolve(name, false, true)
	if err != nil {
		return nil, err
	}
	return bson.D{
		{Key: "createdCollectionAutomatically", Value: existing == nil},
		{Key: "numIndexesBefore", Value: int32(before)},
		{Key: "numIndexesAfter", Value: int32(coll.GetNumIndexes())},
		{Key: "ok", Value: 1.0},
	}, nil
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// collectionArgument returns the collection named by the first element of a
// command document.
func collectionArgument(cmd bson.D) (string, error) {
	if len(cmd) == 0 {
		return "", db.ErrInvalidArgument("empty command document")
	}
	name, ok := cmd[0].Value.(string)
	if !ok {
		return "", db.ErrInvalidArgument("collection name has invalid type %s", document.TypeOf(cmd[0].Value))
	}
	return name, nil
}

func (d *databaseImpl) requireCollection(cmd bson.D) (db.ICollection, error) {
	name, err := collectionArgument(cmd)
	if err != nil {
		return nil, err
	}
	return d.resolve(name, false, true)
}
