package server

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dDB/lib/db"
	"github.com/ValentinKolb/dDB/lib/store"
	"github.com/ValentinKolb/dDB/lib/store/lstore"
	"github.com/ValentinKolb/dDB/rpc/common"
	"github.com/ValentinKolb/dDB/rpc/wire"
	"github.com/VictoriaMetrics/metrics"
	"go.mongodb.org/mongo-driver/bson"
)

// NewWireAdapter creates the adapter that translates wire messages into
// requests against the databases of backend.
func NewWireAdapter(config common.ServerConfig, backend store.IBackend) IRPCServerAdapter {
	return &wireAdapter{
		config:  config,
		backend: backend,
		started: time.Now(),
	}
}

// wireAdapter implements IRPCServerAdapter for the legacy wire protocol
type wireAdapter struct {
	config    common.ServerConfig
	backend   store.IBackend
	started   time.Time
	requestID atomic.Int32
}

// --------------------------------------------------------------------------
// Interface Methods (docu see server.IRPCServerAdapter)
// --------------------------------------------------------------------------

func (a *wireAdapter) Handle(conn store.ConnID, req []byte) []byte {
	start := time.Now()

	h, msg, err := wire.Decode(req)
	if err != nil {
		Logger.Warningf("connection %d sent an undecodable message: %v", conn, err)
		requestErrors("invalid").Inc()
		// a query still gets an answer if its header is intact
		if h.OpCode == wire.OpQuery {
			return a.reply(h.RequestID, wire.ReplyFlagQueryFailure, queryFailure(db.NewInternalError("%v", err)))
		}
		return nil
	}

	op := h.OpCode.String()
	requestsTotal(op).Inc()
	defer requestDuration(op).UpdateDuration(start)

	switch m := msg.(type) {
	case *wire.Query:
		flags, docs := a.handleQuery(conn, m)
		if flags&wire.ReplyFlagQueryFailure != 0 {
			requestErrors(op).Inc()
		}
		return a.reply(h.RequestID, flags, docs...)

	case *wire.Insert:
		database, coll, err := a.resolve(m.FullCollectionName)
		if err != nil {
			a.dropWrite(op, conn, m.FullCollectionName, err)
			return nil
		}
		database.HandleInsert(&store.Insert{Collection: coll, Documents: m.Documents, Conn: conn})

	case *wire.Update:
		database, coll, err := a.resolve(m.FullCollectionName)
		if err != nil {
			a.dropWrite(op, conn, m.FullCollectionName, err)
			return nil
		}
		database.HandleUpdate(&store.Update{
			Collection: coll,
			Selector:   m.Selector,
			Update:     m.Update,
			Upsert:     m.Upsert(),
			Multi:      m.Multi(),
			Conn:       conn,
		})

	case *wire.Delete:
		database, coll, err := a.resolve(m.FullCollectionName)
		if err != nil {
			a.dropWrite(op, conn, m.FullCollectionName, err)
			return nil
		}
		database.HandleDelete(&store.Delete{Collection: coll, Selector: m.Selector, Single: m.SingleRemove(), Conn: conn})

	case *wire.GetMore:
		// results are always returned in a single batch
		return a.reply(h.RequestID, wire.ReplyFlagCursorNotFound)

	case *wire.KillCursors:
		// nothing to kill

	default:
		Logger.Warningf("connection %d sent unexpected %s message", conn, op)
	}
	return nil
}

func (a *wireAdapter) HandleClose(conn store.ConnID) {
	a.backend.HandleClose(conn)
}

// --------------------------------------------------------------------------
// Query Handling
// --------------------------------------------------------------------------

// handleQuery answers an OP_QUERY. Queries on <db>.$cmd are commands, all
// other queries read documents of a collection.
func (a *wireAdapter) handleQuery(conn store.ConnID, q *wire.Query) (int32, []bson.D) {
	dbName, coll, err := splitNamespace(q.FullCollectionName)
	if err != nil {
		return wire.ReplyFlagQueryFailure, []bson.D{queryFailure(err)}
	}

	if coll == "$cmd" {
		return 0, []bson.D{a.handleCommand(conn, dbName, q.Query)}
	}

	database, err := a.backend.Database(dbName)
	if err != nil {
		return wire.ReplyFlagQueryFailure, []bson.D{queryFailure(err)}
	}

	docs, err := database.HandleQuery(&store.Query{
		Collection: coll,
		Filter:     q.Query,
		Skip:       int(q.NumberToSkip),
		Limit:      int(q.NumberToReturn),
		Projection: q.ReturnFieldsSelector,
		Conn:       conn,
	})
	if err != nil {
		Logger.Debugf("query on %s failed: %v", q.FullCollectionName, err)
		return wire.ReplyFlagQueryFailure, []bson.D{queryFailure(err)}
	}

	var result []bson.D
	for doc := range docs {
		result = append(result, doc)
	}
	return 0, result
}

// handleCommand runs a command and always returns a document. Failures are
// rendered as {ok: 0, errmsg, code}.
func (a *wireAdapter) handleCommand(conn store.ConnID, dbName string, cmd bson.D) bson.D {
	// drivers wrap the command if they add read preferences
	if len(cmd) > 0 && cmd[0].Key == "$query" {
		if inner, ok := cmd[0].Value.(bson.D); ok {
			cmd = inner
		}
	}
	if len(cmd) == 0 {
		return commandFailure(db.ErrInvalidArgument("empty command document"))
	}

	name := cmd[0].Key
	requestsTotal(commandLabel(name)).Inc()

	var result bson.D
	var err error

	if handler, ok := adminCommands[strings.ToLower(name)]; ok {
		result, err = handler(a, conn, cmd)
	} else {
		var database store.IDatabase
		if database, err = a.backend.Database(dbName); err == nil {
			result, err = database.HandleCommand(conn, name, cmd)
		}
	}

	if err != nil {
		requestErrors("command").Inc()
		return commandFailure(err)
	}
	return result
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// resolve returns the database and the collection name of a namespace
func (a *wireAdapter) resolve(namespace string) (store.IDatabase, string, error) {
	dbName, coll, err := splitNamespace(namespace)
	if err != nil {
		return nil, "", err
	}
	database, err := a.backend.Database(dbName)
	if err != nil {
		return nil, "", err
	}
	return database, coll, nil
}

// dropWrite logs a write that could not be routed to a database
func (a *wireAdapter) dropWrite(op string, conn store.ConnID, namespace string, err error) {
	requestErrors(op).Inc()
	Logger.Errorf("%s on %q from connection %d dropped: %v", op, namespace, conn, err)
}

// reply encodes a reply to the request with id responseTo
func (a *wireAdapter) reply(responseTo int32, flags int32, docs ...bson.D) []byte {
	resp, err := wire.Encode(a.requestID.Add(1), responseTo, &wire.Reply{ResponseFlags: flags, Documents: docs})
	if err != nil {
		// a document that cannot be encoded, report it instead
		Logger.Errorf("failed to encode reply to %d: %v", responseTo, err)
		resp, _ = wire.Encode(a.requestID.Add(1), responseTo, &wire.Reply{
			ResponseFlags: wire.ReplyFlagQueryFailure,
			Documents:     []bson.D{queryFailure(db.NewInternalError("failed to encode reply: %v", err))},
		})
	}
	return resp
}

// splitNamespace splits <db>.<collection> at the first dot
func splitNamespace(namespace string) (string, string, error) {
	dbName, coll, ok := strings.Cut(namespace, ".")
	if !ok || dbName == "" || coll == "" {
		return "", "", db.ErrInvalidNamespace(namespace)
	}
	return dbName, coll, nil
}

// commandLabel bounds the metric labels to the known command names
func commandLabel(name string) string {
	lower := strings.ToLower(name)
	if _, ok := adminCommands[lower]; ok || lstore.IsDatabaseCommand(lower) {
		return "command_" + lower
	}
	return "command_unknown"
}

func commandFailure(err error) bson.D {
	e := db.AsError(err)
	return bson.D{
		{Key: "ok", Value: 0.0},
		{Key: "errmsg", Value: e.Msg},
		{Key: "code", Value: int32(e.Code)},
	}
}

func queryFailure(err error) bson.D {
	e := db.AsError(err)
	return bson.D{
		{Key: "$err", Value: e.Msg},
		{Key: "code", Value: int32(e.Code)},
	}
}

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

func requestsTotal(op string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`ddb_requests_total{op=%q}`, op))
}

func requestErrors(op string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`ddb_request_errors_total{op=%q}`, op))
}

func requestDuration(op string) *metrics.Histogram {
	return metrics.GetOrCreateHistogram(fmt.Sprintf(`ddb_request_duration_seconds{op=%q}`, op))
}
