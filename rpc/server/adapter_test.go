package server

import (
	"testing"

	"github.com/ValentinKolb/dDB/lib/db"
	"github.com/ValentinKolb/dDB/lib/db/engines/memory"
	"github.com/ValentinKolb/dDB/lib/document"
	"github.com/ValentinKolb/dDB/lib/store"
	"github.com/ValentinKolb/dDB/lib/store/lstore"
	"github.com/ValentinKolb/dDB/rpc/common"
	"github.com/ValentinKolb/dDB/rpc/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func newTestAdapter() IRPCServerAdapter {
	return NewWireAdapter(common.ServerConfig{}, lstore.NewLocalBackend(memory.NewEngine()))
}

// send encodes m, hands it to the adapter and decodes the reply if any
func send(t *testing.T, a IRPCServerAdapter, conn store.ConnID, requestID int32, m wire.Message) *wire.Reply {
	t.Helper()
	req, err := wire.Encode(requestID, 0, m)
	require.NoError(t, err)

	resp := a.Handle(conn, req)
	if resp == nil {
		return nil
	}
	h, msg, err := wire.Decode(resp)
	require.NoError(t, err)
	assert.Equal(t, requestID, h.ResponseTo)
	reply, ok := msg.(*wire.Reply)
	require.True(t, ok, "expected a reply, got %s", h.OpCode)
	return reply
}

func runCommand(t *testing.T, a IRPCServerAdapter, conn store.ConnID, database string, cmd bson.D) bson.D {
	t.Helper()
	reply := send(t, a, conn, 1, &wire.Query{FullCollectionName: database + ".$cmd", NumberToReturn: -1, Query: cmd})
	require.NotNil(t, reply)
	require.Len(t, reply.Documents, 1)
	return reply.Documents[0]
}

func field(doc bson.D, key string) any {
	v, _ := document.Get(doc, key)
	return v
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestWritesHaveNoReply(t *testing.T) {
	a := newTestAdapter()

	assert.Nil(t, send(t, a, 1, 1, &wire.Insert{FullCollectionName: "test.coll", Documents: []bson.D{{{Key: "_id", Value: int32(1)}}}}))
	assert.Nil(t, send(t, a, 1, 2, &wire.Update{FullCollectionName: "test.coll", Selector: bson.D{}, Update: bson.D{{Key: "$set", Value: bson.D{{Key: "v", Value: int32(1)}}}}}))
	assert.Nil(t, send(t, a, 1, 3, &wire.Delete{FullCollectionName: "test.coll", Selector: bson.D{}}))
	assert.Nil(t, send(t, a, 1, 4, &wire.KillCursors{CursorIDs: []int64{42}}))
}

func TestGetMoreIsCursorNotFound(t *testing.T) {
	a := newTestAdapter()

	reply := send(t, a, 1, 9, &wire.GetMore{FullCollectionName: "test.coll", CursorID: 42})
	require.NotNil(t, reply)
	assert.Equal(t, int32(wire.ReplyFlagCursorNotFound), reply.ResponseFlags)
	assert.Empty(t, reply.Documents)
}

func TestQueryReturnsDocuments(t *testing.T) {
	a := newTestAdapter()

	send(t, a, 1, 1, &wire.Insert{FullCollectionName: "test.coll", Documents: []bson.D{
		{{Key: "_id", Value: int32(1)}, {Key: "v", Value: "a"}},
		{{Key: "_id", Value: int32(2)}, {Key: "v", Value: "b"}},
	}})

	reply := send(t, a, 1, 2, &wire.Query{
		FullCollectionName: "test.coll",
		Query:              bson.D{{Key: "v", Value: "b"}},
	})
	require.NotNil(t, reply)
	assert.Zero(t, reply.ResponseFlags)
	assert.Equal(t, []bson.D{{{Key: "_id", Value: int32(2)}, {Key: "v", Value: "b"}}}, reply.Documents)
}

func TestQueryFailure(t *testing.T) {
	a := newTestAdapter()

	reply := send(t, a, 1, 1, &wire.Query{FullCollectionName: "nodot", Query: bson.D{}})
	require.NotNil(t, reply)
	assert.Equal(t, int32(wire.ReplyFlagQueryFailure), reply.ResponseFlags)
	require.Len(t, reply.Documents, 1)
	assert.Equal(t, int32(db.CodeInvalidNamespace), field(reply.Documents[0], "code"))
	assert.NotEmpty(t, field(reply.Documents[0], "$err"))

	send(t, a, 1, 2, &wire.Insert{FullCollectionName: "test.coll", Documents: []bson.D{{{Key: "v", Value: int32(1)}}}})
	reply = send(t, a, 1, 3, &wire.Query{
		FullCollectionName: "test.coll",
		Query:              bson.D{{Key: "v", Value: bson.D{{Key: "$frobnicate", Value: 1}}}},
	})
	require.NotNil(t, reply)
	assert.Equal(t, int32(wire.ReplyFlagQueryFailure), reply.ResponseFlags)
}

func TestUndecodableQueryIsAnswered(t *testing.T) {
	a := newTestAdapter()

	req, err := wire.Encode(5, 0, &wire.Query{FullCollectionName: "test.coll", Query: bson.D{}})
	require.NoError(t, err)
	// cut the query document short but keep the header consistent
	req = req[:len(req)-2]
	req[0] = byte(len(req))

	resp := a.Handle(1, req)
	require.NotNil(t, resp)
	h, msg, err := wire.Decode(resp)
	require.NoError(t, err)
	assert.Equal(t, int32(5), h.ResponseTo)
	assert.Equal(t, int32(wire.ReplyFlagQueryFailure), msg.(*wire.Reply).ResponseFlags)

	// other messages are dropped
	assert.Nil(t, a.Handle(1, []byte{1, 2, 3}))
}

func TestCommands(t *testing.T) {
	a := newTestAdapter()

	result := runCommand(t, a, 1, "admin", bson.D{{Key: "isMaster", Value: int32(1)}})
	assert.Equal(t, true, field(result, "ismaster"))
	assert.Equal(t, int32(common.DefaultMaxMessageSizeMB*1024*1024), field(result, "maxMessageSizeBytes"))
	assert.Equal(t, 1.0, field(result, "ok"))

	result = runCommand(t, a, 7, "admin", bson.D{{Key: "whatsmyuri", Value: int32(1)}})
	assert.Equal(t, "conn7", field(result, "you"))

	result = runCommand(t, a, 1, "admin", bson.D{{Key: "buildInfo", Value: int32(1)}})
	assert.Equal(t, ServerVersion, field(result, "version"))

	result = runCommand(t, a, 1, "admin", bson.D{{Key: "getnonce", Value: int32(1)}})
	assert.Len(t, field(result, "nonce"), 16)

	result = runCommand(t, a, 1, "admin", bson.D{{Key: "getLog", Value: "*"}})
	assert.Equal(t, bson.A{"startupWarnings"}, field(result, "names"))

	result = runCommand(t, a, 1, "admin", bson.D{{Key: "getLog", Value: int32(1)}})
	assert.Equal(t, 0.0, field(result, "ok"))

	result = runCommand(t, a, 1, "admin", bson.D{{Key: "serverStatus", Value: int32(1)}})
	assert.Equal(t, "ddb", field(result, "process"))
}

func TestWrappedCommand(t *testing.T) {
	a := newTestAdapter()

	result := runCommand(t, a, 1, "admin", bson.D{
		{Key: "$query", Value: bson.D{{Key: "ping", Value: int32(1)}}},
		{Key: "$readPreference", Value: bson.D{{Key: "mode", Value: "secondaryPreferred"}}},
	})
	assert.Equal(t, bson.D{{Key: "ok", Value: 1.0}}, result)
}

func TestCommandFailure(t *testing.T) {
	a := newTestAdapter()

	result := runCommand(t, a, 1, "test", bson.D{{Key: "frobnicate", Value: int32(1)}})
	assert.Equal(t, 0.0, field(result, "ok"))
	assert.Equal(t, int32(db.CodeCommandNotFound), field(result, "code"))
	assert.Equal(t, []string{"ok", "errmsg", "code"}, document.Keys(result))

	result = runCommand(t, a, 1, "test", bson.D{})
	assert.Equal(t, 0.0, field(result, "ok"))
}

func TestListDatabases(t *testing.T) {
	a := newTestAdapter()

	send(t, a, 1, 1, &wire.Insert{FullCollectionName: "full.coll", Documents: []bson.D{{{Key: "v", Value: int32(1)}}}})
	runCommand(t, a, 1, "empty", bson.D{{Key: "ping", Value: int32(1)}})

	result := runCommand(t, a, 1, "admin", bson.D{{Key: "listDatabases", Value: int32(1)}})
	databases, ok := field(result, "databases").(bson.A)
	require.True(t, ok)

	empty := map[string]bool{}
	for _, raw := range databases {
		entry := raw.(bson.D)
		empty[field(entry, "name").(string)] = field(entry, "empty").(bool)
	}
	assert.Equal(t, false, empty["full"])
	assert.Equal(t, int64(0), field(result, "totalSize"))
}

func TestHandleCloseForgetsLastError(t *testing.T) {
	a := newTestAdapter()

	doc := bson.D{{Key: "_id", Value: int32(1)}}
	send(t, a, 3, 1, &wire.Insert{FullCollectionName: "test.coll", Documents: []bson.D{doc}})
	send(t, a, 3, 2, &wire.Insert{FullCollectionName: "test.coll", Documents: []bson.D{doc}})
	a.HandleClose(3)

	result := runCommand(t, a, 3, "test", bson.D{{Key: "getlasterror", Value: int32(1)}})
	assert.Equal(t, bson.D{{Key: "ok", Value: 1.0}}, result)
}

func TestSplitNamespace(t *testing.T) {
	dbName, coll, err := splitNamespace("test.a.b")
	require.NoError(t, err)
	assert.Equal(t, "test", dbName)
	assert.Equal(t, "a.b", coll)

	for _, ns := range []string{"", "test", ".coll", "test."} {
		_, _, err := splitNamespace(ns)
		assert.Error(t, err, ns)
	}
}

func TestCommandLabel(t *testing.T) {
	assert.Equal(t, "command_ismaster", commandLabel("isMaster"))
	assert.Equal(t, "command_count", commandLabel("COUNT"))
	assert.Equal(t, "command_unknown", commandLabel("frobnicate"))
}
