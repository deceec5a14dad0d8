package server

import (
	"io"
	"net"
	nethttp "net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dDB/lib/db"
	"github.com/ValentinKolb/dDB/lib/db/engines/memory"
	"github.com/ValentinKolb/dDB/lib/store/lstore"
	"github.com/ValentinKolb/dDB/rpc/client"
	"github.com/ValentinKolb/dDB/rpc/common"
	"github.com/ValentinKolb/dDB/rpc/transport/http"
	"github.com/ValentinKolb/dDB/rpc/transport/tcp"
	"github.com/ValentinKolb/dDB/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

var testConfig = common.ServerConfig{
	TransportName: "tcp",
	Transport: common.ServerTransportConfig{
		TCPConf: common.TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
	},
	TimeoutSecond: 5,
	LogLevel:      "error",
}

// startTCPServer serves a fresh in-memory backend on a random local port
func startTCPServer(t *testing.T) (addr string, adapter IRPCServerAdapter) {
	t.Helper()

	adapter = NewWireAdapter(testConfig, lstore.NewLocalBackend(memory.NewEngine()))
	tr := tcp.NewTCPServerTransport()
	tr.RegisterHandler(adapter.Handle)
	tr.RegisterCloseHandler(adapter.HandleClose)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = tr.Serve(listener, testConfig) }()
	t.Cleanup(func() { _ = tr.Close() })

	return listener.Addr().String(), adapter
}

func newTestClient(t *testing.T, addr string) *client.RPCClient {
	t.Helper()
	c, err := client.NewRPCClient(common.ClientConfig{
		Transport: common.ClientTransportConfig{
			Endpoint: addr,
			TCPConf:  common.TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
		},
		TimeoutSecond: 5,
	}, tcp.NewTCPClientTransport())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// --------------------------------------------------------------------------
// Wire protocol over TCP
// --------------------------------------------------------------------------

func TestInsertAndGetLastError(t *testing.T) {
	addr, _ := startTCPServer(t)
	c := newTestClient(t, addr)

	require.NoError(t, c.Insert("test.coll",
		bson.D{{Key: "_id", Value: int32(1)}, {Key: "v", Value: "a"}},
		bson.D{{Key: "_id", Value: int32(2)}, {Key: "v", Value: "b"}},
	))

	result, err := c.GetLastError("test")
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "ok", Value: 1.0}, {Key: "n", Value: int32(2)}}, result)

	docs, err := c.Find("test.coll", nil, 0, 0, nil)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = c.Find("test.coll", nil, 1, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []bson.D{{{Key: "_id", Value: int32(2)}, {Key: "v", Value: "b"}}}, docs)

	docs, err = c.Find("test.coll", bson.D{{Key: "_id", Value: int32(1)}}, 0, 0, bson.D{{Key: "_id", Value: int32(0)}})
	require.NoError(t, err)
	assert.Equal(t, []bson.D{{{Key: "v", Value: "a"}}}, docs)
}

func TestDuplicateKeyOverTheWire(t *testing.T) {
	addr, _ := startTCPServer(t)
	c := newTestClient(t, addr)

	doc := bson.D{{Key: "_id", Value: "x"}}
	require.NoError(t, c.Insert("test.coll", doc))
	_, err := c.GetLastError("test")
	require.NoError(t, err)

	// the write itself is not answered
	require.NoError(t, c.Insert("test.coll", doc))

	result, err := c.GetLastError("test")
	require.Error(t, err)
	assert.Equal(t, db.CodeDuplicateKey, db.AsError(err).Code)
	assert.Equal(t, int32(db.CodeDuplicateKey), field(result, "code"))
	assert.Contains(t, field(result, "err"), "E11000")
}

func TestUpdateAndDelete(t *testing.T) {
	addr, _ := startTCPServer(t)
	c := newTestClient(t, addr)

	// upsert creates the document
	require.NoError(t, c.Update("test.coll",
		bson.D{{Key: "_id", Value: int32(1)}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "v", Value: int32(1)}}}},
		true, false,
	))
	result, err := c.GetLastError("test")
	require.NoError(t, err)
	assert.Equal(t, false, field(result, "updatedExisting"))
	assert.Equal(t, int32(1), field(result, "upserted"))

	require.NoError(t, c.Insert("test.coll", bson.D{{Key: "_id", Value: int32(2)}, {Key: "v", Value: int32(1)}}))

	// multi update touches both documents
	require.NoError(t, c.Update("test.coll",
		bson.D{{Key: "v", Value: int32(1)}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "v", Value: int32(1)}}}},
		false, true,
	))
	result, err = c.GetLastError("test")
	require.NoError(t, err)
	assert.Equal(t, int32(2), field(result, "n"))
	assert.Equal(t, true, field(result, "updatedExisting"))

	count, err := c.RunCommand("test", bson.D{
		{Key: "count", Value: "coll"},
		{Key: "query", Value: bson.D{{Key: "v", Value: int32(2)}}},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), field(count, "n"))

	// single remove stops after the first match
	require.NoError(t, c.Delete("test.coll", bson.D{}, true))
	result, err = c.GetLastError("test")
	require.NoError(t, err)
	assert.Equal(t, int32(1), field(result, "n"))

	require.NoError(t, c.Delete("test.coll", bson.D{}, false))
	result, err = c.GetLastError("test")
	require.NoError(t, err)
	assert.Equal(t, int32(1), field(result, "n"))

	docs, err := c.Find("test.coll", nil, 0, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestCommandsOverTheWire(t *testing.T) {
	addr, _ := startTCPServer(t)
	c := newTestClient(t, addr)

	result, err := c.RunCommand("admin", bson.D{{Key: "ismaster", Value: int32(1)}})
	require.NoError(t, err)
	assert.Equal(t, true, field(result, "ismaster"))

	_, err = c.RunCommand("admin", bson.D{{Key: "ping", Value: int32(1)}})
	require.NoError(t, err)

	result, err = c.RunCommand("admin", bson.D{{Key: "buildinfo", Value: int32(1)}})
	require.NoError(t, err)
	assert.Equal(t, ServerVersion, field(result, "version"))

	require.NoError(t, c.Insert("shop.items", bson.D{{Key: "v", Value: int32(1)}}))
	result, err = c.RunCommand("admin", bson.D{{Key: "listDatabases", Value: int32(1)}})
	require.NoError(t, err)
	databases, ok := field(result, "databases").(bson.A)
	require.True(t, ok)
	names := make([]string, 0, len(databases))
	for _, raw := range databases {
		names = append(names, field(raw.(bson.D), "name").(string))
	}
	assert.Contains(t, names, "shop")

	result, err = c.RunCommand("test", bson.D{{Key: "frobnicate", Value: int32(1)}})
	require.Error(t, err)
	assert.Equal(t, db.CodeCommandNotFound, db.AsError(err).Code)
	assert.Equal(t, 0.0, field(result, "ok"))
}

func TestQueryFailureOverTheWire(t *testing.T) {
	addr, _ := startTCPServer(t)
	c := newTestClient(t, addr)

	_, err := c.Find("nodot", nil, 0, 0, nil)
	require.Error(t, err)
	assert.Equal(t, db.CodeInvalidNamespace, db.AsError(err).Code)

	// the connection survives a failed query
	_, err = c.RunCommand("admin", bson.D{{Key: "ping", Value: int32(1)}})
	assert.NoError(t, err)
}

func TestLastErrorIsPerConnection(t *testing.T) {
	addr, _ := startTCPServer(t)
	a := newTestClient(t, addr)
	b := newTestClient(t, addr)

	doc := bson.D{{Key: "_id", Value: int32(1)}}
	require.NoError(t, a.Insert("test.coll", doc))
	require.NoError(t, a.Insert("test.coll", doc))

	// b did not write anything
	result, err := b.GetLastError("test")
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "ok", Value: 1.0}}, result)

	_, err = a.GetLastError("test")
	assert.Equal(t, db.CodeDuplicateKey, db.AsError(err).Code)
}

// --------------------------------------------------------------------------
// HTTP transport
// --------------------------------------------------------------------------

func TestHTTPTransport(t *testing.T) {
	addr, adapter := startTCPServer(t)
	c := newTestClient(t, addr)
	require.NoError(t, c.Insert("test.coll", bson.D{{Key: "v", Value: int32(1)}}))
	_, err := c.GetLastError("test")
	require.NoError(t, err)

	tr := http.NewHttpServerTransport()
	tr.RegisterHandler(adapter.Handle)
	tr.RegisterCloseHandler(adapter.HandleClose)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = tr.Serve(listener, testConfig) }()
	t.Cleanup(func() { _ = tr.Close() })

	base := "http://" + listener.Addr().String()

	post := func(path, body string) (int, string) {
		resp, err := nethttp.Post(base+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(data)
	}

	status, body := post("/test/cmd", `{"count": "coll"}`)
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Contains(t, body, `"n":1`)

	status, body = post("/test/cmd", `{"frobnicate": 1}`)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Contains(t, body, `"code":59`)

	status, _ = post("/test/cmd", `not json`)
	assert.Equal(t, nethttp.StatusBadRequest, status)

	resp, err := nethttp.Get(base + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ddb_requests_total")
}

// --------------------------------------------------------------------------
// RPCServer
// --------------------------------------------------------------------------

func TestServeUnixSocket(t *testing.T) {
	config := common.ServerConfig{
		TransportName: "unix",
		Transport:     common.ServerTransportConfig{Endpoint: filepath.Join(t.TempDir(), "ddb.sock")},
		TimeoutSecond: 5,
	}

	s := NewRPCServer(config, lstore.NewLocalBackend(memory.NewEngine()), unix.NewUnixServerTransport())
	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	var c *client.RPCClient
	require.Eventually(t, func() bool {
		var err error
		c, err = client.NewRPCClient(common.ClientConfig{
			Transport:     common.ClientTransportConfig{Endpoint: config.Transport.Endpoint},
			TimeoutSecond: 5,
		}, unix.NewUnixClientTransport())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	_, err := c.RunCommand("admin", bson.D{{Key: "ping", Value: int32(1)}})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	require.NoError(t, s.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
}
