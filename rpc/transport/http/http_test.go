package http

import (
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/ValentinKolb/dDB/lib/document"
	"github.com/ValentinKolb/dDB/lib/store"
	"github.com/ValentinKolb/dDB/rpc/common"
	"github.com/ValentinKolb/dDB/rpc/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// startServer serves a handler that echoes the namespace and the command.
// Commands named "fail" are answered with ok: 0.
func startServer(t *testing.T) (base string, opened, closed chan store.ConnID) {
	t.Helper()

	opened = make(chan store.ConnID, 8)
	closed = make(chan store.ConnID, 8)

	tr := NewHttpServerTransport()
	tr.RegisterHandler(func(conn store.ConnID, req []byte) []byte {
		opened <- conn
		h, msg, err := wire.Decode(req)
		if err != nil {
			return nil
		}
		q := msg.(*wire.Query)

		ok := 1.0
		if q.Query[0].Key == "fail" {
			ok = 0.0
		}
		resp, err := wire.Encode(1, h.RequestID, &wire.Reply{Documents: []bson.D{{
			{Key: "ns", Value: q.FullCollectionName},
			{Key: "cmd", Value: q.Query},
			{Key: "ok", Value: ok},
		}}})
		if err != nil {
			return nil
		}
		return resp
	})
	tr.RegisterCloseHandler(func(conn store.ConnID) { closed <- conn })

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = tr.Serve(listener, common.ServerConfig{LogLevel: "debug"}) }()
	t.Cleanup(func() { _ = tr.Close() })

	return "http://" + listener.Addr().String(), opened, closed
}

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestCommandEndpoint(t *testing.T) {
	base, opened, closed := startServer(t)

	status, body := post(t, base+"/shop/cmd", `{"ping": 1}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"ns":"shop.$cmd"`)
	assert.Contains(t, body, `"cmd":{"ping":1}`)

	// every request is a connection of its own
	conn := <-opened
	assert.Equal(t, conn, <-closed)
}

func TestCanonicalOutput(t *testing.T) {
	base, _, _ := startServer(t)

	status, body := post(t, base+"/shop/cmd?canonical=true", `{"ping": 1}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `{"$numberInt":"1"}`)
}

func TestFailedCommandIsBadRequest(t *testing.T) {
	base, _, _ := startServer(t)

	status, body := post(t, base+"/shop/cmd", `{"fail": 1}`)
	assert.Equal(t, http.StatusBadRequest, status)

	var doc bson.D
	require.NoError(t, bson.UnmarshalExtJSON([]byte(body), false, &doc))
	ok, _ := document.Get(doc, "ok")
	assert.Equal(t, 0.0, ok)
}

func TestInvalidRequests(t *testing.T) {
	base, _, _ := startServer(t)

	status, _ := post(t, base+"/shop/cmd", `{"ping": `)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = post(t, base+"/shop/cmd", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)

	resp, err := http.Get(base + "/shop/cmd")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	base, _, _ := startServer(t)

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	// process metrics are always written
	assert.Contains(t, string(data), "go_goroutines")
}

func TestServeWithoutHandler(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	assert.Error(t, NewHttpServerTransport().Serve(listener, common.ServerConfig{}))
}
