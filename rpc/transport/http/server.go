package http

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dDB/rpc/common"
	"github.com/ValentinKolb/dDB/rpc/serializer"
	"github.com/ValentinKolb/dDB/rpc/transport"
	"github.com/ValentinKolb/dDB/rpc/wire"
	"github.com/VictoriaMetrics/metrics"
	"github.com/gorilla/mux"
	"github.com/lni/dragonboat/v4/logger"
	"go.mongodb.org/mongo-driver/bson"
)

var Logger = logger.GetLogger("transport/http")

// NewHttpServerTransport creates the HTTP transport. It serves
//
//	POST /{db}/cmd    run the Extended JSON command in the body on db
//	GET  /metrics     Prometheus metrics of the process
//
// Every command request is a connection of its own: it gets a fresh
// connection id and the close handler is called once the reply is written.
func NewHttpServerTransport() transport.IRPCServerTransport {
	return &httpServerTransport{
		relaxed:   serializer.NewJSONSerializer(false),
		canonical: serializer.NewJSONSerializer(true),
	}
}

type httpServerTransport struct {
	handler      transport.ServerHandleFunc
	closeHandler transport.CloseHandleFunc
	config       common.ServerConfig
	requestIDs   atomic.Int32

	mu     sync.Mutex
	server *http.Server
	closed bool

	relaxed   serializer.IDocumentSerializer
	canonical serializer.IDocumentSerializer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *httpServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *httpServerTransport) RegisterCloseHandler(handler transport.CloseHandleFunc) {
	t.closeHandler = handler
}

func (t *httpServerTransport) Listen(config common.ServerConfig) error {
	listener, err := net.Listen("tcp", config.HTTPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener: %v", err)
	}
	return t.Serve(listener, config)
}

func (t *httpServerTransport) Serve(listener net.Listener, config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return listener.Close()
	}
	t.config = config
	server := &http.Server{Handler: t.routes()}
	t.server = server
	t.mu.Unlock()

	Logger.Infof("Starting HTTP server on %s", listener.Addr())

	err := server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (t *httpServerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.server == nil {
		return nil
	}
	return t.server.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// routes builds the request router
func (t *httpServerTransport) routes() http.Handler {
	router := mux.NewRouter()

	// Register handler
	command := http.HandlerFunc(t.handleCommand)
	if t.config.LogLevel == "debug" {
		command = loggerMiddleware(t.handleCommand)
	}
	router.Handle("/{db}/cmd", command).Methods(http.MethodPost)
	router.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	}).Methods(http.MethodGet)

	return router
}

// handleCommand turns the JSON body into a command query on <db>.$cmd,
// hands it to the handler and writes the first reply document as JSON
func (t *httpServerTransport) handleCommand(w http.ResponseWriter, r *http.Request) {
	database := mux.Vars(r)["db"]

	// Read request body
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(t.config.MaxMessageSize())))
	defer r.Body.Close()

	// Check if body could be read
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)
		return
	}

	var cmd bson.D
	if err := t.relaxed.Deserialize(body, &cmd); err != nil {
		http.Error(w, fmt.Sprintf("Invalid command document: %v", err), http.StatusBadRequest)
		return
	}
	if len(cmd) == 0 {
		http.Error(w, "Empty command document", http.StatusBadRequest)
		return
	}

	requestID := t.requestIDs.Add(1)
	req, err := wire.Encode(requestID, 0, &wire.Query{
		FullCollectionName: database + ".$cmd",
		NumberToReturn:     -1,
		Query:              cmd,
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode command: %v", err), http.StatusBadRequest)
		return
	}

	// Send the request to the handler as its own connection
	conn := transport.NextConnID()
	resp := t.handler(conn, req)
	if t.closeHandler != nil {
		defer t.closeHandler(conn)
	}

	_, msg, err := wire.Decode(resp)
	reply, ok := msg.(*wire.Reply)
	if err != nil || !ok || len(reply.Documents) == 0 {
		http.Error(w, "Invalid reply from handler", http.StatusInternalServerError)
		return
	}

	out := t.relaxed
	if canonical, _ := strconv.ParseBool(r.URL.Query().Get("canonical")); canonical {
		out = t.canonical
	}
	data, err := out.Serialize(reply.Documents[0])
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to render reply: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !commandSucceeded(reply) {
		w.WriteHeader(http.StatusBadRequest)
	}

	// Write response
	if _, err = w.Write(data); err != nil {
		Logger.Errorf("Failed to write response: %v", err)
	}
}

// commandSucceeded reports whether the reply carries ok: 1
func commandSucceeded(reply *wire.Reply) bool {
	if reply.ResponseFlags&wire.ReplyFlagQueryFailure != 0 {
		return false
	}
	for _, e := range reply.Documents[0] {
		if e.Key == "ok" {
			switch v := e.Value.(type) {
			case float64:
				return v == 1
			case int32:
				return v == 1
			case int64:
				return v == 1
			}
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Process request
		next.ServeHTTP(rw, r)

		// Log the request
		duration := time.Since(start)
		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, duration)
	}
}
