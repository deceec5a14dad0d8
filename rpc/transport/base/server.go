package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dDB/lib/store"
	"github.com/ValentinKolb/dDB/rpc/common"
	"github.com/ValentinKolb/dDB/rpc/transport"
	"github.com/ValentinKolb/dDB/rpc/wire"
	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// -----------------------------------------------------------
// Metrics
// -----------------------------------------------------------

var (
	connectionsTotal  = metrics.NewCounter(`ddb_connections_total`)
	connectionsActive = metrics.NewCounter(`ddb_connections_active`)
)

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector    IServerConnector
	handler      transport.ServerHandleFunc
	closeHandler transport.CloseHandleFunc

	// mu guards listener and the registration of new connections against Close
	mu       sync.Mutex
	listener net.Listener
	conns    *xsync.MapOf[store.ConnID, net.Conn]
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport. Every
// connection is served by exactly one goroutine, so the messages of one
// connection are handled strictly in arrival order.
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		conns:     xsync.NewMapOf[store.ConnID, net.Conn](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) RegisterCloseHandler(handler transport.CloseHandleFunc) {
	t.closeHandler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}
	return t.Serve(listener, config)
}

func (t *serverTransport) Serve(listener net.Listener, config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.mu.Lock()
	if t.closed.Load() {
		t.mu.Unlock()
		return listener.Close()
	}
	t.listener = listener
	t.mu.Unlock()

	Logger.Infof("Starting %s server on %s", t.connector.GetName(), listener.Addr())

	// Accept connections
	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		if err := t.connector.UpgradeConnection(conn, config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		}

		// Handle the connection in a goroutine
		t.mu.Lock()
		if t.closed.Load() {
			t.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		id := transport.NextConnID()
		t.conns.Store(id, conn)
		t.wg.Add(1)
		t.mu.Unlock()

		go t.handleConnection(id, conn, config)
	}
}

func (t *serverTransport) Close() error {
	t.mu.Lock()
	if !t.closed.CompareAndSwap(false, true) {
		t.mu.Unlock()
		return nil
	}
	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}
	t.mu.Unlock()

	// Unblock all readers, the connection goroutines clean up themselves
	t.conns.Range(func(_ store.ConnID, conn net.Conn) bool {
		_ = conn.Close()
		return true
	})
	t.wg.Wait()
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection handles all requests of one connection sequentially
func (t *serverTransport) handleConnection(id store.ConnID, conn net.Conn, config common.ServerConfig) {
	connectionsTotal.Inc()
	connectionsActive.Inc()
	Logger.Debugf("Connection %d opened from %s", id, conn.RemoteAddr())

	defer func() {
		conn.Close()
		t.conns.Delete(id)
		connectionsActive.Dec()
		if t.closeHandler != nil {
			t.closeHandler(id)
		}
		Logger.Debugf("Connection %d closed", id)
		t.wg.Done()
	}()

	// Timeout in seconds
	timeout := time.Duration(config.TimeoutSecond) * time.Second
	maxSize := config.MaxMessageSize()

	// Function to handle one request
	handleRequest := func() error {
		if timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return fmt.Errorf("failed to set read deadline: %v", err)
			}
		}

		// Each message gets its own buffer, decoded documents may alias it
		req, err := wire.ReadMessage(conn, nil, maxSize)
		if err != nil {
			return err
		}

		// Process the request
		start := time.Now()
		resp := t.handler(id, req)
		Logger.Debugf("Processed request on connection %d took %s", id, time.Since(start))

		if resp == nil {
			return nil
		}

		if timeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				return fmt.Errorf("failed to set write deadline: %v", err)
			}
		}
		if _, err := conn.Write(resp); err != nil {
			return fmt.Errorf("failed to write response: %v", err)
		}
		return nil
	}

	// Handle requests in a loop
	for {
		// Handle request
		err := handleRequest()

		// Case EOF: Connection closed by client
		if errors.Is(err, io.EOF) {
			break
		}

		// Case closed by Close(): stop silently
		if err != nil && t.closed.Load() {
			break
		}

		// Case error: log and close connection
		if err != nil {
			Logger.Errorf("Error handling request on connection %d: %v", id, err)
			break
		}
	}
}
