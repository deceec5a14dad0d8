package base

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/dDB/rpc/common"
	"github.com/ValentinKolb/dDB/rpc/transport"
	"github.com/ValentinKolb/dDB/rpc/wire"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// maxReplySize bounds the size of a reply accepted by the client
const maxReplySize = 64 * 1024 * 1024

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection based on the provided configuration
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.).
// It uses a single connection: the server keeps the outcome of the last
// write per connection, so all requests of a client must share one.
type clientTransport struct {
	connector    IClientConnector
	config       common.ClientConfig
	conn         net.Conn
	writeMu      sync.Mutex // Protects writes to the connection
	requestChans *xsync.MapOf[int32, chan responseResult]
	stopCh       chan struct{} // Close signal for the reader goroutine
	closeOnce    sync.Once
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector:    connector,
		requestChans: xsync.NewMapOf[int32, chan responseResult](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if config.Transport.Endpoint == "" {
		return fmt.Errorf("no endpoint provided")
	}
	t.config = config

	conn, err := t.connector.Connect(config.Transport.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %v", config.Transport.Endpoint, err)
	}

	// Upgrade the connection with protocol-specific settings
	if err := t.connector.UpgradeConnection(conn, config); err != nil {
		conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %v", config.Transport.Endpoint, err)
	}

	t.conn = conn
	t.stopCh = make(chan struct{})
	t.closeOnce = sync.Once{}

	Logger.Debugf("Connected to %s using %s transport", config.Transport.Endpoint, t.connector.GetName())

	// Start the response reader
	go t.readResponses()
	return nil
}

func (t *clientTransport) Send(req []byte) ([]byte, error) {
	if len(req) < wire.HeaderSize {
		return nil, fmt.Errorf("request shorter than header")
	}
	requestID := int32(binary.LittleEndian.Uint32(req[4:8]))

	// Create and register a channel for the response
	respCh := make(chan responseResult, 1)
	t.requestChans.Store(requestID, respCh)
	defer t.requestChans.Delete(requestID)

	if err := t.write(req); err != nil {
		return nil, err
	}

	// Wait for response or timeout
	var timeoutCh <-chan time.Time
	if t.config.TimeoutSecond > 0 {
		timer := time.NewTimer(time.Duration(t.config.TimeoutSecond) * time.Second)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case result := <-respCh:
		return result.data, result.err
	case <-timeoutCh:
		return nil, fmt.Errorf("request %d timed out", requestID)
	}
}

func (t *clientTransport) SendNoReply(req []byte) error {
	return t.write(req)
}

func (t *clientTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	var err error
	t.closeOnce.Do(func() {
		close(t.stopCh)
		err = t.conn.Close()
	})
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *clientTransport) write(req []byte) error {
	if t.conn == nil {
		return fmt.Errorf("connection is closed")
	}

	// Lock the connection only for writing
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.config.TimeoutSecond > 0 {
		timeout := time.Duration(t.config.TimeoutSecond) * time.Second
		if err := t.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	_, err := t.conn.Write(req)
	return err
}

// readResponses reads replies in a loop and distributes them to waiting requests
func (t *clientTransport) readResponses() {
	for {
		msg, err := wire.ReadMessage(t.conn, nil, maxReplySize)
		if err != nil {
			select {
			case <-t.stopCh:
				// closed by the client
			default:
				Logger.Warningf("Connection to %s lost: %v", t.config.Transport.Endpoint, err)
			}
			t.failPending(fmt.Errorf("error reading response: %v", err))
			return
		}

		h, err := wire.ParseHeader(msg)
		if err != nil {
			Logger.Errorf("Discarding malformed reply: %v", err)
			continue
		}

		// Find the corresponding request channel
		if respCh, found := t.requestChans.Load(h.ResponseTo); found {
			respCh <- responseResult{msg, nil}
		} else {
			Logger.Warningf("Received reply for unknown request ID %d", h.ResponseTo)
		}
	}
}

// failPending hands err to every request still waiting for a reply
func (t *clientTransport) failPending(err error) {
	t.requestChans.Range(func(_ int32, ch chan responseResult) bool {
		select {
		case ch <- responseResult{nil, err}:
		default:
		}
		return true
	})
}
