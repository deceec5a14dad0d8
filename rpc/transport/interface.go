package transport

import (
	"net"
	"sync/atomic"

	"github.com/ValentinKolb/dDB/lib/store"
	"github.com/ValentinKolb/dDB/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a complete wire
// message is received. It takes the id of the connection and the message and
// returns the complete reply message, or nil if the message has no reply.
// req is only valid until the function returns.
type ServerHandleFunc func(conn store.ConnID, req []byte) (resp []byte)

// CloseHandleFunc is called once after a connection was closed
type CloseHandleFunc func(conn store.ConnID)

// IRPCServerTransport is the interface for the RPC transport layer
// It must accept a ServerConfig as a parameter
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler should be called when a request is received
	RegisterHandler(handler ServerHandleFunc)
	// RegisterCloseHandler registers a handler that is called when a connection ends
	RegisterCloseHandler(handler CloseHandleFunc)
	// Listen creates the listener from the configuration and serves it (blocking)
	Listen(config common.ServerConfig) error
	// Serve accepts connections on an existing listener (blocking)
	Serve(listener net.Listener, config common.ServerConfig) error
	// Close stops accepting connections and closes all open connections
	Close() error
}

// connIDs is shared by all transports so that ids are unique per process
var connIDs atomic.Uint64

// NextConnID returns a new, process wide unique connection id
func NextConnID() store.ConnID {
	return store.ConnID(connIDs.Add(1))
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a complete request message and returns the reply whose
	// responseTo matches the request id of req
	Send(req []byte) (resp []byte, err error)
	// SendNoReply sends a complete request message without waiting (insert, update, delete)
	SendNoReply(req []byte) error
	// Close closes the transport connection
	Close() error
}
