package server

import (
	"github.com/ValentinKolb/dDB/lib/store"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a complete wire message of a connection and returns the
	// complete reply message, or nil for messages without a reply.
	// Errors are rendered into the reply or kept for getlasterror.
	Handle(conn store.ConnID, req []byte) (resp []byte)
	// HandleClose releases all state of a closed connection
	HandleClose(conn store.ConnID)
}
