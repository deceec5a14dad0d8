package store

import (
	"iter"

	"go.mongodb.org/mongo-driver/bson"
)

// --------------------------------------------------------------------------
// Request Types
// --------------------------------------------------------------------------

// ConnID identifies a client connection. It is assigned by the transport
// layer and never reused during the lifetime of a process.
type ConnID uint64

// Insert stores Documents in Collection.
type Insert struct {
	Collection string
	Documents  []bson.D
	Conn       ConnID
}

// Update applies Update to the documents matching Selector.
type Update struct {
	Collection string
	Selector   bson.D
	Update     bson.D
	Upsert     bool // Insert a document if nothing matches
	Multi      bool // Update every matching document instead of the first one
	Conn       ConnID
}

// Delete removes the documents matching Selector.
type Delete struct {
	Collection string
	Selector   bson.D
	Single     bool // Remove at most one document
	Conn       ConnID
}

// Query reads the documents matching Filter. Filter may be wrapped as
// {$query: ..., $orderby: ...}.
type Query struct {
	Collection string
	Filter     bson.D
	Skip       int
	Limit      int
	Projection bson.D
	Conn       ConnID
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IDatabase is a named set of collections together with the per connection
// acknowledgement state of the write operations issued against it.
//
// Write operations never return an error. A failed write is recorded for the
// issuing connection and reported by the next getlasterror command.
// Commands return their result document or an error that the caller renders
// as {ok: 0, errmsg, code}.
type IDatabase interface {
	// Name returns the database name.
	Name() string
	// HandleInsert stores documents, creating the collection on demand.
	HandleInsert(req *Insert)
	// HandleUpdate updates documents, creating the collection on demand.
	HandleUpdate(req *Update)
	// HandleDelete removes documents. Deleting from an unknown collection is a no-op.
	HandleDelete(req *Delete)
	// HandleQuery returns the matching documents. An unknown collection yields an empty sequence.
	HandleQuery(req *Query) (docs iter.Seq[bson.D], err error)
	// HandleCommand runs the command name (matched case-insensitively) with the full command document.
	HandleCommand(conn ConnID, name string, cmd bson.D) (result bson.D, err error)
	// HandleClose discards the state kept for a closed connection.
	HandleClose(conn ConnID)
	// IsEmpty reports whether the database holds no user collections.
	IsEmpty() bool
}

// IBackend owns all databases of a server.
type IBackend interface {
	// Database returns the database called name, creating it if necessary.
	Database(name string) (database IDatabase, err error)
	// DropDatabase discards a database. The next call to Database creates a fresh one.
	DropDatabase(name string)
	// DatabaseNames returns the names of all databases in sorted order.
	DatabaseNames() []string
	// HandleClose forwards a connection close to every database.
	HandleClose(conn ConnID)
}
