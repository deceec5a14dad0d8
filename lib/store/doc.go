// Package store defines the request shapes and interfaces between the wire
// layer and the database engine. The transport decodes client messages into
// the request types of this package, hands them to an IDatabase obtained from
// an IBackend and encodes the returned documents.
//
// The package focuses on:
//   - Typed inbound requests (Insert, Update, Delete, Query) carrying the ConnID
//     of the issuing connection
//   - A uniform command entry point returning plain response documents
//   - Per connection write acknowledgement (getlasterror) instead of
//     returning write failures to the caller
//
// Key Components:
//
//   - IDatabase: Owns the collections of one database together with two
//     pseudo-collections mirroring the engine state (system.namespaces lists
//     every collection, system.indexes every index descriptor). Writes are
//     fire-and-forget: the outcome is stored per connection and consumed by
//     the next getlasterror command. Commands return their result or an error
//     of type *db.Error.
//
//   - IBackend: Maps database names to IDatabase instances, creating them on
//     first use and discarding them on dropDatabase.
//
//   - ConnID: Identifies a client connection. The transport calls HandleClose
//     once a connection is gone so per connection state does not leak.
//
// Implementations:
//
//	- Local Store (lstore): Databases and backend keeping every collection in
//	  process memory using a db.IEngine. All state is lost when the process exits.
//	  Available in the "github.com/ValentinKolb/dDB/lib/store/lstore" package.
package store
