// Package db defines the storage contracts of dDB: collections of ordered
// BSON documents, the indexes attached to them, and the engines that create
// both. It also owns the error taxonomy shared by every layer.
//
// The package focuses on:
//   - A unified collection interface for document operations
//   - Feature discovery through capability flags
//   - A closed error classification that carries protocol codes as data
//
// Key Components:
//
//   - ICollection Interface: The core interface that all collection
//     implementations must satisfy. It provides the write operations
//     (Insert, Update, Delete, FindAndModify), the read operations (Query,
//     Count, Distinct) and introspection (GetStats, Validate, GetInfo).
//
//   - IIndex Interface: A single-field unique index. Documents are referenced
//     by an opaque record id so an index never holds on to a document that
//     the collection has replaced.
//
//   - IEngine Interface: Creates collections and indexes. The database layer
//     only talks to an engine, which keeps it independent of a concrete
//     storage implementation (currently "memory").
//
//   - Feature Flags: The Feature type defines capability flags that
//     implementations advertise through SupportsFeature.
//
//   - Errors: Error couples an ErrorKind with the numeric protocol code and a
//     message. The kinds are:
//     1. KindDomain: protocol failures such as a duplicate key (11000) or an
//     insert into a system namespace (16459)
//     2. KindSilentNotFound: an expected absence ("ns not found"), only logged
//     at debug level
//     3. KindUnknownCommand: the command name is not supported
//     4. KindInternal: everything else
//
// Note on error propagation: write operations never raise errors to the
// client. The database layer stores them as the connection's last error,
// where getlasterror picks them up. Command and query errors are returned to
// the caller, which renders them as {ok: 0, errmsg, code}.
package db
