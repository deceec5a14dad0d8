// Package lstore implements a local, in-memory database backend based on the
// store.IDatabase and store.IBackend interfaces. Collections are created by a
// db.IEngine and all state is lost when the process exits.
//
// Key Features:
//   - Collections created on demand by writes, index registration and findAndModify
//   - Namespace and index mirrors (system.namespaces, system.indexes) kept in
//     sync with the live collections
//   - Per connection write acknowledgement consumed by getlasterror
//   - Command dispatch for count, getlasterror, distinct, drop, dropDatabase,
//     dbStats, collStats, validate, findAndModify, create and createIndexes
//
// Implementation Details:
//
//   - Structural Lock: Every database holds one sync.RWMutex guarding its
//     collection map and the mirror entries written with it. Lookups take the
//     read lock; creation retakes the write lock and checks again, so two
//     connections racing to create the same collection observe one instance.
//     Document operations run outside the lock.
//
//   - Connection State: The outcome of the last write of a connection is kept
//     in two concurrent maps (lastError, lastUpdate). Every write clears both
//     before storing its own outcome, getlasterror removes what it returns and
//     HandleClose removes both when the transport reports a closed connection.
//
//   - Error Handling: Write failures are logged and stored instead of being
//     returned. Command failures are returned as *db.Error. Errors of kind
//     KindSilentNotFound (such as dropping an unknown collection) are only
//     logged at debug level.
//
//   - Index Registration: A descriptor {name, ns, key} is always mirrored.
//     Only a key consisting of exactly the field _id attaches a unique index
//     (descending for a direction other than 1). Other keys are recorded
//     without enforcement.
//
// Usage Example:
//
//	backend := lstore.NewLocalBackend(memory.NewEngine())
//	database, err := backend.Database("test")
//
//	database.HandleInsert(&store.Insert{Collection: "coll", Documents: docs, Conn: 1})
//	result, err := database.HandleCommand(1, "getlasterror", bson.D{{Key: "getlasterror", Value: 1}})
package lstore
