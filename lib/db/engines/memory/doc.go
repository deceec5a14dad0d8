// Package memory implements the in-memory storage engine: document collections
// and unique single-field indexes satisfying the db.ICollection and db.IIndex
// contracts.
//
// The package focuses on:
//   - Keeping documents in natural (insertion) order with stable record ids
//   - Enforcing unique indexes before any mutation becomes visible
//   - Answering exact primary key lookups through the index instead of a scan
//   - Returning copies, so callers can never modify stored documents
//
// Key Components:
//
//   - collectionImpl: Holds the records of one collection behind a single
//     RWMutex. Writers (Insert, Update, Delete, FindAndModify, AddIndex) take
//     the write lock, readers (Query, Count, Distinct, GetStats, Validate)
//     take the read lock and copy the matching documents before releasing it.
//     Every document gets a record id handed out by a per-collection counter,
//     indexes refer to documents only through these ids.
//
//   - UniqueIndex: Maps the canonical key of a field value (see document.Key)
//     onto the record id holding it. Numerically equal values of different
//     BSON types share a key, so {_id: 1} and {_id: 1.0} collide. Documents
//     missing the field are indexed under null.
//
//   - internal: Query matching, update operators, projection and sorting.
//     These operate on plain bson.D values and know nothing about storage.
//
// Collections created with an empty id field (the namespace and index
// mirrors of a database) get no primary key and no index.
//
// Thread-safety: all exported types are safe for concurrent use.
package memory
