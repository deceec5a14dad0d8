package db

import (
	"iter"

	"go.mongodb.org/mongo-driver/bson"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMemory Implementation = "memory"
)

// Feature represents collection features as bit flags
type Feature uint64

const (
	FeatureInsert        Feature = 1 << iota // Support for Insert operations
	FeatureUpdate                            // Support for Update operations (operators, replacement, upsert)
	FeatureDelete                            // Support for Delete operations
	FeatureQuery                             // Support for Query and Count operations
	FeatureDistinct                          // Support for the distinct command
	FeatureFindAndModify                     // Support for the findAndModify command
	FeatureUniqueIndex                       // Support for unique indexes
	FeatureValidate                          // Support for the validate command
)

func (f Feature) String() string {
	switch f {
	case FeatureInsert:
		return "Insert"
	case FeatureUpdate:
		return "Update"
	case FeatureDelete:
		return "Delete"
	case FeatureQuery:
		return "Query"
	case FeatureDistinct:
		return "Distinct"
	case FeatureFindAndModify:
		return "FindAndModify"
	case FeatureUniqueIndex:
		return "UniqueIndex"
	case FeatureValidate:
		return "Validate"
	default:
		return "Unknown"
	}
}

// CollectionInfo holds the size figures the database aggregates for dbstats.
type CollectionInfo struct {
	Count             int            `json:"count"`
	DataSizeBytes     int            `json:"data_size_bytes"`
	IndexSizeBytes    int            `json:"index_size_bytes"`
	NumIndexes        int            `json:"num_indexes"`
	Impl              Implementation `json:"impl"`
	SupportedFeatures []Feature      `json:"supported_features"`
}

// --------------------------------------------------------------------------
// Index Interface
// --------------------------------------------------------------------------

// IIndex is a single-field index attached to a collection. Documents are
// referenced by an opaque record id handed out by the collection.
type IIndex interface {
	// Name returns the index name as stored in the index mirror (e.g. "_id_").
	Name() string

	// Field returns the indexed field.
	Field() string

	// Ascending reports the key direction.
	Ascending() bool

	// Check returns a duplicate key error if adding doc would violate the
	// index. The entry owned by record id self is ignored, so a document can
	// be checked against the index while it is being replaced.
	Check(ns string, doc bson.D, self uint64) error

	// Add registers doc under record id. It fails like Check.
	Add(ns string, doc bson.D, id uint64) error

	// Remove drops the entry of doc if it is owned by record id.
	Remove(doc bson.D, id uint64)

	// Lookup returns the record id for an exact key value.
	Lookup(value any) (id uint64, ok bool)

	// Count returns the number of indexed entries.
	Count() int

	// SizeBytes estimates the memory used by the index.
	SizeBytes() int
}

// --------------------------------------------------------------------------
// Collection Interface
// --------------------------------------------------------------------------

// ICollection defines the behaviour of a single named collection of documents.
// Implementations must be safe for concurrent use by multiple connections.
type ICollection interface {

	// --------------------------------------------------------------------------
	// Naming
	// --------------------------------------------------------------------------

	// DatabaseName returns the name of the owning database.
	DatabaseName() string

	// Name returns the collection name without the database prefix.
	Name() string

	// FullName returns "<database>.<collection>".
	FullName() string

	// IDField returns the primary key field ("_id") or "" for collections
	// without a primary key, such as the namespace and index mirrors.
	IDField() string

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Insert stores the documents in order. A document without a primary key
	// gets a fresh ObjectId. Insertion stops at the first failure, documents
	// inserted before it stay. The number of stored documents is returned.
	Insert(docs ...bson.D) (n int, err error)

	// Update applies update (a replacement document or a set of update
	// operators) to the first (or, with multi, every) document matching
	// selector. With upsert a document is created if nothing matched.
	// The result document has the shape {n, updatedExisting[, upserted]}.
	Update(selector, update bson.D, upsert, multi bool) (result bson.D, err error)

	// Delete removes up to limit documents matching selector (0 means all).
	Delete(selector bson.D, limit int) (n int, err error)

	// FindAndModify runs the findAndModify command against the collection.
	FindAndModify(cmd bson.D) (result bson.D, err error)

	// AddIndex attaches an index. Existing documents are added to it.
	AddIndex(index IIndex) error

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Query returns the documents matching filter. filter may be wrapped as
	// {$query: ..., $orderby: ...}. A negative limit is treated as its
	// absolute value, 0 means no limit. The returned documents are copies.
	Query(filter bson.D, skip, limit int, projection bson.D) (iter.Seq[bson.D], error)

	// Count returns the number of documents matching filter.
	Count(filter bson.D) (n int, err error)

	// Distinct runs the distinct command ({distinct, key, query}).
	Distinct(cmd bson.D) (result bson.D, err error)

	// --------------------------------------------------------------------------
	// Introspection
	// --------------------------------------------------------------------------

	// GetStats returns the collstats document.
	GetStats() bson.D

	// Validate returns the validate command result.
	Validate() bson.D

	// GetNumIndexes returns the number of attached indexes.
	GetNumIndexes() int

	// SupportsFeature checks if the implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns size figures about the collection.
	GetInfo() (info CollectionInfo)
}

// --------------------------------------------------------------------------
// Engine Interface
// --------------------------------------------------------------------------

// IEngine creates collections and indexes for a storage implementation.
type IEngine interface {
	// NewCollection creates an empty collection. idField is "" for
	// collections without a primary key.
	NewCollection(database, name, idField string) ICollection

	// NewUniqueIndex creates an empty unique index on field. An empty name
	// is derived from the field and direction (e.g. "_id_").
	NewUniqueIndex(field, name string, ascending bool) IIndex
}
