// Package testing provides standardised tests and benchmarks for storage
// engines that satisfy the db.IEngine interface.
//
// The package contains:
//   - testing: A comprehensive test suite for validating conformance to the ICollection and IIndex contracts
//   - benchmark: Performance tests for measuring throughput of common collection operations
//
// Every test creates the collection "test.coll" with a unique ascending
// index on _id, the layout a database gives its user collections.
//
// Example usage:
//
//	// Running the standard test suite
//	dbtesting.RunCollectionTests(t, "MyEngine", NewMyEngine())
//
//	// Running performance benchmarks
//	dbtesting.RunCollectionBenchmarks(b, "MyEngine", NewMyEngine())
package testing
