package testing

import (
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/ValentinKolb/dDB/lib/db"
	"github.com/ValentinKolb/dDB/lib/document"
	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RunCollectionTests runs a comprehensive test suite for the collections and
// indexes created by an engine.
func RunCollectionTests(t *testing.T, name string, engine db.IEngine) {
	t.Run(name, func(t *testing.T) {
		t.Run("InsertQuery", func(t *testing.T) {
			testInsertQuery(t, newCollection(engine))
		})

		t.Run("DuplicateKey", func(t *testing.T) {
			testDuplicateKey(t, newCollection(engine))
		})

		t.Run("QueryReturnsCopies", func(t *testing.T) {
			testQueryReturnsCopies(t, newCollection(engine))
		})

		t.Run("SkipLimit", func(t *testing.T) {
			testSkipLimit(t, newCollection(engine))
		})

		t.Run("SortProjection", func(t *testing.T) {
			testSortProjection(t, newCollection(engine))
		})

		t.Run("Update", func(t *testing.T) {
			testUpdate(t, newCollection(engine))
		})

		t.Run("Upsert", func(t *testing.T) {
			testUpsert(t, newCollection(engine))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, newCollection(engine))
		})

		t.Run("Distinct", func(t *testing.T) {
			testDistinct(t, newCollection(engine))
		})

		t.Run("FindAndModify", func(t *testing.T) {
			testFindAndModify(t, newCollection(engine))
		})

		t.Run("StatsValidate", func(t *testing.T) {
			testStatsValidate(t, newCollection(engine))
		})

		t.Run("NoPrimaryKey", func(t *testing.T) {
			testNoPrimaryKey(t, engine)
		})

		t.Run("ConcurrentAccess", func(t *testing.T) {
			testConcurrentAccess(t, newCollection(engine))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// newCollection creates "test.coll" with a unique index on _id
func newCollection(engine db.IEngine) db.ICollection {
	coll := engine.NewCollection("test", "coll", "_id")
	if err := coll.AddIndex(engine.NewUniqueIndex("_id", "", true)); err != nil {
		panic(err)
	}
	return coll
}

// Checks if the collection supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, coll db.ICollection, feature db.Feature) {
	if !coll.SupportsFeature(feature) {
		t.Skip()
	}
}

func queryAll(t testing.TB, coll db.ICollection, filter, projection bson.D, skip, limit int) []bson.D {
	t.Helper()
	seq, err := coll.Query(filter, skip, limit, projection)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	return slices.Collect(seq)
}

func field(doc bson.D, key string) any {
	v, _ := document.Get(doc, key)
	return v
}

func errorCode(err error) int {
	if err == nil {
		return 0
	}
	return db.AsError(err).Code
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testInsertQuery(t *testing.T, coll db.ICollection) {
	requireFeature(t, coll, db.FeatureInsert|db.FeatureQuery)

	n, err := coll.Insert(
		bson.D{{Key: "_id", Value: int32(1)}, {Key: "name", Value: "a"}},
		bson.D{{Key: "name", Value: "b"}},
		bson.D{{Key: "name", Value: "c"}, {Key: "_id", Value: "c"}},
	)
	if err != nil || n != 3 {
		t.Fatalf("Expected 3 inserted documents, got %d (%v)", n, err)
	}

	docs := queryAll(t, coll, bson.D{}, nil, 0, 0)
	if len(docs) != 3 {
		t.Fatalf("Expected 3 documents, got %d", len(docs))
	}

	names := make([]any, len(docs))
	for i, d := range docs {
		names[i] = field(d, "name")
		if d[0].Key != "_id" {
			t.Errorf("Expected _id to be the first field, got %v", d)
		}
	}
	if diff := cmp.Diff([]any{"a", "b", "c"}, names); diff != "" {
		t.Errorf("Documents not in insertion order (-want +got):\n%s", diff)
	}

	if _, ok := field(docs[1], "_id").(primitive.ObjectID); !ok {
		t.Errorf("Expected generated ObjectId, got %T", field(docs[1], "_id"))
	}

	byID := queryAll(t, coll, bson.D{{Key: "_id", Value: 1.0}}, nil, 0, 0)
	if len(byID) != 1 || field(byID[0], "name") != "a" {
		t.Errorf("Expected lookup by numerically equal _id to find a, got %v", byID)
	}

	if _, err := coll.Insert(bson.D{{Key: "_id", Value: bson.A{1, 2}}}); err == nil {
		t.Errorf("Expected array _id to be rejected")
	}
}

func testDuplicateKey(t *testing.T, coll db.ICollection) {
	requireFeature(t, coll, db.FeatureInsert|db.FeatureUniqueIndex)

	if _, err := coll.Insert(bson.D{{Key: "_id", Value: int32(1)}}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	_, err := coll.Insert(bson.D{{Key: "_id", Value: int64(1)}})
	if errorCode(err) != db.CodeDuplicateKey {
		t.Errorf("Expected duplicate key error, got %v", err)
	}

	n, err := coll.Insert(
		bson.D{{Key: "_id", Value: int32(2)}},
		bson.D{{Key: "_id", Value: int32(1)}},
		bson.D{{Key: "_id", Value: int32(3)}},
	)
	if n != 1 || errorCode(err) != db.CodeDuplicateKey {
		t.Errorf("Expected batch to stop after 1 document with duplicate key, got %d (%v)", n, err)
	}

	if count, _ := coll.Count(nil); count != 2 {
		t.Errorf("Expected 2 documents, got %d", count)
	}
}

func testQueryReturnsCopies(t *testing.T, coll db.ICollection) {
	requireFeature(t, coll, db.FeatureInsert|db.FeatureQuery)

	original := bson.D{{Key: "_id", Value: int32(1)}, {Key: "sub", Value: bson.D{{Key: "v", Value: "x"}}}}
	if _, err := coll.Insert(original); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// mutating the input must not affect the stored document
	original[1].Value.(bson.D)[0].Value = "changed"

	docs := queryAll(t, coll, nil, nil, 0, 0)
	docs[0][1].Value.(bson.D)[0].Value = "mutated"

	again := queryAll(t, coll, nil, nil, 0, 0)
	if v, _ := document.Lookup(again[0], "sub.v"); v != "x" {
		t.Errorf("Stored document was modified through a reference, got %v", v)
	}
}

func testSkipLimit(t *testing.T, coll db.ICollection) {
	requireFeature(t, coll, db.FeatureInsert|db.FeatureQuery)

	for i := range 10 {
		if _, err := coll.Insert(bson.D{{Key: "_id", Value: int32(i)}}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	cases := []struct {
		skip, limit int
		want        []any
	}{
		{0, 0, []any{int32(0), int32(1), int32(2), int32(3), int32(4), int32(5), int32(6), int32(7), int32(8), int32(9)}},
		{2, 3, []any{int32(2), int32(3), int32(4)}},
		{0, -2, []any{int32(0), int32(1)}},
		{8, 5, []any{int32(8), int32(9)}},
		{20, 0, []any{}},
	}

	for _, c := range cases {
		docs := queryAll(t, coll, nil, nil, c.skip, c.limit)
		ids := make([]any, 0, len(docs))
		for _, d := range docs {
			ids = append(ids, field(d, "_id"))
		}
		if diff := cmp.Diff(c.want, ids); diff != "" {
			t.Errorf("skip=%d limit=%d (-want +got):\n%s", c.skip, c.limit, diff)
		}
	}

	if n, _ := coll.Count(bson.D{{Key: "_id", Value: bson.D{{Key: "$gte", Value: 5}}}}); n != 5 {
		t.Errorf("Expected count 5, got %d", n)
	}
}

func testSortProjection(t *testing.T, coll db.ICollection) {
	requireFeature(t, coll, db.FeatureInsert|db.FeatureQuery)

	_, _ = coll.Insert(
		bson.D{{Key: "_id", Value: int32(1)}, {Key: "v", Value: int32(2)}, {Key: "x", Value: "a"}},
		bson.D{{Key: "_id", Value: int32(2)}, {Key: "v", Value: int32(3)}, {Key: "x", Value: "b"}},
		bson.D{{Key: "_id", Value: int32(3)}, {Key: "v", Value: int32(1)}, {Key: "x", Value: "c"}},
	)

	filter := bson.D{
		{Key: "$query", Value: bson.D{}},
		{Key: "$orderby", Value: bson.D{{Key: "v", Value: -1}}},
	}
	docs := queryAll(t, coll, filter, bson.D{{Key: "x", Value: 1}, {Key: "_id", Value: 0}}, 0, 2)

	want := []bson.D{
		{{Key: "x", Value: "b"}},
		{{Key: "x", Value: "a"}},
	}
	if diff := cmp.Diff(want, docs); diff != "" {
		t.Errorf("Unexpected sorted projection (-want +got):\n%s", diff)
	}

	if _, err := coll.Query(nil, 0, 0, bson.D{{Key: "x", Value: 1}, {Key: "v", Value: 0}}); err == nil {
		t.Errorf("Expected mixed projection to fail")
	}
}

func testUpdate(t *testing.T, coll db.ICollection) {
	requireFeature(t, coll, db.FeatureInsert|db.FeatureUpdate)

	_, _ = coll.Insert(
		bson.D{{Key: "_id", Value: int32(1)}, {Key: "n", Value: int32(1)}, {Key: "g", Value: "a"}},
		bson.D{{Key: "_id", Value: int32(2)}, {Key: "n", Value: int32(1)}, {Key: "g", Value: "a"}},
		bson.D{{Key: "_id", Value: int32(3)}, {Key: "n", Value: int32(1)}, {Key: "g", Value: "b"}},
	)

	inc := bson.D{{Key: "$inc", Value: bson.D{{Key: "n", Value: int32(1)}}}}

	result, err := coll.Update(bson.D{{Key: "g", Value: "a"}}, inc, false, false)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	want := bson.D{{Key: "n", Value: int32(1)}, {Key: "updatedExisting", Value: true}}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("Unexpected update result (-want +got):\n%s", diff)
	}

	result, _ = coll.Update(bson.D{{Key: "g", Value: "a"}}, inc, false, true)
	if field(result, "n") != int32(2) {
		t.Errorf("Expected multi update to modify 2 documents, got %v", result)
	}

	docs := queryAll(t, coll, bson.D{{Key: "_id", Value: int32(1)}}, nil, 0, 0)
	if field(docs[0], "n") != int32(3) {
		t.Errorf("Expected n=3, got %v", docs[0])
	}

	if _, err := coll.Update(bson.D{}, bson.D{{Key: "g", Value: "c"}}, false, true); err == nil {
		t.Errorf("Expected multi replacement to fail")
	}

	_, err = coll.Update(bson.D{{Key: "_id", Value: int32(1)}}, bson.D{{Key: "$set", Value: bson.D{{Key: "_id", Value: int32(2)}}}}, false, false)
	if errorCode(err) != db.CodeImmutableField {
		t.Errorf("Expected immutable field error, got %v", err)
	}

	// replacement keeps the id and the record position
	_, err = coll.Update(bson.D{{Key: "_id", Value: int32(1)}}, bson.D{{Key: "r", Value: true}}, false, false)
	if err != nil {
		t.Fatalf("Replacement failed: %v", err)
	}
	first := queryAll(t, coll, nil, nil, 0, 1)[0]
	if diff := cmp.Diff(bson.D{{Key: "_id", Value: int32(1)}, {Key: "r", Value: true}}, first); diff != "" {
		t.Errorf("Unexpected replaced document (-want +got):\n%s", diff)
	}

	result, _ = coll.Update(bson.D{{Key: "g", Value: "zzz"}}, inc, false, false)
	if field(result, "n") != int32(0) || field(result, "updatedExisting") != false {
		t.Errorf("Expected no match, got %v", result)
	}
}

func testUpsert(t *testing.T, coll db.ICollection) {
	requireFeature(t, coll, db.FeatureUpdate)

	result, err := coll.Update(
		bson.D{{Key: "_id", Value: int32(5)}, {Key: "k", Value: "v"}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "x", Value: int32(1)}}}},
		true, false,
	)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	want := bson.D{
		{Key: "n", Value: int32(1)},
		{Key: "updatedExisting", Value: false},
		{Key: "upserted", Value: int32(5)},
	}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("Unexpected upsert result (-want +got):\n%s", diff)
	}

	docs := queryAll(t, coll, nil, nil, 0, 0)
	wantDoc := bson.D{{Key: "_id", Value: int32(5)}, {Key: "k", Value: "v"}, {Key: "x", Value: int32(1)}}
	if len(docs) != 1 {
		t.Fatalf("Expected 1 document, got %d", len(docs))
	}
	if diff := cmp.Diff(wantDoc, docs[0]); diff != "" {
		t.Errorf("Unexpected upserted document (-want +got):\n%s", diff)
	}

	// replacement upsert without _id gets a generated one
	result, _ = coll.Update(bson.D{{Key: "k", Value: "other"}}, bson.D{{Key: "k", Value: "new"}}, true, false)
	if _, ok := field(result, "upserted").(primitive.ObjectID); !ok {
		t.Errorf("Expected generated ObjectId as upserted id, got %v", result)
	}
}

func testDelete(t *testing.T, coll db.ICollection) {
	requireFeature(t, coll, db.FeatureInsert|db.FeatureDelete)

	for i := range 6 {
		_, _ = coll.Insert(bson.D{{Key: "_id", Value: int32(i)}, {Key: "even", Value: i%2 == 0}})
	}

	n, err := coll.Delete(bson.D{{Key: "even", Value: true}}, 1)
	if err != nil || n != 1 {
		t.Errorf("Expected single delete, got %d (%v)", n, err)
	}

	n, _ = coll.Delete(bson.D{{Key: "even", Value: true}}, 0)
	if n != 2 {
		t.Errorf("Expected 2 deleted documents, got %d", n)
	}

	if count, _ := coll.Count(nil); count != 3 {
		t.Errorf("Expected 3 remaining documents, got %d", count)
	}

	// deleted keys can be reused
	if _, err := coll.Insert(bson.D{{Key: "_id", Value: int32(0)}}); err != nil {
		t.Errorf("Expected reinsert of deleted key to succeed, got %v", err)
	}

	n, _ = coll.Delete(bson.D{{Key: "_id", Value: "missing"}}, 0)
	if n != 0 {
		t.Errorf("Expected nothing deleted, got %d", n)
	}
}

func testDistinct(t *testing.T, coll db.ICollection) {
	requireFeature(t, coll, db.FeatureDistinct)

	_, _ = coll.Insert(
		bson.D{{Key: "c", Value: "red"}, {Key: "k", Value: int32(1)}},
		bson.D{{Key: "c", Value: "blue"}, {Key: "k", Value: int32(2)}},
		bson.D{{Key: "c", Value: bson.A{"red", "green"}}, {Key: "k", Value: int32(3)}},
		bson.D{{Key: "k", Value: int32(4)}},
	)

	result, err := coll.Distinct(bson.D{{Key: "distinct", Value: "coll"}, {Key: "key", Value: "c"}})
	if err != nil {
		t.Fatalf("Distinct failed: %v", err)
	}
	want := bson.D{{Key: "values", Value: bson.A{"red", "blue", "green"}}, {Key: "ok", Value: 1.0}}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("Unexpected distinct result (-want +got):\n%s", diff)
	}

	result, _ = coll.Distinct(bson.D{
		{Key: "key", Value: "c"},
		{Key: "query", Value: bson.D{{Key: "k", Value: bson.D{{Key: "$gt", Value: 1}}}}},
	})
	if diff := cmp.Diff(bson.A{"blue", "red", "green"}, field(result, "values")); diff != "" {
		t.Errorf("Unexpected filtered distinct (-want +got):\n%s", diff)
	}
}

func testFindAndModify(t *testing.T, coll db.ICollection) {
	requireFeature(t, coll, db.FeatureFindAndModify)

	_, _ = coll.Insert(
		bson.D{{Key: "_id", Value: int32(1)}, {Key: "q", Value: int32(5)}},
		bson.D{{Key: "_id", Value: int32(2)}, {Key: "q", Value: int32(9)}},
	)

	result, err := coll.FindAndModify(bson.D{
		{Key: "findandmodify", Value: "coll"},
		{Key: "sort", Value: bson.D{{Key: "q", Value: -1}}},
		{Key: "update", Value: bson.D{{Key: "$inc", Value: bson.D{{Key: "q", Value: int32(1)}}}}},
		{Key: "new", Value: true},
	})
	if err != nil {
		t.Fatalf("FindAndModify failed: %v", err)
	}
	want := bson.D{
		{Key: "lastErrorObject", Value: bson.D{{Key: "updatedExisting", Value: true}, {Key: "n", Value: int32(1)}}},
		{Key: "value", Value: bson.D{{Key: "_id", Value: int32(2)}, {Key: "q", Value: int32(10)}}},
		{Key: "ok", Value: 1.0},
	}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("Unexpected findAndModify result (-want +got):\n%s", diff)
	}

	result, _ = coll.FindAndModify(bson.D{
		{Key: "query", Value: bson.D{{Key: "_id", Value: int32(1)}}},
		{Key: "remove", Value: true},
	})
	if v, _ := document.Lookup(result, "value.q"); v != int32(5) {
		t.Errorf("Expected removed document to be returned, got %v", result)
	}
	if n, _ := coll.Count(nil); n != 1 {
		t.Errorf("Expected 1 remaining document, got %d", n)
	}

	result, _ = coll.FindAndModify(bson.D{
		{Key: "query", Value: bson.D{{Key: "_id", Value: int32(7)}}},
		{Key: "update", Value: bson.D{{Key: "$set", Value: bson.D{{Key: "q", Value: int32(0)}}}}},
		{Key: "upsert", Value: true},
		{Key: "new", Value: true},
	})
	if v, _ := document.Lookup(result, "lastErrorObject.upserted"); v != int32(7) {
		t.Errorf("Expected upsert of _id 7, got %v", result)
	}

	if _, err := coll.FindAndModify(bson.D{{Key: "query", Value: bson.D{}}}); err == nil {
		t.Errorf("Expected error without update or remove")
	}
}

func testStatsValidate(t *testing.T, coll db.ICollection) {
	requireFeature(t, coll, db.FeatureValidate)

	empty := coll.GetStats()
	if field(empty, "avgObjSize") != 0.0 || field(empty, "count") != int32(0) {
		t.Errorf("Unexpected stats for empty collection: %v", empty)
	}

	_, _ = coll.Insert(bson.D{{Key: "_id", Value: int32(1)}}, bson.D{{Key: "_id", Value: int32(2)}})

	stats := coll.GetStats()
	if field(stats, "ns") != "test.coll" || field(stats, "count") != int32(2) || field(stats, "nindexes") != int32(1) {
		t.Errorf("Unexpected stats: %v", stats)
	}
	// {_id: int32} is 14 bytes
	if field(stats, "size") != int64(28) || field(stats, "avgObjSize") != 14.0 {
		t.Errorf("Unexpected sizes: %v", stats)
	}
	if field(stats, "paddingFactor") != 1.0 || field(stats, "ok") != 1.0 {
		t.Errorf("Unexpected constants: %v", stats)
	}

	validate := coll.Validate()
	if field(validate, "valid") != true || field(validate, "nrecords") != int32(2) {
		t.Errorf("Unexpected validate result: %v", validate)
	}
	if v, _ := document.Lookup(validate, "keysPerIndex._id_"); v != int32(2) {
		t.Errorf("Expected 2 keys in _id_, got %v", v)
	}

	info := coll.GetInfo()
	if info.Count != 2 || info.NumIndexes != 1 || info.DataSizeBytes != 28 {
		t.Errorf("Unexpected info: %+v", info)
	}
}

func testNoPrimaryKey(t *testing.T, engine db.IEngine) {
	coll := engine.NewCollection("test", "system.namespaces", "")

	_, err := coll.Insert(bson.D{{Key: "name", Value: "test.a"}}, bson.D{{Key: "name", Value: "test.a"}})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	docs := queryAll(t, coll, nil, nil, 0, 0)
	if len(docs) != 2 {
		t.Fatalf("Expected 2 documents, got %d", len(docs))
	}
	if document.Has(docs[0], "_id") {
		t.Errorf("Expected no generated _id, got %v", docs[0])
	}
	if coll.GetNumIndexes() != 0 {
		t.Errorf("Expected no indexes, got %d", coll.GetNumIndexes())
	}
}

func testConcurrentAccess(t *testing.T, coll db.ICollection) {
	requireFeature(t, coll, db.FeatureInsert|db.FeatureQuery|db.FeatureUpdate)

	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range perWorker {
				id := fmt.Sprintf("%d-%d", w, i)
				if _, err := coll.Insert(bson.D{{Key: "_id", Value: id}, {Key: "n", Value: int32(0)}}); err != nil {
					t.Errorf("Insert %s failed: %v", id, err)
					return
				}
				if _, err := coll.Update(bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$inc", Value: bson.D{{Key: "n", Value: int32(1)}}}}, false, false); err != nil {
					t.Errorf("Update %s failed: %v", id, err)
					return
				}
				if _, err := coll.Query(bson.D{{Key: "_id", Value: id}}, 0, 1, nil); err != nil {
					t.Errorf("Query %s failed: %v", id, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	n, _ := coll.Count(bson.D{{Key: "n", Value: int32(1)}})
	if n != workers*perWorker {
		t.Errorf("Expected %d updated documents, got %d", workers*perWorker, n)
	}
	if v := coll.Validate(); field(v, "valid") != true {
		t.Errorf("Collection invalid after concurrent access: %v", v)
	}
}
