package testing

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dDB/lib/db"
	"go.mongodb.org/mongo-driver/bson"
)

// RunCollectionBenchmarks runs all benchmarks for the collections of an engine
func RunCollectionBenchmarks(b *testing.B, name string, engine db.IEngine) {

	b.Run("Insert", func(b *testing.B) {
		benchmarkInsert(b, newCollection(engine))
	})

	b.Run("QueryByID", func(b *testing.B) {
		benchmarkQueryByID(b, newCollection(engine))
	})

	b.Run("QueryScan", func(b *testing.B) {
		benchmarkQueryScan(b, newCollection(engine))
	})

	b.Run("UpdateByID", func(b *testing.B) {
		benchmarkUpdateByID(b, newCollection(engine))
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, newCollection(engine))
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func fill(b *testing.B, coll db.ICollection, n int) {
	b.Helper()
	for i := range n {
		doc := bson.D{
			{Key: "_id", Value: int64(i)},
			{Key: "group", Value: int32(i % 10)},
			{Key: "name", Value: fmt.Sprintf("doc-%d", i)},
		}
		if _, err := coll.Insert(doc); err != nil {
			b.Fatalf("fill failed: %v", err)
		}
	}
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Insert with generated ids
func benchmarkInsert(b *testing.B, coll db.ICollection) {
	requireFeature(b, coll, db.FeatureInsert)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = coll.Insert(bson.D{{Key: "v", Value: int32(1)}})
		}
	})
}

// Benchmark for primary key lookups (index fast path)
func benchmarkQueryByID(b *testing.B, coll db.ICollection) {
	requireFeature(b, coll, db.FeatureInsert|db.FeatureQuery)

	const size = 10_000
	fill(b, coll, size)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			seq, _ := coll.Query(bson.D{{Key: "_id", Value: int64(r.Intn(size))}}, 0, 1, nil)
			for range seq {
			}
		}
	})
}

// Benchmark for a full collection scan with a filter
func benchmarkQueryScan(b *testing.B, coll db.ICollection) {
	requireFeature(b, coll, db.FeatureInsert|db.FeatureQuery)

	fill(b, coll, 1_000)
	filter := bson.D{{Key: "group", Value: bson.D{{Key: "$gte", Value: 8}}}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		seq, _ := coll.Query(filter, 0, 0, nil)
		for range seq {
		}
	}
}

// Benchmark for $inc updates by primary key
func benchmarkUpdateByID(b *testing.B, coll db.ICollection) {
	requireFeature(b, coll, db.FeatureInsert|db.FeatureUpdate)

	const size = 1_000
	fill(b, coll, size)
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "counter", Value: int32(1)}}}}

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			id := counter.Add(1) % size
			_, _ = coll.Update(bson.D{{Key: "_id", Value: id}}, update, false, false)
		}
	})
}

// Benchmark for a realistic mix of reads and writes
func benchmarkMixedUsage(b *testing.B, coll db.ICollection) {
	requireFeature(b, coll, db.FeatureInsert|db.FeatureQuery|db.FeatureUpdate|db.FeatureDelete)

	const size = 1_000
	fill(b, coll, size)

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			id := int64(r.Intn(size))
			switch op := r.Intn(10); {
			case op < 6:
				seq, _ := coll.Query(bson.D{{Key: "_id", Value: id}}, 0, 1, nil)
				for range seq {
				}
			case op < 8:
				_, _ = coll.Update(bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: bson.D{{Key: "seen", Value: true}}}}, false, false)
			case op < 9:
				_, _ = coll.Insert(bson.D{{Key: "_id", Value: size + counter.Add(1)}})
			default:
				_, _ = coll.Delete(bson.D{{Key: "_id", Value: size + counter.Load()}}, 1)
			}
		}
	})
}
