package memory

import (
	"testing"

	dbtesting "github.com/ValentinKolb/dDB/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunCollectionTests(t, "Memory", NewEngine())
}

func Benchmark(b *testing.B) {
	dbtesting.RunCollectionBenchmarks(b, "Memory", NewEngine())
}
