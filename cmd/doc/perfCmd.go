package doc

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dDB/cmd/util"
	"github.com/ValentinKolb/dDB/rpc/client"
	"github.com/ValentinKolb/dDB/rpc/common"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for dDB servers",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfNamespace        = "__perf.docs"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfDocSpread        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. insert,find)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of connections to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the payload for the insert-large test should be (in KB)"))
	key = "docs"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different documents to use for the tests"))
	key = "namespace"
	perfTestCmd.Flags().String(key, "__perf.docs", util.WrapString("The collection used by the benchmark. It is dropped afterwards"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfDocSpread = viper.GetInt("docs")
	perfNumThreads = viper.GetInt("threads")
	perfNamespace = viper.GetString("namespace")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfDocSpread <= 0 {
		return fmt.Errorf("docs must be positive, got %d", perfDocSpread)
	}
	if !strings.Contains(perfNamespace, ".") {
		return fmt.Errorf("expected <db>.<collection> as namespace, got %q", perfNamespace)
	}
	return nil
}

// benchmark describes one test. setup runs once before the timer starts, op
// is run by every connection with an increasing counter.
type benchmark struct {
	name  string
	setup bool
	op    func(c *client.RPCClient, i int) error
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for dDB servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("staring tests...")

	largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)
	database, _, _ := strings.Cut(perfNamespace, ".")

	benchmarks := []benchmark{
		{name: "insert", op: func(c *client.RPCClient, i int) error {
			if err := c.Insert(perfNamespace, fakeDoc(i)); err != nil {
				return err
			}
			_, err := c.GetLastError(database)
			return err
		}},
		{name: "insert-large", op: func(c *client.RPCClient, _ int) error {
			if err := c.Insert(perfNamespace, bson.D{{Key: "v", Value: largeValue}}); err != nil {
				return err
			}
			_, err := c.GetLastError(database)
			return err
		}},
		{name: "find-id", setup: true, op: func(c *client.RPCClient, i int) error {
			_, err := c.Find(perfNamespace, bson.D{{Key: "_id", Value: docID(i)}}, 0, 1, nil)
			return err
		}},
		{name: "find-scan", setup: true, op: func(c *client.RPCClient, i int) error {
			_, err := c.Find(perfNamespace, bson.D{{Key: "n", Value: bson.D{{Key: "$gte", Value: int32(i % perfDocSpread)}}}}, 0, 10, nil)
			return err
		}},
		{name: "update", setup: true, op: func(c *client.RPCClient, i int) error {
			update := bson.D{{Key: "$inc", Value: bson.D{{Key: "n", Value: int32(1)}}}}
			if err := c.Update(perfNamespace, bson.D{{Key: "_id", Value: docID(i)}}, update, false, false); err != nil {
				return err
			}
			_, err := c.GetLastError(database)
			return err
		}},
		{name: "count", setup: true, op: func(c *client.RPCClient, _ int) error {
			_, collection, _ := strings.Cut(perfNamespace, ".")
			_, err := c.RunCommand(database, bson.D{{Key: "count", Value: collection}})
			return err
		}},
		{name: "mixed", setup: true, op: func(c *client.RPCClient, i int) error {
			var err error
			switch i % 3 {
			case 0: // upsert
				err = c.Update(perfNamespace, bson.D{{Key: "_id", Value: docID(i)}}, bson.D{{Key: "$set", Value: bson.D{{Key: "v", Value: "test"}}}}, true, false)
			case 1: // find
				_, err = c.Find(perfNamespace, bson.D{{Key: "_id", Value: docID(i)}}, 0, 1, nil)
			case 2: // remove
				err = c.Delete(perfNamespace, bson.D{{Key: "_id", Value: docID(i)}}, true)
			}
			if err != nil {
				return err
			}
			_, err = c.GetLastError(database)
			return err
		}},
	}

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	for _, bm := range benchmarks {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(bm.name) {
				return
			}

			// cleanup
			b.Cleanup(dropCollection)

			if bm.setup {
				if err := insertDocs(); err != nil {
					log.Printf("(%s) - error preparing documents: %v\n", bm.name, err)
					return
				}
			}

			b.SetParallelism(perfNumThreads)

			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				// every goroutine has its own connection, getlasterror is per connection
				c, err := util.NewClient()
				if err != nil {
					log.Printf("(%s) - error connecting: %v\n", bm.name, err)
					return
				}
				defer c.Close()

				counter := 0
				for pb.Next() {
					if err := bm.op(c, counter); err != nil {
						log.Printf("(%s) - error: %v\n", bm.name, err)
					}
					counter++
				}
			})
		})

		results[bm.name] = result
		printResult(bm.name, result)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// docID returns the _id of the i-th test document (with wraparound)
func docID(i int) string {
	return fmt.Sprintf("doc-%d", i%perfDocSpread)
}

// fakeDoc returns a person-like document without _id
func fakeDoc(i int) bson.D {
	return bson.D{
		{Key: "n", Value: int32(i % perfDocSpread)},
		{Key: "name", Value: gofakeit.Name()},
		{Key: "email", Value: gofakeit.Email()},
		{Key: "age", Value: int32(gofakeit.IntRange(18, 90))},
		{Key: "address", Value: bson.D{
			{Key: "city", Value: gofakeit.City()},
			{Key: "zip", Value: gofakeit.Zip()},
		}},
	}
}

// insertDocs inserts the test documents used by the read and update tests
func insertDocs() error {
	docs := make([]bson.D, perfDocSpread)
	for i := range docs {
		docs[i] = append(bson.D{{Key: "_id", Value: docID(i)}}, fakeDoc(i)...)
	}
	if err := rpcClient.Insert(perfNamespace, docs...); err != nil {
		return err
	}
	_, err := rpcClient.GetLastError(perfNamespace)
	return err
}

// dropCollection removes the test collection
func dropCollection() {
	database, collection, _ := strings.Cut(perfNamespace, ".")
	if _, err := rpcClient.RunCommand(database, bson.D{{Key: "drop", Value: collection}}); err != nil {
		log.Printf("error dropping %s: %v\n", perfNamespace, err)
	}
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file. The file is
// replaced atomically, a failed export leaves an existing file untouched.
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoint", "TimeoutSec", "Transport",
		"Threads", "LargeValueSizeKB", "Docs Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			config.Transport.Endpoint,
			strconv.Itoa(config.TimeoutSecond),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfDocSpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return atomic.WriteFile(csvPath, &buf)
}
