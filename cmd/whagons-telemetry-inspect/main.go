// Command whagons-telemetry-inspect prints the state of a telemetry queue
// database: total queued rows, rows per category, and optionally every
// queued record.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/spf13/pflag"

	telemetry "github.com/Whagons-International/whagons5-telemetry"
	"github.com/Whagons-International/whagons5-telemetry/sqlite"
)

const exitUsage = 2

func main() {
	var (
		database string
		dump     bool
		asJSON   bool
	)

	pflag.StringVar(&database, "db", "", "Path to the telemetry queue database")
	pflag.BoolVar(&dump, "dump", false, "Print every queued record")
	pflag.BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")
	pflag.Parse()

	if database == "" {
		fmt.Fprintln(os.Stderr, "db is required")
		pflag.Usage()
		os.Exit(exitUsage)
	}

	if err := run(database, dump, asJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type report struct {
	QueueSize  int                        `json:"queue_size"`
	Categories map[telemetry.Category]int `json:"categories"`
	Records    []telemetry.Record         `json:"records,omitempty"`
}

func run(database string, dump, asJSON bool) error {
	store, err := sqlite.NewStore(database)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		return err
	}

	out := report{}
	if out.QueueSize, err = store.QueueSize(ctx); err != nil {
		return err
	}
	if out.Categories, err = store.CountByCategory(ctx); err != nil {
		return err
	}
	if dump {
		if out.Records, err = store.PendingErrors(ctx); err != nil {
			return err
		}
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	fmt.Printf("queued: %d\n", out.QueueSize)
	categories := make([]string, 0, len(out.Categories))
	for category := range out.Categories {
		categories = append(categories, string(category))
	}
	sort.Strings(categories)
	for _, category := range categories {
		fmt.Printf("  %-10s %d\n", category, out.Categories[telemetry.Category(category)])
	}
	for _, record := range out.Records {
		fmt.Printf("%s  %s  retries=%d  %s\n",
			record.ID, record.Category, record.RetryCount, record.Message)
	}

	return nil
}
