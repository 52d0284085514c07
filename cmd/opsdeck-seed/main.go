// Command opsdeck-seed writes a synthetic run log for demos and local
// development. The output is deterministic for a given seed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/arclight-ai/opsdeck/internal/seed"
	"github.com/arclight-ai/opsdeck/internal/store"
)

func main() {
	var (
		out     = flag.String("out", "data/agent_runs.csv", "output CSV path")
		rows    = flag.Int("rows", 0, "number of rows to generate (0 = default 220)")
		seedVal = flag.Int64("seed", 0, "random seed (0 = default 42)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	opts := seed.DefaultOptions()
	if *rows > 0 {
		opts.Rows = *rows
	}
	if *seedVal != 0 {
		opts.Seed = *seedVal
	}

	if _, err := os.Stat(*out); err == nil {
		fmt.Fprintf(os.Stderr, "refusing to overwrite existing log %s\n", *out)
		os.Exit(1)
	}

	records := seed.Generate(opts)

	ctx := context.Background()
	st := store.New(*out, logger)
	for _, rec := range records {
		if err := st.Append(ctx, rec); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
			os.Exit(1)
		}
	}

	accepted := 0
	totalSaved := 0.0
	for _, r := range records {
		if r.UserAccepted {
			accepted++
		}
		totalSaved += r.TimeSavedMinutes
	}
	fmt.Printf("wrote %d rows to %s\n", len(records), *out)
	fmt.Printf("  date range: %s to %s\n",
		records[0].Timestamp.Format("2006-01-02"),
		records[len(records)-1].Timestamp.Format("2006-01-02"))
	fmt.Printf("  acceptance rate: %.1f%%\n", float64(accepted)/float64(len(records))*100)
	fmt.Printf("  total time saved: %.0f minutes (%.1f hours)\n", totalSaved, totalSaved/60)
}
