package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/justinmeimar/performative/go-sim/internal/ledger"
	"github.com/justinmeimar/performative/go-sim/internal/replay"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the run ledger")
	runID := flag.String("run", "", "run to export (default: most recent complete run)")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: export --db path/to/runs.db --out path/to/fixture.json [--run id]")
		os.Exit(2)
	}

	if err := run(*dbPath, *runID, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath, runID, outPath string) error {
	store, err := ledger.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	if runID == "" {
		if runID, err = latestComplete(store); err != nil {
			return err
		}
	}

	f, err := replay.FixtureFromRun(store, runID)
	if err != nil {
		return err
	}
	if len(f.ExpectedSteps) == 0 {
		return fmt.Errorf("run %s has no snapshots", runID)
	}
	fmt.Printf("Found %d iterations for run %s\n", len(f.ExpectedSteps), runID)

	if err := replay.WriteFixture(outPath, f); err != nil {
		return err
	}
	fmt.Printf("Fixture written to %s\n", outPath)
	return nil
}

func latestComplete(store *ledger.Store) (string, error) {
	runs, err := store.ListRuns(-1)
	if err != nil {
		return "", err
	}
	for _, r := range runs {
		if r.Status == ledger.StatusComplete {
			return r.RunID, nil
		}
	}
	return "", fmt.Errorf("no complete runs found")
}

// #endregion extract
