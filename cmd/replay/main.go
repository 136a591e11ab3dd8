package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/justinmeimar/performative/go-sim/internal/ledger"
	"github.com/justinmeimar/performative/go-sim/internal/replay"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the run ledger (DB mode)")
	runID := flag.String("run", "", "run to replay in DB mode")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	tol := flag.Float64("tol", 0, "allowed |Δθ| and |Δloss|; 0 demands identical results")
	verbose := flag.Bool("v", false, "log the rerun")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") || (*dbPath != "" && *runID == "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/runs.db --run id [--tol x]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json [--tol x]")
		os.Exit(2)
	}

	logger := log.New(io.Discard, "", 0)
	if *verbose {
		logger = log.New(os.Stderr, "replay: ", log.LstdFlags)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath, *tol, logger)
	} else {
		exitCode = runDBMode(*dbPath, *runID, *tol, logger)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region modes

func runDBMode(dbPath, runID string, tol float64, logger *log.Logger) int {
	store, err := ledger.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	f, err := replay.FixtureFromRun(store, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load run: %v\n", err)
		return 2
	}
	return replayFixture(f, tol, logger)
}

func runFixtureMode(path string, tol float64, logger *log.Logger) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	return replayFixture(f, tol, logger)
}

func replayFixture(f *replay.Fixture, tol float64, logger *log.Logger) int {
	if f.Description != "" {
		fmt.Printf("%s\n\n", f.Description)
	}
	results, err := replay.Replay(f, tol, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 1
	}
	return printComparison(results)
}

// #endregion modes

// #region output

// printComparison outputs a comparison table and returns the exit code.
func printComparison(results []replay.StepComparison) int {
	fmt.Printf("%-5s| %-21s| %-21s| %s\n", "Iter", "Expected θ / loss", "Replayed θ / loss", "Match")
	fmt.Printf("%-5s+%-22s+%-22s+%s\n",
		"-----", "----------------------", "----------------------", "------")

	for _, r := range results {
		fmt.Printf("%-5d| %-21s| %-21s| %s\n", r.Iteration, cell(r.Expected), cell(r.Replayed), matchLabel(r))
	}

	s := replay.Summarize(results)
	fmt.Printf("\nSummary: %d total, %d match, %d diverge\n", s.Total, s.Matches, s.Diverged)

	if s.Diverged > 0 {
		for _, r := range results {
			if r.Match != replay.MatchOK {
				fmt.Printf("  iteration %d: %s\n", r.Iteration, r.Reason)
			}
		}
		return 1
	}
	return 0
}

func cell(s *replay.ExpectedStep) string {
	if s == nil {
		return "—"
	}
	return fmt.Sprintf("%.6f / %.6f", s.Theta, s.Loss)
}

func matchLabel(r replay.StepComparison) string {
	switch r.Match {
	case replay.MatchOK:
		return "OK"
	case replay.MatchDiff:
		return "DIFF"
	default:
		return r.Match
	}
}

// #endregion output
