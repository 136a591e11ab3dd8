package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/justinmeimar/performative/go-sim/internal/ledger"
	"github.com/justinmeimar/performative/go-sim/internal/logging"
	"github.com/justinmeimar/performative/go-sim/internal/series"
)

// #region main

func main() {
	dbPath := flag.String("db", os.Getenv("PERF_DB"), "path to the run ledger")
	last := flag.Int("last", 20, "show N most recent runs")
	runID := flag.String("run", "", "show the iterations of one run")
	snapshot := flag.String("snapshot", "", "show single snapshot detail")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/runs.db [--last N] [--run id] [--snapshot id] [--json]")
		os.Exit(2)
	}

	store, err := ledger.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *snapshot != "":
		err = runSnapshotMode(store, *snapshot, *jsonOut)
	case *runID != "":
		err = runRunMode(store, *runID, *jsonOut)
	default:
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID      string  `json:"run_id"`
	Seed       uint64  `json:"seed"`
	Status     string  `json:"status"`
	Steps      int     `json:"steps"`
	FinalTheta float64 `json:"final_theta"`
	FinalLoss  float64 `json:"final_loss"`
	CreatedAt  string  `json:"created_at"`
}

func runListMode(store *ledger.Store, last int, jsonOut bool) error {
	runs, err := store.ListRuns(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}

	// store returns newest first; print chronologically
	listRows := make([]listRow, len(runs))
	for i, r := range runs {
		lr := listRow{
			RunID:      r.RunID,
			Seed:       r.Seed,
			Status:     r.Status,
			FinalTheta: r.FinalTheta,
			FinalLoss:  r.FinalLoss,
			CreatedAt:  r.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
		if len(r.Series) > 0 {
			if s, err := series.Decode(r.Series); err == nil {
				lr.Steps = s.Len()
			}
		}
		listRows[len(runs)-1-i] = lr
	}

	if jsonOut {
		return printJSON(listRows)
	}

	fmt.Printf("%-10s  %12s  %-8s  %5s  %9s  %9s  %s\n",
		"Run", "Seed", "Status", "Steps", "Theta", "Loss", "Time")
	fmt.Printf("%-10s+-%12s+-%-8s+-%5s+-%9s+-%9s+-%s\n",
		"----------", "------------", "--------", "-----", "---------", "---------", "--------------------")
	for _, r := range listRows {
		fmt.Printf("%-10s  %12d  %-8s  %5d  %9.4f  %9.4f  %s\n",
			shortID(r.RunID), r.Seed, r.Status, r.Steps, r.FinalTheta, r.FinalLoss, r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region run-mode

type iterationRow struct {
	SnapshotID  string  `json:"snapshot_id"`
	Iteration   int     `json:"iteration"`
	Offset      float64 `json:"offset"`
	Theta       float64 `json:"theta"`
	Loss        float64 `json:"loss"`
	Decision    string  `json:"decision"`
	Reason      string  `json:"reason,omitempty"`
	Fingerprint string  `json:"fingerprint"`
	Checks      int     `json:"checks_failed"`
}

type runOutput struct {
	RunID      string          `json:"run_id"`
	Seed       uint64          `json:"seed"`
	Status     string          `json:"status"`
	Config     json.RawMessage `json:"config"`
	Iterations []iterationRow  `json:"iterations"`
	Series     *seriesOutput   `json:"series,omitempty"`
}

type seriesOutput struct {
	Start  string    `json:"start"`
	Theta  []float64 `json:"theta"`
	Loss   []float64 `json:"loss"`
	Offset []float64 `json:"offset"`
}

func runRunMode(store *ledger.Store, runID string, jsonOut bool) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	snaps, err := store.ListSnapshotsWithProvenance(runID)
	if err != nil {
		return err
	}

	out := runOutput{
		RunID:  run.RunID,
		Seed:   run.Seed,
		Status: run.Status,
		Config: json.RawMessage(run.ConfigJSON),
	}
	for _, sp := range snaps {
		row := iterationRow{
			SnapshotID:  sp.SnapshotID,
			Iteration:   sp.Iteration,
			Offset:      sp.Offset,
			Theta:       sp.Theta,
			Loss:        sp.Loss,
			Decision:    sp.Decision,
			Reason:      sp.Reason,
			Fingerprint: fmt.Sprintf("%016x", sp.Fingerprint),
		}
		if rec, err := logging.ParseIterationRecord(sp.DetailsJSON); err == nil && rec != nil {
			for _, c := range rec.Checks {
				if !c.Pass {
					row.Checks++
				}
			}
		}
		out.Iterations = append(out.Iterations, row)
	}
	if len(run.Series) > 0 {
		s, err := series.Decode(run.Series)
		if err != nil {
			return fmt.Errorf("decode series: %w", err)
		}
		out.Series = &seriesOutput{
			Start:  s.Start.UTC().Format("2006-01-02T15:04:05Z"),
			Theta:  s.Theta,
			Loss:   s.Loss,
			Offset: s.Offset,
		}
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Run:     %s\n", out.RunID)
	fmt.Printf("Seed:    %d\n", out.Seed)
	fmt.Printf("Status:  %s\n\n", out.Status)
	fmt.Printf("%-10s  %4s  %9s  %9s  %9s  %-8s  %-16s  %s\n",
		"Snapshot", "Iter", "Offset", "Theta", "Loss", "Decision", "Fingerprint", "Failed")
	fmt.Printf("%-10s+-%4s+-%9s+-%9s+-%9s+-%-8s+-%-16s+-%s\n",
		"----------", "----", "---------", "---------", "---------", "--------", "----------------", "------")
	for _, r := range out.Iterations {
		fmt.Printf("%-10s  %4d  %9.4f  %9.4f  %9.4f  %-8s  %-16s  %d\n",
			shortID(r.SnapshotID), r.Iteration, r.Offset, r.Theta, r.Loss, r.Decision, r.Fingerprint, r.Checks)
	}
	if out.Series != nil {
		fmt.Printf("\nSeries from %s: %d points\n", out.Series.Start, len(out.Series.Theta))
	}
	return nil
}

// #endregion run-mode

// #region snapshot-mode

type snapshotOutput struct {
	SnapshotID  string         `json:"snapshot_id"`
	RunID       string         `json:"run_id"`
	ParentID    string         `json:"parent_id"`
	Iteration   int            `json:"iteration"`
	Codec       string         `json:"codec"`
	Points      int            `json:"points"`
	Groups      map[string]int `json:"groups"`
	LabelZero   int            `json:"label_zero"`
	LabelOne    int            `json:"label_one"`
	Theta       float64        `json:"theta"`
	Loss        float64        `json:"loss"`
	Offset      float64        `json:"offset"`
	Converged   bool           `json:"converged"`
	Fingerprint string         `json:"fingerprint"`
	CreatedAt   string         `json:"created_at"`
}

func runSnapshotMode(store *ledger.Store, id string, jsonOut bool) error {
	rec, err := store.GetSnapshot(id)
	if err != nil {
		return err
	}
	zeros, ones := rec.Points.LabelCounts()
	out := snapshotOutput{
		SnapshotID:  rec.SnapshotID,
		RunID:       rec.RunID,
		ParentID:    rec.ParentID,
		Iteration:   rec.Iteration,
		Codec:       rec.Codec.String(),
		Points:      len(rec.Points),
		Groups:      map[string]int{},
		LabelZero:   zeros,
		LabelOne:    ones,
		Theta:       rec.Theta,
		Loss:        rec.Loss,
		Offset:      rec.Offset,
		Converged:   rec.Converged,
		Fingerprint: fmt.Sprintf("%016x", rec.Fingerprint),
		CreatedAt:   rec.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
	for _, p := range rec.Points {
		out.Groups[p.Group]++
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Snapshot:    %s\n", out.SnapshotID)
	fmt.Printf("Run:         %s\n", out.RunID)
	fmt.Printf("Parent:      %s\n", out.ParentID)
	fmt.Printf("Iteration:   %d\n", out.Iteration)
	fmt.Printf("Created:     %s\n", out.CreatedAt)
	fmt.Printf("Codec:       %s\n", out.Codec)
	fmt.Printf("Theta:       %.6f\n", out.Theta)
	fmt.Printf("Loss:        %.6f\n", out.Loss)
	fmt.Printf("Offset:      %.6f\n", out.Offset)
	fmt.Printf("Converged:   %v\n", out.Converged)
	fmt.Printf("Fingerprint: %s\n", out.Fingerprint)
	fmt.Printf("\nPoints: %d (label 0: %d, label 1: %d)\n", out.Points, out.LabelZero, out.LabelOne)
	for _, g := range rec.Points.Groups() {
		fmt.Printf("  %-12s %d\n", g, out.Groups[g])
	}
	return nil
}

// #endregion snapshot-mode

// #region output

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
