package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/justinmeimar/performative/go-sim/internal/config"
	"github.com/justinmeimar/performative/go-sim/internal/ledger"
	"github.com/justinmeimar/performative/go-sim/internal/pipeline"
)

// #region main
func main() {
	configPath := flag.String("config", "", "path to a JSON config (defaults apply for missing keys)")
	dbPath := flag.String("db", "", "record the run in this SQLite ledger (env PERF_DB)")
	seed := flag.Uint64("seed", 0, "random seed (env PERF_SEED)")
	iterations := flag.Int("iterations", 0, "number of shift iterations")
	codec := flag.String("codec", "", "snapshot codec: none, zstd or lz4")
	jsonOut := flag.Bool("json", false, "print the history as JSON instead of a table")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("environment: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			cfg.DBPath = *dbPath
		case "seed":
			cfg.RandomSeed = *seed
		case "iterations":
			cfg.NumIterations = *iterations
		case "codec":
			cfg.SnapshotCodec = *codec
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	var store *ledger.Store
	if cfg.DBPath != "" {
		var err error
		store, err = ledger.NewStore(cfg.DBPath)
		if err != nil {
			log.Fatalf("failed to open ledger: %v", err)
		}
		defer store.Close()
	}

	logger := log.New(os.Stderr, "simulate: ", log.LstdFlags)
	rep, err := pipeline.Run(cfg, store, logger)
	if err != nil {
		if len(rep.History) > 0 {
			printTable(rep)
		}
		logger.Printf("run failed: %v", err)
		os.Exit(1)
	}

	if *jsonOut {
		if err := printJSON(rep); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}
	printTable(rep)
}

// #endregion main

// #region output
type stepRow struct {
	Iteration   int     `json:"iteration"`
	SnapshotID  string  `json:"snapshot_id"`
	Offset      float64 `json:"offset"`
	Theta       float64 `json:"theta"`
	Loss        float64 `json:"loss"`
	Converged   bool    `json:"converged"`
	Fallback    bool    `json:"fallback"`
	Fingerprint string  `json:"fingerprint"`
	Checks      bool    `json:"checks_passed"`
}

type runOutput struct {
	RunID      string    `json:"run_id,omitempty"`
	Seed       uint64    `json:"seed"`
	Steps      []stepRow `json:"steps"`
	MeanLoss   float64   `json:"mean_loss"`
	FinalTheta float64   `json:"final_theta"`
	ThetaDrift float64   `json:"theta_drift"`
	Fallbacks  int       `json:"fallbacks"`
}

func rows(rep pipeline.Report) []stepRow {
	out := make([]stepRow, len(rep.History))
	for i, s := range rep.History {
		out[i] = stepRow{
			Iteration:   s.Index,
			SnapshotID:  s.SnapshotID,
			Offset:      s.Offset,
			Theta:       s.Fit.Theta,
			Loss:        s.Fit.Loss,
			Converged:   s.Fit.Converged,
			Fallback:    s.Fallback,
			Fingerprint: fmt.Sprintf("%016x", s.Fingerprint),
		}
		if i < len(rep.Evals) {
			out[i].Checks = rep.Evals[i].Passed
		}
	}
	return out
}

func printTable(rep pipeline.Report) {
	fmt.Printf("%-5s  %9s  %9s  %9s  %-9s  %-16s  %s\n",
		"Iter", "Offset", "Theta", "Loss", "Fit", "Fingerprint", "Checks")
	fmt.Printf("%-5s+-%9s+-%9s+-%9s+-%-9s+-%-16s+-%s\n",
		"-----", "---------", "---------", "---------", "---------", "----------------", "------")
	for _, r := range rows(rep) {
		fitCol := "converged"
		if r.Fallback {
			fitCol = "fallback"
		}
		checks := "pass"
		if !r.Checks {
			checks = "FAIL"
		}
		fmt.Printf("%-5d  %9.4f  %9.4f  %9.4f  %-9s  %-16s  %s\n",
			r.Iteration, r.Offset, r.Theta, r.Loss, fitCol, r.Fingerprint, checks)
	}
	s := rep.Summary
	if s.Steps > 0 {
		fmt.Printf("\nmean loss %.4f (min %.4f, max %.4f)  final theta %.4f  drift %.4f  fallbacks %d\n",
			s.MeanLoss, s.MinLoss, s.MaxLoss, s.FinalTheta, s.ThetaDrift, s.Fallbacks)
	}
	if rep.RunID != "" {
		fmt.Printf("run %s\n", rep.RunID)
	}
}

func printJSON(rep pipeline.Report) error {
	out := runOutput{
		RunID:      rep.RunID,
		Seed:       rep.Seed,
		Steps:      rows(rep),
		MeanLoss:   rep.Summary.MeanLoss,
		FinalTheta: rep.Summary.FinalTheta,
		ThetaDrift: rep.Summary.ThetaDrift,
		Fallbacks:  rep.Summary.Fallbacks,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// #endregion output
