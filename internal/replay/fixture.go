package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/justinmeimar/performative/go-sim/internal/config"
	"github.com/justinmeimar/performative/go-sim/internal/ledger"
	"github.com/justinmeimar/performative/go-sim/internal/loop"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: the config a
// run started from and what each iteration produced.
type Fixture struct {
	Description   string         `json:"description"`
	SourceRunID   string         `json:"source_run_id,omitempty"`
	Config        config.Config  `json:"config"`
	ExpectedSteps []ExpectedStep `json:"expected_steps"`
}

// ExpectedStep captures the recorded outcome of one iteration.
type ExpectedStep struct {
	Iteration   int     `json:"iteration"`
	Offset      float64 `json:"offset"`
	Theta       float64 `json:"theta"`
	Loss        float64 `json:"loss"`
	Converged   bool    `json:"converged"`
	Fingerprint string  `json:"fingerprint"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file. Config keys missing from the
// file keep their defaults.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	f := Fixture{Config: config.Default()}
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as indented JSON.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// FromHistory builds the expected steps of an in-memory run.
func FromHistory(h loop.History) []ExpectedStep {
	out := make([]ExpectedStep, len(h))
	for i, s := range h {
		out[i] = ExpectedStep{
			Iteration:   s.Index,
			Offset:      s.Offset,
			Theta:       s.Fit.Theta,
			Loss:        s.Fit.Loss,
			Converged:   s.Fit.Converged,
			Fingerprint: fmt.Sprintf("%016x", s.Fingerprint),
		}
	}
	return out
}

// FromSnapshots builds the expected steps of a stored run.
func FromSnapshots(snaps []ledger.SnapshotRecord) []ExpectedStep {
	out := make([]ExpectedStep, len(snaps))
	for i, s := range snaps {
		out[i] = ExpectedStep{
			Iteration:   s.Iteration,
			Offset:      s.Offset,
			Theta:       s.Theta,
			Loss:        s.Loss,
			Converged:   s.Converged,
			Fingerprint: fmt.Sprintf("%016x", s.Fingerprint),
		}
	}
	return out
}

// FixtureFromRun loads a stored run and its snapshots as a fixture.
func FixtureFromRun(store *ledger.Store, runID string) (*Fixture, error) {
	run, err := store.GetRun(runID)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Parse(run.ConfigJSON)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	snaps, err := store.ListSnapshots(runID)
	if err != nil {
		return nil, err
	}
	return &Fixture{
		Description:   fmt.Sprintf("run %s, seed %d, %s", runID, run.Seed, run.Status),
		SourceRunID:   runID,
		Config:        cfg,
		ExpectedSteps: FromSnapshots(snaps),
	}, nil
}

// #endregion fixture-loader
