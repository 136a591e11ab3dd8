// Package pipeline wires generation, the feedback loop, post-step checks and the
// optional run ledger into the two scenarios the commands expose.
package pipeline

import (
	"errors"
	"fmt"
	"log"

	"github.com/justinmeimar/performative/go-sim/internal/config"
	"github.com/justinmeimar/performative/go-sim/internal/dataset"
	"github.com/justinmeimar/performative/go-sim/internal/eval"
	"github.com/justinmeimar/performative/go-sim/internal/generator"
	"github.com/justinmeimar/performative/go-sim/internal/ledger"
	"github.com/justinmeimar/performative/go-sim/internal/logging"
	"github.com/justinmeimar/performative/go-sim/internal/loop"
	"github.com/justinmeimar/performative/go-sim/internal/series"
)

// ErrCheckFailed is returned when a post-step check rejects an iteration.
var ErrCheckFailed = errors.New("post-step check failed")

// #region report
// Report is the outcome of a feedback-loop run.
type Report struct {
	RunID   string
	Seed    uint64
	History loop.History
	Evals   []eval.EvalResult
	Summary loop.Summary
}

// #endregion report

// #region generate
// Generate draws the fixed group then the reactive group from one source seeded
// with cfg.RandomSeed. The result lists fixed points first.
func Generate(cfg config.Config) (dataset.Dataset, error) {
	src := generator.NewSource(cfg.RandomSeed)
	a, err := generator.Baseline(cfg.ReferenceAngle).Generate(src, cfg.NSamplesA, cfg.Sigma)
	if err != nil {
		return nil, loop.Wrap(loop.StageGeneration, fmt.Errorf("group %s: %w", dataset.GroupA, err))
	}
	b, err := generator.Reactive(cfg.ReactiveMean, cfg.ReactiveSpread).Generate(src, cfg.NSamplesB, cfg.Sigma)
	if err != nil {
		return nil, loop.Wrap(loop.StageGeneration, fmt.Errorf("group %s: %w", dataset.GroupB, err))
	}
	return dataset.Concat(a, b), nil
}

// #endregion generate

// #region run
// Run generates the initial dataset, drives the loop and validates every step.
// With a non-nil store the run, each snapshot, its provenance row and the final
// series are recorded; a nil store keeps everything in memory.
func Run(cfg config.Config, store *ledger.Store, logger *log.Logger) (Report, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := cfg.Validate(); err != nil {
		return Report{}, loop.Wrap(loop.StageGeneration, err)
	}

	initial, err := Generate(cfg)
	if err != nil {
		return Report{}, err
	}
	_, fixed := initial.Partition(dataset.GroupB)
	fixedPrint := fixed.Fingerprint()

	rep := Report{Seed: cfg.RandomSeed}
	rec := &recorder{store: store, codec: cfg.Codec(), logger: logger}
	if err := rec.begin(cfg); err != nil {
		return rep, loop.Wrap(loop.StageIteration, err)
	}
	rep.RunID = rec.runID

	driver, err := loop.NewDriver(initial, cfg.LoopConfig(), logger)
	if err != nil {
		rec.fail()
		return rep, err
	}
	harness := eval.NewEvalHarness(cfg.EvalConfig())

	var prev *loop.Step
	for driver.Phase() != loop.PhaseDone {
		if driver.Phase() == loop.PhaseInitial {
			err = driver.Start()
		} else {
			err = driver.Step()
		}
		if err != nil {
			rec.fail()
			rep.History = driver.History()
			return rep, err
		}

		step, _ := driver.Last()
		result := harness.Run(prev, step, fixedPrint)
		rep.Evals = append(rep.Evals, result)
		if err := rec.step(step, result); err != nil {
			rec.fail()
			rep.History = driver.History()
			return rep, loop.Wrap(loop.StageIteration, err)
		}
		if !result.Passed {
			rec.fail()
			rep.History = driver.History()
			return rep, loop.Wrap(loop.StageIteration, fmt.Errorf("step %d: %w: %s", step.Index, ErrCheckFailed, result.Reason))
		}
		prev = &step
	}

	rep.History = driver.History()
	rep.Summary = loop.Summarize(rep.History)
	if err := rec.finish(rep.History); err != nil {
		return rep, loop.Wrap(loop.StageIteration, err)
	}
	logger.Printf("run %s: %d steps, final theta %.4f, mean loss %.4f, %d fallbacks",
		displayID(rep.RunID), rep.Summary.Steps, rep.Summary.FinalTheta, rep.Summary.MeanLoss, rep.Summary.Fallbacks)
	return rep, nil
}

// #endregion run

// #region recorder
// recorder persists a run when a store is configured and is a no-op otherwise.
type recorder struct {
	store  *ledger.Store
	codec  dataset.Compression
	logger *log.Logger
	run    ledger.RunRecord
	runID  string
}

func (r *recorder) begin(cfg config.Config) error {
	if r.store == nil {
		return nil
	}
	cfgJSON, err := cfg.JSON()
	if err != nil {
		return err
	}
	run, err := r.store.CreateRun(cfg.RandomSeed, cfgJSON)
	if err != nil {
		return err
	}
	r.run = run
	r.runID = run.RunID
	return nil
}

func (r *recorder) step(step loop.Step, result eval.EvalResult) error {
	if r.store == nil {
		return nil
	}
	if _, err := r.store.CommitSnapshot(ledger.SnapshotRecord{
		SnapshotID:  step.SnapshotID,
		RunID:       r.runID,
		ParentID:    step.ParentID,
		Iteration:   step.Index,
		Codec:       r.codec,
		Points:      step.Snapshot,
		Fingerprint: step.Fingerprint,
		Theta:       step.Fit.Theta,
		Loss:        step.Fit.Loss,
		Offset:      step.Offset,
		Converged:   step.Fit.Converged,
	}); err != nil {
		return fmt.Errorf("commit snapshot %d: %w", step.Index, err)
	}

	decision, stage, reason := logging.DecisionFit, string(loop.StageOptimization), step.Reason
	switch {
	case !result.Passed:
		decision, stage, reason = logging.DecisionReject, string(loop.StageIteration), result.Reason
	case step.Fallback:
		decision = logging.DecisionFallback
	}
	err := logging.LogIteration(r.store.DB(), logging.ProvenanceEntry{
		RunID:      r.runID,
		SnapshotID: step.SnapshotID,
		Iteration:  step.Index,
		Stage:      stage,
		Decision:   decision,
		Reason:     reason,
	}, IterationRecord(step, result))
	if err != nil {
		// provenance is best-effort, the snapshot is already stored
		r.logger.Printf("logging error: %v", err)
	}
	return nil
}

func (r *recorder) finish(h loop.History) error {
	if r.store == nil || len(h) == 0 {
		return nil
	}
	blob, err := series.Encode(r.run.CreatedAt, series.Series{
		Theta:  h.Thetas(),
		Loss:   h.Losses(),
		Offset: h.Offsets(),
	})
	if err != nil {
		return fmt.Errorf("encode series: %w", err)
	}
	last := h[len(h)-1]
	return r.store.AttachSeries(r.runID, blob, last.Fit.Theta, last.Fit.Loss, ledger.StatusComplete)
}

func (r *recorder) fail() {
	if r.store == nil || r.runID == "" {
		return
	}
	if err := r.store.SetStatus(r.runID, ledger.StatusFailed); err != nil {
		r.logger.Printf("set status: %v", err)
	}
}

// IterationRecord builds the provenance details for a step.
func IterationRecord(step loop.Step, result eval.EvalResult) logging.IterationRecord {
	checks := make([]logging.CheckRecord, len(result.Metrics))
	for i, m := range result.Metrics {
		checks[i] = logging.CheckRecord{Name: m.Name, Value: m.Value, Pass: m.Pass}
	}
	return logging.IterationRecord{
		Iteration:   step.Index,
		Offset:      step.Offset,
		Angle:       step.Pattern.Angle,
		Direction:   step.Pattern.Direction,
		Theta:       step.Fit.Theta,
		Loss:        step.Fit.Loss,
		Iterations:  step.Fit.Iterations,
		Status:      step.Fit.Status,
		Converged:   step.Fit.Converged,
		Fingerprint: fmt.Sprintf("%016x", step.Fingerprint),
		Points:      len(step.Snapshot),
		Checks:      checks,
	}
}

func displayID(id string) string {
	if id == "" {
		return "(in-memory)"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion recorder
