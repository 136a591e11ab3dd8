// Package loop drives the performative feedback loop: fit a boundary, let the
// reactive subgroup move in response, refit, and record every step.
package loop

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/google/uuid"

	"github.com/justinmeimar/performative/go-sim/internal/dataset"
	"github.com/justinmeimar/performative/go-sim/internal/fit"
	"github.com/justinmeimar/performative/go-sim/internal/shift"
)

// #region driver
// Driver owns the evolving dataset and the history of a single run. It is not
// safe for concurrent use.
type Driver struct {
	cfg     Config
	logger  *log.Logger
	phase   Phase
	current dataset.Dataset
	history History
}

// NewDriver validates cfg and the initial dataset. A nil logger uses log.Default().
func NewDriver(initial dataset.Dataset, cfg Config, logger *log.Logger) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Wrap(StageIteration, fmt.Errorf("config: %w", err))
	}
	if err := initial.Validate(); err != nil {
		return nil, Wrap(StageGeneration, err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Driver{
		cfg:     cfg,
		logger:  logger,
		phase:   PhaseInitial,
		current: initial.Clone(),
		history: make(History, 0, cfg.Iterations+1),
	}, nil
}

// Phase reports where the driver is.
func (d *Driver) Phase() Phase { return d.phase }

// History returns the steps recorded so far. The returned slice is a copy; the
// snapshots it points to are shared and must not be modified.
func (d *Driver) History() History {
	out := make(History, len(d.history))
	copy(out, d.history)
	return out
}

// Last returns the most recent step, or false before Start.
func (d *Driver) Last() (Step, bool) {
	if len(d.history) == 0 {
		return Step{}, false
	}
	return d.history[len(d.history)-1], true
}

// Start fits the initial dataset and records step 0.
func (d *Driver) Start() error {
	if d.phase != PhaseInitial {
		return Wrap(StageIteration, fmt.Errorf("%w: start in %s", ErrWrongPhase, d.phase))
	}
	step, err := d.record(0, shift.Pattern{}, d.current)
	if err != nil {
		return err
	}
	d.history = append(d.history, step)
	d.phase = PhaseIterating
	if d.cfg.Iterations == 0 {
		d.phase = PhaseDone
	}
	return nil
}

// Step applies the next scheduled shift to the reactive subgroup, refits from the
// configured initial angle and records the result. The fixed subgroup is copied
// through untouched and always precedes the reactive points.
func (d *Driver) Step() error {
	if d.phase != PhaseIterating {
		return Wrap(StageIteration, fmt.Errorf("%w: step in %s", ErrWrongPhase, d.phase))
	}
	k := len(d.history)
	pattern := d.cfg.Schedule.At(k - 1)

	reactive, fixed := d.current.Partition(d.cfg.ReactiveGroup)
	moved := make(dataset.Dataset, len(reactive))
	for i, p := range reactive {
		moved[i] = shift.Rotate(p, pattern.Offset())
	}
	next := dataset.Concat(fixed, moved)

	step, err := d.record(k, pattern, next)
	if err != nil {
		return err
	}
	d.current = next
	d.history = append(d.history, step)
	if k >= d.cfg.Iterations {
		d.phase = PhaseDone
	}
	return nil
}

// Run performs Start followed by every configured step and returns the full
// history, Iterations+1 entries long.
func (d *Driver) Run() (History, error) {
	if err := d.Start(); err != nil {
		return d.History(), err
	}
	for d.phase == PhaseIterating {
		if err := d.Step(); err != nil {
			return d.History(), err
		}
	}
	return d.History(), nil
}

// record fits data and builds the history entry for step k.
func (d *Driver) record(k int, pattern shift.Pattern, data dataset.Dataset) (Step, error) {
	res, err := fit.Fit(data, d.cfg.Fit)
	fallback := false
	reason := "fit converged: " + res.Status
	if err != nil {
		if !errors.Is(err, fit.ErrDidNotConverge) {
			return Step{}, Wrap(StageOptimization, fmt.Errorf("step %d: %w", k, err))
		}
		fallback = true
		reason = err.Error()
		d.logger.Printf("warning: step %d: %v; keeping initial theta %.6f", k, err, res.Theta)
	}
	if math.IsNaN(res.Loss) || math.IsInf(res.Loss, 0) || res.Loss < 0 {
		return Step{}, Wrap(StageScoring, fmt.Errorf("step %d: loss %v at theta %v", k, res.Loss, res.Theta))
	}

	parent := ""
	if len(d.history) > 0 {
		parent = d.history[len(d.history)-1].SnapshotID
	}
	return Step{
		Index:       k,
		SnapshotID:  uuid.New().String(),
		ParentID:    parent,
		Snapshot:    data,
		Fingerprint: data.Fingerprint(),
		Pattern:     pattern,
		Offset:      pattern.Offset(),
		Fit:         res,
		Fallback:    fallback,
		Reason:      reason,
	}, nil
}

// #endregion driver
