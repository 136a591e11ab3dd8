package loop

import (
	"errors"
	"fmt"

	"github.com/justinmeimar/performative/go-sim/internal/dataset"
	"github.com/justinmeimar/performative/go-sim/internal/fit"
	"github.com/justinmeimar/performative/go-sim/internal/shift"
)

// #region phase
// Phase is the driver's position in a run.
type Phase int

const (
	PhaseInitial Phase = iota
	PhaseIterating
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "initial"
	case PhaseIterating:
		return "iterating"
	case PhaseDone:
		return "done"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// #endregion phase

// #region stage-error
// Stage names the part of a run that failed.
type Stage string

const (
	StageGeneration   Stage = "generation"
	StageScoring      Stage = "scoring"
	StageOptimization Stage = "optimization"
	StageIteration    Stage = "iteration"
)

// StageError attributes a failure to a stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Wrap returns err as a StageError for stage, or nil.
func Wrap(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf reports the stage err was attributed to, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// ErrWrongPhase is returned when Start or Step is called out of order.
var ErrWrongPhase = errors.New("driver called in wrong phase")

// #endregion stage-error

// #region config
// Config controls a feedback-loop run.
type Config struct {
	Iterations    int
	Schedule      shift.Schedule
	Fit           fit.Config
	ReactiveGroup string
}

// DefaultConfig runs six iterations of the default schedule against group B.
func DefaultConfig() Config {
	return Config{
		Iterations:    6,
		Schedule:      shift.DefaultSchedule(),
		Fit:           fit.DefaultConfig(),
		ReactiveGroup: dataset.GroupB,
	}
}

// Validate checks the iteration count, schedule and optimizer settings.
func (c Config) Validate() error {
	if c.Iterations < 0 {
		return fmt.Errorf("iterations %d must be >= 0", c.Iterations)
	}
	if c.ReactiveGroup == "" {
		return errors.New("reactive group must be named")
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	return c.Fit.Validate()
}

// #endregion config

// #region step
// Step is one entry of the iteration history. Index 0 is the fit on the initial
// dataset; index k >= 1 follows the k-th shift. Snapshot is never modified after
// the step is recorded.
type Step struct {
	Index       int
	SnapshotID  string
	ParentID    string
	Snapshot    dataset.Dataset
	Fingerprint uint64
	Pattern     shift.Pattern
	Offset      float64
	Fit         fit.Result
	Fallback    bool
	Reason      string
}

// History is the ordered, append-only record of a run.
type History []Step

// Thetas returns the fitted angle of every step.
func (h History) Thetas() []float64 {
	out := make([]float64, len(h))
	for i, s := range h {
		out[i] = s.Fit.Theta
	}
	return out
}

// Losses returns the loss of every step.
func (h History) Losses() []float64 {
	out := make([]float64, len(h))
	for i, s := range h {
		out[i] = s.Fit.Loss
	}
	return out
}

// Offsets returns the rotation applied before every step (0 for the first).
func (h History) Offsets() []float64 {
	out := make([]float64, len(h))
	for i, s := range h {
		out[i] = s.Offset
	}
	return out
}

// #endregion step
