// Package replay reruns recorded simulations and checks that they reproduce.
package replay

import (
	"fmt"
	"log"
	"math"

	"github.com/justinmeimar/performative/go-sim/internal/pipeline"
)

// #region types

// Match outcomes of a replayed step.
const (
	MatchOK      = "ok"
	MatchDiff    = "diff"
	MatchMissing = "missing"
	MatchExtra   = "extra"
)

// StepComparison is one row of a replay comparison.
type StepComparison struct {
	Iteration int
	Expected  *ExpectedStep
	Replayed  *ExpectedStep
	Match     string
	Reason    string
}

// ReplaySummary provides aggregate stats from a comparison.
type ReplaySummary struct {
	Total    int
	Matches  int
	Diverged int
}

// #endregion types

// #region replay

// Replay reruns the fixture's config in memory and compares each step against
// the recorded ones. tol bounds the allowed |Δθ| and |Δloss|; 0 demands
// bit-identical results.
func Replay(f *Fixture, tol float64, logger *log.Logger) ([]StepComparison, error) {
	rep, err := pipeline.Run(f.Config, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("rerun: %w", err)
	}
	return Compare(f.ExpectedSteps, FromHistory(rep.History), tol), nil
}

// Compare lines up expected and replayed steps by position.
func Compare(expected, replayed []ExpectedStep, tol float64) []StepComparison {
	n := max(len(expected), len(replayed))
	out := make([]StepComparison, 0, n)
	for i := 0; i < n; i++ {
		c := StepComparison{Iteration: i}
		switch {
		case i >= len(replayed):
			c.Expected = &expected[i]
			c.Match = MatchMissing
			c.Reason = "step not replayed"
		case i >= len(expected):
			c.Replayed = &replayed[i]
			c.Match = MatchExtra
			c.Reason = "step not recorded"
		default:
			c.Expected = &expected[i]
			c.Replayed = &replayed[i]
			c.Match, c.Reason = compareStep(expected[i], replayed[i], tol)
		}
		out = append(out, c)
	}
	return out
}

func compareStep(exp, got ExpectedStep, tol float64) (string, string) {
	switch {
	case exp.Fingerprint != got.Fingerprint:
		return MatchDiff, fmt.Sprintf("fingerprint %s != %s", got.Fingerprint, exp.Fingerprint)
	case math.Abs(exp.Theta-got.Theta) > tol:
		return MatchDiff, fmt.Sprintf("theta %.9f != %.9f", got.Theta, exp.Theta)
	case math.Abs(exp.Loss-got.Loss) > tol:
		return MatchDiff, fmt.Sprintf("loss %.9f != %.9f", got.Loss, exp.Loss)
	case exp.Converged != got.Converged:
		return MatchDiff, fmt.Sprintf("converged %v != %v", got.Converged, exp.Converged)
	}
	return MatchOK, ""
}

// Summarize counts matching and diverging steps.
func Summarize(results []StepComparison) ReplaySummary {
	s := ReplaySummary{Total: len(results)}
	for _, r := range results {
		if r.Match == MatchOK {
			s.Matches++
		} else {
			s.Diverged++
		}
	}
	return s
}

// #endregion replay
