package eval

import (
	"math"

	"github.com/justinmeimar/performative/go-sim/internal/dataset"
)

// #region eval-config
// EvalConfig holds thresholds for post-step validation.
type EvalConfig struct {
	Lower         float64 // reject if theta falls below this
	Upper         float64 // reject if theta rises above this
	RadiusTol     float64 // max change of any sorted reactive radius between steps
	MinAccuracy   float64 // warn if accuracy drops below this
	ReactiveGroup string
}

// DefaultEvalConfig matches the default optimizer bounds.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		Lower:         0,
		Upper:         math.Pi / 2,
		RadiusTol:     1e-9,
		MinAccuracy:   0.5,
		ReactiveGroup: dataset.GroupB,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of post-step validation.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// Metric returns the named metric.
func (r EvalResult) Metric(name string) (EvalMetric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return EvalMetric{}, false
}

// #endregion eval-result
