package eval

import (
	"fmt"
	"math"
	"slices"

	"github.com/justinmeimar/performative/go-sim/internal/dataset"
	"github.com/justinmeimar/performative/go-sim/internal/loop"
	"github.com/justinmeimar/performative/go-sim/internal/score"
)

// #region eval-harness
// EvalHarness runs post-step validation on the loop history.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run validates next against the previous step and the fingerprint the fixed
// subgroup had at the start of the run. prev is nil for the first step.
func (h *EvalHarness) Run(prev *loop.Step, next loop.Step, fixedFingerprint uint64) EvalResult {
	var metrics []EvalMetric
	passed := true
	var failReasons []string

	check := func(m EvalMetric, reason string) {
		metrics = append(metrics, m)
		if !m.Pass {
			passed = false
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Loss is a mean of non-negative terms
	loss := next.Fit.Loss
	check(EvalMetric{Name: "loss_nonnegative", Value: loss, Pass: loss >= 0},
		fmt.Sprintf("loss %.6f is negative", loss))
	check(EvalMetric{Name: "loss_finite", Value: loss, Pass: !math.IsNaN(loss) && !math.IsInf(loss, 0)},
		fmt.Sprintf("loss %v is not finite", loss))

	// 2. Fitted angle inside the optimizer box
	theta := next.Fit.Theta
	check(EvalMetric{Name: "theta_in_bounds", Value: theta, Pass: theta >= h.config.Lower && theta <= h.config.Upper},
		fmt.Sprintf("theta %.6f outside [%.6f, %.6f]", theta, h.config.Lower, h.config.Upper))

	// 3. Fixed subgroup byte-identical to the start of the run
	_, fixed := next.Snapshot.Partition(h.config.ReactiveGroup)
	intact := fixed.Fingerprint() == fixedFingerprint
	check(EvalMetric{Name: "fixed_group_intact", Value: boolValue(intact), Pass: intact},
		"fixed subgroup changed")

	// 4. Rotation keeps every reactive radius
	drift := 0.0
	if prev != nil {
		drift = radiusDrift(prev.Snapshot, next.Snapshot, h.config.ReactiveGroup)
	}
	check(EvalMetric{Name: "radius_preserved", Value: drift, Pass: drift <= h.config.RadiusTol},
		fmt.Sprintf("reactive radius drift %.3g exceeds %.3g", drift, h.config.RadiusTol))

	// 5. Accuracy: informational only
	acc := score.Accuracy(next.Snapshot, theta)
	metrics = append(metrics, EvalMetric{
		Name:  "accuracy",
		Value: acc,
		Pass:  acc >= h.config.MinAccuracy,
	})

	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
// radiusDrift compares the sorted reactive radii of two snapshots. A change in
// the number of reactive points counts as infinite drift.
func radiusDrift(prev, next dataset.Dataset, group string) float64 {
	a := radii(prev, group)
	b := radii(next, group)
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var worst float64
	for i := range a {
		worst = math.Max(worst, math.Abs(a[i]-b[i]))
	}
	return worst
}

func radii(d dataset.Dataset, group string) []float64 {
	var out []float64
	for _, p := range d {
		if p.Group == group {
			out = append(out, math.Hypot(p.X1, p.X2))
		}
	}
	slices.Sort(out)
	return out
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
