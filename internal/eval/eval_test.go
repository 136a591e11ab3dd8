package eval

import (
	"math"
	"testing"

	"github.com/justinmeimar/performative/go-sim/internal/dataset"
	"github.com/justinmeimar/performative/go-sim/internal/fit"
	"github.com/justinmeimar/performative/go-sim/internal/loop"
	"github.com/justinmeimar/performative/go-sim/internal/shift"
)

func makeStep(theta, loss float64, snap dataset.Dataset) loop.Step {
	return loop.Step{
		Snapshot: snap,
		Fit:      fit.Result{Theta: theta, Loss: loss},
	}
}

func sampleData() dataset.Dataset {
	return dataset.Dataset{
		{X1: 1, X2: 0.5, Label: 1, Group: dataset.GroupA},
		{X1: 1, X2: -0.5, Label: 0, Group: dataset.GroupA},
		{X1: 0.3, X2: 0.9, Label: 1, Group: dataset.GroupB},
		{X1: -0.6, X2: 0.7, Label: 0, Group: dataset.GroupB},
	}
}

func fixedPrint(d dataset.Dataset) uint64 {
	_, fixed := d.Partition(dataset.GroupB)
	return fixed.Fingerprint()
}

func TestEvalPassesOnFirstStep(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	d := sampleData()

	result := h.Run(nil, makeStep(0.3, 0.4, d), fixedPrint(d))

	if !result.Passed {
		t.Fatalf("expected pass on first step, got fail: %s", result.Reason)
	}
	if result.Reason != "all checks passed" {
		t.Fatalf("unexpected reason %q", result.Reason)
	}
}

func TestEvalMetricCount(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	d := sampleData()

	result := h.Run(nil, makeStep(0.3, 0.4, d), fixedPrint(d))

	// loss x2 + theta + fixed + radius + accuracy
	if len(result.Metrics) != 6 {
		t.Fatalf("expected 6 metrics, got %d", len(result.Metrics))
	}
}

func TestEvalFailsOnNegativeOrNaNLoss(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	d := sampleData()

	result := h.Run(nil, makeStep(0.3, -0.1, d), fixedPrint(d))
	if result.Passed {
		t.Fatal("expected fail on negative loss")
	}
	if m, _ := result.Metric("loss_nonnegative"); m.Pass {
		t.Fatal("loss_nonnegative should fail")
	}

	result = h.Run(nil, makeStep(0.3, math.NaN(), d), fixedPrint(d))
	if result.Passed {
		t.Fatal("expected fail on NaN loss")
	}
	if m, _ := result.Metric("loss_finite"); m.Pass {
		t.Fatal("loss_finite should fail")
	}
}

func TestEvalFailsOutsideBounds(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	d := sampleData()

	result := h.Run(nil, makeStep(2.0, 0.4, d), fixedPrint(d))

	if result.Passed {
		t.Fatal("expected fail on theta above upper bound")
	}
	if m, ok := result.Metric("theta_in_bounds"); !ok || m.Pass {
		t.Fatal("expected theta_in_bounds metric to fail")
	}
}

func TestEvalDetectsFixedGroupChange(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	d := sampleData()
	want := fixedPrint(d)

	moved := shift.RotateGroup(d, dataset.GroupA, 0.1)
	result := h.Run(nil, makeStep(0.3, 0.4, moved), want)

	if result.Passed {
		t.Fatal("expected fail when fixed group moves")
	}
	if m, _ := result.Metric("fixed_group_intact"); m.Pass {
		t.Fatal("fixed_group_intact should fail")
	}
}

func TestEvalRadiusPreservedAcrossRotation(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	d := sampleData()
	prev := makeStep(0.3, 0.4, d)

	rotated := shift.RotateGroup(d, dataset.GroupB, math.Pi/3)
	result := h.Run(&prev, makeStep(0.5, 0.4, rotated), fixedPrint(d))
	if !result.Passed {
		t.Fatalf("rotation should pass, got: %s", result.Reason)
	}

	stretched := d.Clone()
	stretched[2].X1 *= 1.5
	result = h.Run(&prev, makeStep(0.5, 0.4, stretched), fixedPrint(d))
	if result.Passed {
		t.Fatal("expected fail when a reactive radius changes")
	}
	if m, _ := result.Metric("radius_preserved"); m.Pass {
		t.Fatal("radius_preserved should fail")
	}
}

func TestEvalAccuracyInformationalOnly(t *testing.T) {
	config := DefaultEvalConfig()
	config.MinAccuracy = 1.1
	h := NewEvalHarness(config)
	d := sampleData()

	result := h.Run(nil, makeStep(0.3, 0.4, d), fixedPrint(d))

	if !result.Passed {
		t.Fatalf("accuracy check should be informational, not blocking: %s", result.Reason)
	}
	if m, _ := result.Metric("accuracy"); m.Pass {
		t.Fatal("accuracy metric should show pass=false below the floor")
	}
}

func TestEvalCountsMultipleFailures(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	d := sampleData()

	result := h.Run(nil, makeStep(-1, -1, d), fixedPrint(d))

	if result.Passed {
		t.Fatal("expected fail")
	}
	want := "eval failed: 2 checks: loss -1.000000 is negative"
	if result.Reason != want {
		t.Fatalf("reason = %q, want %q", result.Reason, want)
	}
}
