package pipeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/justinmeimar/performative/go-sim/internal/config"
	"github.com/justinmeimar/performative/go-sim/internal/dataset"
	"github.com/justinmeimar/performative/go-sim/internal/fit"
	"github.com/justinmeimar/performative/go-sim/internal/generator"
	"github.com/justinmeimar/performative/go-sim/internal/loop"
	"github.com/justinmeimar/performative/go-sim/internal/score"
	"github.com/justinmeimar/performative/go-sim/internal/shift"
)

// #region static-report
// StaticReport is the single-fit scenario: the best boundary for the combined
// groups, what it costs once the reactive label-1 points move away, and how it
// scores against reactive groups centered elsewhere.
type StaticReport struct {
	Points       int
	InitialTheta float64
	InitialLoss  float64
	Perturbed    [2]fit.Result
	Best         fit.Result
	Fallback     bool
	Accuracy     float64

	ModifyAmount float64
	ModifiedLoss float64
	LossDelta    float64

	Variants []VariantScore
}

// VariantScore is the loss of the best boundary on the fixed group joined with
// one shifted reactive group.
type VariantScore struct {
	Group string
	Mean  float64
	Loss  float64
}

// #endregion static-report

// #region static
// Static fits the combined dataset once and evaluates the modified and shifted
// reactive scenarios at the fitted angle. Non-convergence falls back to the
// initial angle and is reported, not returned.
func Static(cfg config.Config) (StaticReport, error) {
	if err := cfg.Validate(); err != nil {
		return StaticReport{}, loop.Wrap(loop.StageGeneration, err)
	}

	src := generator.NewSource(cfg.RandomSeed)
	a, err := generator.Baseline(cfg.ReferenceAngle).Generate(src, cfg.NSamplesA, cfg.Sigma)
	if err != nil {
		return StaticReport{}, loop.Wrap(loop.StageGeneration, err)
	}
	b, err := generator.Reactive(cfg.ReactiveMean, cfg.ReactiveSpread).Generate(src, cfg.NSamplesB, cfg.Sigma)
	if err != nil {
		return StaticReport{}, loop.Wrap(loop.StageGeneration, err)
	}
	combined := dataset.Concat(a, b)

	fc := cfg.FitConfig()
	rep := StaticReport{
		Points:       len(combined),
		InitialTheta: fc.InitialTheta,
		InitialLoss:  score.Score(combined, fc.InitialTheta),
		ModifyAmount: cfg.ModifyAmount,
	}
	lo, hi := fit.Perturb(combined, fc.InitialTheta, cfg.PerturbDelta)
	rep.Perturbed = [2]fit.Result{lo, hi}

	best, err := fit.Fit(combined, fc)
	if err != nil {
		if !errors.Is(err, fit.ErrDidNotConverge) {
			return StaticReport{}, loop.Wrap(loop.StageOptimization, err)
		}
		rep.Fallback = true
	}
	rep.Best = best
	rep.Accuracy = score.Accuracy(combined, best.Theta)

	modified := shift.ModifyLabelOne(combined, dataset.GroupB, cfg.ModifyAmount)
	rep.ModifiedLoss = score.Score(modified, best.Theta)
	rep.LossDelta = rep.ModifiedLoss - best.Loss

	variants, err := generator.ShiftedVariants(src, cfg.NSamplesB, cfg.ShiftedVariants, cfg.ShiftVariation, cfg.Sigma, cfg.ReactiveSpread)
	if err != nil {
		return StaticReport{}, loop.Wrap(loop.StageGeneration, fmt.Errorf("shifted variants: %w", err))
	}
	for i, v := range variants {
		rep.Variants = append(rep.Variants, VariantScore{
			Group: fmt.Sprintf("%s_%d", dataset.GroupBShifted, i),
			Mean:  float64(i) / float64(len(variants)) * 2 * math.Pi * cfg.ShiftVariation,
			Loss:  score.Score(dataset.Concat(a, v), best.Theta),
		})
	}
	return rep, nil
}

// #endregion static
