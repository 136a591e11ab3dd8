// Package fit finds the boundary angle that minimizes the smoothed log-loss.
package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/justinmeimar/performative/go-sim/internal/dataset"
	"github.com/justinmeimar/performative/go-sim/internal/score"
)

var (
	// ErrDidNotConverge marks a recoverable failure: the returned Result holds the
	// initial angle and its loss.
	ErrDidNotConverge = errors.New("optimization did not converge")
	// ErrInvalidBounds is returned for empty or non-finite bounds, or a start outside them.
	ErrInvalidBounds = errors.New("invalid optimizer bounds")
)

// stationaryTol is the slope below which a point the minimizer stopped at is
// accepted even though it reported a failure.
const stationaryTol = 1e-4

// #region config
// Config controls a single bounded minimization.
type Config struct {
	InitialTheta   float64
	Lower          float64
	Upper          float64
	GradientTol    float64 // stationarity threshold on dLoss/dtheta
	MaxIterations  int
	MaxEvaluations int // 0 = unlimited
}

// DefaultConfig starts at π/16 and searches [0, π/2].
func DefaultConfig() Config {
	return Config{
		InitialTheta:  math.Pi / 16,
		Lower:         0,
		Upper:         math.Pi / 2,
		GradientTol:   1e-6,
		MaxIterations: 200,
	}
}

// Validate checks bounds and start point.
func (c Config) Validate() error {
	if math.IsNaN(c.Lower) || math.IsNaN(c.Upper) || math.IsInf(c.Lower, 0) || math.IsInf(c.Upper, 0) {
		return fmt.Errorf("%w: [%v, %v] not finite", ErrInvalidBounds, c.Lower, c.Upper)
	}
	if c.Lower >= c.Upper {
		return fmt.Errorf("%w: lower %v >= upper %v", ErrInvalidBounds, c.Lower, c.Upper)
	}
	if !(c.InitialTheta >= c.Lower && c.InitialTheta <= c.Upper) {
		return fmt.Errorf("%w: initial theta %v outside [%v, %v]", ErrInvalidBounds, c.InitialTheta, c.Lower, c.Upper)
	}
	return nil
}

// #endregion config

// #region result
// Result is a fitted angle with its loss. Loss is always >= 0.
type Result struct {
	Theta      float64
	Loss       float64
	Iterations int
	Converged  bool
	Status     string
}

// #endregion result

// #region fit
// Fit minimizes score.Score over [Lower, Upper] with L-BFGS. The box constraint is
// enforced through θ = lo + (hi-lo)(1+sin z)/2, so a bound optimum is reached at a
// finite z. The search is serial and has no randomness.
//
// When the minimizer fails, Fit returns the initial angle scored on data together
// with an error wrapping ErrDidNotConverge.
func Fit(data dataset.Dataset, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if cfg.GradientTol <= 0 {
		cfg.GradientTol = DefaultConfig().GradientTol
	}

	b := box{lo: cfg.Lower, hi: cfg.Upper}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return score.Score(data, b.theta(x[0]))
		},
		Grad: func(grad, x []float64) {
			grad[0] = score.Gradient(data, b.theta(x[0])) * b.dtheta(x[0])
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: cfg.GradientTol * (cfg.Upper - cfg.Lower) / 2,
		MajorIterations:   cfg.MaxIterations,
		FuncEvaluations:   cfg.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-13,
			Relative:   1e-13,
			Iterations: 20,
		},
	}

	res, err := optimize.Minimize(problem, []float64{b.z(cfg.InitialTheta)}, settings, &optimize.LBFGS{})
	if res != nil && len(res.X) == 1 {
		theta := b.theta(res.X[0])
		if (err == nil && converged(res.Status)) || stationary(data, theta, b, stationaryTol) {
			return Result{
				Theta:      theta,
				Loss:       score.Score(data, theta),
				Iterations: res.MajorIterations,
				Converged:  true,
				Status:     res.Status.String(),
			}, nil
		}
	}

	status := "no result"
	if res != nil {
		status = res.Status.String()
	}
	fallback := Result{
		Theta:     cfg.InitialTheta,
		Loss:      score.Score(data, cfg.InitialTheta),
		Converged: false,
		Status:    status,
	}
	if res != nil {
		fallback.Iterations = res.MajorIterations
	}
	if err != nil {
		return fallback, fmt.Errorf("%w: %s: %v", ErrDidNotConverge, status, err)
	}
	return fallback, fmt.Errorf("%w: %s", ErrDidNotConverge, status)
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence,
		optimize.StepConvergence, optimize.MethodConverge:
		return true
	}
	return false
}

// stationary reports whether theta satisfies the bound-constrained first-order
// condition within tol: zero slope inside, or a slope pointing out of the box at a bound.
func stationary(data dataset.Dataset, theta float64, b box, tol float64) bool {
	g := score.Gradient(data, theta)
	if math.IsNaN(g) {
		return false
	}
	edge := 1e-9 * (b.hi - b.lo)
	switch {
	case theta-b.lo <= edge && g >= 0:
		return true
	case b.hi-theta <= edge && g <= 0:
		return true
	}
	return math.Abs(g) <= tol
}

// #endregion fit

// #region transform
type box struct{ lo, hi float64 }

func (b box) theta(z float64) float64 {
	t := b.lo + (b.hi-b.lo)*(1+math.Sin(z))/2
	// rounding can step a hair outside the box
	return math.Min(b.hi, math.Max(b.lo, t))
}

func (b box) dtheta(z float64) float64 {
	return (b.hi - b.lo) * math.Cos(z) / 2
}

// z inverts theta. Starts exactly on a bound are nudged inward: the transform is
// flat there and the search would never leave.
func (b box) z(theta float64) float64 {
	s := 2*(theta-b.lo)/(b.hi-b.lo) - 1
	const inset = 1e-6
	s = math.Max(-1+inset, math.Min(1-inset, s))
	return math.Asin(s)
}

// #endregion transform

// Perturb scores theta-delta and theta+delta, the neighbors shown next to an initial guess.
func Perturb(data dataset.Dataset, theta, delta float64) (lower, upper Result) {
	lower = Result{Theta: theta - delta, Loss: score.Score(data, theta-delta), Status: "perturbation"}
	upper = Result{Theta: theta + delta, Loss: score.Score(data, theta+delta), Status: "perturbation"}
	return lower, upper
}
