// Package generator draws labeled points scattered around the unit circle.
//
// Every call takes its random source explicitly. The draw order within Generate is
// fixed (angles, then noise, then labels), so the same seed and parameters always
// yield byte-identical datasets.
package generator

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/justinmeimar/performative/go-sim/internal/dataset"
)

// ErrInvalidParameter is returned for a negative sample count or noise level.
var ErrInvalidParameter = errors.New("invalid generator parameter")

// DefaultReactiveSpread is the angular standard deviation of a reactive subgroup.
const DefaultReactiveSpread = math.Pi / 8

// NewSource returns the single seeded source a run threads through every draw.
func NewSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// AngleDistribution yields the angular positions of generated points.
type AngleDistribution interface {
	Angles(src rand.Source, n int) []float64
}

// UniformAngles spreads points uniformly over [0, 2π).
type UniformAngles struct{}

func (UniformAngles) Angles(src rand.Source, n int) []float64 {
	u := distuv.Uniform{Min: 0, Max: 2 * math.Pi, Src: src}
	out := make([]float64, n)
	for i := range out {
		out[i] = u.Rand()
	}
	return out
}

// NormalAngles concentrates points around Mean with spread StdDev.
type NormalAngles struct {
	Mean   float64
	StdDev float64
}

func (a NormalAngles) Angles(src rand.Source, n int) []float64 {
	d := distuv.Normal{Mu: a.Mean, Sigma: a.StdDev, Src: src}
	out := make([]float64, n)
	for i := range out {
		out[i] = d.Rand()
	}
	return out
}

// Labeler assigns a label to a generated (noisy) point.
type Labeler interface {
	Label(src rand.Source, x1, x2 float64) int
}

// ReferenceLabeler labels a point 1 when it lies strictly above the line through
// the origin at Angle.
type ReferenceLabeler struct {
	Angle float64
}

func (l ReferenceLabeler) Label(_ rand.Source, x1, x2 float64) int {
	if x2*math.Cos(l.Angle)-x1*math.Sin(l.Angle) > 0 {
		return 1
	}
	return 0
}

// RandomLabeler ignores position and flips a fair coin. Reactive subgroups carry
// no signal about the boundary; they only matter through where they sit.
type RandomLabeler struct{}

func (RandomLabeler) Label(src rand.Source, _, _ float64) int {
	return int(distuv.Bernoulli{P: 0.5, Src: src}.Rand())
}

// Generator combines an angle distribution with a labeling rule and a group tag.
type Generator struct {
	Angles AngleDistribution
	Labels Labeler
	Group  string
}

// Baseline returns the fixed-subgroup generator: uniform angles, labels from the
// reference line at refAngle.
func Baseline(refAngle float64) Generator {
	return Generator{
		Angles: UniformAngles{},
		Labels: ReferenceLabeler{Angle: refAngle},
		Group:  dataset.GroupA,
	}
}

// Reactive returns the reactive-subgroup generator: normal angles around mean,
// random labels.
func Reactive(mean, spread float64) Generator {
	return Generator{
		Angles: NormalAngles{Mean: mean, StdDev: spread},
		Labels: RandomLabeler{},
		Group:  dataset.GroupB,
	}
}

// Generate draws n points with isotropic Gaussian noise of standard deviation sigma.
func (g Generator) Generate(src rand.Source, n int, sigma float64) (dataset.Dataset, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: n=%d must be >= 0", ErrInvalidParameter, n)
	}
	if sigma < 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return nil, fmt.Errorf("%w: sigma=%v must be finite and >= 0", ErrInvalidParameter, sigma)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidParameter)
	}

	angles := g.Angles.Angles(src, n)

	x1 := make([]float64, n)
	x2 := make([]float64, n)
	noise := distuv.Normal{Mu: 0, Sigma: sigma, Src: src}
	for i, a := range angles {
		x1[i] = math.Cos(a)
		x2[i] = math.Sin(a)
		x1[i] += noise.Rand()
		x2[i] += noise.Rand()
	}

	out := make(dataset.Dataset, n)
	for i := range out {
		out[i] = dataset.Point{
			X1:    x1[i],
			X2:    x2[i],
			Label: g.Labels.Label(src, x1[i], x2[i]),
			Group: g.Group,
		}
	}
	return out, nil
}

// ShiftedVariants generates count reactive datasets whose mean angles are spread
// over the circle, the i-th centered at (i/count)·2π·variation and tagged
// "B_shifted_<i>".
func ShiftedVariants(src rand.Source, n, count int, variation, sigma, spread float64) ([]dataset.Dataset, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: count=%d must be >= 0", ErrInvalidParameter, count)
	}
	out := make([]dataset.Dataset, 0, count)
	for i := 0; i < count; i++ {
		mean := float64(i) / float64(count) * 2 * math.Pi * variation
		g := Reactive(mean, spread)
		g.Group = fmt.Sprintf("%s_%d", dataset.GroupBShifted, i)
		d, err := g.Generate(src, n, sigma)
		if err != nil {
			return nil, fmt.Errorf("variant %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}
