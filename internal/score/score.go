// Package score evaluates a boundary angle against labeled points with a smoothed
// log-loss.
package score

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/justinmeimar/performative/go-sim/internal/dataset"
)

const (
	// Sharpness steepens the sigmoid applied to the signed distance.
	Sharpness = 5.0
	// Epsilon bounds probabilities away from 0 and 1.
	Epsilon = 1e-15
)

// Distance is the signed perpendicular distance from p to the line through the
// origin at angle theta. Positive means above the line. The direction-vector form
// has no singularity at theta = π/2.
func Distance(p dataset.Point, theta float64) float64 {
	return p.X2*math.Cos(theta) - p.X1*math.Sin(theta)
}

// Probability maps a signed distance to a clipped pseudo-probability of label 1.
func Probability(d float64) float64 {
	p := 1 / (1 + math.Exp(-Sharpness*d))
	return clip(p)
}

func clip(p float64) float64 {
	if p < Epsilon {
		return Epsilon
	}
	if p > 1-Epsilon {
		return 1 - Epsilon
	}
	return p
}

// Score returns the mean binary cross-entropy of data under the boundary at theta.
// Terms are summed in sorted order, so any permutation of data gives a
// bit-identical result. An empty dataset scores 0.
func Score(data dataset.Dataset, theta float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sin, cos := math.Sincos(theta)
	terms := make([]float64, len(data))
	for i, p := range data {
		prob := Probability(p.X2*cos - p.X1*sin)
		if p.Label == 1 {
			terms[i] = -math.Log(prob)
		} else {
			terms[i] = -math.Log(1 - prob)
		}
	}
	slices.Sort(terms)
	return floats.Sum(terms) / float64(len(terms))
}

// Gradient returns dScore/dtheta. Clipped points contribute nothing, matching the
// flat region the clip introduces.
func Gradient(data dataset.Dataset, theta float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sin, cos := math.Sincos(theta)
	terms := make([]float64, len(data))
	for i, p := range data {
		d := p.X2*cos - p.X1*sin
		raw := 1 / (1 + math.Exp(-Sharpness*d))
		if raw < Epsilon || raw > 1-Epsilon {
			continue
		}
		// dLoss/dd = k(p - y); dd/dtheta = -(x2 sinθ + x1 cosθ)
		terms[i] = Sharpness * (raw - float64(p.Label)) * -(p.X2*sin + p.X1*cos)
	}
	slices.Sort(terms)
	return floats.Sum(terms) / float64(len(terms))
}

// Accuracy is the fraction of points on the side of the boundary their label predicts.
func Accuracy(data dataset.Dataset, theta float64) float64 {
	if len(data) == 0 {
		return 0
	}
	correct := 0
	for _, p := range data {
		above := Distance(p, theta) > 0
		if above == (p.Label == 1) {
			correct++
		}
	}
	return float64(correct) / float64(len(data))
}
