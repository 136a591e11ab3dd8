package loop

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates a history.
type Summary struct {
	Steps      int
	Fallbacks  int
	MinLoss    float64
	MaxLoss    float64
	MeanLoss   float64
	FirstTheta float64
	FinalTheta float64
	ThetaDrift float64 // sum of |theta_k - theta_{k-1}|
}

// Summarize computes aggregate stats from a history. An empty history gives the
// zero Summary.
func Summarize(h History) Summary {
	s := Summary{Steps: len(h)}
	if len(h) == 0 {
		return s
	}
	losses := h.Losses()
	thetas := h.Thetas()
	s.MinLoss = floats.Min(losses)
	s.MaxLoss = floats.Max(losses)
	s.MeanLoss = stat.Mean(losses, nil)
	s.FirstTheta = thetas[0]
	s.FinalTheta = thetas[len(thetas)-1]
	for i, step := range h {
		if step.Fallback {
			s.Fallbacks++
		}
		if i > 0 {
			s.ThetaDrift += math.Abs(thetas[i] - thetas[i-1])
		}
	}
	return s
}
