package dataset

import "errors"

// #region groups
// Group tags used by the generators and the feedback loop. Tags are free-form;
// the scorer never reads them.
const (
	GroupA         = "A"
	GroupB         = "B"
	GroupBModified = "B_modified"
	GroupBShifted  = "B_shifted"
)

// #endregion groups

// #region point
// Point is a single labeled observation. Label is 0 or 1.
type Point struct {
	X1    float64
	X2    float64
	Label int
	Group string
}

// Dataset is an ordered sequence of points. Order only matters for display and
// reproducibility, never for scoring.
type Dataset []Point

// #endregion point

// ErrInvalidPoint is returned by Validate for non-binary labels or non-finite coordinates.
var ErrInvalidPoint = errors.New("invalid point")
