// Package shift moves points around the origin, the way a reactive subgroup
// responds to a deployed boundary.
package shift

import (
	"errors"
	"fmt"
	"math"

	"github.com/justinmeimar/performative/go-sim/internal/dataset"
)

// ErrInvalidSchedule is returned for a pattern with a non-finite angle or a
// direction outside {-1, 0, +1}.
var ErrInvalidSchedule = errors.New("invalid shift schedule")

// #region rotate
// Rotate turns p counterclockwise by angle about the origin, keeping its radius,
// label and group. A zero angle returns p unchanged.
func Rotate(p dataset.Point, angle float64) dataset.Point {
	if angle == 0 {
		return p
	}
	r := math.Hypot(p.X1, p.X2)
	phi := math.Atan2(p.X2, p.X1) + angle
	sin, cos := math.Sincos(phi)
	p.X1 = r * cos
	p.X2 = r * sin
	return p
}

// RotateWhere returns a copy of ds in which every point matching keep is rotated
// by angle. The input is not modified.
func RotateWhere(ds dataset.Dataset, keep func(dataset.Point) bool, angle float64) dataset.Dataset {
	out := ds.Clone()
	for i, p := range out {
		if keep(p) {
			out[i] = Rotate(p, angle)
		}
	}
	return out
}

// RotateGroup rotates the points tagged group and copies the rest.
func RotateGroup(ds dataset.Dataset, group string, angle float64) dataset.Dataset {
	return RotateWhere(ds, func(p dataset.Point) bool { return p.Group == group }, angle)
}

// ModifyLabelOne rotates the label-1 points of group by -amount and retags the
// whole group B_modified. Other groups are copied as they are.
func ModifyLabelOne(ds dataset.Dataset, group string, amount float64) dataset.Dataset {
	out := ds.Clone()
	for i, p := range out {
		if p.Group != group {
			continue
		}
		if p.Label == 1 {
			p = Rotate(p, -amount)
		}
		p.Group = dataset.GroupBModified
		out[i] = p
	}
	return out
}

// #endregion rotate

// #region schedule
// Pattern is one entry of a shift schedule. Direction is -1, 0 or +1.
type Pattern struct {
	Angle     float64 `json:"angle"`
	Direction int     `json:"direction"`
}

// Offset is the signed rotation the pattern applies.
func (p Pattern) Offset() float64 {
	return p.Angle * float64(p.Direction)
}

// Schedule is a cyclic list of patterns; iteration k uses At(k-1).
type Schedule []Pattern

// DefaultSchedule alternates the reactive group between clockwise and
// counterclockwise moves of π/3, π/2 and 2π/3.
func DefaultSchedule() Schedule {
	return Schedule{
		{Angle: math.Pi / 3, Direction: -1},
		{Angle: math.Pi / 2, Direction: 1},
		{Angle: 2 * math.Pi / 3, Direction: -1},
		{Angle: math.Pi / 2, Direction: 1},
		{Angle: math.Pi / 3, Direction: -1},
		{Angle: math.Pi / 2, Direction: 1},
	}
}

// Zero returns a schedule of n patterns that never move anything.
func Zero(n int) Schedule {
	return make(Schedule, n)
}

// At returns the pattern for 0-based step i, wrapping around. An empty schedule
// yields the zero pattern.
func (s Schedule) At(i int) Pattern {
	if len(s) == 0 {
		return Pattern{}
	}
	i %= len(s)
	if i < 0 {
		i += len(s)
	}
	return s[i]
}

// Validate checks every pattern.
func (s Schedule) Validate() error {
	for i, p := range s {
		if math.IsNaN(p.Angle) || math.IsInf(p.Angle, 0) {
			return fmt.Errorf("%w: pattern %d angle %v not finite", ErrInvalidSchedule, i, p.Angle)
		}
		if p.Direction < -1 || p.Direction > 1 {
			return fmt.Errorf("%w: pattern %d direction %d not in {-1, 0, 1}", ErrInvalidSchedule, i, p.Direction)
		}
	}
	return nil
}

// #endregion schedule
