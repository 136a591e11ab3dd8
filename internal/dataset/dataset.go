package dataset

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// #region validate
// Validate checks that every label is in {0,1} and every coordinate is finite.
func (d Dataset) Validate() error {
	for i, p := range d {
		if p.Label != 0 && p.Label != 1 {
			return fmt.Errorf("%w: point %d has label %d", ErrInvalidPoint, i, p.Label)
		}
		if !finite(p.X1) || !finite(p.X2) {
			return fmt.Errorf("%w: point %d has non-finite coordinates (%v, %v)", ErrInvalidPoint, i, p.X1, p.X2)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// #endregion validate

// #region partition
// Partition splits the dataset into points tagged with group and everything else.
// Both halves keep their relative order and own fresh backing arrays.
func (d Dataset) Partition(group string) (match, rest Dataset) {
	match = make(Dataset, 0, len(d))
	rest = make(Dataset, 0, len(d))
	for _, p := range d {
		if p.Group == group {
			match = append(match, p)
		} else {
			rest = append(rest, p)
		}
	}
	return match, rest
}

// Concat joins datasets into a new one. The result never aliases its inputs.
func Concat(parts ...Dataset) Dataset {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make(Dataset, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Clone returns a copy with its own backing array.
func (d Dataset) Clone() Dataset {
	if d == nil {
		return nil
	}
	out := make(Dataset, len(d))
	copy(out, d)
	return out
}

// WithGroup returns a copy with every point retagged.
func (d Dataset) WithGroup(group string) Dataset {
	out := d.Clone()
	for i := range out {
		out[i].Group = group
	}
	return out
}

// #endregion partition

// #region summaries
// Groups returns the distinct group tags in first-seen order.
func (d Dataset) Groups() []string {
	seen := make(map[string]bool)
	var groups []string
	for _, p := range d {
		if !seen[p.Group] {
			seen[p.Group] = true
			groups = append(groups, p.Group)
		}
	}
	return groups
}

// LabelCounts returns how many points carry label 0 and label 1.
func (d Dataset) LabelCounts() (zeros, ones int) {
	for _, p := range d {
		if p.Label == 1 {
			ones++
		} else {
			zeros++
		}
	}
	return zeros, ones
}

// Fingerprint hashes the canonical encoding of the dataset with xxHash64.
// Equal fingerprints mean byte-identical coordinates, labels and tags in the same order.
func (d Dataset) Fingerprint() uint64 {
	h := xxhash.New()
	var buf []byte
	for _, p := range d {
		buf = appendPoint(buf[:0], p)
		h.Write(buf)
	}
	return h.Sum64()
}

// #endregion summaries

// #region record
// appendPoint writes the fixed record layout shared by Fingerprint and Encode.
func appendPoint(b []byte, p Point) []byte {
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p.X1))
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p.X2))
	b = append(b, byte(p.Label))
	b = binary.AppendUvarint(b, uint64(len(p.Group)))
	return append(b, p.Group...)
}

// #endregion record
