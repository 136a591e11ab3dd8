// Package series packs a run's per-iteration theta, loss and offset into a
// single mebo numeric blob, one tick per iteration.
package series

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/arloliu/mebo"
)

// Metric names stored in every blob.
const (
	MetricTheta  = "theta"
	MetricLoss   = "loss"
	MetricOffset = "offset"
)

// Tick is the spacing between consecutive iterations on the blob's time axis.
const Tick = time.Second

// ErrLengthMismatch is returned when the three series differ in length.
var ErrLengthMismatch = errors.New("series length mismatch")

// Series is the decoded content of a blob.
type Series struct {
	Start  time.Time
	Theta  []float64
	Loss   []float64
	Offset []float64
}

// Len is the number of iterations recorded.
func (s Series) Len() int { return len(s.Theta) }

// Encode writes the three series with timestamps start + k·Tick. Each series must
// hold between 1 and 65535 points.
func Encode(start time.Time, s Series) ([]byte, error) {
	n := len(s.Theta)
	if len(s.Loss) != n || len(s.Offset) != n {
		return nil, fmt.Errorf("%w: theta=%d loss=%d offset=%d", ErrLengthMismatch, n, len(s.Loss), len(s.Offset))
	}
	if n == 0 {
		return nil, errors.New("encode series: no points")
	}

	enc, err := mebo.NewDefaultNumericEncoder(start)
	if err != nil {
		return nil, fmt.Errorf("new encoder: %w", err)
	}
	for _, m := range []struct {
		name   string
		values []float64
	}{
		{MetricTheta, s.Theta},
		{MetricLoss, s.Loss},
		{MetricOffset, s.Offset},
	} {
		if err := enc.StartMetricID(mebo.MetricID(m.name), n); err != nil {
			return nil, fmt.Errorf("start %s: %w", m.name, err)
		}
		for k, v := range m.values {
			ts := start.Add(time.Duration(k) * Tick).UnixMicro()
			if err := enc.AddDataPoint(ts, v, ""); err != nil {
				return nil, fmt.Errorf("add %s[%d]: %w", m.name, k, err)
			}
		}
		if err := enc.EndMetric(); err != nil {
			return nil, fmt.Errorf("end %s: %w", m.name, err)
		}
	}

	data, err := enc.Finish()
	if err != nil {
		return nil, fmt.Errorf("finish: %w", err)
	}
	return data, nil
}

// Decode reads a blob written by Encode.
func Decode(data []byte) (Series, error) {
	dec, err := mebo.NewNumericDecoder(data)
	if err != nil {
		return Series{}, fmt.Errorf("new decoder: %w", err)
	}
	blob, err := dec.Decode()
	if err != nil {
		return Series{}, fmt.Errorf("decode: %w", err)
	}

	out := Series{Start: blob.StartTime()}
	for _, m := range []struct {
		name string
		dst  *[]float64
	}{
		{MetricTheta, &out.Theta},
		{MetricLoss, &out.Loss},
		{MetricOffset, &out.Offset},
	} {
		id := mebo.MetricID(m.name)
		if !blob.HasMetricID(id) {
			return Series{}, fmt.Errorf("decode: metric %q missing", m.name)
		}
		*m.dst = slices.Collect(blob.AllValues(id))
	}
	if len(out.Loss) != len(out.Theta) || len(out.Offset) != len(out.Theta) {
		return Series{}, fmt.Errorf("%w: theta=%d loss=%d offset=%d", ErrLengthMismatch, len(out.Theta), len(out.Loss), len(out.Offset))
	}
	return out, nil
}
