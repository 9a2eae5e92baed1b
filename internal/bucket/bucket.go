// SPDX-License-Identifier: MIT
/*
Package bucket maps display scanlines onto sub-ranges of a linear frequency
magnitude array so that low scanlines draw from narrow ranges of low bins and
high scanlines from wide ranges of high bins, approximating logarithmic pitch
perception.

The cumulative boundary function is

	bound(0) = 0
	bound(i) = bound(i-1) + (i/H * factor)^exponent
	factor   = log2(N) / log2(H)

and is tabulated once per session (H+1 entries), since the height and bin
count are fixed for its lifetime.
*/
package bucket

import (
	"errors"
	"fmt"
	"math"
)

// DefaultExponent is the power-law exponent of the bucket width curve.
const DefaultExponent = 6

var ErrInvalidSize = errors.New("bucket: height and bin count must be positive")

// Options tune the mapping. The zero value gives the reference curve.
type Options struct {
	Offset   int     // Bins skipped at the low end (e.g. below 50 Hz).
	Exponent float64 // Power-law exponent; 0 means DefaultExponent.
	Divisor  float64 // Normalisation divisor applied to each mean; 0 means 1.
}

// Mapper is an immutable scanline-to-bin lookup table.
type Mapper struct {
	height  int
	bins    int
	offset  int
	divisor float64
	factor  float64
	bounds  []float64 // len height+1, non-decreasing, bounds[0] == 0
}

// New tabulates the mapping for height scanlines over bins magnitudes.
func New(height, bins int, opts Options) (*Mapper, error) {
	if height <= 0 || bins <= 0 {
		return nil, fmt.Errorf("%w: height=%d bins=%d", ErrInvalidSize, height, bins)
	}
	exponent := opts.Exponent
	if exponent <= 0 {
		exponent = DefaultExponent
	}
	divisor := opts.Divisor
	if divisor <= 0 {
		divisor = 1
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	// log2(1) is zero; a single scanline spans the spectrum linearly instead.
	factor := math.Log2(float64(bins))
	if height > 1 {
		factor /= math.Log2(float64(height))
	}

	bounds := make([]float64, height+1)
	for i := 1; i <= height; i++ {
		bounds[i] = bounds[i-1] + math.Pow(float64(i)/float64(height)*factor, exponent)
	}

	return &Mapper{
		height:  height,
		bins:    bins,
		offset:  offset,
		divisor: divisor,
		factor:  factor,
		bounds:  bounds,
	}, nil
}

func (m *Mapper) Height() int { return m.height }
func (m *Mapper) Bins() int   { return m.bins }

// Factor is the log2(N)/log2(H) scale applied to the normalised scanline.
func (m *Mapper) Factor() float64 { return m.factor }

// Bound returns the cumulative boundary for i in [0, height].
func (m *Mapper) Bound(i int) float64 {
	if i <= 0 {
		return 0
	}
	if i > m.height {
		i = m.height
	}
	return m.bounds[i]
}

// Range returns the half-open bin range [from, to) for scanline i. The range
// always holds at least one bin and never leaves [0, bins).
func (m *Mapper) Range(i int) (from, to int) {
	from = m.offset + int(math.Round(m.Bound(i)))
	to = m.offset + int(math.Round(m.Bound(i+1)))
	if from > m.bins-1 {
		from = m.bins - 1
	}
	if to > m.bins {
		to = m.bins
	}
	if to <= from {
		to = from + 1
	}
	return from, to
}

// Value reduces scanline i's sub-range of mags to its arithmetic mean divided
// by the normalisation divisor. Bins beyond len(mags) are ignored.
func (m *Mapper) Value(mags []uint8, i int) float64 {
	from, to := m.Range(i)
	if to > len(mags) {
		to = len(mags)
	}
	if from >= to {
		return 0
	}
	sum := 0
	for _, v := range mags[from:to] {
		sum += int(v)
	}
	return float64(sum) / float64(to-from) / m.divisor
}

// Values fills dst (one entry per scanline) and returns it. dst is grown if
// it is shorter than the height.
func (m *Mapper) Values(mags []uint8, dst []float64) []float64 {
	if cap(dst) < m.height {
		dst = make([]float64, m.height)
	}
	dst = dst[:m.height]
	for i := range dst {
		dst[i] = m.Value(mags, i)
	}
	return dst
}
