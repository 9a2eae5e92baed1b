// SPDX-License-Identifier: MIT
/*
Package synth holds the frame synthesizers: pure functions that draw one
display frame from the current magnitudes and the previous frame.

Every synthesizer walks the scanlines, reduces each one to a single value v
(0-255) through the bucket mapper, seeds a boundary column with a fresh
colour derived from v and fills the rest of the row from the previous frame
shifted one column away from the boundary. Successive frames therefore
scroll the spectrum history sideways, producing a trail.

All state lives in Frame.Previous; a Func may be re-run every tick.
*/
package synth

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"spectrail/internal/bucket"
	"spectrail/internal/raster"
)

// Defaults for Options.
const (
	DefaultRatio  = 0.1
	MaxSomething  = 100
	ReferenceName = "trail"
)

var ErrUnknown = errors.New("synth: unknown synthesizer")

// Frame is the input of one synthesis pass.
type Frame struct {
	Magnitudes []uint8        // Analyser bins, index 0 lowest. Read-only.
	Buckets    *bucket.Mapper // Scanline to bin mapping for Height.
	Previous   raster.Raster  // Last completed frame. Read-only.
	Current    *raster.MutableRaster
	Width      int
	Height     int
}

// Func draws Current from Magnitudes and Previous.
type Func func(f Frame) error

// Options parameterise a synthesizer. They are fixed when the Func is built.
type Options struct {
	// Mirror moves the boundary column to Width/2; both halves drift outward.
	Mirror bool
	// Something is the user-tunable effect scalar in [0, MaxSomething].
	Something float64
	// Threshold gates scanline values: v <= Threshold draws as silence.
	Threshold float64
	// LowAtTop draws scanline 0 (lowest bins) on the top row instead of the
	// bottom row.
	LowAtTop bool
	// Ratio is the blend weight of the fresh colour on feedback pixels;
	// 0 means DefaultRatio.
	Ratio float64
}

func (o Options) normalise() Options {
	if math.IsNaN(o.Something) || o.Something < 0 {
		o.Something = 0
	} else if o.Something > MaxSomething {
		o.Something = MaxSomething
	}
	if math.IsNaN(o.Ratio) || o.Ratio <= 0 {
		o.Ratio = DefaultRatio
	} else if o.Ratio > 1 {
		o.Ratio = 1
	}
	if math.IsNaN(o.Threshold) || o.Threshold < 0 {
		o.Threshold = 0
	}
	return o
}

// gate applies the threshold to a scanline value.
func (o Options) gate(v float64) float64 {
	if v <= o.Threshold {
		return 0
	}
	return v
}

var registry = map[string]func(Options) Func{
	"trail": Trail,
	"blend": Blend,
}

// ByName builds the synthesizer registered under name (case-insensitive).
func ByName(name string, opts Options) (Func, error) {
	build, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknown, name, strings.Join(Names(), ", "))
	}
	return build(opts), nil
}

// Names lists the registered synthesizers in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (f Frame) validate() error {
	if f.Current == nil || f.Previous == nil || f.Buckets == nil {
		return fmt.Errorf("%w: incomplete frame", raster.ErrSizeMismatch)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", raster.ErrInvalidSize, f.Width, f.Height)
	}
	if f.Current.Width() != f.Width || f.Current.Height() != f.Height ||
		f.Previous.Width() != f.Width || f.Previous.Height() != f.Height {
		return fmt.Errorf("%w: frame %dx%d, current %dx%d, previous %dx%d", raster.ErrSizeMismatch,
			f.Width, f.Height, f.Current.Width(), f.Current.Height(), f.Previous.Width(), f.Previous.Height())
	}
	if f.Buckets.Height() != f.Height {
		return fmt.Errorf("%w: bucket table has %d scanlines, frame %d", raster.ErrSizeMismatch, f.Buckets.Height(), f.Height)
	}
	return nil
}

// row returns the y coordinate of scanline i.
func (f Frame) row(i int, lowAtTop bool) int {
	if lowAtTop {
		return i
	}
	return f.Height - i - 1
}

// boundary returns the column that always receives the fresh colour.
func (f Frame) boundary(mirror bool) int {
	if mirror {
		return f.Width / 2
	}
	return f.Width - 1
}

// upstream returns the column of the previous frame that feeds column x:
// the neighbour one step closer to the boundary.
func upstream(x, boundary int) int {
	if x > boundary {
		return x - 1
	}
	return x + 1
}

// reach returns the normalised distance of x from the boundary, 0 at the
// boundary and approaching 1 at the far edge.
func (f Frame) reach(x, boundary int, mirror bool) float64 {
	if !mirror {
		return float64(boundary-x) / float64(f.Width)
	}
	span := max(f.Width/2, 1)
	d := x - boundary
	if d < 0 {
		d = -d
	}
	return float64(d) / float64(span)
}
