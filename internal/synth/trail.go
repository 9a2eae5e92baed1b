// SPDX-License-Identifier: MIT
package synth

import (
	"spectrail/internal/color"
)

// Trail is the reference synthesizer. The boundary column gets
//
//	{r: v-512, g: v, b: v-256, a: 255}
//
// with v scaled by 1 + 2*Something/100, so quiet scanlines are green and
// loud ones run through cyan to white. Every other column copies its
// upstream neighbour from the previous frame unchanged.
func Trail(opts Options) Func {
	opts = opts.normalise()
	gain := 1 + 2*opts.Something/MaxSomething

	return func(f Frame) error {
		if err := f.validate(); err != nil {
			return err
		}
		boundary := f.boundary(opts.Mirror)

		for i := range f.Height {
			y := f.row(i, opts.LowAtTop)
			v := opts.gate(f.Buckets.Value(f.Magnitudes, i)) * gain
			fresh := color.Clamped(v-512, v, v-256, 255)

			for x := range f.Width {
				if x == boundary {
					if err := f.Current.Set(x, y, fresh); err != nil {
						return err
					}
					continue
				}
				prev, err := f.Previous.Get(upstream(x, boundary), y)
				if err != nil {
					return err
				}
				if err := f.Current.Set(x, y, prev); err != nil {
					return err
				}
			}
		}
		return nil
	}
}
