// SPDX-License-Identifier: MIT
package synth

import (
	"spectrail/internal/color"
)

// Hue sweep of Blend: silence maps to hueBase, full scale to hueBase+hueSpan.
const (
	hueBase = 240.0
	hueSpan = -240.0
)

// Blend paints an HSV band whose width follows the loudness of each
// scanline: column x is fresh while its distance from the boundary,
// normalised to the drawable width, is below v/255. Outside the band the
// previous frame is sampled one column upstream and one row down (wrapping)
// and mixed toward the fresh colour by Ratio, so the trail drifts diagonally
// and fades. Something rotates the hue (100 is a full turn).
func Blend(opts Options) Func {
	opts = opts.normalise()
	rotate := opts.Something / MaxSomething * 360

	return func(f Frame) error {
		if err := f.validate(); err != nil {
			return err
		}
		boundary := f.boundary(opts.Mirror)

		for i := range f.Height {
			y := f.row(i, opts.LowAtTop)
			v := opts.gate(f.Buckets.Value(f.Magnitudes, i))
			level := v / 255
			fresh := color.FromHSV(hueBase+hueSpan*level+rotate, 1, level, 255)
			below := (y + 1) % f.Height

			for x := range f.Width {
				c := fresh
				if x != boundary && f.reach(x, boundary, opts.Mirror) >= level {
					prev, err := f.Previous.Get(upstream(x, boundary), below)
					if err != nil {
						return err
					}
					c = color.Mix(prev, fresh, opts.Ratio)
				}
				if err := f.Current.Set(x, y, c); err != nil {
					return err
				}
			}
		}
		return nil
	}
}
