// SPDX-License-Identifier: MIT
/*
Package color holds the 4-channel pixel value used by the rasters and the
mixer that blends two of them.

Channels are stored as 8-bit values, so a Color is always inside [0,255].
Anything that computes channels in floating point goes through Clamped or
Mix, which clamp and round on the way in.
*/
package color

import (
	"math"

	imgcolor "image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is a non-premultiplied RGBA value.
type Color struct {
	R, G, B, A uint8
}

var (
	Black       = Color{0, 0, 0, 255}
	White       = Color{255, 255, 255, 255}
	Transparent = Color{}
)

// Clamped builds a Color from arbitrary float channels. Each channel is
// rounded and clamped to [0,255]; NaN becomes 0.
func Clamped(r, g, b, a float64) Color {
	return Color{
		R: channel(r),
		G: channel(g),
		B: channel(b),
		A: channel(a),
	}
}

// Mix linearly interpolates from a to b. ratio 0 yields a, ratio 1 yields b.
// The ratio is clamped to [0,1] and every output channel to [0,255].
func Mix(a, b Color, ratio float64) Color {
	if math.IsNaN(ratio) || ratio < 0 {
		ratio = 0
	} else if ratio > 1 {
		ratio = 1
	}
	inv := 1 - ratio
	return Color{
		R: channel(float64(a.R)*inv + float64(b.R)*ratio),
		G: channel(float64(a.G)*inv + float64(b.G)*ratio),
		B: channel(float64(a.B)*inv + float64(b.B)*ratio),
		A: channel(float64(a.A)*inv + float64(b.A)*ratio),
	}
}

// FromHSV converts hue (degrees), saturation and value (0..1) to an opaque
// Color with the given alpha.
func FromHSV(hue, saturation, value float64, alpha uint8) Color {
	hue = math.Mod(hue, 360)
	if hue < 0 {
		hue += 360
	}
	r, g, b := colorful.Hsv(hue, clamp01(saturation), clamp01(value)).Clamped().RGB255()
	return Color{R: r, G: g, B: b, A: alpha}
}

// IsBlack reports whether all colour channels are zero, ignoring alpha.
func (c Color) IsBlack() bool {
	return c.R == 0 && c.G == 0 && c.B == 0
}

// NRGBA converts to the standard library representation.
func (c Color) NRGBA() imgcolor.NRGBA {
	return imgcolor.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}
}

// FromStd converts any standard library colour.
func FromStd(c imgcolor.Color) Color {
	n := imgcolor.NRGBAModel.Convert(c).(imgcolor.NRGBA)
	return Color{R: n.R, G: n.G, B: n.B, A: n.A}
}

func channel(v float64) uint8 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(math.Round(v))
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
