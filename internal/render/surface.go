// SPDX-License-Identifier: MIT
package render

import (
	"errors"

	"spectrail/internal/raster"
)

// Surface displays one frame per tick. Present must not retain frame after
// returning; the loop writes into it again two ticks later. A surface that
// cannot show the frame right now returns ErrSurfaceUnavailable.
type Surface interface {
	Present(frame *raster.MutableRaster) error
}

// SurfaceFunc adapts a function to the Surface interface.
type SurfaceFunc func(frame *raster.MutableRaster) error

func (f SurfaceFunc) Present(frame *raster.MutableRaster) error { return f(frame) }

// MultiSurface presents every frame to each of its surfaces in order.
type MultiSurface []Surface

// Present returns ErrSurfaceUnavailable only when no surface accepted the
// frame. Other failures are joined.
func (m MultiSurface) Present(frame *raster.MutableRaster) error {
	var errs []error
	shown := 0
	for _, s := range m {
		if s == nil {
			continue
		}
		err := s.Present(frame)
		switch {
		case err == nil:
			shown++
		case errors.Is(err, ErrSurfaceUnavailable):
		default:
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if shown == 0 {
		return ErrSurfaceUnavailable
	}
	return nil
}
