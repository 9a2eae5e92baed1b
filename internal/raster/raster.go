// SPDX-License-Identifier: MIT
/*
Package raster implements the fixed-size pixel buffers the frame synthesizer
reads from and writes into.

Pixels are stored row-major, four bytes per pixel (R, G, B, A), which is the
same layout as image.NRGBA. A MutableRaster always owns its pixel slice;
seeds are copied on construction.
*/
package raster

import (
	"errors"
	"fmt"
	"image"
	imgcolor "image/color"

	"spectrail/internal/color"
)

// Channels is the number of bytes per pixel.
const Channels = 4

var (
	ErrOutOfBounds  = errors.New("raster: coordinates out of bounds")
	ErrSizeMismatch = errors.New("raster: pixel buffer does not match dimensions")
	ErrInvalidSize  = errors.New("raster: dimensions must be positive")
)

// Raster is the read-only view of a frame.
type Raster interface {
	Width() int
	Height() int
	Get(x, y int) (color.Color, error)
}

// ColorFunc computes a new pixel value from the current one.
type ColorFunc func(current color.Color) color.Color

// MutableRaster is a frame that can be written pixel by pixel.
type MutableRaster struct {
	width  int
	height int
	pix    []uint8
}

// Compile-time checks for interface implementations.
var _ Raster = (*MutableRaster)(nil)
var _ image.Image = (*MutableRaster)(nil)

// New returns a zero-initialised raster (transparent black).
func New(width, height int) (*MutableRaster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	return &MutableRaster{
		width:  width,
		height: height,
		pix:    make([]uint8, width*height*Channels),
	}, nil
}

// FromPixels copies seed into a new raster. The seed must hold exactly
// width*height*4 bytes.
func FromPixels(width, height int, seed []uint8) (*MutableRaster, error) {
	r, err := New(width, height)
	if err != nil {
		return nil, err
	}
	if len(seed) != len(r.pix) {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(seed), len(r.pix))
	}
	copy(r.pix, seed)
	return r, nil
}

func (r *MutableRaster) Width() int  { return r.width }
func (r *MutableRaster) Height() int { return r.height }

// Get returns the pixel at (x, y).
func (r *MutableRaster) Get(x, y int) (color.Color, error) {
	i, err := r.offset(x, y)
	if err != nil {
		return color.Color{}, err
	}
	p := r.pix[i : i+Channels : i+Channels]
	return color.Color{R: p[0], G: p[1], B: p[2], A: p[3]}, nil
}

// Set writes c at (x, y).
func (r *MutableRaster) Set(x, y int, c color.Color) error {
	i, err := r.offset(x, y)
	if err != nil {
		return err
	}
	r.put(i, c)
	return nil
}

// Update replaces the pixel at (x, y) with fn applied to its current value.
func (r *MutableRaster) Update(x, y int, fn ColorFunc) error {
	i, err := r.offset(x, y)
	if err != nil {
		return err
	}
	p := r.pix[i : i+Channels : i+Channels]
	r.put(i, fn(color.Color{R: p[0], G: p[1], B: p[2], A: p[3]}))
	return nil
}

// Pixels exposes the backing slice. Callers must treat it as read-only.
func (r *MutableRaster) Pixels() []uint8 {
	return r.pix
}

// NRGBA wraps the backing slice in an image.NRGBA without copying.
func (r *MutableRaster) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    r.pix,
		Stride: r.width * Channels,
		Rect:   image.Rect(0, 0, r.width, r.height),
	}
}

func (r *MutableRaster) ColorModel() imgcolor.Model { return imgcolor.NRGBAModel }
func (r *MutableRaster) Bounds() image.Rectangle    { return image.Rect(0, 0, r.width, r.height) }

// At implements image.Image. Out-of-range coordinates yield transparent.
func (r *MutableRaster) At(x, y int) imgcolor.Color {
	c, err := r.Get(x, y)
	if err != nil {
		return imgcolor.NRGBA{}
	}
	return c.NRGBA()
}

func (r *MutableRaster) offset(x, y int) (int, error) {
	if x < 0 || x >= r.width || y < 0 || y >= r.height {
		return 0, fmt.Errorf("%w: (%d, %d) outside %dx%d", ErrOutOfBounds, x, y, r.width, r.height)
	}
	return (y*r.width + x) * Channels, nil
}

func (r *MutableRaster) put(i int, c color.Color) {
	p := r.pix[i : i+Channels : i+Channels]
	p[0], p[1], p[2], p[3] = c.R, c.G, c.B, c.A
}
