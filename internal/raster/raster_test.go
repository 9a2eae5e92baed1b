// SPDX-License-Identifier: MIT
package raster

import (
	"bytes"
	"errors"
	"image/png"
	"testing"

	"spectrail/internal/color"
)

func mustNew(t testing.TB, w, h int) *MutableRaster {
	t.Helper()
	r, err := New(w, h)
	if err != nil {
		t.Fatalf("New(%d, %d): %v", w, h, err)
	}
	return r
}

func TestSetGetRoundTrip(t *testing.T) {
	r := mustNew(t, 7, 5)
	for y := range r.Height() {
		for x := range r.Width() {
			c := color.Color{R: uint8(x * 30), G: uint8(y * 50), B: uint8(x + y), A: uint8(255 - x)}
			if err := r.Set(x, y, c); err != nil {
				t.Fatalf("Set(%d, %d): %v", x, y, err)
			}
			got, err := r.Get(x, y)
			if err != nil {
				t.Fatalf("Get(%d, %d): %v", x, y, err)
			}
			if got != c {
				t.Fatalf("Get(%d, %d) = %v, want %v", x, y, got, c)
			}
		}
	}
}

func TestSetClampedColor(t *testing.T) {
	r := mustNew(t, 1, 1)
	c := color.Clamped(-40, 300, 128, 999)
	if err := r.Set(0, 0, c); err != nil {
		t.Fatal(err)
	}
	got, _ := r.Get(0, 0)
	if got != (color.Color{R: 0, G: 255, B: 128, A: 255}) {
		t.Errorf("got %v", got)
	}
}

func TestBounds(t *testing.T) {
	r := mustNew(t, 4, 3)
	tests := []struct {
		name string
		x, y int
		ok   bool
	}{
		{"Origin", 0, 0, true},
		{"LastPixel", 3, 2, true},
		{"NegativeX", -1, 0, false},
		{"NegativeY", 0, -1, false},
		{"XEqualsWidth", 4, 0, false},
		{"YEqualsHeight", 0, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, getErr := r.Get(tt.x, tt.y)
			setErr := r.Set(tt.x, tt.y, color.White)
			updErr := r.Update(tt.x, tt.y, func(c color.Color) color.Color { return c })
			for _, err := range []error{getErr, setErr, updErr} {
				if tt.ok && err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if !tt.ok && !errors.Is(err, ErrOutOfBounds) {
					t.Errorf("expected ErrOutOfBounds, got %v", err)
				}
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	r := mustNew(t, 2, 2)
	_ = r.Set(1, 1, color.Color{R: 10, G: 20, B: 30, A: 40})
	err := r.Update(1, 1, func(c color.Color) color.Color {
		c.R *= 2
		c.A = 255
		return c
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := r.Get(1, 1)
	if got != (color.Color{R: 20, G: 20, B: 30, A: 255}) {
		t.Errorf("Update result = %v", got)
	}
}

func TestFromPixelsCopiesSeed(t *testing.T) {
	seed := make([]uint8, 2*2*Channels)
	seed[0] = 99
	r, err := FromPixels(2, 2, seed)
	if err != nil {
		t.Fatal(err)
	}
	seed[0] = 1
	got, _ := r.Get(0, 0)
	if got.R != 99 {
		t.Errorf("raster shares seed buffer: R = %d", got.R)
	}
}

func TestFromPixelsSizeMismatch(t *testing.T) {
	_, err := FromPixels(2, 2, make([]uint8, 15))
	if !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("expected ErrSizeMismatch, got %v", err)
	}
}

func TestNewInvalidSize(t *testing.T) {
	for _, dims := range [][2]int{{0, 1}, {1, 0}, {-3, 4}} {
		if _, err := New(dims[0], dims[1]); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("New(%d, %d): expected ErrInvalidSize, got %v", dims[0], dims[1], err)
		}
	}
}

func TestImageEncoding(t *testing.T) {
	r, err := FromPixels(3, 2, bytes.Repeat([]uint8{0, 0, 0, 255}, 6))
	if err != nil {
		t.Fatal(err)
	}
	_ = r.Set(2, 1, color.White)

	var buf bytes.Buffer
	if err := png.Encode(&buf, r); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if got := color.FromStd(img.At(2, 1)); got != color.White {
		t.Errorf("decoded pixel = %v, want white", got)
	}
	if got := color.FromStd(r.NRGBA().At(2, 1)); got != color.White {
		t.Errorf("NRGBA view pixel = %v, want white", got)
	}
}

func TestGetNoAllocs(t *testing.T) {
	r := mustNew(t, 64, 64)
	allocs := testing.AllocsPerRun(100, func() {
		for x := range 64 {
			c, _ := r.Get(x, 10)
			_ = r.Set(x, 11, c)
		}
	})
	if allocs > 0 {
		t.Errorf("Get/Set allocated: got %.1f allocs, want 0", allocs)
	}
}
