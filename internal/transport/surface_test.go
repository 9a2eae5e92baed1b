// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"errors"
	"image/png"
	"testing"
	"time"

	"spectrail/internal/color"
	"spectrail/internal/raster"
	"spectrail/internal/render"
)

type captureTransport struct {
	payloads [][]byte
	clients  int
}

func (c *captureTransport) Send(data []byte) error {
	c.payloads = append(c.payloads, data)
	return nil
}
func (c *captureTransport) Close() error { return nil }
func (c *captureTransport) Clients() int { return c.clients }

func testFrame(t *testing.T) *raster.MutableRaster {
	t.Helper()
	frame, err := raster.FromPixels(2, 2, bytes.Repeat([]uint8{0, 0, 0, 255}, 4))
	if err != nil {
		t.Fatal(err)
	}
	if err := frame.Set(1, 0, color.Color{R: 255, A: 255}); err != nil {
		t.Fatal(err)
	}
	return frame
}

func TestFrameSurfaceEncodes(t *testing.T) {
	tests := []struct {
		name  string
		scale int
		size  int
	}{
		{"Native", 0, 2},
		{"Upscaled", 3, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &captureTransport{clients: 1}
			s, err := NewFrameSurface(tr, FrameOptions{Scale: tt.scale})
			if err != nil {
				t.Fatal(err)
			}
			if err := s.Present(testFrame(t)); err != nil {
				t.Fatal(err)
			}
			if len(tr.payloads) != 1 || s.Sent() != 1 {
				t.Fatalf("payloads = %d, sent = %d", len(tr.payloads), s.Sent())
			}

			img, err := png.Decode(bytes.NewReader(tr.payloads[0]))
			if err != nil {
				t.Fatal(err)
			}
			if b := img.Bounds(); b.Dx() != tt.size || b.Dy() != tt.size {
				t.Fatalf("decoded size = %v, want %dx%d", b, tt.size, tt.size)
			}
			if got := color.FromStd(img.At(tt.size-1, 0)); got != (color.Color{R: 255, A: 255}) {
				t.Errorf("top right = %+v, want red", got)
			}
			if got := color.FromStd(img.At(0, tt.size-1)); got != color.Black {
				t.Errorf("bottom left = %+v, want black", got)
			}
		})
	}
}

func TestFrameSurfaceUnavailable(t *testing.T) {
	t.Run("No listeners", func(t *testing.T) {
		tr := &captureTransport{}
		s, _ := NewFrameSurface(tr, FrameOptions{})
		if err := s.Present(testFrame(t)); !errors.Is(err, render.ErrSurfaceUnavailable) {
			t.Errorf("Present() = %v, want ErrSurfaceUnavailable", err)
		}
		if len(tr.payloads) != 0 {
			t.Error("frame sent without listeners")
		}
	})

	t.Run("Rate limited", func(t *testing.T) {
		tr := &captureTransport{clients: 1}
		s, _ := NewFrameSurface(tr, FrameOptions{MinInterval: 100 * time.Millisecond})
		clock := time.Unix(10, 0)
		s.now = func() time.Time { return clock }

		frame := testFrame(t)
		var unavailable int
		for _, step := range []time.Duration{0, 40 * time.Millisecond, 70 * time.Millisecond} {
			clock = clock.Add(step)
			if err := s.Present(frame); errors.Is(err, render.ErrSurfaceUnavailable) {
				unavailable++
			}
		}
		if unavailable != 1 || len(tr.payloads) != 2 {
			t.Errorf("unavailable = %d, sent = %d, want 1 and 2", unavailable, len(tr.payloads))
		}
	})
}

func TestNewFrameSurfaceNilTransport(t *testing.T) {
	if _, err := NewFrameSurface(nil, FrameOptions{}); err == nil {
		t.Error("expected error for nil transport")
	}
}

func TestLoggingTransport(t *testing.T) {
	lt := NewLoggingTransport(2)
	s, _ := NewFrameSurface(lt, FrameOptions{})
	frame := testFrame(t)
	for range 3 {
		if err := s.Present(frame); err != nil {
			t.Fatal(err)
		}
	}
	n, b := lt.Sent()
	if n != 3 || b == 0 {
		t.Errorf("Sent() = %d payloads, %d bytes", n, b)
	}
	if err := lt.Close(); err != nil {
		t.Error(err)
	}
}

func BenchmarkFrameSurfacePresent(b *testing.B) {
	frame, _ := raster.New(144, 256)
	s, _ := NewFrameSurface(&captureTransport{clients: 1}, FrameOptions{Scale: 2})
	for b.Loop() {
		_ = s.Present(frame)
	}
}
