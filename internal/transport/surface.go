// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"spectrail/internal/raster"
	"spectrail/internal/render"
)

// FrameOptions configure a FrameSurface.
type FrameOptions struct {
	// Scale multiplies both dimensions; values below 1 mean 1.
	Scale int
	// MinInterval drops frames presented sooner than this after the last
	// sent one. Zero sends every frame.
	MinInterval time.Duration
	// Smooth selects bilinear instead of nearest-neighbour scaling.
	Smooth bool
}

// FrameSurface encodes presented frames as PNG and sends them through a
// Transport.
type FrameSurface struct {
	t    Transport
	opts FrameOptions
	now  func() time.Time

	mu       sync.Mutex
	scaled   *image.NRGBA
	enc      png.Encoder
	buf      bytes.Buffer
	lastSent time.Time
	sent     uint64
}

// Compile-time check.
var _ render.Surface = (*FrameSurface)(nil)

// NewFrameSurface wraps t.
func NewFrameSurface(t Transport, opts FrameOptions) (*FrameSurface, error) {
	if t == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if opts.Scale < 1 {
		opts.Scale = 1
	}
	return &FrameSurface{
		t:    t,
		opts: opts,
		now:  time.Now,
		enc:  png.Encoder{CompressionLevel: png.BestSpeed},
	}, nil
}

// Present encodes and sends frame. Without listeners, or while rate
// limited, it reports render.ErrSurfaceUnavailable.
func (s *FrameSurface) Present(frame *raster.MutableRaster) error {
	if l, ok := s.t.(Listeners); ok && l.Clients() == 0 {
		return render.ErrSurfaceUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.MinInterval > 0 {
		now := s.now()
		if !s.lastSent.IsZero() && now.Sub(s.lastSent) < s.opts.MinInterval {
			return render.ErrSurfaceUnavailable
		}
		s.lastSent = now
	}

	var img image.Image = frame.NRGBA()
	if s.opts.Scale > 1 {
		img = s.scale(frame)
	}
	s.buf.Reset()
	if err := s.enc.Encode(&s.buf, img); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	// The transport may hold on to the payload; hand it a copy.
	if err := s.t.Send(bytes.Clone(s.buf.Bytes())); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	s.sent++
	return nil
}

func (s *FrameSurface) scale(frame *raster.MutableRaster) *image.NRGBA {
	b := frame.Bounds()
	dst := image.Rect(0, 0, b.Dx()*s.opts.Scale, b.Dy()*s.opts.Scale)
	if s.scaled == nil || s.scaled.Rect != dst {
		s.scaled = image.NewNRGBA(dst)
	}
	var scaler draw.Scaler = draw.NearestNeighbor
	if s.opts.Smooth {
		scaler = draw.BiLinear
	}
	scaler.Scale(s.scaled, dst, frame.NRGBA(), b, draw.Src, nil)
	return s.scaled
}

// Sent returns the number of frames handed to the transport.
func (s *FrameSurface) Sent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}
