// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	applog "spectrail/internal/log"
)

var logger = applog.Named("audio")

// BufferSource plays a decoded Clip. Read is pulled by a Player callback or,
// without an output device, by Run.
type BufferSource struct {
	ctx  *Context
	clip *Clip
	taps tapSet

	pos     atomic.Int64 // Next frame to play.
	playing atomic.Bool

	done     chan struct{}
	doneOnce sync.Once

	// OnEnded is invoked once when playback reaches the end of the clip or
	// the source is disposed.
	OnEnded func()
}

// Compile-time check for interface implementation.
var _ Source = (*BufferSource)(nil)

// NewBufferSource binds clip to ctx. The clip must already match the
// context's sample rate and channel count.
func NewBufferSource(ctx *Context, clip *Clip) *BufferSource {
	return &BufferSource{
		ctx:  ctx,
		clip: clip,
		done: make(chan struct{}),
	}
}

func (s *BufferSource) SampleRate() int       { return s.clip.SampleRate }
func (s *BufferSource) Channels() int         { return s.clip.Channels }
func (s *BufferSource) Connect(t Tap)         { s.taps.add(t) }
func (s *BufferSource) Disconnect(t Tap)      { s.taps.remove(t) }
func (s *BufferSource) Done() <-chan struct{} { return s.done }

// Taps returns the number of connected taps.
func (s *BufferSource) Taps() int { return s.taps.len() }

// Play starts (or resumes) playback.
func (s *BufferSource) Play() {
	select {
	case <-s.done:
		return
	default:
	}
	s.playing.Store(true)
}

// Pause holds playback; Read yields silence without advancing.
func (s *BufferSource) Pause() { s.playing.Store(false) }

// Playing reports whether Read currently advances through the clip.
func (s *BufferSource) Playing() bool { return s.playing.Load() }

// Position returns the playback position.
func (s *BufferSource) Position() time.Duration {
	return time.Duration(s.pos.Load()) * time.Second / time.Duration(s.clip.SampleRate)
}

// Read fills out with the next interleaved samples, fans them out to the
// taps and returns the number of samples copied from the clip. The rest of
// out is zeroed. It runs on the audio goroutine.
func (s *BufferSource) Read(out []float32) int {
	if !s.playing.Load() {
		clear(out)
		return 0
	}

	ch := s.clip.Channels
	start := int(s.pos.Load()) * ch
	n := copy(out, s.clip.Samples[min(start, len(s.clip.Samples)):])
	n -= n % ch
	clear(out[n:])

	if n > 0 {
		frames := n / ch
		s.pos.Add(int64(frames))
		s.ctx.Advance(frames)
		s.taps.fanOut(out[:n])
	}
	if start+n >= len(s.clip.Samples) {
		s.end()
	}
	return n
}

// Run paces Read in real time without an output device, for headless
// rendering. It returns when the clip ends or ctx is cancelled.
func (s *BufferSource) Run(ctx context.Context) {
	frames := s.ctx.FramesPerBuffer()
	period := time.Duration(frames) * time.Second / time.Duration(s.clip.SampleRate)
	buf := make([]float32, frames*s.clip.Channels)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.Read(buf)
		}
	}
}

// Dispose stops playback and fires the ended notification.
func (s *BufferSource) Dispose() { s.end() }

func (s *BufferSource) end() {
	s.doneOnce.Do(func() {
		s.playing.Store(false)
		close(s.done)
		logger.Debugf("Source ended at %v", s.Position())
		if s.OnEnded != nil {
			s.OnEnded()
		}
	})
}
