// SPDX-License-Identifier: MIT
package record

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"sync"
	"time"

	"spectrail/internal/audio"
)

// MIME types produced by MJPEGSink.
const (
	MJPEGMIMEType   = "video/x-motion-jpeg"
	WAVMIMEType     = "audio/wav"
	SidecarFilename = "audio.wav"
)

var errSinkStopped = errors.New("record: sink stopped")

// MJPEGSink encodes every accepted frame as a baseline JPEG and delivers the
// concatenated stream in chunks. Audio is written to a 16-bit WAV sidecar.
type MJPEGSink struct {
	opts     SinkOptions
	quality  int
	minFrame time.Duration
	now      func() time.Time

	mu        sync.Mutex
	started   bool
	stopped   bool
	pending   bytes.Buffer
	lastFrame time.Time
	frames    int
	onChunk   func([]byte)

	audioMu   sync.Mutex
	audioFile *os.File // WAV sidecar, encoded on disk while recording.
	wav       *audio.WAVWriter
	audio     []byte

	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Compile-time checks for interface implementations.
var _ SidecarSink = (*MJPEGSink)(nil)

// NewMJPEGSink is a SinkFactory.
func NewMJPEGSink(opts SinkOptions) (Sink, error) {
	if opts.MIMEType != "" && opts.MIMEType != MJPEGMIMEType {
		return nil, fmt.Errorf("%w: MJPEG sink cannot produce %q", ErrResourceUnavailable, opts.MIMEType)
	}
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.Bitrate <= 0 {
		opts.Bitrate = DefaultBitrate
	}
	s := &MJPEGSink{
		opts:     opts,
		minFrame: time.Second / time.Duration(opts.FPS),
		now:      time.Now,
		doneChan: make(chan struct{}),
	}
	return s, nil
}

// openSidecar creates the temporary WAV file the audio tap writes to.
func (s *MJPEGSink) openSidecar() error {
	f, err := os.CreateTemp("", "spectrail-*.wav")
	if err != nil {
		return fmt.Errorf("failed to create audio sidecar: %w", err)
	}
	w, err := audio.NewWAVWriter(f, s.opts.SampleRate, s.opts.Channels)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	s.audioFile, s.wav = f, w
	return nil
}

// closeSidecar finalises the WAV header, reads the file back and removes it.
func (s *MJPEGSink) closeSidecar() error {
	f := s.audioFile
	defer os.Remove(f.Name())

	err := s.wav.Close()
	if err == nil {
		if _, err = f.Seek(0, io.SeekStart); err == nil {
			s.audio, err = io.ReadAll(f)
		}
	}
	return errors.Join(err, f.Close())
}

func (s *MJPEGSink) MIMEType() string { return MJPEGMIMEType }

// Start begins periodic chunk delivery.
func (s *MJPEGSink) Start(interval time.Duration, onChunk func([]byte)) error {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return errSinkStopped
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	if s.opts.SampleRate > 0 && s.opts.Channels > 0 {
		if err := s.openSidecar(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.started = true
	s.onChunk = onChunk
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.flush()
			case <-s.doneChan:
				return
			}
		}
	}()
	return nil
}

// WriteFrame encodes frame unless the sink is idle or, in realtime mode,
// the previous frame is less than 1/FPS old.
func (s *MJPEGSink) WriteFrame(frame image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return nil
	}
	if s.opts.Realtime {
		now := s.now()
		if !s.lastFrame.IsZero() && now.Sub(s.lastFrame) < s.minFrame {
			return nil
		}
		s.lastFrame = now
	}
	if s.quality == 0 {
		s.quality = jpegQuality(s.opts.Bitrate, s.opts.FPS, frame.Bounds())
	}
	if err := jpeg.Encode(&s.pending, frame, &jpeg.Options{Quality: s.quality}); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	s.frames++
	return nil
}

// WriteSamples appends audio to the WAV sidecar.
func (s *MJPEGSink) WriteSamples(buf []float32) {
	s.mu.Lock()
	live := s.started && !s.stopped
	s.mu.Unlock()
	if !live || s.wav == nil {
		return
	}
	s.audioMu.Lock()
	if err := s.wav.Write(buf); err != nil {
		logger.Warnf("Dropping audio: %v", err)
	}
	s.audioMu.Unlock()
}

func (s *MJPEGSink) flush() {
	s.mu.Lock()
	if s.pending.Len() == 0 || s.onChunk == nil {
		s.mu.Unlock()
		return
	}
	chunk := bytes.Clone(s.pending.Bytes())
	s.pending.Reset()
	onChunk := s.onChunk
	s.mu.Unlock()

	onChunk(chunk)
}

// Active reports whether at least one frame was encoded since Start.
func (s *MJPEGSink) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped && s.frames > 0
}

// Frames returns the number of encoded frames.
func (s *MJPEGSink) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Stop halts the flush goroutine, delivers what is left and finalises the
// sidecar. Safe to call repeatedly.
func (s *MJPEGSink) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.doneChan)
		s.wg.Wait()
		s.flush()

		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		if s.wav != nil {
			s.audioMu.Lock()
			err = s.closeSidecar()
			s.audioMu.Unlock()
		}
	})
	return err
}

// Sidecar returns the finalised WAV track, or nothing before Stop.
func (s *MJPEGSink) Sidecar() (name, mimeType string, data []byte) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if !stopped || s.wav == nil || s.wav.Frames() == 0 {
		return SidecarFilename, WAVMIMEType, nil
	}
	s.audioMu.Lock()
	defer s.audioMu.Unlock()
	return SidecarFilename, WAVMIMEType, s.audio
}

// jpegQuality spreads the bitrate budget over the frame's pixels. Around
// 0.5 bits per pixel gives quality 10 and 4 bits per pixel or more gives 95.
func jpegQuality(bitrate, fps int, bounds image.Rectangle) int {
	pixels := bounds.Dx() * bounds.Dy()
	if pixels <= 0 || fps <= 0 {
		return jpeg.DefaultQuality
	}
	bpp := float64(bitrate) / float64(fps) / float64(pixels)
	q := int(10 + (bpp-0.5)*85/3.5)
	return max(10, min(q, 95))
}
