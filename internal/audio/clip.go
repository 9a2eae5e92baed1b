// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
)

var ErrUnsupportedFormat = errors.New("audio: unsupported file format")

// resampleQuality is beep's interpolation quality (1 is linear, 6 is high).
const resampleQuality = 4

// Clip is a fully decoded audio file.
type Clip struct {
	SampleRate int
	Channels   int
	Samples    []float32 // Interleaved, len = Frames()*Channels.
}

// Frames returns the number of sample frames in the clip.
func (c *Clip) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the playing time of the clip.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// LoadFile decodes a .wav or .mp3 file.
func LoadFile(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		defer f.Close()
		clip, err := DecodeWAV(f)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return clip, nil
	case ".mp3":
		// The mp3 decoder takes ownership of f.
		clip, err := DecodeMP3(f)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return clip, nil
	default:
		f.Close()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// DecodeWAV reads a PCM WAV stream.
func DecodeWAV(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV file", ErrUnsupportedFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%w: missing format chunk", ErrUnsupportedFormat)
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = buf.SourceBitDepth
	}
	if depth < 8 || depth > 32 {
		return nil, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, depth)
	}

	samples := make([]float32, len(buf.Data))
	if depth == 8 {
		// 8-bit PCM is unsigned.
		for i, v := range buf.Data {
			samples[i] = float32(v-128) / 128
		}
	} else {
		scale := float32(int64(1) << (depth - 1))
		for i, v := range buf.Data {
			samples[i] = float32(v) / scale
		}
	}

	return &Clip{
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
		Samples:    samples,
	}, nil
}

// DecodeMP3 decodes an MP3 stream and closes rc.
func DecodeMP3(rc io.ReadCloser) (*Clip, error) {
	stream, format, err := mp3.Decode(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	defer stream.Close()

	clip := &Clip{SampleRate: int(format.SampleRate), Channels: format.NumChannels}
	if clip.Channels != 1 {
		clip.Channels = 2
	}
	if n := stream.Len(); n > 0 {
		clip.Samples = make([]float32, 0, n*clip.Channels)
	}
	if err := drain(clip, stream); err != nil {
		return nil, err
	}
	return clip, nil
}

// Resample converts the clip to rate using beep's resampler.
func (c *Clip) Resample(rate int) (*Clip, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", rate)
	}
	if rate == c.SampleRate {
		return c, nil
	}
	r := beep.Resample(resampleQuality, beep.SampleRate(c.SampleRate), beep.SampleRate(rate), &clipStreamer{clip: c})
	out := &Clip{SampleRate: rate, Channels: c.Channels}
	out.Samples = make([]float32, 0, int(int64(len(c.Samples))*int64(rate)/int64(c.SampleRate))+c.Channels)
	if err := drain(out, r); err != nil {
		return nil, err
	}
	return out, nil
}

// drain appends every frame of s to clip, keeping only the left channel for
// mono clips.
func drain(clip *Clip, s beep.Streamer) error {
	var block [512][2]float64
	for {
		n, ok := s.Stream(block[:])
		for _, frame := range block[:n] {
			clip.Samples = append(clip.Samples, float32(frame[0]))
			if clip.Channels == 2 {
				clip.Samples = append(clip.Samples, float32(frame[1]))
			}
		}
		if !ok {
			return s.Err()
		}
	}
}

// clipStreamer exposes a Clip as a beep.Streamer.
type clipStreamer struct {
	clip *Clip
	pos  int // Frame position.
}

func (s *clipStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	ch := s.clip.Channels
	frames := s.clip.Frames()
	if s.pos >= frames {
		return 0, false
	}
	for n < len(samples) && s.pos < frames {
		i := s.pos * ch
		left := float64(s.clip.Samples[i])
		right := left
		if ch > 1 {
			right = float64(s.clip.Samples[i+1])
		}
		samples[n] = [2]float64{left, right}
		n++
		s.pos++
	}
	return n, true
}

func (s *clipStreamer) Err() error { return nil }
