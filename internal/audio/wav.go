// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavBitDepth is the sample size written by WAVWriter.
const wavBitDepth = 16

// WAVWriter streams float samples into a 16-bit PCM WAV file.
type WAVWriter struct {
	encoder *wav.Encoder
	buf     *goaudio.IntBuffer // Reusable buffer for format conversion
	frames  int
}

// NewWAVWriter writes a WAV header to w. Close must be called to patch the
// chunk sizes.
func NewWAVWriter(w io.WriteSeeker, sampleRate, channels int) (*WAVWriter, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid WAV format: %d Hz, %d channels", sampleRate, channels)
	}
	return &WAVWriter{
		encoder: wav.NewEncoder(w, sampleRate, wavBitDepth, channels, 1),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: wavBitDepth,
		},
	}, nil
}

// Write appends interleaved samples, clipping to [-1, 1].
func (w *WAVWriter) Write(samples []float32) error {
	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	const peak = 1<<(wavBitDepth-1) - 1
	for i, s := range samples {
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		w.buf.Data[i] = int(s * peak)
	}
	if err := w.encoder.Write(w.buf); err != nil {
		return fmt.Errorf("error writing WAV samples: %w", err)
	}
	w.frames += len(samples) / w.buf.Format.NumChannels
	return nil
}

// Frames returns the number of frames written so far.
func (w *WAVWriter) Frames() int { return w.frames }

// Close finalises the WAV header.
func (w *WAVWriter) Close() error {
	return w.encoder.Close()
}

// EncodeWAV writes a whole clip.
func EncodeWAV(w io.WriteSeeker, clip *Clip) error {
	ww, err := NewWAVWriter(w, clip.SampleRate, clip.Channels)
	if err != nil {
		return err
	}
	if err := ww.Write(clip.Samples); err != nil {
		return err
	}
	return ww.Close()
}
