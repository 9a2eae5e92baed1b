// SPDX-License-Identifier: MIT
package record

import (
	"image"
	"sync"
	"time"

	"spectrail/internal/raster"
)

// SinkOptions configure an encoder sink.
type SinkOptions struct {
	MIMEType   string
	Bitrate    int
	FPS        int
	SampleRate int
	Channels   int
	Realtime   bool
}

// Sink encodes the tapped audio and video into chunks.
type Sink interface {
	// Start begins delivering encoded chunks to onChunk every interval.
	Start(interval time.Duration, onChunk func([]byte)) error
	// WriteFrame encodes one video frame. frame is only valid for the call.
	WriteFrame(frame image.Image) error
	// WriteSamples receives audio on the audio goroutine.
	WriteSamples(buf []float32)
	// Stop flushes pending data through onChunk and releases the sink.
	Stop() error
	// Active reports whether the sink started and has encoded anything.
	Active() bool
	MIMEType() string
}

// SidecarSink is a Sink that produces a second stream stored next to the
// main artifact.
type SidecarSink interface {
	Sink
	Sidecar() (name, mimeType string, data []byte)
}

// SinkFactory creates the sink of one recording.
type SinkFactory func(opts SinkOptions) (Sink, error)

// VideoTap is the capturable side of the presentation surface. It is a
// render surface: add it next to the display surface and every presented
// frame reaches the attached sink.
type VideoTap struct {
	mu   sync.Mutex
	sink Sink
}

// Present forwards frame to the attached sink. Without a sink it does
// nothing.
func (v *VideoTap) Present(frame *raster.MutableRaster) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sink == nil {
		return nil
	}
	return v.sink.WriteFrame(frame)
}

// Attached reports whether a recording is tapping the video.
func (v *VideoTap) Attached() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sink != nil
}

func (v *VideoTap) attach(s Sink) {
	v.mu.Lock()
	v.sink = s
	v.mu.Unlock()
}

func (v *VideoTap) detach() {
	v.mu.Lock()
	v.sink = nil
	v.mu.Unlock()
}
