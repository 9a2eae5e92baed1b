// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultFramesPerBuffer is the block size pulled from a source per callback.
const DefaultFramesPerBuffer = 512

// Context carries the per-session stream format and the playback clock. One
// is created per session and handed to everything that needs it.
type Context struct {
	sampleRate      int
	channels        int
	framesPerBuffer int
	frames          atomic.Int64
}

// NewContext validates the stream format.
func NewContext(sampleRate, channels, framesPerBuffer int) (*Context, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channels must be positive, got %d", channels)
	}
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	return &Context{
		sampleRate:      sampleRate,
		channels:        channels,
		framesPerBuffer: framesPerBuffer,
	}, nil
}

func (c *Context) SampleRate() int      { return c.sampleRate }
func (c *Context) Channels() int        { return c.channels }
func (c *Context) FramesPerBuffer() int { return c.framesPerBuffer }

// Advance moves the clock forward by n frames.
func (c *Context) Advance(n int) { c.frames.Add(int64(n)) }

// Frames returns the number of frames played so far.
func (c *Context) Frames() int64 { return c.frames.Load() }

// CurrentTime returns the playback position.
func (c *Context) CurrentTime() time.Duration {
	return time.Duration(c.frames.Load()) * time.Second / time.Duration(c.sampleRate)
}
