// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"runtime"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PlayerOptions select the output device and stream shape.
type PlayerOptions struct {
	DeviceID   int  // DefaultDeviceID for the host default.
	LowLatency bool // Prefer the device's low output latency.
}

// Player drives a BufferSource from a PortAudio output stream.
type Player struct {
	src     *BufferSource
	ctx     *Context
	device  *portaudio.DeviceInfo
	latency time.Duration
	stream  *portaudio.Stream
}

// NewPlayer resolves the output device. PortAudio must be initialised.
func NewPlayer(ctx *Context, src *BufferSource, opts PlayerOptions) (*Player, error) {
	device, err := OutputDevice(opts.DeviceID)
	if err != nil {
		return nil, err
	}
	if device.MaxOutputChannels < ctx.Channels() {
		return nil, fmt.Errorf("device %s supports %d output channels, need %d",
			device.Name, device.MaxOutputChannels, ctx.Channels())
	}

	p := &Player{src: src, ctx: ctx, device: device}
	if opts.LowLatency {
		p.latency = device.DefaultLowOutputLatency
	} else {
		p.latency = device.DefaultHighOutputLatency
	}
	return p, nil
}

// Device returns the name of the output device.
func (p *Player) Device() string { return p.device.Name }

// Start opens the output stream and begins pulling from the source.
func (p *Player) Start() error {
	if p.stream != nil {
		return nil
	}
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Channels: p.ctx.Channels(),
			Device:   p.device,
			Latency:  p.latency,
		},
		FramesPerBuffer: p.ctx.FramesPerBuffer(),
		SampleRate:      float64(p.ctx.SampleRate()),
	}

	stream, err := portaudio.OpenStream(params, p.processOutputStream)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	p.stream = stream
	logger.Infof("Output stream started on %s (%d Hz, %d ch, latency %v)",
		p.device.Name, p.ctx.SampleRate(), p.ctx.Channels(), p.latency)
	return nil
}

// Stop stops and closes the output stream.
func (p *Player) Stop() error {
	if p.stream == nil {
		return nil
	}
	if err := p.stream.Stop(); err != nil {
		return err
	}
	if err := p.stream.Close(); err != nil {
		return err
	}
	p.stream = nil
	return nil
}

// processOutputStream is the PortAudio callback. It only copies from the
// pre-decoded clip.
func (p *Player) processOutputStream(out []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	p.src.Read(out)
}
