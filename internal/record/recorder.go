// SPDX-License-Identifier: MIT
/*
Package record captures the presented frames and the playing audio into a
downloadable artifact.

A Recorder moves through Idle -> Armed -> Recording -> Idle. Arm taps the
audio source and the video tap into a fresh encoder sink and clears the
chunk list; Start lets the sink deliver chunks every flush interval; Stop
flushes the sink, joins the chunks into one artifact, hands it to the Store
and reports it through OnStopped. A recording that never produced a chunk
emits nothing.
*/
package record

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"spectrail/internal/audio"
	applog "spectrail/internal/log"
)

// Recorder defaults.
const (
	DefaultFlushInterval = 500 * time.Millisecond
	DefaultBitrate       = 8 * 1024 * 1024
	DefaultFPS           = 30
	DefaultFilename      = "video.mjpeg"
)

var (
	ErrResourceUnavailable = errors.New("record: resource unavailable")
	ErrEmptyArtifact       = errors.New("record: nothing was recorded")
	ErrBusy                = errors.New("record: recorder is not idle")
)

var logger = applog.Named("record")

// State of a Recorder.
type State int32

const (
	Idle State = iota
	Armed
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Recording:
		return "recording"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Artifact describes a stored recording.
type Artifact struct {
	URL      string
	Filename string
	MIMEType string
	Size     int
	// Sidecar holds the separately stored audio track, if the sink made one.
	Sidecar *Artifact
}

// Options configure a Recorder.
type Options struct {
	MIMEType      string        // Empty means the sink's own type.
	Bitrate       int           // Target video bits per second.
	FPS           int           // Capture rate.
	FlushInterval time.Duration // Chunk delivery period.
	Filename      string        // Suggested artifact name.
	Realtime      bool          // Drop frames presented faster than FPS.
}

func (o Options) withDefaults() Options {
	if o.Bitrate <= 0 {
		o.Bitrate = DefaultBitrate
	}
	if o.FPS <= 0 {
		o.FPS = DefaultFPS
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.Filename == "" {
		o.Filename = DefaultFilename
	}
	return o
}

// Recorder owns one recording at a time.
type Recorder struct {
	newSink SinkFactory
	store   Store
	opts    Options

	// OnStarted is called when the sink starts.
	OnStarted func()
	// OnStopped receives every emitted artifact.
	OnStopped func(Artifact)

	mu       sync.Mutex
	state    State
	sink     Sink
	src      audio.Source
	audioTap *sinkTap
	video    *VideoTap

	chunksMu sync.Mutex
	chunks   [][]byte
}

// NewRecorder builds an idle recorder.
func NewRecorder(newSink SinkFactory, store Store, opts Options) (*Recorder, error) {
	if newSink == nil {
		return nil, fmt.Errorf("sink factory cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	return &Recorder{newSink: newSink, store: store, opts: opts.withDefaults()}, nil
}

// State returns the current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Arm taps src and video into a new sink.
func (r *Recorder) Arm(src audio.Source, video *VideoTap) error {
	if src == nil || video == nil {
		return fmt.Errorf("%w: audio and video taps are required", ErrResourceUnavailable)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Idle {
		return fmt.Errorf("%w: %s", ErrBusy, r.state)
	}

	r.chunksMu.Lock()
	r.chunks = nil
	r.chunksMu.Unlock()

	sink, err := r.newSink(SinkOptions{
		MIMEType:   r.opts.MIMEType,
		Bitrate:    r.opts.Bitrate,
		FPS:        r.opts.FPS,
		SampleRate: src.SampleRate(),
		Channels:   src.Channels(),
		Realtime:   r.opts.Realtime,
	})
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}

	r.sink = sink
	r.src = src
	r.audioTap = &sinkTap{sink: sink}
	r.video = video
	src.Connect(r.audioTap)
	video.attach(sink)
	r.state = Armed
	logger.Debugf("Armed (%s, %d bps, %d fps)", sink.MIMEType(), r.opts.Bitrate, r.opts.FPS)
	return nil
}

// Start begins chunk delivery.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.state != Armed {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("cannot start recording in state %s", state)
	}
	if err := r.sink.Start(r.opts.FlushInterval, r.appendChunk); err != nil {
		r.releaseLocked()
		r.mu.Unlock()
		return fmt.Errorf("failed to start sink: %w", err)
	}
	r.state = Recording
	cb := r.OnStarted
	r.mu.Unlock()

	logger.Infof("Recording started")
	if cb != nil {
		cb()
	}
	return nil
}

func (r *Recorder) appendChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	r.chunksMu.Lock()
	r.chunks = append(r.chunks, chunk)
	r.chunksMu.Unlock()
}

// Stop ends the recording and emits the artifact. Stopping an idle
// recorder does nothing; a recording with no data is dropped without error.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	state := r.state
	if state == Idle {
		r.mu.Unlock()
		return nil
	}

	sink := r.sink
	active := state == Recording && sink.Active()
	// Detach first so no data reaches the sink while it flushes.
	r.detachLocked()
	var stopErr error
	if state == Recording {
		stopErr = sink.Stop()
	}
	r.releaseLocked()
	cb := r.OnStopped
	r.mu.Unlock()

	r.chunksMu.Lock()
	chunks := r.chunks
	r.chunks = nil
	r.chunksMu.Unlock()

	if stopErr != nil {
		return fmt.Errorf("failed to stop sink: %w", stopErr)
	}
	if !active || len(chunks) == 0 {
		logger.Infof("Recording stopped: %v", ErrEmptyArtifact)
		return nil
	}

	artifact, err := r.emit(sink, bytes.Join(chunks, nil))
	if err != nil {
		return err
	}
	logger.Infof("Recording stopped: %s (%d bytes) at %s", artifact.Filename, artifact.Size, artifact.URL)
	if cb != nil {
		cb(artifact)
	}
	return nil
}

func (r *Recorder) emit(sink Sink, data []byte) (Artifact, error) {
	mime := sink.MIMEType()
	url, err := r.store.Put(r.opts.Filename, mime, data)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to store recording: %w", err)
	}
	artifact := Artifact{URL: url, Filename: r.opts.Filename, MIMEType: mime, Size: len(data)}

	if sc, ok := sink.(SidecarSink); ok {
		if name, scMIME, scData := sc.Sidecar(); len(scData) > 0 {
			scURL, err := r.store.Put(name, scMIME, scData)
			if err != nil {
				return Artifact{}, fmt.Errorf("failed to store %s: %w", name, err)
			}
			artifact.Sidecar = &Artifact{URL: scURL, Filename: name, MIMEType: scMIME, Size: len(scData)}
		}
	}
	return artifact, nil
}

func (r *Recorder) detachLocked() {
	if r.src != nil && r.audioTap != nil {
		r.src.Disconnect(r.audioTap)
	}
	if r.video != nil {
		r.video.detach()
	}
}

func (r *Recorder) releaseLocked() {
	r.detachLocked()
	r.sink = nil
	r.src = nil
	r.audioTap = nil
	r.video = nil
	r.state = Idle
}

// sinkTap forwards the audio side channel into the sink.
type sinkTap struct {
	sink Sink
}

func (t *sinkTap) Samples(buf []float32) { t.sink.WriteSamples(buf) }
