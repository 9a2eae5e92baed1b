// SPDX-License-Identifier: MIT
/*
Package engine wires a decoded clip to the render loop, the presentation
surfaces and the recorder.

Live playback pulls the clip through a PortAudio output stream (or a
real-time pump when headless); the render loop ticks on its own scheduler
and samples whatever the analyser last saw. When the clip ends the loop
tears itself down and any recording is stopped and stored.

Changing the effect (mirror, the "something" scalar, the synthesizer)
swaps the synthesizer, which tears the session down; the engine rewires it
straight away so playback carries on.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"spectrail/internal/analysis"
	"spectrail/internal/audio"
	"spectrail/internal/bucket"
	"spectrail/internal/config"
	applog "spectrail/internal/log"
	"spectrail/internal/record"
	"spectrail/internal/render"
	"spectrail/internal/synth"
	"spectrail/internal/transport"
	"spectrail/internal/transport/udp"
)

var (
	ErrNoClip     = errors.New("engine: no clip loaded")
	ErrNotPlaying = errors.New("engine: not playing")
)

var logger = applog.Named("engine")

// Options configure an Engine beyond the YAML configuration.
type Options struct {
	// Headless paces playback without an audio device.
	Headless bool
	// Store receives recordings. Nil picks a MemoryStore served over the
	// websocket listener when one is configured, a DirStore otherwise.
	Store record.Store
	// Surfaces are presented to in addition to the configured transports.
	Surfaces []render.Surface
	// Scheduler drives the render loop. Nil means a TickerScheduler at
	// the configured frame rate.
	Scheduler render.Scheduler
}

// Engine owns one playback at a time.
type Engine struct {
	cfg      *config.Config
	headless bool

	loop     *render.Loop
	sched    render.Scheduler
	ticker   *render.TickerScheduler // Set when the engine owns the scheduler.
	video    *record.VideoTap
	recorder *record.Recorder
	store    record.Store

	ws        *transport.WebSocketTransport
	publisher *udp.UDPPublisher
	closables []io.Closer

	// OnArtifact receives every stored recording. It may run while the
	// engine is locked and must not call back into it.
	OnArtifact func(record.Artifact)
	// OnEnded is called when a clip plays to its end.
	OnEnded func()

	mu        sync.Mutex
	effect    synth.Options
	synthName string
	saveRecs  bool
	clip      *audio.Clip
	clipName  string
	actx      *audio.Context
	source    *audio.BufferSource
	player    *audio.Player
	stopRun   context.CancelFunc
	runDone   chan struct{}
	failure   error
	surfaces  render.MultiSurface

	resultMu   sync.Mutex
	lastResult *record.Artifact

	peakBin    atomic.Int64
	sampleRate atomic.Int64
	paReady    bool
}

// New builds an engine from cfg.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	e := &Engine{
		cfg:       cfg,
		headless:  opts.Headless,
		video:     &record.VideoTap{},
		synthName: cfg.Effect.Synth,
		saveRecs:  cfg.Recording.Enabled,
		effect: synth.Options{
			Mirror:    cfg.Effect.Mirror,
			Something: cfg.Effect.Something,
			Threshold: cfg.Effect.Threshold,
			LowAtTop:  cfg.Effect.LowAtTop,
			Ratio:     cfg.Effect.Ratio,
		},
	}
	e.peakBin.Store(-1)

	if err := e.setup(opts); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) setup(opts Options) error {
	cfg := e.cfg

	fn, err := synth.ByName(e.synthName, e.effect)
	if err != nil {
		return err
	}

	if !e.headless {
		if err := audio.Initialize(); err != nil {
			return err
		}
		e.paReady = true
	}

	surfaces := render.MultiSurface{e.video}

	if cfg.Transport.WSAddr != "" {
		e.ws = transport.NewWebSocketTransport(cfg.Transport.WSAddr)
		fs, err := transport.NewFrameSurface(e.ws, transport.FrameOptions{Scale: cfg.Canvas.Scale})
		if err != nil {
			return err
		}
		surfaces = append(surfaces, fs)
		e.closables = append(e.closables, e.ws)
	}
	if cfg.Transport.LogFrames {
		lt := transport.NewLoggingTransport(uint64(cfg.Canvas.FPS))
		fs, err := transport.NewFrameSurface(lt, transport.FrameOptions{})
		if err != nil {
			return err
		}
		surfaces = append(surfaces, fs)
		e.closables = append(e.closables, lt)
	}
	surfaces = append(surfaces, opts.Surfaces...)

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		e.closables = append(e.closables, sender)
		pub, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender)
		if err != nil {
			return err
		}
		e.publisher = pub
		// Stop the publisher before its sender closes.
		e.closables = append([]io.Closer{pub}, e.closables...)
	}

	e.store = opts.Store
	if e.store == nil {
		if e.ws != nil {
			mem := record.NewMemoryStore("http://"+cfg.Transport.WSAddr, cfg.Recording.TTL)
			e.ws.Handle(record.ArtifactsPath, mem)
			e.store = mem
		} else {
			e.store = record.DirStore{Dir: cfg.Recording.OutputDir}
		}
	}

	e.recorder, err = record.NewRecorder(record.NewMJPEGSink, e.store, record.Options{
		Bitrate:       cfg.Recording.Bitrate,
		FPS:           cfg.Recording.FPS,
		FlushInterval: cfg.Recording.FlushInterval,
		Filename:      cfg.Recording.Filename,
		Realtime:      true,
	})
	if err != nil {
		return err
	}
	e.recorder.OnStopped = e.artifactStored

	e.sched = opts.Scheduler
	if e.sched == nil {
		e.ticker = render.NewTickerScheduler(cfg.Canvas.FPS)
		e.sched = e.ticker
	}

	e.loop, err = render.NewLoop(render.Options{
		Width:   cfg.Canvas.Width,
		Height:  cfg.Canvas.Height,
		FFTSize: cfg.FFTSize(),
		Buckets: e.bucketOptions(0),
	}, fn, e.sched, e.analyserFactory())
	if err != nil {
		return err
	}
	e.surfaces = surfaces
	e.loop.SetSurface(surfaces)
	e.loop.OnFrame = e.observeFrame
	e.loop.OnError = func(err error) { go e.fail(err) }

	if e.ws != nil {
		if err := e.ws.Start(); err != nil {
			return err
		}
	}
	if e.publisher != nil {
		e.publisher.Start()
	}
	return nil
}

// analyserFactory builds analysers with the configured settings.
func (e *Engine) analyserFactory() render.AnalyserFactory {
	cfg := e.cfg.Analysis
	return func(src audio.Source, fftSize int) (analysis.Resource, error) {
		window, err := analysis.ParseWindowFunc(cfg.Window)
		if err != nil {
			logger.Warnf("%v, using %s", err, window)
		}
		opts := analysis.DefaultOptions(fftSize, 0)
		opts.Window = window
		opts.Smoothing = cfg.Smoothing
		opts.MinDecibels = cfg.MinDecibels
		opts.MaxDecibels = cfg.MaxDecibels
		opts.Gate = cfg.Gate
		return analysis.Connect(src, opts)
	}
}

// bucketOptions resolves the configured offset; -1 skips the bins below
// analysis.FirstUsefulHz at sampleRate.
func (e *Engine) bucketOptions(sampleRate int) bucket.Options {
	cfg := e.cfg.Analysis
	offset := cfg.BucketOffset
	if offset < 0 {
		offset = 0
		if sampleRate > 0 {
			offset = analysis.FirstUsefulBin(float64(sampleRate), e.cfg.FFTSize())
		}
	}
	return bucket.Options{Offset: offset, Exponent: cfg.BucketExponent, Divisor: cfg.BucketDivisor}
}

// Load decodes path and makes it the clip to play. A playing clip is
// stopped first.
func (e *Engine) Load(path string) error {
	clip, err := audio.LoadFile(path)
	if err != nil {
		return err
	}
	return e.SetClip(path, clip)
}

// SetClip makes clip the one to play, resampled to the configured rate.
func (e *Engine) SetClip(name string, clip *audio.Clip) error {
	if rate := e.cfg.Audio.SampleRate; rate > 0 && rate != clip.SampleRate {
		resampled, err := clip.Resample(rate)
		if err != nil {
			return err
		}
		logger.Debugf("Resampled %s from %d Hz to %d Hz", name, clip.SampleRate, rate)
		clip = resampled
	}
	if err := e.Stop(); err != nil {
		return err
	}
	e.mu.Lock()
	e.clip = clip
	e.clipName = name
	e.mu.Unlock()
	logger.Infof("Loaded %s (%d Hz, %d ch, %s)", name, clip.SampleRate, clip.Channels, clip.Duration().Round(time.Millisecond))
	return nil
}

// Play starts the loaded clip from the beginning.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clip == nil {
		return ErrNoClip
	}
	if e.source != nil {
		return nil
	}
	e.failure = nil

	actx, err := audio.NewContext(e.clip.SampleRate, e.clip.Channels, e.cfg.Audio.FramesPerBuffer)
	if err != nil {
		return err
	}
	src := audio.NewBufferSource(actx, e.clip)
	src.OnEnded = func() { go e.ended(src) }

	e.sampleRate.Store(int64(e.clip.SampleRate))
	e.loop.SetBuckets(e.bucketOptions(e.clip.SampleRate))
	if err := e.loop.Wire(src); err != nil {
		return err
	}

	if !e.headless {
		player, err := audio.NewPlayer(actx, src, audio.PlayerOptions{
			DeviceID:   e.cfg.Audio.OutputDevice,
			LowLatency: e.cfg.Audio.LowLatency,
		})
		if err != nil {
			e.loop.TearDown()
			return err
		}
		e.player = player
	}

	e.actx, e.source = actx, src
	if e.saveRecs {
		e.startRecordingLocked()
	}
	if err := e.loop.Start(); err != nil {
		e.releaseLocked()
		return err
	}

	src.Play()
	if e.player != nil {
		if err := e.player.Start(); err != nil {
			e.releaseLocked()
			return err
		}
	} else {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		e.stopRun, e.runDone = cancel, done
		go func() {
			defer close(done)
			src.Run(ctx)
		}()
	}
	logger.Infof("Playing %s", e.clipName)
	return nil
}

// startRecordingLocked arms and starts the recorder. Failures are logged;
// playback continues without a recording.
func (e *Engine) startRecordingLocked() {
	if err := e.recorder.Arm(e.source, e.video); err != nil {
		logger.Warnf("Recording unavailable: %v", err)
		return
	}
	if err := e.recorder.Start(); err != nil {
		logger.Warnf("Recording unavailable: %v", err)
	}
}

// Stop halts playback, tears the render loop down and stores the
// recording. Stopping an idle engine does nothing.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.source == nil {
		return nil
	}
	return e.releaseLocked()
}

func (e *Engine) releaseLocked() error {
	var errs []error
	if err := e.recorder.Stop(); err != nil {
		errs = append(errs, err)
	}
	e.loop.TearDown()
	if e.player != nil {
		if err := e.player.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop player: %w", err))
		}
		e.player = nil
	}
	if e.stopRun != nil {
		e.stopRun()
		<-e.runDone
		e.stopRun, e.runDone = nil, nil
	}
	if e.source != nil {
		e.source.Dispose()
	}
	e.source, e.actx = nil, nil
	e.peakBin.Store(-1)
	return errors.Join(errs...)
}

// ended runs when src reaches the end of the clip.
func (e *Engine) ended(src *audio.BufferSource) {
	e.mu.Lock()
	if e.source != src {
		e.mu.Unlock()
		return
	}
	err := e.releaseLocked()
	cb := e.OnEnded
	e.mu.Unlock()

	if err != nil {
		logger.Warnf("Stopping after end of clip: %v", err)
	}
	logger.Infof("Playback ended")
	if cb != nil {
		cb()
	}
}

// fail stops playback after the render loop tore itself down on a
// synthesis error. The recording made so far is stored and OnEnded is
// called; the error is kept for Status.
func (e *Engine) fail(cause error) {
	e.mu.Lock()
	// A session wired after the failure is running and must be left alone.
	if e.source == nil || e.loop.State() == render.Running {
		e.mu.Unlock()
		return
	}
	if err := e.releaseLocked(); err != nil {
		logger.Warnf("Stopping after render failure: %v", err)
	}
	e.failure = cause
	cb := e.OnEnded
	e.mu.Unlock()

	logger.Errorf("Render loop stopped: %v", cause)
	if cb != nil {
		cb()
	}
}

// TogglePlay plays or stops.
func (e *Engine) TogglePlay() error {
	if e.Playing() {
		return e.Stop()
	}
	return e.Play()
}

// Playing reports whether a clip is playing.
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source != nil
}

// SetSaveRecordings turns recording of playback on or off. Turning it on
// while playing starts a recording right away; turning it off stores the
// current one.
func (e *Engine) SetSaveRecordings(on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.saveRecs = on
	if e.source == nil {
		return nil
	}
	switch {
	case on && e.recorder.State() == record.Idle:
		e.startRecordingLocked()
	case !on:
		return e.recorder.Stop()
	}
	return nil
}

// SaveRecordings reports whether playback is being recorded.
func (e *Engine) SaveRecordings() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saveRecs
}

// SetMirror changes the mirror option and swaps the synthesizer.
func (e *Engine) SetMirror(on bool) error {
	return e.updateEffect(func(o *synth.Options) { o.Mirror = on })
}

// ToggleMirror flips the mirror option.
func (e *Engine) ToggleMirror() error {
	return e.updateEffect(func(o *synth.Options) { o.Mirror = !o.Mirror })
}

// SetSomething sets the effect scalar, clamped to [0, synth.MaxSomething].
func (e *Engine) SetSomething(v float64) error {
	v = max(0, min(v, synth.MaxSomething))
	return e.updateEffect(func(o *synth.Options) { o.Something = v })
}

// AdjustSomething adds delta to the effect scalar.
func (e *Engine) AdjustSomething(delta float64) error {
	return e.updateEffect(func(o *synth.Options) {
		o.Something = max(0, min(o.Something+delta, synth.MaxSomething))
	})
}

// SetSynth selects another registered synthesizer.
func (e *Engine) SetSynth(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn, err := synth.ByName(name, e.effect)
	if err != nil {
		return err
	}
	e.synthName = name
	return e.swapLocked(fn)
}

func (e *Engine) updateEffect(change func(*synth.Options)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.effect
	change(&next)
	fn, err := synth.ByName(e.synthName, next)
	if err != nil {
		return err
	}
	e.effect = next
	return e.swapLocked(fn)
}

// swapLocked installs fn and rewires a playing clip.
func (e *Engine) swapLocked(fn synth.Func) error {
	if err := e.loop.SetSynthesizer(fn); err != nil {
		return err
	}
	if e.source == nil {
		return nil
	}
	if err := e.loop.Wire(e.source); err != nil {
		return err
	}
	return e.loop.Start()
}

func (e *Engine) observeFrame(info render.FrameInfo) {
	if e.publisher != nil {
		e.publisher.Update(info.Magnitudes)
	}
	offset := e.loop.Options().Buckets.Offset
	e.peakBin.Store(int64(analysis.PeakBin(info.Magnitudes, offset)))
}

func (e *Engine) artifactStored(a record.Artifact) {
	e.resultMu.Lock()
	prev := e.lastResult
	e.lastResult = &a
	e.resultMu.Unlock()
	if prev != nil {
		e.revoke(*prev)
	}
	if e.OnArtifact != nil {
		e.OnArtifact(a)
	}
}

// revoke releases a superseded recording from stores that hold artifacts
// in memory. Artifacts that already expired are skipped.
func (e *Engine) revoke(a record.Artifact) {
	r, ok := e.store.(record.Revoker)
	if !ok {
		return
	}
	urls := []string{a.URL}
	if a.Sidecar != nil {
		urls = append(urls, a.Sidecar.URL)
	}
	for _, u := range urls {
		if err := r.Revoke(u); err != nil && !errors.Is(err, record.ErrNotFound) {
			logger.Warnf("Failed to revoke %s: %v", u, err)
		}
	}
}

// Status is a snapshot for display.
type Status struct {
	Clip           string
	Playing        bool
	Position       time.Duration
	Duration       time.Duration
	Loop           render.State
	Ticks          uint64
	Recording      record.State
	SaveRecordings bool
	Synth          string
	Mirror         bool
	Something      float64
	PeakHz         float64 // Zero when silent.
	Note           string  // Nearest note to PeakHz; empty when silent.
	Clients        int     // Connected websocket clients.
	LastArtifact   *record.Artifact
	Failure        error // Why the last playback stopped early, if it did.
}

// Status returns the current state of playback, effect and recording.
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		Clip:           e.clipName,
		Playing:        e.source != nil,
		SaveRecordings: e.saveRecs,
		Synth:          e.synthName,
		Mirror:         e.effect.Mirror,
		Something:      e.effect.Something,
		Failure:        e.failure,
	}
	if e.clip != nil {
		st.Duration = e.clip.Duration()
	}
	if e.actx != nil {
		st.Position = e.actx.CurrentTime()
	}
	e.mu.Unlock()

	st.Loop = e.loop.State()
	st.Ticks = e.loop.Ticks()
	st.Recording = e.recorder.State()
	if e.ws != nil {
		st.Clients = e.ws.Clients()
	}
	if bin := e.peakBin.Load(); bin >= 0 && st.Playing {
		st.PeakHz = analysis.BinFrequency(int(bin), float64(e.sampleRate.Load()), e.loop.Options().FFTSize)
		st.Note = analysis.NearestNote(st.PeakHz).String()
	}

	e.resultMu.Lock()
	st.LastArtifact = e.lastResult
	e.resultMu.Unlock()
	return st
}

// Close stops playback and releases every transport.
func (e *Engine) Close() error {
	var errs []error
	e.mu.Lock()
	if e.source != nil {
		errs = append(errs, e.releaseLocked())
	}
	e.mu.Unlock()

	if e.loop != nil {
		e.loop.TearDown()
	}
	if e.ticker != nil {
		e.ticker.Close()
	}
	for _, c := range e.closables {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closables = nil
	if e.paReady {
		if err := audio.Terminate(); err != nil {
			errs = append(errs, err)
		}
		e.paReady = false
	}
	return errors.Join(errs...)
}
