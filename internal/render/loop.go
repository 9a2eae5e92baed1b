// SPDX-License-Identifier: MIT
/*
Package render runs the per-frame loop: sample the analyser, flip the frame
pair, synthesize the new frame and present it.

A Loop moves through Idle -> Wired -> Running -> TornDown. Wire allocates a
session (frame pair, bucket table, analyser) for one audio source; Start
asks the Scheduler for the first tick; every tick requests its successor
before doing any work. TearDown cancels the session: ticks already queued
see the cancelled flag and return without touching the buffers or the
surface. A torn-down loop needs Wire again, which always allocates fresh
buffers.
*/
package render

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"spectrail/internal/analysis"
	"spectrail/internal/audio"
	"spectrail/internal/bucket"
	applog "spectrail/internal/log"
	"spectrail/internal/raster"
	"spectrail/internal/synth"
)

var (
	ErrResourceUnavailable = errors.New("render: resource unavailable")
	ErrSurfaceUnavailable  = errors.New("render: surface unavailable")
	ErrNotWired            = errors.New("render: loop is not wired")
)

var logger = applog.Named("render")

// State of a Loop.
type State int32

const (
	Idle State = iota
	Wired
	Running
	TornDown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Wired:
		return "wired"
	case Running:
		return "running"
	case TornDown:
		return "torn down"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// AnalyserFactory connects an analysis resource of fftSize to src.
type AnalyserFactory func(src audio.Source, fftSize int) (analysis.Resource, error)

// DefaultAnalyser connects an analysis.Analyser with browser defaults.
func DefaultAnalyser(src audio.Source, fftSize int) (analysis.Resource, error) {
	return analysis.Connect(src, analysis.DefaultOptions(fftSize, 0))
}

// Options size a session.
type Options struct {
	Width   int
	Height  int
	FFTSize int // Analysis window; 0 means 2*Height.
	Buckets bucket.Options
}

func (o Options) validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", raster.ErrInvalidSize, o.Width, o.Height)
	}
	if o.FFTSize < 0 {
		return fmt.Errorf("fft size must be positive, got %d", o.FFTSize)
	}
	return nil
}

func (o Options) fftSize() int {
	if o.FFTSize > 0 {
		return o.FFTSize
	}
	return 2 * o.Height
}

// FrameInfo is handed to the OnFrame observer after each completed tick.
// Magnitudes and Frame are only valid during the callback.
type FrameInfo struct {
	Seq        uint64
	Magnitudes []uint8
	Frame      *raster.MutableRaster
	Presented  bool
}

// session is the state allocated by one Wire.
type session struct {
	cancelled atomic.Bool
	pair      *raster.Pair
	buckets   *bucket.Mapper
	analyser  analysis.Resource
	mags      []uint8
	ticks     uint64

	stop        chan struct{}
	releaseOnce sync.Once
}

func (s *session) release() {
	s.releaseOnce.Do(func() {
		s.cancelled.Store(true)
		close(s.stop)
		if err := s.analyser.Close(); err != nil {
			logger.Warnf("Failed to release analyser: %v", err)
		}
	})
}

// Loop is the render loop of one presentation surface.
type Loop struct {
	sched       Scheduler
	newAnalyser AnalyserFactory

	// OnError receives synthesis failures; the session is torn down first.
	OnError func(error)
	// OnFrame observes each completed tick.
	OnFrame func(FrameInfo)
	// OnTearDown is called after a session is released.
	OnTearDown func()

	mu      sync.Mutex
	opts    Options
	synth   synth.Func
	surface Surface
	state   State
	session *session
}

// NewLoop builds an idle loop. newAnalyser may be nil for DefaultAnalyser.
func NewLoop(opts Options, fn synth.Func, sched Scheduler, newAnalyser AnalyserFactory) (*Loop, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("synthesizer cannot be nil")
	}
	if sched == nil {
		return nil, fmt.Errorf("scheduler cannot be nil")
	}
	if newAnalyser == nil {
		newAnalyser = DefaultAnalyser
	}
	return &Loop{
		sched:       sched,
		newAnalyser: newAnalyser,
		opts:        opts,
		synth:       fn,
	}, nil
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Options returns the session sizing.
func (l *Loop) Options() Options {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opts
}

// Ticks returns the number of completed ticks of the current session.
func (l *Loop) Ticks() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return 0
	}
	return l.session.ticks
}

// SetSurface replaces the presentation surface; nil disables presentation.
func (l *Loop) SetSurface(s Surface) {
	l.mu.Lock()
	l.surface = s
	l.mu.Unlock()
}

// Wire allocates a session for src. A wired or running session is torn
// down first. When src ends, the session tears itself down.
func (l *Loop) Wire(src audio.Source) error {
	if src == nil {
		return fmt.Errorf("%w: no audio source", ErrResourceUnavailable)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.tearDownLocked()

	pair, err := raster.NewPair(l.opts.Width, l.opts.Height)
	if err != nil {
		return err
	}
	analyser, err := l.newAnalyser(src, l.opts.fftSize())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
	}
	buckets, err := bucket.New(l.opts.Height, analyser.BinCount(), l.opts.Buckets)
	if err != nil {
		if cerr := analyser.Close(); cerr != nil {
			logger.Warnf("Failed to release analyser: %v", cerr)
		}
		return err
	}

	s := &session{
		pair:     pair,
		buckets:  buckets,
		analyser: analyser,
		mags:     make([]uint8, analyser.BinCount()),
		stop:     make(chan struct{}),
	}
	l.session = s
	l.state = Wired

	go func() {
		select {
		case <-src.Done():
			logger.Debugf("Audio source ended, tearing down session")
			l.tearDownSession(s)
		case <-s.stop:
		}
	}()

	logger.Debugf("Wired %dx%d session (FFT %d, %d bins)", l.opts.Width, l.opts.Height, analyser.FFTSize(), analyser.BinCount())
	return nil
}

// Start requests the first tick of a wired session.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case Running:
		return nil
	case Wired:
	default:
		return fmt.Errorf("%w: state %s", ErrNotWired, l.state)
	}
	l.state = Running
	s := l.session
	l.requestTick(s)
	return nil
}

func (l *Loop) requestTick(s *session) {
	l.sched.RequestFrame(func() { _ = l.tick(s, true) })
}

// Tick runs one frame of the running session immediately without
// scheduling a successor. It is a no-op unless the loop is running.
func (l *Loop) Tick() error {
	l.mu.Lock()
	s := l.session
	l.mu.Unlock()
	if s == nil {
		return nil
	}
	return l.tick(s, false)
}

func (l *Loop) tick(s *session, reschedule bool) error {
	l.mu.Lock()
	if s.cancelled.Load() || l.session != s || l.state != Running {
		l.mu.Unlock()
		return nil
	}
	if reschedule {
		l.requestTick(s)
	}

	info, err := l.drawLocked(s)
	onFrame := l.OnFrame
	l.mu.Unlock()

	if err != nil {
		logger.Errorf("Synthesis failed, tearing down: %v", err)
		l.tearDownSession(s)
		if l.OnError != nil {
			l.OnError(err)
		}
		return err
	}
	if info != nil && onFrame != nil {
		onFrame(*info)
	}
	return nil
}

// drawLocked samples, flips, synthesizes and presents. A nil info means the
// analyser had nothing for this tick and the frame was skipped.
func (l *Loop) drawLocked(s *session) (*FrameInfo, error) {
	if err := s.analyser.ByteFrequencyData(s.mags); err != nil {
		logger.Debugf("Analyser unavailable, skipping tick: %v", err)
		return nil, nil
	}

	previous, current := s.pair.Flip()
	err := l.synth(synth.Frame{
		Magnitudes: s.mags,
		Buckets:    s.buckets,
		Previous:   previous,
		Current:    current,
		Width:      l.opts.Width,
		Height:     l.opts.Height,
	})
	if err != nil {
		return nil, err
	}

	s.ticks++
	info := &FrameInfo{Seq: s.ticks, Magnitudes: s.mags, Frame: current}
	if l.surface == nil {
		return info, nil
	}
	switch err := l.surface.Present(current); {
	case err == nil:
		info.Presented = true
	case errors.Is(err, ErrSurfaceUnavailable):
	default:
		logger.Warnf("Present failed: %v", err)
	}
	return info, nil
}

// TearDown cancels the session and releases the analyser. Safe to call in
// any state and more than once.
func (l *Loop) TearDown() {
	l.mu.Lock()
	released := l.tearDownLocked()
	cb := l.OnTearDown
	l.mu.Unlock()
	if released && cb != nil {
		cb()
	}
}

func (l *Loop) tearDownSession(s *session) {
	l.mu.Lock()
	if l.session != s {
		l.mu.Unlock()
		s.release()
		return
	}
	released := l.tearDownLocked()
	cb := l.OnTearDown
	l.mu.Unlock()
	if released && cb != nil {
		cb()
	}
}

func (l *Loop) tearDownLocked() bool {
	if l.session == nil {
		return false
	}
	l.session.release()
	logger.Debugf("Session torn down after %d ticks", l.session.ticks)
	l.session = nil
	l.state = TornDown
	return true
}

// SetSize changes the raster dimensions. The current session is torn down;
// Wire must be called again.
func (l *Loop) SetSize(width, height int) error {
	opts := l.Options()
	opts.Width, opts.Height = width, height
	if err := opts.validate(); err != nil {
		return err
	}
	l.TearDown()
	l.mu.Lock()
	l.opts = opts
	l.mu.Unlock()
	return nil
}

// SetFFTSize changes the analysis window. Like SetSize it tears down.
func (l *Loop) SetFFTSize(size int) error {
	if size < 0 {
		return fmt.Errorf("fft size must be positive, got %d", size)
	}
	l.TearDown()
	l.mu.Lock()
	l.opts.FFTSize = size
	l.mu.Unlock()
	return nil
}

// SetBuckets changes the scanline mapping. Like SetSize it tears down.
func (l *Loop) SetBuckets(opts bucket.Options) {
	l.TearDown()
	l.mu.Lock()
	l.opts.Buckets = opts
	l.mu.Unlock()
}

// SetSynthesizer swaps the synthesizer. The current session is torn down;
// Wire must be called again.
func (l *Loop) SetSynthesizer(fn synth.Func) error {
	if fn == nil {
		return fmt.Errorf("synthesizer cannot be nil")
	}
	l.TearDown()
	l.mu.Lock()
	l.synth = fn
	l.mu.Unlock()
	return nil
}
