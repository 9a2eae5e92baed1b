// SPDX-License-Identifier: MIT
/*
Package analysis implements the frequency-analysis resource the render loop
samples once per display frame.

An Analyser is connected to an audio source as a tap. The audio goroutine
pushes samples into a ring holding the most recent analysis window; the
render goroutine pulls byte magnitudes (or waveform bytes) whenever it ticks.
Magnitudes follow the browser analyser conventions the visuals were tuned
against: per-bin magnitudes are smoothed over time, converted to decibels and
mapped linearly from [MinDecibels, MaxDecibels] onto [0, 255].
*/
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"
	"sync/atomic"

	"spectrail/internal/audio"
	applog "spectrail/internal/log"
	"spectrail/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Analyser defaults.
const (
	DefaultSmoothing   = 0.8
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0
	MinFFTSize         = 32
	MaxFFTSize         = 32768
)

var (
	ErrClosed      = errors.New("analysis: analyser closed")
	ErrBufferSize  = errors.New("analysis: destination length mismatch")
	ErrInvalidSize = errors.New("analysis: invalid fft size")
)

var logger = applog.Named("analysis")

// Options configure an Analyser.
type Options struct {
	FFTSize     int        // Analysis window, power of two in [MinFFTSize, MaxFFTSize].
	SampleRate  float64    // Sample rate of the incoming signal (Hz).
	Channels    int        // Interleaved channels per frame; downmixed to mono.
	Window      WindowFunc // Window applied before the FFT.
	Smoothing   float64    // Temporal smoothing in [0,1).
	MinDecibels float64    // Maps to byte 0.
	MaxDecibels float64    // Maps to byte 255.
	Gate        float64    // Noise gate threshold (0-1) applied by Connect; 0 disables.
}

// DefaultOptions returns browser-compatible analyser settings.
func DefaultOptions(fftSize int, sampleRate float64) Options {
	return Options{
		FFTSize:     fftSize,
		SampleRate:  sampleRate,
		Channels:    1,
		Window:      Blackman,
		Smoothing:   DefaultSmoothing,
		MinDecibels: DefaultMinDecibels,
		MaxDecibels: DefaultMaxDecibels,
	}
}

// Pre-allocated buffers for FFT calculations.
type fftWorkspace struct {
	ring      []float32    // Most recent FFTSize mono samples, oldest at write.
	write     int          // Next write position in ring.
	input     []float64    // Windowed input in time order.
	fftOutput []complex128 // FFT complex results (FFTSize/2 + 1).
	smoothed  []float64    // Smoothed linear magnitudes (FFTSize/2).
	window    []float64    // Pre-calculated window coefficients.
	mu        sync.Mutex   // Protects every buffer above.
}

// Analyser is a real-time spectrum analyser fed as an audio.Tap.
type Analyser struct {
	opts          Options
	fftCalculator *fourier.FFT
	workspace     fftWorkspace
	closed        atomic.Bool
	closeOnce     sync.Once
	onClose       func()
}

// Resource is the view of an analyser the render loop samples each tick.
type Resource interface {
	ByteFrequencyData(dst []uint8) error
	ByteTimeDomainData(dst []uint8) error
	BinCount() int
	FFTSize() int
	Close() error
}

// Compile-time checks for interface implementations.
var (
	_ audio.Tap = (*Analyser)(nil)
	_ Resource  = (*Analyser)(nil)
)

// NewAnalyser validates opts and pre-allocates every buffer used per frame.
func NewAnalyser(opts Options) (*Analyser, error) {
	if !bitint.IsPowerOfTwo(opts.FFTSize) || opts.FFTSize < MinFFTSize || opts.FFTSize > MaxFFTSize {
		return nil, fmt.Errorf("%w: %d (power of 2 in [%d, %d] required)", ErrInvalidSize, opts.FFTSize, MinFFTSize, MaxFFTSize)
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", opts.SampleRate)
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	if opts.Smoothing < 0 || opts.Smoothing >= 1 {
		return nil, fmt.Errorf("smoothing must be in [0,1), got %f", opts.Smoothing)
	}
	if opts.MaxDecibels <= opts.MinDecibels {
		return nil, fmt.Errorf("max decibels (%f) must exceed min decibels (%f)", opts.MaxDecibels, opts.MinDecibels)
	}

	windowCoeffs := make([]float64, opts.FFTSize)
	applyWindow(windowCoeffs, opts.Window)

	logger.Debugf("Initializing Analyser (Size: %d, SampleRate: %.1f Hz, Window: %v)", opts.FFTSize, opts.SampleRate, opts.Window)

	return &Analyser{
		opts:          opts,
		fftCalculator: fourier.NewFFT(opts.FFTSize),
		workspace: fftWorkspace{
			ring:      make([]float32, opts.FFTSize),
			input:     make([]float64, opts.FFTSize),
			fftOutput: make([]complex128, opts.FFTSize/2+1),
			smoothed:  make([]float64, opts.FFTSize/2),
			window:    windowCoeffs,
		},
	}, nil
}

// Connect creates an Analyser sized for src and taps it into the source,
// behind a noise gate when opts.Gate is set. Closing the analyser
// disconnects it.
func Connect(src audio.Source, opts Options) (*Analyser, error) {
	opts.SampleRate = float64(src.SampleRate())
	opts.Channels = src.Channels()
	a, err := NewAnalyser(opts)
	if err != nil {
		return nil, err
	}
	var tap audio.Tap = a
	if opts.Gate > 0 {
		tap = audio.NewGate(a, opts.Gate)
	}
	src.Connect(tap)
	a.onClose = func() { src.Disconnect(tap) }
	return a, nil
}

// Samples pushes interleaved samples into the analysis window. It runs on
// the audio goroutine and does not allocate.
func (a *Analyser) Samples(buf []float32) {
	if a.closed.Load() {
		return
	}
	ch := a.opts.Channels
	ws := &a.workspace
	ws.mu.Lock()
	for i := 0; i+ch <= len(buf); i += ch {
		var sum float32
		for c := range ch {
			sum += buf[i+c]
		}
		ws.ring[ws.write] = sum / float32(ch)
		ws.write++
		if ws.write == len(ws.ring) {
			ws.write = 0
		}
	}
	ws.mu.Unlock()
}

// ByteFrequencyData computes the current spectrum into dst, which must hold
// exactly BinCount bytes. Index 0 is the lowest bin.
func (a *Analyser) ByteFrequencyData(dst []uint8) error {
	if a.closed.Load() {
		return ErrClosed
	}
	if len(dst) != a.BinCount() {
		return fmt.Errorf("%w: got %d, want %d", ErrBufferSize, len(dst), a.BinCount())
	}

	ws := &a.workspace
	ws.mu.Lock()
	defer ws.mu.Unlock()

	// --- 1. Window the ring in time order ---
	n := len(ws.ring)
	for i := range n {
		ws.input[i] = float64(ws.ring[(ws.write+i)%n]) * ws.window[i]
	}

	// --- 2. Perform FFT ---
	a.fftCalculator.Coefficients(ws.fftOutput, ws.input)

	// --- 3. Smooth, convert to dB and quantise ---
	scale := 1.0 / float64(n)
	rangeDb := a.opts.MaxDecibels - a.opts.MinDecibels
	k := a.opts.Smoothing
	for i := range ws.smoothed {
		mag := cmplx.Abs(ws.fftOutput[i]) * scale
		s := k*ws.smoothed[i] + (1-k)*mag
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = 0
		}
		ws.smoothed[i] = s
		dst[i] = quantise((linearToDecibels(s) - a.opts.MinDecibels) / rangeDb * 255)
	}
	return nil
}

// ByteTimeDomainData copies the most recent len(dst) samples as bytes
// centred on 128. len(dst) must not exceed FFTSize.
func (a *Analyser) ByteTimeDomainData(dst []uint8) error {
	if a.closed.Load() {
		return ErrClosed
	}
	ws := &a.workspace
	n := len(ws.ring)
	if len(dst) > n {
		return fmt.Errorf("%w: got %d, want at most %d", ErrBufferSize, len(dst), n)
	}
	ws.mu.Lock()
	start := ws.write - len(dst)
	for i := range dst {
		s := float64(ws.ring[((start+i)%n+n)%n])
		dst[i] = quantise(128 * (1 + s))
	}
	ws.mu.Unlock()
	return nil
}

// BinCount returns the number of frequency bins (FFTSize/2).
func (a *Analyser) BinCount() int { return a.opts.FFTSize / 2 }

// FFTSize returns the analysis window size.
func (a *Analyser) FFTSize() int { return a.opts.FFTSize }

// SampleRate returns the sample rate of the analysed signal.
func (a *Analyser) SampleRate() float64 { return a.opts.SampleRate }

// Close disconnects the analyser from its source. Safe to call repeatedly.
func (a *Analyser) Close() error {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		if a.onClose != nil {
			a.onClose()
		}
		logger.Debugf("Analyser closed (Size: %d)", a.opts.FFTSize)
	})
	return nil
}

func linearToDecibels(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}

func quantise(v float64) uint8 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
