// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"testing"

	"spectrail/internal/audio"
	"spectrail/pkg/utils"
)

const (
	testFFTSize    = 1024
	testSampleRate = 44100
)

func newTestAnalyser(t testing.TB, opts Options) *Analyser {
	t.Helper()
	a, err := NewAnalyser(opts)
	if err != nil {
		t.Fatalf("NewAnalyser: %v", err)
	}
	return a
}

func TestAnalyserPeakFollowsTone(t *testing.T) {
	tests := []struct {
		name string
		hz   float64
	}{
		{"A4", 440},
		{"A5", 880},
		{"E7", 2637},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions(testFFTSize, testSampleRate)
			opts.Smoothing = 0
			a := newTestAnalyser(t, opts)
			a.Samples(utils.GenerateSineWave(testFFTSize, testSampleRate, tt.hz))

			mags := make([]uint8, a.BinCount())
			if err := a.ByteFrequencyData(mags); err != nil {
				t.Fatal(err)
			}
			want := FrequencyBin(tt.hz, testSampleRate, testFFTSize)
			got := PeakBin(mags, 0)
			if got < want-1 || got > want+1 {
				t.Errorf("peak bin = %d, want %d±1", got, want)
			}
		})
	}
}

func TestAnalyserSilence(t *testing.T) {
	a := newTestAnalyser(t, DefaultOptions(256, testSampleRate))
	a.Samples(make([]float32, 256))

	mags := make([]uint8, a.BinCount())
	for range 3 {
		if err := a.ByteFrequencyData(mags); err != nil {
			t.Fatal(err)
		}
	}
	for i, m := range mags {
		if m != 0 {
			t.Fatalf("bin %d = %d on silent input", i, m)
		}
	}

	wave := make([]uint8, 256)
	if err := a.ByteTimeDomainData(wave); err != nil {
		t.Fatal(err)
	}
	for i, w := range wave {
		if w != 128 {
			t.Fatalf("waveform[%d] = %d, want 128", i, w)
		}
	}
}

func TestAnalyserSmoothingDecays(t *testing.T) {
	a := newTestAnalyser(t, DefaultOptions(testFFTSize, testSampleRate))
	mags := make([]uint8, a.BinCount())
	bin := FrequencyBin(440, testSampleRate, testFFTSize)

	// Keep the tone well below full scale so the first reading is not clipped at 255.
	tone := utils.GenerateSineWave(testFFTSize, testSampleRate, 440)
	for i := range tone {
		tone[i] *= 0.1
	}
	a.Samples(tone)
	_ = a.ByteFrequencyData(mags)
	loud := mags[bin]

	a.Samples(make([]float32, testFFTSize))
	_ = a.ByteFrequencyData(mags)
	if mags[bin] == 0 || mags[bin] >= loud {
		t.Errorf("smoothed bin after silence = %d, want in (0, %d)", mags[bin], loud)
	}
}

func TestAnalyserStereoDownmix(t *testing.T) {
	opts := DefaultOptions(64, testSampleRate)
	opts.Channels = 2
	a := newTestAnalyser(t, opts)

	// Left and right cancel out.
	buf := make([]float32, 128)
	for i := 0; i < len(buf); i += 2 {
		buf[i], buf[i+1] = 0.5, -0.5
	}
	a.Samples(buf)

	wave := make([]uint8, 64)
	_ = a.ByteTimeDomainData(wave)
	for i, w := range wave {
		if w != 128 {
			t.Fatalf("waveform[%d] = %d, want 128", i, w)
		}
	}
}

func TestAnalyserErrors(t *testing.T) {
	for _, size := range []int{0, 100, 16, 65536} {
		if _, err := NewAnalyser(DefaultOptions(size, testSampleRate)); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("size %d: expected ErrInvalidSize, got %v", size, err)
		}
	}
	if _, err := NewAnalyser(DefaultOptions(64, 0)); err == nil {
		t.Error("expected error for zero sample rate")
	}

	a := newTestAnalyser(t, DefaultOptions(64, testSampleRate))
	if err := a.ByteFrequencyData(make([]uint8, 10)); !errors.Is(err, ErrBufferSize) {
		t.Errorf("expected ErrBufferSize, got %v", err)
	}
	if err := a.ByteTimeDomainData(make([]uint8, 65)); !errors.Is(err, ErrBufferSize) {
		t.Errorf("expected ErrBufferSize, got %v", err)
	}

	_ = a.Close()
	_ = a.Close()
	if err := a.ByteFrequencyData(make([]uint8, 32)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestConnect(t *testing.T) {
	tests := []struct {
		name string
		gate float64
	}{
		{"Direct", 0},
		{"Gated", 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, err := audio.NewContext(testSampleRate, 2, 256)
			if err != nil {
				t.Fatal(err)
			}
			tone := utils.GenerateSineWave(testSampleRate/10, testSampleRate, 440)
			src := audio.NewBufferSource(ctx, &audio.Clip{
				SampleRate: testSampleRate,
				Channels:   2,
				Samples:    utils.Interleave(tone, 2),
			})

			opts := DefaultOptions(testFFTSize, 0)
			opts.Smoothing = 0
			opts.Gate = tt.gate
			a, err := Connect(src, opts)
			if err != nil {
				t.Fatalf("Connect: %v", err)
			}
			if a.SampleRate() != testSampleRate || src.Taps() != 1 {
				t.Fatalf("SampleRate() = %v, taps = %d", a.SampleRate(), src.Taps())
			}

			src.Play()
			buf := make([]float32, 2*testFFTSize)
			src.Read(buf)

			mags := make([]uint8, a.BinCount())
			if err := a.ByteFrequencyData(mags); err != nil {
				t.Fatal(err)
			}
			want := FrequencyBin(440, testSampleRate, testFFTSize)
			if got := PeakBin(mags, 0); got < want-1 || got > want+1 {
				t.Errorf("peak bin = %d, want %d±1", got, want)
			}

			_ = a.Close()
			if src.Taps() != 0 {
				t.Errorf("taps after Close = %d, want 0", src.Taps())
			}
		})
	}
}

func TestByteFrequencyDataHotPath(t *testing.T) {
	a := newTestAnalyser(t, DefaultOptions(testFFTSize, testSampleRate))
	samples := utils.GenerateComplexWave(testFFTSize, testSampleRate)
	mags := make([]uint8, a.BinCount())

	// Warm-up call.
	a.Samples(samples)
	_ = a.ByteFrequencyData(mags)

	allocs := testing.AllocsPerRun(100, func() {
		a.Samples(samples)
		_ = a.ByteFrequencyData(mags)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in analyser hot path, got %.1f", allocs)
	}
}

func BenchmarkByteFrequencyData(b *testing.B) {
	a, _ := NewAnalyser(DefaultOptions(testFFTSize, testSampleRate))
	a.Samples(utils.GenerateComplexWave(testFFTSize, testSampleRate))
	mags := make([]uint8, a.BinCount())

	b.ReportAllocs()
	for b.Loop() {
		_ = a.ByteFrequencyData(mags)
	}
}
