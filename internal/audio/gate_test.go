// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"testing"
)

func TestGateEnable(t *testing.T) {
	g := NewGate(&captureTap{}, 0.1)
	if !g.Enabled() {
		t.Error("Gate should be enabled after NewGate")
	}

	g.Disable()
	g.Disable() // Multiple calls should be idempotent
	if g.Enabled() {
		t.Error("Gate should be disabled after Disable()")
	}

	g.Enable()
	g.Enable()
	if !g.Enabled() {
		t.Error("Gate should remain enabled after multiple Enable()")
	}
}

func TestGateThresholdClamping(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"Negative", -0.5, 0},
		{"NaN", math.NaN(), 0},
		{"Above one", 1.5, 1},
		{"Quarter", 0.25, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(&captureTap{}, tt.in)
			if got := g.Threshold(); math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Threshold() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGateSilencesQuietBuffers(t *testing.T) {
	tests := []struct {
		name      string
		buf       []float32
		threshold float64
		enabled   bool
		wantPass  bool
	}{
		{"Loud passes", []float32{0.5, -0.6}, 0.1, true, true},
		{"Quiet gated", []float32{0.05, -0.02}, 0.1, true, false},
		{"At threshold gated", []float32{0.25}, 0.25, true, false},
		{"Disabled passes", []float32{0.01}, 0.1, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tap := &captureTap{}
			g := NewGate(tap, tt.threshold)
			if !tt.enabled {
				g.Disable()
			}
			g.Samples(tt.buf)

			if len(tap.samples) != len(tt.buf) {
				t.Fatalf("tap got %d samples, want %d", len(tap.samples), len(tt.buf))
			}
			for i, s := range tap.samples {
				want := float32(0)
				if tt.wantPass {
					want = tt.buf[i]
				}
				if s != want {
					t.Errorf("sample %d = %v, want %v", i, s, want)
				}
			}
		})
	}
}

func TestPeak(t *testing.T) {
	if p := Peak([]float32{0.1, -0.7, 0.3}); p != 0.7 {
		t.Errorf("Peak() = %v, want 0.7", p)
	}
	if p := Peak(nil); p != 0 {
		t.Errorf("Peak(nil) = %v, want 0", p)
	}
}

func TestGateHotPath(t *testing.T) {
	g := NewGate(nopTap{}, 0.5)
	buf := make([]float32, 1024)
	g.Samples(buf) // size the silence buffer

	allocs := testing.AllocsPerRun(100, func() {
		g.Samples(buf)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in gate, got %.1f", allocs)
	}
}
