// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"sync/atomic"
)

// Gate is a noise gate in front of a tap: buffers whose peak amplitude does
// not exceed the threshold reach the tap as silence.
type Gate struct {
	next      Tap
	enabled   atomic.Bool
	threshold atomic.Uint32 // float32 bits
	silence   []float32
}

// NewGate wraps next with an enabled gate at threshold (0-1).
func NewGate(next Tap, threshold float64) *Gate {
	g := &Gate{next: next}
	g.SetThreshold(threshold)
	g.Enable()
	return g
}

func (g *Gate) Enable()       { g.enabled.Store(true) }
func (g *Gate) Disable()      { g.enabled.Store(false) }
func (g *Gate) Enabled() bool { return g.enabled.Load() }

// SetThreshold adjusts the gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (g *Gate) SetThreshold(threshold float64) {
	if threshold < 0.0 || math.IsNaN(threshold) {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	g.threshold.Store(math.Float32bits(float32(threshold)))
}

// Threshold returns the current gate threshold.
func (g *Gate) Threshold() float64 {
	return float64(math.Float32frombits(g.threshold.Load()))
}

// Samples forwards buf, or an equally long silent buffer when gated. The
// silent buffer is reused across calls.
func (g *Gate) Samples(buf []float32) {
	if !g.enabled.Load() || Peak(buf) > math.Float32frombits(g.threshold.Load()) {
		g.next.Samples(buf)
		return
	}
	if cap(g.silence) < len(buf) {
		g.silence = make([]float32, len(buf))
	}
	g.next.Samples(g.silence[:len(buf)])
}

// Peak returns the largest absolute sample value in buf.
func Peak(buf []float32) float32 {
	var peak float32
	for _, s := range buf {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
