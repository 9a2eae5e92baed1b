// SPDX-License-Identifier: MIT
package raster

import (
	"testing"

	"spectrail/internal/color"
)

func TestPairAlternates(t *testing.T) {
	p, err := NewPair(2, 2)
	if err != nil {
		t.Fatal(err)
	}

	prev1, cur1 := p.Flip()
	prev2, cur2 := p.Flip()

	if prev1.(*MutableRaster) == cur1 {
		t.Fatal("previous and current must differ")
	}
	if prev2.(*MutableRaster) != cur1 {
		t.Error("previous after flip must be the raster written on the last frame")
	}
	if cur2 != prev1.(*MutableRaster) {
		t.Error("current after flip must be the old previous raster")
	}
}

func TestPairPreviousHoldsLastFrame(t *testing.T) {
	p, err := NewPair(3, 1)
	if err != nil {
		t.Fatal(err)
	}
	for frame := range 5 {
		_, cur := p.Flip()
		for x := range 3 {
			_ = cur.Set(x, 0, color.Color{R: uint8(frame), A: 255})
		}

		prev, _ := p.Flip()
		got, _ := prev.Get(1, 0)
		if got.R != uint8(frame) {
			t.Fatalf("frame %d: previous R = %d", frame, got.R)
		}
	}
}

func TestPairInvalidSize(t *testing.T) {
	if _, err := NewPair(0, 4); err == nil {
		t.Error("expected error for zero width")
	}
}
