// SPDX-License-Identifier: MIT
package bucket

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestBoundNonDecreasing(t *testing.T) {
	sizes := []struct{ height, bins int }{
		{1, 1}, {1, 8}, {4, 8}, {256, 256}, {256, 4096}, {100, 37},
	}
	for _, sz := range sizes {
		t.Run(fmt.Sprintf("%dx%d", sz.height, sz.bins), func(t *testing.T) {
			m, err := New(sz.height, sz.bins, Options{})
			if err != nil {
				t.Fatal(err)
			}
			if m.Bound(0) != 0 {
				t.Fatalf("Bound(0) = %v, want 0", m.Bound(0))
			}
			for i := 1; i <= sz.height; i++ {
				if m.Bound(i) < m.Bound(i-1) {
					t.Fatalf("Bound(%d)=%v < Bound(%d)=%v", i, m.Bound(i), i-1, m.Bound(i-1))
				}
			}
		})
	}
}

func TestBoundRecurrence(t *testing.T) {
	m, err := New(4, 8, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if m.Factor() != 1.5 {
		t.Fatalf("Factor = %v, want 1.5", m.Factor())
	}
	want := 0.0
	for i := 1; i <= 4; i++ {
		want += math.Pow(float64(i)/4*1.5, 6)
		if math.Abs(m.Bound(i)-want) > 1e-12 {
			t.Errorf("Bound(%d) = %v, want %v", i, m.Bound(i), want)
		}
	}
}

func TestRangesMonotonicAndNonEmpty(t *testing.T) {
	for _, opts := range []Options{{}, {Offset: 4}, {Exponent: 2}, {Offset: 1000}} {
		m, err := New(256, 256, opts)
		if err != nil {
			t.Fatal(err)
		}
		prevFrom, prevTo := -1, -1
		for i := range 256 {
			from, to := m.Range(i)
			if to-from < 1 {
				t.Fatalf("%+v: scanline %d has empty range [%d,%d)", opts, i, from, to)
			}
			if from < 0 || to > 256 {
				t.Fatalf("%+v: scanline %d range [%d,%d) outside bins", opts, i, from, to)
			}
			if from < prevFrom || to < prevTo {
				t.Fatalf("%+v: scanline %d range [%d,%d) goes back from [%d,%d)", opts, i, from, to, prevFrom, prevTo)
			}
			prevFrom, prevTo = from, to
		}
	}
}

func TestRangeWidthGrows(t *testing.T) {
	m, err := New(64, 1024, Options{})
	if err != nil {
		t.Fatal(err)
	}
	lowFrom, lowTo := m.Range(1)
	highFrom, highTo := m.Range(62)
	if highTo-highFrom <= lowTo-lowFrom {
		t.Errorf("high scanline range [%d,%d) should be wider than low [%d,%d)", highFrom, highTo, lowFrom, lowTo)
	}
	if from, _ := m.Range(0); from != 0 {
		t.Errorf("first range starts at %d, want 0", from)
	}
}

func TestValueMean(t *testing.T) {
	m, err := New(4, 8, Options{})
	if err != nil {
		t.Fatal(err)
	}
	mags := []uint8{0, 0, 0, 0, 255, 255, 255, 255}

	tests := []struct {
		line     int
		from, to int
		want     float64
	}{
		{0, 0, 1, 0},
		{1, 0, 1, 0},
		{2, 0, 2, 0},
		{3, 2, 8, 170},
	}
	for _, tt := range tests {
		from, to := m.Range(tt.line)
		if from != tt.from || to != tt.to {
			t.Errorf("Range(%d) = [%d,%d), want [%d,%d)", tt.line, from, to, tt.from, tt.to)
		}
		if got := m.Value(mags, tt.line); got != tt.want {
			t.Errorf("Value(%d) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestValueDivisorAndShortInput(t *testing.T) {
	m, err := New(4, 8, Options{Divisor: 2})
	if err != nil {
		t.Fatal(err)
	}
	mags := []uint8{0, 0, 0, 0, 255, 255, 255, 255}
	if got := m.Value(mags, 3); got != 85 {
		t.Errorf("Value with divisor = %v, want 85", got)
	}
	if got := m.Value(mags[:2], 3); got != 0 {
		t.Errorf("Value past end of input = %v, want 0", got)
	}
}

func TestValues(t *testing.T) {
	m, _ := New(4, 8, Options{})
	got := m.Values([]uint8{0, 0, 0, 0, 255, 255, 255, 255}, nil)
	want := []float64{0, 0, 0, 170}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	allocs := testing.AllocsPerRun(50, func() { got = m.Values(make([]uint8, 8), got) })
	if allocs > 1 {
		t.Errorf("Values with reused dst allocated %.1f times", allocs)
	}
}

func TestNewInvalid(t *testing.T) {
	if _, err := New(0, 8, Options{}); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize, got %v", err)
	}
	if _, err := New(8, 0, Options{}); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("expected ErrInvalidSize, got %v", err)
	}
}

func BenchmarkValues(b *testing.B) {
	m, _ := New(256, 256, Options{Offset: 4})
	mags := make([]uint8, 256)
	for i := range mags {
		mags[i] = uint8(i)
	}
	dst := make([]float64, 256)

	b.ReportAllocs()
	for b.Loop() {
		dst = m.Values(mags, dst)
	}
}
