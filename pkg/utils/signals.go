// SPDX-License-Identifier: MIT
// Package utils provides deterministic test signals shared by the analysis,
// audio and engine tests.
package utils

import "math"

// Amplitude of generated signals, leaving headroom below full scale.
const Amplitude = 0.9

// GenerateSineWave returns size mono samples of a sine at frequency Hz.
func GenerateSineWave(size int, sampleRate, frequency float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * Amplitude)
	}
	return buffer
}

// GenerateComplexWave returns a 440Hz fundamental with two harmonics.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * Amplitude)
	}
	return buffer
}

// Interleave duplicates a mono signal across channels.
func Interleave(mono []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(mono))
		copy(out, mono)
		return out
	}
	out := make([]float32, len(mono)*channels)
	for i, s := range mono {
		for c := range channels {
			out[i*channels+c] = s
		}
	}
	return out
}
