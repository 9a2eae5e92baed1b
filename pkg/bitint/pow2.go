// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers used to size FFT windows
and spectrum buffers.

The analyser size is tied to the raster height: a height of H scanlines
needs an FFT of 2*H samples so that H frequency bins are available, and
that size must be a power of two.

	fftSize := bitint.NextPowerOfTwo(2 * height) // 256 rows -> 512
	if !bitint.IsPowerOfTwo(fftSize) { ... }

NextPowerOfTwo subtracts one before measuring the bit length so that an
input which is already a power of two maps to itself:

	size-1 = 7 (0111), bits.Len(7) = 3, 1<<3 = 8
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
//
//	8  -> 1000 & 0111 = 0000 (true)
//	7  -> 0111 & 0110 = 0110 (false)
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
