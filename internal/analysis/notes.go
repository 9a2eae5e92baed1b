// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"sort"
)

// FirstUsefulHz is the lowest frequency worth drawing; bins below it carry
// mostly DC offset and rumble.
const FirstUsefulHz = 50.0

// BinFrequency returns the frequency (Hz) at the lower edge of an FFT bin.
// Peak readouts use the lower edge so that FrequencyBin maps it back to the
// same bin.
func BinFrequency(bin int, sampleRate float64, fftSize int) float64 {
	return float64(bin) * sampleRate / float64(fftSize)
}

// FrequencyBin returns the index of the bin containing hz.
func FrequencyBin(hz, sampleRate float64, fftSize int) int {
	if sampleRate <= 0 || fftSize <= 0 || hz <= 0 {
		return 0
	}
	return int(math.Floor(hz / (sampleRate / float64(fftSize))))
}

// FirstUsefulBin is FrequencyBin(FirstUsefulHz, ...).
func FirstUsefulBin(sampleRate float64, fftSize int) int {
	return FrequencyBin(FirstUsefulHz, sampleRate, fftSize)
}

// Note is an equal-tempered pitch.
type Note struct {
	Hz     float64
	Octave int
	Name   string
}

func (n Note) String() string {
	return fmt.Sprintf("%s%d", n.Name, n.Octave)
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Nine octaves from C0, tuned to A4 = 440 Hz.
var noteTable = func() []Note {
	const a4 = 440.0
	const halfStepsC0ToA4 = 12*4 + 9
	notes := make([]Note, 12*9)
	for i := range notes {
		notes[i] = Note{
			Hz:     a4 * math.Pow(2, float64(i-halfStepsC0ToA4)/12),
			Octave: i / 12,
			Name:   noteNames[i%12],
		}
	}
	return notes
}()

// NearestNote returns the equal-tempered note closest to hz. Frequencies
// outside the table clamp to C0 or B8: anything above B8 is closer to B8
// than to A#8, so no comparison is needed there.
func NearestNote(hz float64) Note {
	up := sort.Search(len(noteTable), func(i int) bool { return noteTable[i].Hz > hz })
	switch up {
	case 0:
		return noteTable[0]
	case len(noteTable):
		return noteTable[len(noteTable)-1]
	}
	down := noteTable[up-1]
	if hz-down.Hz < (noteTable[up].Hz-down.Hz)/2 {
		return down
	}
	return noteTable[up]
}

// PeakBin returns the index of the loudest bin at or above from, or -1 if
// mags is silent there.
func PeakBin(mags []uint8, from int) int {
	if from < 0 {
		from = 0
	}
	peak, best := -1, uint8(0)
	for i := from; i < len(mags); i++ {
		if mags[i] > best {
			peak, best = i, mags[i]
		}
	}
	return peak
}
