// SPDX-License-Identifier: MIT
/*
Package audio decodes clips, plays them through PortAudio and fans the
played samples out to taps such as the spectrum analyser and the recorder.

Samples are float32 in [-1, 1], interleaved by channel. Taps run on the
audio goroutine: they must copy what they keep and must not block.
*/
package audio

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Tap receives every buffer a Source produces. Taps are compared by
// identity on Disconnect, so implementations should be pointers.
type Tap interface {
	Samples(buf []float32)
}

// Source is a playing signal that taps can attach to.
type Source interface {
	SampleRate() int
	Channels() int
	Connect(t Tap)
	Disconnect(t Tap)
	// Done is closed once the source has ended or been disposed.
	Done() <-chan struct{}
}

// tapSet is a copy-on-write list of taps. Writers serialise on mu; the audio
// goroutine reads the current snapshot without locking.
type tapSet struct {
	mu   sync.Mutex
	taps atomic.Pointer[[]Tap]
}

func (s *tapSet) add(t Tap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next []Tap
	if cur := s.taps.Load(); cur != nil {
		if slices.Contains(*cur, t) {
			return
		}
		next = slices.Clone(*cur)
	}
	next = append(next, t)
	s.taps.Store(&next)
}

func (s *tapSet) remove(t Tap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.taps.Load()
	if cur == nil {
		return
	}
	i := slices.Index(*cur, t)
	if i < 0 {
		return
	}
	next := slices.Delete(slices.Clone(*cur), i, i+1)
	s.taps.Store(&next)
}

func (s *tapSet) len() int {
	if cur := s.taps.Load(); cur != nil {
		return len(*cur)
	}
	return 0
}

func (s *tapSet) fanOut(buf []float32) {
	cur := s.taps.Load()
	if cur == nil {
		return
	}
	for _, t := range *cur {
		t.Samples(buf)
	}
}
