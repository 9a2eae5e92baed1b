// SPDX-License-Identifier: MIT
package render

import (
	"sync"
	"time"
)

// DefaultFPS is the display cadence of the TickerScheduler.
const DefaultFPS = 60

// Scheduler invokes a requested callback once, at the next display frame.
// Callbacks requested while a frame runs are deferred to the following one.
type Scheduler interface {
	RequestFrame(fn func())
}

// TickerScheduler runs frame callbacks on a single goroutine driven by a
// time.Ticker.
type TickerScheduler struct {
	interval time.Duration

	mu     sync.Mutex
	queue  []func()
	spare  []func() // Swapped with queue each frame to avoid reallocating.
	ticker *time.Ticker

	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTickerScheduler starts a scheduler firing fps times per second. An fps
// of zero or less means DefaultFPS.
func NewTickerScheduler(fps int) *TickerScheduler {
	if fps <= 0 {
		fps = DefaultFPS
	}
	s := &TickerScheduler{
		interval: time.Second / time.Duration(fps),
		doneChan: make(chan struct{}),
	}
	s.ticker = time.NewTicker(s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.ticker.C:
				s.runFrame()
			case <-s.doneChan:
				return
			}
		}
	}()
	return s
}

// Interval returns the frame period.
func (s *TickerScheduler) Interval() time.Duration { return s.interval }

func (s *TickerScheduler) RequestFrame(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
}

func (s *TickerScheduler) runFrame() {
	s.mu.Lock()
	frame := s.queue
	s.queue = s.spare[:0]
	s.mu.Unlock()

	for _, fn := range frame {
		fn()
	}

	clear(frame)
	s.mu.Lock()
	s.spare = frame[:0]
	s.mu.Unlock()
}

// Close stops the ticker goroutine and drops pending callbacks. Safe to call
// repeatedly.
func (s *TickerScheduler) Close() {
	s.stopOnce.Do(func() {
		close(s.doneChan)
		s.ticker.Stop()
	})
	s.wg.Wait()
	s.mu.Lock()
	s.queue = nil
	s.mu.Unlock()
}

// ManualScheduler queues callbacks until Step is called. Offline rendering
// and tests drive frames with it.
type ManualScheduler struct {
	mu    sync.Mutex
	queue []func()
}

func (s *ManualScheduler) RequestFrame(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
}

// Step runs the callbacks queued before the call and returns how many ran.
func (s *ManualScheduler) Step() int {
	s.mu.Lock()
	frame := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, fn := range frame {
		fn()
	}
	return len(frame)
}

// Pending returns the number of queued callbacks.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
