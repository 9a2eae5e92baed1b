// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"spectrail/internal/audio"
	"spectrail/internal/config"
	"spectrail/internal/record"
	"spectrail/internal/render"
	"spectrail/internal/synth"
	"spectrail/pkg/utils"
)

const testRate = 8000

type memStore struct {
	mu      sync.Mutex
	names   []string
	revoked []string
}

func (m *memStore) Put(name, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = append(m.names, name)
	return fmt.Sprintf("mem://%d/%s", len(m.names), name), nil
}

func (m *memStore) Revoke(u string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked = append(m.revoked, u)
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Canvas.Width = 16
	cfg.Canvas.Height = 32
	cfg.Recording.FPS = 20
	cfg.Recording.FlushInterval = time.Hour
	return &cfg
}

func testClip(d time.Duration) *audio.Clip {
	n := int(d.Seconds() * testRate)
	return &audio.Clip{
		SampleRate: testRate,
		Channels:   1,
		Samples:    utils.GenerateSineWave(n, testRate, 440),
	}
}

func newTestEngine(t *testing.T, cfg *config.Config) (*Engine, *render.ManualScheduler, *memStore) {
	t.Helper()
	sched := &render.ManualScheduler{}
	store := &memStore{}
	e, err := New(cfg, Options{Headless: true, Store: store, Scheduler: sched})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e, sched, store
}

func TestRenderOffline(t *testing.T) {
	e, _, store := newTestEngine(t, testConfig())
	if err := e.SetClip("tone.wav", testClip(time.Second)); err != nil {
		t.Fatal(err)
	}

	var reports int
	a, err := e.Render(context.Background(), func(pos, total time.Duration) { reports++ })
	if err != nil {
		t.Fatal(err)
	}
	if a.MIMEType != record.MJPEGMIMEType || a.Size == 0 {
		t.Errorf("artifact = %+v", a)
	}
	if a.Sidecar == nil || a.Sidecar.MIMEType != record.WAVMIMEType {
		t.Errorf("sidecar = %+v", a.Sidecar)
	}
	if len(store.names) != 2 {
		t.Errorf("stored %v, want video and sidecar", store.names)
	}
	if reports < 2 {
		t.Errorf("progress reported %d times, want at least 2", reports)
	}
	if st := e.Status(); st.LastArtifact == nil || st.LastArtifact.URL != a.URL {
		t.Errorf("Status().LastArtifact = %+v", st.LastArtifact)
	}
}

func TestRenderErrors(t *testing.T) {
	t.Run("No clip", func(t *testing.T) {
		e, _, _ := newTestEngine(t, testConfig())
		if _, err := e.Render(context.Background(), nil); !errors.Is(err, ErrNoClip) {
			t.Errorf("Render() = %v, want ErrNoClip", err)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		e, _, store := newTestEngine(t, testConfig())
		_ = e.SetClip("tone.wav", testClip(time.Second))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := e.Render(ctx, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("Render() = %v, want context.Canceled", err)
		}
		if len(store.names) != 0 {
			t.Errorf("stored %v after cancellation", store.names)
		}
	})
}

func TestPlayHeadless(t *testing.T) {
	cfg := testConfig()
	cfg.Recording.Enabled = true
	e, sched, store := newTestEngine(t, cfg)

	if err := e.Play(); !errors.Is(err, ErrNoClip) {
		t.Fatalf("Play() without clip = %v, want ErrNoClip", err)
	}
	_ = e.SetClip("tone.wav", testClip(10*time.Second))

	var artifacts []record.Artifact
	e.OnArtifact = func(a record.Artifact) { artifacts = append(artifacts, a) }

	if err := e.Play(); err != nil {
		t.Fatal(err)
	}
	if err := e.Play(); err != nil {
		t.Errorf("second Play() = %v", err)
	}
	sched.Step()
	sched.Step()

	st := e.Status()
	if !st.Playing || st.Loop != render.Running || st.Recording != record.Recording {
		t.Fatalf("status = %+v", st)
	}
	if st.Ticks == 0 {
		t.Error("no frames rendered")
	}

	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	st = e.Status()
	if st.Playing || st.Loop != render.TornDown || st.Recording != record.Idle {
		t.Errorf("status after Stop = %+v", st)
	}
	if len(artifacts) != 1 || len(store.names) == 0 {
		t.Errorf("artifacts = %d, stored = %v", len(artifacts), store.names)
	}
	if err := e.Stop(); err != nil {
		t.Errorf("second Stop() = %v", err)
	}
}

func TestEffectChangesRewire(t *testing.T) {
	e, sched, _ := newTestEngine(t, testConfig())
	_ = e.SetClip("tone.wav", testClip(10*time.Second))
	if err := e.Play(); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()
	sched.Step()

	tests := []struct {
		name   string
		change func() error
		check  func(Status) bool
	}{
		{"Mirror", e.ToggleMirror, func(s Status) bool { return s.Mirror }},
		{"Something", func() error { return e.AdjustSomething(250) }, func(s Status) bool { return s.Something == synth.MaxSomething }},
		{"Something lower bound", func() error { return e.SetSomething(-5) }, func(s Status) bool { return s.Something == 0 }},
		{"Synth", func() error { return e.SetSynth("blend") }, func(s Status) bool { return s.Synth == "blend" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.change(); err != nil {
				t.Fatal(err)
			}
			st := e.Status()
			if !tt.check(st) {
				t.Errorf("status = %+v", st)
			}
			if st.Loop != render.Running || st.Ticks != 0 {
				t.Errorf("loop = %s with %d ticks, want a fresh running session", st.Loop, st.Ticks)
			}
			sched.Step()
			if e.Status().Ticks == 0 {
				t.Error("rewired session does not tick")
			}
		})
	}

	if err := e.SetSynth("plasma"); !errors.Is(err, synth.ErrUnknown) {
		t.Errorf("SetSynth(plasma) = %v, want ErrUnknown", err)
	}
}

func TestPlaybackEnds(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())
	_ = e.SetClip("blip.wav", testClip(50*time.Millisecond))

	ended := make(chan struct{})
	var once sync.Once
	e.OnEnded = func() { once.Do(func() { close(ended) }) }

	if err := e.Play(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ended:
	case <-time.After(5 * time.Second):
		t.Fatal("OnEnded not called")
	}
	if e.Playing() {
		t.Error("still playing after the clip ended")
	}
	if st := e.Status(); st.Loop != render.TornDown {
		t.Errorf("loop = %s, want torn down", st.Loop)
	}
}

func TestSynthesisFailureStopsPlayback(t *testing.T) {
	cfg := testConfig()
	cfg.Recording.Enabled = true
	e, sched, store := newTestEngine(t, cfg)
	_ = e.SetClip("tone.wav", testClip(10*time.Second))

	ended := make(chan struct{})
	var once sync.Once
	e.OnEnded = func() { once.Do(func() { close(ended) }) }

	if err := e.Play(); err != nil {
		t.Fatal(err)
	}
	sched.Step()

	errScanline := errors.New("scanline out of range")
	e.mu.Lock()
	err := e.swapLocked(func(synth.Frame) error { return errScanline })
	e.mu.Unlock()
	if err != nil {
		t.Fatal(err)
	}
	sched.Step()

	select {
	case <-ended:
	case <-time.After(5 * time.Second):
		t.Fatal("OnEnded not called after the render loop failed")
	}
	if e.Playing() {
		t.Error("still playing after the render loop failed")
	}
	st := e.Status()
	if st.Recording != record.Idle {
		t.Errorf("recording = %s, want idle", st.Recording)
	}
	if !errors.Is(st.Failure, errScanline) {
		t.Errorf("Status().Failure = %v, want %v", st.Failure, errScanline)
	}
	if len(store.names) == 0 {
		t.Error("recording made before the failure was not stored")
	}

	if err := e.SetSynth("trail"); err != nil {
		t.Fatal(err)
	}
	if err := e.Play(); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()
	if st := e.Status(); st.Failure != nil || !st.Playing {
		t.Errorf("status after replay = %+v", st)
	}
}

func TestSaveRecordingsToggle(t *testing.T) {
	e, sched, store := newTestEngine(t, testConfig())
	_ = e.SetClip("tone.wav", testClip(10*time.Second))
	if err := e.Play(); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()

	if e.Status().Recording != record.Idle {
		t.Fatal("recording without save recordings")
	}
	if err := e.SetSaveRecordings(true); err != nil {
		t.Fatal(err)
	}
	if e.Status().Recording != record.Recording {
		t.Fatal("recording not started")
	}
	sched.Step()
	if err := e.SetSaveRecordings(false); err != nil {
		t.Fatal(err)
	}
	if e.Status().Recording != record.Idle || len(store.names) == 0 {
		t.Errorf("recording = %s, stored = %v", e.Status().Recording, store.names)
	}
}

func TestStatusPositionAdvances(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())
	_ = e.SetClip("tone.wav", testClip(10*time.Second))
	if st := e.Status(); st.Position != 0 {
		t.Fatalf("position before Play = %v", st.Position)
	}
	if err := e.Play(); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for e.Status().Position == 0 {
		if time.Now().After(deadline) {
			t.Fatal("position did not advance during playback")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if st := e.Status(); st.Position > st.Duration {
		t.Errorf("position %v past duration %v", st.Position, st.Duration)
	}
}

func TestNewRecordingRevokesPrevious(t *testing.T) {
	cfg := testConfig()
	cfg.Recording.Enabled = true
	e, sched, store := newTestEngine(t, cfg)
	_ = e.SetClip("tone.wav", testClip(10*time.Second))

	capture := func() {
		t.Helper()
		if err := e.Play(); err != nil {
			t.Fatal(err)
		}
		sched.Step()
		if err := e.Stop(); err != nil {
			t.Fatal(err)
		}
	}

	capture()
	first := e.Status().LastArtifact
	if first == nil {
		t.Fatal("no artifact after the first recording")
	}
	if len(store.revoked) != 0 {
		t.Fatalf("revoked %v before a second recording", store.revoked)
	}

	capture()
	second := e.Status().LastArtifact
	if second == nil || second.URL == first.URL {
		t.Fatalf("second artifact = %+v", second)
	}
	want := []string{first.URL}
	if first.Sidecar != nil {
		want = append(want, first.Sidecar.URL)
	}
	if strings.Join(store.revoked, " ") != strings.Join(want, " ") {
		t.Errorf("revoked %v, want %v", store.revoked, want)
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Error("expected error for nil config")
	}
	cfg := testConfig()
	cfg.Effect.Synth = "plasma"
	_, err := New(cfg, Options{Headless: true, Store: &memStore{}})
	if err == nil || !strings.Contains(err.Error(), "plasma") {
		t.Errorf("New() = %v, want unknown synth error", err)
	}
}

func TestResampleOnLoad(t *testing.T) {
	cfg := testConfig()
	cfg.Audio.SampleRate = 2 * testRate
	e, _, _ := newTestEngine(t, cfg)
	if err := e.SetClip("tone.wav", testClip(time.Second)); err != nil {
		t.Fatal(err)
	}
	e.mu.Lock()
	rate := e.clip.SampleRate
	e.mu.Unlock()
	if rate != 2*testRate {
		t.Errorf("sample rate = %d, want %d", rate, 2*testRate)
	}
}
