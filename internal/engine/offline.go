// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"fmt"
	"time"

	"spectrail/internal/audio"
	"spectrail/internal/record"
	"spectrail/internal/render"
	"spectrail/internal/synth"
)

// Render plays the loaded clip through a private render loop as fast as
// possible, one tick per recorded frame, and returns the stored recording.
// progress, if set, is called once per rendered second of audio.
func (e *Engine) Render(ctx context.Context, progress func(pos, total time.Duration)) (*record.Artifact, error) {
	e.mu.Lock()
	clip, effect, name := e.clip, e.effect, e.synthName
	surfaces := e.surfaces
	e.mu.Unlock()
	if clip == nil {
		return nil, ErrNoClip
	}

	fps := e.cfg.Recording.FPS
	framesPerTick := max(1, clip.SampleRate/fps)
	actx, err := audio.NewContext(clip.SampleRate, clip.Channels, framesPerTick)
	if err != nil {
		return nil, err
	}
	src := audio.NewBufferSource(actx, clip)

	fn, err := synth.ByName(name, effect)
	if err != nil {
		return nil, err
	}
	sched := &render.ManualScheduler{}
	loop, err := render.NewLoop(render.Options{
		Width:   e.cfg.Canvas.Width,
		Height:  e.cfg.Canvas.Height,
		FFTSize: e.cfg.FFTSize(),
		Buckets: e.bucketOptions(clip.SampleRate),
	}, fn, sched, e.analyserFactory())
	if err != nil {
		return nil, err
	}
	video := &record.VideoTap{}
	presented := render.MultiSurface{video}
	// Live surfaces other than the engine's own video tap still see the
	// frames.
	for _, s := range surfaces {
		if s != render.Surface(e.video) {
			presented = append(presented, s)
		}
	}
	loop.SetSurface(presented)
	var failure error
	loop.OnError = func(err error) { failure = err }
	defer loop.TearDown()

	var result *record.Artifact
	rec, err := record.NewRecorder(record.NewMJPEGSink, e.store, record.Options{
		Bitrate:       e.cfg.Recording.Bitrate,
		FPS:           fps,
		FlushInterval: e.cfg.Recording.FlushInterval,
		Filename:      e.cfg.Recording.Filename,
	})
	if err != nil {
		return nil, err
	}
	rec.OnStopped = func(a record.Artifact) {
		result = &a
		e.artifactStored(a)
	}

	if err := loop.Wire(src); err != nil {
		return nil, err
	}
	if err := rec.Arm(src, video); err != nil {
		return nil, err
	}
	if err := rec.Start(); err != nil {
		return nil, err
	}
	if err := loop.Start(); err != nil {
		rec.Stop()
		return nil, err
	}

	logger.Infof("Rendering %s at %d fps (%d samples per frame)", clip.Duration().Round(time.Millisecond), fps, framesPerTick)
	buf := make([]float32, framesPerTick*clip.Channels)
	src.Play()
	lastReport := -time.Second
	frames := 0
	for rendering := true; rendering; {
		if err := ctx.Err(); err != nil {
			rec.Stop()
			return nil, err
		}
		src.Read(buf)
		frames += sched.Step()
		if failure != nil {
			rec.Stop()
			return nil, fmt.Errorf("render failed after %d frames: %w", frames, failure)
		}

		select {
		case <-src.Done():
			rendering = false
		default:
		}
		if pos := src.Position(); progress != nil && pos-lastReport >= time.Second {
			lastReport = pos
			progress(pos, clip.Duration())
		}
	}
	if progress != nil {
		progress(clip.Duration(), clip.Duration())
	}

	if err := rec.Stop(); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("%w after %d frames", record.ErrEmptyArtifact, frames)
	}
	return result, nil
}
