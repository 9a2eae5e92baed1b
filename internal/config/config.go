// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults of
// the visualizer.
const (
	// Canvas
	DefaultWidth  = 144 // Columns of history
	DefaultHeight = 256 // Scanlines, one per frequency bucket
	DefaultFPS    = 60
	DefaultScale  = 2 // Upscale factor for presentation

	// Analysis
	DefaultFFTSize        = 0 // 0 derives NextPowerOfTwo(2*height)
	DefaultWindow         = "Blackman"
	DefaultSmoothing      = 0.8
	DefaultMinDecibels    = -100.0
	DefaultMaxDecibels    = -30.0
	DefaultGate           = 0.0
	DefaultBucketExponent = 6.0
	DefaultBucketOffset   = -1 // -1 starts at the first bin above 50 Hz

	// Effect
	DefaultSynth     = "trail"
	DefaultMirror    = false
	DefaultSomething = 0.0
	DefaultThreshold = 0.0

	// Audio output
	DefaultDeviceID        = -1 // System default device
	DefaultFramesPerBuffer = 512
	DefaultLowLatency      = false

	// Recording
	DefaultRecord        = false
	DefaultOutputDir     = "./recordings"
	DefaultBitrate       = 8 * 1024 * 1024
	DefaultRecordFPS     = 30
	DefaultFlushInterval = 500 * time.Millisecond
	DefaultFilename      = "video.mjpeg"
	DefaultArtifactTTL   = 5 * time.Minute

	// Transport
	DefaultWSAddr           = ""
	DefaultUDPEnabled       = false
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 16 * time.Millisecond

	// Limits
	MaxDimension    = 4096
	MinFFTSize      = 32
	MaxFFTSize      = 32768
	MaxBufferFrames = 8192
)
