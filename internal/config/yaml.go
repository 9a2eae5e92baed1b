// SPDX-License-Identifier: MIT
/*
Package config loads the runtime configuration.

Values come from the built-in defaults, then an optional YAML file, then
ENV_* environment overrides, in that order. The result is validated once;
everything downstream may assume positive sizes and a power-of-two FFT.
*/
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	applog "spectrail/internal/log"
	"spectrail/internal/synth"
	"spectrail/pkg/bitint"
)

// DefaultFile is searched for in the working directory when no path is given.
const DefaultFile = "spectrail.yaml"

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug logging.
	LogLevel  string          `yaml:"log_level"` // Logging level ("debug", "info", "warn", "error").
	Canvas    CanvasConfig    `yaml:"canvas"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Effect    EffectConfig    `yaml:"effect"`
	Audio     AudioConfig     `yaml:"audio"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
}

// CanvasConfig sizes the raster.
type CanvasConfig struct {
	Width  int `yaml:"width"`  // Raster columns.
	Height int `yaml:"height"` // Raster scanlines.
	FPS    int `yaml:"fps"`    // Frame rate of the render loop.
	Scale  int `yaml:"scale"`  // Upscale factor for presentation surfaces.
}

// AnalysisConfig holds the spectrum analyser and bucket mapper settings.
type AnalysisConfig struct {
	FFTSize        int     `yaml:"fft_size"`        // Power of two; 0 derives it from the height.
	Window         string  `yaml:"window"`          // Window function name.
	Smoothing      float64 `yaml:"smoothing"`       // Temporal smoothing in [0,1).
	MinDecibels    float64 `yaml:"min_decibels"`    // Maps to byte 0.
	MaxDecibels    float64 `yaml:"max_decibels"`    // Maps to byte 255.
	Gate           float64 `yaml:"gate"`            // Noise gate threshold (0-1); 0 disables.
	BucketExponent float64 `yaml:"bucket_exponent"` // Curvature of the scanline mapping.
	BucketDivisor  float64 `yaml:"bucket_divisor"`  // Divides every scanline value; 0 means 1.
	BucketOffset   int     `yaml:"bucket_offset"`   // First bin used; -1 derives it from 50 Hz.
}

// EffectConfig selects and parameterises the synthesizer.
type EffectConfig struct {
	Synth     string  `yaml:"synth"`      // Registered synthesizer name.
	Mirror    bool    `yaml:"mirror"`     // Boundary in the centre, trails drift outward.
	Something float64 `yaml:"something"`  // Effect scalar in [0,100].
	Threshold float64 `yaml:"threshold"`  // Scanline values at or below draw as silence.
	LowAtTop  bool    `yaml:"low_at_top"` // Lowest frequencies on the top row.
	Ratio     float64 `yaml:"ratio"`      // Blend weight of fresh colour; 0 means the default.
}

// AudioConfig holds settings related to audio output.
type AudioConfig struct {
	OutputDevice    int  `yaml:"output_device"`     // PortAudio device index (-1 for default).
	FramesPerBuffer int  `yaml:"frames_per_buffer"` // Frames per output callback.
	LowLatency      bool `yaml:"low_latency"`       // Request low latency from the device.
	SampleRate      int  `yaml:"sample_rate"`       // Resample clips to this rate; 0 keeps the clip's.
	Autoplay        bool `yaml:"autoplay"`          // Start playback as soon as a clip is loaded.
}

// RecordingConfig holds settings related to recording the visualisation.
type RecordingConfig struct {
	Enabled       bool          `yaml:"enabled"`        // Save recordings while playing.
	OutputDir     string        `yaml:"output_dir"`     // Directory artifacts are written to.
	Bitrate       int           `yaml:"bitrate"`        // Target video bits per second.
	FPS           int           `yaml:"fps"`            // Capture rate.
	FlushInterval time.Duration `yaml:"flush_interval"` // Chunk delivery period.
	Filename      string        `yaml:"filename"`       // Artifact name.
	TTL           time.Duration `yaml:"ttl"`            // Lifetime of served artifacts.
}

// TransportConfig holds settings related to sending frames and spectra out.
type TransportConfig struct {
	WSAddr           string        `yaml:"ws_addr"`            // Websocket listen address; empty disables.
	LogFrames        bool          `yaml:"log_frames"`         // Count encoded frames in the log.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Send spectra over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets.
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Canvas: CanvasConfig{
			Width:  DefaultWidth,
			Height: DefaultHeight,
			FPS:    DefaultFPS,
			Scale:  DefaultScale,
		},
		Analysis: AnalysisConfig{
			FFTSize:        DefaultFFTSize,
			Window:         DefaultWindow,
			Smoothing:      DefaultSmoothing,
			MinDecibels:    DefaultMinDecibels,
			MaxDecibels:    DefaultMaxDecibels,
			Gate:           DefaultGate,
			BucketExponent: DefaultBucketExponent,
			BucketOffset:   DefaultBucketOffset,
		},
		Effect: EffectConfig{
			Synth:     DefaultSynth,
			Mirror:    DefaultMirror,
			Something: DefaultSomething,
			Threshold: DefaultThreshold,
		},
		Audio: AudioConfig{
			OutputDevice:    DefaultDeviceID,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
			Autoplay:        true,
		},
		Recording: RecordingConfig{
			Enabled:       DefaultRecord,
			OutputDir:     DefaultOutputDir,
			Bitrate:       DefaultBitrate,
			FPS:           DefaultRecordFPS,
			FlushInterval: DefaultFlushInterval,
			Filename:      DefaultFilename,
			TTL:           DefaultArtifactTTL,
		},
		Transport: TransportConfig{
			WSAddr:           DefaultWSAddr,
			UDPEnabled:       DefaultUDPEnabled,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
	}
}

// LoadConfig loads configuration from the YAML file at path. If path is
// empty, DefaultFile is used when it exists and the built-in defaults
// otherwise. Environment overrides are applied last, then the result is
// validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		applog.Debugf("configuration: Loaded %s", path)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// FFTSize returns the analysis window, derived from the height when unset.
func (c *Config) FFTSize() int {
	if c.Analysis.FFTSize > 0 {
		return c.Analysis.FFTSize
	}
	return max(MinFFTSize, bitint.NextPowerOfTwo(2*c.Canvas.Height))
}

// Level returns the effective log level: debug when Debug is set,
// otherwise LogLevel.
func (c *Config) Level() applog.LogLevel {
	if c.Debug {
		return applog.LevelDebug
	}
	level, _ := applog.ParseLevel(c.LogLevel)
	return level
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if c.LogLevel != "" {
		_, ok := applog.ParseLevel(c.LogLevel)
		check(ok, "log_level %q is not a known level", c.LogLevel)
	}

	// Canvas
	check(c.Canvas.Width > 0 && c.Canvas.Width <= MaxDimension,
		"canvas.width must be in [1, %d], got %d", MaxDimension, c.Canvas.Width)
	check(c.Canvas.Height > 0 && c.Canvas.Height <= MaxDimension,
		"canvas.height must be in [1, %d], got %d", MaxDimension, c.Canvas.Height)
	check(c.Canvas.FPS > 0, "canvas.fps must be positive, got %d", c.Canvas.FPS)
	check(c.Canvas.Scale > 0, "canvas.scale must be positive, got %d", c.Canvas.Scale)

	// Analysis
	if n := c.Analysis.FFTSize; n != 0 {
		check(n > 0 && bitint.IsPowerOfTwo(n) && n >= MinFFTSize && n <= MaxFFTSize,
			"analysis.fft_size must be a power of 2 in [%d, %d], got %d", MinFFTSize, MaxFFTSize, n)
	}
	check(c.Analysis.Smoothing >= 0 && c.Analysis.Smoothing < 1,
		"analysis.smoothing must be in [0,1), got %g", c.Analysis.Smoothing)
	check(c.Analysis.MaxDecibels > c.Analysis.MinDecibels,
		"analysis.max_decibels (%g) must exceed analysis.min_decibels (%g)", c.Analysis.MaxDecibels, c.Analysis.MinDecibels)
	check(c.Analysis.Gate >= 0 && c.Analysis.Gate <= 1,
		"analysis.gate must be in [0,1], got %g", c.Analysis.Gate)
	check(c.Analysis.BucketExponent > 0,
		"analysis.bucket_exponent must be positive, got %g", c.Analysis.BucketExponent)
	check(c.Analysis.BucketDivisor >= 0,
		"analysis.bucket_divisor cannot be negative, got %g", c.Analysis.BucketDivisor)
	check(c.Analysis.BucketOffset >= -1,
		"analysis.bucket_offset must be -1 or a bin index, got %d", c.Analysis.BucketOffset)

	// Effect
	check(slices.Contains(synth.Names(), strings.ToLower(strings.TrimSpace(c.Effect.Synth))),
		"effect.synth %q is not one of %s", c.Effect.Synth, strings.Join(synth.Names(), ", "))
	// Effect values above their range are clamped by the synthesizers.
	check(c.Effect.Something >= 0, "effect.something must not be negative, got %g", c.Effect.Something)
	check(c.Effect.Threshold >= 0, "effect.threshold must not be negative, got %g", c.Effect.Threshold)
	check(c.Effect.Ratio >= 0 && c.Effect.Ratio <= 1,
		"effect.ratio must be in [0,1], got %g", c.Effect.Ratio)

	// Audio
	check(c.Audio.OutputDevice >= -1, "audio.output_device must be -1 or a device index, got %d", c.Audio.OutputDevice)
	check(c.Audio.FramesPerBuffer > 0 && c.Audio.FramesPerBuffer <= MaxBufferFrames,
		"audio.frames_per_buffer must be in [1, %d], got %d", MaxBufferFrames, c.Audio.FramesPerBuffer)
	check(c.Audio.SampleRate >= 0, "audio.sample_rate cannot be negative, got %d", c.Audio.SampleRate)

	// Recording
	check(c.Recording.Bitrate > 0, "recording.bitrate must be positive, got %d", c.Recording.Bitrate)
	check(c.Recording.FPS > 0, "recording.fps must be positive, got %d", c.Recording.FPS)
	check(c.Recording.FlushInterval > 0, "recording.flush_interval must be positive, got %s", c.Recording.FlushInterval)
	check(c.Recording.TTL > 0, "recording.ttl must be positive, got %s", c.Recording.TTL)
	if c.Recording.Enabled {
		check(c.Recording.OutputDir != "" || c.Transport.WSAddr != "",
			"recording.output_dir or transport.ws_addr must be set when recording is enabled")
	}

	// Transport
	if c.Transport.UDPEnabled {
		_, _, err := net.SplitHostPort(c.Transport.UDPTargetAddress)
		check(err == nil, "transport.udp_target_address %q appears invalid: %v", c.Transport.UDPTargetAddress, err)
		check(c.Transport.UDPSendInterval > 0,
			"transport.udp_send_interval must be positive when UDP is enabled, got %s", c.Transport.UDPSendInterval)
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies ENV_* variables on top of the file values.
// Unparseable values are ignored with a warning.
func (c *Config) applyEnvOverrides() {
	// ENV_DEBUG
	envBool("ENV_DEBUG", &c.Debug)

	// ENV_{canvas, analysis, effect}
	envInt("ENV_WIDTH", &c.Canvas.Width)
	envInt("ENV_HEIGHT", &c.Canvas.Height)
	envInt("ENV_FFT_SIZE", &c.Analysis.FFTSize)
	envBool("ENV_MIRROR", &c.Effect.Mirror)
	envFloat("ENV_SOMETHING", &c.Effect.Something)

	// ENV_WS_{...} and ENV_UDP_{...}
	// These are specific to the transport layer.
	if val, ok := os.LookupEnv("ENV_WS_ADDR"); ok {
		c.Transport.WSAddr = val
		applog.Infof("configuration: Overriding transport.ws_addr from env: %s", val)
	}
	envBool("ENV_UDP_ENABLED", &c.Transport.UDPEnabled)
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		applog.Infof("configuration: Overriding transport.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
			applog.Infof("configuration: Overriding transport.udp_send_interval from env: %s", dur)
		} else {
			applog.Warnf("configuration: Ignoring ENV_UDP_SEND_INTERVAL=%q: %v", val, err)
		}
	}
}

func envBool(name string, dst *bool) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		applog.Warnf("configuration: Ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = b
	applog.Infof("configuration: Overriding from %s: %v", name, b)
}

func envInt(name string, dst *int) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		applog.Warnf("configuration: Ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = n
	applog.Infof("configuration: Overriding from %s: %d", name, n)
}

func envFloat(name string, dst *float64) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		applog.Warnf("configuration: Ignoring %s=%q: %v", name, val, err)
		return
	}
	*dst = f
	applog.Infof("configuration: Overriding from %s: %g", name, f)
}
