// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"spectrail/internal/audio"
	"spectrail/internal/config"
	"spectrail/internal/engine"
	applog "spectrail/internal/log"
	"spectrail/internal/record"
	"spectrail/internal/render"
	"spectrail/internal/transport"
	"spectrail/internal/tui"
	"spectrail/pkg/build"
)

// options holds the command line flags. Only flags the user set override
// the configuration file.
type options struct {
	configPath string
	width      int
	height     int
	fftSize    int
	mirror     bool
	something  float64
	synth      string
	record     bool
	outputDir  string
	device     int
	lowLatency bool
	wsAddr     string
	headless   bool
	tuiMode    bool
	verbose    bool
}

// NewRootCommand builds the spectrail command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&options{})
}

func newRootCommand(opts *options) *cobra.Command {
	buildInfo := build.Current()

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name + " <file>",
		Short:         "Turn the spectrum of an audio clip into scrolling frames",
		Version:       buildInfo.Version,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			return play(cmd, cfg, opts, args[0])
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	renderCmd := &cobra.Command{
		Use:   "render <file>",
		Short: "Render a clip to a recording as fast as possible",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			return renderOffline(cmd, cfg, args[0])
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available output devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listDevices(cmd, opts.tuiMode)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), build.Current())
		},
	}
	rootCmd.AddCommand(renderCmd, listCmd, versionCmd)

	flags := rootCmd.PersistentFlags()

	// Configuration
	flags.StringVar(&opts.configPath, "config", "",
		"YAML configuration file (default "+config.DefaultFile+" when present)")

	// Canvas and analysis
	flags.IntVarP(&opts.width, "width", "W", config.DefaultWidth, "Frame width in pixels")
	flags.IntVarP(&opts.height, "height", "H", config.DefaultHeight, "Frame height in pixels (one scanline per row)")
	flags.IntVar(&opts.fftSize, "fft-size", config.DefaultFFTSize, "Analysis window, a power of two (0 derives it from the height)")

	// Effect
	flags.BoolVarP(&opts.mirror, "mirror", "m", config.DefaultMirror, "Draw from the centre column outward")
	flags.Float64Var(&opts.something, "something", config.DefaultSomething, "Effect scalar, clamped to [0,100]")
	flags.StringVar(&opts.synth, "synth", config.DefaultSynth, "Synthesizer (trail, blend)")

	// Audio output
	flags.IntVarP(&opts.device, "device", "d", config.DefaultDeviceID,
		"Output device ID. Use 'list' command to see available devices.")
	flags.BoolVarP(&opts.lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency output")
	flags.BoolVar(&opts.headless, "headless", false, "Play without an audio device")

	// Recording and transport
	flags.BoolVarP(&opts.record, "record", "r", config.DefaultRecord, "Save a recording of every playback")
	flags.StringVarP(&opts.outputDir, "output-dir", "o", config.DefaultOutputDir, "Directory recordings are written to")
	flags.StringVar(&opts.wsAddr, "ws-addr", config.DefaultWSAddr, "Websocket listen address for frames and recordings (empty disables)")

	// Interface and debug
	flags.BoolVarP(&opts.tuiMode, "tui", "t", false, "Use the terminal interface")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Show verbose output")

	return rootCmd
}

// Execute runs the command line.
func Execute() error {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(os.Args[1:])
	return rootCmd.Execute()
}

// config loads the configuration file and applies the flags the user set.
func (o *options) config(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("width", func() { cfg.Canvas.Width = o.width })
	set("height", func() { cfg.Canvas.Height = o.height })
	set("fft-size", func() { cfg.Analysis.FFTSize = o.fftSize })
	set("mirror", func() { cfg.Effect.Mirror = o.mirror })
	set("something", func() { cfg.Effect.Something = o.something })
	set("synth", func() { cfg.Effect.Synth = o.synth })
	set("device", func() { cfg.Audio.OutputDevice = o.device })
	set("low-latency", func() { cfg.Audio.LowLatency = o.lowLatency })
	set("record", func() { cfg.Recording.Enabled = o.record })
	set("output-dir", func() { cfg.Recording.OutputDir = o.outputDir })
	set("ws-addr", func() { cfg.Transport.WSAddr = o.wsAddr })
	if o.verbose {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	applog.SetLevel(cfg.Level())
	return cfg, nil
}

func play(cmd *cobra.Command, cfg *config.Config, opts *options, path string) error {
	var preview *tui.Preview
	var surfaces []render.Surface
	if opts.tuiMode {
		preview = tui.NewPreview(80, 24)
		surfaces = append(surfaces, preview)
		// The terminal belongs to the interface.
		applog.SetOutput(io.Discard)
	}

	e, err := engine.New(cfg, engine.Options{Headless: opts.headless, Surfaces: surfaces})
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			applog.Errorf("Error closing engine: %v", err)
		}
	}()

	if err := e.Load(path); err != nil {
		return err
	}

	if opts.tuiMode {
		return tui.Run(e, preview, cfg.Audio.Autoplay)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ended := make(chan struct{})
	var endOnce sync.Once
	e.OnEnded = func() { endOnce.Do(func() { close(ended) }) }
	e.OnArtifact = func(a record.Artifact) { printArtifact(cmd, a) }

	if err := e.Play(); err != nil {
		return err
	}
	if cfg.Transport.WSAddr != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Streaming frames on ws://%s%s\n", cfg.Transport.WSAddr, transport.FramesPath)
	}

	select {
	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout())
	case <-ended:
	}
	if err := e.Stop(); err != nil {
		return err
	}
	if err := e.Status().Failure; err != nil {
		return fmt.Errorf("playback stopped: %w", err)
	}
	return nil
}

func renderOffline(cmd *cobra.Command, cfg *config.Config, path string) error {
	// Offline renders go to disk; nothing listens for frames.
	cfg.Transport.WSAddr = ""
	cfg.Transport.UDPEnabled = false

	e, err := engine.New(cfg, engine.Options{
		Headless: true,
		Store:    record.DirStore{Dir: cfg.Recording.OutputDir},
	})
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.Load(path); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.ErrOrStderr()
	artifact, err := e.Render(ctx, func(pos, total time.Duration) {
		fmt.Fprintf(out, "\rRendering %s: %s / %s", filepath.Base(path), pos.Truncate(time.Second), total.Truncate(time.Second))
	})
	fmt.Fprintln(out)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("render interrupted: %w", err)
		}
		return err
	}
	printArtifact(cmd, *artifact)
	return nil
}

func printArtifact(cmd *cobra.Command, a record.Artifact) {
	fmt.Fprintf(cmd.OutOrStdout(), "Recording saved to: %s (%d bytes)\n", a.URL, a.Size)
	if a.Sidecar != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Audio track saved to: %s (%d bytes)\n", a.Sidecar.URL, a.Sidecar.Size)
	}
}

func listDevices(cmd *cobra.Command, pick bool) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	if !pick {
		return audio.ListDevices(cmd.OutOrStdout())
	}

	choice, ok, err := tui.PickDevice()
	if err != nil || !ok {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Use --device %d", choice.DeviceID)
	if choice.LowLatency {
		fmt.Fprint(cmd.OutOrStdout(), " --low-latency")
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
