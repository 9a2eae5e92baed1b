// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spectrail/pkg/build"
)

func TestVersionCommand(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(out.String()); got != build.Current().String() {
		t.Errorf("version = %q, want %q", got, build.Current())
	}
}

func TestRootRequiresFile(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{})
	if err := root.Execute(); err == nil {
		t.Error("no error without a file")
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spectrail.yaml")
	yaml := "canvas:\n  width: 64\n  height: 128\neffect:\n  something: 20\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		args      []string
		width     int
		height    int
		something float64
		mirror    bool
	}{
		{"File only", nil, 64, 128, 20, false},
		{"Width flag", []string{"--width", "32"}, 32, 128, 20, false},
		{"Effect flags", []string{"--mirror", "--something", "75"}, 64, 128, 75, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &options{}
			root := newRootCommand(opts)
			args := append([]string{"--config", path}, tt.args...)
			if err := root.ParseFlags(args); err != nil {
				t.Fatal(err)
			}
			cfg, err := opts.config(root)
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Canvas.Width != tt.width || cfg.Canvas.Height != tt.height {
				t.Errorf("canvas = %dx%d, want %dx%d", cfg.Canvas.Width, cfg.Canvas.Height, tt.width, tt.height)
			}
			if cfg.Effect.Something != tt.something || cfg.Effect.Mirror != tt.mirror {
				t.Errorf("effect = %+v", cfg.Effect)
			}
		})
	}
}

func TestInvalidFlags(t *testing.T) {
	opts := &options{}
	root := newRootCommand(opts)
	if err := root.ParseFlags([]string{"--fft-size", "100"}); err != nil {
		t.Fatal(err)
	}
	t.Chdir(t.TempDir())
	if _, err := opts.config(root); err == nil {
		t.Error("fft size 100 accepted")
	}
}
