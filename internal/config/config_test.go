package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cowfork/kernel/sim"

	"github.com/google/go-cmp/cmp"
)

func TestLoadBytes(t *testing.T) {
	data := `
[kernel]
frames = 512
max_envs = 8

[log]
level = "debug"
format = "json"

[metrics]
enabled = true
`
	cfg, warnings, err := LoadBytes([]byte(data), "test.toml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) > 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	exp := &Config{
		Kernel:  KernelConfig{Frames: 512, MaxEnvs: 8},
		Log:     LogConfig{Level: "debug", Format: "json"},
		Metrics: MetricsConfig{Enabled: true},
	}
	if diff := cmp.Diff(exp, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaults(t *testing.T) {
	cfg, _, err := LoadBytes(nil, "empty.toml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exp := &Config{
		Kernel: KernelConfig{Frames: sim.DefaultFrames, MaxEnvs: sim.NEnv},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
	if diff := cmp.Diff(exp, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(exp, Default()); diff != "" {
		t.Errorf("Default() mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownKeys(t *testing.T) {
	data := `
[kernel]
frames = 64
pages = 12

[scheduler]
quantum = 3
`
	_, warnings, err := LoadBytes([]byte(data), "test.toml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	joined := strings.Join(warnings, "\n")
	for _, key := range []string{"kernel.pages", "scheduler.quantum"} {
		if !strings.Contains(joined, "unknown config key: "+key) {
			t.Errorf("expected a warning for %s; got %v", key, warnings)
		}
	}
}

func TestValidate(t *testing.T) {
	specs := []struct {
		name   string
		data   string
		expErr string
	}{
		{"too few frames", "[kernel]\nframes = 8\n", "frames must be >= 16"},
		{"too many envs", "[kernel]\nmax_envs = 4096\n", "max_envs must be between 1 and 1024"},
		{"negative envs", "[kernel]\nmax_envs = -1\n", "max_envs must be between"},
		{"bad level", "[log]\nlevel = \"loud\"\n", `invalid level "loud"`},
		{"bad format", "[log]\nformat = \"xml\"\n", `format must be text or json, got "xml"`},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			_, _, err := LoadBytes([]byte(spec.data), "test.toml")
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), spec.expErr) {
				t.Errorf("expected error to contain %q; got %v", spec.expErr, err)
			}
		})
	}

	t.Run("validation error type", func(t *testing.T) {
		data := "[kernel]\nframes = 8\n\n[log]\nformat = \"xml\"\n"
		_, _, err := LoadBytes([]byte(data), "test.toml")

		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected a *ValidationError; got %T", err)
		}
		if verr.Path != "test.toml" {
			t.Errorf("expected path test.toml; got %q", verr.Path)
		}
		if len(verr.Errs) != 2 {
			t.Errorf("expected 2 errors; got %d: %v", len(verr.Errs), verr.Errs)
		}
	})

	t.Run("all errors are reported", func(t *testing.T) {
		cfg := &Config{Log: LogConfig{Level: "loud", Format: "xml"}}
		if errs := Validate(cfg); len(errs) != 4 {
			t.Errorf("expected 4 errors; got %d: %v", len(errs), errs)
		}
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cowfork.toml")
	if err := os.WriteFile(path, []byte("[kernel]\nframes = 128\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Kernel.Frames != 128 {
		t.Errorf("frames = %d, want 128", cfg.Kernel.Frames)
	}

	if _, _, err = Load(filepath.Join(dir, "missing.toml")); err == nil || !strings.Contains(err.Error(), "cannot read config") {
		t.Errorf("expected a read error; got %v", err)
	}

	if _, _, err = LoadBytes([]byte("[kernel\n"), "broken.toml"); err == nil || !strings.Contains(err.Error(), "config parse error in broken.toml") {
		t.Errorf("expected a parse error; got %v", err)
	}
}
