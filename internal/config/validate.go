package config

import (
	"fmt"

	"cowfork/kernel/sim"

	"github.com/sirupsen/logrus"
)

// validFormats lists the supported log formats.
var validFormats = map[string]bool{
	"text": true, "json": true,
}

// Validate checks the config for semantic errors and returns all of them.
func Validate(cfg *Config) []error {
	var errs []error

	if cfg.Kernel.Frames < sim.MinFrames {
		errs = append(errs, fmt.Errorf("kernel: frames must be >= %d, got %d", sim.MinFrames, cfg.Kernel.Frames))
	}
	if cfg.Kernel.MaxEnvs < 1 || cfg.Kernel.MaxEnvs > sim.NEnv {
		errs = append(errs, fmt.Errorf("kernel: max_envs must be between 1 and %d, got %d", sim.NEnv, cfg.Kernel.MaxEnvs))
	}

	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log: invalid level %q", cfg.Log.Level))
	}
	if !validFormats[cfg.Log.Format] {
		errs = append(errs, fmt.Errorf("log: format must be text or json, got %q", cfg.Log.Format))
	}

	return errs
}
