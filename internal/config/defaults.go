package config

import "cowfork/kernel/sim"

// ApplyDefaults fills in zero-value fields with their default values.
func ApplyDefaults(cfg *Config) {
	if cfg.Kernel.Frames == 0 {
		cfg.Kernel.Frames = sim.DefaultFrames
	}
	if cfg.Kernel.MaxEnvs == 0 {
		cfg.Kernel.MaxEnvs = sim.NEnv
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
