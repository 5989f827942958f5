// Package config loads the TOML configuration of the cowfork tool.
package config

// Config is the top-level configuration.
type Config struct {
	Kernel  KernelConfig  `toml:"kernel"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
}

// KernelConfig sizes the reference kernel.
type KernelConfig struct {
	// Frames is the amount of physical memory in 4 KiB frames.
	Frames uint32 `toml:"frames"`

	// MaxEnvs caps the number of live contexts.
	MaxEnvs int `toml:"max_envs"`
}

// LogConfig controls the shared logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig controls the metrics dump printed after a scenario.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}
