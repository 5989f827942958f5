package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// ValidationError carries every semantic problem found in a config file.
type ValidationError struct {
	Path string
	Errs []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("config validation failed in %s:\n  %s", e.Path, strings.Join(msgs, "\n  "))
}

// Load reads the kernel config at path. See LoadBytes.
func Load(path string) (*Config, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read config: %s: %w", path, err)
	}

	return LoadBytes(data, path)
}

// LoadBytes decodes a kernel config, fills in defaults and validates it.
// Keys the config does not know about are reported as warnings rather than
// errors so older files keep working. Validation failures are returned as a
// *ValidationError. path only appears in messages.
func LoadBytes(data []byte, path string) (*Config, []string, error) {
	cfg := new(Config)
	md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("config parse error in %s: %w", path, err)
	}

	warnings := unknownKeys(md)

	ApplyDefaults(cfg)
	if errs := Validate(cfg); len(errs) != 0 {
		return nil, warnings, &ValidationError{Path: path, Errs: errs}
	}

	return cfg, warnings, nil
}

func unknownKeys(md toml.MetaData) []string {
	var warnings []string
	for _, key := range md.Undecoded() {
		warnings = append(warnings, "unknown config key: "+key.String())
	}
	return warnings
}
