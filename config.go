package loom

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ParseConfig reads a YAML root configuration. Missing fields keep their
// DefaultConfig values; expiration windows that cannot be bucketed are
// rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if err := cfg.Expiration.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}

// LoadConfig reads the YAML root configuration at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	return ParseConfig(data)
}
