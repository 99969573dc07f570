package config

import (
	"errors"
	"fmt"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
	"io/fs"
	"os"
)

const EnvPrefix = "GENFIRE_"

// Load builds a config from defaults, then the YAML file at path (skipped when path is empty
// or the file does not exist), then GENFIRE_* environment variables, and validates the result.
func Load(path string) (*GenfireConfig, error) {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "genfire"
	}
	cfg := defaults(host)

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if cfg.Caption.APIKey == "" {
		cfg.Caption.APIKey = cfg.Providers.OpenAI.APIKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
