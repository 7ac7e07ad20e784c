package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path, expands environment references, applies
// defaults, and validates. A missing file is not an error; the defaults
// alone form a runnable local configuration.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("No configuration file found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("read configuration %s: %w", path, err)
	default:
		expanded := ExpandEnv(data)
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parse configuration %s: %w", path, err)
		}
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	logger.Info("Configuration loaded",
		"max_rows", cfg.Policy.MaxRows,
		"allowed_tools", cfg.Policy.AllowedTools,
		"tool_timeout_ms", cfg.Tools.TimeoutMs)
	return cfg, nil
}
