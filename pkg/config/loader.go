package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the expected file inside the config directory.
const ConfigFileName = "souschef.yaml"

// Initialize loads, defaults, and validates configuration. A missing
// souschef.yaml is not an error: the defaults describe a working local
// setup.
//
// Steps performed:
//  1. Read souschef.yaml from configDir (optional)
//  2. Expand environment variables
//  3. Parse YAML
//  4. Fill unset fields from defaults (mergo)
//  5. Validate
func Initialize(_ context.Context, configDir string) (*Config, error) {
	path := filepath.Join(configDir, ConfigFileName)
	log := slog.With("config_file", path)

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Info("No configuration file found, using defaults")
	case err != nil:
		return nil, &LoadError{File: ConfigFileName, Err: err}
	default:
		if err := yaml.Unmarshal(ExpandEnv(data), cfg); err != nil {
			return nil, &LoadError{File: ConfigFileName, Err: err}
		}
	}

	if err := mergo.Merge(cfg, defaultConfig()); err != nil {
		return nil, fmt.Errorf("apply configuration defaults: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	log.Info("Configuration initialized",
		"log_level", cfg.LogLevel,
		"addr", cfg.Server.Addr(),
		"recipes_source", cfg.Recipes.Source)
	return cfg, nil
}

// defaultConfig is the baseline merged under user values.
func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"http://localhost:5173"},
		},
		Recipes: RecipesConfig{
			Source: SourceLocal,
			Dir:    "./recipes",
		},
	}
}
