// Package config loads and validates souschef.yaml.
package config

import (
	"fmt"
	"log/slog"
	"time"
)

// RecipeSource selects where the recipe registry loads from.
type RecipeSource string

const (
	SourceLocal  RecipeSource = "local"
	SourceRemote RecipeSource = "remote"
)

// Config is the complete runtime configuration.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Server   ServerConfig  `yaml:"server"`
	Recipes  RecipesConfig `yaml:"recipes"`
}

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Addr returns the listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RecipesConfig holds the recipe registry settings.
type RecipesConfig struct {
	Source      RecipeSource `yaml:"source"`
	Dir         string       `yaml:"dir"`          // local source
	ManifestURL string       `yaml:"manifest_url"` // remote source
	CacheTTL    string       `yaml:"cache_ttl"`    // remote source, Go duration
}

// CacheTTLDuration parses CacheTTL; 0 means "use the source's default".
func (r *RecipesConfig) CacheTTLDuration() time.Duration {
	if r.CacheTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(r.CacheTTL)
	if err != nil {
		return 0
	}
	return d
}

// SlogLevel maps the configured log level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
