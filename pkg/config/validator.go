package config

import (
	"fmt"
	"time"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

func validate(cfg *Config) error {
	if !validLogLevels[cfg.LogLevel] {
		return &ValidationError{Field: "log_level",
			Message: fmt.Sprintf("%q is not one of debug, info, warn, error", cfg.LogLevel)}
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return &ValidationError{Field: "server.port",
			Message: fmt.Sprintf("%d is out of range 1-65535", cfg.Server.Port)}
	}

	switch cfg.Recipes.Source {
	case SourceLocal:
		if cfg.Recipes.Dir == "" {
			return &ValidationError{Field: "recipes.dir",
				Message: "required when recipes.source is local"}
		}
	case SourceRemote:
		if cfg.Recipes.ManifestURL == "" {
			return &ValidationError{Field: "recipes.manifest_url",
				Message: "required when recipes.source is remote"}
		}
	default:
		return &ValidationError{Field: "recipes.source",
			Message: fmt.Sprintf("%q is not one of local, remote", cfg.Recipes.Source)}
	}

	if cfg.Recipes.CacheTTL != "" {
		if _, err := time.ParseDuration(cfg.Recipes.CacheTTL); err != nil {
			return &ValidationError{Field: "recipes.cache_ttl",
				Message: fmt.Sprintf("%q is not a valid duration", cfg.Recipes.CacheTTL)}
		}
	}

	return nil
}
