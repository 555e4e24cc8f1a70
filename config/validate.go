package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate checks value ranges and cross-field requirements.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must be set")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	for name, value := range map[string]int{
		"ReadHeaderTimeout": cfg.ReadHeaderTimeout,
		"ReadTimeout":       cfg.ReadTimeout,
		"WriteTimeout":      cfg.WriteTimeout,
		"IdleTimeout":       cfg.IdleTimeout,
		"ShutdownTimeout":   cfg.ShutdownTimeout,
	} {
		if value < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if cfg.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit: RequestsPerSecond must not be negative")
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit: Burst must be at least 1 when limiting is enabled")
	}
	if cfg.Auth.Enabled {
		if _, err := cfg.Auth.JWTSecret(); err != nil {
			return err
		}
		if cfg.Auth.ClockSkewSeconds < 0 {
			return fmt.Errorf("auth: ClockSkewSeconds must not be negative")
		}
	}
	obs := cfg.Observability
	if _, ok := validLogLevels[strings.ToLower(strings.TrimSpace(obs.LogLevel))]; !ok {
		return fmt.Errorf("observability: unsupported LogLevel %q", obs.LogLevel)
	}
	if obs.TraceSampleRatio < 0 || obs.TraceSampleRatio > 1 {
		return fmt.Errorf("observability: TraceSampleRatio must be within [0,1]")
	}
	if obs.LogMaxSizeMB < 0 || obs.LogMaxBackups < 0 || obs.LogMaxAgeDays < 0 {
		return fmt.Errorf("observability: log rotation limits must not be negative")
	}
	return nil
}
