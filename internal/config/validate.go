package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Round count accepted by the server.
const (
	minRounds = 1
	maxRounds = 10
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.ServerPath == "" {
		errs = append(errs, ValidationError{
			Field:   "server",
			Message: "server path is required (-server, or remembered in the settings file)",
		})
	}

	if cfg.Rounds < minRounds || cfg.Rounds > maxRounds {
		errs = append(errs, ValidationError{
			Field:   "rounds",
			Message: fmt.Sprintf("must be between %d and %d, got %d", minRounds, maxRounds, cfg.Rounds),
		})
	}

	if cfg.RosterPath == "" {
		errs = append(errs, ValidationError{
			Field:   "roster",
			Message: "roster path is required",
		})
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text', got %q", cfg.LogFormat),
		})
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be debug, info, warn or error, got %q", cfg.LogLevel),
		})
	}

	if cfg.GraceInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "grace",
			Message: "must be positive",
		})
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"bot_launch_delay", cfg.BotLaunchDelay},
		{"bot_stagger", cfg.BotStagger},
		{"bot_stagger_jitter", cfg.BotStaggerJitter},
	}
	for _, d := range durations {
		if d.value < 0 {
			errs = append(errs, ValidationError{
				Field:   d.field,
				Message: "cannot be negative",
			})
		}
	}

	// Matches only drives headless mode
	if !cfg.TUIEnabled && cfg.Matches < 1 {
		errs = append(errs, ValidationError{
			Field:   "matches",
			Message: "must be at least 1",
		})
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: fmt.Sprintf("invalid address: %v", err),
			})
		}
	}

	return errors.Join(errs...)
}
