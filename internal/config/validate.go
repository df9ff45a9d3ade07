package config

import (
	"fmt"
	"net/url"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Server validation
	if u, err := url.Parse(cfg.Server.URL); err != nil || u.Host == "" {
		issues = append(issues, ValidationIssue{
			Path:    "server.url",
			Message: fmt.Sprintf("must be an absolute websocket URL, got %q", cfg.Server.URL),
		})
	} else if !slices.Contains([]string{"ws", "wss"}, u.Scheme) {
		issues = append(issues, ValidationIssue{
			Path:    "server.url",
			Message: fmt.Sprintf("scheme must be ws or wss, got %q", u.Scheme),
		})
	}
	if cfg.Server.WriteTimeoutMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "server.writeTimeoutMs",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Server.WriteTimeoutMs),
		})
	}

	// Reconnect validation
	if cfg.Reconnect.BaseMs <= 0 || cfg.Reconnect.BaseMs > MaxReconnectMs {
		issues = append(issues, ValidationIssue{
			Path:    "reconnect.baseMs",
			Message: fmt.Sprintf("must be between 1 and %d, got %d", MaxReconnectMs, cfg.Reconnect.BaseMs),
		})
	}
	if cfg.Reconnect.MaxMs < cfg.Reconnect.BaseMs {
		issues = append(issues, ValidationIssue{
			Path:    "reconnect.maxMs",
			Message: fmt.Sprintf("must be >= baseMs (%d), got %d", cfg.Reconnect.BaseMs, cfg.Reconnect.MaxMs),
		})
	} else if cfg.Reconnect.MaxMs > MaxReconnectMs {
		issues = append(issues, ValidationIssue{
			Path:    "reconnect.maxMs",
			Message: fmt.Sprintf("must be <= %d (one day), got %d", MaxReconnectMs, cfg.Reconnect.MaxMs),
		})
	}
	if !(cfg.Reconnect.Multiplier >= 1 && cfg.Reconnect.Multiplier <= MaxMultiplier) {
		issues = append(issues, ValidationIssue{
			Path:    "reconnect.multiplier",
			Message: fmt.Sprintf("must be between 1 and %d, got %v", MaxMultiplier, cfg.Reconnect.Multiplier),
		})
	}

	// Chat validation
	if cfg.Chat.HistorySize < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "chat.historySize",
			Message: fmt.Sprintf("must be >= 1, got %d", cfg.Chat.HistorySize),
		})
	}

	// Session validation
	validStores := []string{"sqlite", "memory"}
	if cfg.Session.Store != "" && !slices.Contains(validStores, cfg.Session.Store) {
		issues = append(issues, ValidationIssue{
			Path:    "session.store",
			Message: fmt.Sprintf("must be one of %v, got %q", validStores, cfg.Session.Store),
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "compact", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	return issues
}
