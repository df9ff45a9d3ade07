package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_ServerURL(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		valid bool
	}{
		{"ws", "ws://127.0.0.1:8080/ws", true},
		{"wss", "wss://kapchan.example/ws", true},
		{"http scheme", "http://kapchan.example/ws", false},
		{"relative", "/ws", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Server.URL = tt.url
			issues := Validate(&cfg)
			if tt.valid {
				assert.Empty(t, issues)
				return
			}
			require.Len(t, issues, 1)
			assert.Equal(t, "server.url", issues[0].Path)
		})
	}
}

func TestValidate_NegativeWriteTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.Server.WriteTimeoutMs = -1
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "server.writeTimeoutMs", issues[0].Path)
}

func TestValidate_Reconnect(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ReconnectConfig)
		path   string
	}{
		{"zero base", func(r *ReconnectConfig) { r.BaseMs = 0 }, "reconnect.baseMs"},
		{"max below base", func(r *ReconnectConfig) { r.MaxMs = r.BaseMs - 1 }, "reconnect.maxMs"},
		{"shrinking multiplier", func(r *ReconnectConfig) { r.Multiplier = 0.5 }, "reconnect.multiplier"},
		{"huge multiplier", func(r *ReconnectConfig) { r.Multiplier = 1e300 }, "reconnect.multiplier"},
		{"base above a day", func(r *ReconnectConfig) { r.BaseMs = MaxReconnectMs + 1; r.MaxMs = MaxReconnectMs + 1 }, "reconnect.baseMs"},
		{"max overflowing duration", func(r *ReconnectConfig) { r.MaxMs = 1 << 62 }, "reconnect.maxMs"},
		{"max above a day", func(r *ReconnectConfig) { r.MaxMs = MaxReconnectMs + 1 }, "reconnect.maxMs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg.Reconnect)
			issues := Validate(&cfg)
			require.NotEmpty(t, issues)

			var paths []string
			for _, i := range issues {
				paths = append(paths, i.Path)
			}
			assert.Contains(t, paths, tt.path)
		})
	}
}

func TestValidate_ReconnectUpperBoundsAccepted(t *testing.T) {
	cfg := Defaults()
	cfg.Reconnect.BaseMs = MaxReconnectMs
	cfg.Reconnect.MaxMs = MaxReconnectMs
	cfg.Reconnect.Multiplier = MaxMultiplier
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_HistorySize(t *testing.T) {
	cfg := Defaults()
	cfg.Chat.HistorySize = 0
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "chat.historySize", issues[0].Path)
}

func TestValidate_SessionStore(t *testing.T) {
	for _, store := range []string{"sqlite", "memory"} {
		cfg := Defaults()
		cfg.Session.Store = store
		assert.Empty(t, Validate(&cfg), "store %s should be valid", store)
	}

	cfg := Defaults()
	cfg.Session.Store = "redis"
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "session.store", issues[0].Path)
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Level = "verbose"
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "logging.level", issues[0].Path)
}

func TestValidate_ValidLogLevels(t *testing.T) {
	for _, level := range []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"} {
		cfg := Defaults()
		cfg.Logging.Level = level
		assert.Empty(t, Validate(&cfg), "level %s should be valid", level)
	}
}

func TestValidate_InvalidConsoleStyle(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.ConsoleStyle = "fancy"
	issues := Validate(&cfg)
	require.Len(t, issues, 1)
	assert.Equal(t, "logging.consoleStyle", issues[0].Path)
}

func TestValidate_MultipleIssues(t *testing.T) {
	cfg := Defaults()
	cfg.Server.URL = "ftp://nowhere"
	cfg.Chat.HistorySize = -3
	cfg.Logging.Level = "loud"
	issues := Validate(&cfg)
	assert.Len(t, issues, 3)
}

func TestValidationIssueString(t *testing.T) {
	issue := ValidationIssue{Path: "chat.historySize", Message: "must be >= 1, got 0"}
	assert.Equal(t, "chat.historySize: must be >= 1, got 0", issue.String())
}
