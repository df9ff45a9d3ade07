package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultServerURL      = "ws://127.0.0.1:8080/ws"
	DefaultWriteTimeoutMs = 10000
	DefaultBaseMs         = 1000
	DefaultMaxMs          = 625000
	DefaultMultiplier     = 5
	DefaultHistorySize    = 50

	// MaxReconnectMs bounds reconnect.baseMs and reconnect.maxMs (one day).
	MaxReconnectMs = 24 * 60 * 60 * 1000
	// MaxMultiplier bounds reconnect.multiplier.
	MaxMultiplier = 100
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			URL:            DefaultServerURL,
			WriteTimeoutMs: DefaultWriteTimeoutMs,
		},
		Reconnect: ReconnectConfig{
			BaseMs:     DefaultBaseMs,
			MaxMs:      DefaultMaxMs,
			Multiplier: DefaultMultiplier,
		},
		Chat: ChatConfig{
			HistorySize: DefaultHistorySize,
		},
		Session: SessionConfig{
			Store: "sqlite",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}

// Base returns the initial reconnect delay.
func (r ReconnectConfig) Base() time.Duration {
	return time.Duration(r.BaseMs) * time.Millisecond
}

// Max returns the delay ceiling after which the backoff wraps to Base.
func (r ReconnectConfig) Max() time.Duration {
	return time.Duration(r.MaxMs) * time.Millisecond
}

// WriteTimeout returns the per-frame websocket write deadline.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMs) * time.Millisecond
}
