package config

// Config is the root configuration for the kapchan client.
type Config struct {
	Server    ServerConfig    `yaml:"server,omitempty"`
	Reconnect ReconnectConfig `yaml:"reconnect,omitempty"`
	Chat      ChatConfig      `yaml:"chat,omitempty"`
	Session   SessionConfig   `yaml:"session,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// ServerConfig points the client at the kapchan websocket endpoint.
type ServerConfig struct {
	URL            string `yaml:"url,omitempty"`    // ws:// or wss://
	Origin         string `yaml:"origin,omitempty"` // sent as the Origin header when set
	WriteTimeoutMs int    `yaml:"writeTimeoutMs,omitempty"`
}

// ReconnectConfig controls the delay between reconnect attempts.
type ReconnectConfig struct {
	BaseMs     int     `yaml:"baseMs,omitempty"`
	MaxMs      int     `yaml:"maxMs,omitempty"`
	Multiplier float64 `yaml:"multiplier,omitempty"`
}

// ChatConfig controls the per-room message history.
type ChatConfig struct {
	HistorySize int `yaml:"historySize,omitempty"`
}

// SessionConfig controls where the access token is kept.
type SessionConfig struct {
	Store string `yaml:"store,omitempty"` // "sqlite" | "memory"
	Token string `yaml:"token,omitempty"` // optional bootstrap token, supports ${ENV}
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}
