// Package config provides unified configuration for the streaming
// tool-call extraction server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (STROM_ prefix)
//  4. Validation
package config

import "time"

// Config holds all configuration for the server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	ToolParser    ToolParserConfig    `yaml:"tool_parser"`
	Observability ObservabilityConfig `yaml:"observability"`
	Debug         DebugConfig         `yaml:"debug"`
}

// DebugConfig feeds pkg/debug.Init at startup: which categories emit
// debug-level logging and the baseline slog level for everything else.
type DebugConfig struct {
	// Categories is a comma-separated list (e.g. "parser,driver") or "all".
	Categories string `yaml:"categories"`
	// Level is one of ERROR, WARN, INFO, DEBUG, TRACE.
	Level string `yaml:"level"` // default: "INFO"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 120s
}

// ToolParserConfig governs how the stream driver dispatches tool-call
// extraction.
type ToolParserConfig struct {
	// Dialect selects the tool-call parser: "mistral", "hermes", or ""
	// (no parser wired: responses are plain content even when tools are
	// declared, and Validate then requires AutoToolChoice to be false).
	Dialect string `yaml:"tool_parser"`
	// AutoToolChoice gates whether the dialect is ever consulted at all;
	// false means the parser is never used regardless of Dialect, while a
	// named tool_choice still streams its function call.
	AutoToolChoice bool `yaml:"auto_tool_choice"`
	// ResponseRole is the delta role used on the preamble chunk.
	ResponseRole string `yaml:"response_role"` // default: "assistant"
	// ReturnTokensAsTokenIDs is loaded from the file and from
	// STROM_RETURN_TOKENS_AS_TOKEN_IDS, but no component reads it: streamed
	// deltas are the same whether it is set or not, and no "token_id:<n>"
	// rendering takes place.
	ReturnTokensAsTokenIDs bool `yaml:"return_tokens_as_token_ids"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		ToolParser: ToolParserConfig{
			AutoToolChoice: true,
			ResponseRole:   "assistant",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Debug: DebugConfig{
			Level: "INFO",
		},
	}
}
