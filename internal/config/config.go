package config

import "time"

// Config represents the complete application configuration.
// Layer 1: built-in defaults (SetDefaults)
// Layer 2: user config file ($XDG_CONFIG_HOME/promptc/config.yaml or --config)
// Layer 3: PROMPTC_* environment variables and runtime overrides
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Prompts PromptsConfig `mapstructure:"prompts"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
	Debug   DebugConfig   `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// MaxBodyBytes caps request bodies on the /v1 API.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// PromptsConfig controls where prompt definitions are loaded from.
type PromptsConfig struct {
	// Dir is scanned recursively for *.prompt.md files. Empty disables it.
	Dir string `mapstructure:"dir"`
	// IncludeDefaults adds the embedded prompt set to the registry.
	IncludeDefaults bool `mapstructure:"include_defaults"`
	// WatchDebounce coalesces bursts of file events in watch mode.
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
