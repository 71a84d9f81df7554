package config

import (
	"errors"
	"time"
)

// Config represents the node manager service configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Registry    RegistryConfig    `mapstructure:"registry"`
	Nodes       NodesConfig       `mapstructure:"nodes"`
	Reconcile   ReconcileConfig   `mapstructure:"reconcile"`
	Suggestions SuggestionsConfig `mapstructure:"suggestions"`
	Policy      PolicyConfig      `mapstructure:"policy"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig represents HTTP management server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ValidateTimeout time.Duration `mapstructure:"validate_timeout"`
}

// RegistryConfig selects and configures the node registry backend
type RegistryConfig struct {
	Backend  string         `mapstructure:"backend"` // "memory" | "redis" | "postgres"
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig represents the Redis registry backend configuration
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// PostgresConfig represents the PostgreSQL registry backend configuration
type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MinConnections int    `mapstructure:"min_connections"`
}

// NodesConfig governs how node processes are materialized and launched
type NodesConfig struct {
	BaseDir         string        `mapstructure:"base_dir"`
	EngineBinary    string        `mapstructure:"engine_binary"`
	MaxHeapFraction float64       `mapstructure:"max_heap_fraction"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
}

// ReconcileConfig holds the bounded polling budgets for start and stop.
// The attempt/interval pairs are product choices, not protocol requirements,
// so they stay configurable.
type ReconcileConfig struct {
	StartAttempts int           `mapstructure:"start_attempts"`
	StartInterval time.Duration `mapstructure:"start_interval"`
	StopAttempts  int           `mapstructure:"stop_attempts"`
	StopInterval  time.Duration `mapstructure:"stop_interval"`
}

// SuggestionsConfig bounds the conflict resolver's search
type SuggestionsConfig struct {
	PortSearchWindow  int `mapstructure:"port_search_window"`
	MaxNameCandidates int `mapstructure:"max_name_candidates"`
}

// PolicyConfig holds operator policy toggles
type PolicyConfig struct {
	// RequireRole rejects configurations with every role flag disabled
	RequireRole bool `mapstructure:"require_role"`
}

// RateLimiterConfig represents request rate limiting configuration
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	switch c.Registry.Backend {
	case "memory":
	case "redis":
		if c.Registry.Redis.Host == "" {
			return errors.New("registry.redis.host is required")
		}
	case "postgres":
		if c.Registry.Postgres.Host == "" {
			return errors.New("registry.postgres.host is required")
		}
		if c.Registry.Postgres.Database == "" {
			return errors.New("registry.postgres.database is required")
		}
		if c.Registry.Postgres.User == "" {
			return errors.New("registry.postgres.user is required")
		}
	default:
		return errors.New("registry.backend must be one of: memory, redis, postgres")
	}
	if c.Nodes.BaseDir == "" {
		return errors.New("nodes.base_dir is required")
	}
	if c.Nodes.MaxHeapFraction <= 0 || c.Nodes.MaxHeapFraction > 1 {
		return errors.New("nodes.max_heap_fraction must be between 0 and 1")
	}
	if c.Reconcile.StartAttempts <= 0 || c.Reconcile.StopAttempts <= 0 {
		return errors.New("reconcile attempt budgets must be positive")
	}
	if c.Suggestions.PortSearchWindow <= 0 {
		return errors.New("suggestions.port_search_window must be positive")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8088,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			ValidateTimeout: 5 * time.Second,
		},
		Registry: RegistryConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Host:      "localhost",
				Port:      6379,
				DB:        0,
				KeyPrefix: "nodemanager",
			},
			Postgres: PostgresConfig{
				Host:           "localhost",
				Port:           5432,
				Database:       "nodemanager",
				User:           "nodemanager",
				MaxConnections: 10,
				MinConnections: 2,
			},
		},
		Nodes: NodesConfig{
			BaseDir:         "/var/lib/nodemanager/nodes",
			EngineBinary:    "/usr/share/searchengine/bin/searchengine",
			MaxHeapFraction: 0.75,
			ProbeTimeout:    2 * time.Second,
		},
		Reconcile: ReconcileConfig{
			StartAttempts: 20,
			StartInterval: 3 * time.Second,
			StopAttempts:  10,
			StopInterval:  2 * time.Second,
		},
		Suggestions: SuggestionsConfig{
			PortSearchWindow:  1000,
			MaxNameCandidates: 5,
		},
		Policy: PolicyConfig{
			RequireRole: false,
		},
		RateLimiter: RateLimiterConfig{
			Enabled:           false,
			RequestsPerSecond: 50,
			BurstSize:         100,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
