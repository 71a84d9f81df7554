package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "memory", cfg.Registry.Backend)
	assert.Equal(t, 20, cfg.Reconcile.StartAttempts)
	assert.Equal(t, 3*time.Second, cfg.Reconcile.StartInterval)
	assert.Equal(t, 10, cfg.Reconcile.StopAttempts)
	assert.Equal(t, 2*time.Second, cfg.Reconcile.StopInterval)
	assert.Equal(t, 0.75, cfg.Nodes.MaxHeapFraction)
	assert.False(t, cfg.Policy.RequireRole)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown backend", func(c *Config) { c.Registry.Backend = "etcd" }},
		{"redis without host", func(c *Config) { c.Registry.Backend = "redis"; c.Registry.Redis.Host = "" }},
		{"postgres without database", func(c *Config) { c.Registry.Backend = "postgres"; c.Registry.Postgres.Database = "" }},
		{"empty base dir", func(c *Config) { c.Nodes.BaseDir = "" }},
		{"heap fraction above one", func(c *Config) { c.Nodes.MaxHeapFraction = 1.5 }},
		{"zero start attempts", func(c *Config) { c.Reconcile.StartAttempts = 0 }},
		{"zero search window", func(c *Config) { c.Suggestions.PortSearchWindow = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
server:
  port: 9999
registry:
  backend: memory
nodes:
  base_dir: /tmp/nodes
reconcile:
  start_attempts: 7
  start_interval: 1s
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "/tmp/nodes", cfg.Nodes.BaseDir)
	assert.Equal(t, 7, cfg.Reconcile.StartAttempts)
	assert.Equal(t, time.Second, cfg.Reconcile.StartInterval)
	// Untouched values keep their defaults
	assert.Equal(t, 10, cfg.Reconcile.StopAttempts)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7777")
	t.Setenv("REGISTRY_BACKEND", "memory")
	t.Setenv("NODES_BASE_DIR", "/srv/nodes")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "/srv/nodes", cfg.Nodes.BaseDir)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
