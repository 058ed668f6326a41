package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpusentry/gpusentry/pkg/model"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 10*time.Second, cfg.CollectionInterval)
	assert.Equal(t, 5*time.Second, cfg.DeviceQueryTimeout)
	assert.Equal(t, 30*time.Second, cfg.CycleCeiling)
	assert.Nil(t, cfg.DeviceAllowList)
	assert.Equal(t, 80.0, cfg.TemperatureWarnCelsius)
	assert.Equal(t, 90.0, cfg.TemperatureCritCelsius)
	assert.Equal(t, 95.0, cfg.TemperatureShutdownCelsius)
	assert.Equal(t, 0.98, cfg.PowerRatioCrit)
	assert.Equal(t, "degraded", cfg.FailThreshold)
	assert.Equal(t, 30*time.Second, cfg.BenchmarkTimeout)
	assert.Equal(t, 1024, cfg.BenchmarkMatrixSize)
	assert.Equal(t, 256, cfg.BenchmarkArraySizeMB)
	assert.Equal(t, 3, cfg.BenchmarkIterations)
	assert.Equal(t, 9835, cfg.ListenPort)
	assert.False(t, cfg.DebugEndpoints)
	assert.Equal(t, "info", cfg.LogLevel)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GPUSENTRY_COLLECTION_INTERVAL", "30s")
	t.Setenv("GPUSENTRY_DEVICE_QUERY_TIMEOUT", "2")
	t.Setenv("GPUSENTRY_DEVICE_ALLOWLIST", "GPU-aaa, 1")
	t.Setenv("GPUSENTRY_TEMP_WARN_CELSIUS", "70")
	t.Setenv("GPUSENTRY_FAIL_THRESHOLD", "warning")
	t.Setenv("GPUSENTRY_LISTEN_PORT", "9999")
	t.Setenv("GPUSENTRY_DEBUG_ENDPOINTS", "true")

	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.CollectionInterval)
	// Bare integers are treated as seconds.
	assert.Equal(t, 2*time.Second, cfg.DeviceQueryTimeout)
	assert.Equal(t, []string{"GPU-aaa", "1"}, cfg.DeviceAllowList)
	assert.Equal(t, 70.0, cfg.TemperatureWarnCelsius)
	assert.Equal(t, "warning", cfg.FailThreshold)
	assert.Equal(t, 9999, cfg.ListenPort)
	assert.True(t, cfg.DebugEndpoints)
	// Ceiling defaults to three intervals.
	assert.Equal(t, 90*time.Second, cfg.CycleCeiling)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("GPUSENTRY_COLLECTION_INTERVAL", "not-a-duration")
	t.Setenv("GPUSENTRY_LISTEN_PORT", "not-a-number")

	cfg := Load()
	assert.Equal(t, 10*time.Second, cfg.CollectionInterval)
	assert.Equal(t, 9835, cfg.ListenPort)
}

func TestValidate(t *testing.T) {
	base := Load()
	require.NoError(t, base.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"interval too short", func(c *Config) { c.CollectionInterval = 100 * time.Millisecond }},
		{"zero query timeout", func(c *Config) { c.DeviceQueryTimeout = 0 }},
		{"ceiling below interval", func(c *Config) { c.CycleCeiling = c.CollectionInterval / 2 }},
		{"warn above crit", func(c *Config) { c.TemperatureWarnCelsius = 92 }},
		{"crit above shutdown", func(c *Config) { c.TemperatureCritCelsius = 99 }},
		{"power ratio out of range", func(c *Config) { c.PowerRatioCrit = 1.5 }},
		{"bad fail threshold", func(c *Config) { c.FailThreshold = "meh" }},
		{"zero benchmark timeout", func(c *Config) { c.BenchmarkTimeout = 0 }},
		{"matrix too small", func(c *Config) { c.BenchmarkMatrixSize = 8 }},
		{"zero benchmark iterations", func(c *Config) { c.BenchmarkIterations = 0 }},
		{"port out of range", func(c *Config) { c.ListenPort = 70000 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFailVerdict(t *testing.T) {
	cfg := Load()
	assert.Equal(t, model.Degraded, cfg.FailVerdict())

	cfg.FailThreshold = "critical"
	assert.Equal(t, model.Critical, cfg.FailVerdict())
}
