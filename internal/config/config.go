package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Config holds all monitor configuration values.
type Config struct {
	// Collection
	CollectionInterval time.Duration // GPUSENTRY_COLLECTION_INTERVAL, default 10s
	DeviceQueryTimeout time.Duration // GPUSENTRY_DEVICE_QUERY_TIMEOUT, default 5s
	CycleCeiling       time.Duration // GPUSENTRY_CYCLE_CEILING, default 3x interval
	DeviceAllowList    []string      // GPUSENTRY_DEVICE_ALLOWLIST, comma-separated UUIDs or logical indices

	// Health thresholds. All tunable; the evaluator hardcodes nothing.
	TemperatureWarnCelsius     float64 // GPUSENTRY_TEMP_WARN_CELSIUS, default 80
	TemperatureCritCelsius     float64 // GPUSENTRY_TEMP_CRIT_CELSIUS, default 90
	TemperatureShutdownCelsius float64 // GPUSENTRY_TEMP_SHUTDOWN_CELSIUS, default 95
	PowerRatioCrit             float64 // GPUSENTRY_POWER_RATIO_CRIT, default 0.98

	// FailThreshold is the verdict name at or above which the health CLI
	// exits non-zero, for automated health checks.
	FailThreshold string // GPUSENTRY_FAIL_THRESHOLD, default "degraded"

	// Benchmarks
	BenchmarkTimeout     time.Duration // GPUSENTRY_BENCHMARK_TIMEOUT, default 30s
	BenchmarkMatrixSize  int           // GPUSENTRY_BENCHMARK_MATRIX_SIZE, default 1024
	BenchmarkArraySizeMB int           // GPUSENTRY_BENCHMARK_ARRAY_SIZE_MB, default 256
	BenchmarkIterations  int           // GPUSENTRY_BENCHMARK_ITERATIONS, default 3

	// Exporter
	ListenPort     int  // GPUSENTRY_LISTEN_PORT, default 9835
	DebugEndpoints bool // GPUSENTRY_DEBUG_ENDPOINTS, default false

	LogLevel string // GPUSENTRY_LOG_LEVEL, default "info"

	AgentVersion string
}

// Load reads configuration from environment variables and returns a Config
// with defaults applied for any unset values.
func Load() Config {
	cfg := Config{
		CollectionInterval: parseDuration("GPUSENTRY_COLLECTION_INTERVAL", 10*time.Second),
		DeviceQueryTimeout: parseDuration("GPUSENTRY_DEVICE_QUERY_TIMEOUT", 5*time.Second),
		DeviceAllowList:    parseStringSlice("GPUSENTRY_DEVICE_ALLOWLIST"),

		TemperatureWarnCelsius:     parseFloat("GPUSENTRY_TEMP_WARN_CELSIUS", 80),
		TemperatureCritCelsius:     parseFloat("GPUSENTRY_TEMP_CRIT_CELSIUS", 90),
		TemperatureShutdownCelsius: parseFloat("GPUSENTRY_TEMP_SHUTDOWN_CELSIUS", 95),
		PowerRatioCrit:             parseFloat("GPUSENTRY_POWER_RATIO_CRIT", 0.98),
		FailThreshold:              envOrDefault("GPUSENTRY_FAIL_THRESHOLD", "degraded"),

		BenchmarkTimeout:     parseDuration("GPUSENTRY_BENCHMARK_TIMEOUT", 30*time.Second),
		BenchmarkMatrixSize:  parseInt("GPUSENTRY_BENCHMARK_MATRIX_SIZE", 1024),
		BenchmarkArraySizeMB: parseInt("GPUSENTRY_BENCHMARK_ARRAY_SIZE_MB", 256),
		BenchmarkIterations:  parseInt("GPUSENTRY_BENCHMARK_ITERATIONS", 3),

		ListenPort:     parseInt("GPUSENTRY_LISTEN_PORT", 9835),
		DebugEndpoints: parseBool("GPUSENTRY_DEBUG_ENDPOINTS", false),
		LogLevel:       envOrDefault("GPUSENTRY_LOG_LEVEL", "info"),

		AgentVersion: Version,
	}

	cfg.CycleCeiling = parseDuration("GPUSENTRY_CYCLE_CEILING", 3*cfg.CollectionInterval)

	return cfg
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// parseDuration tries time.ParseDuration first, then falls back to treating
// the value as integer seconds.
func parseDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(v)
	if err == nil {
		return d
	}

	secs, err := strconv.Atoi(v)
	if err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultVal
}

func parseBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func parseInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func parseFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func parseStringSlice(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var result []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}
