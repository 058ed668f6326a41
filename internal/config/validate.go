package config

import (
	"fmt"
	"time"

	"github.com/gpusentry/gpusentry/pkg/model"
)

// Validate checks that the Config contains valid values.
// Returns an error describing the first invalid field found.
func (c Config) Validate() error {
	if c.CollectionInterval < time.Second {
		return fmt.Errorf("config: CollectionInterval must be >= 1s, got %v", c.CollectionInterval)
	}

	if c.DeviceQueryTimeout <= 0 {
		return fmt.Errorf("config: DeviceQueryTimeout must be > 0, got %v", c.DeviceQueryTimeout)
	}

	if c.CycleCeiling < c.CollectionInterval {
		return fmt.Errorf("config: CycleCeiling must be >= CollectionInterval (%v), got %v",
			c.CollectionInterval, c.CycleCeiling)
	}

	if c.TemperatureWarnCelsius >= c.TemperatureCritCelsius {
		return fmt.Errorf("config: TemperatureWarnCelsius (%v) must be below TemperatureCritCelsius (%v)",
			c.TemperatureWarnCelsius, c.TemperatureCritCelsius)
	}

	if c.TemperatureCritCelsius > c.TemperatureShutdownCelsius {
		return fmt.Errorf("config: TemperatureCritCelsius (%v) must not exceed TemperatureShutdownCelsius (%v)",
			c.TemperatureCritCelsius, c.TemperatureShutdownCelsius)
	}

	if c.PowerRatioCrit <= 0 || c.PowerRatioCrit > 1 {
		return fmt.Errorf("config: PowerRatioCrit must be in (0, 1], got %v", c.PowerRatioCrit)
	}

	if _, err := model.ParseVerdict(c.FailThreshold); err != nil {
		return fmt.Errorf("config: invalid FailThreshold: %w", err)
	}

	if c.BenchmarkTimeout <= 0 {
		return fmt.Errorf("config: BenchmarkTimeout must be > 0, got %v", c.BenchmarkTimeout)
	}

	if c.BenchmarkMatrixSize < 64 {
		return fmt.Errorf("config: BenchmarkMatrixSize must be >= 64, got %d", c.BenchmarkMatrixSize)
	}

	if c.BenchmarkArraySizeMB < 1 {
		return fmt.Errorf("config: BenchmarkArraySizeMB must be >= 1, got %d", c.BenchmarkArraySizeMB)
	}

	if c.BenchmarkIterations < 1 {
		return fmt.Errorf("config: BenchmarkIterations must be >= 1, got %d", c.BenchmarkIterations)
	}

	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("config: ListenPort must be 0-65535, got %d", c.ListenPort)
	}

	return nil
}

// FailVerdict returns the parsed fail threshold. Call after Validate.
func (c Config) FailVerdict() model.HealthVerdict {
	v, err := model.ParseVerdict(c.FailThreshold)
	if err != nil {
		return model.Degraded
	}
	return v
}
