package model

// Sample is the per-device, per-scrape bag of telemetry readings. Every field
// is a pointer: nil means the driver reported the field as unsupported or
// unavailable for that scrape. A zero value is a real reading and is never
// used to encode absence.
//
// Units are canonical after collection: Celsius, Watts, bytes, MHz, and
// percent in [0, 100]. Exporters must not re-convert.
type Sample struct {
	TemperatureGPUCelsius    *float64 `json:"temperature_gpu_celsius,omitempty"`
	TemperatureMemoryCelsius *float64 `json:"temperature_memory_celsius,omitempty"`

	PowerDrawWatts  *float64 `json:"power_draw_watts,omitempty"`
	PowerLimitWatts *float64 `json:"power_limit_watts,omitempty"`

	MemoryUsedBytes     *uint64 `json:"memory_used_bytes,omitempty"`
	MemoryFreeBytes     *uint64 `json:"memory_free_bytes,omitempty"`
	MemoryTotalBytes    *uint64 `json:"memory_total_bytes,omitempty"`
	MemoryReservedBytes *uint64 `json:"memory_reserved_bytes,omitempty"`

	GPUUtilizationPercent     *float64 `json:"gpu_utilization_percent,omitempty"`
	MemoryUtilizationPercent  *float64 `json:"memory_utilization_percent,omitempty"`
	EncoderUtilizationPercent *float64 `json:"encoder_utilization_percent,omitempty"`
	DecoderUtilizationPercent *float64 `json:"decoder_utilization_percent,omitempty"`

	FanSpeedPercent *float64 `json:"fan_speed_percent,omitempty"`

	ClockGraphicsMHz    *float64 `json:"clock_graphics_mhz,omitempty"`
	ClockMemoryMHz      *float64 `json:"clock_memory_mhz,omitempty"`
	ClockSMMHz          *float64 `json:"clock_sm_mhz,omitempty"`
	MaxClockGraphicsMHz *float64 `json:"max_clock_graphics_mhz,omitempty"`
	MaxClockMemoryMHz   *float64 `json:"max_clock_memory_mhz,omitempty"`
	MaxClockSMMHz       *float64 `json:"max_clock_sm_mhz,omitempty"`

	PCIeLinkGen      *int `json:"pcie_link_gen,omitempty"`
	PCIeLinkWidth    *int `json:"pcie_link_width,omitempty"`
	PCIeMaxLinkGen   *int `json:"pcie_max_link_gen,omitempty"`
	PCIeMaxLinkWidth *int `json:"pcie_max_link_width,omitempty"`

	// PerformanceState is the P-state ordinal: 0 (max performance) to 15.
	PerformanceState *int `json:"performance_state,omitempty"`

	ProcessCount *int `json:"process_count,omitempty"`
}

// ECCState holds cumulative memory error counters. Counts are monotonically
// non-decreasing within a device's lifetime except across a device reset;
// trend evaluation treats a negative delta as a reset.
type ECCState struct {
	VolatileSingleBit  *uint64 `json:"volatile_single_bit,omitempty"`
	VolatileDoubleBit  *uint64 `json:"volatile_double_bit,omitempty"`
	AggregateSingleBit *uint64 `json:"aggregate_single_bit,omitempty"`
	AggregateDoubleBit *uint64 `json:"aggregate_double_bit,omitempty"`

	RetiredPagesSingleBit *uint64 `json:"retired_pages_single_bit,omitempty"`
	RetiredPagesDoubleBit *uint64 `json:"retired_pages_double_bit,omitempty"`

	PCIeReplayCount *uint64 `json:"pcie_replay_count,omitempty"`
}

// Float64 returns a pointer to v. Convenience for building samples.
func Float64(v float64) *float64 { return &v }

// Uint64 returns a pointer to v.
func Uint64(v uint64) *uint64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
