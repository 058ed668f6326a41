// Package device wraps the hardware query capability behind a small API
// interface so the collector, evaluator, and tests never touch the driver
// binding directly. The NVML implementation lives in nvml.go; tests use the
// in-memory FakeAPI.
//
// Per-device exclusivity tokens coordinate the collector and the benchmark
// runner: both must hold a device's token before touching it.
package device

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by API implementations.
var (
	// ErrUnsupported marks a field the device or driver cannot report.
	// The collector degrades the field to unavailable, never surfacing
	// this as an error.
	ErrUnsupported = errors.New("field not supported")

	// ErrLost marks a device that has fallen off the bus or is otherwise
	// unaddressable. The collector reports the whole scrape of that
	// device as unreachable.
	ErrLost = errors.New("device lost")
)

// TemperatureSensor selects a thermal sensor.
type TemperatureSensor int

const (
	SensorCore TemperatureSensor = iota
	SensorMemory
)

// ClockDomain selects a clock frequency domain.
type ClockDomain int

const (
	ClockGraphics ClockDomain = iota
	ClockMemory
	ClockSM
)

// Identity is the immutable hardware identity of one device.
type Identity struct {
	UUID              string
	Name              string
	PCIBusID          string
	MemoryTotalBytes  uint64
	ComputeCapability string
}

// MemoryInfo reports device memory occupancy in bytes. Reserved is zero on
// drivers that do not expose it; HasReserved distinguishes that from a real
// zero reservation.
type MemoryInfo struct {
	Used        uint64
	Free        uint64
	Total       uint64
	Reserved    uint64
	HasReserved bool
}

// Utilization reports compute and memory-controller activity in percent.
type Utilization struct {
	GPU    float64
	Memory float64
}

// PCIeLink reports the negotiated and maximum bus link parameters.
type PCIeLink struct {
	Gen      int
	Width    int
	MaxGen   int
	MaxWidth int
}

// ECCCounts reports cumulative memory error counters.
type ECCCounts struct {
	VolatileSingleBit     uint64
	VolatileDoubleBit     uint64
	AggregateSingleBit    uint64
	AggregateDoubleBit    uint64
	RetiredPagesSingleBit uint64
	RetiredPagesDoubleBit uint64
}

// API is the hardware query capability. Indices are driver ordinals, not the
// logical indices the enumerator assigns. Implementations map driver-specific
// failure modes onto ErrUnsupported and ErrLost; any other error is treated
// as a transient per-field failure.
//
// Acquire it once at process start, release at shutdown, and pass it by
// explicit reference; there is no package-global handle.
type API interface {
	Init() error
	Shutdown() error

	DriverVersion() (string, error)
	CUDAVersion() (string, error)

	DeviceCount() (int, error)
	Identity(index int) (Identity, error)

	Temperature(index int, sensor TemperatureSensor) (float64, error)
	FanSpeed(index int) (float64, error)
	PowerUsage(index int) (float64, error)
	PowerLimit(index int) (float64, error)
	MemoryInfo(index int) (MemoryInfo, error)
	UtilizationRates(index int) (Utilization, error)
	EncoderUtilization(index int) (float64, error)
	DecoderUtilization(index int) (float64, error)
	ClockInfo(index int, domain ClockDomain) (float64, error)
	MaxClockInfo(index int, domain ClockDomain) (float64, error)
	PCIeLink(index int) (PCIeLink, error)
	PerformanceState(index int) (int, error)
	ProcessCount(index int) (int, error)

	// ThrottleReasons returns the raw clock-throttle reason bitmask.
	ThrottleReasons(index int) (uint64, error)

	ECCCounts(index int) (ECCCounts, error)
	PCIeReplayCounter(index int) (uint64, error)

	// PeerAccessSupported reports whether device a can directly address
	// device b's memory without host mediation.
	PeerAccessSupported(a, b int) (bool, error)
}

// FieldError annotates a per-field failure with the field name for logging
// and the unavailable-fields list in detailed health output.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }
