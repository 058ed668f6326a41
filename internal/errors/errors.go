package errors

import (
	"errors"
	"sync"
	"time"
)

// Code represents a typed error code surfaced to CLI output and the
// readiness endpoint.
type Code string

// Monitor error codes.
const (
	CodeNoDevicesFound    Code = "NO_DEVICES_FOUND"
	CodeDeviceUnreachable Code = "DEVICE_UNREACHABLE"
	CodeUnsupportedField  Code = "UNSUPPORTED_FIELD"
	CodeDeviceBusy        Code = "DEVICE_BUSY"
	CodeBenchmarkTimeout  Code = "BENCHMARK_TIMEOUT"
	CodeExportFormat      Code = "EXPORT_FORMAT"
	CodeCycleAbandoned    Code = "CYCLE_ABANDONED"
)

// Sentinel errors for errors.Is checks across package boundaries.
var (
	// ErrNoDevicesFound is fatal: the hardware query capability reported
	// zero devices or was itself unreachable during startup enumeration.
	ErrNoDevicesFound = errors.New("no devices found")

	// ErrDeviceUnreachable marks a device that could not be addressed at
	// all for one scrape. It recovers automatically next cycle.
	ErrDeviceUnreachable = errors.New("device unreachable")

	// ErrDeviceBusy is returned to a benchmark caller when the target
	// device is already held by a collection cycle or another benchmark.
	ErrDeviceBusy = errors.New("device busy")

	// ErrBenchmarkTimeout is returned when a benchmark exceeds its
	// wall-clock budget.
	ErrBenchmarkTimeout = errors.New("benchmark timeout")

	// ErrExportFormat marks an unrenderable export configuration. Fatal
	// to the single request only, never to the service.
	ErrExportFormat = errors.New("unknown export format")
)

// defaultTTL is the auto-expiry duration for errors not re-reported.
const defaultTTL = 5 * time.Minute

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock uses the system clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// MonitorError is a typed error with code, component, and the device it
// concerns (empty for system-level errors).
type MonitorError struct {
	Code       Code   `json:"code"`
	Message    string `json:"message"`
	Component  string `json:"component"`
	DeviceUUID string `json:"device_uuid,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *MonitorError) Error() string {
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is/As compatibility.
func (e *MonitorError) Unwrap() error {
	return e.Err
}

// entry wraps a MonitorError with its last-reported time for expiry tracking.
type entry struct {
	err        MonitorError
	lastReport time.Time
}

// ErrorCollector is a thread-safe store for active monitor errors. Errors
// are keyed by Code+Component+DeviceUUID and auto-expire after 5 minutes if
// not re-reported. The health CLI and the readiness endpoint read it to show
// which conditions are currently active.
type ErrorCollector struct {
	mu      sync.Mutex
	clock   Clock
	entries map[string]entry
}

// NewErrorCollector creates an ErrorCollector with the given clock.
func NewErrorCollector(clock Clock) *ErrorCollector {
	return &ErrorCollector{
		clock:   clock,
		entries: make(map[string]entry),
	}
}

func key(code Code, component, device string) string {
	return string(code) + "|" + component + "|" + device
}

// Report stores or refreshes an error.
func (ec *ErrorCollector) Report(err MonitorError) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	k := key(err.Code, err.Component, err.DeviceUUID)
	ec.entries[k] = entry{
		err:        err,
		lastReport: ec.clock.Now(),
	}
}

// ActiveErrors returns all errors reported within the TTL window.
func (ec *ErrorCollector) ActiveErrors() []MonitorError {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	now := ec.clock.Now()
	result := make([]MonitorError, 0, len(ec.entries))
	for k, e := range ec.entries {
		if now.Sub(e.lastReport) > defaultTTL {
			delete(ec.entries, k)
			continue
		}
		result = append(result, e.err)
	}
	return result
}

// Clear removes all tracked errors.
func (ec *ErrorCollector) Clear() {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.entries = make(map[string]entry)
}
