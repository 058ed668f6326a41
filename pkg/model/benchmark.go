package model

import "time"

// BenchmarkKind selects the synthetic workload to run.
type BenchmarkKind string

const (
	BenchmarkMatrixMultiply  BenchmarkKind = "matrix_multiply"
	BenchmarkMemoryBandwidth BenchmarkKind = "memory_bandwidth"
	BenchmarkSimple          BenchmarkKind = "simple"
)

// BenchmarkOutcome distinguishes how a benchmark run ended. Downstream
// consumers can tell "never run" (no result at all) from "attempted and
// failed" (a result with a non-ok outcome).
type BenchmarkOutcome string

const (
	OutcomeOK      BenchmarkOutcome = "ok"
	OutcomeTimeout BenchmarkOutcome = "timeout"
	OutcomeError   BenchmarkOutcome = "error"
)

// BenchmarkResult records one benchmark run against one device. A result
// lives until superseded by a newer result of the same kind for the same
// device, or until the snapshot is discarded.
type BenchmarkResult struct {
	Kind        BenchmarkKind    `json:"kind"`
	DeviceIndex int              `json:"device_index"`
	DeviceUUID  string           `json:"device_uuid"`
	Timestamp   time.Time        `json:"timestamp"`
	Duration    time.Duration    `json:"duration_ns"`
	Iterations  int              `json:"iterations"`
	Outcome     BenchmarkOutcome `json:"outcome"`
	Error       string           `json:"error,omitempty"`

	GFLOPS        *float64 `json:"gflops,omitempty"`
	BandwidthGBps *float64 `json:"bandwidth_gbps,omitempty"`
}

// Succeeded reports whether the run completed with a measurement.
func (r BenchmarkResult) Succeeded() bool { return r.Outcome == OutcomeOK }
