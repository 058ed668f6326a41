// Package bench runs on-demand synthetic workloads against a device under
// its exclusivity token. A benchmark never waits for a busy device: callers
// get ErrDeviceBusy immediately and decide whether to retry.
package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gpusentry/gpusentry/internal/device"
	monerrors "github.com/gpusentry/gpusentry/internal/errors"
	"github.com/gpusentry/gpusentry/pkg/model"
)

// Runner executes benchmarks. Sizes, the default repetition count, and the
// wall-clock budget come from configuration; the budget covers the workload
// only, not the token wait, because there is no token wait.
type Runner struct {
	tokens      *device.TokenSet
	timeout     time.Duration
	matrixSize  int
	arraySizeMB int
	iterations  int
}

// NewRunner creates a Runner. iterations is the repetition count used when a
// caller does not request one.
func NewRunner(tokens *device.TokenSet, timeout time.Duration, matrixSize, arraySizeMB, iterations int) *Runner {
	return &Runner{
		tokens:      tokens,
		timeout:     timeout,
		matrixSize:  matrixSize,
		arraySizeMB: arraySizeMB,
		iterations:  iterations,
	}
}

// Run executes one benchmark kind against one device, repeating the workload
// iterations times; pass 0 to use the configured default. Every attempt that
// gets past the token produces a BenchmarkResult, including timeouts and
// failures, so consumers can distinguish "attempted and failed" from "never
// run". The error mirrors the result's outcome for callers that only check
// errors.
func (r *Runner) Run(ctx context.Context, kind model.BenchmarkKind, dev model.Device, iterations int) (model.BenchmarkResult, error) {
	if iterations <= 0 {
		iterations = r.iterations
	}
	if !r.tokens.TryAcquire(dev.UUID) {
		return model.BenchmarkResult{}, fmt.Errorf("%w: %s is held by a collection cycle or another benchmark",
			monerrors.ErrDeviceBusy, dev.UUID)
	}
	defer r.tokens.Release(dev.UUID)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result := model.BenchmarkResult{
		Kind:        kind,
		DeviceIndex: dev.Index,
		DeviceUUID:  dev.UUID,
		Timestamp:   time.Now().UTC(),
	}

	start := time.Now()
	m, err := r.dispatch(ctx, kind, iterations)
	result.Duration = time.Since(start)
	result.Iterations = m.iterations
	result.GFLOPS = m.gflops
	result.BandwidthGBps = m.bandwidthGBps

	switch {
	case err == nil:
		result.Outcome = model.OutcomeOK
		slog.Info("benchmark completed",
			"kind", kind, "device_uuid", dev.UUID, "duration", result.Duration)
		return result, nil
	case errors.Is(err, context.DeadlineExceeded):
		result.Outcome = model.OutcomeTimeout
		result.Error = fmt.Sprintf("exceeded %s budget", r.timeout)
		return result, fmt.Errorf("%w: %s on %s exceeded %s",
			monerrors.ErrBenchmarkTimeout, kind, dev.UUID, r.timeout)
	default:
		result.Outcome = model.OutcomeError
		result.Error = err.Error()
		return result, err
	}
}

func (r *Runner) dispatch(ctx context.Context, kind model.BenchmarkKind, iterations int) (measurement, error) {
	switch kind {
	case model.BenchmarkMatrixMultiply:
		return matrixMultiply(ctx, r.matrixSize, iterations)
	case model.BenchmarkMemoryBandwidth:
		return memoryBandwidth(ctx, r.arraySizeMB, iterations)
	case model.BenchmarkSimple:
		return simple(ctx, iterations)
	default:
		return measurement{}, fmt.Errorf("unknown benchmark kind %q", kind)
	}
}
