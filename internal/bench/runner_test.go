package bench

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpusentry/gpusentry/internal/device"
	monerrors "github.com/gpusentry/gpusentry/internal/errors"
	"github.com/gpusentry/gpusentry/pkg/model"
)

func benchDevice() model.Device {
	return model.Device{Index: 0, UUID: "GPU-aaa", Name: "Test Accelerator"}
}

func TestRunSimple(t *testing.T) {
	tokens := device.NewTokenSet()
	r := NewRunner(tokens, 30*time.Second, 64, 1, 3)

	result, err := r.Run(context.Background(), model.BenchmarkSimple, benchDevice(), 0)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeOK, result.Outcome)
	assert.True(t, result.Succeeded())
	assert.Equal(t, "GPU-aaa", result.DeviceUUID)
	assert.Positive(t, result.Iterations)
	assert.Positive(t, result.Duration)
}

func TestRunHonorsRequestedIterations(t *testing.T) {
	tokens := device.NewTokenSet()
	r := NewRunner(tokens, 30*time.Second, 64, 1, 3)

	result, err := r.Run(context.Background(), model.BenchmarkSimple, benchDevice(), 5)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeOK, result.Outcome)
	assert.Equal(t, 5, result.Iterations)
}

func TestRunDefaultsIterations(t *testing.T) {
	tokens := device.NewTokenSet()
	r := NewRunner(tokens, 30*time.Second, 64, 1, 4)

	result, err := r.Run(context.Background(), model.BenchmarkSimple, benchDevice(), 0)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Iterations)
}

func TestRunMatrixMultiplyReportsGFLOPS(t *testing.T) {
	tokens := device.NewTokenSet()
	r := NewRunner(tokens, 30*time.Second, 64, 1, 3)

	result, err := r.Run(context.Background(), model.BenchmarkMatrixMultiply, benchDevice(), 0)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeOK, result.Outcome)
	require.NotNil(t, result.GFLOPS)
	assert.Positive(t, *result.GFLOPS)
	assert.Nil(t, result.BandwidthGBps)
}

func TestRunMemoryBandwidthReportsGBps(t *testing.T) {
	tokens := device.NewTokenSet()
	r := NewRunner(tokens, 30*time.Second, 64, 1, 3)

	result, err := r.Run(context.Background(), model.BenchmarkMemoryBandwidth, benchDevice(), 0)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeOK, result.Outcome)
	require.NotNil(t, result.BandwidthGBps)
	assert.Positive(t, *result.BandwidthGBps)
	assert.Nil(t, result.GFLOPS)
}

func TestRunBusyDeviceFailsFast(t *testing.T) {
	tokens := device.NewTokenSet()
	require.True(t, tokens.TryAcquire("GPU-aaa"))
	defer tokens.Release("GPU-aaa")

	r := NewRunner(tokens, 30*time.Second, 64, 1, 3)

	start := time.Now()
	result, err := r.Run(context.Background(), model.BenchmarkSimple, benchDevice(), 0)
	assert.ErrorIs(t, err, monerrors.ErrDeviceBusy)
	assert.Less(t, time.Since(start), time.Second)

	// A busy rejection produces no result: the run never started.
	assert.Empty(t, result.Outcome)
}

func TestRunTimeoutProducesResult(t *testing.T) {
	tokens := device.NewTokenSet()
	// A large matrix cannot finish inside a 10ms budget.
	r := NewRunner(tokens, 10*time.Millisecond, 2048, 1, 3)

	result, err := r.Run(context.Background(), model.BenchmarkMatrixMultiply, benchDevice(), 0)
	assert.ErrorIs(t, err, monerrors.ErrBenchmarkTimeout)

	assert.Equal(t, model.OutcomeTimeout, result.Outcome)
	assert.False(t, result.Succeeded())
	assert.NotEmpty(t, result.Error)
	assert.Nil(t, result.GFLOPS)
}

func TestRunReleasesToken(t *testing.T) {
	tokens := device.NewTokenSet()
	r := NewRunner(tokens, 30*time.Second, 64, 1, 3)

	_, err := r.Run(context.Background(), model.BenchmarkSimple, benchDevice(), 0)
	require.NoError(t, err)

	assert.True(t, tokens.TryAcquire("GPU-aaa"))
	tokens.Release("GPU-aaa")
}

func TestRunReleasesTokenAfterTimeout(t *testing.T) {
	tokens := device.NewTokenSet()
	r := NewRunner(tokens, 10*time.Millisecond, 2048, 1, 3)

	_, err := r.Run(context.Background(), model.BenchmarkMatrixMultiply, benchDevice(), 0)
	require.Error(t, err)

	assert.True(t, tokens.TryAcquire("GPU-aaa"))
	tokens.Release("GPU-aaa")
}

func TestRunUnknownKind(t *testing.T) {
	tokens := device.NewTokenSet()
	r := NewRunner(tokens, time.Second, 64, 1, 3)

	result, err := r.Run(context.Background(), model.BenchmarkKind("warp_drive"), benchDevice(), 0)
	require.Error(t, err)
	assert.Equal(t, model.OutcomeError, result.Outcome)
}
