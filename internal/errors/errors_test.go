package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests control error expiry.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func deviceError(uuid string) MonitorError {
	return MonitorError{
		Code:       CodeDeviceUnreachable,
		Message:    "device unreachable",
		Component:  "collector",
		DeviceUUID: uuid,
	}
}

func TestReportAndActiveErrors(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	ec := NewErrorCollector(clock)

	ec.Report(deviceError("GPU-aaa"))
	ec.Report(deviceError("GPU-bbb"))

	active := ec.ActiveErrors()
	assert.Len(t, active, 2)
}

func TestReportSameKeyRefreshes(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	ec := NewErrorCollector(clock)

	ec.Report(deviceError("GPU-aaa"))
	clock.advance(4 * time.Minute)
	ec.Report(deviceError("GPU-aaa"))
	clock.advance(4 * time.Minute)

	// Refreshed within TTL, so still active eight minutes after the first
	// report.
	assert.Len(t, ec.ActiveErrors(), 1)
}

func TestErrorsExpireAfterTTL(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	ec := NewErrorCollector(clock)

	ec.Report(deviceError("GPU-aaa"))
	clock.advance(6 * time.Minute)

	assert.Empty(t, ec.ActiveErrors())
}

func TestDistinctDevicesAreDistinctKeys(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	ec := NewErrorCollector(clock)

	ec.Report(deviceError("GPU-aaa"))
	ec.Report(deviceError("GPU-aaa"))
	ec.Report(deviceError("GPU-bbb"))

	assert.Len(t, ec.ActiveErrors(), 2)
}

func TestClear(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	ec := NewErrorCollector(clock)

	ec.Report(deviceError("GPU-aaa"))
	ec.Clear()
	assert.Empty(t, ec.ActiveErrors())
}

func TestMonitorErrorUnwrap(t *testing.T) {
	wrapped := &MonitorError{
		Code:    CodeBenchmarkTimeout,
		Message: "benchmark exceeded budget",
		Err:     ErrBenchmarkTimeout,
	}
	assert.True(t, stderrors.Is(wrapped, ErrBenchmarkTimeout))
	assert.Equal(t, "benchmark exceeded budget", wrapped.Error())
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("%w: GPU-aaa: token wait", ErrDeviceUnreachable)
	require.True(t, stderrors.Is(err, ErrDeviceUnreachable))
	assert.False(t, stderrors.Is(err, ErrDeviceBusy))
}
