package telemetry

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

func fullFakeDevice(uuid string) *device.FakeDevice {
	return &device.FakeDevice{
		Identity: device.Identity{
			UUID:             uuid,
			Name:             "Test Accelerator",
			PCIBusID:         "0000:3b:00.0",
			MemoryTotalBytes: 8 << 30,
		},
		Temperature:       model.Float64(55),
		MemoryTemperature: model.Float64(62),
		Fan:               model.Float64(40),
		Power:             model.Float64(150),
		PowerCap:          model.Float64(250),
		Memory: &device.MemoryInfo{
			Used: 2 << 30, Free: 6 << 30, Total: 8 << 30,
			Reserved: 256 << 20, HasReserved: true,
		},
		Utilization: &device.Utilization{GPU: 75, Memory: 30},
		EncoderUtil: model.Float64(5),
		DecoderUtil: model.Float64(3),
		Clocks: map[device.ClockDomain]float64{
			device.ClockGraphics: 1500, device.ClockMemory: 7000, device.ClockSM: 1400,
		},
		MaxClocks: map[device.ClockDomain]float64{
			device.ClockGraphics: 1800, device.ClockMemory: 8000, device.ClockSM: 1700,
		},
		Link:         &device.PCIeLink{Gen: 4, Width: 16, MaxGen: 4, MaxWidth: 16},
		PerfState:    model.Int(2),
		Processes:    model.Int(3),
		ThrottleMask: model.Uint64(0x1),
		ECC: &device.ECCCounts{
			VolatileSingleBit: 1, AggregateSingleBit: 12, AggregateDoubleBit: 2,
		},
		PCIeReplays: model.Uint64(7),
	}
}

func testDevice(uuid string, driverIndex int) model.Device {
	return model.Device{DriverIndex: driverIndex, UUID: uuid, Name: "Test Accelerator"}
}

func TestCollectFullSample(t *testing.T) {
	api := device.NewFakeAPI(fullFakeDevice("GPU-aaa"))
	c := NewCollector(api, device.NewTokenSet(), time.Second)

	r, err := c.Collect(context.Background(), testDevice("GPU-aaa", 0))
	require.NoError(t, err)

	require.NotNil(t, r.Sample.TemperatureGPUCelsius)
	assert.Equal(t, 55.0, *r.Sample.TemperatureGPUCelsius)
	require.NotNil(t, r.Sample.PowerDrawWatts)
	assert.Equal(t, 150.0, *r.Sample.PowerDrawWatts)
	require.NotNil(t, r.Sample.MemoryUsedBytes)
	assert.Equal(t, uint64(2<<30), *r.Sample.MemoryUsedBytes)
	require.NotNil(t, r.Sample.MemoryReservedBytes)
	assert.Equal(t, uint64(256<<20), *r.Sample.MemoryReservedBytes)
	require.NotNil(t, r.Sample.MemoryUtilizationPercent)
	assert.Equal(t, 30.0, *r.Sample.MemoryUtilizationPercent)
	require.NotNil(t, r.Sample.ClockSMMHz)
	assert.Equal(t, 1400.0, *r.Sample.ClockSMMHz)
	require.NotNil(t, r.Sample.PCIeLinkWidth)
	assert.Equal(t, 16, *r.Sample.PCIeLinkWidth)

	require.NotNil(t, r.ThrottleMask)
	assert.Equal(t, uint64(0x1), *r.ThrottleMask)
	require.NotNil(t, r.ECC.AggregateDoubleBit)
	assert.Equal(t, uint64(2), *r.ECC.AggregateDoubleBit)
	require.NotNil(t, r.ECC.PCIeReplayCount)
	assert.Equal(t, uint64(7), *r.ECC.PCIeReplayCount)

	assert.Empty(t, r.UnavailableFields)
}

func TestCollectUnsupportedFieldDegrades(t *testing.T) {
	fd := fullFakeDevice("GPU-aaa")
	fd.Fan = nil
	fd.MemoryTemperature = nil
	api := device.NewFakeAPI(fd)
	c := NewCollector(api, device.NewTokenSet(), time.Second)

	r, err := c.Collect(context.Background(), testDevice("GPU-aaa", 0))
	require.NoError(t, err)

	assert.Nil(t, r.Sample.FanSpeedPercent)
	assert.Nil(t, r.Sample.TemperatureMemoryCelsius)
	assert.Contains(t, r.UnavailableFields, "fan_speed")
	assert.Contains(t, r.UnavailableFields, "temperature_memory")

	// The rest of the sample is unaffected.
	require.NotNil(t, r.Sample.TemperatureGPUCelsius)
	assert.Equal(t, 55.0, *r.Sample.TemperatureGPUCelsius)
}

func TestCollectMemoryUtilizationFallback(t *testing.T) {
	fd := fullFakeDevice("GPU-aaa")
	fd.Utilization = nil
	api := device.NewFakeAPI(fd)
	c := NewCollector(api, device.NewTokenSet(), time.Second)

	r, err := c.Collect(context.Background(), testDevice("GPU-aaa", 0))
	require.NoError(t, err)

	assert.Nil(t, r.Sample.GPUUtilizationPercent)
	require.NotNil(t, r.Sample.MemoryUtilizationPercent)
	assert.InDelta(t, 25.0, *r.Sample.MemoryUtilizationPercent, 0.01)
}

func TestCollectLostDevice(t *testing.T) {
	fd := fullFakeDevice("GPU-aaa")
	fd.Lost = true
	api := device.NewFakeAPI(fd)
	c := NewCollector(api, device.NewTokenSet(), time.Second)

	_, err := c.Collect(context.Background(), testDevice("GPU-aaa", 0))
	assert.ErrorIs(t, err, monerrors.ErrDeviceUnreachable)
}

func TestCollectTimeoutReleasesTokenEventually(t *testing.T) {
	fd := fullFakeDevice("GPU-aaa")
	fd.Latency = 20 * time.Millisecond // per field query, well past the budget
	api := device.NewFakeAPI(fd)
	tokens := device.NewTokenSet()
	c := NewCollector(api, tokens, 50*time.Millisecond)

	_, err := c.Collect(context.Background(), testDevice("GPU-aaa", 0))
	assert.ErrorIs(t, err, monerrors.ErrDeviceUnreachable)

	// The scrape goroutine still holds the token until the hung queries
	// return, then releases it.
	require.Eventually(t, func() bool {
		if !tokens.TryAcquire("GPU-aaa") {
			return false
		}
		tokens.Release("GPU-aaa")
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCollectWaitsForHeldToken(t *testing.T) {
	api := device.NewFakeAPI(fullFakeDevice("GPU-aaa"))
	tokens := device.NewTokenSet()
	c := NewCollector(api, tokens, time.Second)

	require.True(t, tokens.TryAcquire("GPU-aaa"))
	go func() {
		time.Sleep(50 * time.Millisecond)
		tokens.Release("GPU-aaa")
	}()

	r, err := c.Collect(context.Background(), testDevice("GPU-aaa", 0))
	require.NoError(t, err)
	assert.NotNil(t, r.Sample.TemperatureGPUCelsius)
}

func TestCollectTokenWaitExhaustsBudget(t *testing.T) {
	api := device.NewFakeAPI(fullFakeDevice("GPU-aaa"))
	tokens := device.NewTokenSet()
	c := NewCollector(api, tokens, 30*time.Millisecond)

	require.True(t, tokens.TryAcquire("GPU-aaa"))
	defer tokens.Release("GPU-aaa")

	_, err := c.Collect(context.Background(), testDevice("GPU-aaa", 0))
	assert.ErrorIs(t, err, monerrors.ErrDeviceUnreachable)
}
