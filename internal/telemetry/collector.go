// Package telemetry scrapes the full field set of a single device into a
// Reading. Field failures are isolated: an unsupported or transiently failing
// field becomes a nil pointer plus an entry in UnavailableFields, never an
// error for the scrape. Only a lost device or an expired query budget fails
// the whole scrape.
package telemetry

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

// Reading is one device's scrape result. ThrottleMask carries the raw
// bitfield for the evaluator to decode; nil means it could not be read.
type Reading struct {
	Device            model.Device
	Sample            model.Sample
	ThrottleMask      *uint64
	ECC               model.ECCState
	UnavailableFields []string
}

// Collector scrapes devices under the per-device exclusivity token, bounding
// each scrape by the query timeout.
type Collector struct {
	api     device.API
	tokens  *device.TokenSet
	timeout time.Duration
}

// NewCollector creates a Collector.
func NewCollector(api device.API, tokens *device.TokenSet, timeout time.Duration) *Collector {
	return &Collector{api: api, tokens: tokens, timeout: timeout}
}

// Collect scrapes one device. It waits for the device's token up to the query
// timeout, so a benchmark in flight delays rather than fails the scrape; only
// exhausting the whole budget while waiting or scraping yields
// ErrDeviceUnreachable.
func (c *Collector) Collect(ctx context.Context, dev model.Device) (Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.tokens.Acquire(ctx, dev.UUID); err != nil {
		return Reading{}, fmt.Errorf("%w: %s: token wait: %v", monerrors.ErrDeviceUnreachable, dev.UUID, err)
	}

	type outcome struct {
		reading Reading
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		// The token is released here, not in Collect: when a hung driver
		// call outlives the budget the caller moves on, and the token
		// stays held until the call actually returns.
		defer c.tokens.Release(dev.UUID)
		r, err := c.scrape(dev)
		done <- outcome{reading: r, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return Reading{}, fmt.Errorf("%w: %s: %v", monerrors.ErrDeviceUnreachable, dev.UUID, out.err)
		}
		return out.reading, nil
	case <-ctx.Done():
		return Reading{}, fmt.Errorf("%w: %s: scrape exceeded %s", monerrors.ErrDeviceUnreachable, dev.UUID, c.timeout)
	}
}

// fieldSet accumulates per-field outcomes during one scrape.
type fieldSet struct {
	uuid        string
	unavailable []string
	lostErr     error
}

// ok reports whether the field's value is usable. Unsupported and transient
// failures are degraded to unavailable; a lost device aborts the scrape.
func (s *fieldSet) ok(field string, err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, device.ErrLost) {
		if s.lostErr == nil {
			s.lostErr = err
		}
		return false
	}
	s.unavailable = append(s.unavailable, field)
	if !errors.Is(err, device.ErrUnsupported) {
		slog.Debug("field query failed", "device_uuid", s.uuid, "field", field, "error", err)
	}
	return false
}

func (c *Collector) scrape(dev model.Device) (Reading, error) {
	i := dev.DriverIndex
	r := Reading{Device: dev}
	fs := &fieldSet{uuid: dev.UUID}

	if v, err := c.api.Temperature(i, device.SensorCore); fs.ok("temperature_gpu", err) {
		r.Sample.TemperatureGPUCelsius = model.Float64(v)
	}
	if v, err := c.api.Temperature(i, device.SensorMemory); fs.ok("temperature_memory", err) {
		r.Sample.TemperatureMemoryCelsius = model.Float64(v)
	}
	if v, err := c.api.PowerUsage(i); fs.ok("power_draw", err) {
		r.Sample.PowerDrawWatts = model.Float64(v)
	}
	if v, err := c.api.PowerLimit(i); fs.ok("power_limit", err) {
		r.Sample.PowerLimitWatts = model.Float64(v)
	}
	if v, err := c.api.FanSpeed(i); fs.ok("fan_speed", err) {
		r.Sample.FanSpeedPercent = model.Float64(v)
	}

	if mem, err := c.api.MemoryInfo(i); fs.ok("memory_info", err) {
		r.Sample.MemoryUsedBytes = model.Uint64(mem.Used)
		r.Sample.MemoryFreeBytes = model.Uint64(mem.Free)
		r.Sample.MemoryTotalBytes = model.Uint64(mem.Total)
		if mem.HasReserved {
			r.Sample.MemoryReservedBytes = model.Uint64(mem.Reserved)
		}
	}

	if util, err := c.api.UtilizationRates(i); fs.ok("utilization", err) {
		r.Sample.GPUUtilizationPercent = model.Float64(util.GPU)
		r.Sample.MemoryUtilizationPercent = model.Float64(util.Memory)
	}
	// Fall back to occupancy-derived memory utilization when the driver
	// does not report controller activity.
	if r.Sample.MemoryUtilizationPercent == nil &&
		r.Sample.MemoryUsedBytes != nil && r.Sample.MemoryTotalBytes != nil &&
		*r.Sample.MemoryTotalBytes > 0 {
		pct := float64(*r.Sample.MemoryUsedBytes) / float64(*r.Sample.MemoryTotalBytes) * 100
		r.Sample.MemoryUtilizationPercent = model.Float64(pct)
	}

	if v, err := c.api.EncoderUtilization(i); fs.ok("encoder_utilization", err) {
		r.Sample.EncoderUtilizationPercent = model.Float64(v)
	}
	if v, err := c.api.DecoderUtilization(i); fs.ok("decoder_utilization", err) {
		r.Sample.DecoderUtilizationPercent = model.Float64(v)
	}

	if v, err := c.api.ClockInfo(i, device.ClockGraphics); fs.ok("clock_graphics", err) {
		r.Sample.ClockGraphicsMHz = model.Float64(v)
	}
	if v, err := c.api.ClockInfo(i, device.ClockMemory); fs.ok("clock_memory", err) {
		r.Sample.ClockMemoryMHz = model.Float64(v)
	}
	if v, err := c.api.ClockInfo(i, device.ClockSM); fs.ok("clock_sm", err) {
		r.Sample.ClockSMMHz = model.Float64(v)
	}
	if v, err := c.api.MaxClockInfo(i, device.ClockGraphics); fs.ok("max_clock_graphics", err) {
		r.Sample.MaxClockGraphicsMHz = model.Float64(v)
	}
	if v, err := c.api.MaxClockInfo(i, device.ClockMemory); fs.ok("max_clock_memory", err) {
		r.Sample.MaxClockMemoryMHz = model.Float64(v)
	}
	if v, err := c.api.MaxClockInfo(i, device.ClockSM); fs.ok("max_clock_sm", err) {
		r.Sample.MaxClockSMMHz = model.Float64(v)
	}

	if link, err := c.api.PCIeLink(i); fs.ok("pcie_link", err) {
		r.Sample.PCIeLinkGen = model.Int(link.Gen)
		r.Sample.PCIeLinkWidth = model.Int(link.Width)
		r.Sample.PCIeMaxLinkGen = model.Int(link.MaxGen)
		r.Sample.PCIeMaxLinkWidth = model.Int(link.MaxWidth)
	}

	if v, err := c.api.PerformanceState(i); fs.ok("performance_state", err) {
		r.Sample.PerformanceState = model.Int(v)
	}
	if v, err := c.api.ProcessCount(i); fs.ok("process_count", err) {
		r.Sample.ProcessCount = model.Int(v)
	}

	if mask, err := c.api.ThrottleReasons(i); fs.ok("throttle_reasons", err) {
		r.ThrottleMask = model.Uint64(mask)
	}

	if ecc, err := c.api.ECCCounts(i); fs.ok("ecc_counts", err) {
		r.ECC.VolatileSingleBit = model.Uint64(ecc.VolatileSingleBit)
		r.ECC.VolatileDoubleBit = model.Uint64(ecc.VolatileDoubleBit)
		r.ECC.AggregateSingleBit = model.Uint64(ecc.AggregateSingleBit)
		r.ECC.AggregateDoubleBit = model.Uint64(ecc.AggregateDoubleBit)
		r.ECC.RetiredPagesSingleBit = model.Uint64(ecc.RetiredPagesSingleBit)
		r.ECC.RetiredPagesDoubleBit = model.Uint64(ecc.RetiredPagesDoubleBit)
	}
	if v, err := c.api.PCIeReplayCounter(i); fs.ok("pcie_replay_counter", err) {
		r.ECC.PCIeReplayCount = model.Uint64(v)
	}

	if fs.lostErr != nil {
		return Reading{}, fs.lostErr
	}
	r.UnavailableFields = fs.unavailable
	return r, nil
}
