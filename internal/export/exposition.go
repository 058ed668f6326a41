package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/gpusentry/gpusentry/pkg/model"
)

// ExpositionContentType is the Content-Type for the text exposition format.
const ExpositionContentType = "text/plain; version=0.0.4; charset=utf-8"

const namespace = "gpusentry"

// deviceLabels identify a device on every per-device series.
var deviceLabels = []string{"gpu", "uuid", "name"}

func deviceDesc(name, help string, extra ...string) *prometheus.Desc {
	return prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "gpu", name),
		help,
		append(append([]string{}, deviceLabels...), extra...),
		nil,
	)
}

var (
	descTemperature       = deviceDesc("temperature_celsius", "Core temperature in Celsius.")
	descMemoryTemperature = deviceDesc("memory_temperature_celsius", "Memory junction temperature in Celsius.")
	descPowerDraw         = deviceDesc("power_draw_watts", "Instantaneous board power draw in Watts.")
	descPowerLimit        = deviceDesc("power_limit_watts", "Enforced board power limit in Watts.")
	descMemoryUsed        = deviceDesc("memory_used_bytes", "Device memory in use in bytes.")
	descMemoryFree        = deviceDesc("memory_free_bytes", "Device memory free in bytes.")
	descMemoryTotal       = deviceDesc("memory_total_bytes", "Device memory capacity in bytes.")
	descMemoryReserved    = deviceDesc("memory_reserved_bytes", "Device memory reserved by the driver in bytes.")
	descUtilization       = deviceDesc("utilization_percent", "Compute utilization in percent.")
	descMemUtilization    = deviceDesc("memory_utilization_percent", "Memory utilization in percent.")
	descEncUtilization    = deviceDesc("encoder_utilization_percent", "Encoder utilization in percent.")
	descDecUtilization    = deviceDesc("decoder_utilization_percent", "Decoder utilization in percent.")
	descFanSpeed          = deviceDesc("fan_speed_percent", "Fan speed in percent of maximum.")
	descClock             = deviceDesc("clock_mhz", "Current clock frequency in MHz.", "domain")
	descMaxClock          = deviceDesc("max_clock_mhz", "Maximum clock frequency in MHz.", "domain")
	descPCIeLinkGen       = deviceDesc("pcie_link_gen", "Negotiated PCIe link generation.")
	descPCIeLinkWidth     = deviceDesc("pcie_link_width", "Negotiated PCIe link width in lanes.")
	descPCIeMaxLinkGen    = deviceDesc("pcie_max_link_gen", "Maximum supported PCIe link generation.")
	descPCIeMaxLinkWidth  = deviceDesc("pcie_max_link_width", "Maximum supported PCIe link width in lanes.")
	descPerfState         = deviceDesc("performance_state", "Performance state ordinal, 0 is maximum performance.")
	descProcessCount      = deviceDesc("process_count", "Number of compute processes on the device.")
	descThrottle          = deviceDesc("throttle_active", "Whether the named throttle reason is active.", "reason")
	descECCErrors         = deviceDesc("ecc_errors_total", "Cumulative memory error count by counter type.", "counter")
	descPCIeReplay        = deviceDesc("pcie_replay_total", "Cumulative PCIe replay count.")
	descHealth            = deviceDesc("health_status", "Device verdict ordinal: 0 healthy, 1 warning, 2 degraded, 3 critical.")
	descUnreachable       = deviceDesc("unreachable", "Whether the device was unreachable this scrape.")

	descSystemHealth = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "system_health_status"),
		"System verdict ordinal: worst verdict over all devices.",
		nil, nil,
	)
	descDeviceCount = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "device_count"),
		"Number of devices in the active set.",
		nil, nil,
	)
	descSnapshotTimestamp = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "snapshot_timestamp_seconds"),
		"Unix timestamp of the rendered snapshot.",
		nil, nil,
	)
	descPeerAccess = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "peer_access"),
		"Whether the device pair supports direct peer memory access.",
		[]string{"uuid_a", "uuid_b"}, nil,
	)

	descBenchGFLOPS = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "benchmark", "gflops"),
		"Compute throughput from the latest benchmark run.",
		append(append([]string{}, deviceLabels...), "kind"), nil,
	)
	descBenchBandwidth = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "benchmark", "bandwidth_gbps"),
		"Memory throughput from the latest benchmark run.",
		append(append([]string{}, deviceLabels...), "kind"), nil,
	)
	descBenchDuration = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "benchmark", "duration_seconds"),
		"Wall-clock duration of the latest benchmark run.",
		append(append([]string{}, deviceLabels...), "kind"), nil,
	)
	descBenchSuccess = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "benchmark", "success"),
		"Whether the latest benchmark run of this kind completed with a measurement.",
		append(append([]string{}, deviceLabels...), "kind"), nil,
	)
)

// snapshotCollector renders one immutable snapshot as const metrics. A fresh
// registry wraps it per render, so rendering the same snapshot twice yields
// byte-identical output.
type snapshotCollector struct {
	snap *model.Snapshot
}

func (c *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	// Per-snapshot series vary with the device set; describe by collect.
	prometheus.DescribeByCollect(c, ch)
}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(descSystemHealth, prometheus.GaugeValue, float64(c.snap.SystemVerdict))
	ch <- prometheus.MustNewConstMetric(descDeviceCount, prometheus.GaugeValue, float64(len(c.snap.Devices)))
	ch <- prometheus.MustNewConstMetric(descSnapshotTimestamp, prometheus.GaugeValue, float64(c.snap.Timestamp.Unix()))

	for _, d := range c.snap.Devices {
		c.collectDevice(ch, d)
	}
	for _, edge := range c.snap.Topology {
		ch <- prometheus.MustNewConstMetric(descPeerAccess, prometheus.GaugeValue,
			boolValue(edge.PeerAccess), edge.UUIDA, edge.UUIDB)
	}
	for _, b := range c.snap.Benchmarks {
		c.collectBenchmark(ch, b)
	}
}

func (c *snapshotCollector) collectDevice(ch chan<- prometheus.Metric, d model.DeviceStatus) {
	labels := []string{strconv.Itoa(d.Device.Index), d.Device.UUID, d.Device.Name}
	gauge := func(desc *prometheus.Desc, v *float64, extra ...string) {
		if v == nil {
			return
		}
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, *v, append(labels, extra...)...)
	}
	gaugeU := func(desc *prometheus.Desc, v *uint64, extra ...string) {
		if v == nil {
			return
		}
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(*v), append(labels, extra...)...)
	}
	counterU := func(desc *prometheus.Desc, v *uint64, extra ...string) {
		if v == nil {
			return
		}
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(*v), append(labels, extra...)...)
	}
	gaugeI := func(desc *prometheus.Desc, v *int) {
		if v == nil {
			return
		}
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(*v), labels...)
	}

	ch <- prometheus.MustNewConstMetric(descHealth, prometheus.GaugeValue, float64(d.Verdict), labels...)
	ch <- prometheus.MustNewConstMetric(descUnreachable, prometheus.GaugeValue, boolValue(d.Unreachable), labels...)

	s := d.Sample
	gauge(descTemperature, s.TemperatureGPUCelsius)
	gauge(descMemoryTemperature, s.TemperatureMemoryCelsius)
	gauge(descPowerDraw, s.PowerDrawWatts)
	gauge(descPowerLimit, s.PowerLimitWatts)
	gaugeU(descMemoryUsed, s.MemoryUsedBytes)
	gaugeU(descMemoryFree, s.MemoryFreeBytes)
	gaugeU(descMemoryTotal, s.MemoryTotalBytes)
	gaugeU(descMemoryReserved, s.MemoryReservedBytes)
	gauge(descUtilization, s.GPUUtilizationPercent)
	gauge(descMemUtilization, s.MemoryUtilizationPercent)
	gauge(descEncUtilization, s.EncoderUtilizationPercent)
	gauge(descDecUtilization, s.DecoderUtilizationPercent)
	gauge(descFanSpeed, s.FanSpeedPercent)
	gauge(descClock, s.ClockGraphicsMHz, "graphics")
	gauge(descClock, s.ClockMemoryMHz, "memory")
	gauge(descClock, s.ClockSMMHz, "sm")
	gauge(descMaxClock, s.MaxClockGraphicsMHz, "graphics")
	gauge(descMaxClock, s.MaxClockMemoryMHz, "memory")
	gauge(descMaxClock, s.MaxClockSMMHz, "sm")
	gaugeI(descPCIeLinkGen, s.PCIeLinkGen)
	gaugeI(descPCIeLinkWidth, s.PCIeLinkWidth)
	gaugeI(descPCIeMaxLinkGen, s.PCIeMaxLinkGen)
	gaugeI(descPCIeMaxLinkWidth, s.PCIeMaxLinkWidth)
	gaugeI(descPerfState, s.PerformanceState)
	gaugeI(descProcessCount, s.ProcessCount)

	if d.Throttle.Available {
		for _, reason := range []model.ThrottleReason{
			model.ThrottleIdle, model.ThrottleAppClocks, model.ThrottleSWPowerCap,
			model.ThrottleHWSlowdown, model.ThrottleSyncBoost, model.ThrottleSWThermal,
			model.ThrottleHWThermal, model.ThrottleHWPowerBrake,
		} {
			ch <- prometheus.MustNewConstMetric(descThrottle, prometheus.GaugeValue,
				boolValue(d.Throttle.Has(reason)), append(labels, string(reason))...)
		}
	}

	counterU(descECCErrors, d.ECC.VolatileSingleBit, "volatile_single_bit")
	counterU(descECCErrors, d.ECC.VolatileDoubleBit, "volatile_double_bit")
	counterU(descECCErrors, d.ECC.AggregateSingleBit, "aggregate_single_bit")
	counterU(descECCErrors, d.ECC.AggregateDoubleBit, "aggregate_double_bit")
	counterU(descECCErrors, d.ECC.RetiredPagesSingleBit, "retired_pages_single_bit")
	counterU(descECCErrors, d.ECC.RetiredPagesDoubleBit, "retired_pages_double_bit")
	counterU(descPCIeReplay, d.ECC.PCIeReplayCount)
}

func (c *snapshotCollector) collectBenchmark(ch chan<- prometheus.Metric, b model.BenchmarkResult) {
	name := ""
	if d, ok := c.snap.DeviceByUUID(b.DeviceUUID); ok {
		name = d.Device.Name
	}
	labels := []string{strconv.Itoa(b.DeviceIndex), b.DeviceUUID, name, string(b.Kind)}

	ch <- prometheus.MustNewConstMetric(descBenchSuccess, prometheus.GaugeValue, boolValue(b.Succeeded()), labels...)
	ch <- prometheus.MustNewConstMetric(descBenchDuration, prometheus.GaugeValue, b.Duration.Seconds(), labels...)
	if b.GFLOPS != nil {
		ch <- prometheus.MustNewConstMetric(descBenchGFLOPS, prometheus.GaugeValue, *b.GFLOPS, labels...)
	}
	if b.BandwidthGBps != nil {
		ch <- prometheus.MustNewConstMetric(descBenchBandwidth, prometheus.GaugeValue, *b.BandwidthGBps, labels...)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// RenderExposition writes the snapshot in the text exposition format. The
// registry sorts families and series, so rendering the same snapshot twice
// produces byte-identical output.
func RenderExposition(w io.Writer, snap *model.Snapshot) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(&snapshotCollector{snap: snap}); err != nil {
		return fmt.Errorf("register snapshot collector: %w", err)
	}
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather snapshot metrics: %w", err)
	}
	return encodeFamilies(w, families)
}

func encodeFamilies(w io.Writer, families []*dto.MetricFamily) error {
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encode family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
