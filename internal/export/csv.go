package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gpusentry/gpusentry/pkg/model"
)

// csvHeader is the fixed column set of the tabular format. Column order is
// part of the format contract; append new columns at the end only.
var csvHeader = []string{
	"timestamp",
	"gpu_index",
	"uuid",
	"name",
	"verdict",
	"unreachable",
	"temperature_gpu_celsius",
	"temperature_memory_celsius",
	"power_draw_watts",
	"power_limit_watts",
	"memory_used_bytes",
	"memory_free_bytes",
	"memory_total_bytes",
	"gpu_utilization_percent",
	"memory_utilization_percent",
	"fan_speed_percent",
	"clock_graphics_mhz",
	"clock_memory_mhz",
	"clock_sm_mhz",
	"performance_state",
	"process_count",
	"throttle_reasons",
	"ecc_volatile_double_bit",
	"ecc_aggregate_double_bit",
	"pcie_replay_count",
	"conditions",
}

// RenderCSV writes one row per device. Unavailable fields render as empty
// cells, never as zero.
func RenderCSV(w io.Writer, snap *model.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	ts := snap.Timestamp.UTC().Format(time.RFC3339)
	for _, d := range snap.Devices {
		row := []string{
			ts,
			strconv.Itoa(d.Device.Index),
			d.Device.UUID,
			d.Device.Name,
			d.Verdict.String(),
			strconv.FormatBool(d.Unreachable),
			csvFloat(d.Sample.TemperatureGPUCelsius),
			csvFloat(d.Sample.TemperatureMemoryCelsius),
			csvFloat(d.Sample.PowerDrawWatts),
			csvFloat(d.Sample.PowerLimitWatts),
			csvUint(d.Sample.MemoryUsedBytes),
			csvUint(d.Sample.MemoryFreeBytes),
			csvUint(d.Sample.MemoryTotalBytes),
			csvFloat(d.Sample.GPUUtilizationPercent),
			csvFloat(d.Sample.MemoryUtilizationPercent),
			csvFloat(d.Sample.FanSpeedPercent),
			csvFloat(d.Sample.ClockGraphicsMHz),
			csvFloat(d.Sample.ClockMemoryMHz),
			csvFloat(d.Sample.ClockSMMHz),
			csvInt(d.Sample.PerformanceState),
			csvInt(d.Sample.ProcessCount),
			csvReasons(d.Throttle),
			csvUint(d.ECC.VolatileDoubleBit),
			csvUint(d.ECC.AggregateDoubleBit),
			csvUint(d.ECC.PCIeReplayCount),
			strings.Join(d.Conditions, "; "),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func csvUint(v *uint64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(*v, 10)
}

func csvInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func csvReasons(t model.ThrottleState) string {
	if !t.Available {
		return ""
	}
	reasons := make([]string, len(t.Reasons))
	for i, r := range t.Reasons {
		reasons[i] = string(r)
	}
	return strings.Join(reasons, ";")
}
