package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/gpusentry/gpusentry/pkg/model"
)

func printDeviceTable(w io.Writer, snap *model.Snapshot) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"GPU", "Name", "Temp", "Power", "Memory", "Util", "Verdict", "Conditions"})
	table.SetAutoWrapText(false)

	for _, d := range snap.Devices {
		table.Append([]string{
			strconv.Itoa(d.Device.Index),
			d.Device.Name,
			cellTemp(d.Sample.TemperatureGPUCelsius),
			cellPower(d.Sample.PowerDrawWatts, d.Sample.PowerLimitWatts),
			cellMemory(d.Sample.MemoryUsedBytes, d.Sample.MemoryTotalBytes),
			cellPercent(d.Sample.GPUUtilizationPercent),
			strings.ToUpper(d.Verdict.String()),
			strings.Join(d.Conditions, "; "),
		})
	}
	table.Render()
}

func printBenchmarkTable(w io.Writer, results []model.BenchmarkResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Kind", "GPU", "Outcome", "Duration", "GFLOPS", "GB/s", "Iterations"})

	for _, r := range results {
		table.Append([]string{
			string(r.Kind),
			strconv.Itoa(r.DeviceIndex),
			string(r.Outcome),
			r.Duration.Round(time.Millisecond).String(),
			cellFloat(r.GFLOPS),
			cellFloat(r.BandwidthGBps),
			strconv.Itoa(r.Iterations),
		})
	}
	table.Render()
}

func cellTemp(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0fC", *v)
}

func cellPower(draw, limit *float64) string {
	if draw == nil {
		return "-"
	}
	if limit == nil {
		return fmt.Sprintf("%.0fW", *draw)
	}
	return fmt.Sprintf("%.0fW / %.0fW", *draw, *limit)
}

func cellMemory(used, total *uint64) string {
	if used == nil || total == nil {
		return "-"
	}
	const mib = 1024 * 1024
	return fmt.Sprintf("%dMiB / %dMiB", *used/mib, *total/mib)
}

func cellPercent(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", *v)
}

func cellFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
