package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for monitor self-observation. These
// describe the monitor itself, not the devices; device telemetry is rendered
// from snapshots by the export package. A custom registry keeps them off the
// global default.
type Metrics struct {
	Registry *prometheus.Registry

	// Cycle metrics
	CycleDuration prometheus.Histogram
	CyclesTotal   *prometheus.CounterVec

	// Device metrics
	DevicesPresent     prometheus.Gauge
	DeviceScrapesTotal *prometheus.CounterVec
	ScrapeDuration     prometheus.Histogram

	// Benchmark metrics
	BenchmarkRunsTotal    *prometheus.CounterVec
	BenchmarkRejectsTotal prometheus.Counter

	// Export metrics
	RenderDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance with all metrics registered on a
// custom registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpusentry_cycle_duration_seconds",
			Help:    "Duration of collection cycles in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpusentry_cycles_total",
			Help: "Total number of collection cycles by outcome.",
		}, []string{"status"}),

		DevicesPresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpusentry_devices_present",
			Help: "Number of devices in the active set.",
		}),
		DeviceScrapesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpusentry_device_scrapes_total",
			Help: "Total number of per-device scrapes by outcome.",
		}, []string{"status"}),
		ScrapeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpusentry_scrape_duration_seconds",
			Help:    "Duration of per-device scrapes in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		BenchmarkRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpusentry_benchmark_runs_total",
			Help: "Total number of benchmark runs by kind and outcome.",
		}, []string{"kind", "outcome"}),
		BenchmarkRejectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpusentry_benchmark_rejects_total",
			Help: "Total number of benchmark requests rejected because the device was busy.",
		}),

		RenderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gpusentry_render_duration_seconds",
			Help:    "Duration of snapshot rendering in seconds by format.",
			Buckets: prometheus.DefBuckets,
		}, []string{"format"}),
	}

	// Register all metrics with the custom registry.
	reg.MustRegister(
		m.CycleDuration,
		m.CyclesTotal,
		m.DevicesPresent,
		m.DeviceScrapesTotal,
		m.ScrapeDuration,
		m.BenchmarkRunsTotal,
		m.BenchmarkRejectsTotal,
		m.RenderDuration,
	)

	return m
}
