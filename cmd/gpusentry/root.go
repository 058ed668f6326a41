package main

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gpusentry/gpusentry/internal/agent"
	"github.com/gpusentry/gpusentry/internal/bench"
	"github.com/gpusentry/gpusentry/internal/cache"
	"github.com/gpusentry/gpusentry/internal/config"
	"github.com/gpusentry/gpusentry/internal/device"
	"github.com/gpusentry/gpusentry/internal/errors"
	"github.com/gpusentry/gpusentry/internal/health"
	"github.com/gpusentry/gpusentry/internal/observability"
	"github.com/gpusentry/gpusentry/internal/telemetry"
)

// errUnhealthy signals that the health check tripped the fail threshold. The
// process exits with a distinct code so scripts can tell "unhealthy" from
// "broken".
var errUnhealthy = stderrors.New("system verdict at or above fail threshold")

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:           "gpusentry",
	Short:         "GPU health and telemetry monitor",
	Long:          "gpusentry collects device telemetry, derives health verdicts, runs on-demand benchmarks, and exports snapshots for scrapers and tooling.\nAll configuration comes from GPUSENTRY_* environment variables.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		cfg = config.Load()
		if err := cfg.Validate(); err != nil {
			return err
		}
		setupLogging(cfg.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, healthCmd, monitorCmd, benchmarkCmd, exportCmd)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// monitorRuntime wires the full collection stack over the live hardware
// capability. Every command builds one, uses it, and closes it.
type monitorRuntime struct {
	api     device.API
	tokens  *device.TokenSet
	enum    *device.Enumerator
	cache   *cache.ScrapeCache
	metrics *observability.Metrics
	errs    *errors.ErrorCollector
	agent   *agent.Agent
	runner  *bench.Runner
}

func newRuntime() (*monitorRuntime, error) {
	api := device.NewNVML()
	if err := api.Init(); err != nil {
		return nil, fmt.Errorf("initialize hardware capability: %w", err)
	}

	tokens := device.NewTokenSet()
	metrics := observability.NewMetrics()
	errCollector := errors.NewErrorCollector(errors.RealClock{})
	snapCache := cache.NewScrapeCache()

	enumerator := device.NewEnumerator(api, cfg.DeviceAllowList)
	collector := telemetry.NewCollector(api, tokens, cfg.DeviceQueryTimeout)
	evaluator := health.NewEvaluator(health.Thresholds{
		TemperatureWarnCelsius:     cfg.TemperatureWarnCelsius,
		TemperatureCritCelsius:     cfg.TemperatureCritCelsius,
		TemperatureShutdownCelsius: cfg.TemperatureShutdownCelsius,
		PowerRatioCrit:             cfg.PowerRatioCrit,
	})
	topology := health.NewTopologyCache()

	ag := agent.NewAgent(cfg, api, enumerator, collector, evaluator, topology,
		snapCache, errCollector, metrics)
	runner := bench.NewRunner(tokens, cfg.BenchmarkTimeout,
		cfg.BenchmarkMatrixSize, cfg.BenchmarkArraySizeMB, cfg.BenchmarkIterations)

	return &monitorRuntime{
		api:     api,
		tokens:  tokens,
		enum:    enumerator,
		cache:   snapCache,
		metrics: metrics,
		errs:    errCollector,
		agent:   ag,
		runner:  runner,
	}, nil
}

func (r *monitorRuntime) Close() {
	if err := r.api.Shutdown(); err != nil {
		slog.Warn("hardware capability shutdown failed", "error", err)
	}
}
