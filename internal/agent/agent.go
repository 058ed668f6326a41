// Package agent drives the periodic collection cycle: enumerate devices,
// scrape them concurrently, derive verdicts, and publish the snapshot to the
// cache. One Agent owns the cycle; everything else reads the cache.
package agent

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gpusentry/gpusentry/internal/cache"
	"github.com/gpusentry/gpusentry/internal/config"
	"github.com/gpusentry/gpusentry/internal/device"
	"github.com/gpusentry/gpusentry/internal/errors"
	"github.com/gpusentry/gpusentry/internal/health"
	"github.com/gpusentry/gpusentry/internal/observability"
	"github.com/gpusentry/gpusentry/internal/telemetry"
	"github.com/gpusentry/gpusentry/pkg/model"
)

// Agent is the orchestrator that wires together enumeration, collection,
// evaluation, and publication, and runs the cycle loop.
type Agent struct {
	config         config.Config
	api            device.API
	enumerator     *device.Enumerator
	collector      *telemetry.Collector
	evaluator      *health.Evaluator
	topology       *health.TopologyCache
	cache          *cache.ScrapeCache
	errorCollector *errors.ErrorCollector
	metrics        *observability.Metrics

	driverVersion string
	cudaVersion   string

	ready     atomic.Bool
	startedAt time.Time
}

// NewAgent creates an Agent with all required dependencies.
func NewAgent(
	cfg config.Config,
	api device.API,
	enumerator *device.Enumerator,
	collector *telemetry.Collector,
	evaluator *health.Evaluator,
	topology *health.TopologyCache,
	snapCache *cache.ScrapeCache,
	errCollector *errors.ErrorCollector,
	metrics *observability.Metrics,
) *Agent {
	return &Agent{
		config:         cfg,
		api:            api,
		enumerator:     enumerator,
		collector:      collector,
		evaluator:      evaluator,
		topology:       topology,
		cache:          snapCache,
		errorCollector: errCollector,
		metrics:        metrics,
		startedAt:      time.Now(),
	}
}

// IsReady reports whether the agent has published its first snapshot.
func (a *Agent) IsReady() bool {
	return a.ready.Load()
}

// Run executes the agent lifecycle: verify the hardware capability sees
// devices, then run collection cycles until the context is canceled. A host
// with zero devices at startup is a deployment mistake and fails fast; a
// device set that empties later is a finding and keeps the loop alive.
func (a *Agent) Run(ctx context.Context) error {
	if _, err := a.enumerator.Enumerate(); err != nil {
		return fmt.Errorf("startup enumeration: %w", err)
	}

	if v, err := a.api.DriverVersion(); err == nil {
		a.driverVersion = v
	}
	if v, err := a.api.CUDAVersion(); err == nil {
		a.cudaVersion = v
	}
	slog.Info("monitor starting",
		"driver_version", a.driverVersion,
		"cuda_version", a.cudaVersion,
		"interval", a.config.CollectionInterval,
	)

	ticker := time.NewTicker(a.config.CollectionInterval)
	defer ticker.Stop()

	// Do first cycle immediately.
	a.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.RunCycle(ctx)
		}
	}
}

// RunCycle performs one collection cycle. A cycle that exceeds the ceiling is
// abandoned without publishing, so the cache keeps the last complete snapshot
// and its age keeps growing, which is the staleness signal readers watch.
func (a *Agent) RunCycle(ctx context.Context) {
	start := time.Now()
	cycleCtx, cancel := context.WithTimeout(ctx, a.config.CycleCeiling)
	defer cancel()

	devices, err := a.enumerator.Enumerate()
	if err != nil {
		a.errorCollector.Report(errors.MonitorError{
			Code:      errors.CodeNoDevicesFound,
			Message:   err.Error(),
			Component: "agent",
			Timestamp: time.Now().UnixMilli(),
			Err:       err,
		})
		slog.Error("enumeration failed, publishing empty snapshot", "error", err)
		a.publish(nil, nil, start)
		return
	}
	a.metrics.DevicesPresent.Set(float64(len(devices)))

	statuses := make([]model.DeviceStatus, len(devices))
	var wg sync.WaitGroup
	for i, dev := range devices {
		wg.Add(1)
		go func(i int, dev model.Device) {
			defer wg.Done()
			statuses[i] = a.scrapeDevice(cycleCtx, dev)
		}(i, dev)
	}
	wg.Wait()

	if cycleCtx.Err() != nil && ctx.Err() == nil {
		a.metrics.CyclesTotal.WithLabelValues("abandoned").Inc()
		a.errorCollector.Report(errors.MonitorError{
			Code:      errors.CodeCycleAbandoned,
			Message:   fmt.Sprintf("cycle exceeded ceiling %s", a.config.CycleCeiling),
			Component: "agent",
			Timestamp: time.Now().UnixMilli(),
		})
		slog.Warn("cycle abandoned, snapshot not published",
			"ceiling", a.config.CycleCeiling,
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
		return
	}

	edges := a.topology.Edges(a.api, devices)
	a.publish(statuses, edges, start)
}

func (a *Agent) scrapeDevice(ctx context.Context, dev model.Device) model.DeviceStatus {
	start := time.Now()
	reading, err := a.collector.Collect(ctx, dev)
	a.metrics.ScrapeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		a.metrics.DeviceScrapesTotal.WithLabelValues("unreachable").Inc()
		a.errorCollector.Report(errors.MonitorError{
			Code:       errors.CodeDeviceUnreachable,
			Message:    err.Error(),
			Component:  "collector",
			DeviceUUID: dev.UUID,
			Timestamp:  time.Now().UnixMilli(),
			Err:        err,
		})
		slog.Warn("device unreachable", "device_uuid", dev.UUID, "error", err)
		return model.DeviceStatus{Device: dev, Unreachable: true}
	}

	a.metrics.DeviceScrapesTotal.WithLabelValues("ok").Inc()
	return model.DeviceStatus{
		Device:            dev,
		Sample:            reading.Sample,
		Throttle:          health.DecodeThrottle(reading.ThrottleMask),
		ECC:               reading.ECC,
		UnavailableFields: reading.UnavailableFields,
	}
}

func (a *Agent) publish(statuses []model.DeviceStatus, edges []model.TopologyEdge, start time.Time) {
	system := a.evaluator.Evaluate(statuses)

	snap := &model.Snapshot{
		Timestamp:          time.Now().UTC(),
		CollectionDuration: time.Since(start),
		DriverVersion:      a.driverVersion,
		CUDAVersion:        a.cudaVersion,
		Devices:            statuses,
		SystemVerdict:      system,
		Topology:           edges,
	}
	a.cache.Publish(snap)
	a.ready.Store(true)

	a.metrics.CycleDuration.Observe(snap.CollectionDuration.Seconds())
	a.metrics.CyclesTotal.WithLabelValues("ok").Inc()
	slog.Info("snapshot published",
		"snapshot_id", snap.SnapshotID,
		"devices", len(statuses),
		"system_verdict", system.String(),
		"duration", snap.CollectionDuration.Round(time.Millisecond),
	)
}

// IsFatal reports whether a Run error should terminate the process rather
// than be retried by a supervisor with backoff.
func IsFatal(err error) bool {
	return stderrors.Is(err, errors.ErrNoDevicesFound)
}
