// Package server exposes the monitor over HTTP: device telemetry in the
// exposition format, snapshot downloads in any export format, on-demand
// benchmark triggers, and the usual health, readiness, and self-metrics
// endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gpusentry/gpusentry/internal/cache"
	monerrors "github.com/gpusentry/gpusentry/internal/errors"
	"github.com/gpusentry/gpusentry/internal/export"
	"github.com/gpusentry/gpusentry/internal/observability"
	"github.com/gpusentry/gpusentry/pkg/model"
)

// BenchmarkRunner runs one benchmark against one device. iterations is the
// workload repetition count; 0 selects the runner's configured default.
type BenchmarkRunner interface {
	Run(ctx context.Context, kind model.BenchmarkKind, dev model.Device, iterations int) (model.BenchmarkResult, error)
}

// Server serves the monitor's HTTP surface. Every read endpoint renders the
// cached snapshot; no endpoint ever triggers a collection.
type Server struct {
	httpServer *http.Server
	cache      *cache.ScrapeCache
	runner     BenchmarkRunner
	metrics    *observability.Metrics
	listener   net.Listener
}

// NewServer creates a Server on the given port. Pass port=0 to let the OS
// pick a free port (useful for tests). When enableDebug is true, pprof
// endpoints are registered.
func NewServer(port int, snapCache *cache.ScrapeCache, runner BenchmarkRunner, metrics *observability.Metrics, enableDebug bool) *Server {
	s := &Server{
		cache:   snapCache,
		runner:  runner,
		metrics: metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/benchmark", s.handleBenchmark)
	mux.Handle("/internal/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	if enableDebug {
		// pprof handlers, only when GPUSENTRY_DEBUG_ENDPOINTS=true
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", port),
		Handler:        mux,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return s
}

// Addr returns the server's listen address, valid after Start.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start begins listening and serving HTTP in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}
	s.listener = ln
	// Update Addr to the actual address (important when port=0).
	s.httpServer.Addr = ln.Addr().String()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server exited", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReadyz reports ready once the first snapshot has been published.
func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _, ready := s.cache.Read()
	if ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]bool{"ready": ready})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	s.render(w, export.FormatExposition)
}

// handleSnapshot serves the cached snapshot in any export format, selected
// by the format query parameter (default json).
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("format")
	if name == "" {
		name = "json"
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.render(w, format)
}

func (s *Server) render(w http.ResponseWriter, format export.Format) {
	snap, age, ok := s.cache.Read()
	if !ok {
		http.Error(w, "no snapshot collected yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("X-Snapshot-Age-Seconds", strconv.FormatFloat(age.Seconds(), 'f', 3, 64))

	start := time.Now()
	err := export.Render(w, format, snap)
	s.metrics.RenderDuration.WithLabelValues(string(format)).Observe(time.Since(start).Seconds())
	if err != nil {
		// Headers are already out; the failure is only visible in the log.
		slog.Error("snapshot render failed", "format", string(format), "error", err)
	}
}

// handleBenchmark triggers a benchmark run: POST /benchmark?kind=...&gpu=...
// where gpu is a logical index or UUID. The run is synchronous; the response
// carries the result. A busy device yields 409.
func (s *Server) handleBenchmark(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.runner == nil {
		http.Error(w, "benchmarks disabled", http.StatusNotImplemented)
		return
	}

	kind := model.BenchmarkKind(r.URL.Query().Get("kind"))
	switch kind {
	case model.BenchmarkMatrixMultiply, model.BenchmarkMemoryBandwidth, model.BenchmarkSimple:
	default:
		http.Error(w, fmt.Sprintf("unknown benchmark kind %q", kind), http.StatusBadRequest)
		return
	}

	iterations := 0
	if v := r.URL.Query().Get("iterations"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "iterations must be a positive integer", http.StatusBadRequest)
			return
		}
		iterations = n
	}

	snap, _, ok := s.cache.Read()
	if !ok {
		http.Error(w, "no snapshot collected yet", http.StatusServiceUnavailable)
		return
	}
	dev, ok := findDevice(snap, r.URL.Query().Get("gpu"))
	if !ok {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}

	result, err := s.runner.Run(r.Context(), kind, dev, iterations)
	switch {
	case errors.Is(err, monerrors.ErrDeviceBusy):
		s.metrics.BenchmarkRejectsTotal.Inc()
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil && result.Outcome == "":
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.metrics.BenchmarkRunsTotal.WithLabelValues(string(kind), string(result.Outcome)).Inc()
	s.cache.RecordBenchmark(result)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

func findDevice(snap *model.Snapshot, selector string) (model.Device, bool) {
	for _, d := range snap.Devices {
		if d.Device.UUID == selector || strconv.Itoa(d.Device.Index) == selector {
			return d.Device, true
		}
	}
	return model.Device{}, false
}
