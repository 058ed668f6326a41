// Package cache holds the latest published snapshot for readers: exporters,
// the HTTP endpoints, and the CLI. Readers never trigger collection; they see
// the last published snapshot plus its age and decide for themselves whether
// it is fresh enough.
package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gpusentry/gpusentry/pkg/model"
)

// ScrapeCache is a single-writer, many-reader snapshot store. The cycle
// goroutine publishes; benchmark completions splice their result into a
// cloned snapshot so readers see fresh measurements without waiting for the
// next cycle. Readers get an immutable pointer and must not mutate it.
type ScrapeCache struct {
	mu       sync.Mutex
	snapshot *model.Snapshot

	// bench holds the latest result per kind+device, carried forward onto
	// every subsequently published snapshot.
	bench map[string]model.BenchmarkResult
}

// NewScrapeCache creates an empty cache. Reads before the first Publish
// report no data.
func NewScrapeCache() *ScrapeCache {
	return &ScrapeCache{bench: make(map[string]model.BenchmarkResult)}
}

func benchKey(kind model.BenchmarkKind, uuid string) string {
	return string(kind) + "|" + uuid
}

// Publish stamps the snapshot with an identity and timestamp, attaches the
// retained benchmark results, and makes it the current snapshot in one step.
func (c *ScrapeCache) Publish(snap *model.Snapshot) {
	snap.SnapshotID = uuid.NewString()
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	snap.Benchmarks = c.sortedBenchLocked()
	c.snapshot = snap
}

// RecordBenchmark retains the result and re-publishes the current snapshot
// with it attached, superseding any older result of the same kind for the
// same device.
func (c *ScrapeCache) RecordBenchmark(result model.BenchmarkResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bench[benchKey(result.Kind, result.DeviceUUID)] = result
	if c.snapshot == nil {
		return
	}
	clone := *c.snapshot
	clone.Benchmarks = c.sortedBenchLocked()
	c.snapshot = &clone
}

// Read returns the current snapshot and its age. ok is false before the
// first Publish.
func (c *ScrapeCache) Read() (snap *model.Snapshot, age time.Duration, ok bool) {
	c.mu.Lock()
	snap = c.snapshot
	c.mu.Unlock()

	if snap == nil {
		return nil, 0, false
	}
	return snap, time.Since(snap.Timestamp), true
}

func (c *ScrapeCache) sortedBenchLocked() []model.BenchmarkResult {
	if len(c.bench) == 0 {
		return nil
	}
	results := make([]model.BenchmarkResult, 0, len(c.bench))
	for _, r := range c.bench {
		results = append(results, r)
	}
	sort.Slice(results, func(a, b int) bool {
		if results[a].DeviceIndex != results[b].DeviceIndex {
			return results[a].DeviceIndex < results[b].DeviceIndex
		}
		return results[a].Kind < results[b].Kind
	})
	return results
}
