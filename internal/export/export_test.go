package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	monerrors "github.com/gpusentry/gpusentry/internal/errors"
	"github.com/gpusentry/gpusentry/pkg/model"
)

func fixtureSnapshot() *model.Snapshot {
	return &model.Snapshot{
		SnapshotID:    "snap-1",
		Timestamp:     time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
		DriverVersion: "550.00",
		CUDAVersion:   "12.4",
		Devices: []model.DeviceStatus{
			{
				Device: model.Device{Index: 0, UUID: "GPU-aaa", Name: "Test Accelerator"},
				Sample: model.Sample{
					TemperatureGPUCelsius: model.Float64(55),
					PowerDrawWatts:        model.Float64(150),
					PowerLimitWatts:       model.Float64(250),
					MemoryUsedBytes:       model.Uint64(2 << 30),
					MemoryTotalBytes:      model.Uint64(8 << 30),
					GPUUtilizationPercent: model.Float64(75),
				},
				Throttle: model.ThrottleState{Available: true},
				ECC: model.ECCState{
					AggregateDoubleBit: model.Uint64(2),
				},
				Verdict: model.Healthy,
			},
			{
				Device:      model.Device{Index: 1, UUID: "GPU-bbb", Name: "Test Accelerator"},
				Unreachable: true,
				Verdict:     model.Critical,
				Conditions:  []string{"CRITICAL: device unreachable"},
			},
		},
		SystemVerdict: model.Critical,
		Topology: []model.TopologyEdge{
			{IndexA: 0, IndexB: 1, UUIDA: "GPU-aaa", UUIDB: "GPU-bbb", PeerAccess: true},
		},
		Benchmarks: []model.BenchmarkResult{
			{
				Kind: model.BenchmarkMatrixMultiply, DeviceIndex: 0, DeviceUUID: "GPU-aaa",
				Duration: 2 * time.Second, Iterations: 3,
				Outcome: model.OutcomeOK, GFLOPS: model.Float64(12.5),
			},
		},
	}
}

func TestRenderExposition(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderExposition(&buf, fixtureSnapshot()))
	out := buf.String()

	assert.Contains(t, out,
		`gpusentry_gpu_temperature_celsius{gpu="0",name="Test Accelerator",uuid="GPU-aaa"} 55`)
	assert.Contains(t, out,
		`gpusentry_gpu_health_status{gpu="1",name="Test Accelerator",uuid="GPU-bbb"} 3`)
	assert.Contains(t, out,
		`gpusentry_gpu_unreachable{gpu="1",name="Test Accelerator",uuid="GPU-bbb"} 1`)
	assert.Contains(t, out, `gpusentry_system_health_status 3`)
	assert.Contains(t, out, `gpusentry_device_count 2`)
	assert.Contains(t, out,
		`gpusentry_peer_access{uuid_a="GPU-aaa",uuid_b="GPU-bbb"} 1`)
	assert.Contains(t, out, `gpusentry_benchmark_gflops`)
	assert.Contains(t, out, `# TYPE gpusentry_gpu_ecc_errors_total counter`)
}

func TestRenderExpositionOmitsUnavailableFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderExposition(&buf, fixtureSnapshot()))
	out := buf.String()

	// The fixture has no fan reading and no throttle on the unreachable
	// device; absent fields produce no series, never a zero.
	assert.NotContains(t, out, "gpusentry_gpu_fan_speed_percent")
	assert.NotContains(t, out, `gpusentry_gpu_power_draw_watts{gpu="1"`)
	assert.NotContains(t, out, `gpusentry_gpu_throttle_active{gpu="1"`)
}

func TestRenderExpositionIdempotent(t *testing.T) {
	snap := fixtureSnapshot()

	var a, b bytes.Buffer
	require.NoError(t, RenderExposition(&a, snap))
	require.NoError(t, RenderExposition(&b, snap))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderJSON(&buf, fixtureSnapshot()))

	var doc struct {
		Snapshot model.Snapshot `json:"snapshot"`
		Summary  struct {
			DeviceCount      int            `json:"device_count"`
			SystemVerdict    string         `json:"system_verdict"`
			VerdictCounts    map[string]int `json:"verdict_counts"`
			UnreachableCount int            `json:"unreachable_count"`
			BenchmarkCount   int            `json:"benchmark_count"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, 2, doc.Summary.DeviceCount)
	assert.Equal(t, "critical", doc.Summary.SystemVerdict)
	assert.Equal(t, 1, doc.Summary.UnreachableCount)
	assert.Equal(t, 1, doc.Summary.BenchmarkCount)
	assert.Equal(t, 1, doc.Summary.VerdictCounts["healthy"])

	require.Len(t, doc.Snapshot.Devices, 2)
	require.NotNil(t, doc.Snapshot.Devices[0].Sample.TemperatureGPUCelsius)
	assert.Equal(t, 55.0, *doc.Snapshot.Devices[0].Sample.TemperatureGPUCelsius)
	// Unavailable fields round-trip as absent, not zero.
	assert.Nil(t, doc.Snapshot.Devices[1].Sample.TemperatureGPUCelsius)
}

func TestRenderCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderCSV(&buf, fixtureSnapshot()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3) // header + 2 devices

	assert.Equal(t, csvHeader, records[0])

	col := func(row []string, name string) string {
		for i, h := range csvHeader {
			if h == name {
				return row[i]
			}
		}
		t.Fatalf("no column %q", name)
		return ""
	}

	assert.Equal(t, "55", col(records[1], "temperature_gpu_celsius"))
	assert.Equal(t, "healthy", col(records[1], "verdict"))
	assert.Equal(t, "2", col(records[1], "ecc_aggregate_double_bit"))

	// Unreachable device: empty cells, not zeros.
	assert.Equal(t, "", col(records[2], "temperature_gpu_celsius"))
	assert.Equal(t, "true", col(records[2], "unreachable"))
	assert.Equal(t, "critical", col(records[2], "verdict"))
}

// TestFormatsAgreeOnNumericValues renders the same snapshot in every format
// and checks that each numeric field parses back to the same value from all
// three outputs.
func TestFormatsAgreeOnNumericValues(t *testing.T) {
	snap := fixtureSnapshot()

	var expo, jsonBuf, csvBuf bytes.Buffer
	require.NoError(t, RenderExposition(&expo, snap))
	require.NoError(t, RenderJSON(&jsonBuf, snap))
	require.NoError(t, RenderCSV(&csvBuf, snap))

	expoValue := func(metric string) float64 {
		for _, line := range strings.Split(expo.String(), "\n") {
			if !strings.HasPrefix(line, metric+"{") || !strings.Contains(line, `uuid="GPU-aaa"`) {
				continue
			}
			fields := strings.Fields(line)
			v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
			require.NoError(t, err, line)
			return v
		}
		t.Fatalf("no series %q for GPU-aaa", metric)
		return 0
	}

	var doc struct {
		Snapshot model.Snapshot `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &doc))
	require.NotEmpty(t, doc.Snapshot.Devices)
	sample := doc.Snapshot.Devices[0].Sample

	records, err := csv.NewReader(&csvBuf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	csvValue := func(name string) float64 {
		for i, h := range csvHeader {
			if h == name {
				v, err := strconv.ParseFloat(records[1][i], 64)
				require.NoError(t, err, name)
				return v
			}
		}
		t.Fatalf("no column %q", name)
		return 0
	}

	jsonFloat := func(v *float64) float64 {
		require.NotNil(t, v)
		return *v
	}
	jsonUint := func(v *uint64) float64 {
		require.NotNil(t, v)
		return float64(*v)
	}

	cases := []struct {
		metric string
		column string
		json   float64
	}{
		{"gpusentry_gpu_temperature_celsius", "temperature_gpu_celsius", jsonFloat(sample.TemperatureGPUCelsius)},
		{"gpusentry_gpu_power_draw_watts", "power_draw_watts", jsonFloat(sample.PowerDrawWatts)},
		{"gpusentry_gpu_power_limit_watts", "power_limit_watts", jsonFloat(sample.PowerLimitWatts)},
		{"gpusentry_gpu_memory_used_bytes", "memory_used_bytes", jsonUint(sample.MemoryUsedBytes)},
		{"gpusentry_gpu_memory_total_bytes", "memory_total_bytes", jsonUint(sample.MemoryTotalBytes)},
		{"gpusentry_gpu_utilization_percent", "gpu_utilization_percent", jsonFloat(sample.GPUUtilizationPercent)},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.json, expoValue(tc.metric), "exposition vs json: %s", tc.metric)
		assert.Equal(t, tc.json, csvValue(tc.column), "csv vs json: %s", tc.column)
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"exposition": FormatExposition,
		"prometheus": FormatExposition,
		"json":       FormatJSON,
		"structured": FormatJSON,
		"CSV":        FormatCSV,
		"tabular":    FormatCSV,
	}
	for name, want := range cases {
		got, err := ParseFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("xml")
	assert.ErrorIs(t, err, monerrors.ErrExportFormat)
}

func TestWriteFileZstd(t *testing.T) {
	snap := fixtureSnapshot()
	path := filepath.Join(t.TempDir(), "snapshot.json.zst")

	require.NoError(t, WriteFile(path, FormatJSON, snap))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer dec.Close()

	decompressed, err := io.ReadAll(dec)
	require.NoError(t, err)

	var direct bytes.Buffer
	require.NoError(t, RenderJSON(&direct, snap))
	assert.Equal(t, direct.Bytes(), decompressed)
}

func TestWriteFilePlain(t *testing.T) {
	snap := fixtureSnapshot()
	path := filepath.Join(t.TempDir(), "snapshot.csv")

	require.NoError(t, WriteFile(path, FormatCSV, snap))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "timestamp,gpu_index,"))
}
