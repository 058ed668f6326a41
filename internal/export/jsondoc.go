package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gpusentry/gpusentry/pkg/model"
)

// jsonDocument wraps a snapshot with a derived summary so consumers of the
// structured format can read the headline without walking the device list.
type jsonDocument struct {
	Snapshot *model.Snapshot `json:"snapshot"`
	Summary  jsonSummary     `json:"summary"`
}

type jsonSummary struct {
	DeviceCount      int            `json:"device_count"`
	SystemVerdict    string         `json:"system_verdict"`
	VerdictCounts    map[string]int `json:"verdict_counts"`
	UnreachableCount int            `json:"unreachable_count"`
	BenchmarkCount   int            `json:"benchmark_count"`
}

// RenderJSON writes the snapshot as an indented JSON document with a trailing
// newline.
func RenderJSON(w io.Writer, snap *model.Snapshot) error {
	unreachable := 0
	for _, d := range snap.Devices {
		if d.Unreachable {
			unreachable++
		}
	}

	doc := jsonDocument{
		Snapshot: snap,
		Summary: jsonSummary{
			DeviceCount:      len(snap.Devices),
			SystemVerdict:    snap.SystemVerdict.String(),
			VerdictCounts:    snap.VerdictCounts(),
			UnreachableCount: unreachable,
			BenchmarkCount:   len(snap.Benchmarks),
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot document: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
