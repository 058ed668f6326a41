package model

import "time"

// TopologyEdge records the direct-peer-access capability between an unordered
// pair of devices. Edges are derived once per enumeration cycle and keyed by
// UUID so they survive logical index reassignment.
type TopologyEdge struct {
	IndexA     int    `json:"index_a"`
	IndexB     int    `json:"index_b"`
	UUIDA      string `json:"uuid_a"`
	UUIDB      string `json:"uuid_b"`
	PeerAccess bool   `json:"peer_access"`
}

// DeviceStatus bundles everything known about one device in one scrape.
type DeviceStatus struct {
	Device   Device        `json:"device"`
	Sample   Sample        `json:"sample"`
	Throttle ThrottleState `json:"throttle"`
	ECC      ECCState      `json:"ecc"`

	Verdict HealthVerdict `json:"verdict"`

	// Unreachable marks a device that could not be addressed at all this
	// scrape. It stays in the active set and is retried next cycle.
	Unreachable bool `json:"unreachable,omitempty"`

	// Conditions lists the findings that produced the verdict, e.g.
	// "DEGRADED: double-bit ECC delta +3".
	Conditions []string `json:"conditions,omitempty"`

	// Recommendations are operator hints derived from the conditions.
	Recommendations []string `json:"recommendations,omitempty"`

	// UnavailableFields names sample fields the driver could not report
	// this scrape, for detailed health output.
	UnavailableFields []string `json:"unavailable_fields,omitempty"`
}

// Snapshot is the atomic unit the scrape cache holds. It is immutable once
// published; a new snapshot fully replaces the old one.
type Snapshot struct {
	SnapshotID         string        `json:"snapshot_id"`
	Timestamp          time.Time     `json:"timestamp"`
	CollectionDuration time.Duration `json:"collection_duration_ns"`

	DriverVersion string `json:"driver_version,omitempty"`
	CUDAVersion   string `json:"cuda_version,omitempty"`

	Devices       []DeviceStatus `json:"devices"`
	SystemVerdict HealthVerdict  `json:"system_verdict"`

	Topology []TopologyEdge `json:"topology,omitempty"`

	Benchmarks []BenchmarkResult `json:"benchmarks,omitempty"`
}

// DeviceByUUID returns the status entry for the given UUID, if present.
func (s *Snapshot) DeviceByUUID(uuid string) (DeviceStatus, bool) {
	for _, d := range s.Devices {
		if d.Device.UUID == uuid {
			return d, true
		}
	}
	return DeviceStatus{}, false
}

// VerdictCounts tallies devices per verdict for summary output.
func (s *Snapshot) VerdictCounts() map[string]int {
	counts := map[string]int{
		Healthy.String():  0,
		Warning.String():  0,
		Degraded.String(): 0,
		Critical.String(): 0,
	}
	for _, d := range s.Devices {
		counts[d.Verdict.String()]++
	}
	return counts
}
