package health

import (
	"log/slog"
	"strings"

	"github.com/gpusentry/gpusentry/internal/device"
	"github.com/gpusentry/gpusentry/pkg/model"
)

// TopologyCache memoizes pairwise peer-access edges. Peer capability is a
// property of the installed hardware, so edges are probed once per distinct
// device set and reused until enumeration reports a different set.
type TopologyCache struct {
	key   string
	edges []model.TopologyEdge
}

// NewTopologyCache creates an empty cache.
func NewTopologyCache() *TopologyCache {
	return &TopologyCache{}
}

func setKey(devices []model.Device) string {
	uuids := make([]string, len(devices))
	for i, d := range devices {
		uuids[i] = d.UUID
	}
	return strings.Join(uuids, "|")
}

// Edges returns the peer-access edges for the given device set, probing the
// hardware only when the set differs from the last call. Devices must be in
// logical index order, which enumeration guarantees.
func (tc *TopologyCache) Edges(api device.API, devices []model.Device) []model.TopologyEdge {
	key := setKey(devices)
	if key == tc.key {
		return tc.edges
	}

	var edges []model.TopologyEdge
	for a := 0; a < len(devices); a++ {
		for b := a + 1; b < len(devices); b++ {
			da, db := devices[a], devices[b]
			peer, err := api.PeerAccessSupported(da.DriverIndex, db.DriverIndex)
			if err != nil {
				slog.Debug("peer access probe failed",
					"uuid_a", da.UUID, "uuid_b", db.UUID, "error", err)
				peer = false
			}
			edges = append(edges, model.TopologyEdge{
				IndexA:     da.Index,
				IndexB:     db.Index,
				UUIDA:      da.UUID,
				UUIDB:      db.UUID,
				PeerAccess: peer,
			})
		}
	}

	tc.key = key
	tc.edges = edges
	return edges
}

// Invalidate drops the cached edges so the next Edges call re-probes.
func (tc *TopologyCache) Invalidate() {
	tc.key = ""
	tc.edges = nil
}
