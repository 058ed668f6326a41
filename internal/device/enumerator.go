package device

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	monerrors "github.com/gpusentry/gpusentry/internal/errors"
	"github.com/gpusentry/gpusentry/pkg/model"
)

// Enumerator discovers attached accelerators and assigns each a stable
// logical index. Indices are assigned by sorting on hardware UUID so they do
// not change between runs purely due to driver enumeration order.
type Enumerator struct {
	api   API
	allow map[string]struct{}
}

// NewEnumerator creates an Enumerator. allowList filters devices by UUID or
// driver index; an empty list admits every device.
func NewEnumerator(api API, allowList []string) *Enumerator {
	var allow map[string]struct{}
	if len(allowList) > 0 {
		allow = make(map[string]struct{}, len(allowList))
		for _, entry := range allowList {
			allow[entry] = struct{}{}
		}
	}
	return &Enumerator{api: api, allow: allow}
}

// Enumerate queries the hardware capability and returns the active device
// set ordered by logical index. It fails with ErrNoDevicesFound when the
// capability reports zero devices, when the capability itself is
// unreachable, or when the allow-list filters out every device.
func (e *Enumerator) Enumerate() ([]model.Device, error) {
	count, err := e.api.DeviceCount()
	if err != nil {
		return nil, fmt.Errorf("%w: device count query failed: %v", monerrors.ErrNoDevicesFound, err)
	}
	if count == 0 {
		return nil, monerrors.ErrNoDevicesFound
	}

	devices := make([]model.Device, 0, count)
	for i := 0; i < count; i++ {
		id, err := e.api.Identity(i)
		if err != nil {
			// A device that cannot even report identity is skipped for
			// this enumeration; it will be retried next cycle.
			slog.Warn("device identity query failed, skipping", "driver_index", i, "error", err)
			continue
		}
		if !e.admitted(id.UUID, i) {
			continue
		}
		devices = append(devices, model.Device{
			DriverIndex:       i,
			UUID:              id.UUID,
			Name:              id.Name,
			PCIBusID:          id.PCIBusID,
			MemoryTotalBytes:  id.MemoryTotalBytes,
			ComputeCapability: id.ComputeCapability,
		})
	}

	if len(devices) == 0 {
		return nil, monerrors.ErrNoDevicesFound
	}

	sort.Slice(devices, func(a, b int) bool {
		return devices[a].UUID < devices[b].UUID
	})
	for i := range devices {
		devices[i].Index = i
	}

	return devices, nil
}

func (e *Enumerator) admitted(uuid string, driverIndex int) bool {
	if e.allow == nil {
		return true
	}
	if _, ok := e.allow[uuid]; ok {
		return true
	}
	_, ok := e.allow[strconv.Itoa(driverIndex)]
	return ok
}
