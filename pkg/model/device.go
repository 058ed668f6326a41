package model

// Device identifies a single accelerator attached to the host. It is created
// at enumeration time and immutable for the lifetime of the process; only a
// later enumeration that no longer reports the hardware removes it from the
// active set.
type Device struct {
	// Index is the logical index assigned by the enumerator. Devices are
	// sorted by UUID before assignment so the index does not depend on
	// driver enumeration order.
	Index int `json:"index"`

	// DriverIndex is the ordinal the driver uses to address the device.
	DriverIndex int `json:"driver_index"`

	UUID     string `json:"uuid"`
	Name     string `json:"name"`
	PCIBusID string `json:"pci_bus_id,omitempty"`

	MemoryTotalBytes  uint64 `json:"memory_total_bytes,omitempty"`
	ComputeCapability string `json:"compute_capability,omitempty"`
}
