package device

import (
	"sync"
	"time"
)

// FakeDevice is the configurable state behind one device of a FakeAPI.
// Nil field pointers answer ErrUnsupported; Lost makes every query answer
// ErrLost; Latency delays every query, for timeout tests.
type FakeDevice struct {
	Identity Identity
	Lost     bool
	// ScrapeLost keeps Identity working but fails every telemetry query
	// with ErrLost, modeling a device that enumerates and then falls off
	// the bus mid-cycle.
	ScrapeLost bool
	Latency    time.Duration

	Temperature       *float64
	MemoryTemperature *float64
	Fan               *float64
	Power             *float64
	PowerCap          *float64
	Memory            *MemoryInfo
	Utilization       *Utilization
	EncoderUtil       *float64
	DecoderUtil       *float64
	Clocks            map[ClockDomain]float64
	MaxClocks         map[ClockDomain]float64
	Link              *PCIeLink
	PerfState         *int
	Processes         *int
	ThrottleMask      *uint64
	ECC               *ECCCounts
	PCIeReplays       *uint64
}

// FakeAPI is an in-memory API implementation for tests. The zero value is
// unusable; construct with NewFakeAPI.
type FakeAPI struct {
	mu      sync.Mutex
	Devices []*FakeDevice

	CountErr error
	Driver   string
	CUDA     string

	// PeerPairs maps sorted UUID pairs ("a|b") to peer-access capability.
	PeerPairs map[string]bool

	// PeerQueries counts PeerAccessSupported calls, so tests can assert
	// that topology is probed once per enumeration, not per scrape.
	PeerQueries int
}

// NewFakeAPI creates a FakeAPI over the given devices.
func NewFakeAPI(devices ...*FakeDevice) *FakeAPI {
	return &FakeAPI{
		Devices:   devices,
		Driver:    "550.00",
		CUDA:      "12.4",
		PeerPairs: make(map[string]bool),
	}
}

// PeerKey builds the sorted-pair key used by PeerPairs.
func PeerKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func (f *FakeAPI) Init() error     { return nil }
func (f *FakeAPI) Shutdown() error { return nil }

func (f *FakeAPI) DriverVersion() (string, error) { return f.Driver, nil }
func (f *FakeAPI) CUDAVersion() (string, error)   { return f.CUDA, nil }

func (f *FakeAPI) DeviceCount() (int, error) {
	if f.CountErr != nil {
		return 0, f.CountErr
	}
	return len(f.Devices), nil
}

// device resolves an index to its FakeDevice. The latency sleep happens
// outside the lock so one slow device never stalls queries against another.
func (f *FakeAPI) device(index int) (*FakeDevice, error) {
	f.mu.Lock()
	if index < 0 || index >= len(f.Devices) {
		f.mu.Unlock()
		return nil, &FieldError{Field: "handle", Err: ErrLost}
	}
	d := f.Devices[index]
	f.mu.Unlock()

	if d.Latency > 0 {
		time.Sleep(d.Latency)
	}
	if d.Lost || d.ScrapeLost {
		return nil, &FieldError{Field: "handle", Err: ErrLost}
	}
	return d, nil
}

func (f *FakeAPI) Identity(index int) (Identity, error) {
	f.mu.Lock()
	if index < 0 || index >= len(f.Devices) {
		f.mu.Unlock()
		return Identity{}, &FieldError{Field: "handle", Err: ErrLost}
	}
	d := f.Devices[index]
	f.mu.Unlock()

	if d.Latency > 0 {
		time.Sleep(d.Latency)
	}
	if d.Lost {
		return Identity{}, &FieldError{Field: "handle", Err: ErrLost}
	}
	return d.Identity, nil
}

func unsupported(field string) error {
	return &FieldError{Field: field, Err: ErrUnsupported}
}

func (f *FakeAPI) Temperature(index int, sensor TemperatureSensor) (float64, error) {
	d, err := f.device(index)
	if err != nil {
		return 0, err
	}
	switch sensor {
	case SensorMemory:
		if d.MemoryTemperature == nil {
			return 0, unsupported("temperature_memory")
		}
		return *d.MemoryTemperature, nil
	default:
		if d.Temperature == nil {
			return 0, unsupported("temperature_gpu")
		}
		return *d.Temperature, nil
	}
}

func (f *FakeAPI) FanSpeed(index int) (float64, error) {
	d, err := f.device(index)
	if err != nil {
		return 0, err
	}
	if d.Fan == nil {
		return 0, unsupported("fan_speed")
	}
	return *d.Fan, nil
}

func (f *FakeAPI) PowerUsage(index int) (float64, error) {
	d, err := f.device(index)
	if err != nil {
		return 0, err
	}
	if d.Power == nil {
		return 0, unsupported("power_usage")
	}
	return *d.Power, nil
}

func (f *FakeAPI) PowerLimit(index int) (float64, error) {
	d, err := f.device(index)
	if err != nil {
		return 0, err
	}
	if d.PowerCap == nil {
		return 0, unsupported("power_limit")
	}
	return *d.PowerCap, nil
}

func (f *FakeAPI) MemoryInfo(index int) (MemoryInfo, error) {
	d, err := f.device(index)
	if err != nil {
		return MemoryInfo{}, err
	}
	if d.Memory == nil {
		return MemoryInfo{}, unsupported("memory_info")
	}
	return *d.Memory, nil
}

func (f *FakeAPI) UtilizationRates(index int) (Utilization, error) {
	d, err := f.device(index)
	if err != nil {
		return Utilization{}, err
	}
	if d.Utilization == nil {
		return Utilization{}, unsupported("utilization")
	}
	return *d.Utilization, nil
}

func (f *FakeAPI) EncoderUtilization(index int) (float64, error) {
	d, err := f.device(index)
	if err != nil {
		return 0, err
	}
	if d.EncoderUtil == nil {
		return 0, unsupported("encoder_utilization")
	}
	return *d.EncoderUtil, nil
}

func (f *FakeAPI) DecoderUtilization(index int) (float64, error) {
	d, err := f.device(index)
	if err != nil {
		return 0, err
	}
	if d.DecoderUtil == nil {
		return 0, unsupported("decoder_utilization")
	}
	return *d.DecoderUtil, nil
}

func (f *FakeAPI) ClockInfo(index int, domain ClockDomain) (float64, error) {
	d, err := f.device(index)
	if err != nil {
		return 0, err
	}
	mhz, ok := d.Clocks[domain]
	if !ok {
		return 0, unsupported("clock")
	}
	return mhz, nil
}

func (f *FakeAPI) MaxClockInfo(index int, domain ClockDomain) (float64, error) {
	d, err := f.device(index)
	if err != nil {
		return 0, err
	}
	mhz, ok := d.MaxClocks[domain]
	if !ok {
		return 0, unsupported("max_clock")
	}
	return mhz, nil
}

func (f *FakeAPI) PCIeLink(index int) (PCIeLink, error) {
	d, err := f.device(index)
	if err != nil {
		return PCIeLink{}, err
	}
	if d.Link == nil {
		return PCIeLink{}, unsupported("pcie_link")
	}
	return *d.Link, nil
}

func (f *FakeAPI) PerformanceState(index int) (int, error) {
	d, err := f.device(index)
	if err != nil {
		return 0, err
	}
	if d.PerfState == nil {
		return 0, unsupported("performance_state")
	}
	return *d.PerfState, nil
}

func (f *FakeAPI) ProcessCount(index int) (int, error) {
	d, err := f.device(index)
	if err != nil {
		return 0, err
	}
	if d.Processes == nil {
		return 0, unsupported("process_count")
	}
	return *d.Processes, nil
}

func (f *FakeAPI) ThrottleReasons(index int) (uint64, error) {
	d, err := f.device(index)
	if err != nil {
		return 0, err
	}
	if d.ThrottleMask == nil {
		return 0, unsupported("throttle_reasons")
	}
	return *d.ThrottleMask, nil
}

func (f *FakeAPI) ECCCounts(index int) (ECCCounts, error) {
	d, err := f.device(index)
	if err != nil {
		return ECCCounts{}, err
	}
	if d.ECC == nil {
		return ECCCounts{}, unsupported("ecc_counts")
	}
	return *d.ECC, nil
}

func (f *FakeAPI) PCIeReplayCounter(index int) (uint64, error) {
	d, err := f.device(index)
	if err != nil {
		return 0, err
	}
	if d.PCIeReplays == nil {
		return 0, unsupported("pcie_replay_counter")
	}
	return *d.PCIeReplays, nil
}

func (f *FakeAPI) PeerAccessSupported(a, b int) (bool, error) {
	da, err := f.device(a)
	if err != nil {
		return false, err
	}
	db, err := f.device(b)
	if err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PeerQueries++
	return f.PeerPairs[PeerKey(da.Identity.UUID, db.Identity.UUID)], nil
}
