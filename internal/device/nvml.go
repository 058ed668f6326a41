package device

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlAPI implements API against the NVIDIA Management Library.
type nvmlAPI struct{}

// NewNVML creates the NVML-backed hardware query capability. Call Init
// before any query and Shutdown when the process exits.
func NewNVML() API {
	return &nvmlAPI{}
}

// mapReturn converts an NVML return code into the package's error taxonomy.
func mapReturn(op string, ret nvml.Return) error {
	switch ret {
	case nvml.SUCCESS:
		return nil
	case nvml.ERROR_NOT_SUPPORTED:
		return &FieldError{Field: op, Err: ErrUnsupported}
	case nvml.ERROR_GPU_IS_LOST, nvml.ERROR_INVALID_ARGUMENT:
		return &FieldError{Field: op, Err: ErrLost}
	default:
		return &FieldError{Field: op, Err: fmt.Errorf("nvml: %s", nvml.ErrorString(ret))}
	}
}

func (n *nvmlAPI) Init() error {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return fmt.Errorf("nvml init: %s", nvml.ErrorString(ret))
	}
	return nil
}

func (n *nvmlAPI) Shutdown() error {
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("nvml shutdown: %s", nvml.ErrorString(ret))
	}
	return nil
}

func (n *nvmlAPI) DriverVersion() (string, error) {
	v, ret := nvml.SystemGetDriverVersion()
	if ret != nvml.SUCCESS {
		return "", mapReturn("driver_version", ret)
	}
	return v, nil
}

func (n *nvmlAPI) CUDAVersion() (string, error) {
	v, ret := nvml.SystemGetCudaDriverVersion()
	if ret != nvml.SUCCESS {
		return "", mapReturn("cuda_version", ret)
	}
	return fmt.Sprintf("%d.%d", v/1000, (v%1000)/10), nil
}

func (n *nvmlAPI) DeviceCount() (int, error) {
	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return 0, mapReturn("device_count", ret)
	}
	return count, nil
}

func handle(index int) (nvml.Device, error) {
	dev, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return dev, mapReturn("handle", ret)
	}
	return dev, nil
}

func (n *nvmlAPI) Identity(index int) (Identity, error) {
	dev, err := handle(index)
	if err != nil {
		return Identity{}, err
	}

	uuid, ret := dev.GetUUID()
	if ret != nvml.SUCCESS {
		return Identity{}, mapReturn("uuid", ret)
	}
	name, ret := dev.GetName()
	if ret != nvml.SUCCESS {
		return Identity{}, mapReturn("name", ret)
	}

	id := Identity{UUID: uuid, Name: name}

	if pci, ret := dev.GetPciInfo(); ret == nvml.SUCCESS {
		id.PCIBusID = busIDString(pci.BusId)
	}
	if mem, ret := dev.GetMemoryInfo(); ret == nvml.SUCCESS {
		id.MemoryTotalBytes = mem.Total
	}
	if major, minor, ret := dev.GetCudaComputeCapability(); ret == nvml.SUCCESS {
		id.ComputeCapability = fmt.Sprintf("%d.%d", major, minor)
	}

	return id, nil
}

// busIDString trims the fixed-size NVML bus id buffer at the first NUL.
func busIDString(raw [32]int8) string {
	buf := make([]byte, 0, len(raw))
	for _, c := range raw {
		if c == 0 {
			break
		}
		buf = append(buf, byte(c))
	}
	return string(buf)
}

func (n *nvmlAPI) Temperature(index int, sensor TemperatureSensor) (float64, error) {
	dev, err := handle(index)
	if err != nil {
		return 0, err
	}

	switch sensor {
	case SensorCore:
		t, ret := dev.GetTemperature(nvml.TEMPERATURE_GPU)
		if ret != nvml.SUCCESS {
			return 0, mapReturn("temperature_gpu", ret)
		}
		return float64(t), nil
	case SensorMemory:
		// Memory temperature has no dedicated sensor query; it is only
		// exposed through the field-value interface.
		values := []nvml.FieldValue{{FieldId: nvml.FI_DEV_MEMORY_TEMP}}
		if ret := dev.GetFieldValues(values); ret != nvml.SUCCESS {
			return 0, mapReturn("temperature_memory", ret)
		}
		if values[0].NvmlReturn != uint32(nvml.SUCCESS) {
			return 0, mapReturn("temperature_memory", nvml.ERROR_NOT_SUPPORTED)
		}
		return float64(values[0].Value[0]), nil
	default:
		return 0, &FieldError{Field: "temperature", Err: ErrUnsupported}
	}
}

func (n *nvmlAPI) FanSpeed(index int) (float64, error) {
	dev, err := handle(index)
	if err != nil {
		return 0, err
	}
	speed, ret := dev.GetFanSpeed()
	if ret != nvml.SUCCESS {
		return 0, mapReturn("fan_speed", ret)
	}
	return float64(speed), nil
}

func (n *nvmlAPI) PowerUsage(index int) (float64, error) {
	dev, err := handle(index)
	if err != nil {
		return 0, err
	}
	mw, ret := dev.GetPowerUsage()
	if ret != nvml.SUCCESS {
		return 0, mapReturn("power_usage", ret)
	}
	return float64(mw) / 1000.0, nil
}

func (n *nvmlAPI) PowerLimit(index int) (float64, error) {
	dev, err := handle(index)
	if err != nil {
		return 0, err
	}
	mw, ret := dev.GetPowerManagementLimit()
	if ret != nvml.SUCCESS {
		return 0, mapReturn("power_limit", ret)
	}
	return float64(mw) / 1000.0, nil
}

func (n *nvmlAPI) MemoryInfo(index int) (MemoryInfo, error) {
	dev, err := handle(index)
	if err != nil {
		return MemoryInfo{}, err
	}

	if v2, ret := dev.GetMemoryInfo_v2(); ret == nvml.SUCCESS {
		return MemoryInfo{
			Used:        v2.Used,
			Free:        v2.Free,
			Total:       v2.Total,
			Reserved:    v2.Reserved,
			HasReserved: true,
		}, nil
	}

	mem, ret := dev.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return MemoryInfo{}, mapReturn("memory_info", ret)
	}
	return MemoryInfo{Used: mem.Used, Free: mem.Free, Total: mem.Total}, nil
}

func (n *nvmlAPI) UtilizationRates(index int) (Utilization, error) {
	dev, err := handle(index)
	if err != nil {
		return Utilization{}, err
	}
	util, ret := dev.GetUtilizationRates()
	if ret != nvml.SUCCESS {
		return Utilization{}, mapReturn("utilization", ret)
	}
	return Utilization{GPU: float64(util.Gpu), Memory: float64(util.Memory)}, nil
}

func (n *nvmlAPI) EncoderUtilization(index int) (float64, error) {
	dev, err := handle(index)
	if err != nil {
		return 0, err
	}
	util, _, ret := dev.GetEncoderUtilization()
	if ret != nvml.SUCCESS {
		return 0, mapReturn("encoder_utilization", ret)
	}
	return float64(util), nil
}

func (n *nvmlAPI) DecoderUtilization(index int) (float64, error) {
	dev, err := handle(index)
	if err != nil {
		return 0, err
	}
	util, _, ret := dev.GetDecoderUtilization()
	if ret != nvml.SUCCESS {
		return 0, mapReturn("decoder_utilization", ret)
	}
	return float64(util), nil
}

func clockType(domain ClockDomain) nvml.ClockType {
	switch domain {
	case ClockMemory:
		return nvml.CLOCK_MEM
	case ClockSM:
		return nvml.CLOCK_SM
	default:
		return nvml.CLOCK_GRAPHICS
	}
}

func (n *nvmlAPI) ClockInfo(index int, domain ClockDomain) (float64, error) {
	dev, err := handle(index)
	if err != nil {
		return 0, err
	}
	mhz, ret := dev.GetClockInfo(clockType(domain))
	if ret != nvml.SUCCESS {
		return 0, mapReturn("clock", ret)
	}
	return float64(mhz), nil
}

func (n *nvmlAPI) MaxClockInfo(index int, domain ClockDomain) (float64, error) {
	dev, err := handle(index)
	if err != nil {
		return 0, err
	}
	mhz, ret := dev.GetMaxClockInfo(clockType(domain))
	if ret != nvml.SUCCESS {
		return 0, mapReturn("max_clock", ret)
	}
	return float64(mhz), nil
}

func (n *nvmlAPI) PCIeLink(index int) (PCIeLink, error) {
	dev, err := handle(index)
	if err != nil {
		return PCIeLink{}, err
	}

	gen, ret := dev.GetCurrPcieLinkGeneration()
	if ret != nvml.SUCCESS {
		return PCIeLink{}, mapReturn("pcie_link_gen", ret)
	}
	width, ret := dev.GetCurrPcieLinkWidth()
	if ret != nvml.SUCCESS {
		return PCIeLink{}, mapReturn("pcie_link_width", ret)
	}
	maxGen, ret := dev.GetMaxPcieLinkGeneration()
	if ret != nvml.SUCCESS {
		return PCIeLink{}, mapReturn("pcie_max_link_gen", ret)
	}
	maxWidth, ret := dev.GetMaxPcieLinkWidth()
	if ret != nvml.SUCCESS {
		return PCIeLink{}, mapReturn("pcie_max_link_width", ret)
	}

	return PCIeLink{Gen: gen, Width: width, MaxGen: maxGen, MaxWidth: maxWidth}, nil
}

func (n *nvmlAPI) PerformanceState(index int) (int, error) {
	dev, err := handle(index)
	if err != nil {
		return 0, err
	}
	state, ret := dev.GetPerformanceState()
	if ret != nvml.SUCCESS {
		return 0, mapReturn("performance_state", ret)
	}
	return int(state), nil
}

func (n *nvmlAPI) ProcessCount(index int) (int, error) {
	dev, err := handle(index)
	if err != nil {
		return 0, err
	}
	procs, ret := dev.GetComputeRunningProcesses()
	if ret != nvml.SUCCESS {
		return 0, mapReturn("process_count", ret)
	}
	return len(procs), nil
}

func (n *nvmlAPI) ThrottleReasons(index int) (uint64, error) {
	dev, err := handle(index)
	if err != nil {
		return 0, err
	}
	mask, ret := dev.GetCurrentClocksThrottleReasons()
	if ret != nvml.SUCCESS {
		return 0, mapReturn("throttle_reasons", ret)
	}
	return mask, nil
}

func (n *nvmlAPI) ECCCounts(index int) (ECCCounts, error) {
	dev, err := handle(index)
	if err != nil {
		return ECCCounts{}, err
	}

	var counts ECCCounts

	sbe, ret := dev.GetTotalEccErrors(nvml.MEMORY_ERROR_TYPE_CORRECTED, nvml.VOLATILE_ECC)
	if ret != nvml.SUCCESS {
		return ECCCounts{}, mapReturn("ecc_volatile_sbe", ret)
	}
	counts.VolatileSingleBit = sbe

	dbe, ret := dev.GetTotalEccErrors(nvml.MEMORY_ERROR_TYPE_UNCORRECTED, nvml.VOLATILE_ECC)
	if ret != nvml.SUCCESS {
		return ECCCounts{}, mapReturn("ecc_volatile_dbe", ret)
	}
	counts.VolatileDoubleBit = dbe

	if agg, ret := dev.GetTotalEccErrors(nvml.MEMORY_ERROR_TYPE_CORRECTED, nvml.AGGREGATE_ECC); ret == nvml.SUCCESS {
		counts.AggregateSingleBit = agg
	}
	if agg, ret := dev.GetTotalEccErrors(nvml.MEMORY_ERROR_TYPE_UNCORRECTED, nvml.AGGREGATE_ECC); ret == nvml.SUCCESS {
		counts.AggregateDoubleBit = agg
	}

	if pages, ret := dev.GetRetiredPages(nvml.PAGE_RETIREMENT_CAUSE_MULTIPLE_SINGLE_BIT_ECC_ERRORS); ret == nvml.SUCCESS {
		counts.RetiredPagesSingleBit = uint64(len(pages))
	}
	if pages, ret := dev.GetRetiredPages(nvml.PAGE_RETIREMENT_CAUSE_DOUBLE_BIT_ECC_ERROR); ret == nvml.SUCCESS {
		counts.RetiredPagesDoubleBit = uint64(len(pages))
	}

	return counts, nil
}

func (n *nvmlAPI) PCIeReplayCounter(index int) (uint64, error) {
	dev, err := handle(index)
	if err != nil {
		return 0, err
	}
	replays, ret := dev.GetPcieReplayCounter()
	if ret != nvml.SUCCESS {
		return 0, mapReturn("pcie_replay_counter", ret)
	}
	return uint64(replays), nil
}

func (n *nvmlAPI) PeerAccessSupported(a, b int) (bool, error) {
	devA, err := handle(a)
	if err != nil {
		return false, err
	}
	devB, err := handle(b)
	if err != nil {
		return false, err
	}

	status, ret := nvml.DeviceGetP2PStatus(devA, devB, nvml.P2P_CAPS_INDEX_READ)
	if ret != nvml.SUCCESS {
		return false, mapReturn("p2p_status", ret)
	}
	return status == nvml.P2P_STATUS_OK, nil
}
