package health

import "github.com/gpusentry/gpusentry/pkg/model"

// Clock-throttle reason bits, matching the driver's clocks-event-reasons
// bitfield. Pinned here rather than taken from the binding so decoded output
// is stable across binding versions.
const (
	throttleBitIdle         uint64 = 0x1
	throttleBitAppClocks    uint64 = 0x2
	throttleBitSWPowerCap   uint64 = 0x4
	throttleBitHWSlowdown   uint64 = 0x8
	throttleBitSyncBoost    uint64 = 0x10
	throttleBitSWThermal    uint64 = 0x20
	throttleBitHWThermal    uint64 = 0x40
	throttleBitHWPowerBrake uint64 = 0x80
)

// throttleBits is ordered by bit position so decoded reasons are stable.
var throttleBits = []struct {
	bit    uint64
	reason model.ThrottleReason
}{
	{throttleBitIdle, model.ThrottleIdle},
	{throttleBitAppClocks, model.ThrottleAppClocks},
	{throttleBitSWPowerCap, model.ThrottleSWPowerCap},
	{throttleBitHWSlowdown, model.ThrottleHWSlowdown},
	{throttleBitSyncBoost, model.ThrottleSyncBoost},
	{throttleBitSWThermal, model.ThrottleSWThermal},
	{throttleBitHWThermal, model.ThrottleHWThermal},
	{throttleBitHWPowerBrake, model.ThrottleHWPowerBrake},
}

// DecodeThrottle expands the raw throttle bitmask into named reasons. A nil
// mask means the bitfield could not be read this scrape and yields an
// unavailable state rather than an unthrottled one.
func DecodeThrottle(mask *uint64) model.ThrottleState {
	if mask == nil {
		return model.ThrottleState{}
	}
	state := model.ThrottleState{Available: true}
	for _, tb := range throttleBits {
		if *mask&tb.bit != 0 {
			state.Reasons = append(state.Reasons, tb.reason)
		}
	}
	return state
}
