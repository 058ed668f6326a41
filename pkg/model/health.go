package model

import (
	"encoding/json"
	"fmt"
)

// HealthVerdict is an ordered severity scale. Higher is worse; the system
// verdict is the maximum over all per-device verdicts.
type HealthVerdict int

const (
	Healthy HealthVerdict = iota
	Warning
	Degraded
	Critical
)

var verdictNames = map[HealthVerdict]string{
	Healthy:  "healthy",
	Warning:  "warning",
	Degraded: "degraded",
	Critical: "critical",
}

// String returns the lowercase verdict name.
func (v HealthVerdict) String() string {
	if s, ok := verdictNames[v]; ok {
		return s
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// MarshalJSON encodes the verdict as its string name.
func (v HealthVerdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON decodes a verdict from its string name.
func (v *HealthVerdict) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseVerdict(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseVerdict converts a verdict name to its ordinal form.
func ParseVerdict(s string) (HealthVerdict, error) {
	for v, name := range verdictNames {
		if name == s {
			return v, nil
		}
	}
	return Healthy, fmt.Errorf("unknown health verdict %q", s)
}

// MaxVerdict returns the worse of a and b.
func MaxVerdict(a, b HealthVerdict) HealthVerdict {
	if b > a {
		return b
	}
	return a
}

// ThrottleReason names a single hardware clock-throttling condition.
type ThrottleReason string

const (
	ThrottleIdle         ThrottleReason = "idle"
	ThrottleAppClocks    ThrottleReason = "application_clocks"
	ThrottleSWPowerCap   ThrottleReason = "sw_power_cap"
	ThrottleHWSlowdown   ThrottleReason = "hw_slowdown"
	ThrottleSyncBoost    ThrottleReason = "sync_boost"
	ThrottleSWThermal    ThrottleReason = "thermal"
	ThrottleHWThermal    ThrottleReason = "hw_thermal"
	ThrottleHWPowerBrake ThrottleReason = "hw_power_brake"
)

// ThrottleState is the decoded set of independently-true throttle reasons.
// A nil Reasons slice with Available=false means the throttle bitfield could
// not be read this scrape; an empty slice means the device is unthrottled.
type ThrottleState struct {
	Available bool             `json:"available"`
	Reasons   []ThrottleReason `json:"reasons,omitempty"`
}

// Has reports whether the given reason is active.
func (t ThrottleState) Has(r ThrottleReason) bool {
	for _, have := range t.Reasons {
		if have == r {
			return true
		}
	}
	return false
}

// ActiveBeyondBenign reports whether any reason other than the benign
// idle/application-clocks pair is set.
func (t ThrottleState) ActiveBeyondBenign() bool {
	for _, r := range t.Reasons {
		if r != ThrottleIdle && r != ThrottleAppClocks {
			return true
		}
	}
	return false
}
