// Package health derives per-device and system verdicts from telemetry.
// Verdict rules are escalation-only: a device starts healthy and each finding
// can only raise the verdict, so rule ordering never masks a worse condition.
package health

import (
	"fmt"
	"strings"

	"github.com/gpusentry/gpusentry/pkg/model"
)

// Thresholds are the tunable limits the evaluator judges against.
type Thresholds struct {
	TemperatureWarnCelsius     float64
	TemperatureCritCelsius     float64
	TemperatureShutdownCelsius float64
	PowerRatioCrit             float64
}

// DefaultThresholds returns the stock limits for consumer and datacenter
// parts: warn at 80C, degrade above 90C, critical at 95C, and degrade when
// sustained draw exceeds 98% of the enforced power limit.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TemperatureWarnCelsius:     80,
		TemperatureCritCelsius:     90,
		TemperatureShutdownCelsius: 95,
		PowerRatioCrit:             0.98,
	}
}

// Evaluator stamps verdicts onto device statuses. It keeps per-device ECC
// history across cycles to turn cumulative counters into deltas; it is not
// safe for concurrent use and is driven by the single cycle goroutine.
type Evaluator struct {
	thresholds Thresholds

	// prevDBE is the last observed aggregate double-bit count per UUID.
	prevDBE map[string]uint64
}

// NewEvaluator creates an Evaluator with the given thresholds.
func NewEvaluator(t Thresholds) *Evaluator {
	return &Evaluator{
		thresholds: t,
		prevDBE:    make(map[string]uint64),
	}
}

// Evaluate stamps Verdict, Conditions, and Recommendations on every status
// in place and returns the system verdict: the maximum over devices, or
// critical when the device set is empty, since a host that should have
// accelerators and sees none is the worst finding of all.
func (e *Evaluator) Evaluate(devices []model.DeviceStatus) model.HealthVerdict {
	if len(devices) == 0 {
		return model.Critical
	}
	system := model.Healthy
	for i := range devices {
		e.EvaluateDevice(&devices[i])
		system = model.MaxVerdict(system, devices[i].Verdict)
	}
	return system
}

// EvaluateDevice derives one device's verdict from its scrape.
func (e *Evaluator) EvaluateDevice(status *model.DeviceStatus) {
	verdict := model.Healthy
	var conditions, recommendations []string

	escalate := func(v model.HealthVerdict, condition, recommendation string) {
		verdict = model.MaxVerdict(verdict, v)
		conditions = append(conditions, condition)
		recommendations = append(recommendations, recommendation)
	}

	if status.Unreachable {
		escalate(model.Critical,
			"CRITICAL: device unreachable",
			"check driver and bus state; the scrape retries next cycle")
		status.Verdict = verdict
		status.Conditions = conditions
		status.Recommendations = recommendations
		return
	}

	t := e.thresholds

	if temp := status.Sample.TemperatureGPUCelsius; temp != nil {
		switch {
		case *temp >= t.TemperatureShutdownCelsius:
			escalate(model.Critical,
				fmt.Sprintf("CRITICAL: temperature %.0fC at or above shutdown threshold %.0fC", *temp, t.TemperatureShutdownCelsius),
				"halt workloads on this device immediately")
		case *temp > t.TemperatureCritCelsius:
			escalate(model.Degraded,
				fmt.Sprintf("DEGRADED: temperature %.0fC above critical threshold %.0fC", *temp, t.TemperatureCritCelsius),
				"reduce sustained load and inspect cooling")
		case *temp > t.TemperatureWarnCelsius:
			escalate(model.Warning,
				fmt.Sprintf("WARNING: temperature %.0fC above warning threshold %.0fC", *temp, t.TemperatureWarnCelsius),
				"check airflow and ambient temperature")
		}
	}

	if status.Throttle.Has(model.ThrottleHWThermal) {
		escalate(model.Critical,
			"CRITICAL: hardware thermal slowdown engaged",
			"halt workloads and inspect cooling before resuming")
	} else if status.Throttle.ActiveBeyondBenign() {
		escalate(model.Warning,
			fmt.Sprintf("WARNING: clock throttling active (%s)", reasonList(status.Throttle)),
			"investigate power and thermal headroom")
	}

	if delta := e.dbeDelta(status.Device.UUID, status.ECC.AggregateDoubleBit); delta > 0 {
		escalate(model.Degraded,
			fmt.Sprintf("DEGRADED: double-bit ECC delta +%d", delta),
			"schedule the device for memory diagnostics")
	}

	if draw, limit := status.Sample.PowerDrawWatts, status.Sample.PowerLimitWatts; draw != nil && limit != nil && *limit > 0 {
		if ratio := *draw / *limit; ratio > t.PowerRatioCrit {
			escalate(model.Degraded,
				fmt.Sprintf("DEGRADED: power draw %.0fW is %.1f%% of the %.0fW limit", *draw, ratio*100, *limit),
				"review the power cap or reduce workload intensity")
		}
	}

	status.Verdict = verdict
	status.Conditions = conditions
	status.Recommendations = recommendations
}

// dbeDelta converts the cumulative double-bit counter into a per-cycle delta.
// The first observation of a device is the baseline and yields zero; a
// counter that went backwards means the device was reset, which also
// re-baselines at zero.
func (e *Evaluator) dbeDelta(uuid string, current *uint64) uint64 {
	if current == nil {
		return 0
	}
	prev, seen := e.prevDBE[uuid]
	e.prevDBE[uuid] = *current
	if !seen || *current < prev {
		return 0
	}
	return *current - prev
}

func reasonList(t model.ThrottleState) string {
	names := make([]string, 0, len(t.Reasons))
	for _, r := range t.Reasons {
		if r == model.ThrottleIdle || r == model.ThrottleAppClocks {
			continue
		}
		names = append(names, string(r))
	}
	return strings.Join(names, ", ")
}
