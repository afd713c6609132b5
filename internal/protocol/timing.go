package protocol

import (
	"math/rand"
	"time"
)

// Fallback delays used when the computed pre-stage offset comes out
// negative, which means the configured lead exceeds the interval left.
const (
	FallbackPreStageDelay   = 20 * time.Millisecond
	FallbackTrialStartDelay = 2 * time.Second
)

// Range is an inclusive [Min, Max] duration interval.
type Range struct {
	Min, Max time.Duration
}

// Sample draws uniformly from the range, millisecond-granular, inclusive of
// both bounds.
func (r Range) Sample(rng *rand.Rand) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	span := (r.Max - r.Min) / time.Millisecond
	return r.Min + time.Duration(rng.Int63n(int64(span)+1))*time.Millisecond
}

// Timing computes per-trial delays: the inter-trial interval and the offsets
// at which the next stimulus is pre-staged and the next trial started.
type Timing struct {
	// Normal is the ITI range for every outcome except a false alarm.
	Normal Range
	// Penalty is the ITI range imposed after a false alarm.
	Penalty Range
	// PreStageLead is how long the odor source must be open before the
	// trial starts, so the odorant reaches the delivery point in time.
	PreStageLead time.Duration
}

// NewTiming builds a Timing from the session parameters.
func NewTiming(p Params) Timing {
	return Timing{
		Normal: Range{
			Min: time.Duration(p.ITIBoundsMs[0]) * time.Millisecond,
			Max: time.Duration(p.ITIBoundsMs[1]) * time.Millisecond,
		},
		Penalty: Range{
			Min: time.Duration(p.PenaltyITIBoundsMs[0]) * time.Millisecond,
			Max: time.Duration(p.PenaltyITIBoundsMs[1]) * time.Millisecond,
		},
		PreStageLead: time.Duration(p.PreStageLeadMs) * time.Millisecond,
	}
}

// SampleITI draws the inter-trial interval for the trial that follows the
// given outcome. A fresh draw happens every trial.
func (t Timing) SampleITI(o Outcome, rng *rand.Rand) time.Duration {
	if o == OutcomeFalseAlarm {
		return t.Penalty.Sample(rng)
	}
	return t.Normal.Sample(rng)
}

// OffsetPlan is the schedule for the next trial: PreStage is the delay until
// the odor source opens, TrialStart the delay until the controller receives
// the next trial's parameters. Clamped reports that the computed pre-stage
// delay was negative and the fallbacks were substituted.
type OffsetPlan struct {
	PreStage   time.Duration
	TrialStart time.Duration
	Clamped    bool
}

// NextStimulusOffset computes when the next stimulus should be pre-staged.
// hostElapsed is the host-clock time between shipping the finished trial's
// parameters and receiving its result; controllerElapsed is the controller's
// own span between receiving those parameters and ending the trial. Their
// difference estimates the round trip, which is taken out of the interval
// along with the pre-stage lead.
func (t Timing) NextStimulusOffset(iti, hostElapsed, controllerElapsed time.Duration) OffsetPlan {
	roundTrip := hostElapsed - controllerElapsed
	preStage := iti - roundTrip - t.PreStageLead
	if preStage < 0 {
		return OffsetPlan{
			PreStage:   FallbackPreStageDelay,
			TrialStart: FallbackTrialStartDelay,
			Clamped:    true,
		}
	}
	return OffsetPlan{
		PreStage:   preStage,
		TrialStart: preStage + t.PreStageLead/2,
	}
}
