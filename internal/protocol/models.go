package protocol

import "time"

// Category classifies a trial by the response it should elicit from the
// subject.
type Category string

const (
	// CategoryOdorOn marks stimulus-present trials: the subject earns a
	// reward by responding.
	CategoryOdorOn Category = "odor_on"
	// CategoryOdorOff marks stimulus-absent trials: the subject must
	// withhold its response.
	CategoryOdorOff Category = "odor_off"
)

// Code returns the numeric category code understood by the controller.
func (c Category) Code() int {
	if c == CategoryOdorOn {
		return 1
	}
	return 0
}

// Valid reports whether c is one of the two known categories.
func (c Category) Valid() bool {
	return c == CategoryOdorOn || c == CategoryOdorOff
}

// Outcome is the controller's scoring of a finished trial. The numeric
// values are the controller's wire codes and must not be renumbered.
type Outcome int

const (
	OutcomeHit              Outcome = 1 // responded on an odor_on trial
	OutcomeCorrectRejection Outcome = 2 // withheld on an odor_off trial
	OutcomeMiss             Outcome = 3 // withheld on an odor_on trial
	OutcomeFalseAlarm       Outcome = 4 // responded on an odor_off trial
)

// Correct reports whether the outcome counts as a correct response.
func (o Outcome) Correct() bool {
	return o == OutcomeHit || o == OutcomeCorrectRejection
}

// Valid reports whether o is one of the four known outcome codes.
func (o Outcome) Valid() bool {
	return o >= OutcomeHit && o <= OutcomeFalseAlarm
}

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeCorrectRejection:
		return "correct_rejection"
	case OutcomeMiss:
		return "miss"
	case OutcomeFalseAlarm:
		return "false_alarm"
	default:
		return "unknown"
	}
}

// OdorSource names one odor vial on one olfactometer device.
type OdorSource struct {
	Device        int     `json:"device" yaml:"device"`
	Vial          int     `json:"vial" yaml:"vial"`
	Odorant       string  `json:"odorant" yaml:"odorant"`
	Concentration float64 `json:"concentration" yaml:"concentration"`
}

// FlowPair is the (air, nitrogen) mass-flow setting for one device, in sccm.
type FlowPair struct {
	Air      float64 `json:"air" yaml:"air"`
	Nitrogen float64 `json:"nitrogen" yaml:"nitrogen"`
}

// LightPulse describes light stimulation on one output channel. Duration is
// in microseconds; Latency (measured from the trigger phase onset) and
// Spacing (off time between pulses when Count > 1) are in milliseconds.
type LightPulse struct {
	Amplitude  int `json:"amplitude" yaml:"amplitude"`
	DurationUs int `json:"duration_us" yaml:"duration_us"`
	Latency    int `json:"latency_ms" yaml:"latency_ms"`
	Channel    int `json:"channel" yaml:"channel"`
	Count      int `json:"count" yaml:"count"`
	Spacing    int `json:"spacing_ms" yaml:"spacing_ms"`
}

// Stimulus is one immutable catalog entry. Stimuli are built once at session
// setup; the id is unique for the life of the catalog and recycled through
// the catalog's free-list when an entry is removed between sessions.
type Stimulus struct {
	ID          int          `json:"id"`
	Category    Category     `json:"category"`
	Odors       []OdorSource `json:"odors"`
	Flows       []FlowPair   `json:"flows"`
	Pulses      []LightPulse `json:"pulses,omitempty"`
	Description string       `json:"description"`
}

// TrialState is the mutable record for one trial. Two instances exist per
// session, scheduled and pending, and both are owned exclusively by the
// Pipeline; other components read copies.
type TrialState struct {
	Number   int
	Stimulus *Stimulus
	Category Category

	FinalValveDuration time.Duration
	TrialDuration      time.Duration
	ITI                time.Duration
	LickGracePeriod    time.Duration
	MaxNoSniffTime     time.Duration

	// Timestamps reported by the controller for this trial, on the
	// controller's millisecond clock.
	ParametersReceived int64
	TrialStart         int64
	TrialEnd           int64
}

// Result is the controller's report for one finished trial.
type Result struct {
	Outcome            Outcome `json:"outcome"`
	ParametersReceived int64   `json:"parameters_received"`
	TrialStart         int64   `json:"trial_start"`
	TrialEnd           int64   `json:"trial_end"`
	SniffLoss          bool    `json:"sniff_loss"`
	// MarkerTime is the absolute sample index at which the light pulse
	// fired, zero when no pulse was delivered.
	MarkerTime int64 `json:"marker_time"`
}

// TrialCommand is the parameter set shipped to the controller ahead of one
// trial. Durations are in controller milliseconds.
type TrialCommand struct {
	TrialNumber        int          `json:"trial_number"`
	CategoryCode       int          `json:"category_code"`
	FinalValveDuration int          `json:"final_valve_duration"`
	TrialDuration      int          `json:"trial_duration"`
	InterTrialInterval int          `json:"inter_trial_interval"`
	LickGracePeriod    int          `json:"lick_grace_period"`
	OdorTriggerPhase   int          `json:"odor_trigger_phase"`
	MaxNoSniffTime     int          `json:"max_no_sniff_time"`
	StimulusID         int          `json:"stimulus_id"`
	Odors              []OdorSource `json:"odors"`
	Flows              []FlowPair   `json:"flows"`
	Pulses             []LightPulse `json:"pulses,omitempty"`
}

// Command packages the trial's parameters for the controller.
// odorTriggerPhase is the sniff phase code gating odorant onset.
func (t *TrialState) Command(odorTriggerPhase int) TrialCommand {
	cmd := TrialCommand{
		TrialNumber:        t.Number,
		CategoryCode:       t.Category.Code(),
		FinalValveDuration: int(t.FinalValveDuration / time.Millisecond),
		TrialDuration:      int(t.TrialDuration / time.Millisecond),
		InterTrialInterval: int(t.ITI / time.Millisecond),
		LickGracePeriod:    int(t.LickGracePeriod / time.Millisecond),
		OdorTriggerPhase:   odorTriggerPhase,
		MaxNoSniffTime:     int(t.MaxNoSniffTime / time.Millisecond),
	}
	if t.Stimulus != nil {
		cmd.StimulusID = t.Stimulus.ID
		cmd.Odors = t.Stimulus.Odors
		cmd.Flows = t.Stimulus.Flows
		cmd.Pulses = t.Stimulus.Pulses
	}
	return cmd
}
