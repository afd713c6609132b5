package protocol

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Sniff phase codes sent to the controller as the odorant trigger phase.
const (
	PhaseInhalation = 0
	PhaseExhalation = 1
)

// StimulusSpec is the configuration-file form of one stimulus. Ids are not
// configurable; the catalog assigns them.
type StimulusSpec struct {
	Category    Category     `yaml:"category"`
	Description string       `yaml:"description"`
	Odors       []OdorSource `yaml:"odors"`
	Flows       []FlowPair   `yaml:"flows"`
	Pulses      []LightPulse `yaml:"pulses"`
}

// Params holds every session-level setting. Durations are plain milliseconds
// so that parameter files read in the same units the controller uses.
type Params struct {
	BlockSize     int  `yaml:"block_size"`
	BlockMode     bool `yaml:"block_mode"`
	WarmupTrials  int  `yaml:"warmup_trials"`
	SlidingWindow int  `yaml:"sliding_window"`
	StreamWindow  int  `yaml:"stream_window"`
	LickChannels  int  `yaml:"lick_channels"`
	InvertSniff   bool `yaml:"invert_sniff"`
	MaxRewards    int  `yaml:"max_rewards"`

	FinalValveDurationMs int    `yaml:"final_valve_duration_ms"`
	TrialDurationMs      int    `yaml:"trial_duration_ms"`
	LickGracePeriodMs    int    `yaml:"lick_grace_period_ms"`
	MaxNoSniffTimeMs     int    `yaml:"max_no_sniff_time_ms"`
	ITIBoundsMs          [2]int `yaml:"iti_bounds_ms"`
	PenaltyITIBoundsMs   [2]int `yaml:"penalty_iti_bounds_ms"`
	PreStageLeadMs       int    `yaml:"pre_stage_lead_ms"`
	OdorTriggerPhase     string `yaml:"odor_trigger_phase"`

	MaxTrialDurationMs int `yaml:"max_trial_duration_ms"`
	CleanDurationMs    int `yaml:"clean_duration_ms"`
	MaxCleanRounds     int `yaml:"max_clean_rounds"`
	MaxRecoveryCycles  int `yaml:"max_recovery_cycles"`
	GapCeiling         int `yaml:"gap_ceiling"`

	Stimuli []StimulusSpec `yaml:"stimuli"`
}

// DefaultParams returns the rig's stock protocol: a pinene Go stimulus with
// two light channels against an ethyl tiglate No-Go stimulus.
func DefaultParams() Params {
	return Params{
		BlockSize:     20,
		BlockMode:     true,
		WarmupTrials:  10,
		SlidingWindow: 10,
		StreamWindow:  5000,
		LickChannels:  2,
		InvertSniff:   true,
		MaxRewards:    400,

		FinalValveDurationMs: 500,
		TrialDurationMs:      2500,
		LickGracePeriodMs:    200,
		MaxNoSniffTimeMs:     1200,
		ITIBoundsMs:          [2]int{8000, 10000},
		PenaltyITIBoundsMs:   [2]int{12000, 15000},
		PreStageLeadMs:       1500,
		OdorTriggerPhase:     "inhalation",

		MaxTrialDurationMs: 30000,
		CleanDurationMs:    2000,
		MaxCleanRounds:     20,
		MaxRecoveryCycles:  20,
		GapCeiling:         1000,

		Stimuli: []StimulusSpec{
			{
				Category:    CategoryOdorOn,
				Description: "Odorant stimulus",
				Odors:       []OdorSource{{Device: 0, Vial: 5, Odorant: "pinene", Concentration: 0.01}},
				Flows:       []FlowPair{{Air: 0, Nitrogen: 0}},
				Pulses: []LightPulse{
					{Amplitude: 1500, DurationUs: 10000, Latency: 25, Channel: 1, Count: 1, Spacing: 500},
					{Amplitude: 1500, DurationUs: 10000, Latency: 25, Channel: 2, Count: 1, Spacing: 500},
				},
			},
			{
				Category:    CategoryOdorOff,
				Description: "No odorant stimulus",
				Odors:       []OdorSource{{Device: 0, Vial: 4, Odorant: "ethyl_tiglate", Concentration: 0.01}},
				Flows:       []FlowPair{{Air: 0, Nitrogen: 0}},
			},
		},
	}
}

// LoadParams reads a YAML parameter file over the defaults, so a file only
// needs to state what it changes.
func LoadParams(path string) (Params, error) {
	p := DefaultParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("read params: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Params{}, fmt.Errorf("parse params: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// PhaseCode maps the configured odorant trigger phase to its controller code.
func (p Params) PhaseCode() (int, error) {
	switch p.OdorTriggerPhase {
	case "inhalation", "":
		return PhaseInhalation, nil
	case "exhalation":
		return PhaseExhalation, nil
	default:
		return 0, fmt.Errorf("unknown odor trigger phase %q", p.OdorTriggerPhase)
	}
}

// Validate rejects parameter sets that cannot start a session.
func (p Params) Validate() error {
	if p.BlockSize <= 0 {
		return fmt.Errorf("block_size must be positive, got %d", p.BlockSize)
	}
	if p.SlidingWindow <= 0 {
		return fmt.Errorf("sliding_window must be positive, got %d", p.SlidingWindow)
	}
	if p.StreamWindow <= 0 {
		return fmt.Errorf("stream_window must be positive, got %d", p.StreamWindow)
	}
	if p.LickChannels < 0 {
		return fmt.Errorf("lick_channels must not be negative, got %d", p.LickChannels)
	}
	if p.ITIBoundsMs[0] > p.ITIBoundsMs[1] {
		return fmt.Errorf("iti_bounds_ms out of order: %v", p.ITIBoundsMs)
	}
	if p.PenaltyITIBoundsMs[0] > p.PenaltyITIBoundsMs[1] {
		return fmt.Errorf("penalty_iti_bounds_ms out of order: %v", p.PenaltyITIBoundsMs)
	}
	if _, err := p.PhaseCode(); err != nil {
		return err
	}
	if len(p.Stimuli) == 0 {
		return fmt.Errorf("no stimuli configured: %w", ErrEmptyCatalog)
	}
	for i, spec := range p.Stimuli {
		if !spec.Category.Valid() {
			return fmt.Errorf("stimulus %d: unknown category %q", i, spec.Category)
		}
	}
	if p.WarmupTrials > 0 {
		present := false
		for _, spec := range p.Stimuli {
			if spec.Category == CategoryOdorOn {
				present = true
				break
			}
		}
		if !present {
			return fmt.Errorf("warm-up requires a %s stimulus: %w", CategoryOdorOn, ErrEmptyCatalog)
		}
	}
	return nil
}
