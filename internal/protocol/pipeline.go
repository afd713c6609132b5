package protocol

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Pipeline owns the session's two live trials: scheduled, which the
// controller is about to run or has just started, and pending, staged one
// trial ahead of it. Both slots are populated from construction onward, and
// pending's number is always scheduled's plus one.
type Pipeline struct {
	catalog   *Catalog
	blockSize int
	blockMode bool
	warmup    int
	timings   trialTimings
	rng       *rand.Rand
	log       *slog.Logger

	block     []*Stimulus
	scheduled TrialState
	pending   TrialState
}

type trialTimings struct {
	finalValve    time.Duration
	trialDuration time.Duration
	grace         time.Duration
	maxNoSniff    time.Duration
}

// TrialSnapshot is the read-only view of one pipeline slot, carrying what
// the display and outbound parameter packaging need.
type TrialSnapshot struct {
	Number       int      `json:"number"`
	Category     Category `json:"category"`
	StimulusID   int      `json:"stimulus_id"`
	Odorant      string   `json:"odorant"`
	Vial         int      `json:"vial"`
	AirFlow      float64  `json:"air_flow"`
	NitrogenFlow float64  `json:"nitrogen_flow"`
	Description  string   `json:"description"`
}

// PipelineSnapshot is the read-only view of both pipeline slots.
type PipelineSnapshot struct {
	Scheduled TrialSnapshot `json:"scheduled"`
	Pending   TrialSnapshot `json:"pending"`
}

// NewPipeline builds a pipeline with trial 1 scheduled and trial 2 pending.
func NewPipeline(cat *Catalog, params Params, rng *rand.Rand, log *slog.Logger) (*Pipeline, error) {
	p := &Pipeline{
		catalog:   cat,
		blockSize: params.BlockSize,
		blockMode: params.BlockMode,
		warmup:    params.WarmupTrials,
		timings: trialTimings{
			finalValve:    time.Duration(params.FinalValveDurationMs) * time.Millisecond,
			trialDuration: time.Duration(params.TrialDurationMs) * time.Millisecond,
			grace:         time.Duration(params.LickGracePeriodMs) * time.Millisecond,
			maxNoSniff:    time.Duration(params.MaxNoSniffTimeMs) * time.Millisecond,
		},
		rng: rng,
		log: log,
	}
	if err := p.stage(1); err != nil {
		return nil, err
	}
	if err := p.promote(); err != nil {
		return nil, err
	}
	return p, nil
}

// Scheduled returns a copy of the trial the controller runs next.
func (p *Pipeline) Scheduled() TrialState { return p.scheduled }

// Pending returns a copy of the trial staged after the scheduled one.
func (p *Pipeline) Pending() TrialState { return p.pending }

// BlockRemaining returns how many stimuli are left in the live block.
func (p *Pipeline) BlockRemaining() int { return len(p.block) }

// RecordResult stamps the controller's timestamps for the scheduled trial,
// which has just finished.
func (p *Pipeline) RecordResult(parametersReceived, trialStart, trialEnd int64) {
	p.scheduled.ParametersReceived = parametersReceived
	p.scheduled.TrialStart = trialStart
	p.scheduled.TrialEnd = trialEnd
}

// SetScheduledITI stamps the inter-trial interval chosen for the scheduled
// trial, so it ships with that trial's parameters.
func (p *Pipeline) SetScheduledITI(iti time.Duration) {
	p.scheduled.ITI = iti
}

// Advance consumes one trial result: pending becomes scheduled and a new
// pending is staged for the following trial number.
func (p *Pipeline) Advance() error {
	if err := p.promote(); err != nil {
		return err
	}
	return p.stage(p.scheduled.Number + 1)
}

// Snapshot returns read-only views of both slots.
func (p *Pipeline) Snapshot() PipelineSnapshot {
	return PipelineSnapshot{
		Scheduled: trialSnapshot(p.scheduled),
		Pending:   trialSnapshot(p.pending),
	}
}

// promote moves pending into scheduled. The first trial's promotion also
// stages its successor immediately, so the display and the next controller
// command never see an unpopulated pending slot.
func (p *Pipeline) promote() error {
	p.scheduled = p.pending
	if p.scheduled.Number == 1 {
		return p.stage(2)
	}
	return nil
}

// stage resolves a stimulus for trial n and installs it as pending.
func (p *Pipeline) stage(n int) error {
	stim, err := p.resolveStimulus(n)
	if err != nil {
		return fmt.Errorf("stage trial %d: %w", n, err)
	}
	p.pending = TrialState{
		Number:             n,
		Stimulus:           stim,
		Category:           stim.Category,
		FinalValveDuration: p.timings.finalValve,
		TrialDuration:      p.timings.trialDuration,
		LickGracePeriod:    p.timings.grace,
		MaxNoSniffTime:     p.timings.maxNoSniff,
	}
	return nil
}

// resolveStimulus picks the stimulus for trial n: from the live block in
// block mode (regenerating first when empty), uniformly at random otherwise.
// Warm-up trials run the rewarded stimulus whatever the draw produced.
func (p *Pipeline) resolveStimulus(n int) (*Stimulus, error) {
	var s *Stimulus
	if p.blockMode {
		if len(p.block) == 0 {
			if err := p.regenerateBlock(); err != nil {
				return nil, err
			}
		}
		s = p.block[len(p.block)-1]
		p.block = p.block[:len(p.block)-1]
	} else {
		all := p.catalog.All()
		if len(all) == 0 {
			return nil, ErrEmptyCatalog
		}
		s = all[p.rng.Intn(len(all))]
	}

	if p.warmup > 0 && n <= p.warmup {
		present := p.catalog.Present()
		if present == nil {
			return nil, ErrEmptyCatalog
		}
		s = present
	}
	return s, nil
}

// regenerateBlock replaces the empty live block wholesale. The generator is
// seeded with the scheduled trial number, which keeps warm-up blocks sized
// to the trials they still have to cover.
func (p *Pipeline) regenerateBlock() error {
	block, err := GenerateBlock(p.catalog, p.scheduled.Number, p.blockSize, p.warmup, p.rng)
	if err != nil {
		return err
	}
	if n := p.catalog.Len(); n > 0 && p.scheduled.Number >= p.warmup && p.blockSize%n != 0 {
		p.log.Warn("block size is not a multiple of the stimulus set",
			slog.Int("block_size", p.blockSize),
			slog.Int("stimulus_set_size", n),
			slog.Int("generated", len(block)))
	}
	p.block = block
	return nil
}

func trialSnapshot(t TrialState) TrialSnapshot {
	snap := TrialSnapshot{Number: t.Number, Category: t.Category}
	if t.Stimulus != nil {
		snap.StimulusID = t.Stimulus.ID
		snap.Description = t.Stimulus.Description
		if len(t.Stimulus.Odors) > 0 {
			snap.Odorant = t.Stimulus.Odors[0].Odorant
			snap.Vial = t.Stimulus.Odors[0].Vial
		}
		if len(t.Stimulus.Flows) > 0 {
			snap.AirFlow = t.Stimulus.Flows[0].Air
			snap.NitrogenFlow = t.Stimulus.Flows[0].Nitrogen
		}
	}
	return snap
}
