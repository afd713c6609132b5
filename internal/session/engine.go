package session

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"gonogo-host/internal/platform/metrics"
	"gonogo-host/internal/protocol"
	"gonogo-host/internal/stream"
)

// State is a session's lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

var (
	ErrSessionStopped    = errors.New("session is stopped")
	ErrSessionRunning    = errors.New("session is already running")
	ErrSessionNotRunning = errors.New("session is not running")
	ErrInvalidOutcome    = errors.New("invalid outcome code")
)

// resumeDelay is how long recovery waits before resuming acquisition.
const resumeDelay = time.Second

// Unresolved condition labels surfaced in the session snapshot once a
// bounded recovery gives up.
const (
	conditionSignalLoss     = "signal_loss"
	conditionStalledResults = "stalled_results"
)

// Engine runs one session. Every mutation happens on a single goroutine:
// external calls and timer callbacks are dispatched as closures onto the
// calls channel, so results, packets, lifecycle changes and snapshots are
// strictly serialized.
type Engine struct {
	id      string
	params  protocol.Params
	log     *slog.Logger
	metrics *metrics.Metrics
	clock   Clock
	ctrl    Controller
	rng     *rand.Rand

	pipeline  *protocol.Pipeline
	timing    protocol.Timing
	tracker   *protocol.Tracker
	aligner   *stream.Aligner
	phaseCode int

	calls chan func()
	done  chan struct{}

	state State
	// generation invalidates timers scheduled before a stop or restart.
	generation int

	// resultsAt is the host time the last result arrived, the stalled
	// result watchdog's stopwatch.
	resultsAt time.Time
	// paramsSentAt is the host time the scheduled trial's parameters
	// shipped, one leg of the round-trip estimate.
	paramsSentAt time.Time

	cleanRounds    int
	recoveryCycles int
	clampedOffsets int
	unresolved     []string
}

// New builds a session engine and starts its loop. The engine is idle
// until Start.
func New(id string, params protocol.Params, ctrl Controller, clock Clock, log *slog.Logger, m *metrics.Metrics) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	phase, err := params.PhaseCode()
	if err != nil {
		return nil, err
	}
	log = log.With("session_id", id)
	rng := rand.New(rand.NewSource(clock.Now().UnixNano()))

	cat, err := protocol.NewCatalog(params.Stimuli)
	if err != nil {
		return nil, err
	}
	pipeline, err := protocol.NewPipeline(cat, params, rng, log)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		id:        id,
		params:    params,
		log:       log,
		metrics:   m,
		clock:     clock,
		ctrl:      ctrl,
		rng:       rng,
		pipeline:  pipeline,
		timing:    protocol.NewTiming(params),
		tracker:   protocol.NewTracker(params.SlidingWindow),
		phaseCode: phase,
		aligner: stream.New(stream.Config{
			Window:       params.StreamWindow,
			LickChannels: params.LickChannels,
			GapCeiling:   int64(params.GapCeiling),
			InvertSniff:  params.InvertSniff,
		}, log),
		calls: make(chan func(), 64),
		done:  make(chan struct{}),
		state: StateIdle,
	}
	go e.run()
	return e, nil
}

// ID returns the session's identifier.
func (e *Engine) ID() string { return e.id }

func (e *Engine) run() {
	for {
		select {
		case fn := <-e.calls:
			fn()
		case <-e.done:
			return
		}
	}
}

// dispatch queues fn on the session loop without waiting for it.
func (e *Engine) dispatch(fn func()) {
	select {
	case e.calls <- fn:
	case <-e.done:
	}
}

// call runs fn on the session loop and waits for its result.
func (e *Engine) call(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case e.calls <- func() { errc <- fn() }:
	case <-e.done:
		return ErrSessionStopped
	}
	select {
	case err := <-errc:
		return err
	case <-e.done:
		return ErrSessionStopped
	}
}

// Close shuts the session loop down, stopping the session first if it is
// still live. The manager calls it exactly once, on removal.
func (e *Engine) Close() {
	e.call(func() error {
		if e.state == StateRunning || e.state == StatePaused {
			e.stop("removed")
		}
		return nil
	})
	close(e.done)
}

// Start resets the session state and begins acquisition. Starting a
// stopped session runs it again from trial one.
func (e *Engine) Start() error {
	return e.call(func() error {
		if e.state == StateRunning || e.state == StatePaused {
			return ErrSessionRunning
		}
		if err := e.rebuildPipeline(); err != nil {
			return err
		}
		e.tracker.Reset()
		e.aligner.Reset()
		e.cleanRounds = 0
		e.recoveryCycles = 0
		e.clampedOffsets = 0
		e.unresolved = nil
		e.generation++
		e.state = StateRunning
		e.resultsAt = e.clock.Now()
		if err := e.ctrl.StartAcquisition(); err != nil {
			e.log.Error("start acquisition", "error", err)
		}
		e.stageScheduled()
		e.metrics.IncSessionsStarted()
		e.log.Info("session started", "scheduled_trial", e.pipeline.Scheduled().Number)
		return nil
	})
}

// Pause suspends acquisition without losing session state.
func (e *Engine) Pause() error {
	return e.call(func() error {
		if e.state == StateStopped {
			return ErrSessionStopped
		}
		if e.state != StateRunning {
			return ErrSessionNotRunning
		}
		e.state = StatePaused
		if err := e.ctrl.PauseAcquisition(); err != nil {
			e.log.Error("pause acquisition", "error", err)
		}
		e.log.Info("session paused", "scheduled_trial", e.pipeline.Scheduled().Number)
		return nil
	})
}

// Resume restarts acquisition and re-stages the scheduled trial's
// parameters, since any timer that fired during the pause was dropped.
func (e *Engine) Resume() error {
	return e.call(func() error {
		if e.state == StateStopped {
			return ErrSessionStopped
		}
		if e.state != StatePaused {
			return ErrSessionNotRunning
		}
		e.state = StateRunning
		e.resultsAt = e.clock.Now()
		if err := e.ctrl.ResumeAcquisition(); err != nil {
			e.log.Error("resume acquisition", "error", err)
		}
		e.stageScheduled()
		e.log.Info("session resumed", "scheduled_trial", e.pipeline.Scheduled().Number)
		return nil
	})
}

// Stop ends the session. Buffers and counters stay readable until the
// session is removed.
func (e *Engine) Stop() error {
	return e.call(func() error {
		if e.state == StateStopped {
			return ErrSessionStopped
		}
		if e.state == StateIdle {
			return ErrSessionNotRunning
		}
		e.stop("operator")
		return nil
	})
}

func (e *Engine) stop(reason string) {
	e.generation++
	e.state = StateStopped
	if err := e.ctrl.StopAcquisition(); err != nil {
		e.log.Error("stop acquisition", "error", err)
	}
	e.metrics.IncSessionsStopped()
	e.log.Info("session stopped",
		"reason", reason,
		"trials", e.tracker.Trials(),
		"rewards", e.tracker.Rewards(),
		"lost_samples", e.aligner.Lost(),
		"sync_losses", e.aligner.SyncLosses(),
		"recovery_cycles", e.recoveryCycles)
}

// HandleResult scores one finished trial and schedules the next one.
func (e *Engine) HandleResult(res protocol.Result) error {
	return e.call(func() error {
		if e.state == StateStopped {
			return ErrSessionStopped
		}
		if e.state != StateRunning {
			return ErrSessionNotRunning
		}
		if !res.Outcome.Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidOutcome, res.Outcome)
		}
		e.processResult(res)
		return nil
	})
}

func (e *Engine) processResult(res protocol.Result) {
	now := e.clock.Now()
	hostElapsed := now.Sub(e.paramsSentAt)
	e.resultsAt = now

	trial := e.pipeline.Scheduled()
	e.pipeline.RecordResult(res.ParametersReceived, res.TrialStart, res.TrialEnd)
	e.aligner.AdvanceTo(res.TrialEnd)
	if res.MarkerTime != 0 {
		e.aligner.MarkStimulus(res.MarkerTime, markerLevel(trial))
	}
	e.aligner.MarkTrial(res.TrialStart, res.TrialEnd)

	if res.SniffLoss && e.params.MaxNoSniffTimeMs > 0 {
		e.beginCleanCycle()
	}

	e.tracker.Record(trial.Category, res.Outcome)
	e.metrics.IncTrialsScored()
	e.log.Info("trial scored",
		"trial_number", trial.Number,
		"category", trial.Category,
		"outcome", res.Outcome.String(),
		"rewards", e.tracker.Rewards())

	if res.Outcome == protocol.OutcomeHit {
		e.metrics.IncRewards()
		if e.tracker.Rewards() >= e.params.MaxRewards {
			e.log.Info("reward limit reached", "rewards", e.tracker.Rewards())
			e.stop("reward limit")
			return
		}
	}

	iti := e.timing.SampleITI(res.Outcome, e.rng)
	if err := e.pipeline.Advance(); err != nil {
		e.log.Error("advance pipeline", "error", err)
		e.stop("pipeline failure")
		return
	}
	e.pipeline.SetScheduledITI(iti)

	controllerElapsed := time.Duration(res.TrialEnd-res.ParametersReceived) * time.Millisecond
	plan := e.timing.NextStimulusOffset(iti, hostElapsed, controllerElapsed)
	if plan.Clamped {
		e.clampedOffsets++
		e.metrics.IncOffsetClamps()
		e.log.Warn("next stimulus offset clamped to fallback",
			"iti", iti,
			"host_elapsed", hostElapsed,
			"controller_elapsed", controllerElapsed)
	}

	next := e.pipeline.Scheduled()
	e.after(plan.PreStage, func() {
		if err := e.ctrl.PreStageStimulus(next.Stimulus); err != nil {
			e.log.Error("pre-stage stimulus", "error", err)
		}
	})
	e.after(plan.TrialStart, e.stageScheduled)
}

// HandlePacket aligns one stream packet and runs the stalled-result
// watchdog. Packets are accepted while paused so the buffers keep tracking
// the controller clock.
func (e *Engine) HandlePacket(p stream.Packet) error {
	return e.call(func() error {
		if e.state == StateStopped {
			return ErrSessionStopped
		}
		if e.state == StateIdle {
			return ErrSessionNotRunning
		}
		r := e.aligner.Ingest(p)
		if r.Lost > 0 {
			e.metrics.AddLostSamples(r.Lost)
		}
		if r.Stale {
			e.metrics.IncStalePackets()
		}
		if r.Unsynced {
			e.metrics.IncSyncLosses()
		}
		e.checkStalledResults()
		return nil
	})
}

// stageScheduled ships the scheduled trial's parameters and records the
// send time used for the round-trip estimate.
func (e *Engine) stageScheduled() {
	trial := e.pipeline.Scheduled()
	if err := e.ctrl.StageTrial(trial.Command(e.phaseCode)); err != nil {
		e.log.Error("stage trial", "trial_number", trial.Number, "error", err)
	}
	e.paramsSentAt = e.clock.Now()
}

// beginCleanCycle pauses acquisition, runs a cleaning pass on the delivery
// path, and resumes shortly after. Rounds beyond the configured limit stop
// recovering and surface as an unresolved condition instead.
func (e *Engine) beginCleanCycle() {
	if e.cleanRounds >= e.params.MaxCleanRounds {
		e.markUnresolved(conditionSignalLoss)
		e.log.Error("sniff signal loss persists beyond clean limit", "rounds", e.cleanRounds)
		return
	}
	e.cleanRounds++
	e.metrics.IncCleanCycles()
	e.log.Warn("sniff signal lost, cleaning", "round", e.cleanRounds)
	if err := e.ctrl.PauseAcquisition(); err != nil {
		e.log.Error("pause acquisition", "error", err)
	}
	if err := e.ctrl.Clean(time.Duration(e.params.CleanDurationMs) * time.Millisecond); err != nil {
		e.log.Error("clean", "error", err)
	}
	e.after(resumeDelay, func() {
		if err := e.ctrl.ResumeAcquisition(); err != nil {
			e.log.Error("resume acquisition", "error", err)
		}
	})
}

// checkStalledResults recovers a result channel that went quiet for longer
// than the trial ceiling: pause, resume a moment later, and re-stage the
// scheduled trial. Cycles beyond the configured limit surface as an
// unresolved condition.
func (e *Engine) checkStalledResults() {
	if e.state != StateRunning || e.pipeline.Scheduled().Number <= 1 {
		return
	}
	ceiling := time.Duration(e.params.MaxTrialDurationMs) * time.Millisecond
	if e.clock.Now().Sub(e.resultsAt) <= ceiling {
		return
	}
	e.resultsAt = e.clock.Now()
	if e.recoveryCycles >= e.params.MaxRecoveryCycles {
		e.markUnresolved(conditionStalledResults)
		e.log.Error("results stalled beyond recovery limit", "cycles", e.recoveryCycles)
		return
	}
	e.recoveryCycles++
	e.metrics.IncRecoveryCycles()
	e.log.Warn("no result within trial ceiling, recovering", "cycle", e.recoveryCycles)
	if err := e.ctrl.PauseAcquisition(); err != nil {
		e.log.Error("pause acquisition", "error", err)
	}
	e.after(resumeDelay, func() {
		if err := e.ctrl.ResumeAcquisition(); err != nil {
			e.log.Error("resume acquisition", "error", err)
		}
		e.stageScheduled()
	})
}

// after schedules fn on the session loop. The generation and state guard
// makes a timer that outlives a stop, restart or pause a no-op.
func (e *Engine) after(d time.Duration, fn func()) {
	gen := e.generation
	e.clock.AfterFunc(d, func() {
		e.dispatch(func() {
			if e.generation != gen || e.state != StateRunning {
				return
			}
			fn()
		})
	})
}

func (e *Engine) rebuildPipeline() error {
	cat, err := protocol.NewCatalog(e.params.Stimuli)
	if err != nil {
		return err
	}
	pipeline, err := protocol.NewPipeline(cat, e.params, e.rng, e.log)
	if err != nil {
		return err
	}
	e.pipeline = pipeline
	return nil
}

func (e *Engine) markUnresolved(cond string) {
	for _, c := range e.unresolved {
		if c == cond {
			return
		}
	}
	e.unresolved = append(e.unresolved, cond)
}

// markerLevel is the trace level for the trial's light pulse, its first
// pulse amplitude when one is configured.
func markerLevel(trial protocol.TrialState) float64 {
	if trial.Stimulus != nil && len(trial.Stimulus.Pulses) > 0 {
		return float64(trial.Stimulus.Pulses[0].Amplitude)
	}
	return 1
}
