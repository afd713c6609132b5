// Package sim is an in-process stand-in for the acquisition hardware. It
// streams a synthetic respiration trace with occasional licks and answers
// each staged trial with a plausible result, which makes the whole closed
// loop runnable without a rig attached.
package sim

import (
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"gonogo-host/internal/protocol"
	"gonogo-host/internal/stream"
)

// packetInterval is the cadence the hardware reports samples at.
const packetInterval = 100 * time.Millisecond

const lickChannels = 2

// Sink receives the simulator's traffic: the same entry points the HTTP
// layer feeds.
type Sink interface {
	HandlePacket(stream.Packet) error
	HandleResult(protocol.Result) error
}

// Controller simulates the rig. The sample clock runs at 1 kHz and only
// advances while acquisition is running and not paused.
type Controller struct {
	log *slog.Logger

	mu        sync.Mutex
	sink      Sink
	rng       *rand.Rand
	running   bool
	paused    bool
	clockMs   int64
	staged    *protocol.TrialCommand
	stagedAt  int64
	respondAt int64
	stop      chan struct{}
}

func New(log *slog.Logger) *Controller {
	return &Controller{
		log: log,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Bind points the simulator at the session that consumes its traffic. It
// must be called before acquisition starts.
func (c *Controller) Bind(sink Sink) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

func (c *Controller) StartAcquisition() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	c.running = true
	c.paused = false
	c.clockMs = 0
	c.staged = nil
	c.stop = make(chan struct{})
	go c.loop(c.stop)
	c.log.Info("sim: acquisition started")
	return nil
}

func (c *Controller) StopAcquisition() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	close(c.stop)
	c.log.Info("sim: acquisition stopped", "clock_ms", c.clockMs)
	return nil
}

func (c *Controller) PauseAcquisition() error {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
	return nil
}

func (c *Controller) ResumeAcquisition() error {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	return nil
}

// StageTrial accepts the next trial's parameters. The simulated animal
// responds once the trial duration plus a little behavioral latency has
// elapsed on the sample clock.
func (c *Controller) StageTrial(cmd protocol.TrialCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = &cmd
	c.stagedAt = c.clockMs
	c.respondAt = c.clockMs + int64(cmd.TrialDuration) + c.rng.Int63n(500)
	c.log.Debug("sim: trial staged", "trial_number", cmd.TrialNumber, "respond_at", c.respondAt)
	return nil
}

func (c *Controller) PreStageStimulus(s *protocol.Stimulus) error {
	c.log.Debug("sim: stimulus pre-staged", "stimulus_id", s.ID)
	return nil
}

func (c *Controller) Clean(d time.Duration) error {
	c.log.Debug("sim: cleaning", "duration", d)
	return nil
}

func (c *Controller) loop(stop chan struct{}) {
	ticker := time.NewTicker(packetInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if p, ok := c.nextPacket(); ok {
				if err := c.sink.HandlePacket(p); err != nil {
					c.log.Debug("sim: packet rejected", "error", err)
				}
			}
			if res, ok := c.nextResult(); ok {
				if err := c.sink.HandleResult(res); err != nil {
					c.log.Debug("sim: result rejected", "error", err)
				}
			}
		}
	}
}

// nextPacket advances the sample clock by a random packet length and
// renders a sine respiration trace over the covered indexes.
func (c *Controller) nextPacket() (stream.Packet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.sink == nil {
		return stream.Packet{}, false
	}
	n := c.rng.Intn(101)
	if n == 0 {
		return stream.Packet{}, false
	}
	start := c.clockMs
	c.clockMs += int64(n)

	samples := make([]float64, n)
	for i := range samples {
		samples[i] = math.Sin(float64(start+int64(i))/10) * 500
	}
	licks := make([][]int64, lickChannels)
	if c.rng.Intn(10) == 0 {
		licks[0] = []int64{start + c.rng.Int63n(int64(n))}
	}
	return stream.Packet{EndIndex: c.clockMs, Count: n, Sniff: samples, Licks: licks}, true
}

// nextResult reports the staged trial once its response time has passed.
func (c *Controller) nextResult() (protocol.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.sink == nil || c.staged == nil || c.clockMs < c.respondAt {
		return protocol.Result{}, false
	}
	cmd := *c.staged
	c.staged = nil

	trialEnd := c.respondAt
	trialStart := trialEnd - int64(cmd.TrialDuration)
	res := protocol.Result{
		Outcome:            c.outcome(cmd),
		ParametersReceived: c.stagedAt,
		TrialStart:         trialStart,
		TrialEnd:           trialEnd,
		SniffLoss:          c.rng.Intn(50) == 0,
	}
	if len(cmd.Pulses) > 0 {
		res.MarkerTime = trialStart + int64(cmd.Pulses[0].Latency)
	}
	return res, true
}

// outcome draws a category-consistent random outcome: hit or miss on
// stimulus-present trials, correct rejection or false alarm otherwise.
func (c *Controller) outcome(cmd protocol.TrialCommand) protocol.Outcome {
	present := cmd.CategoryCode == protocol.CategoryOdorOn.Code()
	correct := c.rng.Intn(100) < 80
	switch {
	case present && correct:
		return protocol.OutcomeHit
	case present:
		return protocol.OutcomeMiss
	case correct:
		return protocol.OutcomeCorrectRejection
	default:
		return protocol.OutcomeFalseAlarm
	}
}
