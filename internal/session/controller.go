package session

import (
	"log/slog"
	"time"

	"gonogo-host/internal/protocol"
)

// Controller is the outbound port to the acquisition hardware. Calls are
// made from the session's serialized loop and must return quickly; slow
// transports belong behind their own queue.
type Controller interface {
	StartAcquisition() error
	StopAcquisition() error
	PauseAcquisition() error
	ResumeAcquisition() error

	// StageTrial ships the parameters the controller runs the next trial
	// with.
	StageTrial(cmd protocol.TrialCommand) error

	// PreStageStimulus tells the controller to start routing a stimulus
	// (e.g. open an odor vial) ahead of the trial so it is stable at
	// trial start.
	PreStageStimulus(s *protocol.Stimulus) error

	// Clean runs a cleaning cycle of the given duration on the delivery
	// path.
	Clean(d time.Duration) error
}

// LogController is the default Controller: it logs every command and
// succeeds. The real transport lives outside this service.
type LogController struct {
	log *slog.Logger
}

func NewLogController(log *slog.Logger) *LogController {
	return &LogController{log: log}
}

func (c *LogController) StartAcquisition() error {
	c.log.Info("controller: start acquisition")
	return nil
}

func (c *LogController) StopAcquisition() error {
	c.log.Info("controller: stop acquisition")
	return nil
}

func (c *LogController) PauseAcquisition() error {
	c.log.Info("controller: pause acquisition")
	return nil
}

func (c *LogController) ResumeAcquisition() error {
	c.log.Info("controller: resume acquisition")
	return nil
}

func (c *LogController) StageTrial(cmd protocol.TrialCommand) error {
	c.log.Info("controller: stage trial",
		"trial_number", cmd.TrialNumber,
		"iti_ms", cmd.InterTrialInterval,
		"stimulus_id", cmd.StimulusID)
	return nil
}

func (c *LogController) PreStageStimulus(s *protocol.Stimulus) error {
	c.log.Info("controller: pre-stage stimulus", "stimulus_id", s.ID, "category", s.Category)
	return nil
}

func (c *LogController) Clean(d time.Duration) error {
	c.log.Info("controller: clean", "duration", d)
	return nil
}
