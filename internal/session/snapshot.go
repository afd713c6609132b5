package session

import (
	"gonogo-host/internal/protocol"
	"gonogo-host/internal/stream"
)

// SessionSnapshot is the session's state for display and for operator
// tooling. Stream windows are large and served separately.
type SessionSnapshot struct {
	ID             string                       `json:"id"`
	State          State                        `json:"state"`
	Trials         protocol.PipelineSnapshot    `json:"trials"`
	Performance    protocol.PerformanceSnapshot `json:"performance"`
	StreamCursor   int64                        `json:"stream_cursor"`
	LostSamples    int64                        `json:"lost_samples"`
	StalePackets   int64                        `json:"stale_packets"`
	SyncLosses     int64                        `json:"sync_losses"`
	CleanRounds    int                          `json:"clean_rounds"`
	RecoveryCycles int                          `json:"recovery_cycles"`
	ClampedOffsets int                          `json:"clamped_offsets"`
	Unresolved     []string                     `json:"unresolved,omitempty"`
}

// MonitorFrame is one websocket feed frame: the session state plus the
// full stream windows for plotting.
type MonitorFrame struct {
	Session SessionSnapshot `json:"session"`
	Stream  stream.Snapshot `json:"stream"`
}

// Snapshot returns the session's current state.
func (e *Engine) Snapshot() (SessionSnapshot, error) {
	var snap SessionSnapshot
	err := e.call(func() error {
		snap = e.snapshot()
		return nil
	})
	return snap, err
}

// Performance returns the tracker's totals and sliding accuracies.
func (e *Engine) Performance() (protocol.PerformanceSnapshot, error) {
	var snap protocol.PerformanceSnapshot
	err := e.call(func() error {
		snap = e.tracker.Snapshot()
		return nil
	})
	return snap, err
}

// Stream returns a copy of every signal window and the trial mask.
func (e *Engine) Stream() (stream.Snapshot, error) {
	var snap stream.Snapshot
	err := e.call(func() error {
		snap = e.aligner.Snapshot()
		return nil
	})
	return snap, err
}

// Monitor returns the session and stream snapshots in one consistent pass.
func (e *Engine) Monitor() (MonitorFrame, error) {
	var frame MonitorFrame
	err := e.call(func() error {
		frame = MonitorFrame{Session: e.snapshot(), Stream: e.aligner.Snapshot()}
		return nil
	})
	return frame, err
}

func (e *Engine) snapshot() SessionSnapshot {
	return SessionSnapshot{
		ID:             e.id,
		State:          e.state,
		Trials:         e.pipeline.Snapshot(),
		Performance:    e.tracker.Snapshot(),
		StreamCursor:   e.aligner.Cursor(),
		LostSamples:    e.aligner.Lost(),
		StalePackets:   e.aligner.Stale(),
		SyncLosses:     e.aligner.SyncLosses(),
		CleanRounds:    e.cleanRounds,
		RecoveryCycles: e.recoveryCycles,
		ClampedOffsets: e.clampedOffsets,
		Unresolved:     append([]string(nil), e.unresolved...),
	}
}
