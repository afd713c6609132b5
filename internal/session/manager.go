package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"gonogo-host/internal/platform/metrics"
	"gonogo-host/internal/protocol"
)

var ErrSessionNotFound = errors.New("session not found")

// Manager owns the live sessions. Each session runs its own engine; the
// manager only maps ids to engines.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Engine

	log     *slog.Logger
	metrics *metrics.Metrics
	clock   Clock
}

func NewManager(clock Clock, log *slog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		sessions: make(map[string]*Engine),
		log:      log,
		metrics:  m,
		clock:    clock,
	}
}

// Create builds a new session around the given controller and registers it
// under a fresh id.
func (m *Manager) Create(params protocol.Params, ctrl Controller) (*Engine, error) {
	id := uuid.NewString()
	eng, err := New(id, params, ctrl, m.clock, m.log, m.metrics)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[id] = eng
	m.mu.Unlock()

	m.log.Info("session created", "session_id", id)
	return eng, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Engine, error) {
	m.mu.RLock()
	eng, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return eng, nil
}

// Remove unregisters the session and shuts its loop down.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	eng, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	eng.Close()
	m.log.Info("session removed", "session_id", id)
	return nil
}

// ActiveCount returns how many sessions are registered.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll removes every session, for shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.sessions))
	for id, eng := range m.sessions {
		engines = append(engines, eng)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, eng := range engines {
		eng.Close()
	}
}
