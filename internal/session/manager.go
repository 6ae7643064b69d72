package session

import (
	"fmt"
	"sync"
)

// Manager owns every live session State keyed by thread id. It is the
// top-level C1 object the dispatcher holds onto.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*State
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*State)}
}

// Initialize implements §4.1's initialize: restore a persisted checkpoint
// for threadID if one exists and resumeFromCheckpoint is true, otherwise
// start fresh with the given mode and workspace.
func (m *Manager) Initialize(threadID, workspace string, mode ModePolicy, resumeFromCheckpoint bool) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if resumeFromCheckpoint {
		restored, err := Restore(threadID)
		if err != nil {
			return nil, fmt.Errorf("restore session %s: %w", threadID, err)
		}
		if restored != nil {
			m.sessions[threadID] = restored
			return restored, nil
		}
	}

	s := NewState(threadID)
	s.Mode = mode
	s.Workspace = workspace
	s.Initialized = true
	m.sessions[threadID] = s
	return s, nil
}

// Get returns the live session for threadID, if any.
func (m *Manager) Get(threadID string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[threadID]
	return s, ok
}

// Drop removes threadID from the registry, e.g. after a fatal ShellDied
// error that the caller has decided not to recover from.
func (m *Manager) Drop(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, threadID)
}
