// Package selection tracks each session's working set of chosen samples.
// Selections are ephemeral: they live in memory for the session's lifetime
// and are never persisted to the ledger. Sessions are fully isolated.
package selection

import (
	"sync"
)

// Manager holds per-session ordered selection sets.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*sessionSet
}

type sessionSet struct {
	order   []string
	present map[string]struct{}
}

// NewManager constructs an empty selection manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*sessionSet)}
}

// Add appends a sample id to the session's selection. Adding an id already
// present is a no-op, preserving the original insertion position.
func (m *Manager) Add(sessionID, sampleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.sessions[sessionID]
	if set == nil {
		set = &sessionSet{present: make(map[string]struct{})}
		m.sessions[sessionID] = set
	}
	if _, ok := set.present[sampleID]; ok {
		return
	}
	set.present[sampleID] = struct{}{}
	set.order = append(set.order, sampleID)
}

// Remove drops a sample id from the session's selection. Removing an absent
// id is a no-op.
func (m *Manager) Remove(sessionID, sampleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.sessions[sessionID]
	if set == nil {
		return
	}
	if _, ok := set.present[sampleID]; !ok {
		return
	}
	delete(set.present, sampleID)
	for i, id := range set.order {
		if id == sampleID {
			set.order = append(set.order[:i], set.order[i+1:]...)
			break
		}
	}
}

// Clear empties the session's selection.
func (m *Manager) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// Snapshot returns the session's selected sample ids in insertion order.
// The returned slice is a copy and safe to retain.
func (m *Manager) Snapshot(sessionID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.sessions[sessionID]
	if set == nil {
		return nil
	}
	snapshot := make([]string, len(set.order))
	copy(snapshot, set.order)
	return snapshot
}

// Len returns the number of samples selected by the session.
func (m *Manager) Len(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := m.sessions[sessionID]
	if set == nil {
		return 0
	}
	return len(set.order)
}
