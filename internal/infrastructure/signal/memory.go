package signal

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemorySource is an in-process signal source for tests and single-process
// deployments where orchestrator and workers share one binary.
type MemorySource struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewMemorySource creates an in-memory signal source
func NewMemorySource() *MemorySource {
	return &MemorySource{flags: make(map[string]bool)}
}

func memKey(sessionID uuid.UUID, kind Kind) string {
	return string(kind) + ":" + sessionID.String()
}

// StopRequested reports whether a stop flag is set for the session
func (m *MemorySource) StopRequested(_ context.Context, sessionID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags[memKey(sessionID, KindStop)], nil
}

// CancelRequested reports whether a cancel flag is set for the session
func (m *MemorySource) CancelRequested(_ context.Context, sessionID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags[memKey(sessionID, KindCancel)], nil
}

// Request sets the flag for the given signal kind
func (m *MemorySource) Request(_ context.Context, sessionID uuid.UUID, kind Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[memKey(sessionID, kind)] = true
	return nil
}

// Clear removes all flags for the session
func (m *MemorySource) Clear(_ context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flags, memKey(sessionID, KindStop))
	delete(m.flags, memKey(sessionID, KindCancel))
	return nil
}
