package offline

import (
	"sync"

	"whiteboard/internal/domain"
)

// MemoryStore keeps queue state in process memory. It is used for
// ephemeral sessions and in tests.
type MemoryStore struct {
	mu       sync.Mutex
	queues   map[string][]domain.QueuedOperation
	overflow map[string][]domain.QueuedOperation
	states   map[string]*domain.BoardState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queues:   make(map[string][]domain.QueuedOperation),
		overflow: make(map[string][]domain.QueuedOperation),
		states:   make(map[string]*domain.BoardState),
	}
}

func (m *MemoryStore) SaveQueue(sessionID string, items []domain.QueuedOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[sessionID] = append([]domain.QueuedOperation(nil), items...)
	return nil
}

func (m *MemoryStore) LoadQueue(sessionID string) ([]domain.QueuedOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.QueuedOperation(nil), m.queues[sessionID]...), nil
}

func (m *MemoryStore) AppendOverflow(sessionID string, item domain.QueuedOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overflow[sessionID] = append(m.overflow[sessionID], item)
	return nil
}

func (m *MemoryStore) LoadOverflow(sessionID string) ([]domain.QueuedOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.QueuedOperation(nil), m.overflow[sessionID]...), nil
}

func (m *MemoryStore) ClearOverflow(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overflow, sessionID)
	return nil
}

func (m *MemoryStore) SaveState(sessionID string, state *domain.BoardState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.states[sessionID] = &cp
	return nil
}

func (m *MemoryStore) LoadState(sessionID string) (*domain.BoardState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) ClearState(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sessionID)
	return nil
}
