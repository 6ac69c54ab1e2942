package sessions

import (
	"context"
	"sync"

	"github.com/meridianbank/agentcore/internal/model"
)

// MemoryStore is the default in-memory Store implementation, grounded on
// the teacher's internal/sessions/memory.go map-of-sessions pattern, with
// write serialization delegated to a Locker rather than a single global
// mutex held for the duration of the call.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	locker   *Locker
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*model.Session),
		locker:   NewLocker(DefaultLockTimeout),
	}
}

// Create inserts s, failing with ErrAlreadyExists if s.ID is already live.
func (m *MemoryStore) Create(ctx context.Context, s *model.Session) error {
	if err := m.locker.Lock(ctx, s.ID); err != nil {
		return err
	}
	defer m.locker.Unlock(s.ID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return ErrAlreadyExists
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

// Get returns a deep-enough clone of the session for read-only use. The
// returned value is never the canonical copy, so mutating it has no effect
// on the store; callers that need to mutate must go through Update.
func (m *MemoryStore) Get(ctx context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// Update acquires id's write lock, runs fn against the canonical session,
// and leaves the result in place. fn's error, if any, is returned and the
// session is left as fn last mutated it (partial mutations are not rolled
// back, matching the teacher's non-transactional in-memory store).
func (m *MemoryStore) Update(ctx context.Context, id string, fn func(*model.Session) error) error {
	if err := m.locker.Lock(ctx, id); err != nil {
		return err
	}
	defer m.locker.Unlock(id)

	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return fn(s)
}

// Delete removes id from the store and releases its lock entry.
// Deleting an unknown id is a no-op, matching the idempotent-delete
// resolution of the duplicate-session-init Open Question's sibling case.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := m.locker.Lock(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	m.locker.Unlock(id)
	m.locker.Forget(id)
	return nil
}
