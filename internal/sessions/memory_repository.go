package sessions

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is a process-local Repository for tests and single
// instance development setups.
type MemoryRepository struct {
	mu  sync.Mutex
	cur map[string]Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{cur: map[string]Session{}}
}

func (m *MemoryRepository) Bump(_ context.Context, s *Session) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := *s
	next.Generation = m.cur[s.UserID].Generation + 1
	m.cur[s.UserID] = next
	return next.Generation, nil
}

func (m *MemoryRepository) Current(_ context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.cur[userID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryRepository) End(_ context.Context, userID string, generation int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.cur[userID]
	if !ok || s.Generation != generation || s.Token == "" {
		return false, nil
	}
	s.Token, s.ExpiresAt = "", time.Time{}
	m.cur[userID] = s
	return true, nil
}
