package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryLease is the in-process lease set used when Redis is not configured. It only
// protects against overlapping passes inside one process.
type MemoryLease struct {
	leases map[string]time.Time
	now    func() time.Time
	mu     sync.Mutex
}

func NewMemoryLease() *MemoryLease {
	return &MemoryLease{
		leases: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (m *MemoryLease) AcquireLease(_ context.Context, sourceID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expires, ok := m.leases[sourceID]; ok && now.Before(expires) {
		return false, nil
	}

	m.leases[sourceID] = now.Add(ttl)
	return true, nil
}

func (m *MemoryLease) ReleaseLease(_ context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.leases, sourceID)
	return nil
}

func (m *MemoryLease) IsLeased(_ context.Context, sourceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expires, ok := m.leases[sourceID]
	return ok && m.now().Before(expires), nil
}
