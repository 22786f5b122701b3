package cache

import (
	"context"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/decision"
)

// Memory is an in-process VerdictCache used in tests and single-instance
// deployments without Redis. Expired entries are evicted lazily on read.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     decision.Decision
	expiresAt time.Time
}

var _ VerdictCache = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, fingerprint string) (decision.Decision, bool, error) {
	key := verdictKey(fingerprint)

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return decision.Decision{}, false, nil
	}
	if m.now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return decision.Decision{}, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Put(_ context.Context, fingerprint string, d decision.Decision, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[verdictKey(fingerprint)] = memoryEntry{
		value:     d,
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// Len reports the number of live entries, expired included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
