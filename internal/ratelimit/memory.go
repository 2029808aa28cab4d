package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 256

type window struct {
	count   int64
	expires time.Time
}

// MemoryStore keeps counters in process. Counters are not shared between
// replicas; use RedisStore when more than one server instance runs.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	hits    int
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (m *MemoryStore) Hit(_ context.Context, key string, d time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	m.hits++
	if m.hits%sweepEvery == 0 {
		m.sweep(now)
	}

	w, ok := m.windows[key]
	if !ok || !now.Before(w.expires) {
		w = &window{expires: now.Add(d)}
		m.windows[key] = w
	}
	w.count++

	return w.count, w.expires.Sub(now), nil
}

func (m *MemoryStore) sweep(now time.Time) {
	for key, w := range m.windows {
		if !now.Before(w.expires) {
			delete(m.windows, key)
		}
	}
}

// Len reports how many windows are tracked.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}
