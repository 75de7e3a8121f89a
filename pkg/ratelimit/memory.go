package ratelimit

import (
	"context"
	"sync"
	"time"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

const defaultMaxKeys = 10000

type window struct {
	count int
	end   time.Time
}

// MemoryLimiter keeps counters in process memory. It holds at most MaxKeys
// windows; when full, expired windows are collected before new keys are
// refused.
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryLimiter returns a MemoryLimiter. A nil now uses time.Now.
func NewMemoryLimiter(cfg Config, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = defaultMaxKeys
	}
	return &MemoryLimiter{cfg: cfg, now: now, windows: make(map[string]*window)}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	limit := m.cfg.Limit
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.end) {
		if !ok && len(m.windows) >= m.cfg.MaxKeys {
			m.collect(now)
			if len(m.windows) >= m.cfg.MaxKeys {
				return Decision{}, sserr.Unavailable("ratelimit: limiter capacity exceeded")
			}
		}
		w = &window{end: now.Add(m.cfg.Window)}
		m.windows[key] = w
	}

	if w.count >= limit {
		return Decision{Limit: limit, ResetAt: w.end}, nil
	}
	w.count++
	return Decision{Allowed: true, Limit: limit, Remaining: limit - w.count, ResetAt: w.end}, nil
}

func (m *MemoryLimiter) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.windows, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryLimiter) collect(now time.Time) {
	for key, w := range m.windows {
		if !now.Before(w.end) {
			delete(m.windows, key)
		}
	}
}

var _ Limiter = (*MemoryLimiter)(nil)
