// Package ratelimit throttles requests per client key.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rule allows Limit requests per Window. A zero rule disables limiting.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Enabled reports whether r limits anything.
func (r Rule) Enabled() bool { return r.Limit > 0 && r.Window > 0 }

// Limiter decides whether one more request under key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Memory is a token bucket per key, refilled at Limit per Window with a burst
// of Limit. Keys idle for longer than the idle TTL are dropped.
type Memory struct {
	rule Rule
	idle time.Duration
	now  func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

var _ Limiter = (*Memory)(nil)

const minIdle = 3 * time.Minute

// MemoryOption configures a Memory limiter.
type MemoryOption func(*Memory)

// WithClock overrides the limiter clock. Tests use it to move time forward.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an in-process limiter for rule.
func NewMemory(rule Rule, opts ...MemoryOption) *Memory {
	m := &Memory{
		rule:     rule,
		idle:     max(rule.Window, minIdle),
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastSweep = m.now()
	return m
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	if !m.rule.Enabled() {
		return true, nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) > m.idle {
		m.sweepLocked(now)
	}
	v, ok := m.visitors[key]
	if !ok {
		every := rate.Every(m.rule.Window / time.Duration(m.rule.Limit))
		v = &visitor{limiter: rate.NewLimiter(every, m.rule.Limit)}
		m.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1), nil
}

func (m *Memory) sweepLocked(now time.Time) {
	for key, v := range m.visitors {
		if now.Sub(v.lastSeen) > m.idle {
			delete(m.visitors, key)
		}
	}
	m.lastSweep = now
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.visitors)
}
