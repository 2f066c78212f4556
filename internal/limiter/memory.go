package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Memory is an in-process limiter used when no database is configured.
// Counters are lost on restart.
type Memory struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	cfg     Settings
	entries map[string]*memEntry
}

type memEntry struct {
	fails        int
	updatedAt    time.Time
	blockedUntil time.Time
}

// NewMemory constructs an in-memory limiter. A nil clock means the real clock.
func NewMemory(clock clockwork.Clock, cfg Settings) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{clock: clock, cfg: cfg.withDefaults(), entries: map[string]*memEntry{}}
}

func memKey(scope string, ipHash []byte) string { return scope + "\x00" + string(ipHash) }

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, scope string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[memKey(scope, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if now := m.clock.Now(); e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success implements Limiter.
func (m *Memory) Success(_ context.Context, scope string, ipHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, memKey(scope, ipHash))
	return nil
}

// Failure implements Limiter.
func (m *Memory) Failure(_ context.Context, scope string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	k := memKey(scope, ipHash)
	e, ok := m.entries[k]
	if !ok || now.Sub(e.updatedAt) > m.cfg.Window {
		e = &memEntry{}
		m.entries[k] = e
	}
	e.fails++
	e.updatedAt = now
	if e.fails < m.cfg.MaxFails {
		return false, 0, nil
	}
	e.blockedUntil = now.Add(m.cfg.BlockFor)
	return true, m.cfg.BlockFor, nil
}
