// Package cache provides the TTL-bounded result cache behind a small
// Store interface, with an in-memory implementation for single-replica
// deployments and a Redis-backed one for shared deployments.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/clawtrust/engine/internal/trust"
)

// DefaultSweepInterval is how often the background sweeper evicts expired
// entries. The sweep never blocks the request path.
const DefaultSweepInterval = 60 * time.Second

// Store is the result-cache contract used by the pipeline. A miss is
// (nil, false); storage failures degrade to misses.
type Store interface {
	Get(ctx context.Context, key string) (*trust.TrustResult, bool)
	Put(ctx context.Context, key string, result *trust.TrustResult, ttl time.Duration)
	Invalidate(ctx context.Context, key string)
	Clear(ctx context.Context)
	Size(ctx context.Context) int
}

type entry struct {
	result    *trust.TrustResult
	expiresAt time.Time
}

// Memory is the in-process Store. Expired entries are dropped lazily on
// Get and in bulk by the sweeper goroutine.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry

	done    chan struct{}
	stopped sync.Once
}

// NewMemory builds a memory store and starts its sweeper. interval <= 0
// uses DefaultSweepInterval. Callers embedding the store in tests should
// Close it so the sweeper does not keep the process alive.
func NewMemory(interval time.Duration) *Memory {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	m := &Memory{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}
	go m.sweeper(interval)
	return m
}

func (m *Memory) sweeper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.SweepExpired()
		case <-m.done:
			return
		}
	}
}

// Close stops the sweeper. Safe to call more than once.
func (m *Memory) Close() {
	m.stopped.Do(func() { close(m.done) })
}

func (m *Memory) Get(ctx context.Context, key string) (*trust.TrustResult, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		m.Invalidate(ctx, key)
		return nil, false
	}
	return e.result, true
}

func (m *Memory) Put(ctx context.Context, key string, result *trust.TrustResult, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	m.entries[key] = entry{result: result, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
}

func (m *Memory) Invalidate(ctx context.Context, key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

func (m *Memory) Clear(ctx context.Context) {
	m.mu.Lock()
	m.entries = make(map[string]entry)
	m.mu.Unlock()
}

func (m *Memory) Size(ctx context.Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// SweepExpired removes every expired entry and returns how many were
// dropped.
func (m *Memory) SweepExpired() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}
