// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"sync"
	"time"

	"github.com/veditcore/engine/internal/log"
	"github.com/veditcore/engine/internal/metrics"
)

// Memory is the thread-safe facade over a single-owner Core, per spec
// §4.1's two-layer concurrency design: all mutating operations take the
// write lock, Stats/Len take the read lock, and a background janitor
// sweeps expired entries on a timer using a non-blocking lock attempt —
// if the lock is contended the tick is simply skipped.
type Memory[K comparable, V Sized] struct {
	name string
	cfg  Config

	mu   sync.RWMutex
	core *Core[K, V]

	stopOnce sync.Once
	stopCh   chan struct{}
	stopped  chan struct{}
}

// NewMemory constructs a Memory cache identified by name (used in logs and
// metrics) and starts its background janitor if cfg.CleanupInterval > 0.
func NewMemory[K comparable, V Sized](name string, cfg Config) *Memory[K, V] {
	m := &Memory[K, V]{
		name:    name,
		cfg:     cfg,
		core:    NewCore[K, V](cfg),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go m.runJanitor(cfg.CleanupInterval)
	} else {
		close(m.stopped)
	}
	return m
}

// Name implements ClearableCache.
func (m *Memory[K, V]) Name() string { return m.name }

// Get retrieves key's value, updating access metadata on a hit.
func (m *Memory[K, V]) Get(key K) (V, bool) {
	m.mu.Lock() // Get mutates access-order/stat counters; not a read-only op.
	defer m.mu.Unlock()
	v, ok := m.core.Get(key)
	m.publishGauges()
	if ok {
		metrics.IncCacheHit(m.name)
	} else {
		metrics.IncCacheMiss(m.name)
	}
	return v, ok
}

// Put inserts or replaces key's value.
func (m *Memory[K, V]) Put(key K, value V) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := m.core.Stats().Evictions
	prev, had := m.core.Put(key, value)
	after := m.core.Stats().Evictions
	if after > before {
		metrics.IncCacheEviction(m.name, string(m.cfg.Policy))
	}
	m.publishGauges()
	return prev, had
}

// Remove deletes key's entry, if present.
func (m *Memory[K, V]) Remove(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.core.Remove(key)
	m.publishGauges()
	return v, ok
}

// Clear removes every entry. Implements ClearableCache.
func (m *Memory[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.core.Clear()
	m.publishGauges()
}

// Len returns the number of live entries.
func (m *Memory[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.core.Len()
}

// IsEmpty reports whether the cache holds no entries.
func (m *Memory[K, V]) IsEmpty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.core.IsEmpty()
}

// Stats returns a snapshot of the cache's counters.
func (m *Memory[K, V]) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.core.Stats()
}

// Close stops the background janitor, if running. Safe to call more than
// once and safe to call on a cache with no janitor.
func (m *Memory[K, V]) Close() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	<-m.stopped
}

func (m *Memory[K, V]) publishGauges() {
	s := m.core.Stats()
	metrics.SetCacheGauges(m.name, s.Entries, s.SizeBytes)
}

func (m *Memory[K, V]) runJanitor(interval time.Duration) {
	defer close(m.stopped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := log.WithComponent("cache.janitor")

	for {
		select {
		case <-ticker.C:
			if !m.mu.TryLock() {
				// Lock contended: skip this tick rather than block, per
				// spec §4.1's facade design.
				continue
			}
			removed := m.core.CleanupExpired()
			m.publishGauges()
			m.mu.Unlock()
			if removed > 0 {
				for i := 0; i < removed; i++ {
					metrics.IncCacheExpiredRemoval(m.name)
				}
				logger.Debug().Str("cache", m.name).Int("removed", removed).Msg("janitor swept expired entries")
			}
		case <-m.stopCh:
			return
		}
	}
}
