// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"sync"

	"github.com/veditcore/engine/internal/log"
)

// Manager is the cache registry (spec §4.1 CacheManager). Rather than the
// reference implementation's enumerated-downcast registry over a closed
// set of (K,V) shapes, this is the purely type-erased design spec §9's
// design note offers as an alternative: every registration only needs to
// satisfy ClearableCache, so extending the set of cached shapes never
// touches the registry.
type Manager struct {
	mu     sync.RWMutex
	caches map[string]ClearableCache
}

// NewManager constructs an empty registry.
func NewManager() *Manager {
	return &Manager{caches: make(map[string]ClearableCache)}
}

// Register adds a cache to the registry under its own Name(). Registering
// a second cache under the same name replaces the first.
func (m *Manager) Register(c ClearableCache) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches[c.Name()] = c
}

// Unregister removes a cache from the registry by name.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.caches, name)
}

// Get returns the registered cache for name, if any.
func (m *Manager) Get(name string) (ClearableCache, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.caches[name]
	return c, ok
}

// Names returns every registered cache name.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.caches))
	for n := range m.caches {
		names = append(names, n)
	}
	return names
}

// ClearAll clears every registered cache. Safe to call with zero
// registrations. Because the registry is purely erased there is no
// downcast step that can fail (spec §4.1's "downcast failure... logs a
// warning and continues" is vacuous in this design — see DESIGN.md).
func (m *Manager) ClearAll() {
	m.mu.RLock()
	caches := make([]ClearableCache, 0, len(m.caches))
	for _, c := range m.caches {
		caches = append(caches, c)
	}
	m.mu.RUnlock()

	logger := log.WithComponent("cache.manager")
	for _, c := range caches {
		c.Clear()
		logger.Debug().Str("cache", c.Name()).Msg("cleared cache")
	}
}
