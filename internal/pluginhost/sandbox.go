// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pluginhost

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// withinRoot reports whether path is lexically contained in root, after
// cleaning both. It does not resolve symlinks, so a symlink under root
// that points outside it is still reported as contained.
func withinRoot(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if root == path {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// SandboxStats is the resource ledger tracked for a single plugin instance.
// The host enforces no kernel-level isolation; these counters exist so a
// plugin that calls through the checked wrappers cannot silently exceed its
// declared permissions, and so a misbehaving plugin can be identified.
type SandboxStats struct {
	MemoryBytesUsed int64
	CPUTimeMsUsed   int64
	OpenFiles       int64
	ViolationFlag   bool
}

// Sandbox pairs a plugin's permission grant with its live resource ledger.
type Sandbox struct {
	PluginID    PluginId
	Permissions Permissions

	limiter *rate.Limiter

	mu    sync.Mutex
	stats SandboxStats
}

// CheckRate reports whether the plugin may issue another command right now,
// cooperatively enforcing Permissions.MaxCommandsPerSecond. A zero limit
// means unlimited and always allows. Exceeding the limit flags the
// sandbox — a plugin hammering the host is a violation, not a silent drop.
func (s *Sandbox) CheckRate() error {
	if s.limiter == nil {
		return nil
	}
	if s.limiter.Allow() {
		return nil
	}
	s.Flag()
	return fmt.Errorf("plugin %s: command rate limit exceeded", s.PluginID)
}

// RecordMemory adds delta bytes to the tracked memory usage.
func (s *Sandbox) RecordMemory(delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.MemoryBytesUsed += delta
}

// RecordCPUTime adds delta milliseconds to the tracked CPU time.
func (s *Sandbox) RecordCPUTime(delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.CPUTimeMsUsed += delta
}

// Flag marks the sandbox as having observed a permission violation.
func (s *Sandbox) Flag() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ViolationFlag = true
}

// Stats returns a snapshot of the current ledger.
func (s *Sandbox) Stats() SandboxStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// CheckPath enforces the plugin's granted filesystem roots, flagging the
// sandbox on a violation rather than panicking — cooperative enforcement,
// not a kernel boundary.
func (s *Sandbox) CheckPath(path string) error {
	if s.Permissions.AllowsPath(path) {
		return nil
	}
	s.Flag()
	return fmt.Errorf("plugin %s: path %q outside granted filesystem roots", s.PluginID, path)
}

// SandboxManager owns the sandbox for every currently loaded plugin
// instance.
type SandboxManager struct {
	mu       sync.RWMutex
	sandboxes map[PluginId]*Sandbox
}

// NewSandboxManager returns an empty manager.
func NewSandboxManager() *SandboxManager {
	return &SandboxManager{sandboxes: make(map[PluginId]*Sandbox)}
}

// Create allocates a fresh sandbox for id, replacing any prior one.
func (m *SandboxManager) Create(id PluginId, perms Permissions) *Sandbox {
	m.mu.Lock()
	defer m.mu.Unlock()
	sb := &Sandbox{PluginID: id, Permissions: perms}
	if perms.MaxCommandsPerSecond > 0 {
		sb.limiter = rate.NewLimiter(rate.Limit(perms.MaxCommandsPerSecond), 1)
	}
	m.sandboxes[id] = sb
	return sb
}

// Remove drops id's sandbox.
func (m *SandboxManager) Remove(id PluginId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sandboxes, id)
}

// Get returns id's sandbox, if any.
func (m *SandboxManager) Get(id PluginId) (*Sandbox, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sb, ok := m.sandboxes[id]
	return sb, ok
}

// AllStats returns a snapshot of every tracked sandbox's stats, keyed by
// plugin id.
func (m *SandboxManager) AllStats() map[PluginId]SandboxStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[PluginId]SandboxStats, len(m.sandboxes))
	for id, sb := range m.sandboxes {
		out[id] = sb.Stats()
	}
	return out
}

// GetViolating returns the ids of every sandbox whose ledger currently
// flags a violation.
func (m *SandboxManager) GetViolating() []PluginId {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []PluginId
	for id, sb := range m.sandboxes {
		if sb.Stats().ViolationFlag {
			ids = append(ids, id)
		}
	}
	return ids
}

// ResetViolation clears id's violation flag, if a sandbox exists for it.
func (m *SandboxManager) ResetViolation(id PluginId) {
	m.mu.RLock()
	sb, ok := m.sandboxes[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	sb.mu.Lock()
	sb.stats.ViolationFlag = false
	sb.mu.Unlock()
}
