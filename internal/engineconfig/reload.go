// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engineconfig

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/veditcore/engine/internal/log"
)

// Holder holds configuration with atomic hot-reload. Readers call Get;
// StartWatcher begins watching the backing file for changes and reloads
// on write/create/rename, debounced to absorb editors' tmp+rename saves.
type Holder struct {
	reloadOpMu sync.Mutex
	current    atomic.Pointer[Resolved]
	loader     *Loader
	configPath string
	configDir  string
	configFile string
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger

	listenersMu sync.RWMutex
	listeners   []chan<- Resolved
}

// NewHolder builds a Holder seeded with the result of loader.Load().
func NewHolder(loader *Loader, configPath string) (*Holder, error) {
	h := &Holder{
		loader:     loader,
		configPath: configPath,
		logger:     log.WithComponent("engineconfig"),
	}
	initial, err := loader.Load()
	if err != nil {
		return nil, err
	}
	h.current.Store(&initial)
	return h, nil
}

// Get returns the current resolved configuration.
func (h *Holder) Get() Resolved {
	if cur := h.current.Load(); cur != nil {
		return *cur
	}
	return DefaultResolved()
}

// Reload re-reads and re-validates the config file. On failure the
// previously held configuration is left untouched.
func (h *Holder) Reload(_ context.Context) error {
	h.reloadOpMu.Lock()
	defer h.reloadOpMu.Unlock()

	next, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Str("event", "config.reload_failed").Msg("failed to reload configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	h.current.Store(&next)
	h.logger.Info().Str("event", "config.reload_success").Msg("configuration reloaded")
	h.notifyListeners(next)
	return nil
}

// RegisterListener registers a channel to receive the resolved
// configuration after every successful reload. Sends are non-blocking; a
// full channel skips that notification rather than stalling the reloader.
func (h *Holder) RegisterListener(ch chan<- Resolved) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notifyListeners(cfg Resolved) {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().Str("event", "config.listener_skip").Msg("skipped notifying listener (channel full)")
		}
	}
}

// StartWatcher watches configPath's directory for writes and debounces
// them into a single Reload. A no-op if configPath is empty.
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.configPath == "" {
		h.logger.Info().Str("event", "config.watcher_disabled").Msg("no config path set, hot-reload disabled")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher
	h.configDir = filepath.Dir(h.configPath)
	h.configFile = filepath.Base(h.configPath)

	if err := watcher.Add(h.configDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	h.logger.Info().Str("event", "config.watcher_started").Str("path", h.configPath).Msg("watching config file for changes")
	go h.watchLoop(ctx)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context) {
	const debounceDuration = 500 * time.Millisecond
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str("event", "config.watcher_stopped").Msg("config watcher stopped")
			_ = h.watcher.Close()
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != h.configFile {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDuration, func() {
				if err := h.Reload(ctx); err != nil {
					h.logger.Error().Err(err).Str("event", "config.auto_reload_failed").Msg("automatic config reload failed")
				}
			})

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str("event", "config.watcher_error").Msg("config watcher error")
		}
	}
}

// Stop closes the file watcher, if running.
func (h *Holder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}
