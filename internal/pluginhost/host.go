// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pluginhost

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veditcore/engine/internal/enginerr"
	"github.com/veditcore/engine/internal/log"
	"github.com/veditcore/engine/internal/metrics"
)

const eventChannelBuffer = 32

// Host owns every loaded plugin instance, routes commands and events to
// them, and exposes the lifecycle operations of §4.2. The registry is an
// exclusive writer; lookups are read-locked and the plugin's own methods
// are always invoked without the registry lock held.
type Host struct {
	appVersion Version
	services   ServiceLocator
	registry   *Registry
	sandboxes  *SandboxManager

	mu      sync.RWMutex
	handles map[PluginId]*Handle
}

// New returns a Host backed by registry, with services handed to every
// loaded plugin's Context.
func New(appVersion Version, registry *Registry, services ServiceLocator) *Host {
	return &Host{
		appVersion: appVersion,
		services:   services,
		registry:   registry,
		sandboxes:  NewSandboxManager(),
		handles:    make(map[PluginId]*Handle),
	}
}

// Load instantiates id via its registered factory, allocates its sandbox,
// invokes Initialize, and transitions it to Active. It refuses if id is
// already loaded or unregistered; an Initialize failure fires the fail
// transition and the handle is dropped rather than left in Loaded.
func (h *Host) Load(ctx context.Context, id PluginId, perms Permissions, workDirs WorkingDirectories) (InstanceId, error) {
	h.mu.Lock()
	if _, exists := h.handles[id]; exists {
		h.mu.Unlock()
		return "", enginerr.PluginError(string(id), "already loaded")
	}
	h.mu.Unlock()

	reg, ok := h.registry.lookup(id)
	if !ok {
		return "", enginerr.PluginError(string(id), "not registered")
	}

	instance := NewInstanceId()
	plugin := reg.factory()
	sandbox := h.sandboxes.Create(id, perms)

	eventCh := make(chan Event, eventChannelBuffer)
	pctx := &Context{
		InstanceID:         instance,
		AppVersion:         h.appVersion,
		EventChannel:       eventCh,
		Services:           h.services,
		Permissions:        perms,
		WorkingDirectories: workDirs,
	}

	handle, err := newHandle(id, instance, plugin, pctx, eventCh)
	if err != nil {
		h.sandboxes.Remove(id)
		return "", fmt.Errorf("pluginhost: building state machine for %s: %w", id, err)
	}

	if err := plugin.Initialize(ctx, pctx); err != nil {
		_, _ = handle.fire(ctx, evFail)
		h.sandboxes.Remove(id)
		metrics.RecordPluginTransition(string(StateLoaded), string(StateFailed))
		return "", enginerr.PluginError(string(id), fmt.Sprintf("initialize failed: %v", err))
	}

	if _, err := handle.fire(ctx, evInitialized); err != nil {
		h.sandboxes.Remove(id)
		return "", fmt.Errorf("pluginhost: %w", err)
	}
	metrics.RecordPluginTransition(string(StateLoaded), string(StateActive))

	h.mu.Lock()
	h.handles[id] = handle
	h.mu.Unlock()
	metrics.SetPluginsLoaded(h.loadedCount())

	log.WithComponent("pluginhost").Info().
		Str("plugin_id", string(id)).
		Str("instance_id", string(instance)).
		Msg("plugin loaded")

	h.dispatchLocally(ctx, Event{Kind: EventPluginLoaded, Payload: id})

	return instance, nil
}

// Unload transitions a loaded plugin through Stopping to Stopped, invokes
// Shutdown, releases its sandbox and drops the handle. It fails if id is
// not currently loaded.
func (h *Host) Unload(ctx context.Context, id PluginId) error {
	handle, ok := h.handleFor(id)
	if !ok {
		return enginerr.PluginError(string(id), "not loaded")
	}

	from := handle.state()
	if _, err := handle.fire(ctx, evUnload); err != nil {
		return fmt.Errorf("pluginhost: %w", err)
	}
	metrics.RecordPluginTransition(string(from), string(StateStopping))

	shutdownErr := handle.Plugin.Shutdown(ctx)
	if shutdownErr != nil {
		if _, err := handle.fire(ctx, evFail); err != nil {
			log.WithComponent("pluginhost").Warn().Err(err).Str("plugin_id", string(id)).Msg("failed to mark plugin failed after shutdown error")
		}
		metrics.RecordPluginTransition(string(StateStopping), string(StateFailed))
	} else if _, err := handle.fire(ctx, evShutdown); err != nil {
		return fmt.Errorf("pluginhost: %w", err)
	} else {
		metrics.RecordPluginTransition(string(StateStopping), string(StateStopped))
	}

	h.mu.Lock()
	delete(h.handles, id)
	h.mu.Unlock()
	h.sandboxes.Remove(id)
	metrics.SetPluginsLoaded(h.loadedCount())

	log.WithComponent("pluginhost").Info().Str("plugin_id", string(id)).Msg("plugin unloaded")
	h.dispatchLocally(ctx, Event{Kind: EventPluginUnloaded, Payload: id})

	if shutdownErr != nil {
		return enginerr.PluginError(string(id), fmt.Sprintf("shutdown failed: %v", shutdownErr))
	}
	return nil
}

// SendCommand routes cmd to id's plugin.handle_command, rejecting if the
// plugin is not Active. A Suspended plugin is reported distinctly from any
// other non-active state, per §4.2.
func (h *Host) SendCommand(ctx context.Context, id PluginId, cmd Command) (Response, error) {
	handle, ok := h.handleFor(id)
	if !ok {
		return Response{}, enginerr.PluginError(string(id), "not loaded")
	}

	switch state := handle.state(); state {
	case StateActive:
		// fallthrough to dispatch below
	case StateSuspended:
		return Response{}, enginerr.PluginError(string(id), "plugin is suspended")
	default:
		return Response{}, enginerr.PluginError(string(id), fmt.Sprintf("plugin is not active (state=%s)", state))
	}

	if sb, ok := h.sandboxes.Get(id); ok {
		if err := sb.CheckRate(); err != nil {
			return Response{}, enginerr.PluginError(string(id), err.Error())
		}
	}

	start := time.Now()
	resp, err := handle.Plugin.HandleCommand(ctx, cmd)
	metrics.RecordPluginCommand(string(id), time.Since(start).Seconds(), err)
	return resp, err
}

// DispatchEvent invokes handle_event on every Active plugin whose
// subscription set contains event.Kind or the All sentinel. Dispatch is
// sequential per plugin but parallel across plugins; a failing plugin is
// logged and does not block the others. Suspended plugins are silently
// skipped.
func (h *Host) DispatchEvent(ctx context.Context, event Event) {
	h.dispatchLocally(ctx, event)
}

func (h *Host) dispatchLocally(ctx context.Context, event Event) {
	h.mu.RLock()
	targets := make([]*Handle, 0, len(h.handles))
	for _, handle := range h.handles {
		targets = append(targets, handle)
	}
	h.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, handle := range targets {
		handle := handle
		if handle.state() != StateActive {
			continue
		}
		subs := handle.Plugin.SubscribedEvents()
		_, all := subs[EventAll]
		if _, ok := subs[event.Kind]; !ok && !all {
			continue
		}
		g.Go(func() error {
			select {
			case handle.eventSink() <- event:
			default:
			}
			if err := handle.Plugin.HandleEvent(gctx, event); err != nil {
				metrics.RecordPluginEventError(string(handle.ID), string(event.Kind))
				log.WithComponent("pluginhost").Warn().
					Err(err).
					Str("plugin_id", string(handle.ID)).
					Str("event", string(event.Kind)).
					Msg("plugin event handler failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Suspend transitions id from Active to Suspended and invokes plugin.Suspend.
func (h *Host) Suspend(ctx context.Context, id PluginId) error {
	handle, ok := h.handleFor(id)
	if !ok {
		return enginerr.PluginError(string(id), "not loaded")
	}
	if _, err := handle.fire(ctx, evSuspend); err != nil {
		return fmt.Errorf("pluginhost: %w", err)
	}
	metrics.RecordPluginTransition(string(StateActive), string(StateSuspended))
	return handle.Plugin.Suspend(ctx)
}

// Resume transitions id from Suspended back to Active and invokes
// plugin.Resume.
func (h *Host) Resume(ctx context.Context, id PluginId) error {
	handle, ok := h.handleFor(id)
	if !ok {
		return enginerr.PluginError(string(id), "not loaded")
	}
	if _, err := handle.fire(ctx, evResume); err != nil {
		return fmt.Errorf("pluginhost: %w", err)
	}
	metrics.RecordPluginTransition(string(StateSuspended), string(StateActive))
	return handle.Plugin.Resume(ctx)
}

// ListLoaded returns a snapshot of every currently loaded plugin's id and
// state.
func (h *Host) ListLoaded() []Info {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Info, 0, len(h.handles))
	for id, handle := range h.handles {
		out = append(out, Info{
			ID:       id,
			Instance: handle.InstanceID,
			Metadata: handle.Plugin.Metadata(),
			State:    handle.state(),
			LoadedAt: handle.LoadedAt,
		})
	}
	return out
}

// GetInfo returns id's metadata and current state.
func (h *Host) GetInfo(id PluginId) (Info, bool) {
	handle, ok := h.handleFor(id)
	if !ok {
		return Info{}, false
	}
	return Info{
		ID:       id,
		Instance: handle.InstanceID,
		Metadata: handle.Plugin.Metadata(),
		State:    handle.state(),
		LoadedAt: handle.LoadedAt,
	}, true
}

// SandboxStats returns id's current resource ledger.
func (h *Host) SandboxStats(id PluginId) (SandboxStats, bool) {
	sb, ok := h.sandboxes.Get(id)
	if !ok {
		return SandboxStats{}, false
	}
	return sb.Stats(), true
}

func (h *Host) handleFor(id PluginId) (*Handle, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handle, ok := h.handles[id]
	return handle, ok
}

func (h *Host) loadedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handles)
}
