// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pluginhost

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlugin is a minimal Plugin used across the test suite. Every hook is
// overridable so individual tests can inject failures or observe calls.
type fakePlugin struct {
	meta Metadata
	subs map[EventKind]struct{}

	mu          sync.Mutex
	commands    []Command
	events      []Event
	initErr     error
	shutdownErr error
	commandErr  error
}

func newFakePlugin(id PluginId, subs ...EventKind) *fakePlugin {
	set := make(map[EventKind]struct{}, len(subs))
	for _, s := range subs {
		set[s] = struct{}{}
	}
	return &fakePlugin{
		meta: Metadata{ID: id, Name: string(id), Kind: KindUniversal},
		subs: set,
	}
}

func (p *fakePlugin) Metadata() Metadata { return p.meta }

func (p *fakePlugin) Initialize(ctx context.Context, pctx *Context) error { return p.initErr }

func (p *fakePlugin) Shutdown(ctx context.Context) error { return p.shutdownErr }

func (p *fakePlugin) HandleCommand(ctx context.Context, cmd Command) (Response, error) {
	p.mu.Lock()
	p.commands = append(p.commands, cmd)
	p.mu.Unlock()
	if p.commandErr != nil {
		return Response{}, p.commandErr
	}
	return Response{Payload: cmd.Name + ":ok"}, nil
}

func (p *fakePlugin) HandleEvent(ctx context.Context, event Event) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

func (p *fakePlugin) Suspend(ctx context.Context) error { return nil }
func (p *fakePlugin) Resume(ctx context.Context) error  { return nil }

func (p *fakePlugin) SubscribedEvents() map[EventKind]struct{} { return p.subs }

func (p *fakePlugin) receivedEvents() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

func newTestHost(t *testing.T) (*Host, *Registry) {
	t.Helper()
	reg := NewRegistry()
	h := New(Version{Major: 1}, reg, nil)
	return h, reg
}

func TestHost_DoubleLoadRejected(t *testing.T) {
	h, reg := newTestHost(t)
	require.NoError(t, reg.Register(Metadata{ID: "p1"}, func() Plugin { return newFakePlugin("p1") }))

	ctx := context.Background()
	_, err := h.Load(ctx, "p1", Permissions{}, WorkingDirectories{})
	require.NoError(t, err)

	_, err = h.Load(ctx, "p1", Permissions{}, WorkingDirectories{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already loaded")

	assert.Len(t, h.ListLoaded(), 1)
}

func TestHost_SuspensionGating(t *testing.T) {
	h, reg := newTestHost(t)
	require.NoError(t, reg.Register(Metadata{ID: "p1"}, func() Plugin { return newFakePlugin("p1") }))

	ctx := context.Background()
	_, err := h.Load(ctx, "p1", Permissions{}, WorkingDirectories{})
	require.NoError(t, err)

	info, ok := h.GetInfo("p1")
	require.True(t, ok)
	assert.Equal(t, StateActive, info.State)

	require.NoError(t, h.Suspend(ctx, "p1"))
	info, _ = h.GetInfo("p1")
	assert.Equal(t, StateSuspended, info.State)

	_, err = h.SendCommand(ctx, "p1", Command{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suspended")

	require.NoError(t, h.Resume(ctx, "p1"))
	info, _ = h.GetInfo("p1")
	assert.Equal(t, StateActive, info.State)

	resp, err := h.SendCommand(ctx, "p1", Command{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, "x:ok", resp.Payload)
}

func TestHost_EventFilterBySubscription(t *testing.T) {
	h, reg := newTestHost(t)
	p1 := newFakePlugin("p1", EventProjectCreated)
	require.NoError(t, reg.Register(Metadata{ID: "p1"}, func() Plugin { return p1 }))

	ctx := context.Background()
	_, err := h.Load(ctx, "p1", Permissions{}, WorkingDirectories{})
	require.NoError(t, err)

	// Load already fired PluginLoaded; p1 isn't subscribed to it.
	h.DispatchEvent(ctx, Event{Kind: EventProjectCreated})
	h.DispatchEvent(ctx, Event{Kind: EventMediaImported})

	received := p1.receivedEvents()
	var sawCreated, sawImported bool
	for _, e := range received {
		if e.Kind == EventProjectCreated {
			sawCreated = true
		}
		if e.Kind == EventMediaImported {
			sawImported = true
		}
	}
	assert.True(t, sawCreated, "plugin should receive its subscribed event")
	assert.False(t, sawImported, "plugin should not receive an unsubscribed event")
}

func TestHost_SuspendedPluginSkipsDispatch(t *testing.T) {
	h, reg := newTestHost(t)
	p1 := newFakePlugin("p1", EventAll)
	require.NoError(t, reg.Register(Metadata{ID: "p1"}, func() Plugin { return p1 }))

	ctx := context.Background()
	_, err := h.Load(ctx, "p1", Permissions{}, WorkingDirectories{})
	require.NoError(t, err)
	require.NoError(t, h.Suspend(ctx, "p1"))

	before := len(p1.receivedEvents())
	h.DispatchEvent(ctx, Event{Kind: EventProjectCreated})
	after := len(p1.receivedEvents())
	assert.Equal(t, before, after, "suspended plugin must not receive dispatched events")
}

func TestHost_ConcurrentSendCommand(t *testing.T) {
	h, reg := newTestHost(t)
	require.NoError(t, reg.Register(Metadata{ID: "p1"}, func() Plugin { return newFakePlugin("p1") }))

	ctx := context.Background()
	_, err := h.Load(ctx, "p1", Permissions{}, WorkingDirectories{})
	require.NoError(t, err)

	const n = 32
	var wg sync.WaitGroup
	var failures atomic.Int64
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.SendCommand(ctx, "p1", Command{Name: fmt.Sprintf("cmd-%d", i)})
			if err != nil {
				failures.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(0), failures.Load())
}

// TestHost_FullLifecycleScenario mirrors the literal scenario: register
// "p1", load -> Active, suspend -> Suspended, send_command fails
// ("suspended"), resume -> Active, send_command succeeds, unload -> no
// longer listed.
func TestHost_FullLifecycleScenario(t *testing.T) {
	h, reg := newTestHost(t)
	require.NoError(t, reg.Register(Metadata{ID: "p1"}, func() Plugin { return newFakePlugin("p1") }))
	ctx := context.Background()

	_, err := h.Load(ctx, "p1", Permissions{}, WorkingDirectories{})
	require.NoError(t, err)
	info, _ := h.GetInfo("p1")
	require.Equal(t, StateActive, info.State)

	require.NoError(t, h.Suspend(ctx, "p1"))
	info, _ = h.GetInfo("p1")
	require.Equal(t, StateSuspended, info.State)

	_, err = h.SendCommand(ctx, "p1", Command{Name: "x"})
	require.ErrorContains(t, err, "suspended")

	require.NoError(t, h.Resume(ctx, "p1"))
	info, _ = h.GetInfo("p1")
	require.Equal(t, StateActive, info.State)

	_, err = h.SendCommand(ctx, "p1", Command{Name: "x"})
	require.NoError(t, err)

	require.NoError(t, h.Unload(ctx, "p1"))
	_, ok := h.GetInfo("p1")
	require.False(t, ok)
}

func TestHost_UnloadNotLoadedFails(t *testing.T) {
	h, _ := newTestHost(t)
	err := h.Unload(context.Background(), "missing")
	require.Error(t, err)
}

func TestHost_LoadUnregisteredFails(t *testing.T) {
	h, _ := newTestHost(t)
	_, err := h.Load(context.Background(), "missing", Permissions{}, WorkingDirectories{})
	require.Error(t, err)
}

func TestHost_InitializeFailureDoesNotLeaveHandle(t *testing.T) {
	h, reg := newTestHost(t)
	p1 := newFakePlugin("p1")
	p1.initErr = fmt.Errorf("boom")
	require.NoError(t, reg.Register(Metadata{ID: "p1"}, func() Plugin { return p1 }))

	_, err := h.Load(context.Background(), "p1", Permissions{}, WorkingDirectories{})
	require.Error(t, err)
	assert.Len(t, h.ListLoaded(), 0)
	_, ok := h.sandboxes.Get("p1")
	assert.False(t, ok, "sandbox must be released on failed initialize")
}

func TestHost_ReloadAfterUnload(t *testing.T) {
	h, reg := newTestHost(t)
	require.NoError(t, reg.Register(Metadata{ID: "p1"}, func() Plugin { return newFakePlugin("p1") }))
	ctx := context.Background()

	_, err := h.Load(ctx, "p1", Permissions{}, WorkingDirectories{})
	require.NoError(t, err)
	require.NoError(t, h.Unload(ctx, "p1"))

	_, err = h.Load(ctx, "p1", Permissions{}, WorkingDirectories{})
	require.NoError(t, err, "unloading must free the slot for a fresh load")
}

func TestHost_SandboxStatsReflectUsage(t *testing.T) {
	h, reg := newTestHost(t)
	require.NoError(t, reg.Register(Metadata{ID: "p1"}, func() Plugin { return newFakePlugin("p1") }))
	ctx := context.Background()

	_, err := h.Load(ctx, "p1", Permissions{FilesystemPaths: []string{"/tmp/plugins/p1"}}, WorkingDirectories{})
	require.NoError(t, err)

	sb, ok := h.sandboxes.Get("p1")
	require.True(t, ok)
	sb.RecordMemory(1024)
	require.Error(t, sb.CheckPath("/etc/passwd"))

	stats, ok := h.SandboxStats("p1")
	require.True(t, ok)
	assert.Equal(t, int64(1024), stats.MemoryBytesUsed)
	assert.True(t, stats.ViolationFlag)
}

func TestHost_WaitForAsyncUnload(t *testing.T) {
	// Regression guard: Unload must fully settle state before returning so a
	// caller racing Load right after never sees a stale "already loaded".
	h, reg := newTestHost(t)
	require.NoError(t, reg.Register(Metadata{ID: "p1"}, func() Plugin { return newFakePlugin("p1") }))
	ctx := context.Background()

	_, err := h.Load(ctx, "p1", Permissions{}, WorkingDirectories{})
	require.NoError(t, err)
	require.NoError(t, h.Unload(ctx, "p1"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.Load(ctx, "p1", Permissions{}, WorkingDirectories{})
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("load after unload did not complete in time")
	}
}
