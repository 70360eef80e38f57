// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pluginhost implements the engine's plugin lifecycle manager:
// loading and unloading plugin instances, routing commands to them,
// broadcasting application events, and cooperatively sandboxing each
// instance's declared permissions and resource usage.
package pluginhost

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/veditcore/engine/internal/pipeline/fsm"
)

// PluginId identifies a registered plugin factory, unique within the host.
type PluginId string

// InstanceId is assigned to a plugin the moment it is loaded.
type InstanceId string

// NewInstanceId mints a fresh instance id.
func NewInstanceId() InstanceId {
	return InstanceId(uuid.NewString())
}

// Kind classifies what a plugin does; it is surfaced only through metadata
// and never changes the host's polymorphism over the Plugin interface.
type Kind string

const (
	KindEffect    Kind = "effect"
	KindGenerator Kind = "generator"
	KindAnalyzer  Kind = "analyzer"
	KindUniversal Kind = "universal"
)

// Version is a semver triple.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Metadata describes a plugin independent of any loaded instance.
type Metadata struct {
	ID             PluginId
	Name           string
	Version        Version
	Author         string
	Description    string
	Kind           Kind
	Dependencies   []PluginId
	MinAppVersion  Version
}

// Permissions are granted at load time and immutable for the instance's
// lifetime. The host does not enforce kernel isolation; the instance's
// Sandbox checks FilesystemPaths (Sandbox.CheckPath) and
// MaxCommandsPerSecond (Sandbox.CheckRate) cooperatively. UIAccess,
// ProcessSpawn and Network are recorded but not checked by the host.
type Permissions struct {
	UIAccess        bool
	ProcessSpawn    bool
	Network         bool
	FilesystemPaths []string

	// MaxCommandsPerSecond cooperatively rate-limits handle_command calls
	// for this plugin instance. Zero means unlimited.
	MaxCommandsPerSecond float64
}

// AllowsPath reports whether path is within one of the plugin's granted
// filesystem roots. Sandbox.CheckPath uses it to flag violations.
func (p Permissions) AllowsPath(path string) bool {
	for _, root := range p.FilesystemPaths {
		if withinRoot(root, path) {
			return true
		}
	}
	return false
}

// State is one of the plugin lifecycle states.
type State string

const (
	StateLoaded    State = "Loaded"
	StateActive    State = "Active"
	StateSuspended State = "Suspended"
	StateStopping  State = "Stopping"
	StateStopped   State = "Stopped"
	StateFailed    State = "Failed"
)

// event names fed into the fsm.Machine driving PluginHandle.state.
const (
	evInitialized State = "initialized"
	evSuspend     State = "suspend"
	evResume      State = "resume"
	evUnload      State = "unload"
	evShutdown    State = "shutdown"
	evFail        State = "fail"
)

// EventKind identifies an application-level event routed through
// dispatch_event. All is a distinguished sentinel a plugin may subscribe to
// in place of an explicit set, meaning "every kind".
type EventKind string

const (
	EventAll              EventKind = "*"
	EventProjectCreated   EventKind = "ProjectCreated"
	EventProjectOpened    EventKind = "ProjectOpened"
	EventProjectSaved     EventKind = "ProjectSaved"
	EventProjectClosed    EventKind = "ProjectClosed"
	EventMediaImported    EventKind = "MediaImported"
	EventMediaProcessed   EventKind = "MediaProcessed"
	EventRenderStarted    EventKind = "RenderStarted"
	EventRenderProgress   EventKind = "RenderProgress"
	EventRenderCompleted  EventKind = "RenderCompleted"
	EventRenderFailed     EventKind = "RenderFailed"
	EventPluginLoaded     EventKind = "PluginLoaded"
	EventPluginUnloaded   EventKind = "PluginUnloaded"
)

// Event is a single application-level notification dispatched to plugins.
type Event struct {
	Kind    EventKind
	Payload any
}

// Command is an opaque request routed to a single Active plugin.
type Command struct {
	Name    string
	Payload any
}

// Response is the result of a handled Command.
type Response struct {
	Payload any
}

// ServiceLocator lets a plugin reach host-owned services (cache manager,
// logger) without importing host internals directly.
type ServiceLocator interface {
	Lookup(name string) (any, bool)
}

// Context is handed to a plugin at initialize and retained for its lifetime.
type Context struct {
	InstanceID         InstanceId
	AppVersion         Version
	EventChannel       <-chan Event
	Services           ServiceLocator
	Permissions        Permissions
	WorkingDirectories WorkingDirectories
}

// WorkingDirectories are the temp/cache roots allocated to a plugin instance.
type WorkingDirectories struct {
	Temp  string
	Cache string
}

// Plugin is the capability set every loaded plugin implements. Polymorphism
// is over this interface only; kind variants (Effect/Generator/Analyzer/
// Universal) are surfaced exclusively through Metadata.
type Plugin interface {
	Metadata() Metadata
	Initialize(ctx context.Context, pctx *Context) error
	Shutdown(ctx context.Context) error
	HandleCommand(ctx context.Context, cmd Command) (Response, error)
	HandleEvent(ctx context.Context, event Event) error
	Suspend(ctx context.Context) error
	Resume(ctx context.Context) error
	SubscribedEvents() map[EventKind]struct{}
}

// Factory constructs a fresh Plugin instance for the id it was registered
// under. Dynamic load-from-disk is out of scope; factories are registered
// in-process.
type Factory func() Plugin

// Handle is owned exclusively by the Host; callers only ever see a copy of
// its exported snapshot (Info), never the live struct.
type Handle struct {
	ID         PluginId
	InstanceID InstanceId
	Plugin     Plugin
	Context    *Context
	LoadedAt   time.Time

	machine   *fsm.Machine[State, State]
	eventCh   chan Event
}

func newHandle(id PluginId, instance InstanceId, p Plugin, pctx *Context, eventCh chan Event) (*Handle, error) {
	m, err := fsm.New(StateLoaded, pluginTransitions())
	if err != nil {
		return nil, err
	}
	return &Handle{
		ID:         id,
		InstanceID: instance,
		Plugin:     p,
		Context:    pctx,
		LoadedAt:   time.Now(),
		machine:    m,
		eventCh:    eventCh,
	}, nil
}

// eventSink returns the send side of the channel handed to the plugin as
// Context.EventChannel.
func (h *Handle) eventSink() chan<- Event {
	return h.eventCh
}

func (h *Handle) state() State {
	return h.machine.State()
}

func (h *Handle) fire(ctx context.Context, event State) (State, error) {
	return h.machine.Fire(ctx, event)
}

// Info is the read-only snapshot exposed by list_loaded/get_info.
type Info struct {
	ID       PluginId
	Instance InstanceId
	Metadata Metadata
	State    State
	LoadedAt time.Time
}

// pluginTransitions encodes §3.2's state machine:
//
//	Loaded --initialized--> Active <--resume-- Suspended
//	                           |  --suspend-->     |
//	                           |--unload--> Stopping --shutdown--> Stopped
//
// initialize/shutdown failures fire "fail" from any non-terminal state into
// Failed. The host then drops the handle, so Failed is recorded in the
// transition metric but is not reported by ListLoaded or GetInfo.
func pluginTransitions() []fsm.Transition[State, State] {
	return []fsm.Transition[State, State]{
		{From: StateLoaded, Event: evInitialized, To: StateActive},
		{From: StateLoaded, Event: evFail, To: StateFailed},
		{From: StateActive, Event: evSuspend, To: StateSuspended},
		{From: StateActive, Event: evUnload, To: StateStopping},
		{From: StateActive, Event: evFail, To: StateFailed},
		{From: StateSuspended, Event: evResume, To: StateActive},
		{From: StateSuspended, Event: evUnload, To: StateStopping},
		{From: StateSuspended, Event: evFail, To: StateFailed},
		{From: StateStopping, Event: evShutdown, To: StateStopped},
		{From: StateStopping, Event: evFail, To: StateFailed},
	}
}
