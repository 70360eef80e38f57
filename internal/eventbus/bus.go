// Package eventbus provides the process-wide event transport consumed by the
// plugin host and the render pipeline (spec §6, "Event bus (consumed, not
// defined here)"). The render pipeline's Manager publishes job lifecycle
// topics on it when one is configured (render.started, render.stage,
// render.completed, render.failed, render.cancelled); progress updates
// travel only over the job's progress channel. The plugin host does not
// publish on it: it delivers events to plugins directly (plugin.HandleEvent
// and the per-instance event channel). The bus lets a host process (a GUI
// shell, a CLI watcher) observe render jobs without being wired into the
// pipeline directly.
package eventbus

import "context"

// Message is an opaque event payload published on a topic.
type Message any

// Subscriber receives messages published to the topic it was created for.
type Subscriber interface {
	// C returns a read-only message channel. The channel is closed when the
	// subscriber is closed.
	C() <-chan Message
	// Close unsubscribes and releases the channel.
	Close() error
}

// Bus is the event transport abstraction. The only implementation today is
// the in-memory bus; a durable/cross-process bus is a future extension.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
}
