// Package eventbus implements the process-local typed publish/subscribe
// facility every other core subsystem is coupled through. Delivery is
// synchronous, in publication order, on the publisher's own goroutine; the
// bus is the sole mutual-exclusion boundary between the plugin registry,
// library manager, and job scheduler.
package eventbus

import "sync"

// Kind identifies an event type carried on the bus.
type Kind string

const (
	LaunchComplete  Kind = "LAUNCH_COMPLETE"
	Shutdown        Kind = "SHUTDOWN"
	RegisterAction  Kind = "REGISTER_ACTION"
	AdmitJob        Kind = "ADMIT_JOB" // host/plugin-initiated admission into the pending table
	RegisterJob     Kind = "REGISTER_JOB" // scheduler's advance() handing an admitted job to the runner
	UnregisterJob   Kind = "UNREGISTER_JOB"
	PublishJob      Kind = "PUBLISH_JOB"
	RegisterMedia   Kind = "REGISTER_MEDIA"
	UpdateMedia     Kind = "UPDATE_MEDIA"
	UnregisterMedia Kind = "UNREGISTER_MEDIA"
)

// Handler receives an event payload. Handlers must not block: the bus
// dispatches synchronously and has no back-pressure mechanism.
type Handler func(payload any)

// Bus is a dispatch table of handler lists keyed by event kind.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[Kind][]Handler)}
}

// Subscribe appends handler to kind's handler list. Each call registers a
// new handler; it is not idempotent by itself, so callers that want
// at-most-once registration (the plugin registry's "currently initializing"
// slot, for instance) must guard that themselves.
func (b *Bus) Subscribe(kind Kind, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], handler)
}

// Publish dispatches payload to every handler subscribed to kind, in
// subscription order, synchronously on the caller's goroutine. Handlers
// registered after Publish returns do not receive this event (no replay).
func (b *Bus) Publish(kind Kind, payload any) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[kind]))
	copy(handlers, b.handlers[kind])
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(payload)
	}
}

// SubscriberCount reports how many handlers are registered for kind, for
// diagnostics and tests.
func (b *Bus) SubscriberCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[kind])
}
