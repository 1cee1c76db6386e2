package bus

import (
	"time"

	"github.com/zeusync/replica/internal/core/protocol/codec"
)

// EventBus is a thread-safe, in-process dispatcher for server-pushed hub
// notifications.
//
// Key characteristics:
// - Name-based fan-out: handlers subscribe by the pushed method name.
// - Synchronous delivery: Publish calls handlers in the caller goroutine.
// - Error aggregation: handler errors are joined and returned from Publish.
// - Optional observability: metrics are produced only when observers are registered.
//
// Handlers should be quick or offload heavy work; the hub read loop
// publishes directly.
type EventBus interface {
	// Publish delivers the event synchronously to every active subscriber of
	// event.Name. If one or more handlers return an error, a joined error is
	// returned.
	Publish(event Event) error
	// Subscribe registers a handler for a pushed method name and returns a
	// Subscription that can be cancelled later.
	Subscribe(name string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels the given Subscription. It is safe to call with nil.
	Unsubscribe(Subscription) error
	// PublishAsync publishes in a separate goroutine. The returned channel
	// receives the joined handler error (or nil) and is then closed.
	PublishAsync(event Event) <-chan error

	// Subscribers returns the number of active subscriptions for name.
	Subscribers(name string) int

	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
	// GetMetrics returns a best-effort snapshot. Metrics are only collected
	// while at least one observer is registered.
	GetMetrics() Metrics
}

// Event is one pushed notification. Treat it as read-only.
type Event struct {
	Name      string
	Source    string
	Timestamp time.Time
	Payload   codec.Node
}

// NewEvent stamps a pushed notification with the current time.
func NewEvent(name, source string, payload codec.Node) Event {
	return Event{Name: name, Source: source, Timestamp: time.Now(), Payload: payload}
}

// EventHandler is invoked per delivered event.
type EventHandler func(event Event) error

// Subscription is a registered handler bound to one event name.
type Subscription interface {
	ID() string
	Name() string
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}

// Observer is notified about deliveries and errors. Observers should return
// quickly.
type Observer interface {
	OnPublish(name string, event Event)
	OnDelivered(name string, handlers int, err error, durationMicros int64)
}

// Metrics is a minimal set of counters, updated only when at least one
// observer is registered.
type Metrics struct {
	Published         uint64
	DeliveredHandlers uint64
	Errors            uint64
	Unhandled         uint64
	SubscribersActive uint64
}
