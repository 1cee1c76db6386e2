// Package hub is the request/response and push transport between the
// replication engine and the relay.
package hub

import (
	"context"

	"github.com/zeusync/replica/internal/core/events/bus"
	"github.com/zeusync/replica/internal/core/protocol/codec"
)

// Callback receives the reply of one invocation. It runs exactly once,
// possibly on a transport goroutine.
type Callback func(reply codec.Node, err error)

// Handler receives the arguments of one pushed notification.
type Handler func(args codec.Node)

// Hub is the transport contract the engine depends on. Invoke never blocks
// waiting for the reply.
type Hub interface {
	Invoke(ctx context.Context, method Method, args codec.Node, cb Callback)
	Send(ctx context.Context, method Method, args codec.Node) error
	// On subscribes to a pushed method and returns the unsubscribe func.
	On(method Method, handler Handler) (unsubscribe func())
	State() ConnectionState
	Headers() map[string]string
	Close() error
}

type ConnectionState uint8

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// subscribe binds handler to the pushes named after method on b.
func subscribe(b bus.EventBus, method Method, handler Handler) func() {
	sub, err := b.Subscribe(method.String(), func(e bus.Event) error {
		handler(e.Payload)
		return nil
	})
	if err != nil {
		return func() {}
	}
	return func() { _ = sub.Cancel() }
}

func copyHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
