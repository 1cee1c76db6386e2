package hub

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/zeusync/replica/internal/core/events/bus"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/codec"
)

var _ Hub = (*Loopback)(nil)

// Responder plays the relay's side of one method on a Loopback hub.
type Responder func(ctx context.Context, args codec.Node) (codec.Node, error)

// Call is one recorded outbound invocation or send.
type Call struct {
	Method Method
	Args   codec.Node
}

// Loopback is an in-memory hub. Every argument, reply and push goes through
// the CBOR byte encoding, so the receiving side sees the same numeric
// widths it would get from the relay. Replies are delivered synchronously
// from Invoke.
type Loopback struct {
	logger log.Log
	events bus.EventBus

	mu         sync.Mutex
	responders map[Method]Responder
	calls      []Call
	headers    map[string]string
	closed     bool
}

func NewLoopback(logger log.Log, headers map[string]string) *Loopback {
	if logger == nil {
		logger = log.Nop()
	}
	l := &Loopback{
		logger:     logger.With(log.String("component", "loopback_hub")),
		events:     bus.New(),
		responders: make(map[Method]Responder),
		headers:    copyHeaders(headers),
	}
	l.events.AddObserver(bus.LogObserver{Logger: l.logger})
	return l
}

// Handle installs the relay behaviour for method, replacing any earlier one.
func (l *Loopback) Handle(method Method, r Responder) {
	l.mu.Lock()
	l.responders[method] = r
	l.mu.Unlock()
}

func (l *Loopback) Invoke(ctx context.Context, method Method, args codec.Node, cb Callback) {
	reply, err := l.dispatch(ctx, method, args)
	if cb != nil {
		cb(reply, err)
	}
}

func (l *Loopback) Send(ctx context.Context, method Method, args codec.Node) error {
	_, err := l.dispatch(ctx, method, args)
	if errors.Is(err, protocol.ErrUnknownMethod) {
		return nil
	}
	return err
}

func (l *Loopback) dispatch(ctx context.Context, method Method, args codec.Node) (codec.Node, error) {
	wireArgs, err := overWire(args)
	if err != nil {
		return codec.Null(), err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return codec.Null(), protocol.ErrHubClosed
	}
	l.calls = append(l.calls, Call{Method: method, Args: wireArgs})
	responder, ok := l.responders[method]
	l.mu.Unlock()

	if !ok {
		return codec.Null(), errors.Wrapf(protocol.ErrUnknownMethod, "no responder for %s", method)
	}

	reply, err := responder(ctx, wireArgs)
	if err != nil {
		return codec.Null(), errors.Wrap(protocol.ErrInvocationFailed, err.Error())
	}
	return overWire(reply)
}

// Push delivers a server notification to the On handlers.
func (l *Loopback) Push(method Method, args codec.Node) error {
	wireArgs, err := overWire(args)
	if err != nil {
		return err
	}
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return protocol.ErrHubClosed
	}
	return l.events.Publish(bus.NewEvent(method.String(), "loopback", wireArgs))
}

func (l *Loopback) On(method Method, handler Handler) func() {
	return subscribe(l.events, method, handler)
}

// Calls returns the recorded arguments of every call to method, oldest
// first.
func (l *Loopback) Calls(method Method) []codec.Node {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []codec.Node
	for _, c := range l.calls {
		if c.Method == method {
			out = append(out, c.Args)
		}
	}
	return out
}

func (l *Loopback) CallCount(method Method) int { return len(l.Calls(method)) }

// ResetCalls forgets the recorded calls.
func (l *Loopback) ResetCalls() {
	l.mu.Lock()
	l.calls = nil
	l.mu.Unlock()
}

func (l *Loopback) State() ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return StateClosed
	}
	return StateConnected
}

func (l *Loopback) Headers() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyHeaders(l.headers)
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

func overWire(n codec.Node) (codec.Node, error) {
	data, err := codec.Marshal(n)
	if err != nil {
		return codec.Null(), err
	}
	return codec.Unmarshal(data)
}
