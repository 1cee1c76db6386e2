package hub

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/replica/internal/core/events/bus"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/codec"
)

var _ Hub = (*WebsocketHub)(nil)

// WebsocketConfig configures the relay connection.
type WebsocketConfig struct {
	URL              string
	Headers          map[string]string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
}

// WebsocketHub talks to the relay over one websocket carrying CBOR-encoded
// envelopes. Replies are matched to invocations by uuid.
type WebsocketHub struct {
	config WebsocketConfig
	logger log.Log
	events bus.EventBus

	conn    *websocket.Conn
	writeMu sync.Mutex
	state   atomic.Uint32

	pendingMu sync.Mutex
	pending   map[string]Callback

	cancel context.CancelFunc
	group  *errgroup.Group
}

// DialWebsocket connects to the relay and starts the read and keepalive
// loops. ctx bounds the handshake only; the loops run until Close.
func DialWebsocket(ctx context.Context, cfg WebsocketConfig, logger log.Log) (*WebsocketHub, error) {
	if logger == nil {
		logger = log.Nop()
	}

	h := &WebsocketHub{
		config:  cfg,
		logger:  logger.With(log.String("component", "websocket_hub"), log.String("url", cfg.URL)),
		events:  bus.New(),
		pending: make(map[string]Callback),
	}
	h.events.AddObserver(bus.LogObserver{Logger: h.logger})
	h.state.Store(uint32(StateConnecting))

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	header := http.Header{}
	for k, v := range cfg.Headers {
		header.Set(k, v)
	}

	conn, _, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		h.state.Store(uint32(StateDisconnected))
		return nil, errors.Wrapf(protocol.ErrHubNotConnected, "dial %s: %v", cfg.URL, err)
	}
	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	h.conn = conn
	h.state.Store(uint32(StateConnected))

	loopCtx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	g, gctx := errgroup.WithContext(loopCtx)
	h.group = g
	g.Go(func() error { return h.readLoop(gctx) })
	if cfg.PingInterval > 0 {
		g.Go(func() error { return h.pingLoop(gctx) })
	}
	go func() {
		<-gctx.Done()
		_ = h.conn.Close()
	}()

	h.logger.Info("connected to relay")
	return h, nil
}

func (h *WebsocketHub) Invoke(ctx context.Context, method Method, args codec.Node, cb Callback) {
	if cb == nil {
		cb = func(codec.Node, error) {}
	}
	if h.State() != StateConnected {
		cb(codec.Null(), protocol.ErrHubNotConnected)
		return
	}

	id := uuid.NewString()
	h.pendingMu.Lock()
	h.pending[id] = cb
	h.pendingMu.Unlock()

	err := h.write(ctx, envelope{Kind: kindInvocation, ID: id, Method: method.String(), Args: args})
	if err != nil {
		if pending := h.takePending(id); pending != nil {
			pending(codec.Null(), err)
		}
	}
}

func (h *WebsocketHub) Send(ctx context.Context, method Method, args codec.Node) error {
	if h.State() != StateConnected {
		return protocol.ErrHubNotConnected
	}
	return h.write(ctx, envelope{Kind: kindSend, ID: uuid.NewString(), Method: method.String(), Args: args})
}

func (h *WebsocketHub) On(method Method, handler Handler) func() {
	return subscribe(h.events, method, handler)
}

func (h *WebsocketHub) State() ConnectionState { return ConnectionState(h.state.Load()) }

func (h *WebsocketHub) Headers() map[string]string { return copyHeaders(h.config.Headers) }

// Close sends a close frame, stops the loops and fails every outstanding
// invocation with ErrHubClosed.
func (h *WebsocketHub) Close() error {
	if ConnectionState(h.state.Swap(uint32(StateClosed))) == StateClosed {
		return nil
	}

	h.writeMu.Lock()
	_ = h.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	h.writeMu.Unlock()

	h.cancel()
	err := h.group.Wait()
	h.failPending(protocol.ErrHubClosed)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (h *WebsocketHub) write(ctx context.Context, env envelope) error {
	data, err := codec.MarshalValue(env)
	if err != nil {
		return errors.Wrap(err, "encode envelope")
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	deadline := time.Time{}
	if h.config.WriteTimeout > 0 {
		deadline = time.Now().Add(h.config.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = h.conn.SetWriteDeadline(deadline)

	if err = h.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

func (h *WebsocketHub) readLoop(ctx context.Context) error {
	defer func() {
		h.state.CompareAndSwap(uint32(StateConnected), uint32(StateDisconnected))
		h.failPending(protocol.ErrHubNotConnected)
	}()

	for {
		messageType, data, err := h.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Info("relay connection closed")
				return nil
			}
			h.logger.Error("websocket read failed", log.Error(err))
			return errors.Wrap(err, "failed to read message")
		}
		if messageType != websocket.BinaryMessage {
			h.logger.Warn("ignoring non-binary frame", log.Int("type", messageType))
			continue
		}

		var env envelope
		if err = codec.UnmarshalValue(data, &env); err != nil {
			h.logger.Error("failed to decode envelope", log.Error(err))
			continue
		}
		h.handle(env)
	}
}

func (h *WebsocketHub) handle(env envelope) {
	switch env.Kind {
	case kindCompletion:
		cb := h.takePending(env.ID)
		if cb == nil {
			h.logger.Warn("completion for unknown invocation", log.String("invocation_id", env.ID))
			return
		}
		if env.Error != "" {
			cb(codec.Null(), errors.Wrap(protocol.ErrInvocationFailed, env.Error))
			return
		}
		cb(env.Args, nil)
	case kindPush:
		_ = h.events.Publish(bus.NewEvent(env.Method, h.config.URL, env.Args))
	default:
		h.logger.Warn("unexpected envelope kind", log.Uint64("kind", uint64(env.Kind)))
	}
}

func (h *WebsocketHub) pingLoop(ctx context.Context) error {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.writeMu.Lock()
			err := h.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.config.PingInterval))
			h.writeMu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				h.logger.Error("failed to send ping", log.Error(err))
				return errors.Wrap(err, "ping")
			}
		}
	}
}

func (h *WebsocketHub) takePending(id string) Callback {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	cb := h.pending[id]
	delete(h.pending, id)
	return cb
}

func (h *WebsocketHub) failPending(err error) {
	h.pendingMu.Lock()
	pending := h.pending
	h.pending = make(map[string]Callback)
	h.pendingMu.Unlock()

	for _, cb := range pending {
		cb(codec.Null(), err)
	}
}
