package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/codec"
)

// fakeRelay answers GetClientId with 42, rejects AssumeScopeLeadership,
// echoes SendEventMessage back as an OnObjectMessage push and never answers
// anything else.
func fakeRelay(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var in envelope
			if err = codec.UnmarshalValue(data, &in); err != nil {
				return
			}

			var out *envelope
			switch {
			case in.Kind == kindInvocation && in.Method == GetClientId.String():
				out = &envelope{Kind: kindCompletion, ID: in.ID, Args: codec.Uint(42)}
			case in.Kind == kindInvocation && in.Method == AssumeScopeLeadership.String():
				out = &envelope{Kind: kindCompletion, ID: in.ID, Error: "scope busy"}
			case in.Kind == kindSend && in.Method == SendEventMessage.String():
				out = &envelope{Kind: kindPush, ID: in.ID, Method: OnObjectMessage.String(), Args: in.Args}
			}
			if out == nil {
				continue
			}
			reply, err := codec.MarshalValue(*out)
			if err != nil {
				return
			}
			if err = conn.WriteMessage(websocket.BinaryMessage, reply); err != nil {
				return
			}
		}
	}))
}

func dialRelay(t *testing.T, srv *httptest.Server) *WebsocketHub {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h, err := DialWebsocket(ctx, WebsocketConfig{
		URL:          "ws" + strings.TrimPrefix(srv.URL, "http"),
		Headers:      map[string]string{"Authorization": "token"},
		WriteTimeout: time.Second,
		PingInterval: 50 * time.Millisecond,
	}, log.Nop())
	require.NoError(t, err)
	return h
}

type result struct {
	reply codec.Node
	err   error
}

func invoke(h Hub, method Method, args codec.Node) chan result {
	ch := make(chan result, 1)
	h.Invoke(context.Background(), method, args, func(reply codec.Node, err error) {
		ch <- result{reply, err}
	})
	return ch
}

func await(t *testing.T, ch chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no reply")
		return result{}
	}
}

func TestWebsocketInvoke(t *testing.T) {
	srv := fakeRelay(t)
	defer srv.Close()
	h := dialRelay(t, srv)
	defer h.Close()

	assert.Equal(t, StateConnected, h.State())
	assert.Equal(t, "token", h.Headers()["Authorization"])

	r := await(t, invoke(h, GetClientId, codec.Array()))
	require.NoError(t, r.err)
	id, ok := r.reply.ToUint64()
	require.True(t, ok)
	assert.Equal(t, uint64(42), id)

	r = await(t, invoke(h, AssumeScopeLeadership, codec.Array(codec.String("scope"))))
	assert.ErrorIs(t, r.err, protocol.ErrInvocationFailed)
	assert.Contains(t, r.err.Error(), "scope busy")
}

func TestWebsocketPush(t *testing.T) {
	srv := fakeRelay(t)
	defer srv.Close()
	h := dialRelay(t, srv)
	defer h.Close()

	pushed := make(chan codec.Node, 1)
	unsubscribe := h.On(OnObjectMessage, func(args codec.Node) { pushed <- args })
	defer unsubscribe()

	require.NoError(t, h.Send(context.Background(), SendEventMessage, codec.String("hello")))
	select {
	case args := <-pushed:
		assert.Equal(t, "hello", args.AsString())
	case <-time.After(5 * time.Second):
		t.Fatal("no push")
	}
}

func TestWebsocketOutlivesDialContext(t *testing.T) {
	srv := fakeRelay(t)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	h, err := DialWebsocket(ctx, WebsocketConfig{
		URL:          "ws" + strings.TrimPrefix(srv.URL, "http"),
		Headers:      map[string]string{"Authorization": "token"},
		WriteTimeout: time.Second,
	}, log.Nop())
	require.NoError(t, err)
	defer h.Close()

	cancel()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateConnected, h.State())

	r := await(t, invoke(h, GetClientId, codec.Array()))
	require.NoError(t, r.err)
	id, ok := r.reply.ToUint64()
	require.True(t, ok)
	assert.Equal(t, uint64(42), id)
}

func TestWebsocketCloseFailsPending(t *testing.T) {
	srv := fakeRelay(t)
	defer srv.Close()
	h := dialRelay(t, srv)

	ch := invoke(h, PageScopedObjects, codec.Array())
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	r := await(t, ch)
	assert.Error(t, r.err)
	assert.Equal(t, StateClosed, h.State())

	r = await(t, invoke(h, GetClientId, codec.Array()))
	assert.ErrorIs(t, r.err, protocol.ErrHubNotConnected)
	assert.ErrorIs(t, h.Send(context.Background(), SendEventMessage, codec.Null()), protocol.ErrHubNotConnected)
}

func TestWebsocketDialFailure(t *testing.T) {
	_, err := DialWebsocket(context.Background(), WebsocketConfig{URL: "ws://127.0.0.1:1/none"}, log.Nop())
	assert.ErrorIs(t, err, protocol.ErrHubNotConnected)
}
