package hub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/codec"
)

func TestMethodTable(t *testing.T) {
	methods := Methods()
	assert.Len(t, methods, 22)
	for _, m := range methods {
		parsed, ok := ParseMethod(m.String())
		require.True(t, ok, m.String())
		assert.Equal(t, m, parsed)
	}
	assert.Equal(t, "SendScopeLeaderHeartbeat", SendScopeLeaderHeartbeat.String())

	_, ok := ParseMethod("NoSuchMethod")
	assert.False(t, ok)
	assert.Equal(t, "Method(0)", MethodInvalid.String())
}

func TestLoopbackInvokeRoundTripsThroughWire(t *testing.T) {
	l := NewLoopback(log.Nop(), nil)
	l.Handle(GenerateObjectIds, func(_ context.Context, args codec.Node) (codec.Node, error) {
		items := args.Items()
		require.Len(t, items, 1)
		n, ok := items[0].ToUint64()
		require.True(t, ok)
		ids := make([]codec.Node, n)
		for i := range ids {
			ids[i] = codec.Int(int64(100 + i))
		}
		return codec.Array(ids...), nil
	})

	var reply codec.Node
	var replyErr error
	l.Invoke(context.Background(), GenerateObjectIds, codec.Array(codec.Int(2)), func(n codec.Node, err error) {
		reply, replyErr = n, err
	})

	require.NoError(t, replyErr)
	items := reply.Items()
	require.Len(t, items, 2)
	assert.Equal(t, codec.NodeUint, items[0].Kind(), "non-negative ints come back unsigned")
	assert.Equal(t, 1, l.CallCount(GenerateObjectIds))
	assert.Equal(t, codec.NodeUint, l.Calls(GenerateObjectIds)[0].Items()[0].Kind())
}

func TestLoopbackInvokeErrors(t *testing.T) {
	l := NewLoopback(log.Nop(), nil)

	var got error
	l.Invoke(context.Background(), GetClientId, codec.Null(), func(_ codec.Node, err error) { got = err })
	assert.ErrorIs(t, got, protocol.ErrUnknownMethod)

	l.Handle(GetClientId, func(context.Context, codec.Node) (codec.Node, error) {
		return codec.Null(), errors.New("denied")
	})
	l.Invoke(context.Background(), GetClientId, codec.Null(), func(_ codec.Node, err error) { got = err })
	assert.ErrorIs(t, got, protocol.ErrInvocationFailed)

	require.NoError(t, l.Close())
	assert.Equal(t, StateClosed, l.State())
	l.Invoke(context.Background(), GetClientId, codec.Null(), func(_ codec.Node, err error) { got = err })
	assert.ErrorIs(t, got, protocol.ErrHubClosed)
	assert.ErrorIs(t, l.Push(OnObjectPatch, codec.Null()), protocol.ErrHubClosed)
}

func TestLoopbackSendWithoutResponder(t *testing.T) {
	l := NewLoopback(log.Nop(), nil)
	require.NoError(t, l.Send(context.Background(), SendEventMessage, codec.String("hi")))
	assert.Equal(t, 1, l.CallCount(SendEventMessage))

	l.ResetCalls()
	assert.Zero(t, l.CallCount(SendEventMessage))
}

func TestLoopbackPushAndUnsubscribe(t *testing.T) {
	l := NewLoopback(log.Nop(), map[string]string{"X-Client": "a"})
	assert.Equal(t, map[string]string{"X-Client": "a"}, l.Headers())

	var pushes []codec.Node
	unsubscribe := l.On(OnElectedScopeLeader, func(args codec.Node) { pushes = append(pushes, args) })

	require.NoError(t, l.Push(OnElectedScopeLeader, codec.Array(codec.String("scope"), codec.String("user"))))
	require.NoError(t, l.Push(OnVacatedAsScopeLeader, codec.Null()))
	require.Len(t, pushes, 1)
	assert.Equal(t, "user", pushes[0].Items()[1].AsString())

	unsubscribe()
	require.NoError(t, l.Push(OnElectedScopeLeader, codec.Null()))
	assert.Len(t, pushes, 1)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	cases := []envelope{
		{Kind: kindInvocation, ID: "a", Method: "GetClientId", Args: codec.Array()},
		{Kind: kindCompletion, ID: "b", Args: codec.Uint(42)},
		{Kind: kindCompletion, ID: "c", Error: "denied"},
		{Kind: kindPush, ID: "d", Method: "OnObjectPatch", Args: codec.Array(codec.Bool(true))},
	}
	for _, in := range cases {
		data, err := codec.MarshalValue(in)
		require.NoError(t, err)
		var out envelope
		require.NoError(t, codec.UnmarshalValue(data, &out))
		assert.Equal(t, in.Kind, out.Kind)
		assert.Equal(t, in.ID, out.ID)
		assert.Equal(t, in.Method, out.Method)
		assert.Equal(t, in.Error, out.Error)
		assert.True(t, in.Args.Equal(out.Args), "%s != %s", in.Args, out.Args)
	}
}

func TestEnvelopeTooShort(t *testing.T) {
	var out envelope
	err := codec.Decode(codec.Array(codec.Uint(1), codec.String("id")), &out)
	assert.ErrorIs(t, err, protocol.ErrMalformedMessage)
}
