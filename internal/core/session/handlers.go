package session

import (
	"context"

	"github.com/zeusync/replica/internal/core/hub"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol/codec"
	"github.com/zeusync/replica/internal/core/protocol/mcs"
)

// Push arguments arrive as an array of parameters; every handler here
// reads the first.
func firstArg(args codec.Node) (codec.Node, bool) {
	items := args.Items()
	if args.Kind() != codec.NodeArray || len(items) == 0 {
		return codec.Null(), false
	}
	return items[0], true
}

func (s *Session) handleObjectMessage(args codec.Node) {
	node, ok := firstArg(args)
	if !ok {
		s.logger.Error("malformed object message push", log.String("args", args.String()))
		return
	}
	s.addRemote(node)
}

// handleObjectPatch queues the patch; it is applied on the next Tick.
func (s *Session) handleObjectPatch(args codec.Node) {
	node, ok := firstArg(args)
	if !ok {
		s.logger.Error("malformed object patch push", log.String("args", args.String()))
		return
	}

	var patch mcs.ObjectPatch
	if err := codec.Decode(node, &patch); err != nil {
		s.logger.Error("failed to decode object patch", log.Error(err))
		return
	}

	s.pendingMu.Lock()
	s.pending = append(s.pending, patch)
	s.pendingMu.Unlock()
	s.metrics.Counter(MetricPatchesReceived).Inc()
}

// PendingIncoming is the number of remote patches waiting for Tick.
func (s *Session) PendingIncoming() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

// handleRequestToSendObject answers the relay with a snapshot of the
// entity, or with SendObjectNotFound when it is unknown here.
func (s *Session) handleRequestToSendObject(args codec.Node) {
	node, ok := firstArg(args)
	id, isID := node.ToUint64()
	if !ok || !isID {
		s.logger.Error("malformed request to send object", log.String("args", args.String()))
		return
	}

	ctx := context.Background()
	e, found := s.entities.Get(id)
	if !found {
		if err := s.hub.Send(ctx, hub.SendObjectNotFound, codec.Array(codec.Uint(id))); err != nil {
			s.logger.Error("failed to report missing object", log.EntityID(id), log.Error(err))
		}
		return
	}

	msg, err := codec.Encode(mcs.MessageBatch{e.CreateObjectMessage()})
	if err != nil {
		s.logger.Error("failed to encode requested object", log.EntityID(id), log.Error(err))
		return
	}
	s.hub.Invoke(ctx, hub.SendObjectMessage, msg, func(_ codec.Node, err error) {
		if err != nil {
			s.logger.Error("failed to send requested object", log.EntityID(id), log.Error(err))
		}
	})
}

func (s *Session) handleRequestToDisconnect(args codec.Node) {
	var reason string
	if node, ok := firstArg(args); ok && node.Kind() == codec.NodeString {
		reason = node.AsString()
	}
	s.logger.Warn("relay requested disconnect", log.String("reason", reason))

	s.callbackMu.RLock()
	cb := s.onDisconnect
	s.callbackMu.RUnlock()
	if cb != nil {
		cb(reason)
	}
}
