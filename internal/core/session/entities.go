package session

import (
	"context"

	"github.com/pkg/errors"

	"github.com/zeusync/replica/internal/core/election"
	"github.com/zeusync/replica/internal/core/entity"
	"github.com/zeusync/replica/internal/core/hub"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/codec"
	"github.com/zeusync/replica/internal/core/protocol/mcs"
)

// CreateEntity asks the relay for an id, announces the new entity with
// SendObjectMessage and, once acknowledged, adds it to the session. cb
// receives the entity or the first failure.
func (s *Session) CreateEntity(ctx context.Context, name string, typ entity.Type, cb CreatedCallback, opts ...entity.Option) {
	if cb == nil {
		cb = func(*entity.Entity, error) {}
	}

	s.hub.Invoke(ctx, hub.GenerateObjectIds, codec.Array(codec.Uint(1)), func(reply codec.Node, err error) {
		if err != nil {
			s.logger.Error("failed to generate object id", log.Error(err))
			cb(nil, errors.Wrap(err, "generate object id"))
			return
		}
		id, err := parseGeneratedID(reply)
		if err != nil {
			s.logger.Error("failed to generate object id", log.Error(err))
			cb(nil, err)
			return
		}

		e := entity.New(id, typ, s.ClientID(), s.root, append([]entity.Option{entity.WithName(name)}, opts...)...)
		args, err := codec.Encode(mcs.MessageBatch{e.CreateObjectMessage()})
		if err != nil {
			cb(nil, errors.Wrapf(err, "encode entity %d", id))
			return
		}

		s.hub.Invoke(ctx, hub.SendObjectMessage, args, func(_ codec.Node, err error) {
			if err != nil {
				s.logger.Error("failed to create entity", log.EntityID(id), log.Error(err))
				cb(nil, errors.Wrapf(err, "send entity %d", id))
				return
			}
			if !s.entities.Add(e) {
				s.logger.Error("entity id already known", log.EntityID(id))
				cb(nil, errors.Wrapf(protocol.ErrMalformedMessage, "duplicate entity id %d", id))
				return
			}
			s.metrics.Counter(MetricEntitiesCreated).Inc()
			s.logger.Debug("entity created", log.EntityID(id), log.String("type", typ.String()))
			cb(e, nil)
		})
	})
}

// parseGeneratedID reads the first id of a GenerateObjectIds reply.
func parseGeneratedID(reply codec.Node) (uint64, error) {
	items := reply.Items()
	if reply.Kind() != codec.NodeArray || len(items) == 0 {
		return 0, errors.Wrapf(protocol.ErrMalformedMessage, "object id reply %s", reply)
	}
	id, ok := items[0].ToUint64()
	if !ok {
		return 0, errors.Wrapf(protocol.ErrMalformedMessage, "object id is %s", items[0].Kind())
	}
	return id, nil
}

// Children returns the entities whose parent is id, ordered by id.
func (s *Session) Children(id uint64) []*entity.Entity {
	var out []*entity.Entity
	for _, e := range s.entities.Snapshot() {
		if parent := e.ParentID(); parent != nil && *parent == id {
			out = append(out, e)
		}
	}
	return out
}

// DestroyEntity removes the entity locally at once, then sends one
// SendObjectPatches carrying its destroy patch and a patch moving each
// child to the root.
func (s *Session) DestroyEntity(ctx context.Context, id uint64) error {
	e, ok := s.entities.Get(id)
	if !ok {
		return errors.Wrapf(protocol.ErrEntityNotFound, "destroy entity %d", id)
	}

	clientID := s.ClientID()
	patches := mcs.PatchBatch{{ID: id, OwnerID: clientID, Destroy: true}}
	for _, child := range s.Children(id) {
		reroot := mcs.ObjectPatch{ID: child.ID(), OwnerID: clientID, ShouldUpdateParent: true}
		child.ApplyPatchFromObjectPatch(reroot)
		patches = append(patches, reroot)
	}
	s.removeLocal(e.ID())

	batch, err := codec.Encode(patches)
	if err != nil {
		return errors.Wrapf(err, "encode destroy of %d", id)
	}
	_, err = s.call(ctx, hub.SendObjectPatches, codec.Array(batch))
	if err != nil {
		s.logger.Error("failed to destroy entity", log.EntityID(id), log.Error(err))
	}
	return err
}

// DeleteObjects asks the relay to delete ids. No ids deletes every object
// in scope.
func (s *Session) DeleteObjects(ctx context.Context, ids ...uint64) error {
	arg := codec.Null()
	if len(ids) > 0 {
		items := make([]codec.Node, len(ids))
		for i, id := range ids {
			items[i] = codec.Uint(id)
		}
		arg = codec.Array(items...)
	}
	_, err := s.call(ctx, hub.DeleteObjects, codec.Array(arg))
	return err
}

// FetchAllEntities pages through PageScopedObjects until the relay's total
// is reached, adding every entity it returns. It returns the number of
// messages received. With LeaderElection set, scopes left without a leader
// are then claimed.
func (s *Session) FetchAllEntities(ctx context.Context) (int, error) {
	skip := uint64(0)
	for {
		args := codec.Array(codec.Bool(true), codec.Bool(true), codec.Uint(skip), codec.Uint(uint64(s.cfg.PageSize)))
		reply, err := s.call(ctx, hub.PageScopedObjects, args)
		if err != nil {
			return int(skip), err
		}

		parts := reply.Items()
		if reply.Kind() != codec.NodeArray || len(parts) < 2 {
			return int(skip), errors.Wrapf(protocol.ErrMalformedMessage, "page reply %s", reply)
		}
		total, ok := parts[1].ToUint64()
		if !ok {
			return int(skip), errors.Wrapf(protocol.ErrMalformedMessage, "page total is %s", parts[1].Kind())
		}

		items := parts[0].Items()
		for _, item := range items {
			s.addRemote(item)
		}
		skip += uint64(len(items))
		s.logger.Debug("fetched entity page", log.Int("count", len(items)), log.Uint64("total", total))

		if skip >= total || len(items) == 0 {
			break
		}
	}

	if s.cfg.LeaderElection {
		s.claimLeaderlessScopes(ctx)
	}
	return int(skip), nil
}

// addRemote decodes one object message and adds the entity it describes.
func (s *Session) addRemote(node codec.Node) (*entity.Entity, bool) {
	var msg mcs.ObjectMessage
	if err := codec.Decode(node, &msg); err != nil {
		s.logger.Error("failed to decode object message", log.Error(err))
		return nil, false
	}

	e := entity.NewFromObjectMessage(msg, s.root)
	if !s.entities.Add(e) {
		s.logger.Error("entity already known", log.EntityID(msg.ID))
		return nil, false
	}
	s.metrics.Counter(MetricEntitiesReceived).Inc()
	s.fireRemoteCreated(e)
	return e, true
}

func (s *Session) claimLeaderlessScopes(ctx context.Context) {
	if s.election == nil {
		return
	}
	for _, scopeID := range s.election.Scopes() {
		if s.election.State(scopeID) != election.StateNoLeader {
			continue
		}
		s.election.AssumeScopeLeadership(ctx, scopeID, func(ok bool) {
			if !ok {
				s.logger.Warn("scope leadership not granted", log.Scope(scopeID))
			}
		})
	}
}
