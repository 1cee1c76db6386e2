package session

import (
	"context"
	"errors"
	"sort"

	pkgerrors "github.com/pkg/errors"

	"github.com/zeusync/replica/internal/core/entity"
	"github.com/zeusync/replica/internal/core/hub"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol/codec"
	"github.com/zeusync/replica/internal/core/protocol/mcs"
	"github.com/zeusync/replica/pkg/concurrent"
)

type outgoing struct {
	entity  *entity.Entity
	patch   mcs.ObjectPatch
	flags   entity.UpdateFlags
	updates []entity.ComponentUpdateInfo
}

// Tick applies queued remote patches, sends local changes as patches and
// applies them, then sends any heartbeat that is due.
func (s *Session) Tick(ctx context.Context) error {
	s.applyIncoming()
	err := s.flushOutgoing(ctx)
	if s.election != nil {
		s.election.TryHeartbeats(ctx)
	}
	s.metrics.Gauge(MetricEntities).Set(int64(s.entities.Len()))
	return err
}

// applyIncoming drains the remote patch queue in arrival order.
func (s *Session) applyIncoming() int {
	s.pendingMu.Lock()
	patches := s.pending
	s.pending = nil
	s.pendingMu.Unlock()

	for _, patch := range patches {
		if patch.Destroy {
			s.applyRemoteDestroy(patch.ID)
			continue
		}

		e, ok := s.entities.Get(patch.ID)
		if !ok {
			s.logger.Warn("patch for unknown entity", log.EntityID(patch.ID))
			continue
		}
		e.ApplyPatchFromObjectPatch(patch)
	}
	return len(patches)
}

// applyRemoteDestroy removes the entity. A departed avatar also releases
// every entity it had selected.
func (s *Session) applyRemoteDestroy(id uint64) {
	e, ok := s.removeLocal(id)
	if !ok {
		s.logger.Debug("destroy for unknown entity", log.EntityID(id))
		return
	}
	if e.Type() != entity.TypeAvatar {
		return
	}
	for _, other := range s.entities.Snapshot() {
		if other.SelectedClientID() == id {
			other.SetSelectedClientID(0)
		}
	}
}

// flushOutgoing takes a patch from every modifiable entity with staged
// state, applying it locally in the same step, and sends the patches in
// SendObjectPatches batches. Update callbacks fire in id order once the
// batch is handed to the hub; patch-sent callbacks fire when the relay
// completes it.
func (s *Session) flushOutgoing(ctx context.Context) error {
	clientID := s.ClientID()

	var dirty []*entity.Entity
	s.entities.ForEach(func(e *entity.Entity) bool {
		if !e.HasPendingPatch() {
			return true
		}
		if !e.IsModifiableBy(clientID) {
			s.logger.Error("update on a locked or non-transferable entity skipped", log.EntityID(e.ID()))
			return true
		}
		dirty = append(dirty, e)
		return true
	})
	if len(dirty) == 0 {
		return nil
	}
	sort.Slice(dirty, func(i, j int) bool { return dirty[i].ID() < dirty[j].ID() })

	out, err := concurrent.ParallelMap(ctx, dirty, s.cfg.EncodeWorkers, func(_ context.Context, e *entity.Entity) (outgoing, error) {
		e.ClaimOwnership(clientID)
		patch, flags, updates := e.TakeObjectPatch()
		return outgoing{entity: e, patch: patch, flags: flags, updates: updates}, nil
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, batch := range concurrent.Batch(out, s.cfg.MaxPatchesPerBatch) {
		if err = s.sendBatch(ctx, batch); err != nil {
			errs = append(errs, err)
		}
		if s.cfg.AllowSelfMessaging {
			// The relay echoes the patch back and that application fires
			// the callback.
			continue
		}
		for _, o := range batch {
			o.entity.NotifyUpdated(o.flags, o.updates)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) sendBatch(ctx context.Context, batch []outgoing) error {
	patches := make(mcs.PatchBatch, len(batch))
	for i, o := range batch {
		patches[i] = o.patch
	}
	args, err := codec.Encode(patches)
	if err != nil {
		s.logger.Error("failed to encode patch batch", log.Int("patches", len(batch)), log.Error(err))
		return pkgerrors.Wrap(err, "encode patch batch")
	}

	s.metrics.Counter(MetricPatchBatches).Inc()
	s.hub.Invoke(ctx, hub.SendObjectPatches, codec.Array(args), func(_ codec.Node, err error) {
		if err != nil {
			s.metrics.Counter(MetricPatchSendFailures).Add(uint64(len(batch)))
			s.logger.Error("failed to send entity patches", log.Int("patches", len(batch)), log.Error(err))
		} else {
			s.metrics.Counter(MetricPatchesSent).Add(uint64(len(batch)))
		}
		for _, o := range batch {
			o.entity.Patcher().NotifyPatchSent(err == nil)
		}
	})
	return nil
}
