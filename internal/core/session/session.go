// Package session is the online realtime engine: it owns the entities of
// one connection, turns their staged state into patches on every tick and
// applies what the relay pushes back.
package session

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/zeusync/replica/internal/core/election"
	"github.com/zeusync/replica/internal/core/entity"
	"github.com/zeusync/replica/internal/core/hub"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/observability/metrics"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/codec"
	"github.com/zeusync/replica/internal/core/protocol/mcs"
	"github.com/zeusync/replica/internal/core/registry"
	"github.com/zeusync/replica/internal/core/scheduler"
)

const (
	DefaultPageSize        = 100
	DefaultMaxPatchesBatch = 64
	DefaultEncodeWorkers   = 4

	tickTaskName = "session_tick"
)

// Metric names recorded by a Session.
const (
	MetricEntitiesCreated   = "entities_created"
	MetricEntitiesReceived  = "entities_received"
	MetricEntitiesDestroyed = "entities_destroyed"
	MetricPatchesReceived   = "patches_received"
	MetricPatchesSent       = "patches_sent"
	MetricPatchSendFailures = "patch_send_failures"
	MetricPatchBatches      = "patch_batches"
	MetricEntities          = "entities"
)

// Config tunes a Session.
type Config struct {
	// Scopes are sent with SetScopes on Connect and registered for election.
	Scopes []string
	// PageSize is the PageScopedObjects limit used by FetchAllEntities.
	PageSize int
	// MaxPatchesPerBatch caps the patches carried by one SendObjectPatches.
	MaxPatchesPerBatch int
	// EncodeWorkers bounds the goroutines building patches during a tick.
	EncodeWorkers int
	// LeaderElection makes the session claim leadership of scopes that have
	// none once the initial fetch completes.
	LeaderElection bool
	// AllowSelfMessaging asks the relay to echo this client's own patches.
	AllowSelfMessaging bool
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxPatchesPerBatch <= 0 {
		c.MaxPatchesPerBatch = DefaultMaxPatchesBatch
	}
	if c.EncodeWorkers <= 0 {
		c.EncodeWorkers = DefaultEncodeWorkers
	}
	return c
}

// EntityCallback observes entities arriving from or leaving the relay.
type EntityCallback func(e *entity.Entity)

// CreatedCallback receives the outcome of CreateEntity.
type CreatedCallback func(e *entity.Entity, err error)

// Session binds a registry of entities to a hub.
type Session struct {
	hub      hub.Hub
	entities *registry.Registry
	election *election.Manager
	root     log.Log
	logger   log.Log
	metrics  *metrics.Collector
	cfg      Config

	clientID  atomic.Uint64
	connected atomic.Bool

	pendingMu sync.Mutex
	pending   []mcs.ObjectPatch

	callbackMu      sync.RWMutex
	onRemoteCreated EntityCallback
	onDestroyed     EntityCallback
	onDisconnect    func(reason string)

	bindMu  sync.Mutex
	unbinds []func()
}

func New(h hub.Hub, entities *registry.Registry, elect *election.Manager, logger log.Log, cfg Config) *Session {
	if logger == nil {
		logger = log.Nop()
	}
	if entities == nil {
		entities = registry.New(registry.DefaultShardCount)
	}
	return &Session{
		hub:      h,
		entities: entities,
		election: elect,
		root:     logger,
		logger:   logger.With(log.String("component", "session")),
		metrics:  metrics.New(),
		cfg:      cfg.withDefaults(),
	}
}

// ClientID is the id the relay assigned on Connect, or 0 before that.
func (s *Session) ClientID() uint64 { return s.clientID.Load() }

func (s *Session) IsConnected() bool { return s.connected.Load() }

func (s *Session) Registry() *registry.Registry { return s.entities }

func (s *Session) Election() *election.Manager { return s.election }

func (s *Session) Metrics() *metrics.Collector { return s.metrics }

// Entity looks up a known entity.
func (s *Session) Entity(id uint64) (*entity.Entity, bool) { return s.entities.Get(id) }

// Entities returns every known entity ordered by id.
func (s *Session) Entities() []*entity.Entity { return s.entities.Snapshot() }

func (s *Session) SetRemoteEntityCreatedCallback(cb EntityCallback) {
	s.callbackMu.Lock()
	s.onRemoteCreated = cb
	s.callbackMu.Unlock()
}

func (s *Session) SetEntityDestroyedCallback(cb EntityCallback) {
	s.callbackMu.Lock()
	s.onDestroyed = cb
	s.callbackMu.Unlock()
}

// SetDisconnectCallback observes OnRequestToDisconnect pushes.
func (s *Session) SetDisconnectCallback(cb func(reason string)) {
	s.callbackMu.Lock()
	s.onDisconnect = cb
	s.callbackMu.Unlock()
}

// Bind subscribes the session to the relay's pushes. Calling it again is
// a no-op until Unbind.
func (s *Session) Bind() {
	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	if len(s.unbinds) > 0 {
		return
	}

	s.unbinds = append(s.unbinds,
		s.hub.On(hub.OnObjectMessage, s.handleObjectMessage),
		s.hub.On(hub.OnObjectPatch, s.handleObjectPatch),
		s.hub.On(hub.OnRequestToSendObject, s.handleRequestToSendObject),
		s.hub.On(hub.OnRequestToDisconnect, s.handleRequestToDisconnect),
	)
	if s.election != nil {
		s.unbinds = append(s.unbinds, s.election.Bind())
	}
}

func (s *Session) Unbind() {
	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	for _, unbind := range s.unbinds {
		unbind()
	}
	s.unbinds = nil
}

// Connect binds the pushes, fetches the client id, enters the configured
// scopes and starts listening.
func (s *Session) Connect(ctx context.Context) error {
	s.Bind()

	reply, err := s.call(ctx, hub.GetClientId, codec.Array())
	if err != nil {
		return err
	}
	id, ok := reply.ToUint64()
	if !ok {
		return errors.Wrapf(protocol.ErrMalformedMessage, "client id is %s", reply.Kind())
	}
	s.clientID.Store(id)
	if s.election != nil {
		s.election.SetLocalUserID(strconv.FormatUint(id, 10))
	}
	s.logger.Info("client id assigned", log.Uint64("client_id", id))

	if err = s.SetScopes(ctx, s.cfg.Scopes); err != nil {
		return err
	}
	if s.cfg.AllowSelfMessaging {
		if _, err = s.call(ctx, hub.SetAllowSelfMessaging, codec.Array(codec.Bool(true))); err != nil {
			return err
		}
	}
	if _, err = s.call(ctx, hub.StartListening, codec.Array()); err != nil {
		return err
	}

	s.connected.Store(true)
	return nil
}

// Disconnect stops listening, unbinds the pushes and drops every local
// entity without telling the relay.
func (s *Session) Disconnect(ctx context.Context) error {
	var err error
	if s.connected.Swap(false) {
		_, err = s.call(ctx, hub.StopListening, codec.Array())
	}
	s.Unbind()
	s.destroyAllLocal()
	return err
}

// SetScopes replaces the relay scopes and registers each with election.
// An empty list resets the scopes.
func (s *Session) SetScopes(ctx context.Context, scopes []string) error {
	if len(scopes) == 0 {
		_, err := s.call(ctx, hub.ResetScopes, codec.Array())
		return err
	}

	items := make([]codec.Node, len(scopes))
	for i, scopeID := range scopes {
		items[i] = codec.String(scopeID)
	}
	if _, err := s.call(ctx, hub.SetScopes, codec.Array(codec.Array(items...))); err != nil {
		return err
	}

	if s.election != nil {
		known := make(map[string]bool)
		for _, scopeID := range s.election.Scopes() {
			known[scopeID] = true
		}
		for _, scopeID := range scopes {
			if !known[scopeID] {
				s.election.RegisterScope(scopeID, "")
			}
		}
	}
	return nil
}

// SendEvent sends an event message to the relay without waiting for it.
func (s *Session) SendEvent(ctx context.Context, args codec.Node) error {
	return s.hub.Send(ctx, hub.SendEventMessage, args)
}

// Schedule registers Tick with sch at the given interval.
func (s *Session) Schedule(sch *scheduler.Scheduler, interval time.Duration) error {
	return sch.Schedule(tickTaskName, interval, s.Tick)
}

type result struct {
	reply codec.Node
	err   error
}

// call invokes method and waits for its completion or for ctx.
func (s *Session) call(ctx context.Context, method hub.Method, args codec.Node) (codec.Node, error) {
	done := make(chan result, 1)
	s.hub.Invoke(ctx, method, args, func(reply codec.Node, err error) {
		done <- result{reply: reply, err: err}
	})

	select {
	case r := <-done:
		if r.err != nil {
			return codec.Null(), errors.Wrapf(r.err, "invoke %s", method)
		}
		return r.reply, nil
	case <-ctx.Done():
		return codec.Null(), errors.Wrapf(ctx.Err(), "invoke %s", method)
	}
}

func (s *Session) fireRemoteCreated(e *entity.Entity) {
	s.callbackMu.RLock()
	cb := s.onRemoteCreated
	s.callbackMu.RUnlock()
	if cb != nil {
		cb(e)
	}
}

// removeLocal drops an entity and fires the destroy callbacks.
func (s *Session) removeLocal(id uint64) (*entity.Entity, bool) {
	e, ok := s.entities.Remove(id)
	if !ok {
		return nil, false
	}
	e.NotifyDestroyed()
	s.metrics.Counter(MetricEntitiesDestroyed).Inc()

	s.callbackMu.RLock()
	cb := s.onDestroyed
	s.callbackMu.RUnlock()
	if cb != nil {
		cb(e)
	}
	return e, true
}

func (s *Session) destroyAllLocal() {
	for _, e := range s.entities.Snapshot() {
		s.removeLocal(e.ID())
	}
}
