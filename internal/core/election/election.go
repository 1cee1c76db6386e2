// Package election tracks the single leading client of each scope. The
// relay decides leadership; this side requests it, mirrors the relay's
// pushes and keeps the lease alive with gated heartbeats.
package election

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/zeusync/replica/internal/core/hub"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/codec"
	"github.com/zeusync/replica/pkg/clock"
)

// DefaultHeartbeatInterval is the minimum spacing of heartbeats per scope.
const DefaultHeartbeatInterval = 3 * time.Second

// State is the local client's view of one scope.
type State uint8

const (
	StateNoLeader State = iota
	StateElectionRequested
	StateLeading
	// StateFollowing means another client leads the scope.
	StateFollowing
)

func (s State) String() string {
	switch s {
	case StateNoLeader:
		return "no_leader"
	case StateElectionRequested:
		return "election_requested"
	case StateLeading:
		return "leading"
	case StateFollowing:
		return "following"
	default:
		return "unknown"
	}
}

// ScopeLeader mirrors what the relay last reported for a scope.
type ScopeLeader struct {
	ScopeID            string
	LeaderUserID       string
	ElectionInProgress bool
}

// LeaderCallback observes elected and vacated pushes.
type LeaderCallback func(scopeID, userID string)

type scope struct {
	leader        ScopeLeader
	state         State
	lastHeartbeat time.Time
	heartbeatSent bool
}

// Manager owns the leadership state of every registered scope.
type Manager struct {
	hub      hub.Hub
	clock    clock.Clock
	logger   log.Log
	interval time.Duration

	mu          sync.Mutex
	localUserID string
	scopes      map[string]*scope

	callbackMu sync.RWMutex
	onElected  LeaderCallback
	onVacated  LeaderCallback
}

type Option func(*Manager)

func WithHeartbeatInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithLocalUserID(id string) Option {
	return func(m *Manager) { m.localUserID = id }
}

func NewManager(h hub.Hub, clk clock.Clock, logger log.Log, opts ...Option) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = log.Nop()
	}
	m := &Manager{
		hub:      h,
		clock:    clk,
		logger:   logger.With(log.String("component", "election")),
		interval: DefaultHeartbeatInterval,
		scopes:   make(map[string]*scope),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetLocalUserID sets the identity compared against reported leaders.
func (m *Manager) SetLocalUserID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localUserID = id
	for _, s := range m.scopes {
		s.state = m.stateForLocked(s.leader.LeaderUserID)
	}
}

func (m *Manager) LocalUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localUserID
}

// RegisterScope starts tracking scopeID. An empty leaderUserID means the
// scope has no leader yet. Registering again replaces the known state.
func (m *Manager) RegisterScope(scopeID, leaderUserID string) {
	m.mu.Lock()
	m.scopes[scopeID] = &scope{
		leader: ScopeLeader{ScopeID: scopeID, LeaderUserID: leaderUserID},
		state:  m.stateForLocked(leaderUserID),
	}
	m.mu.Unlock()

	m.logger.Info("scope registered", log.Scope(scopeID), log.String("leader", leaderUserID))
}

func (m *Manager) DeregisterScope(scopeID string) {
	m.mu.Lock()
	delete(m.scopes, scopeID)
	m.mu.Unlock()
}

// Scopes returns the registered scope ids.
func (m *Manager) Scopes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.scopes))
	for id := range m.scopes {
		out = append(out, id)
	}
	return out
}

// AssumeScopeLeadership asks the relay to make the local client the leader
// of scopeID. cb, if set, receives whether the relay accepted. Failures are
// logged and never returned.
func (m *Manager) AssumeScopeLeadership(ctx context.Context, scopeID string, cb func(ok bool)) {
	report := func(ok bool) {
		if cb != nil {
			cb(ok)
		}
	}

	m.mu.Lock()
	s, ok := m.scopes[scopeID]
	if !ok {
		m.mu.Unlock()
		m.logger.Error("assume leadership for unregistered scope", log.Scope(scopeID))
		report(false)
		return
	}
	s.state = StateElectionRequested
	s.leader.ElectionInProgress = true
	m.mu.Unlock()

	m.hub.Invoke(ctx, hub.AssumeScopeLeadership, codec.Array(codec.String(scopeID)), func(reply codec.Node, err error) {
		if err == nil && reply.Kind() == codec.NodeBool && !reply.AsBool() {
			err = protocol.ErrNotScopeLeader
		}

		m.mu.Lock()
		s, ok := m.scopes[scopeID]
		if ok {
			s.leader.ElectionInProgress = false
			if err == nil {
				s.leader.LeaderUserID = m.localUserID
				s.state = StateLeading
				s.heartbeatSent = false
			} else {
				s.state = m.stateForLocked(s.leader.LeaderUserID)
				if s.state == StateLeading {
					s.state = StateNoLeader
					s.leader.LeaderUserID = ""
				}
			}
		}
		m.mu.Unlock()

		switch {
		case !ok:
			m.logger.Warn("scope deregistered during election", log.Scope(scopeID))
			report(false)
		case err != nil:
			m.logger.Error("failed to assume scope leadership", log.Scope(scopeID), log.Error(err))
			report(false)
		default:
			m.logger.Info("assumed scope leadership", log.Scope(scopeID))
			report(true)
		}
	})
}

// TryHeartbeat sends a heartbeat for scopeID if the local client leads it
// and at least the heartbeat interval has passed since the last one. It
// reports whether a heartbeat was sent. The send is asynchronous; its
// failure is only logged.
func (m *Manager) TryHeartbeat(ctx context.Context, scopeID string) bool {
	m.mu.Lock()
	s, ok := m.scopes[scopeID]
	if !ok || s.state != StateLeading {
		m.mu.Unlock()
		return false
	}
	now := m.clock.Now()
	if s.heartbeatSent && now.Sub(s.lastHeartbeat) < m.interval {
		m.mu.Unlock()
		return false
	}
	s.lastHeartbeat = now
	s.heartbeatSent = true
	m.mu.Unlock()

	m.hub.Invoke(ctx, hub.SendScopeLeaderHeartbeat, codec.Array(codec.String(scopeID)), func(_ codec.Node, err error) {
		if err != nil {
			m.logger.Error("failed to send heartbeat", log.Scope(scopeID), log.Error(err))
			return
		}
		m.logger.Debug("heartbeat sent", log.Scope(scopeID))
	})
	return true
}

// TryHeartbeats runs TryHeartbeat for every registered scope and returns
// how many heartbeats were sent.
func (m *Manager) TryHeartbeats(ctx context.Context) int {
	sent := 0
	for _, id := range m.Scopes() {
		if m.TryHeartbeat(ctx, id) {
			sent++
		}
	}
	return sent
}

// OnElectedScopeLeader applies the relay's election push.
func (m *Manager) OnElectedScopeLeader(scopeID, userID string) {
	m.mu.Lock()
	s, ok := m.scopes[scopeID]
	if !ok {
		m.mu.Unlock()
		m.logger.Error("elected push for unregistered scope", log.Scope(scopeID), log.String("leader", userID))
		return
	}
	previous := s.leader.LeaderUserID
	s.leader.LeaderUserID = userID
	s.leader.ElectionInProgress = false
	s.state = m.stateForLocked(userID)
	s.heartbeatSent = false
	m.mu.Unlock()

	if previous != "" && previous != userID {
		m.logger.Warn("scope already had a leader", log.Scope(scopeID), log.String("previous", previous), log.String("leader", userID))
	}
	m.logger.Info("scope leader elected", log.Scope(scopeID), log.String("leader", userID))

	m.callbackMu.RLock()
	cb := m.onElected
	m.callbackMu.RUnlock()
	if cb != nil {
		cb(scopeID, userID)
	}
}

// OnVacatedAsScopeLeader applies the relay's vacate push.
func (m *Manager) OnVacatedAsScopeLeader(scopeID, userID string) {
	m.mu.Lock()
	s, ok := m.scopes[scopeID]
	if !ok {
		m.mu.Unlock()
		m.logger.Error("vacated push for unregistered scope", log.Scope(scopeID), log.String("leader", userID))
		return
	}
	hadLeader := s.leader.LeaderUserID != ""
	s.leader.LeaderUserID = ""
	s.leader.ElectionInProgress = false
	s.state = StateNoLeader
	s.heartbeatSent = false
	m.mu.Unlock()

	if !hadLeader {
		m.logger.Warn("vacated push for scope without leader", log.Scope(scopeID))
	}
	m.logger.Info("scope leader vacated", log.Scope(scopeID), log.String("leader", userID))

	m.callbackMu.RLock()
	cb := m.onVacated
	m.callbackMu.RUnlock()
	if cb != nil {
		cb(scopeID, userID)
	}
}

// SetElectedScopeLeaderCallback registers the elected observer. The last
// registration wins; nil removes it.
func (m *Manager) SetElectedScopeLeaderCallback(cb LeaderCallback) {
	m.callbackMu.Lock()
	m.onElected = cb
	m.callbackMu.Unlock()
}

// SetVacatedAsScopeLeaderCallback registers the vacated observer. The last
// registration wins; nil removes it.
func (m *Manager) SetVacatedAsScopeLeaderCallback(cb LeaderCallback) {
	m.callbackMu.Lock()
	m.onVacated = cb
	m.callbackMu.Unlock()
}

// Leader returns the last reported leadership of scopeID.
func (m *Manager) Leader(scopeID string) (ScopeLeader, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scopes[scopeID]
	if !ok {
		return ScopeLeader{}, false
	}
	return s.leader, true
}

func (m *Manager) State(scopeID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.scopes[scopeID]; ok {
		return s.state
	}
	return StateNoLeader
}

func (m *Manager) IsLocalClientLeader(scopeID string) bool {
	return m.State(scopeID) == StateLeading
}

// Bind subscribes the manager to the relay's election pushes and returns
// the func that unsubscribes.
func (m *Manager) Bind() func() {
	elected := m.hub.On(hub.OnElectedScopeLeader, func(args codec.Node) {
		scopeID, userID, err := parseLeaderPush(args)
		if err != nil {
			m.logger.Error("malformed elected push", log.Error(err))
			return
		}
		m.OnElectedScopeLeader(scopeID, userID)
	})
	vacated := m.hub.On(hub.OnVacatedAsScopeLeader, func(args codec.Node) {
		scopeID, userID, err := parseLeaderPush(args)
		if err != nil {
			m.logger.Error("malformed vacated push", log.Error(err))
			return
		}
		m.OnVacatedAsScopeLeader(scopeID, userID)
	})
	return func() {
		elected()
		vacated()
	}
}

func (m *Manager) stateForLocked(leaderUserID string) State {
	switch {
	case leaderUserID == "":
		return StateNoLeader
	case leaderUserID == m.localUserID:
		return StateLeading
	default:
		return StateFollowing
	}
}

// parseLeaderPush reads [scopeId, userId?]. The relay sends user ids as
// strings or as integers.
func parseLeaderPush(args codec.Node) (string, string, error) {
	items := args.Items()
	if len(items) == 0 || items[0].Kind() != codec.NodeString {
		return "", "", errors.Wrapf(protocol.ErrMalformedMessage, "leader push %s", args)
	}
	scopeID := items[0].AsString()
	if len(items) < 2 {
		return scopeID, "", nil
	}

	user := items[1]
	switch user.Kind() {
	case codec.NodeString:
		return scopeID, user.AsString(), nil
	case codec.NodeNull:
		return scopeID, "", nil
	}
	if id, ok := user.ToUint64(); ok {
		return scopeID, strconv.FormatUint(id, 10), nil
	}
	return "", "", errors.Wrapf(protocol.ErrMalformedMessage, "leader id is %s", user.Kind())
}
