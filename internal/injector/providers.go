package injector

import (
	"context"

	"github.com/google/wire"

	"github.com/zeusync/replica/internal/config"
	"github.com/zeusync/replica/internal/core/election"
	"github.com/zeusync/replica/internal/core/hub"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/registry"
	"github.com/zeusync/replica/internal/core/scheduler"
	"github.com/zeusync/replica/internal/core/session"
	"github.com/zeusync/replica/pkg/clock"
)

// App is everything replicad runs.
type App struct {
	Config    config.Config
	Logger    log.Log
	Hub       hub.Hub
	Session   *session.Session
	Scheduler *scheduler.Scheduler
}

// ProviderSet builds an App from a context and a validated config.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	clock.Real,
	ProvideRegistry,
	ProvideHub,
	ProvideElection,
	ProvideSession,
	scheduler.New,
	wire.Struct(new(App), "*"),
)

func ProvideLogger(cfg config.Config) *log.Logger {
	return log.New(cfg.LogLevel())
}

func ProvideRegistry(cfg config.Config) *registry.Registry {
	return registry.New(cfg.Session.RegistryShards)
}

// ProvideHub dials the relay. The cleanup closes the connection.
func ProvideHub(ctx context.Context, cfg config.Config, logger log.Log) (hub.Hub, func(), error) {
	h, err := hub.DialWebsocket(ctx, cfg.WebsocketConfig(), logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := h.Close(); err != nil {
			logger.Warn("failed to close hub", log.Error(err))
		}
	}
	return h, cleanup, nil
}

func ProvideElection(h hub.Hub, clk clock.Clock, logger log.Log, cfg config.Config) *election.Manager {
	return election.NewManager(h, clk, logger, election.WithHeartbeatInterval(cfg.Election.HeartbeatInterval))
}

func ProvideSession(h hub.Hub, reg *registry.Registry, elect *election.Manager, logger log.Log, cfg config.Config) *session.Session {
	return session.New(h, reg, elect, logger, cfg.SessionConfig())
}
