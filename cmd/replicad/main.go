// replicad connects to a multiplayer relay, mirrors the entities of the
// configured scopes and keeps their patches and scope leadership flowing
// until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/zeusync/replica/internal/config"
	"github.com/zeusync/replica/internal/core/entity"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/injector"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "replicad: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := injector.InitializeApp(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "initialize")
	}
	defer cleanup()

	logger := app.Logger
	s := app.Session
	s.SetRemoteEntityCreatedCallback(func(e *entity.Entity) {
		logger.Debug("remote entity", log.EntityID(e.ID()), log.String("name", e.Name()), log.String("type", e.Type().String()))
	})
	s.SetEntityDestroyedCallback(func(e *entity.Entity) {
		logger.Debug("entity destroyed", log.EntityID(e.ID()))
	})
	s.SetDisconnectCallback(func(string) { stop() })
	s.Election().SetElectedScopeLeaderCallback(func(scopeID, userID string) {
		logger.Info("scope leader elected", log.Scope(scopeID), log.String("user_id", userID))
	})

	if err = s.Connect(ctx); err != nil {
		return errors.Wrap(err, "connect")
	}
	n, err := s.FetchAllEntities(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch entities")
	}
	logger.Info("session ready", log.Uint64("client_id", s.ClientID()), log.Int("entities", n))

	if err = s.Schedule(app.Scheduler, cfg.Session.TickInterval); err != nil {
		return err
	}
	runErr := app.Scheduler.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = s.Disconnect(shutdownCtx); err != nil {
		logger.Warn("disconnect failed", log.Error(err))
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	logger.Info("stopped", s.Metrics().Snapshot().Fields()...)
	return nil
}

// loadConfig reads the optional config file, then applies the flags that
// were set explicitly.
func loadConfig(args []string) (config.Config, error) {
	flags := pflag.NewFlagSet("replicad", pflag.ContinueOnError)
	var (
		path          = flags.StringP("config", "c", "", "path to a YAML config file")
		url           = flags.String("url", "", "relay websocket url")
		logLevel      = flags.String("log-level", "", "debug, info, warn, error or fatal")
		scopes        = flags.StringSlice("scope", nil, "scope to enter (repeatable)")
		headers       = flags.StringToString("header", nil, "extra handshake header as key=value (repeatable)")
		tick          = flags.Duration("tick", 0, "session tick interval")
		heartbeat     = flags.Duration("heartbeat", 0, "scope leader heartbeat interval")
		pageSize      = flags.Int("page-size", 0, "entities fetched per page")
		election      = flags.Bool("election", true, "claim leadership of scopes without a leader")
		selfMessaging = flags.Bool("self-messaging", false, "ask the relay to echo this client's patches")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: replicad [flags]\n\n%s", flags.FlagUsages())
	}
	if err := flags.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	if *path != "" {
		var err error
		if cfg, err = config.Load(*path); err != nil {
			return config.Config{}, err
		}
	}

	if flags.Changed("url") {
		cfg.Hub.URL = *url
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	if flags.Changed("scope") {
		cfg.Session.Scopes = *scopes
	}
	if flags.Changed("header") {
		if cfg.Hub.Headers == nil {
			cfg.Hub.Headers = make(map[string]string, len(*headers))
		}
		for k, v := range *headers {
			cfg.Hub.Headers[k] = v
		}
	}
	if flags.Changed("tick") {
		cfg.Session.TickInterval = *tick
	}
	if flags.Changed("heartbeat") {
		cfg.Election.HeartbeatInterval = *heartbeat
	}
	if flags.Changed("page-size") {
		cfg.Session.PageSize = *pageSize
	}
	if flags.Changed("election") {
		cfg.Session.LeaderElection = *election
	}
	if flags.Changed("self-messaging") {
		cfg.Session.AllowSelfMessaging = *selfMessaging
	}

	return cfg, cfg.Validate()
}
