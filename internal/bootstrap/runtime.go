// Package bootstrap assembles the process-wide dependencies shared by the
// HTTP server and the hierarchy CLI.
package bootstrap

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/feedback-hub/modules"
	"github.com/iota-uz/feedback-hub/modules/core/domain/role"
	"github.com/iota-uz/feedback-hub/modules/hierarchy/infrastructure/natsbridge"
	"github.com/iota-uz/feedback-hub/modules/hierarchy/infrastructure/persistence"
	"github.com/iota-uz/feedback-hub/pkg/application"
	"github.com/iota-uz/feedback-hub/pkg/authz"
	"github.com/iota-uz/feedback-hub/pkg/configuration"
	"github.com/iota-uz/feedback-hub/pkg/eventbus"
	"github.com/iota-uz/feedback-hub/pkg/outbox"
)

type Runtime struct {
	Config *configuration.Configuration
	Logger *logrus.Logger
	Pool   *pgxpool.Pool
	App    application.Application

	forwarder *natsbridge.Forwarder
	closers   []func() error
}

// New connects to Postgres, optional Redis and NATS, and loads every built-in module.
func New(ctx context.Context, conf *configuration.Configuration, logger *logrus.Logger) (*Runtime, error) {
	rt := &Runtime{Config: conf, Logger: logger}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(connectCtx, conf.Database.Opts)
	if err != nil {
		return nil, err
	}
	rt.Pool = pool
	rt.closers = append(rt.closers, func() error { pool.Close(); return nil })

	roles := role.DefaultHierarchy()
	if path := conf.Hierarchy.RoleHierarchyPath; path != "" {
		roles, err = role.LoadHierarchy(path)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		logger.Infof("Loaded role hierarchy from %s", path)
	}

	authzSvc, err := authz.NewService(authz.Config{
		ModelPath:  conf.Authz.ModelPath,
		PolicyPath: conf.Authz.PolicyPath,
		FlagPath:   conf.Authz.FlagPath,
		FlagMode:   authz.Mode(conf.Authz.Mode),
		Logger:     logger,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	var redisClient redis.UniversalClient
	if conf.Hierarchy.TreeCache == "redis" {
		redisClient, err = newRedisClient(conf.RedisURL)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, redisClient.Close)
	}

	var forwarder *natsbridge.Forwarder
	if conf.NATS.URL != "" {
		forwarder, err = natsbridge.Connect(conf.NATS.URL, conf.NATS.Subject, logger)
		if err != nil {
			logger.WithError(err).Warn("NATS unavailable; hierarchy events stay in-process")
		} else {
			rt.forwarder = forwarder
			rt.closers = append(rt.closers, forwarder.Close)
		}
	}

	rt.App = application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	err = application.Load(rt.App, modules.BuiltInModules(modules.Dependencies{
		Config:    conf,
		Roles:     roles,
		Authz:     authzSvc,
		Redis:     redisClient,
		Forwarder: forwarder,
	})...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

// StartOutbox launches the outbox relay and cleaner until ctx is cancelled.
// The relay needs NATS; without it rows wait in hierarchy_outbox.
func (rt *Runtime) StartOutbox(ctx context.Context) error {
	opts := rt.Config.Outbox
	if !opts.Enabled {
		return nil
	}
	entry := logrus.NewEntry(rt.Logger).WithField("component", "outbox")

	cleaner, err := outbox.NewCleaner(rt.Pool, persistence.OutboxTable, outbox.CleanerOptions{
		Retention:     opts.Retention,
		DeadRetention: opts.DeadRetention,
		DeadAttempts:  opts.MaxAttempts,
		Logger:        entry,
	})
	if err != nil {
		return err
	}
	go rt.runWorker(ctx, entry, "cleaner", cleaner.Run)

	if rt.forwarder == nil {
		entry.Warn("NATS is not connected; hierarchy events stay queued in the outbox")
		return nil
	}
	relay, err := outbox.NewRelay(rt.Pool, persistence.OutboxTable, rt.forwarder, outbox.RelayOptions{
		PollInterval: opts.PollInterval,
		BatchSize:    opts.BatchSize,
		MaxAttempts:  opts.MaxAttempts,
		SingleActive: opts.SingleActive,
		Logger:       entry,
	})
	if err != nil {
		return err
	}
	go rt.runWorker(ctx, entry, "relay", relay.Run)
	return nil
}

func (rt *Runtime) runWorker(ctx context.Context, logger *logrus.Entry, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Errorf("outbox %s stopped", name)
	}
}

// Close releases connections in reverse order of acquisition.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func newRedisClient(addr string) (redis.UniversalClient, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}
