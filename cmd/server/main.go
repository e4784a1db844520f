package main

import (
	"context"
	"log"
	"os"
	"runtime/debug"

	"github.com/iota-uz/feedback-hub/internal/bootstrap"
	"github.com/iota-uz/feedback-hub/internal/server"
	"github.com/iota-uz/feedback-hub/migrations"
	"github.com/iota-uz/feedback-hub/pkg/configuration"
	"github.com/iota-uz/feedback-hub/pkg/logging"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	if conf.OpenTelemetry.Enabled {
		tracingCleanup := logging.SetupTracing(
			context.Background(),
			conf.OpenTelemetry.ServiceName,
			conf.OpenTelemetry.TempoURL,
		)
		defer tracingCleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	if conf.MigrateOnStart {
		runner, err := migrations.Open(conf.Database.Opts, logger)
		if err != nil {
			log.Fatalf("failed to open migrations: %v", err)
		}
		if err := runner.Up(context.Background()); err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
		_ = runner.Close()
	}

	rt, err := bootstrap.New(context.Background(), conf, logger)
	if err != nil {
		log.Fatalf("failed to bootstrap: %v", err)
	}
	defer func() { _ = rt.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rt.StartOutbox(ctx); err != nil {
		log.Fatalf("failed to start outbox: %v", err)
	}

	serverInstance, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   rt.App,
		Pool:          rt.Pool,
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}
	log.Printf("Listening on: %s\n", conf.Origin)
	if err := serverInstance.Start(conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
