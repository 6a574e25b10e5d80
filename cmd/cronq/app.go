package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/phrazzld/cronq/internal/config"
	"github.com/phrazzld/cronq/internal/events"
	"github.com/phrazzld/cronq/internal/platform/postgres"
	"github.com/phrazzld/cronq/internal/service"
)

// application holds the dependencies of one command invocation and
// releases them in cleanup.
type application struct {
	config  *config.Config
	logger  *slog.Logger
	manager *postgres.Manager
	store   *postgres.PostgresCronTaskStore
	service service.CronService

	// emitter fans events out to the registered handlers
	emitter *events.InMemoryEventEmitter
	nats    *nats.Conn
}

// newApplication wires the pool manager, the store on the requested pool,
// the event pipeline and the service.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	kind postgres.PoolKind,
) (*application, error) {
	manager, err := postgres.NewManager(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pools: %w", err)
	}

	app := &application{
		config:  cfg,
		logger:  logger,
		manager: manager,
		emitter: events.NewInMemoryEventEmitter(logger),
	}

	if cfg.Events.NATSURL != "" {
		conn, err := events.Connect(cfg.Events.NATSURL, "cronq", logger)
		if err != nil {
			app.cleanup()
			return nil, err
		}
		app.nats = conn
		app.emitter.RegisterHandler(events.NewNATSPublisher(conn, cfg.Events.SubjectPrefix, logger))
	}

	app.store = postgres.NewPostgresCronTaskStore(manager, logger, postgres.WithPoolKind(kind))
	svc, err := service.NewCronService(app.store, app.emitter, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create cron service: %w", err)
	}
	app.service = svc
	return app, nil
}

// cleanup flushes pending NATS messages and closes both pools.
func (app *application) cleanup() {
	if app.nats != nil {
		if err := app.nats.Drain(); err != nil {
			app.logger.Warn("failed to drain nats connection", slog.String("error", err.Error()))
			app.nats.Close()
		}
	}
	if app.manager != nil {
		app.manager.Close()
	}
}
