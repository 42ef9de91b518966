// Package app wires configuration, storage, the work queue, and the workers
// into a runnable process.
package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hookline/hookline/internal/apirouter"
	"github.com/hookline/hookline/internal/breaker"
	"github.com/hookline/hookline/internal/clock"
	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/dispatch"
	"github.com/hookline/hookline/internal/ingest"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/migrations"
	"github.com/hookline/hookline/internal/mqs"
	"github.com/hookline/hookline/internal/retry"
	"github.com/hookline/hookline/internal/sender"
	"github.com/hookline/hookline/internal/services"
	"github.com/hookline/hookline/internal/store"
	"github.com/hookline/hookline/internal/version"
	"github.com/hookline/hookline/internal/worker"
)

type App struct {
	cfg *config.Config
}

func New(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// Run starts the API server and the dispatch consumer and blocks until a
// termination signal or a fatal startup error.
func (a *App) Run(ctx context.Context) error {
	logger, err := logging.NewLogger(logging.WithLogLevel(a.cfg.LogLevel))
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting hookline", zap.String("version", version.Version()))

	if err := a.migrate(); err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, a.cfg.Postgres.URL())
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return err
	}
	pgStore := store.NewPGStore(pool)

	queue := mqs.NewRabbitMQQueue(&mqs.RabbitMQConfig{
		ServerURL: a.cfg.AMQP.ServerURL(),
		Exchange:  a.cfg.AMQP.Exchange,
		Queue:     a.cfg.AMQP.SentMessageQueue,
	})
	cleanup, err := queue.Init(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	retryPolicy, err := retry.NewPolicyBuilder().
		MaxAttempts(a.cfg.Dispatch.RetryMaxAttempts).
		Exponential(a.cfg.Dispatch.RetryMultiplier, time.Duration(a.cfg.Dispatch.RetryBaseDelaySeconds)*time.Second).
		Randomize(0.5).
		Build()
	if err != nil {
		return err
	}

	ingestHandler := ingest.NewEventHandler(logger, pgStore, queue)
	dispatchHandler := dispatch.NewMessageHandler(
		logger,
		pgStore,
		queue,
		sender.New(sender.WithTimeout(time.Duration(a.cfg.Dispatch.DeliveryTimeoutSeconds)*time.Second)),
		breaker.New(breaker.WithThreshold(uint32(a.cfg.Dispatch.BreakerThreshold))),
		retryPolicy,
		clock.New(),
	)

	server := &http.Server{
		Addr:    a.cfg.Server.Addr(),
		Handler: apirouter.NewRouter(logger, pgStore, ingestHandler),
	}

	supervisor := worker.NewSupervisor(logger, worker.WithShutdownTimeout(30*time.Second))
	supervisor.Register(services.NewHTTPServerWorker(server, logger))
	supervisor.Register(services.NewDispatchWorker(queue, dispatchHandler, a.cfg.Dispatch.Concurrency, logger))

	return supervisor.Run(ctx)
}

func (a *App) migrate() error {
	migrator, err := migrations.New(a.cfg.Postgres.URL())
	if err != nil {
		return err
	}
	defer migrator.Close()
	return migrator.Up()
}

// MigrateUp applies pending schema migrations and returns the resulting
// version.
func (a *App) MigrateUp(ctx context.Context) (int, error) {
	migrator, err := migrations.New(a.cfg.Postgres.URL())
	if err != nil {
		return 0, err
	}
	defer migrator.Close()
	if err := migrator.Up(); err != nil {
		return 0, err
	}
	return migrator.Version()
}

// MigrateDown rolls back all schema migrations.
func (a *App) MigrateDown(ctx context.Context) error {
	migrator, err := migrations.New(a.cfg.Postgres.URL())
	if err != nil {
		return err
	}
	defer migrator.Close()
	return migrator.Down()
}
