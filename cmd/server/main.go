package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	internalserver "github.com/venuehq/venue-sdk/internal/server"
	"github.com/venuehq/venue-sdk/modules/orders"
	"github.com/venuehq/venue-sdk/pkg/application"
	"github.com/venuehq/venue-sdk/pkg/audit"
	"github.com/venuehq/venue-sdk/pkg/composables"
	"github.com/venuehq/venue-sdk/pkg/configuration"
	"github.com/venuehq/venue-sdk/pkg/eventbus"
	"github.com/venuehq/venue-sdk/pkg/executor"
	"github.com/venuehq/venue-sdk/pkg/idempotency"
	"github.com/venuehq/venue-sdk/pkg/logging"
	"github.com/venuehq/venue-sdk/pkg/outbox"
	outboxeventbus "github.com/venuehq/venue-sdk/pkg/outbox/dispatchers/eventbus"
	"github.com/venuehq/venue-sdk/pkg/softlock"
)

func main() {
	conf := configuration.Use()
	defer conf.Unload()
	log := conf.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.OpenTelemetry.Enabled {
		shutdown := logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
		defer shutdown()
	}

	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		log.WithError(err).Fatal("failed to create database pool")
	}
	defer pool.Close()

	if err := run(ctx, conf, log, pool); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("server exited")
	}
}

func run(ctx context.Context, conf *configuration.Configuration, log *logrus.Logger, pool *pgxpool.Pool) error {
	bus := eventbus.NewEventPublisher(log)

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: bus,
		Logger:   log,
	})

	store := idempotency.NewStore(conf.Idempotency.TTL)
	auditor := audit.NewRecorder(pool, logrus.NewEntry(log))
	exec := executor.New(store, outbox.NewPublisher(), auditor, executor.Options{
		TxTimeout: conf.TxTimeout,
		Logger:    logrus.NewEntry(log),
	})

	lockManager := softlock.NewManager(softlock.ManagerOptions{
		DefaultTTL: conf.SoftLock.DefaultTTL,
		MaxTTL:     conf.SoftLock.MaxTTL,
	})
	app.RegisterControllers(softlock.NewController(lockManager))

	orders.Register(app, exec)

	srv, err := internalserver.Default(&internalserver.DefaultOptions{
		Logger:        log,
		Configuration: conf,
		Application:   app,
		Pool:          pool,
	})
	if err != nil {
		return err
	}

	// Background workers share the server's lifetime. Their context carries
	// the pool so event subscribers can reach the database.
	workerCtx := composables.WithPool(ctx, pool)

	if conf.Outbox.RelayEnabled {
		dispatcher, err := newDispatcher(bus)
		if err != nil {
			return err
		}
		relay, err := outbox.NewRelay(pool, dispatcher, outbox.RelayOptions{
			PollInterval:    conf.Outbox.RelayPollInterval,
			BatchSize:       conf.Outbox.RelayBatchSize,
			ClaimTTL:        conf.Outbox.RelayClaimTTL,
			MaxAttempts:     conf.Outbox.RelayMaxAttempts,
			SingleActive:    conf.Outbox.RelaySingleActive,
			DispatchTimeout: conf.Outbox.RelayDispatchTimeout,
			LastErrorMaxLen: conf.Outbox.LastErrorMaxBytes,
			Logger:          logrus.NewEntry(log),
		})
		if err != nil {
			return err
		}
		go runWorker(workerCtx, log, "outbox relay", relay.Run)
	}

	if conf.Outbox.CleanerEnabled {
		cleaner, err := outbox.NewCleaner(pool, outbox.CleanerOptions{
			Enabled:   true,
			Interval:  conf.Outbox.CleanerInterval,
			Retention: conf.Outbox.CleanerRetention,
			Logger:    logrus.NewEntry(log),
		})
		if err != nil {
			return err
		}
		go runWorker(workerCtx, log, "outbox cleaner", cleaner.Run)
	}

	go runWorker(workerCtx, log, "softlock sweeper", func(ctx context.Context) error {
		return lockManager.RunSweeper(ctx, pool, conf.SoftLock.SweepInterval, logrus.NewEntry(log))
	})
	go runWorker(workerCtx, log, "idempotency sweeper", func(ctx context.Context) error {
		return store.RunSweeper(ctx, pool, conf.Idempotency.SweepInterval, logrus.NewEntry(log))
	})

	log.WithField("address", conf.SocketAddress).Info("starting http server")
	return srv.Start(ctx, conf.SocketAddress)
}

func newDispatcher(bus eventbus.EventBus) (outbox.Dispatcher, error) {
	withError, ok := bus.(eventbus.EventBusWithError)
	if !ok {
		return nil, errors.New("event bus does not support error-returning publish")
	}
	return outboxeventbus.NewDispatcher(withError)
}

func runWorker(ctx context.Context, log *logrus.Logger, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Errorf("%s stopped", name)
	}
}
