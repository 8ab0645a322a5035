package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/payvault-backend/internal/cron"
	"github.com/angelmondragon/payvault-backend/internal/renewals"
	"github.com/angelmondragon/payvault-backend/internal/subscriptions"
	"github.com/angelmondragon/payvault-backend/internal/wiring"
	"github.com/angelmondragon/payvault-backend/pkg/config"
	"github.com/angelmondragon/payvault-backend/pkg/db"
	"github.com/angelmondragon/payvault-backend/pkg/instance"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
	"github.com/angelmondragon/payvault-backend/pkg/metrics"
	"github.com/angelmondragon/payvault-backend/pkg/migrate"
	"github.com/angelmondragon/payvault-backend/pkg/pubsub"
	"github.com/angelmondragon/payvault-backend/pkg/redis"
)

const lockKeyFormat = "payvault:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Instance:    instance.GetID(),
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gatewayMetrics := metrics.NewGatewayMetrics(prometheus.DefaultRegisterer)
	dispatcher, cleanup, err := buildDispatcher(cfg, logg, dbClient, redisClient, gatewayMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create renewal dispatcher", err)
		os.Exit(1)
	}
	defer cleanup()

	sweep, err := renewals.NewSweepJob(renewals.SweepJobParams{
		Subscriptions: subscriptions.NewRepository(dbClient.DB()),
		Dispatcher:    dispatcher,
		Logger:        logg,
		Limit:         cfg.Renewal.SweepLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create renewal sweep", err)
		os.Exit(1)
	}

	lock, err := cron.NewMutexLock(redisClient.Universal(), lockKey(cfg.App.Env), cfg.Renewal.CronLockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(sweep)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewSchedulerMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Renewal.CronInterval,
		JobTimeout: cfg.Renewal.CronLockTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Renewal.CronInterval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildDispatcher publishes due ids to the renewal topic, or renews them in
// process when Pub/Sub is not configured or inline dispatch is forced.
func buildDispatcher(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, m *metrics.GatewayMetrics) (renewals.Dispatcher, func(), error) {
	noop := func() {}
	ctx := context.Background()

	var psClient *pubsub.Client
	if cfg.GCP.Enabled() {
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.Needs{
			pubsub.Topic(cfg.PubSub.RenewalTopic),
			pubsub.Topic(cfg.PubSub.NotificationTopic),
		}, logg)
		if err != nil {
			return nil, noop, err
		}
		psClient = client
	}
	cleanup := func() {
		if psClient == nil {
			return
		}
		if err := psClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub", err)
		}
	}

	if psClient != nil && !cfg.Renewal.InlineDispatch {
		dispatcher, err := renewals.NewPubSubDispatcher(psClient.RenewalPublisher())
		if err != nil {
			cleanup()
			return nil, noop, err
		}
		logg.Info(ctx, "renewals dispatched to pubsub")
		return dispatcher, cleanup, nil
	}

	gatewaySet, err := wiring.Gateways(ctx, cfg, logg, m)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	vaultSvc, err := wiring.Vault(dbClient, gatewaySet, logg, m)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	notifier, err := wiring.Notifier(psClient, logg)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	job, err := wiring.RenewalJob(cfg, dbClient, redisClient, vaultSvc, notifier, logg, m)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	dispatcher, err := renewals.NewInlineDispatcher(job, logg, cfg.Renewal.Concurrency)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	logg.Info(ctx, "renewals dispatched inline")
	return dispatcher, cleanup, nil
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
