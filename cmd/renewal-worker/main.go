package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/payvault-backend/internal/renewals"
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

func main() {
	logg := logger.New(logger.Options{ServiceName: "renewal-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "renewal-worker"

	logg = logger.New(logger.Options{
		ServiceName: "renewal-worker",
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

	psClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, pubsub.Needs{
		pubsub.Subscription(cfg.PubSub.RenewalSubscription),
		pubsub.Topic(cfg.PubSub.NotificationTopic),
	}, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := psClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	gatewayMetrics := metrics.NewGatewayMetrics(prometheus.DefaultRegisterer)
	gatewaySet, err := wiring.Gateways(context.Background(), cfg, logg, gatewayMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to configure payment gateways", err)
		os.Exit(1)
	}
	vaultSvc, err := wiring.Vault(dbClient, gatewaySet, logg, gatewayMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create vault service", err)
		os.Exit(1)
	}
	notifier, err := wiring.Notifier(psClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifier", err)
		os.Exit(1)
	}
	job, err := wiring.RenewalJob(cfg, dbClient, redisClient, vaultSvc, notifier, logg, gatewayMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create renewal job", err)
		os.Exit(1)
	}

	consumer, err := renewals.NewConsumer(psClient.RenewalSubscription(), job, logg, cfg.Renewal.Concurrency)
	if err != nil {
		logg.Error(context.Background(), "failed to create renewal consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Logger:   logg,
		Consumer: consumer,
		Dependencies: map[string]pinger{
			"database": dbClient,
			"redis":    redisClient,
			"pubsub":   psClient,
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create renewal worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"serviceKind":  cfg.Service.Kind,
		"subscription": cfg.PubSub.RenewalSubscription,
		"concurrency":  cfg.Renewal.Concurrency,
	})
	logg.Info(ctx, "starting renewal worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "renewal worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "renewal worker shutting down gracefully")
}
