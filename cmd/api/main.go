package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/payvault-backend/api/routes"
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
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	var psClient *pubsub.Client
	if cfg.GCP.Enabled() {
		psClient, err = pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, pubsub.Needs{
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
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gatewayMetrics := metrics.NewGatewayMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

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
	renewalJob, err := wiring.RenewalJob(cfg, dbClient, redisClient, vaultSvc, notifier, logg, gatewayMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create renewal job", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Vault:    vaultSvc,
			Renewer:  renewalJob,
			Gatherer: registry,
			HTTP:     httpMetrics,
		}),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
