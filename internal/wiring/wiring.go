// Package wiring assembles the vault, gateway adapters and renewal job from
// configuration so every binary builds them the same way.
package wiring

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/payvault-backend/internal/customerlinks"
	"github.com/angelmondragon/payvault-backend/internal/customers"
	"github.com/angelmondragon/payvault-backend/internal/gateways"
	"github.com/angelmondragon/payvault-backend/internal/notifications"
	"github.com/angelmondragon/payvault-backend/internal/renewals"
	"github.com/angelmondragon/payvault-backend/internal/subscriptions"
	"github.com/angelmondragon/payvault-backend/internal/vault"
	"github.com/angelmondragon/payvault-backend/pkg/appmax"
	"github.com/angelmondragon/payvault-backend/pkg/config"
	"github.com/angelmondragon/payvault-backend/pkg/db"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
	"github.com/angelmondragon/payvault-backend/pkg/metrics"
	"github.com/angelmondragon/payvault-backend/pkg/pagarme"
	"github.com/angelmondragon/payvault-backend/pkg/pubsub"
	"github.com/angelmondragon/payvault-backend/pkg/redis"
	"github.com/angelmondragon/payvault-backend/pkg/stripe"
)

// Gateways builds an adapter for every provider with credentials configured.
// Providers without credentials stay nil and fail with UNSUPPORTED_PROVIDER.
func Gateways(ctx context.Context, cfg *config.Config, logg *logger.Logger, m *metrics.GatewayMetrics) (gateways.Set, error) {
	var set gateways.Set

	if strings.TrimSpace(cfg.Stripe.APIKey) != "" {
		client, err := stripe.NewClient(ctx, cfg.Stripe, stripe.Options{
			Timeout:     cfg.Gateway.Timeout,
			MaxAttempts: cfg.Gateway.MaxAttempts,
			BaseURL:     cfg.Stripe.BaseURL,
			Metrics:     m,
		}, logg)
		if err != nil {
			return gateways.Set{}, fmt.Errorf("stripe client: %w", err)
		}
		if set.Stripe, err = gateways.NewStripeGateway(client, logg); err != nil {
			return gateways.Set{}, err
		}
	}

	if strings.TrimSpace(cfg.Pagarme.SecretKey) != "" {
		client, err := pagarme.NewClient(cfg.Pagarme, cfg.Gateway, logg, m)
		if err != nil {
			return gateways.Set{}, fmt.Errorf("pagarme client: %w", err)
		}
		if set.Pagarme, err = gateways.NewPagarmeGateway(client, logg); err != nil {
			return gateways.Set{}, err
		}
	}

	if strings.TrimSpace(cfg.Appmax.AccessToken) != "" {
		client, err := appmax.NewClient(cfg.Appmax, cfg.Gateway, logg, m)
		if err != nil {
			return gateways.Set{}, fmt.Errorf("appmax client: %w", err)
		}
		if set.Appmax, err = gateways.NewAppmaxGateway(client, logg); err != nil {
			return gateways.Set{}, err
		}
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"stripe":  set.Stripe != nil,
			"pagarme": set.Pagarme != nil,
			"appmax":  set.Appmax != nil,
		}), "payment gateways configured")
	}
	return set, nil
}

// Vault builds the vault service over the shared database client.
func Vault(dbClient *db.Client, set gateways.Set, logg *logger.Logger, m *metrics.GatewayMetrics) (vault.Service, error) {
	conn := dbClient.DB()
	return vault.NewService(vault.ServiceParams{
		Repo:          vault.NewRepository(conn),
		Customers:     customers.NewRepository(conn),
		CustomerLinks: customerlinks.NewRepository(conn),
		Gateways:      set,
		Tx:            dbClient,
		Logger:        logg,
		Metrics:       m,
	})
}

// Notifier publishes to Pub/Sub when a client is available and logs otherwise.
func Notifier(ps *pubsub.Client, logg *logger.Logger) (notifications.Notifier, error) {
	if ps == nil {
		return notifications.NewLogNotifier(logg), nil
	}
	return notifications.NewPubSubNotifier(ps.NotificationPublisher(), logg)
}

// RenewalJob builds the per-subscription renewal job.
func RenewalJob(cfg *config.Config, dbClient *db.Client, redisClient *redis.Client, vaultSvc vault.Service, notifier notifications.Notifier, logg *logger.Logger, m *metrics.GatewayMetrics) (*renewals.Job, error) {
	locker, err := renewals.NewRedsyncLocker(redisClient.Universal())
	if err != nil {
		return nil, err
	}
	return renewals.NewJob(renewals.JobParams{
		Subscriptions: subscriptions.NewRepository(dbClient.DB()),
		Vault:         vaultSvc,
		Tx:            dbClient,
		Locker:        locker,
		LockKey:       redisClient.LockKey,
		Notifier:      notifier,
		Logger:        logg,
		Metrics:       m,
		Enabled:       cfg.FeatureFlags.RenewalsEnabled,
		LockTTL:       cfg.Renewal.LockTTL,
	})
}
