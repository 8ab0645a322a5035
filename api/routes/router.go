package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/payvault-backend/api/controllers"
	"github.com/angelmondragon/payvault-backend/api/middleware"
	"github.com/angelmondragon/payvault-backend/internal/renewals"
	"github.com/angelmondragon/payvault-backend/internal/vault"
	"github.com/angelmondragon/payvault-backend/pkg/config"
	"github.com/angelmondragon/payvault-backend/pkg/db"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
	"github.com/angelmondragon/payvault-backend/pkg/metrics"
	"github.com/angelmondragon/payvault-backend/pkg/redis"
)

// RouterParams groups the collaborators the HTTP surface depends on.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    *redis.Client
	Vault    vault.Service
	Renewer  renewals.Renewer
	Gatherer prometheus.Gatherer
	HTTP     *metrics.HTTPMetrics
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTP),
		middleware.CORS(cfg.HTTP.CORSAllowedOrigins),
	)

	deps := map[string]controllers.Pinger{}
	if p.DB != nil {
		deps["db"] = p.DB
	}
	if p.Redis != nil {
		deps["redis"] = p.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, logg, deps))
	})

	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	var (
		limiter          func(http.Handler) http.Handler
		chargeLimit      func(http.Handler) http.Handler
		idempotent       func(http.Handler) http.Handler
		chargeIdempotent func(http.Handler) http.Handler
	)
	if p.Redis != nil {
		limiter = middleware.RateLimit(middleware.RateLimitPolicy{
			Name:   "api",
			Window: cfg.HTTP.RateLimitWindow,
			Limit:  cfg.HTTP.RateLimitRequests,
		}, p.Redis, logg)
		chargeLimit = middleware.RateLimit(middleware.RateLimitPolicy{
			Name:   "charges",
			Window: cfg.HTTP.RateLimitWindow,
			Limit:  cfg.HTTP.ChargeRateLimit,
		}, p.Redis, logg)
		idempotent = middleware.Idempotency(p.Redis, cfg.Idempotency.TTL, logg)
		chargeIdempotent = middleware.Idempotency(p.Redis, cfg.Idempotency.ChargeTTL, logg)
	} else {
		limiter = passthrough
		chargeLimit = passthrough
		idempotent = passthrough
		chargeIdempotent = passthrough
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limiter)

		r.Route("/customers/{customerID}", func(r chi.Router) {
			r.With(idempotent).Post("/cards", controllers.SaveCard(p.Vault, logg))
			r.Get("/cards", controllers.ListCards(p.Vault, logg))
			r.With(chargeLimit, chargeIdempotent).Post("/charges", controllers.Charge(p.Vault, logg))
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", controllers.FindTransaction(p.Vault, logg))
			r.Get("/{id}", controllers.GetTransaction(p.Vault, logg))
		})

		r.With(idempotent).Post("/renewals", controllers.TriggerRenewal(p.Renewer, logg))
	})

	return r
}

func passthrough(next http.Handler) http.Handler {
	return next
}
