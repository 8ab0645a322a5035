package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/payvault-backend/pkg/config"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
	"github.com/angelmondragon/payvault-backend/pkg/metrics"
)

const provider = "STRIPE"

var errAPIKeyRequired = errors.New("stripe api key is required")

// keyPrefixes lists the secret and restricted key prefixes valid per environment.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

// Client calls Stripe through its own stripe.Client so the process-wide
// stripe.Key is never touched.
type Client struct {
	sc      *stripe.Client
	env     string
	metrics *metrics.GatewayMetrics
}

// Options tunes the Stripe backend. A zero value uses the SDK defaults.
type Options struct {
	Timeout     time.Duration
	MaxAttempts int
	// BaseURL points the API backend elsewhere, e.g. stripe-mock or a test server.
	BaseURL string
	Metrics *metrics.GatewayMetrics
}

// NewClient validates the key against the configured environment and builds
// the SDK client. Network retries are delegated to stripe-go, which reuses the
// request's idempotency key on every attempt.
func NewClient(ctx context.Context, cfg config.StripeConfig, opts Options, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return nil, fmt.Errorf("stripe environment must be test or live, got %q", env)
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	if !hasAnyPrefix(key, prefixes) {
		return nil, fmt.Errorf("stripe %s environment requires a %s key", env, strings.Join(prefixes, " or "))
	}

	backend := &stripe.BackendConfig{LeveledLogger: leveledLogger{logg: logg}}
	if opts.Timeout > 0 {
		backend.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.MaxAttempts > 0 {
		backend.MaxNetworkRetries = stripe.Int64(int64(opts.MaxAttempts - 1))
	}
	if opts.BaseURL != "" {
		backend.URL = stripe.String(strings.TrimRight(opts.BaseURL, "/"))
	}

	sc := stripe.NewClient(key, stripe.WithBackends(stripe.NewBackendsWithConfig(backend)))
	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe client initialized")
	}
	return &Client{sc: sc, env: env, metrics: opts.Metrics}, nil
}

// Environment reports test or live.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.env
}

func (c *Client) observe(op string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.ObserveRequest(provider, op, outcome, time.Since(started))
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// leveledLogger routes stripe-go's own logging into the service logger. Its
// info lines are per-request chatter, so they land at debug.
type leveledLogger struct {
	logg *logger.Logger
}

func (l leveledLogger) Debugf(format string, v ...any) { l.write(l.logDebug, format, v...) }
func (l leveledLogger) Infof(format string, v ...any)  { l.write(l.logDebug, format, v...) }
func (l leveledLogger) Warnf(format string, v ...any)  { l.write(l.logWarn, format, v...) }
func (l leveledLogger) Errorf(format string, v ...any) { l.write(l.logWarn, format, v...) }

func (l leveledLogger) write(fn func(context.Context, string), format string, v ...any) {
	if l.logg == nil {
		return
	}
	fn(l.logg.WithField(context.Background(), "provider", provider), "stripe-go: "+fmt.Sprintf(format, v...))
}

func (l leveledLogger) logDebug(ctx context.Context, msg string) { l.logg.Debug(ctx, msg) }
func (l leveledLogger) logWarn(ctx context.Context, msg string)  { l.logg.Warn(ctx, msg) }
