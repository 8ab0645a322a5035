package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Pagarme      PagarmeConfig
	Appmax       AppmaxConfig
	Gateway      GatewayHTTPConfig
	Renewal      RenewalConfig
	Idempotency  IdempotencyConfig
	HTTP         HTTPConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Stripe.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PAYVAULT_APP_ENV" required:"true"`
	Port         string `envconfig:"PAYVAULT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PAYVAULT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"PAYVAULT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"PAYVAULT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PAYVAULT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PAYVAULT_DB_DSN"`
	Driver string `envconfig:"PAYVAULT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PAYVAULT_DB_HOST"`
	LegacyPort     int    `envconfig:"PAYVAULT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PAYVAULT_DB_USER"`
	LegacyPassword string `envconfig:"PAYVAULT_DB_PASSWORD"`
	LegacyName     string `envconfig:"PAYVAULT_DB_NAME"`
	LegacySSLMode  string `envconfig:"PAYVAULT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PAYVAULT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PAYVAULT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PAYVAULT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PAYVAULT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"PAYVAULT_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PAYVAULT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PAYVAULT_REDIS_ADDR"`
	Password     string        `envconfig:"PAYVAULT_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAYVAULT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAYVAULT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAYVAULT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAYVAULT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAYVAULT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAYVAULT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate     bool `envconfig:"PAYVAULT_AUTO_MIGRATE" default:"false"`
	RenewalsEnabled bool `envconfig:"PAYVAULT_RENEWALS_ENABLED" default:"true"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PAYVAULT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PAYVAULT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PAYVAULT_GOOGLE_APPLICATION_CREDENTIALS"`
}

// Enabled reports whether a GCP project is configured for Pub/Sub.
func (g GCPConfig) Enabled() bool {
	return strings.TrimSpace(g.ProjectID) != ""
}

type PubSubConfig struct {
	RenewalTopic        string `envconfig:"PAYVAULT_PUBSUB_RENEWAL_TOPIC" default:"payvault-renewals"`
	RenewalSubscription string `envconfig:"PAYVAULT_PUBSUB_RENEWAL_SUBSCRIPTION" default:"payvault-renewals-worker"`
	NotificationTopic   string `envconfig:"PAYVAULT_PUBSUB_NOTIFICATION_TOPIC" default:"payvault-notification-events"`
}

type StripeConfig struct {
	APIKey  string `envconfig:"PAYVAULT_STRIPE_API_KEY"`
	Env     string `envconfig:"PAYVAULT_STRIPE_ENV" default:"test"`
	BaseURL string `envconfig:"PAYVAULT_STRIPE_BASE_URL"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

func (s StripeConfig) validate() error {
	switch s.Environment() {
	case "test", "live":
	default:
		return fmt.Errorf("%s must be test or live", EnvStripeEnv)
	}
	return nil
}

type PagarmeConfig struct {
	SecretKey string `envconfig:"PAYVAULT_PAGARME_SECRET_KEY"`
	BaseURL   string `envconfig:"PAYVAULT_PAGARME_BASE_URL" default:"https://api.pagar.me"`
}

type AppmaxConfig struct {
	AccessToken string `envconfig:"PAYVAULT_APPMAX_ACCESS_TOKEN"`
	Env         string `envconfig:"PAYVAULT_APPMAX_ENV" default:"sandbox"`
	BaseURL     string `envconfig:"PAYVAULT_APPMAX_BASE_URL"`
}

// ResolvedBaseURL returns the explicit base URL or the host for the configured environment.
func (a AppmaxConfig) ResolvedBaseURL() string {
	if strings.TrimSpace(a.BaseURL) != "" {
		return strings.TrimRight(a.BaseURL, "/")
	}
	if strings.EqualFold(strings.TrimSpace(a.Env), "production") {
		return AppmaxProductionURL
	}
	return AppmaxSandboxURL
}

type GatewayHTTPConfig struct {
	Timeout     time.Duration `envconfig:"PAYVAULT_GATEWAY_TIMEOUT" default:"20s"`
	MaxAttempts int           `envconfig:"PAYVAULT_GATEWAY_MAX_ATTEMPTS" default:"3"`
	Backoff     time.Duration `envconfig:"PAYVAULT_GATEWAY_BACKOFF" default:"1s"`
}

type RenewalConfig struct {
	Concurrency    int           `envconfig:"PAYVAULT_RENEWAL_CONCURRENCY" default:"10"`
	SweepLimit     int           `envconfig:"PAYVAULT_RENEWAL_SWEEP_LIMIT" default:"200"`
	LockTTL        time.Duration `envconfig:"PAYVAULT_RENEWAL_LOCK_TTL" default:"2m"`
	CronInterval   time.Duration `envconfig:"PAYVAULT_RENEWAL_CRON_INTERVAL" default:"15m"`
	CronLockTTL    time.Duration `envconfig:"PAYVAULT_RENEWAL_CRON_LOCK_TTL" default:"10m"`
	InlineDispatch bool          `envconfig:"PAYVAULT_RENEWAL_INLINE_DISPATCH" default:"false"`
}

type IdempotencyConfig struct {
	TTL       time.Duration `envconfig:"PAYVAULT_IDEMPOTENCY_TTL" default:"24h"`
	ChargeTTL time.Duration `envconfig:"PAYVAULT_IDEMPOTENCY_CHARGE_TTL" default:"168h"`
}

type HTTPConfig struct {
	CORSAllowedOrigins []string      `envconfig:"PAYVAULT_CORS_ALLOWED_ORIGINS"`
	RateLimitWindow    time.Duration `envconfig:"PAYVAULT_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitRequests  int64         `envconfig:"PAYVAULT_RATE_LIMIT_REQUESTS" default:"120"`
	ChargeRateLimit    int64         `envconfig:"PAYVAULT_CHARGE_RATE_LIMIT" default:"30"`
	ReadHeaderTimeout  time.Duration `envconfig:"PAYVAULT_HTTP_READ_HEADER_TIMEOUT" default:"10s"`
	ShutdownTimeout    time.Duration `envconfig:"PAYVAULT_HTTP_SHUTDOWN_TIMEOUT" default:"20s"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
