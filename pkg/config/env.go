package config

const (
	EnvPrefix = "PAYVAULT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	AppmaxSandboxURL    = "https://homolog.sandboxappmax.com.br"
	AppmaxProductionURL = "https://admin.appmax.com.br"
)

const (
	EnvAppEnv   = "PAYVAULT_APP_ENV"
	EnvPort     = "PAYVAULT_APP_PORT"
	EnvLogLevel = "PAYVAULT_LOG_LEVEL"

	EnvDBDSN  = "PAYVAULT_DB_DSN"
	EnvDBHost = "PAYVAULT_DB_HOST"
	EnvDBUser = "PAYVAULT_DB_USER"
	EnvDBName = "PAYVAULT_DB_NAME"

	EnvRedisURL = "PAYVAULT_REDIS_URL"

	EnvGCPProjectID       = "PAYVAULT_GCP_PROJECT_ID"
	EnvPubSubRenewalTopic = "PAYVAULT_PUBSUB_RENEWAL_TOPIC"
	EnvPubSubRenewalSub   = "PAYVAULT_PUBSUB_RENEWAL_SUBSCRIPTION"
	EnvPubSubNotifyTopic  = "PAYVAULT_PUBSUB_NOTIFICATION_TOPIC"
	EnvStripeAPIKey       = "PAYVAULT_STRIPE_API_KEY"
	EnvStripeEnv          = "PAYVAULT_STRIPE_ENV"
	EnvPagarmeSecretKey   = "PAYVAULT_PAGARME_SECRET_KEY"
	EnvAppmaxAccessToken  = "PAYVAULT_APPMAX_ACCESS_TOKEN"
	EnvAppmaxEnv          = "PAYVAULT_APPMAX_ENV"
	EnvRenewalConcurrency = "PAYVAULT_RENEWAL_CONCURRENCY"
	EnvRenewalsEnabled    = "PAYVAULT_RENEWALS_ENABLED"
	EnvGatewayMaxAttempts = "PAYVAULT_GATEWAY_MAX_ATTEMPTS"
	EnvCORSAllowedOrigins = "PAYVAULT_CORS_ALLOWED_ORIGINS"
	EnvRateLimitRequests  = "PAYVAULT_RATE_LIMIT_REQUESTS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
