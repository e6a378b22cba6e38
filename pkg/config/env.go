package config

// EnvPrefix is the envconfig prefix for every setting.
const EnvPrefix = "BEADSHOP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "BEADSHOP_APP_ENV"
	EnvPort     = "BEADSHOP_APP_PORT"
	EnvLogLevel = "BEADSHOP_LOG_LEVEL"

	EnvDBDSN  = "BEADSHOP_DB_DSN"
	EnvDBHost = "BEADSHOP_DB_HOST"
	EnvDBUser = "BEADSHOP_DB_USER"
	EnvDBName = "BEADSHOP_DB_NAME"

	EnvRedisURL = "BEADSHOP_REDIS_URL"

	EnvJWTSecret  = "BEADSHOP_JWT_SECRET"
	EnvJWTIssuer  = "BEADSHOP_JWT_ISSUER"
	EnvJWTExpMins = "BEADSHOP_JWT_EXPIRATION_MINUTES"

	EnvStripeAPIKey = "BEADSHOP_STRIPE_API_KEY"
	EnvStripeSecret = "BEADSHOP_STRIPE_WEBHOOK_SECRET"

	EnvP24MerchantID = "BEADSHOP_P24_MERCHANT_ID"
	EnvP24CRC        = "BEADSHOP_P24_CRC"

	EnvGCPProjectID      = "BEADSHOP_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic = "BEADSHOP_PUBSUB_ORDERS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
