package config

import "time"

const (
	EnvPrefix = "BAZAAR"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "BAZAAR_APP_ENV"
	EnvPort     = "BAZAAR_APP_PORT"
	EnvDBDSN    = "BAZAAR_DB_DSN"
	EnvDBHost   = "BAZAAR_DB_HOST"
	EnvDBUser   = "BAZAAR_DB_USER"
	EnvDBName   = "BAZAAR_DB_NAME"
	EnvRedisURL = "BAZAAR_REDIS_URL"

	EnvJWTSecret  = "BAZAAR_JWT_SECRET"
	EnvJWTIssuer  = "BAZAAR_JWT_ISSUER"
	EnvJWTExpMins = "BAZAAR_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID      = "BAZAAR_GCP_PROJECT_ID"
	EnvPubSubDomainTopic = "BAZAAR_PUBSUB_DOMAIN_TOPIC"

	EnvStripeAPIKey        = "BAZAAR_STRIPE_API_KEY"
	EnvStripeWebhookSecret = "BAZAAR_STRIPE_WEBHOOK_SECRET"
	EnvStripeSessionTTL    = "BAZAAR_STRIPE_CHECKOUT_SESSION_TTL"

	EnvCronPendingOrderTTL = "BAZAAR_CRON_PENDING_ORDER_TTL"

	EnvCheckoutTaxRate     = "BAZAAR_CHECKOUT_TAX_RATE"
	EnvCheckoutPlatformFee = "BAZAAR_CHECKOUT_PLATFORM_FEE_PERCENT"
	EnvCheckoutListingFee  = "BAZAAR_CHECKOUT_LISTING_FEE_CENTS"
)

const (
	MinCheckoutSessionTTL = 30 * time.Minute
	MaxCheckoutSessionTTL = 24 * time.Hour
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
