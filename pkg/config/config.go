package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Checkout     CheckoutConfig
	Connect      ConnectConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	if err := validatePaymentWindow(cfg.Stripe, cfg.Cron); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"BAZAAR_APP_ENV" required:"true"`
	Port         string   `envconfig:"BAZAAR_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"BAZAAR_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"BAZAAR_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"BAZAAR_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"BAZAAR_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BAZAAR_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BAZAAR_DB_DSN"`
	Driver string `envconfig:"BAZAAR_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"BAZAAR_DB_HOST"`
	Port     int    `envconfig:"BAZAAR_DB_PORT" default:"5432"`
	User     string `envconfig:"BAZAAR_DB_USER"`
	Password string `envconfig:"BAZAAR_DB_PASSWORD"`
	Name     string `envconfig:"BAZAAR_DB_NAME"`
	SSLMode  string `envconfig:"BAZAAR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BAZAAR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BAZAAR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements slower than this at warn level. Zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"BAZAAR_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BAZAAR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BAZAAR_REDIS_ADDR"`
	Password     string        `envconfig:"BAZAAR_REDIS_PASSWORD"`
	DB           int           `envconfig:"BAZAAR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BAZAAR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BAZAAR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BAZAAR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BAZAAR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BAZAAR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BAZAAR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BAZAAR_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BAZAAR_JWT_EXPIRATION_MINUTES" required:"true"`
}

// RateLimitConfig bounds authenticated write traffic per user.
type RateLimitConfig struct {
	Window time.Duration `envconfig:"BAZAAR_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int           `envconfig:"BAZAAR_RATE_LIMIT_REQUESTS" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BAZAAR_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	HTTPIdempotencyTTL     time.Duration `envconfig:"BAZAAR_EVENTING_HTTP_IDEMPOTENCY_TTL" default:"24h"`
	OutboxPublisherEnabled bool          `envconfig:"BAZAAR_EVENTING_OUTBOX_PUBLISHER_ENABLED" default:"true"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"BAZAAR_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic string `envconfig:"BAZAAR_PUBSUB_DOMAIN_TOPIC" default:"bazaar-domain-events"`
	// SellerTopic receives store-scoped events (payout onboarding, listing fees).
	// Empty keeps them on DomainTopic.
	SellerTopic string `envconfig:"BAZAAR_PUBSUB_SELLER_TOPIC"`
	// OrderedDelivery publishes with the aggregate id as ordering key.
	OrderedDelivery bool `envconfig:"BAZAAR_PUBSUB_ORDERED_DELIVERY" default:"true"`
}

// Topics lists the distinct topics the publisher writes to.
func (p PubSubConfig) Topics() []string {
	topics := []string{}
	for _, t := range []string{p.DomainTopic, p.SellerTopic} {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(topics, t) {
			topics = append(topics, t)
		}
	}
	return topics
}

// TopicForStoreEvents falls back to the domain topic when no seller topic is set.
func (p PubSubConfig) TopicForStoreEvents() string {
	if t := strings.TrimSpace(p.SellerTopic); t != "" {
		return t
	}
	return p.DomainTopic
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BAZAAR_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BAZAAR_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BAZAAR_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey          string `envconfig:"BAZAAR_STRIPE_API_KEY"`
	WebhookSecret   string `envconfig:"BAZAAR_STRIPE_WEBHOOK_SECRET"`
	Env             string `envconfig:"BAZAAR_STRIPE_ENV" default:"test"`
	ConnectClientID string `envconfig:"BAZAAR_STRIPE_CONNECT_CLIENT_ID"`
	ConnectRedirect string `envconfig:"BAZAAR_STRIPE_CONNECT_REDIRECT_URL"`
	SuccessURL      string `envconfig:"BAZAAR_STRIPE_CHECKOUT_SUCCESS_URL" default:"http://localhost:3000/checkout/success"`
	CancelURL       string `envconfig:"BAZAAR_STRIPE_CHECKOUT_CANCEL_URL" default:"http://localhost:3000/checkout/cancel"`
	Currency        string `envconfig:"BAZAAR_STRIPE_CURRENCY" default:"usd"`
	// SessionTTL is how long a hosted checkout page stays payable. Stripe accepts 30m to 24h.
	SessionTTL time.Duration `envconfig:"BAZAAR_STRIPE_CHECKOUT_SESSION_TTL" default:"24h"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// CheckoutConfig holds the monetary knobs of the checkout engine. Rates are fractions (0.08 == 8%).
type CheckoutConfig struct {
	TaxRate                    decimal.Decimal `envconfig:"BAZAAR_CHECKOUT_TAX_RATE" default:"0.08"`
	PlatformFeePercent         decimal.Decimal `envconfig:"BAZAAR_CHECKOUT_PLATFORM_FEE_PERCENT" default:"0.10"`
	ListingFeeCents            int64           `envconfig:"BAZAAR_CHECKOUT_LISTING_FEE_CENTS" default:"25"`
	GuestFlatShipping          decimal.Decimal `envconfig:"BAZAAR_CHECKOUT_GUEST_FLAT_SHIPPING" default:"5.99"`
	GuestFreeShippingThreshold decimal.Decimal `envconfig:"BAZAAR_CHECKOUT_GUEST_FREE_SHIPPING_THRESHOLD" default:"50.00"`
}

func (c CheckoutConfig) validate() error {
	one := decimal.NewFromInt(1)
	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThan(one) {
		return fmt.Errorf("%s must be between 0 and 1", EnvCheckoutTaxRate)
	}
	if c.PlatformFeePercent.IsNegative() || c.PlatformFeePercent.GreaterThan(one) {
		return fmt.Errorf("%s must be between 0 and 1", EnvCheckoutPlatformFee)
	}
	if c.ListingFeeCents < 0 {
		return fmt.Errorf("%s must not be negative", EnvCheckoutListingFee)
	}
	if c.GuestFlatShipping.IsNegative() || c.GuestFreeShippingThreshold.IsNegative() {
		return fmt.Errorf("guest shipping amounts must not be negative")
	}
	return nil
}

// validatePaymentWindow keeps the stale order sweep from cancelling an order whose
// checkout session can still be paid.
func validatePaymentWindow(stripeCfg StripeConfig, cron CronConfig) error {
	if stripeCfg.SessionTTL < MinCheckoutSessionTTL || stripeCfg.SessionTTL > MaxCheckoutSessionTTL {
		return fmt.Errorf("%s must be between %s and %s", EnvStripeSessionTTL, MinCheckoutSessionTTL, MaxCheckoutSessionTTL)
	}
	if cron.PendingOrderTTL < stripeCfg.SessionTTL {
		return fmt.Errorf("%s (%s) must not be shorter than %s (%s)", EnvCronPendingOrderTTL, cron.PendingOrderTTL, EnvStripeSessionTTL, stripeCfg.SessionTTL)
	}
	return nil
}

type ConnectConfig struct {
	StateTTL time.Duration `envconfig:"BAZAAR_CONNECT_STATE_TTL" default:"30m"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"BAZAAR_CRON_INTERVAL" default:"5m"`
	LockTTL         time.Duration `envconfig:"BAZAAR_CRON_LOCK_TTL" default:"4m"`
	PendingOrderTTL time.Duration `envconfig:"BAZAAR_CRON_PENDING_ORDER_TTL" default:"72h"`
	OutboxRetention time.Duration `envconfig:"BAZAAR_CRON_OUTBOX_RETENTION" default:"720h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range legacyDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
