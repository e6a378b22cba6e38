package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Payments  PaymentsConfig
	Stripe    StripeConfig
	P24       P24Config
	Webhooks  WebhooksConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	Outbox    OutboxConfig
	RateLimit RateLimitConfig
	SMTP      SMTPConfig
	Cron      CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BEADSHOP_APP_ENV" required:"true"`
	Port         string `envconfig:"BEADSHOP_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"BEADSHOP_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"BEADSHOP_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"BEADSHOP_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"BEADSHOP_AUTO_MIGRATE" default:"false"`
	// CORSOrigins is a comma separated allow list for the storefront.
	CORSOrigins []string `envconfig:"BEADSHOP_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"BEADSHOP_DB_DSN"`

	LegacyHost     string `envconfig:"BEADSHOP_DB_HOST"`
	LegacyPort     int    `envconfig:"BEADSHOP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BEADSHOP_DB_USER"`
	LegacyPassword string `envconfig:"BEADSHOP_DB_PASSWORD"`
	LegacyName     string `envconfig:"BEADSHOP_DB_NAME"`
	LegacySSLMode  string `envconfig:"BEADSHOP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BEADSHOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BEADSHOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BEADSHOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BEADSHOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BEADSHOP_REDIS_URL"`
	Address      string        `envconfig:"BEADSHOP_REDIS_ADDR"`
	Password     string        `envconfig:"BEADSHOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"BEADSHOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BEADSHOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BEADSHOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BEADSHOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BEADSHOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BEADSHOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BEADSHOP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BEADSHOP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BEADSHOP_JWT_EXPIRATION_MINUTES" default:"60"`
}

// PaymentsConfig holds settings shared by every gateway.
type PaymentsConfig struct {
	Currency       string        `envconfig:"BEADSHOP_PAYMENTS_CURRENCY" default:"PLN"`
	GatewayTimeout time.Duration `envconfig:"BEADSHOP_PAYMENTS_GATEWAY_TIMEOUT" default:"15s"`
}

// NormalizedCurrency returns the ISO code upper-cased, defaulting to PLN.
func (p PaymentsConfig) NormalizedCurrency() string {
	c := strings.ToUpper(strings.TrimSpace(p.Currency))
	if c == "" {
		return "PLN"
	}
	return c
}

type StripeConfig struct {
	APIKey        string `envconfig:"BEADSHOP_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"BEADSHOP_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"BEADSHOP_STRIPE_ENV" default:"test"`
	SuccessURL    string `envconfig:"BEADSHOP_STRIPE_SUCCESS_URL" default:"http://localhost:3000/checkout/success"`
	CancelURL     string `envconfig:"BEADSHOP_STRIPE_CANCEL_URL" default:"http://localhost:3000/checkout/cancel"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether Stripe credentials are present.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

type P24Config struct {
	MerchantID int    `envconfig:"BEADSHOP_P24_MERCHANT_ID"`
	PosID      int    `envconfig:"BEADSHOP_P24_POS_ID"`
	APIKey     string `envconfig:"BEADSHOP_P24_API_KEY"`
	CRC        string `envconfig:"BEADSHOP_P24_CRC"`
	Sandbox    bool   `envconfig:"BEADSHOP_P24_SANDBOX" default:"true"`
	ReturnURL  string `envconfig:"BEADSHOP_P24_RETURN_URL" default:"http://localhost:3000/checkout/return"`
	StatusURL  string `envconfig:"BEADSHOP_P24_STATUS_URL" default:"http://localhost:8080/payments/p24/webhook"`
}

// Enabled reports whether Przelewy24 credentials are present.
func (p P24Config) Enabled() bool {
	return p.MerchantID > 0 && strings.TrimSpace(p.CRC) != ""
}

// EffectivePosID falls back to the merchant id, which P24 uses as the default POS.
func (p P24Config) EffectivePosID() int {
	if p.PosID > 0 {
		return p.PosID
	}
	return p.MerchantID
}

type WebhooksConfig struct {
	IdempotencyTTL time.Duration `envconfig:"BEADSHOP_WEBHOOKS_IDEMPOTENCY_TTL" default:"72h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"BEADSHOP_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"BEADSHOP_PUBSUB_ORDERS_TOPIC" default:"beadshop-order-events"`
	ShipmentsTopic     string `envconfig:"BEADSHOP_PUBSUB_SHIPMENTS_TOPIC" default:"beadshop-shipment-events"`
	OrdersSubscription string `envconfig:"BEADSHOP_PUBSUB_ORDERS_SUBSCRIPTION" default:"beadshop-order-events-notifier"`
}

// RateLimitConfig throttles order creation per client IP and per customer email.
type RateLimitConfig struct {
	CheckoutWindow     time.Duration `envconfig:"BEADSHOP_RATE_LIMIT_CHECKOUT_WINDOW" default:"10m"`
	CheckoutIPLimit    int           `envconfig:"BEADSHOP_RATE_LIMIT_CHECKOUT_IP_LIMIT" default:"30"`
	CheckoutEmailLimit int           `envconfig:"BEADSHOP_RATE_LIMIT_CHECKOUT_EMAIL_LIMIT" default:"10"`
}

// SMTPConfig is used by the notifier worker.
type SMTPConfig struct {
	Host     string `envconfig:"BEADSHOP_SMTP_HOST"`
	Port     int    `envconfig:"BEADSHOP_SMTP_PORT" default:"587"`
	Username string `envconfig:"BEADSHOP_SMTP_USERNAME"`
	Password string `envconfig:"BEADSHOP_SMTP_PASSWORD"`
	From     string `envconfig:"BEADSHOP_SMTP_FROM" default:"Beadshop <orders@beadshop.local>"`
	// ShopURL is linked from customer emails.
	ShopURL string `envconfig:"BEADSHOP_SHOP_URL" default:"http://localhost:3000"`
}

// Enabled reports whether an SMTP relay is configured.
func (s SMTPConfig) Enabled() bool {
	return strings.TrimSpace(s.Host) != ""
}

// CronConfig drives the scheduled cleanup jobs.
type CronConfig struct {
	Interval time.Duration `envconfig:"BEADSHOP_CRON_INTERVAL" default:"15m"`
	// PendingOrderTTL is how long an unpaid order keeps its stock reservation.
	PendingOrderTTL     time.Duration `envconfig:"BEADSHOP_CRON_PENDING_ORDER_TTL" default:"72h"`
	OutboxRetentionDays int           `envconfig:"BEADSHOP_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BEADSHOP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BEADSHOP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BEADSHOP_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
