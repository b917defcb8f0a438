package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, a .env file or YAML
// config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL    string `usage:"Redis connection URL (CHECKOUT_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	JWT         JWTConfig
	Gateway     GatewayConfig
	Checkout    CheckoutConfig
	Kafka       KafkaConfig
	Idempotency IdempotencyConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// JWTConfig controls bearer token verification.
type JWTConfig struct {
	Secret string `usage:"HS256 signing secret" flag:"jwt-secret"`
	Issuer string `default:"checkout" usage:"Expected iss claim; empty disables the check"`
}

// GatewayConfig selects and configures the payment provider.
type GatewayConfig struct {
	Provider string `default:"conekta" usage:"Payment provider: conekta or stripe"`
	Currency string `default:"MXN" usage:"ISO currency of charges"`
	Conekta  ConektaConfig
	Stripe   StripeConfig
}

// ConektaConfig configures the Conekta REST client.
type ConektaConfig struct {
	APIKey  string        `usage:"Conekta private API key" flag:"conekta-api-key"`
	BaseURL string        `default:"https://api.conekta.io" usage:"Conekta API base URL"`
	Timeout time.Duration `default:"30s" usage:"Conekta request timeout"`
	Locale  string        `default:"es" usage:"Accept-Language sent to Conekta"`
}

// StripeConfig configures the Stripe client.
type StripeConfig struct {
	SecretKey string `usage:"Stripe secret key" flag:"stripe-secret-key"`
}

// CheckoutConfig holds the checkout business settings.
type CheckoutConfig struct {
	ShippingAmount string `default:"150" usage:"Flat shipping rate"`
	Carrier        string `default:"redpack" usage:"Delivery carrier"`
	Timezone       string `default:"America/Mexico_City" usage:"Business time zone for payment deadlines"`
}

// KafkaConfig configures order event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers"`
	Topic   string   `default:"orders.placed" usage:"Topic of order placed events"`
}

// IdempotencyConfig controls how long Idempotency-Key responses are kept.
type IdempotencyConfig struct {
	TTL time.Duration `default:"24h" usage:"Idempotency record lifetime"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s" usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads .env (when present), then configuration from environment
// variables, flags and YAML files, and validates it.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided variables (DATABASE_URL,
// REDIS_URL, PORT) onto the CHECKOUT_ prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	case c.RedisURL == "":
		return errors.New("redis URL is required: set CHECKOUT_REDIS_URL or REDIS_URL")
	case c.JWT.Secret == "":
		return errors.New("jwt secret is required: set CHECKOUT_JWT_SECRET")
	}
	switch c.Gateway.Provider {
	case "conekta":
		if c.Gateway.Conekta.APIKey == "" {
			return errors.New("conekta API key is required: set CHECKOUT_GATEWAY_CONEKTA_API_KEY")
		}
	case "stripe":
		if c.Gateway.Stripe.SecretKey == "" {
			return errors.New("stripe secret key is required: set CHECKOUT_GATEWAY_STRIPE_SECRET_KEY")
		}
	default:
		return errors.Errorf("unknown payment provider %q", c.Gateway.Provider)
	}
	return nil
}
