package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the auction house.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Rate limiting per client IP: memory or redis. A zero limit disables a tier.
	RateLimitBackend    string        `env:"RATE_LIMIT_BACKEND" envDefault:"memory"`
	GeneralRateLimit    int           `env:"RATE_LIMIT_GENERAL" envDefault:"300"`
	GeneralRateWindow   time.Duration `env:"RATE_LIMIT_GENERAL_WINDOW" envDefault:"1m"`
	SensitiveRateLimit  int           `env:"RATE_LIMIT_SENSITIVE" envDefault:"10"`
	SensitiveRateWindow time.Duration `env:"RATE_LIMIT_SENSITIVE_WINDOW" envDefault:"1m"`

	// Auction store: memory or postgres
	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"`
	DatabaseURL  string `env:"DATABASE_URL"`

	// Redis, used by the redis session store and the redis fanout bus
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Session store: memory or redis
	SessionBackend string `env:"SESSION_BACKEND" envDefault:"memory"`
	// Fanout bus: local or redis
	FanoutBus     string `env:"FANOUT_BUS" envDefault:"local"`
	FanoutChannel string `env:"FANOUT_CHANNEL" envDefault:"auction-house:fanout"`

	// Tokens
	JWTSecret    string        `env:"JWT_SECRET" envDefault:"development-secret-do-not-use"`
	JWTIssuer    string        `env:"JWT_ISSUER" envDefault:"auction-house"`
	AccessTTL    time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTTL   time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"false"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1s"`

	// Payment: sandbox or stripe
	PaymentProvider   string `env:"PAYMENT_PROVIDER" envDefault:"sandbox"`
	SandboxAutoSettle bool   `env:"PAYMENT_SANDBOX_AUTOSETTLE" envDefault:"true"`
	StripeSecretKey   string `env:"STRIPE_SECRET_KEY"`
	StripeSuccessURL  string `env:"STRIPE_SUCCESS_URL" envDefault:"http://localhost:3000/payment/success"`
	StripeCancelURL   string `env:"STRIPE_CANCEL_URL" envDefault:"http://localhost:3000/payment/cancel"`
}

const minSecretLength = 32

// Load reads configuration from environment variables. Variables found in the
// given dotenv files (".env" when none are named) fill in anything unset;
// missing files are ignored.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}

	switch c.StoreBackend {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	if c.RateLimitBackend != "memory" && c.RateLimitBackend != "redis" {
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimitBackend))
	}
	if c.GeneralRateLimit < 0 || c.SensitiveRateLimit < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	if c.GeneralRateLimit > 0 && c.GeneralRateWindow <= 0 || c.SensitiveRateLimit > 0 && c.SensitiveRateWindow <= 0 {
		errs = append(errs, errors.New("rate limit windows must be positive"))
	}
	if c.SessionBackend != "memory" && c.SessionBackend != "redis" {
		errs = append(errs, fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend))
	}
	if c.FanoutBus != "local" && c.FanoutBus != "redis" {
		errs = append(errs, fmt.Errorf("unknown FANOUT_BUS %q", c.FanoutBus))
	}

	if !c.IsDevelopment() && len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters outside development", minSecretLength))
	}
	if c.AccessTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be positive"))
	}
	if c.RefreshTTL <= c.AccessTTL {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must be longer than ACCESS_TOKEN_TTL"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}

	switch c.PaymentProvider {
	case "sandbox":
	case "stripe":
		if c.StripeSecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required for the stripe provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.PaymentProvider))
	}

	return errors.Join(errs...)
}
