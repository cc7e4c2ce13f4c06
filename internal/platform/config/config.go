package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Provider selects the credential store implementation.
type Provider string

const (
	ProviderHTTP   Provider = "http"
	ProviderMemory Provider = "memory"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string `env:"FLEETDESK_ADDR" envDefault:":8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn warning error"`
	Service     string `env:"SERVICE_NAME" envDefault:"fleetdesk"`

	TrustedProxies  []string      `env:"TRUSTED_PROXIES" envSeparator:","`
	OTLPEndpoint    string        `env:"OTLP_ENDPOINT"`
	OTLPInsecure    bool          `env:"OTLP_INSECURE" envDefault:"false"`
	TraceSampleRate float64       `env:"TRACE_SAMPLE_RATE" envDefault:"1" validate:"gte=0,lte=1"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s" validate:"gt=0"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES" envDefault:"16384" validate:"gte=1"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s" validate:"gt=0"`
}

// AuthConfig configures the credential service and the auth container.
type AuthConfig struct {
	Provider          Provider      `env:"AUTH_PROVIDER" envDefault:"memory"`
	URL               string        `env:"AUTH_URL" validate:"omitempty,url"`
	APIKey            string        `env:"AUTH_API_KEY"`
	HTTPTimeout       time.Duration `env:"AUTH_HTTP_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	InvalidateTimeout time.Duration `env:"AUTH_INVALIDATE_TIMEOUT" envDefault:"5s" validate:"gt=0"`
	BreakerFailures   uint32        `env:"AUTH_BREAKER_FAILURES" envDefault:"5" validate:"gte=1"`
	BreakerCooldown   time.Duration `env:"AUTH_BREAKER_COOLDOWN" envDefault:"30s" validate:"gt=0"`

	// Per client IP; a rate of 0 disables the limit.
	SignInRate  float64 `env:"SIGNIN_RATE" envDefault:"1" validate:"gte=0"`
	SignInBurst int     `env:"SIGNIN_BURST" envDefault:"5" validate:"gte=1"`

	// Memory provider only.
	DevSigningKey string        `env:"DEV_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	DevTokenTTL   time.Duration `env:"DEV_TOKEN_TTL" envDefault:"1h"`
	DevUsers      string        `env:"DEV_USERS"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxConns        int32         `env:"DATABASE_MAX_CONNS" envDefault:"10" validate:"gte=1"`
	MinConns        int32         `env:"DATABASE_MIN_CONNS" envDefault:"1" validate:"gte=0,ltefield=MaxConns"`
	MaxConnLifetime time.Duration `env:"DATABASE_MAX_CONN_LIFETIME" envDefault:"1h"`
	Migrate         bool          `env:"DATABASE_MIGRATE" envDefault:"false"`
}

type RedisConfig struct {
	URL           string        `env:"REDIS_URL" validate:"omitempty,url"`
	PoolSize      int           `env:"REDIS_POOL_SIZE" envDefault:"10" validate:"gte=1"`
	MinIdleConns  int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"1"`
	DialTimeout   time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout   time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout  time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	EventsChannel string        `env:"SESSION_EVENTS_CHANNEL" envDefault:"fleetdesk:sessions" validate:"required"`
}

type KafkaConfig struct {
	Brokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	AuditTopic string   `env:"AUDIT_TOPIC" envDefault:"fleetdesk.auth.audit" validate:"required"`
}

// Config is the whole process configuration.
type Config struct {
	Server   Server
	Auth     AuthConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.Auth.Provider = Provider(strings.ToLower(strings.TrimSpace(string(cfg.Auth.Provider))))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field shapes first, then combinations the process cannot
// start with.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fieldError(err)
	}
	switch c.Auth.Provider {
	case ProviderHTTP:
		if c.Auth.URL == "" {
			return errors.New("AUTH_URL is required when AUTH_PROVIDER=http")
		}
	case ProviderMemory:
		if c.IsProduction() {
			return errors.New("AUTH_PROVIDER=memory is not allowed in production")
		}
		if c.Auth.DevSigningKey == "" {
			return errors.New("DEV_SIGNING_KEY is required when AUTH_PROVIDER=memory")
		}
	default:
		return fmt.Errorf("unknown AUTH_PROVIDER %q", c.Auth.Provider)
	}
	return nil
}

func fieldError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate config: %w", err)
	}
	fe := fieldErrs[0]
	if fe.Param() != "" {
		return fmt.Errorf("invalid config: %s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
	}
	return fmt.Errorf("invalid config: %s must satisfy %s", fe.Namespace(), fe.Tag())
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}
