package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Ledger drivers accepted in LEDGER_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverSurreal  = "surreal"
	DriverRedis    = "redis"
	DriverFile     = "file"
)

// minSecretLength is the shortest JWT_SECRET accepted outside dev mode.
const minSecretLength = 32

// Config holds all configuration for the application.
type Config struct {
	Addr    string `env:"APP_ADDR" envDefault:":3000"`
	DevMode bool   `env:"APP_DEV"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	GoogleClientID  string        `env:"GOOGLE_CLIENT_ID"`
	GoogleIssuer    string        `env:"GOOGLE_ISSUER" envDefault:"https://accounts.google.com"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"5s"`

	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"relay"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	LedgerDriver    string `env:"LEDGER_DRIVER" envDefault:"memory"`
	LedgerDSN       string `env:"LEDGER_DSN"`
	LedgerCacheSize int    `env:"LEDGER_CACHE_SIZE" envDefault:"0"`

	SurrealURL  string `env:"SURREAL_URL"`
	SurrealNS   string `env:"SURREAL_NS" envDefault:"relay"`
	SurrealDB   string `env:"SURREAL_DB" envDefault:"chat"`
	SurrealUser string `env:"SURREAL_USER"`
	SurrealPass string `env:"SURREAL_PASS"`

	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisStream string `env:"REDIS_STREAM" envDefault:"relay:messages"`

	WSSendBuffer     int           `env:"WS_SEND_BUFFER" envDefault:"256"`
	WSMessageRate    float64       `env:"WS_MESSAGE_RATE" envDefault:"5"`
	WSMessageBurst   int           `env:"WS_MESSAGE_BURST" envDefault:"10"`
	WSPingInterval   time.Duration `env:"WS_PING_INTERVAL" envDefault:"54s"`
	MaxMessageLength int           `env:"MAX_MESSAGE_LENGTH" envDefault:"2000"`

	LoginRatePerMinute int `env:"LOGIN_RATE_PER_MINUTE" envDefault:"10"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom builds a Config from the given variables only. It is used by tests
// and tools that must not depend on the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.LedgerDriver {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverSurreal, DriverRedis, DriverFile:
	default:
		errs = append(errs, fmt.Errorf("LEDGER_DRIVER %q is not supported", c.LedgerDriver))
	}

	switch c.LedgerDriver {
	case DriverSQLite, DriverPostgres, DriverFile:
		if strings.TrimSpace(c.LedgerDSN) == "" {
			errs = append(errs, fmt.Errorf("LEDGER_DSN is required for the %s driver", c.LedgerDriver))
		}
	case DriverSurreal:
		if c.SurrealURL == "" {
			errs = append(errs, errors.New("SURREAL_URL is required for the surreal driver"))
		}
	}

	if !c.DevMode && len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLength))
	}
	if c.WSSendBuffer <= 0 {
		errs = append(errs, errors.New("WS_SEND_BUFFER must be positive"))
	}
	if c.MaxMessageLength <= 0 {
		errs = append(errs, errors.New("MAX_MESSAGE_LENGTH must be positive"))
	}

	return errors.Join(errs...)
}

// RequireProvider reports an error when the external identity provider is not
// configured. Only the serving path needs it.
func (c *Config) RequireProvider() error {
	if strings.TrimSpace(c.GoogleClientID) == "" {
		return errors.New("GOOGLE_CLIENT_ID is required")
	}
	return nil
}
