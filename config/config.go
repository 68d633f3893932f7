/*
Package config loads service settings from the environment.

PURPOSE:
  Uses Viper to read environment variables, optionally seeded from a .env
  file in the working directory (loaded with godotenv, never overriding
  variables that are already set).

VARIABLES:
  SERVER_PORT              HTTP port (8080)
  STORE_DRIVER             memory | sqlite | postgres (sqlite)
  SQLITE_PATH              SQLite file (backoffice.db)
  DATABASE_URL             PostgreSQL url, required for postgres
  JWT_SECRET               HMAC secret for bearer tokens (required)
  JWT_TTL                  Token lifetime (24h)
  HISTORY_FLOOR            Default dateInit for history queries (1999-01-01)
  DEFAULT_ACCOUNT_TYPE_ID  Account type for signup accounts
  REDIS_URL                Enables rate limiting when set
  RATE_LIMIT_PER_MINUTE    Money movements per customer per minute (30)
  RATE_LIMIT_PREFIX        Redis key prefix (backoffice:rate_limit)
  RABBITMQ_URL             Enables event publishing when set
  EVENTS_EXCHANGE          Topic exchange (ledger_events)
  CORS_ORIGINS             Comma separated allowed origins
  LOG_LEVEL                debug | info | warn | error (info)
*/
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/warp/backoffice/ledger"
)

type Config struct {
	ServerPort         string        `mapstructure:"SERVER_PORT"`
	StoreDriver        string        `mapstructure:"STORE_DRIVER"`
	SQLitePath         string        `mapstructure:"SQLITE_PATH"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	JWTSecret          string        `mapstructure:"JWT_SECRET"`
	JWTTTL             time.Duration `mapstructure:"JWT_TTL"`
	HistoryFloor       string        `mapstructure:"HISTORY_FLOOR"`
	DefaultAccountType string        `mapstructure:"DEFAULT_ACCOUNT_TYPE_ID"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	RateLimitPerMinute int           `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	RateLimitPrefix    string        `mapstructure:"RATE_LIMIT_PREFIX"`
	RabbitMQURL        string        `mapstructure:"RABBITMQ_URL"`
	EventsExchange     string        `mapstructure:"EVENTS_EXCHANGE"`
	CORSOrigins        string        `mapstructure:"CORS_ORIGINS"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
}

var keys = []string{
	"SERVER_PORT", "STORE_DRIVER", "SQLITE_PATH", "DATABASE_URL", "JWT_SECRET", "JWT_TTL",
	"HISTORY_FLOOR", "DEFAULT_ACCOUNT_TYPE_ID", "REDIS_URL", "RATE_LIMIT_PER_MINUTE",
	"RATE_LIMIT_PREFIX", "RABBITMQ_URL", "EVENTS_EXCHANGE", "CORS_ORIGINS", "LOG_LEVEL",
}

// Load reads .env files (if any) and the environment.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// a missing .env file is normal outside local development
		_ = godotenv.Load(f)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("STORE_DRIVER", "sqlite")
	v.SetDefault("SQLITE_PATH", "backoffice.db")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("HISTORY_FLOOR", ledger.DefaultHistoryFloor.Format(time.DateOnly))
	v.SetDefault("DEFAULT_ACCOUNT_TYPE_ID", string(ledger.DefaultAccountTypeID))
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 30)
	v.SetDefault("RATE_LIMIT_PREFIX", "backoffice:rate_limit")
	v.SetDefault("EVENTS_EXCHANGE", "ledger_events")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")
	v.SetDefault("LOG_LEVEL", "info")
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case "memory", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if _, err := c.Floor(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Floor parses HISTORY_FLOOR as a date or an RFC 3339 timestamp.
func (c Config) Floor() (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, c.HistoryFloor); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, c.HistoryFloor)
	if err != nil {
		return time.Time{}, fmt.Errorf("HISTORY_FLOOR %q is not a date", c.HistoryFloor)
	}
	return t.UTC(), nil
}

func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
