// Package config loads runtime configuration from the environment.
//
// Values come from process environment variables, optionally seeded from a
// .env file in the working directory (see LoadDotEnv). Every setting has a
// development-friendly default except JWT_SECRET.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds runtime configuration for the auth service.
type Config struct {
	Port     int    `env:"PORT,default=8080"`
	Env      string `env:"APP_ENV,default=development"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	// DBDriver selects the persistence backend: "sqlite" or "postgres".
	DBDriver    string `env:"DB_DRIVER,default=sqlite"`
	DBPath      string `env:"DB_PATH,default=data/jiaa-auth.db"`
	DatabaseURL string `env:"DATABASE_URL"`

	// RedisAddr enables the external token read cache when set.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`

	JWTSecret       string        `env:"JWT_SECRET,required"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL,default=15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL,default=168h"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `env:"GOOGLE_REDIRECT_URI"`
	// GoogleScopes is space separated, as it appears in the consent URL.
	GoogleScopes   string `env:"GOOGLE_SCOPES,default=openid email profile https://www.googleapis.com/auth/calendar"`
	CalendarAPIURL string `env:"GOOGLE_CALENDAR_API_URL,default=https://www.googleapis.com/calendar/v3"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS,default=*"`
	OTLPEndpoint   string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load returns a Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom is Load with an explicit lookuper, used by tests.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set.
// A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: loading %s: %w", f, err)
		}
	}
	return nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("config: DB_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q (want sqlite or postgres)", c.DBDriver)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("config: token TTLs must be positive")
	}
	return nil
}

// Production reports whether the service runs in production mode.
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Scopes returns GoogleScopes split on whitespace.
func (c Config) Scopes() []string {
	return strings.Fields(c.GoogleScopes)
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
