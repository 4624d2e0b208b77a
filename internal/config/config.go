package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime settings. Values are parsed once at startup and
// passed explicitly into the components that need them; nothing reads the
// environment after Load returns.
type Config struct {
	Addr        string `env:"PORTICO_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"PORTICO_PG_DSN"`

	JWTSecret    string `env:"JWT_SECRET"`
	JWTAlgorithm string `env:"JWT_ALGORITHM" envDefault:"HS256"`

	AccessTokenExpireMinutes int `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"30"`
	RefreshTokenExpireDays   int `env:"REFRESH_TOKEN_EXPIRE_DAYS" envDefault:"7"`

	RateBurst  int `env:"PORTICO_RATE_BURST" envDefault:"40"`
	RatePerSec int `env:"PORTICO_RATE_PER_SEC" envDefault:"20"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.AccessTokenExpireMinutes <= 0 || cfg.RefreshTokenExpireDays <= 0 {
		return Config{}, fmt.Errorf("token lifetimes must be positive")
	}
	return cfg, nil
}

// AccessTTL returns the access token lifetime.
func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// RefreshTTL returns the refresh token lifetime.
func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpireDays) * 24 * time.Hour
}
