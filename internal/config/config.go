// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full server configuration. Signing secrets have no default
// and must be supplied; everything security-sensitive is tunable without a
// rebuild.
type Config struct {
	Addr     string `env:"INKWELL_ADDR" envDefault:":8080"`
	DevMode  bool   `env:"INKWELL_DEV" envDefault:"false"`
	LogLevel string `env:"INKWELL_LOG_LEVEL" envDefault:"info"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	AccessSecret  string        `env:"JWT_ACCESS_SECRET"`
	RefreshSecret string        `env:"JWT_REFRESH_SECRET"`
	AccessTTL     time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`

	LockoutWindow  time.Duration `env:"LOCKOUT_WINDOW" envDefault:"3m"`
	OTPTTL         time.Duration `env:"OTP_TTL" envDefault:"5m"`
	OTPIssueLimit  int           `env:"OTP_ISSUE_LIMIT" envDefault:"3"`
	OTPIssueWindow time.Duration `env:"OTP_ISSUE_WINDOW" envDefault:"3m"`

	SecureCookies bool `env:"SECURE_COOKIES" envDefault:"true"`
}

// Load parses the environment into a [Config] and validates the secrets.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return Config{}, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return Config{}, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if !cfg.DevMode && cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required outside dev mode")
	}

	return cfg, nil
}
