// Package config loads and validates the process configuration. The struct is
// built once at startup and passed by reference; nothing in this package or
// its consumers mutates it afterwards.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const minSecretBytes = 32

// Config holds every tunable of the auth service. TTLs and the signing
// secret are read here exactly once; business logic receives them through
// constructor injection, never from ambient state.
type Config struct {
	HTTP     HTTPConfig
	JWT      JWTConfig
	Refresh  RefreshConfig
	Password PasswordConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
}

type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

type JWTConfig struct {
	Secret    string        `env:"JWT_SECRET"`
	Issuer    string        `env:"JWT_ISSUER" envDefault:"irrigation-backend"`
	AccessTTL time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	Leeway    time.Duration `env:"JWT_LEEWAY" envDefault:"1s"`
}

type RefreshConfig struct {
	TTL time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
}

type PasswordConfig struct {
	Memory      uint32 `env:"PASSWORD_ARGON2_MEMORY_KB" envDefault:"65536"`
	Time        uint32 `env:"PASSWORD_ARGON2_TIME" envDefault:"2"`
	Parallelism uint8  `env:"PASSWORD_ARGON2_PARALLELISM" envDefault:"2"`
	SaltLength  uint32 `env:"PASSWORD_ARGON2_SALT_LEN" envDefault:"16"`
	KeyLength   uint32 `env:"PASSWORD_ARGON2_KEY_LEN" envDefault:"32"`
}

type DatabaseConfig struct {
	DSN            string `env:"DATABASE_DSN"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"file://migrations"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Prefix   string `env:"REDIS_PREFIX" envDefault:"auth"`
}

type LogConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	Production bool   `env:"LOG_PRODUCTION" envDefault:"false"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that would weaken token integrity or make
// expiry checks meaningless. It runs once at startup; a failing config is a
// refusal to boot, not a degraded mode.
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < minSecretBytes {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretBytes)
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT_ACCESS_TTL must be positive")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT_LEEWAY must be in [0, 2m]")
	}
	if c.Refresh.TTL < time.Hour {
		return errors.New("REFRESH_TTL must be at least 1h")
	}
	if c.Password.Memory < 8*1024 {
		return errors.New("PASSWORD_ARGON2_MEMORY_KB must be >= 8192")
	}
	if c.Password.Time < 1 || c.Password.Parallelism < 1 {
		return errors.New("argon2 time and parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 || c.Password.KeyLength < 16 {
		return errors.New("argon2 salt and key length must be >= 16")
	}
	return nil
}
