// Package config loads server configuration from flags, an optional YAML file
// and environment-provided secret defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	pkgcrypto "github.com/and161185/cms-admin/internal/crypto"
	"github.com/and161185/cms-admin/internal/crypto/sessioncrypto"
)

// Environment variables that seed secret flag defaults.
const (
	EnvJWTSecret = "ADMIN_JWT_SECRET"
	EnvCacheKey  = "ADMIN_JWT_CACHE_ENCRYPTION_KEY"
	EnvDSN       = "DATABASE_DSN"
	EnvRedisURL  = "REDIS_URL"
)

// Default values for server flags.
const (
	DefaultAddr     = ":8080"
	DefaultTokenTTL = 24 * time.Hour
)

// Config is the resolved server configuration.
type Config struct {
	Addr     string `koanf:"addr"`
	DSN      string `koanf:"dsn"`
	RedisURL string `koanf:"redis-url"`

	JWTSecret string `koanf:"jwt-secret"`
	CacheKey  string `koanf:"cache-key"` // hex, 32 bytes

	TokenTTL   time.Duration `koanf:"token-ttl"`
	SessionTTL time.Duration `koanf:"session-ttl"` // 0 means TokenTTL

	HashTime    uint32 `koanf:"hash-time"`
	HashMemory  uint32 `koanf:"hash-memory"` // KiB
	HashThreads uint8  `koanf:"hash-threads"`

	Dev bool `koanf:"dev"`
}

// RegisterFlags defines the configuration flags on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("addr", DefaultAddr, "HTTP listen address")
	fs.String("dsn", os.Getenv(EnvDSN), "PostgreSQL DSN (empty = in-memory store, dev only)")
	fs.String("redis-url", os.Getenv(EnvRedisURL), "Redis URL or host:port (empty = in-memory cache, dev only)")
	fs.String("jwt-secret", os.Getenv(EnvJWTSecret), "HS256 signing secret (required)")
	fs.String("cache-key", os.Getenv(EnvCacheKey), "hex-encoded 32-byte session cache key (required)")
	fs.Duration("token-ttl", DefaultTokenTTL, "session token lifetime")
	fs.Duration("session-ttl", 0, "session cache entry lifetime (default: token-ttl)")
	fs.Uint32("hash-time", pkgcrypto.DefaultParams.Time, "argon2id iterations")
	fs.Uint32("hash-memory", pkgcrypto.DefaultParams.Memory, "argon2id memory in KiB")
	fs.Uint8("hash-threads", pkgcrypto.DefaultParams.Threads, "argon2id parallelism")
	fs.Bool("dev", false, "development mode: console logs, in-memory backends allowed, reset codes logged")
}

// Load resolves flag defaults, then the YAML file at path (if any), then the
// flags set explicitly on the command line.
func Load(fs *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = cfg.TokenTTL
	}
	return &cfg, nil
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt-secret is required (or set %s)", EnvJWTSecret)
	}
	if c.CacheKey == "" {
		return fmt.Errorf("cache-key is required (or set %s)", EnvCacheKey)
	}
	if _, err := sessioncrypto.DeriveKey(c.CacheKey); err != nil {
		return fmt.Errorf("cache-key: %w", err)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token-ttl must be positive, got %s", c.TokenTTL)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("session-ttl must not be negative, got %s", c.SessionTTL)
	}
	if c.HashThreads == 0 || c.HashTime == 0 || c.HashMemory < 8*uint32(c.HashThreads) {
		return errors.New("hash-time, hash-threads must be positive and hash-memory at least 8*hash-threads KiB")
	}
	if c.HashTime > pkgcrypto.MaxIterations || c.HashMemory > pkgcrypto.MaxMemory {
		return fmt.Errorf("hash-time must be at most %d and hash-memory at most %d KiB", pkgcrypto.MaxIterations, pkgcrypto.MaxMemory)
	}
	if !c.Dev {
		if c.DSN == "" {
			return fmt.Errorf("dsn is required outside dev mode (or set %s)", EnvDSN)
		}
		if c.RedisURL == "" {
			return fmt.Errorf("redis-url is required outside dev mode (or set %s)", EnvRedisURL)
		}
	}
	return nil
}

// HashParams returns the argon2id work factor.
func (c *Config) HashParams() pkgcrypto.Params {
	return pkgcrypto.Params{Time: c.HashTime, Memory: c.HashMemory, Threads: c.HashThreads}
}
