// Package config содержит логику чтения конфигурации сервиса coursemart.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress     = "localhost:8080"
	defaultTokenTTL       = 168 * time.Hour
	defaultCacheTTL       = time.Hour
	defaultNotifyExchange = "coursemart.notifications"
)

// Config содержит параметры конфигурации сервиса coursemart.
type Config struct {
	RunAddress     string        `env:"RUN_ADDRESS"`
	DatabaseURI    string        `env:"DATABASE_URI"`
	JWTSecret      string        `env:"JWT_SECRET"`
	TokenTTL       time.Duration `env:"TOKEN_TTL"`
	RedisAddress   string        `env:"REDIS_ADDRESS"`
	CacheTTL       time.Duration `env:"CACHE_TTL"`
	AMQPURL        string        `env:"AMQP_URL"`
	NotifyExchange string        `env:"NOTIFY_EXCHANGE"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значения из окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	envCfg := Config{}
	if err := env.Parse(&envCfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.JWTSecret, "s", "", "secret key for signing auth tokens")
	flag.DurationVar(&cfg.TokenTTL, "t", defaultTokenTTL, "auth token lifetime")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for catalog cache")
	flag.DurationVar(&cfg.CacheTTL, "c", defaultCacheTTL, "catalog cache TTL")
	flag.StringVar(&cfg.AMQPURL, "q", "", "AMQP URL for notifications")
	flag.StringVar(&cfg.NotifyExchange, "x", defaultNotifyExchange, "AMQP exchange for notifications")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.JWTSecret != "" {
		cfg.JWTSecret = envCfg.JWTSecret
	}
	if envCfg.TokenTTL != 0 {
		cfg.TokenTTL = envCfg.TokenTTL
	}
	if envCfg.RedisAddress != "" {
		cfg.RedisAddress = envCfg.RedisAddress
	}
	if envCfg.CacheTTL != 0 {
		cfg.CacheTTL = envCfg.CacheTTL
	}
	if envCfg.AMQPURL != "" {
		cfg.AMQPURL = envCfg.AMQPURL
	}
	if envCfg.NotifyExchange != "" {
		cfg.NotifyExchange = envCfg.NotifyExchange
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("token TTL must be positive, got %s", cfg.TokenTTL)
	}

	return cfg, nil
}
