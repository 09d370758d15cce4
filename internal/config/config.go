// Package config содержит логику чтения конфигурации клубного сервиса баллов.
package config

import (
	"errors"
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

const defaultRunAddress = "localhost:8080"

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	AuthSecret  string `env:"AUTH_SECRET"`
	NATSURL     string `env:"NATS_URL"`

	InviteBonus  int64  `env:"INVITE_BONUS" envDefault:"100"`
	WelcomeBonus int64  `env:"WELCOME_BONUS" envDefault:"50"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile      string `env:"LOG_FILE"`

	AdminLogin    string `env:"ADMIN_LOGIN"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envAuthSecret := cfg.AuthSecret
	envNATSURL := cfg.NATSURL

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for signing session cookies")
	flag.StringVar(&cfg.NATSURL, "n", "", "NATS server URL for points notifications")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envNATSURL != "" {
		cfg.NATSURL = envNATSURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}

	return cfg, nil
}

// Validate проверяет обязательные параметры.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURI == "" {
		errs = append(errs, errors.New("database URI is required"))
	}
	if c.AuthSecret == "" {
		errs = append(errs, errors.New("auth secret is required"))
	}
	if c.AdminLogin != "" && len(c.AdminPassword) < 6 {
		errs = append(errs, errors.New("admin password must be at least 6 characters"))
	}
	if c.InviteBonus < 0 || c.WelcomeBonus < 0 {
		errs = append(errs, errors.New("bonuses must not be negative"))
	}
	return errors.Join(errs...)
}
