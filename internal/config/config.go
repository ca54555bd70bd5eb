package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config keeps runtime settings for the planner.
type Config struct {
	DBDriver         string        `yaml:"db_driver" env:"DB_DRIVER" env-default:"sqlite"`
	DatabaseURL      string        `yaml:"database_url" env:"DATABASE_URL" env-default:"daily_planner.db"`
	LogLevel         string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"INFO"`
	Timezone         string        `yaml:"timezone" env:"TIMEZONE" env-default:"UTC"`
	ReminderInterval time.Duration `yaml:"reminder_interval" env:"REMINDER_INTERVAL" env-default:"60s"`
	DispatchWorkers  int           `yaml:"dispatch_workers" env:"DISPATCH_WORKERS" env-default:"4"`
	DispatchTimeout  time.Duration `yaml:"dispatch_timeout" env:"DISPATCH_TIMEOUT" env-default:"30s"`
	TelegramToken    string        `yaml:"telegram_token" env:"TELEGRAM_TOKEN"`
	SMTP             SMTP          `yaml:"smtp"`
}

type SMTP struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string        `yaml:"from" env:"SMTP_FROM" env-default:"noreply@planner.local"`
	Timeout  time.Duration `yaml:"timeout" env:"SMTP_TIMEOUT" env-default:"15s"`
}

// Enabled reports whether outbound email is configured.
func (s SMTP) Enabled() bool {
	return s.Host != ""
}

// Load reads configuration from the optional YAML file and the environment.
// Environment variables win over file values. A missing file falls back to
// the environment alone.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return cfg, fmt.Errorf("read env: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		var pe *os.PathError
		if !errors.As(err, &pe) {
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return cfg, fmt.Errorf("read env: %w", err)
		}
	}

	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.ReminderInterval <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL must be positive")
	}
	if c.DispatchWorkers <= 0 {
		return fmt.Errorf("DISPATCH_WORKERS must be positive")
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("DISPATCH_TIMEOUT must be positive")
	}
	if c.SMTP.Timeout <= 0 {
		return fmt.Errorf("SMTP_TIMEOUT must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the configured default time zone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
