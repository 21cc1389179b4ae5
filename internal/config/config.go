// Package config loads application configuration from an optional YAML
// file overlaid with DISPATCH_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "DISPATCH_"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	JWT           JWTConfig           `koanf:"jwt"`
	CORS          CORSConfig          `koanf:"cors"`
	Scheduler     SchedulerConfig     `koanf:"scheduler"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Reports       ReportsConfig       `koanf:"reports"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// JWTConfig contains token signing settings.
type JWTConfig struct {
	SecretKey            string        `koanf:"secret_key"`
	AccessTokenDuration  time.Duration `koanf:"access_token_duration"`
	RefreshTokenDuration time.Duration `koanf:"refresh_token_duration"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// SchedulerConfig contains task scheduler settings.
type SchedulerConfig struct {
	QueueSize  int `koanf:"queue_size"`
	NumWorkers int `koanf:"num_workers"`
}

// NotificationsConfig contains notification delivery settings.
type NotificationsConfig struct {
	Enabled bool        `koanf:"enabled"`
	BaseURL string      `koanf:"base_url"`
	Email   EmailConfig `koanf:"email"`
	Chat    ChatConfig  `koanf:"chat"`
}

// EmailConfig contains SMTP delivery settings.
type EmailConfig struct {
	Enabled          bool     `koanf:"enabled"`
	SMTPHost         string   `koanf:"smtp_host"`
	SMTPPort         int      `koanf:"smtp_port"`
	SMTPUser         string   `koanf:"smtp_user"`
	SMTPPassword     string   `koanf:"smtp_password"`
	FromAddress      string   `koanf:"from_address"`
	DistributionList []string `koanf:"distribution_list"`
	BatchSize        int      `koanf:"batch_size"`
}

// ChatConfig contains chat webhook delivery settings.
type ChatConfig struct {
	Enabled    bool    `koanf:"enabled"`
	WebhookURL string  `koanf:"webhook_url"`
	RateLimit  float64 `koanf:"rate_limit"`
}

// ReportsConfig contains scheduled report and maintenance settings.
type ReportsConfig struct {
	DailySummaryEnabled  bool   `koanf:"daily_summary_enabled"`
	DailySummarySchedule string `koanf:"daily_summary_schedule"`
	TokenCleanupSchedule string `koanf:"token_cleanup_schedule"`
}

// Default returns the configuration defaults. File and environment values
// overlay these.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			AccessTokenDuration:  15 * time.Minute,
			RefreshTokenDuration: 720 * time.Hour,
		},
		Scheduler: SchedulerConfig{
			QueueSize:  256,
			NumWorkers: 4,
		},
		Notifications: NotificationsConfig{
			Chat: ChatConfig{
				RateLimit: 1,
			},
		},
		Reports: ReportsConfig{
			DailySummarySchedule: "0 9 * * *",
			TokenCleanupSchedule: "30 3 * * *",
		},
	}
}

// Load reads configuration from the optional YAML file at path, then
// overlays DISPATCH_-prefixed environment variables. Nesting in variable
// names uses a double underscore: DISPATCH_SERVER__READ_TIMEOUT maps to
// server.read_timeout.
func Load(path string) (*Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		return strings.ReplaceAll(key, "__", "."), value
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.JWT.SecretKey == "" {
		return errors.New("jwt.secret_key is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	if c.Scheduler.QueueSize <= 0 {
		return fmt.Errorf("scheduler.queue_size must be positive, got %d", c.Scheduler.QueueSize)
	}
	if c.Scheduler.NumWorkers <= 0 {
		return fmt.Errorf("scheduler.num_workers must be positive, got %d", c.Scheduler.NumWorkers)
	}
	return nil
}
