// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

type LockConfig struct {
	// RedisURL switches slot locking from in-process mutexes to Redis leases.
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

type EmailConfig struct {
	Region          string `yaml:"region"`
	Sender          string `yaml:"sender"`
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

type RemindersConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

type RateLimitConfig struct {
	Window     time.Duration `yaml:"window"`
	MaxGlobal  int           `yaml:"max_global"`
	MaxAuth    int           `yaml:"max_auth"`
	TrustProxy bool          `yaml:"trust_proxy"`
}

type Config struct {
	App struct {
		Name            string        `yaml:"name"`
		Environment     string        `yaml:"environment"`
		Port            int           `yaml:"port"`
		BaseURL         string        `yaml:"base_url"`
		StaticDir       string        `yaml:"static_dir"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		TokenTTL        time.Duration `yaml:"token_ttl"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		SecretKey       string        `yaml:"-"` // Loaded from environment
	} `yaml:"app"`

	Database  DatabaseConfig  `yaml:"database"`
	Locks     LockConfig      `yaml:"locks"`
	Events    EventsConfig    `yaml:"events"`
	Email     EmailConfig     `yaml:"email"`
	Reminders RemindersConfig `yaml:"reminders"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	Features struct {
		EnableMetrics bool   `yaml:"enable_metrics"`
		EnableTracing bool   `yaml:"enable_tracing"`
		EnableDebug   bool   `yaml:"enable_debug"`
		OTLPEndpoint  string `yaml:"otlp_endpoint"`
	} `yaml:"features"`
}

// envOverrides lists the values that may be supplied or replaced by the environment.
type envOverrides struct {
	SecretKey        string `envconfig:"APP_SECRET_KEY"`
	Environment      string `envconfig:"ENVIRONMENT"`
	Port             int    `envconfig:"PORT"`
	StaticDir        string `envconfig:"STATIC_DIR"`
	DatabaseFilename string `envconfig:"DATABASE_FILENAME"`
	RedisURL         string `envconfig:"REDIS_URL"`
	AMQPURL          string `envconfig:"AMQP_URL"`
	SESAccessKeyID   string `envconfig:"SES_ACCESS_KEY_ID"`
	SESSecretKey     string `envconfig:"SES_SECRET_ACCESS_KEY"`
	SESRegion        string `envconfig:"SES_REGION"`
	SESSender        string `envconfig:"SES_SENDER"`
	OTLPEndpoint     string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse decodes yaml configuration and fills defaults. It does not consult the environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return err
	}

	c.App.SecretKey = env.SecretKey
	c.Email.AccessKeyID = env.SESAccessKeyID
	c.Email.SecretAccessKey = env.SESSecretKey

	setIfNotEmpty(&c.App.Environment, env.Environment)
	setIfNotEmpty(&c.App.StaticDir, env.StaticDir)
	setIfNotEmpty(&c.Database.Filename, env.DatabaseFilename)
	setIfNotEmpty(&c.Locks.RedisURL, env.RedisURL)
	setIfNotEmpty(&c.Events.AMQPURL, env.AMQPURL)
	setIfNotEmpty(&c.Email.Region, env.SESRegion)
	setIfNotEmpty(&c.Email.Sender, env.SESSender)
	setIfNotEmpty(&c.Features.OTLPEndpoint, env.OTLPEndpoint)
	if env.Port != 0 {
		c.App.Port = env.Port
	}
	return nil
}

func setIfNotEmpty(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

func (c *Config) applyDefaults() {
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}
	if c.App.StaticDir == "" {
		c.App.StaticDir = "web/static"
	}
	if c.App.ShutdownTimeout <= 0 {
		c.App.ShutdownTimeout = 30 * time.Second
	}
	if c.App.TokenTTL <= 0 {
		c.App.TokenTTL = 7 * 24 * time.Hour
	}
	if c.Locks.TTL <= 0 {
		c.Locks.TTL = 10 * time.Second
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "tennisbuddy.events"
	}
	if c.Reminders.Schedule == "" {
		c.Reminders.Schedule = "0 * * * *"
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = 15 * time.Minute
	}
	if c.RateLimit.MaxGlobal <= 0 {
		c.RateLimit.MaxGlobal = 1000
	}
	if c.RateLimit.MaxAuth <= 0 {
		c.RateLimit.MaxAuth = 5
	}
}

// IsDevelopment reports whether the app runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// EmailConfigured reports whether SES delivery has everything it needs.
func (c *Config) EmailConfigured() bool {
	return c.Email.AccessKeyID != "" && c.Email.SecretAccessKey != "" && c.Email.Region != "" && c.Email.Sender != ""
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.App.SecretKey == "" {
		return fmt.Errorf("APP_SECRET_KEY is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Reminders.Enabled && strings.TrimSpace(c.Reminders.Schedule) == "" {
		return fmt.Errorf("reminders schedule is required when reminders are enabled")
	}

	return nil
}
