// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// per-minute budgets enforced through redis; 0 disables the limit
	CheckoutPerMinute int `yaml:"checkout_per_minute"`
	PollPerMinute     int `yaml:"poll_per_minute"`
}

type AdminConfig struct {
	Port       int           `yaml:"port"`
	APIKey     string        `yaml:"api_key"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type DatabaseConfig struct {
	URL         string `yaml:"url"`
	MaxConns    int32  `yaml:"max_conns"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PixConfig struct {
	BaseURL       string        `yaml:"base_url"`
	AppID         string        `yaml:"app_id"`
	WebhookSecret string        `yaml:"webhook_secret"`
	Timeout       time.Duration `yaml:"timeout"`
	// Fake swaps the provider for an in-memory gateway (local runs only).
	Fake bool `yaml:"fake"`
}

type PaymentConfig struct {
	Pix PixConfig `yaml:"pix"`
	// Charges for emails matching TestEmailPattern, and ids carrying TestPaymentPrefix,
	// never reach the provider and report PAID.
	TestEmailPattern  string `yaml:"test_email_pattern"`
	TestPaymentPrefix string `yaml:"test_payment_prefix"`
}

type NotifierConfig struct {
	URL      string        `yaml:"url"`
	Enabled  bool          `yaml:"enabled"`
	Platform string        `yaml:"platform"`
	Timeout  time.Duration `yaml:"timeout"`
	Workers  int           `yaml:"workers"`
}

type AuthConfig struct {
	// HS256 secret of the hosted auth provider's access tokens.
	JWTSecret string `yaml:"jwt_secret"`
	Audience  string `yaml:"audience"`
}

type SchedulerConfig struct {
	ReconcileInterval   time.Duration `yaml:"reconcile_interval"`
	PendingWindow       time.Duration `yaml:"pending_window"`
	ReconcileBatch      int           `yaml:"reconcile_batch"`
	OrphanSweepInterval time.Duration `yaml:"orphan_sweep_interval"`
	OrphanBatch         int           `yaml:"orphan_batch"`
	ExpiryInterval      time.Duration `yaml:"expiry_interval"`
	RunTimeout          time.Duration `yaml:"run_timeout"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Payment   PaymentConfig   `yaml:"payment"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Auth      AuthConfig      `yaml:"auth"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Security  SecurityConfig  `yaml:"security"`
	Sentry    SentryConfig    `yaml:"sentry"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads .env files (if present), the YAML file at path, and then
// applies environment overrides for secrets.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load(".env", "../.env")

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes raw YAML, applies env overrides and defaults, and validates.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.Redis.Password, "REDIS_PASSWORD")
	override(&cfg.Payment.Pix.AppID, "PIX_APP_ID")
	override(&cfg.Payment.Pix.WebhookSecret, "PIX_WEBHOOK_SECRET")
	override(&cfg.Notifier.URL, "ORDER_WEBHOOK_URL")
	override(&cfg.Auth.JWTSecret, "AUTH_JWT_SECRET")
	override(&cfg.Admin.APIKey, "ADMIN_API_KEY")
	override(&cfg.Security.EncryptionKey, "ENCRYPTION_KEY")
	override(&cfg.Sentry.DSN, "SENTRY_DSN")
}

func override(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 20 * time.Second
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8081
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Payment.Pix.BaseURL == "" {
		cfg.Payment.Pix.BaseURL = "https://api.openpix.com.br"
	}
	if cfg.Payment.Pix.Timeout <= 0 {
		cfg.Payment.Pix.Timeout = 15 * time.Second
	}
	if cfg.Payment.TestPaymentPrefix == "" {
		cfg.Payment.TestPaymentPrefix = "test_"
	}
	if cfg.Notifier.Platform == "" {
		cfg.Notifier.Platform = "pwa-encontro"
	}
	if cfg.Notifier.Timeout <= 0 {
		cfg.Notifier.Timeout = 5 * time.Second
	}
	if cfg.Notifier.Workers <= 0 {
		cfg.Notifier.Workers = 2
	}
	s := &cfg.Scheduler
	if s.ReconcileInterval <= 0 {
		s.ReconcileInterval = 5 * time.Minute
	}
	if s.PendingWindow <= 0 {
		s.PendingWindow = 24 * time.Hour
	}
	if s.ReconcileBatch <= 0 {
		s.ReconcileBatch = 200
	}
	if s.OrphanSweepInterval <= 0 {
		s.OrphanSweepInterval = 10 * time.Minute
	}
	if s.OrphanBatch <= 0 {
		s.OrphanBatch = 100
	}
	if s.ExpiryInterval <= 0 {
		s.ExpiryInterval = time.Hour
	}
	if s.RunTimeout <= 0 {
		s.RunTimeout = 2 * time.Minute
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if !c.Payment.Pix.Fake && c.Payment.Pix.AppID == "" {
		return errors.New("payment.pix.app_id is required")
	}
	if c.Notifier.Enabled && c.Notifier.URL == "" {
		return errors.New("notifier.url is required when notifier.enabled")
	}
	if n := len(c.Security.EncryptionKey); n != 0 && n != 16 && n != 24 && n != 32 {
		return fmt.Errorf("security.encryption_key must be 16, 24 or 32 bytes; got %d", n)
	}
	return nil
}
