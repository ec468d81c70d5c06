// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type TossConfig struct {
	BaseURL       string        `yaml:"base_url"`
	SecretKey     string        `yaml:"secret_key"`
	WebhookSecret string        `yaml:"webhook_secret"`
	Timeout       time.Duration `yaml:"timeout"`
}

type PaymentConfig struct {
	Toss TossConfig `yaml:"toss"`
}

type AdminConfig struct {
	JWTSecret string   `yaml:"jwt_secret"`
	APIKeys   []string `yaml:"api_keys"` // static keys for service-to-service calls
}

type AlertConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
}

type WorkerConfig struct {
	RenewalInterval      time.Duration `yaml:"renewal_interval"`       // scan cadence
	RenewalBatchSize     int           `yaml:"renewal_batch_size"`     // subs per scan
	CompensationInterval time.Duration `yaml:"compensation_interval"`  // replay cadence
	CompensationBatch    int           `yaml:"compensation_batch"`     // records per pass
	LockTTL              time.Duration `yaml:"lock_ttl"`               // renewal lock lease
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Payment  PaymentConfig  `yaml:"payment"`
	Admin    AdminConfig    `yaml:"admin"`
	Alert    AlertConfig    `yaml:"alert"`
	Worker   WorkerConfig   `yaml:"worker"`
	Security SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Payment.Toss.BaseURL == "" {
		cfg.Payment.Toss.BaseURL = "https://api.tosspayments.com"
	}
	if cfg.Payment.Toss.Timeout <= 0 {
		cfg.Payment.Toss.Timeout = 30 * time.Second
	}
	if cfg.Worker.RenewalInterval <= 0 {
		cfg.Worker.RenewalInterval = time.Hour
	}
	if cfg.Worker.RenewalBatchSize <= 0 {
		cfg.Worker.RenewalBatchSize = 100
	}
	if cfg.Worker.CompensationInterval <= 0 {
		cfg.Worker.CompensationInterval = 10 * time.Minute
	}
	if cfg.Worker.CompensationBatch <= 0 {
		cfg.Worker.CompensationBatch = 50
	}
	if cfg.Worker.LockTTL <= 0 {
		cfg.Worker.LockTTL = 5 * time.Minute
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Payment.Toss.SecretKey == "" {
		return nil, errors.New("payment.toss.secret_key is required")
	}
	if cfg.Payment.Toss.WebhookSecret == "" {
		return nil, errors.New("payment.toss.webhook_secret is required")
	}
	if cfg.Security.EncryptionKey == "" {
		return nil, errors.New("security.encryption_key is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
