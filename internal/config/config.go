package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither an argument nor SLOTKEEPER_CONFIG is set.
const DefaultPath = "configs/config.yaml"

// EnvPath names the environment variable holding the config path.
const EnvPath = "SLOTKEEPER_CONFIG"

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Reminders  RemindersConfig  `yaml:"reminders"`
	Backup     BackupConfig     `yaml:"backup"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	MailQueue  MailQueueConfig  `yaml:"mail_queue"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
}

type ServerConfig struct {
	Port            int `yaml:"port"`
	ShutdownSeconds int `yaml:"shutdown_seconds"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address         string `yaml:"address"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool { return r.Address != "" }

// CacheTTL is the schedule cache lifetime.
func (r RedisConfig) CacheTTL() time.Duration {
	return time.Duration(r.CacheTTLSeconds) * time.Second
}

type MonitoringConfig struct {
	HealthCheckPort   int  `yaml:"health_check_port"`
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type RemindersConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Schedule       string  `yaml:"schedule"`
	Timezone       string  `yaml:"timezone"`
	MaxConcurrency int     `yaml:"max_concurrency"`
	Rate           float64 `yaml:"rate"`
	Burst          int     `yaml:"burst"`
	MaxRetries     int     `yaml:"max_retries"`
	RetryDelays    []int   `yaml:"retry_delays_seconds"`
}

// Delays converts RetryDelays to durations.
func (r RemindersConfig) Delays() []time.Duration {
	out := make([]time.Duration, 0, len(r.RetryDelays))
	for _, s := range r.RetryDelays {
		out = append(out, time.Duration(s)*time.Second)
	}
	return out
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Enabled reports whether SMTP delivery is configured.
func (s SMTPConfig) Enabled() bool { return s.Host != "" }

type MailQueueConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

// Enabled reports whether e-mail goes through RabbitMQ instead of SMTP.
func (m MailQueueConfig) Enabled() bool { return m.URL != "" }

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

// Enabled reports whether a usable bot token is configured.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.BotToken != "YOUR_BOT_TOKEN_HERE"
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type APIConfig struct {
	Enabled           bool   `yaml:"enabled"`
	APIKey            string `yaml:"api_key"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// Load reads the YAML config at path. An empty path falls back to
// SLOTKEEPER_CONFIG and then DefaultPath. A .env file next to the working
// directory is loaded first so ${VAR} placeholders can refer to it.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse expands ${ENV_VAR} placeholders, decodes data and applies defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownSeconds <= 0 {
		c.Server.ShutdownSeconds = 10
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/slotkeeper.db"
	}
	if c.Redis.CacheTTLSeconds <= 0 {
		c.Redis.CacheTTLSeconds = 300
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Reminders.Schedule == "" {
		c.Reminders.Schedule = "*/5 * * * *"
	}
	if c.Reminders.Timezone == "" {
		c.Reminders.Timezone = "UTC"
	}
	if c.Reminders.MaxConcurrency <= 0 {
		c.Reminders.MaxConcurrency = 10
	}
	if c.Reminders.Rate <= 0 {
		c.Reminders.Rate = 20
	}
	if c.Reminders.Burst <= 0 {
		c.Reminders.Burst = 30
	}
	if c.Reminders.MaxRetries <= 0 {
		c.Reminders.MaxRetries = 3
	}
	if len(c.Reminders.RetryDelays) == 0 {
		c.Reminders.RetryDelays = []int{1, 5, 30}
	}
	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "0 3 * * *"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.MailQueue.Queue == "" {
		c.MailQueue.Queue = "mail.reminders"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.API.RequestsPerMinute <= 0 {
		c.API.RequestsPerMinute = 120
	}
}

// ShutdownTimeout is how long servers get to drain on exit.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}
