package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Sync     SyncConfig     `yaml:"sync"`
	HN       HNConfig       `yaml:"hn"`
	Server   ServerConfig   `yaml:"server"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig configures the sync loop.
type ScheduleConfig struct {
	Interval string `yaml:"interval"`
}

// ParseInterval returns the cycle interval as time.Duration.
func (s ScheduleConfig) ParseInterval() time.Duration {
	return parseDuration(s.Interval, 20*time.Second)
}

// SyncConfig tunes the orchestrators.
type SyncConfig struct {
	Window        int `yaml:"window"`
	BackfillBatch int `yaml:"backfill_batch"`
}

// HNConfig configures the Hacker News API client.
type HNConfig struct {
	BaseURL     string `yaml:"base_url"`
	Timeout     string `yaml:"timeout"`
	Concurrency int    `yaml:"concurrency"`
	Retries     uint   `yaml:"retries"`
}

// ParseTimeout returns the per-request timeout as time.Duration.
func (h HNConfig) ParseTimeout() time.Duration {
	return parseDuration(h.Timeout, 10*time.Second)
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./hnmirror.db"},
		Schedule: ScheduleConfig{Interval: "20s"},
		Sync: SyncConfig{
			Window:        30,
			BackfillBatch: 10,
		},
		HN: HNConfig{
			BaseURL:     "https://hacker-news.firebaseio.com/v0",
			Timeout:     "10s",
			Concurrency: 10,
			Retries:     3,
		},
		Server:  ServerConfig{Port: 8080},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the sync loop cannot run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Sync.Window <= 0 {
		return fmt.Errorf("sync.window must be positive, got %d", c.Sync.Window)
	}
	if c.Sync.BackfillBatch < 0 {
		return fmt.Errorf("sync.backfill_batch must not be negative, got %d", c.Sync.BackfillBatch)
	}
	if c.HN.Concurrency <= 0 {
		return fmt.Errorf("hn.concurrency must be positive, got %d", c.HN.Concurrency)
	}
	if c.Alerts.Slack.Enabled && c.Alerts.Slack.WebhookURL == "" {
		return fmt.Errorf("alerts.slack.webhook_url is required when slack alerts are enabled")
	}
	if c.Alerts.Discord.Enabled && c.Alerts.Discord.WebhookURL == "" {
		return fmt.Errorf("alerts.discord.webhook_url is required when discord alerts are enabled")
	}
	if c.Alerts.Webhook.Enabled && c.Alerts.Webhook.URL == "" {
		return fmt.Errorf("alerts.webhook.url is required when the webhook is enabled")
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HNMIRROR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("HNMIRROR_HN_BASE_URL"); v != "" {
		cfg.HN.BaseURL = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("HNMIRROR_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Webhook.URL = v
		cfg.Alerts.Webhook.Enabled = true
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
