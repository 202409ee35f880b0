package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pario-ai/skirmish/pkg/errs"
	"github.com/pario-ai/skirmish/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds all skirmish configuration.
type Config struct {
	DBPath      string              `yaml:"db_path"`
	Environment string              `yaml:"environment"`
	Log         LogConfig           `yaml:"log"`
	Budget      BudgetConfig        `yaml:"budget"`
	Pricing     []models.PricingRow `yaml:"pricing"`
	Cache       CacheConfig         `yaml:"cache"`
	Battle      BattleConfig        `yaml:"battle"`
	Scheduler   SchedulerConfig     `yaml:"scheduler"`
	Reasoning   ReasoningConfig     `yaml:"reasoning"`
	Referee     ServiceConfig       `yaml:"referee"`
	Provisioner ServiceConfig       `yaml:"provisioner"`
	Alerts      AlertConfig         `yaml:"alerts"`
	Archive     ArchiveConfig       `yaml:"archive"`
	Serve       ServeConfig         `yaml:"serve"`
	WorkItems   []models.WorkItem   `yaml:"work_items"`
}

// LogConfig selects the zap preset and level.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// BudgetConfig controls the daily spend cap.
type BudgetConfig struct {
	DailyCap         float64 `yaml:"daily_cap"`
	ThrottleFraction float64 `yaml:"throttle_fraction"`
	KillSwitch       bool    `yaml:"kill_switch"`
}

// CacheConfig controls the resource cache.
type CacheConfig struct {
	Backend        string        `yaml:"backend"` // "sqlite" (default) or "redis"
	TTL            time.Duration `yaml:"ttl"`
	Capacity       int           `yaml:"capacity"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"` // bounds one shared lookup-and-provision call
	Redis          RedisConfig   `yaml:"redis"`
}

// RedisConfig is used when the cache backend is redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// BattleConfig controls a single battle.
type BattleConfig struct {
	MaxTurns int                `yaml:"max_turns"`
	RoleA    models.RoleConfig  `yaml:"role_a"`
	Weights  map[string]float64 `yaml:"weights"`
}

// SchedulerConfig controls batch admission.
type SchedulerConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Delay       time.Duration `yaml:"delay"`
}

// ServiceConfig describes an HTTP collaborator.
type ServiceConfig struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// ReasoningConfig lists reasoning providers and the per-tier fallback chains.
type ReasoningConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
	Routes    []RouteConfig    `yaml:"routes"`
	Timeout   time.Duration    `yaml:"timeout"`
}

// ProviderConfig defines an upstream reasoning service.
type ProviderConfig struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// RouteConfig maps a tier to an ordered list of targets.
type RouteConfig struct {
	Tier    models.Tier   `yaml:"tier"`
	Targets []RouteTarget `yaml:"targets"`
}

// RouteTarget identifies a specific provider and model in a fallback chain.
type RouteTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// AlertConfig lists notification sinks. Both may be empty.
type AlertConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Kafka      KafkaConfig   `yaml:"kafka"`
	Timeout    time.Duration `yaml:"timeout"`
}

// KafkaConfig for the alert topic.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ArchiveConfig controls the battle archive.
type ArchiveConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// ServeConfig controls the status HTTP server.
type ServeConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath:      "skirmish.db",
		Environment: "dev",
		Log:         LogConfig{Level: "info"},
		Budget: BudgetConfig{
			DailyCap:         15,
			ThrottleFraction: 0.2,
		},
		Cache: CacheConfig{
			Backend:        "sqlite",
			TTL:            24 * time.Hour,
			Capacity:       500,
			SweepInterval:  10 * time.Minute,
			AcquireTimeout: 2 * time.Minute,
			Redis:          RedisConfig{Addr: "localhost:6379", Prefix: "skirmish:cache"},
		},
		Battle: BattleConfig{
			MaxTurns: 15,
		},
		Scheduler: SchedulerConfig{
			Concurrency: 3,
			Delay:       2 * time.Second,
		},
		Reasoning: ReasoningConfig{Timeout: 60 * time.Second},
		Referee:   ServiceConfig{Timeout: 60 * time.Second, MaxRetries: 2},
		Provisioner: ServiceConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 2,
		},
		Alerts: AlertConfig{Timeout: 5 * time.Second},
		Archive: ArchiveConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		Serve: ServeConfig{Listen: ":8080"},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w: %w", errs.ErrConfiguration, err)
	}

	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is empty: %w", errs.ErrConfiguration)
	}
	if c.Budget.DailyCap <= 0 {
		return fmt.Errorf("budget.daily_cap must be positive: %w", errs.ErrConfiguration)
	}
	if c.Budget.ThrottleFraction <= 0 || c.Budget.ThrottleFraction > 1 {
		return fmt.Errorf("budget.throttle_fraction %v outside (0,1]: %w", c.Budget.ThrottleFraction, errs.ErrConfiguration)
	}
	if c.Battle.MaxTurns <= 0 {
		return fmt.Errorf("battle.max_turns must be positive: %w", errs.ErrConfiguration)
	}
	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("scheduler.concurrency must be positive: %w", errs.ErrConfiguration)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive: %w", errs.ErrConfiguration)
	}
	switch c.Cache.Backend {
	case "", "sqlite", "redis":
	default:
		return fmt.Errorf("cache.backend %q: %w", c.Cache.Backend, errs.ErrConfiguration)
	}
	return nil
}

// WorkItem returns the configured work item with the given id.
func (c *Config) WorkItem(id string) (models.WorkItem, bool) {
	for _, w := range c.WorkItems {
		if w.ID == id {
			return w, true
		}
	}
	return models.WorkItem{}, false
}
