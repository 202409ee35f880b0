package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/skirmish/pkg/errs"
	"github.com/pario-ai/skirmish/pkg/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("expected 24h TTL, got %v", cfg.Cache.TTL)
	}
	if cfg.Battle.MaxTurns != 15 {
		t.Errorf("expected 15 max turns, got %d", cfg.Battle.MaxTurns)
	}
	if cfg.Budget.ThrottleFraction != 0.2 {
		t.Errorf("expected 0.2 throttle fraction, got %v", cfg.Budget.ThrottleFraction)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_REASONING_KEY", "sk-test-123")

	content := `
db_path: "test.db"
environment: staging
budget:
  daily_cap: 20
  throttle_fraction: 0.25
pricing:
  - kind: generation
    tier: standard
    input_per_mtok: 3
    output_per_mtok: 15
  - kind: generation
    tier: economy
    input_per_mtok: 0.25
    output_per_mtok: 1.25
reasoning:
  providers:
    - name: primary
      url: https://reasoning.internal
      api_key: ${TEST_REASONING_KEY}
  routes:
    - tier: economy
      targets:
        - provider: primary
          model: small
cache:
  ttl: 30m
  capacity: 50
work_items:
  - id: skeptic
    persona:
      persona: skeptical-buyer
      difficulty: hard
      location: Austin, TX
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Environment != "staging" {
		t.Errorf("expected staging, got %s", cfg.Environment)
	}
	if cfg.Reasoning.Providers[0].APIKey != "sk-test-123" {
		t.Errorf("env var not expanded: got %s", cfg.Reasoning.Providers[0].APIKey)
	}
	if cfg.Cache.TTL != 30*time.Minute {
		t.Errorf("expected 30m TTL, got %v", cfg.Cache.TTL)
	}
	if cfg.Cache.Capacity != 50 {
		t.Errorf("expected capacity 50, got %d", cfg.Cache.Capacity)
	}
	if cfg.Budget.DailyCap != 20 {
		t.Errorf("expected cap 20, got %v", cfg.Budget.DailyCap)
	}
	if len(cfg.Pricing) != 2 || cfg.Pricing[1].Tier != models.TierEconomy {
		t.Fatalf("unexpected pricing rows: %+v", cfg.Pricing)
	}
	// Unset sections keep defaults.
	if cfg.Scheduler.Concurrency != 3 {
		t.Errorf("expected default concurrency 3, got %d", cfg.Scheduler.Concurrency)
	}
	w, ok := cfg.WorkItem("skeptic")
	if !ok {
		t.Fatal("work item not found")
	}
	if w.Persona.Difficulty != models.DifficultyHard {
		t.Errorf("expected hard difficulty, got %s", w.Persona.Difficulty)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero cap":          func(c *Config) { c.Budget.DailyCap = 0 },
		"fraction above 1":  func(c *Config) { c.Budget.ThrottleFraction = 1.5 },
		"no turns":          func(c *Config) { c.Battle.MaxTurns = 0 },
		"no concurrency":    func(c *Config) { c.Scheduler.Concurrency = 0 },
		"unknown backend":   func(c *Config) { c.Cache.Backend = "memcached" },
		"zero cap capacity": func(c *Config) { c.Cache.Capacity = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, errs.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}
