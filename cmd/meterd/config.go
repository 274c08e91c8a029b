package main

import (
	"fmt"
	"os"
	"time"

	"github.com/calderaops/meterbill/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the meterd YAML configuration. Intervals are plain second counts;
// zero falls back to the component defaults (1s tick, 30s reconcile).
type Config struct {
	Scope                    string `yaml:"scope"`
	TickIntervalSeconds      int    `yaml:"tick_interval_seconds"`
	ReconcileIntervalSeconds int    `yaml:"reconcile_interval_seconds"`

	Backend struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"backend"`

	NATS struct {
		Enabled       bool   `yaml:"enabled"`
		URL           string `yaml:"url"`
		StreamName    string `yaml:"stream_name"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	// Postgres gates both the durable expiration store and the billing
	// ledger; with it disabled (development) expirations live in memory and
	// no ledger rows are written.
	Postgres struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"postgres"`

	Resources []ResourceConfig `yaml:"resources"`
}

// ResourceConfig is one catalog entry; the rate is a decimal string so YAML
// never goes through float64.
type ResourceConfig struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	RatePerMinute string `yaml:"rate_per_minute"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Scope == "" {
		return nil, fmt.Errorf("scope is required")
	}
	if config.Backend.BaseURL == "" {
		return nil, fmt.Errorf("backend.base_url is required")
	}
	return &config, nil
}

func (c *Config) tickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

func (c *Config) reconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSeconds) * time.Second
}

func (c *Config) resources() ([]models.Resource, error) {
	out := make([]models.Resource, 0, len(c.Resources))
	for _, rc := range c.Resources {
		id, err := uuid.Parse(rc.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid resource id %q: %w", rc.ID, err)
		}
		rate, err := decimal.NewFromString(rc.RatePerMinute)
		if err != nil {
			return nil, fmt.Errorf("invalid rate for resource %q: %w", rc.Name, err)
		}
		if rate.IsNegative() {
			return nil, fmt.Errorf("rate for resource %q must not be negative", rc.Name)
		}
		out = append(out, models.Resource{ID: id, Name: rc.Name, RatePerMinute: rate})
	}
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
