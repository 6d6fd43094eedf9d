// Package config loads and validates the engine's YAML configuration, with
// environment-variable overrides and hot-reload of the safe-to-change field
// subset.
package config

import (
	"os"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/DoesN0tCompute/bamreconciler/internal/opserrors"
)

// UpdateMode controls how the diff engine reacts to row-action/existence
// mismatches.
type UpdateMode string

const (
	UpdateModeCreateOnly UpdateMode = "create_only"
	UpdateModeStrict     UpdateMode = "strict"
	UpdateModeUpsert     UpdateMode = "upsert"
)

type DiffConfig struct {
	UpdateMode            UpdateMode `yaml:"update_mode" validate:"required,oneof=create_only strict upsert"`
	SafeMode              bool       `yaml:"safe_mode"`
	EnableOrphanDetection bool       `yaml:"enable_orphan_detection"`
}

type PlannerConfig struct {
	MaxBatchSize int `yaml:"max_batch_size" validate:"gte=0"`
}

type ThrottleConfig struct {
	InitialConcurrency int `yaml:"initial_concurrency" validate:"gte=1"`
	MinConcurrency     int `yaml:"min_concurrency" validate:"gte=1"`
	MaxConcurrency     int `yaml:"max_concurrency" validate:"gtefield=MinConcurrency"`
	SuccessStreakToGrow int `yaml:"success_streak_to_grow" validate:"gte=1"`
	LatencyBudgetMS    int `yaml:"latency_budget_ms" validate:"gte=1"`
}

type PersistenceConfig struct {
	Driver        string `yaml:"driver" validate:"required,oneof=sqlite postgres"`
	DSN           string `yaml:"dsn" validate:"required"`
	RetentionDays int    `yaml:"retention_days" validate:"gte=0"`
}

type CircuitConfig struct {
	FailureThreshold uint32 `yaml:"failure_threshold" validate:"gte=1"`
	ResetTimeoutSec  int    `yaml:"reset_timeout_seconds" validate:"gte=1"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"required,oneof=json text"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type TracingConfig struct {
	Enabled         bool   `yaml:"enabled"`
	ExporterEndpoint string `yaml:"exporter_endpoint"`
}

type ResolverCacheConfig struct {
	RedisAddress string `yaml:"redis_address"`
	TTLSeconds   int    `yaml:"ttl_seconds" validate:"gte=0"`
}

// Config is the full engine configuration.
type Config struct {
	Diff          DiffConfig          `yaml:"diff" validate:"required"`
	Planner       PlannerConfig       `yaml:"planner"`
	Throttle      ThrottleConfig      `yaml:"throttle" validate:"required"`
	Persistence   PersistenceConfig   `yaml:"persistence" validate:"required"`
	Circuit       CircuitConfig       `yaml:"circuit" validate:"required"`
	Logging       LoggingConfig       `yaml:"logging" validate:"required"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Tracing       TracingConfig       `yaml:"tracing"`
	ResolverCache ResolverCacheConfig `yaml:"resolver_cache"`

	mu sync.RWMutex
}

var validate = validator.New()

// Load reads and parses path, applies environment overrides, and validates
// the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, opserrors.FailedTo("read config file", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, opserrors.FailedTo("parse config yaml", err)
	}
	cfg.loadFromEnv()
	if err := cfg.validateConfig(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadFromEnv applies BAMRECONCILER_*-prefixed environment overrides for the
// handful of fields operators commonly override per-deployment.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("BAMRECONCILER_SAFE_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Diff.SafeMode = b
		}
	}
	if v := os.Getenv("BAMRECONCILER_UPDATE_MODE"); v != "" {
		c.Diff.UpdateMode = UpdateMode(v)
	}
	if v := os.Getenv("BAMRECONCILER_PERSISTENCE_DSN"); v != "" {
		c.Persistence.DSN = v
	}
	if v := os.Getenv("BAMRECONCILER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BAMRECONCILER_MAX_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Planner.MaxBatchSize = n
		}
	}
}

func (c *Config) validateConfig() error {
	if err := validate.Struct(c); err != nil {
		return opserrors.FailedTo("validate config", err)
	}
	return nil
}

// Watch starts an fsnotify watch on path and applies hot-reloadable field
// updates (throttle bounds, log level) to cfg in place whenever the file
// changes; structural fields (persistence driver, listen ports) are ignored
// on reload and require a process restart.
func Watch(path string, cfg *Config, log *logrus.Logger) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, opserrors.FailedTo("create config watcher", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, opserrors.FailedTo("watch config file", err)
	}
	go func() {
		for event := range watcher.Events {
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reloaded, err := Load(path)
			if err != nil {
				log.WithError(err).Warn("config reload failed, keeping previous values")
				continue
			}
			cfg.applyHotReloadable(reloaded)
			log.Info("config hot-reloaded")
		}
	}()
	return watcher, nil
}

func (c *Config) applyHotReloadable(other *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Throttle.MinConcurrency = other.Throttle.MinConcurrency
	c.Throttle.MaxConcurrency = other.Throttle.MaxConcurrency
	c.Throttle.SuccessStreakToGrow = other.Throttle.SuccessStreakToGrow
	c.Throttle.LatencyBudgetMS = other.Throttle.LatencyBudgetMS
	c.Logging.Level = other.Logging.Level
}

// Snapshot returns a copy of the fields safe to read concurrently with a
// hot-reload in progress.
func (c *Config) Snapshot() ThrottleConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Throttle
}
