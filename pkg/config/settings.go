// Package config provides configuration loading for the pipeline runner and API.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unspun/unspun/pkg/alerts"
	"github.com/unspun/unspun/pkg/models"
)

// Default per-stage worker counts. Job configuration may override
// these per run via the worker_count keys.
const (
	DefaultIngestWorkers     = 4
	DefaultClassifyWorkers   = 4
	DefaultNeutralizeWorkers = 2
	DefaultQualityWorkers    = 4
	DefaultLinkWorkers       = 8
)

// StageSettings groups the coordinator tunables.
type StageSettings struct {
	Timeout time.Duration  `yaml:"timeout"`
	Workers map[string]int `yaml:"workers"`
}

// ResilienceSettings groups circuit breaker, retry and rate limiter
// tunables for the external model client.
type ResilienceSettings struct {
	BreakerFailureThreshold int           `yaml:"breaker_failure_threshold"`
	BreakerResetTimeout     time.Duration `yaml:"breaker_reset_timeout"`
	RetryMaxAttempts        int           `yaml:"retry_max_attempts"`
	RetryMinWait            time.Duration `yaml:"retry_min_wait"`
	RetryMaxWait            time.Duration `yaml:"retry_max_wait"`
	LimiterMaxCalls         int           `yaml:"limiter_max_calls"`
	LimiterRefillPerSec     float64       `yaml:"limiter_refill_per_sec"`
}

// Settings is the full configuration document.
type Settings struct {
	LogLevel     string             `yaml:"log_level"`
	DatabaseURL  string             `yaml:"database_url"`
	EventBusType string             `yaml:"event_bus"`
	KafkaBrokers string             `yaml:"kafka_brokers"`
	RedisURL     string             `yaml:"redis_url"`
	Cron         string             `yaml:"cron"`
	PluginsPath  string             `yaml:"plugins_path"`
	Stages       StageSettings      `yaml:"stages"`
	Resilience   ResilienceSettings `yaml:"resilience"`
	Alerts       alerts.Thresholds  `yaml:"alerts"`
}

// Defaults returns a Settings with every tunable at its default.
func Defaults() *Settings {
	return &Settings{
		LogLevel:     "info",
		DatabaseURL:  "file://./data",
		EventBusType: "gochannel",
		Cron:         "0 6 * * *",
		Stages: StageSettings{
			Timeout: 10 * time.Minute,
			Workers: map[string]int{
				string(models.StageIngest):       DefaultIngestWorkers,
				string(models.StageClassify):     DefaultClassifyWorkers,
				string(models.StageNeutralize):   DefaultNeutralizeWorkers,
				string(models.StageQualityCheck): DefaultQualityWorkers,
				string(models.StageLinkCheck):    DefaultLinkWorkers,
			},
		},
		Resilience: ResilienceSettings{
			BreakerFailureThreshold: 5,
			BreakerResetTimeout:     60 * time.Second,
			RetryMaxAttempts:        3,
			RetryMinWait:            time.Second,
			RetryMaxWait:            30 * time.Second,
			LimiterMaxCalls:         60,
			LimiterRefillPerSec:     1,
		},
		Alerts: alerts.DefaultThresholds(),
	}
}

// WorkerCount returns the configured worker count for a stage, falling
// back to the stage's default when unset.
func (s *Settings) WorkerCount(stage models.StageKind) int {
	if n, ok := s.Stages.Workers[string(stage)]; ok && n > 0 {
		return n
	}

	switch stage {
	case models.StageNeutralize:
		return DefaultNeutralizeWorkers
	case models.StageLinkCheck:
		return DefaultLinkWorkers
	default:
		return DefaultIngestWorkers
	}
}

// Load reads a YAML settings file, layering it over the defaults and
// applying environment fallbacks for the connection strings.
func Load(path string) (*Settings, error) {
	settings := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	settings.applyEnv()

	return settings, nil
}

// LoadOrDefault attempts to load from a file, falling back to pure
// defaults (plus env) when the file is absent.
func LoadOrDefault(path string) *Settings {
	settings, err := Load(path)
	if err != nil {
		settings = Defaults()
		settings.applyEnv()
	}

	return settings
}

func (s *Settings) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		s.DatabaseURL = v
	}

	if v := os.Getenv("EVENT_BUS_TYPE"); v != "" {
		s.EventBusType = v
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		s.KafkaBrokers = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		s.RedisURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}

	if v := os.Getenv("PLUGINS_PATH"); v != "" {
		s.PluginsPath = v
	}
}

// Validate checks the parts that have no safe fallback.
func (s *Settings) Validate() error {
	if s.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}

	if s.EventBusType != "gochannel" && s.EventBusType != "kafka" {
		return fmt.Errorf("unknown event_bus type %q", s.EventBusType)
	}

	if s.EventBusType == "kafka" && s.KafkaBrokers == "" {
		return fmt.Errorf("kafka_brokers is required when event_bus is kafka")
	}

	if s.Stages.Timeout <= 0 {
		return fmt.Errorf("stages.timeout must be positive")
	}

	for stage, count := range s.Stages.Workers {
		if !models.StageKind(stage).Valid() {
			return fmt.Errorf("stages.workers: unknown stage %q", stage)
		}

		if count < 1 {
			return fmt.Errorf("stages.workers.%s must be at least 1", stage)
		}
	}

	if s.Resilience.LimiterMaxCalls < 1 {
		return fmt.Errorf("resilience.limiter_max_calls must be at least 1")
	}

	if s.Resilience.LimiterRefillPerSec <= 0 {
		return fmt.Errorf("resilience.limiter_refill_per_sec must be positive")
	}

	return nil
}
