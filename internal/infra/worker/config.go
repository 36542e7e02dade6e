package worker

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"genesis-connector/internal/pkg/config"
)

// Stage names accepted by LoadConfigFromEnv.
const (
	StageDiscovery = "discovery"
	StageDownload  = "download"
	StageExtract   = "extract"
)

// defaultPorts assigns each stage process its status-surface port.
var defaultPorts = map[string]int{
	StageDiscovery: 8081,
	StageDownload:  8082,
	StageExtract:   8083,
}

// WorkerConfig holds the per-stage worker configuration.
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - Default values (provided by DefaultConfig)
//
// All fields have sensible defaults and validation rules; loading follows
// the fail-open strategy, so the worker can operate safely even with
// invalid or missing configuration.
type WorkerConfig struct {
	// Stage identifies which pipeline stage this worker runs.
	Stage string

	// Interval is the sleep between worker batches. A batch that
	// processed zero tasks doubles this before the next poll.
	// Range: 1s-10m
	// Default: 10s
	Interval time.Duration

	// BatchSize is the maximum number of tasks one batch processes.
	// Range: 1-500
	// Default: 10
	BatchSize int

	// MaxRetries bounds per-task re-queues before the deadletter.
	// Range: 0-10
	// Default: 3
	MaxRetries int

	// DiscoveryInterval is the cadence of periodic discovery runs
	// (discovery stage only).
	// Range: 30s-24h
	// Default: 300s
	DiscoveryInterval time.Duration

	// Host is the status server bind host. Default: "" (all interfaces).
	Host string

	// Port is the status server port.
	// Range: 1024-65535
	// Default: per stage (8081 discovery, 8082 download, 8083 extract)
	Port int
}

// DefaultConfig returns a WorkerConfig with the stage's default values.
func DefaultConfig(stage string) WorkerConfig {
	port, ok := defaultPorts[stage]
	if !ok {
		port = 8080
	}
	return WorkerConfig{
		Stage:             stage,
		Interval:          10 * time.Second,
		BatchSize:         10,
		MaxRetries:        3,
		DiscoveryInterval: 300 * time.Second,
		Host:              "",
		Port:              port,
	}
}

// Validate checks the configuration values, aggregating all failures.
func (c *WorkerConfig) Validate() error {
	var errors []error

	if _, ok := defaultPorts[c.Stage]; !ok {
		errors = append(errors, fmt.Errorf("unknown stage %q", c.Stage))
	}
	if err := config.ValidateDuration(c.Interval, 1*time.Second, 10*time.Minute); err != nil {
		errors = append(errors, fmt.Errorf("interval: %w", err))
	}
	if err := config.ValidateIntRange(c.BatchSize, 1, 500); err != nil {
		errors = append(errors, fmt.Errorf("batch size: %w", err))
	}
	if err := config.ValidateIntRange(c.MaxRetries, 0, 10); err != nil {
		errors = append(errors, fmt.Errorf("max retries: %w", err))
	}
	if err := config.ValidateDuration(c.DiscoveryInterval, 30*time.Second, 24*time.Hour); err != nil {
		errors = append(errors, fmt.Errorf("discovery interval: %w", err))
	}
	if err := config.ValidateIntRange(c.Port, 1024, 65535); err != nil {
		errors = append(errors, fmt.Errorf("port: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}
	return nil
}

// retryEnvKeys maps each stage to its dedicated retry-limit variable.
// MAX_RETRIES remains the shared fallback.
var retryEnvKeys = map[string]string{
	StageDownload: "MAX_DOWNLOAD_RETRIES",
	StageExtract:  "MAX_EXTRACTION_RETRIES",
}

// LoadConfigFromEnv loads a stage's worker configuration with validation
// and automatic fallback to defaults on failure (fail-open: it never
// returns an error for an invalid value, only logs, falls back and
// counts the fallback in metrics).
//
// Environment variables:
//   - WORKER_INTERVAL: duration string (default: "10s")
//   - BATCH_SIZE: integer 1-500 (default: 10)
//   - MAX_RETRIES: integer 0-10 (default: 3); MAX_DOWNLOAD_RETRIES and
//     MAX_EXTRACTION_RETRIES override it for their stages
//   - DISCOVERY_INTERVAL: whole seconds, 30-86400 (default: 300)
//   - {STAGE}_HOST, {STAGE}_PORT: status server bind address
func LoadConfigFromEnv(stage string, logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig(stage)
	fallbackApplied := false

	fallback := func(field string, warnings []string) {
		fallbackApplied = true
		metrics.RecordValidationError(field)
		metrics.RecordFallback(field, "default")
		for _, warning := range warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", field),
				slog.String("warning", warning))
		}
	}

	result := config.LoadEnvDuration("WORKER_INTERVAL", cfg.Interval, func(d time.Duration) error {
		return config.ValidateDuration(d, 1*time.Second, 10*time.Minute)
	})
	cfg.Interval = result.Value.(time.Duration)
	if result.FallbackApplied {
		fallback("interval", result.Warnings)
	}

	result = config.LoadEnvInt("BATCH_SIZE", cfg.BatchSize, func(v int) error {
		return config.ValidateIntRange(v, 1, 500)
	})
	cfg.BatchSize = result.Value.(int)
	if result.FallbackApplied {
		fallback("batch_size", result.Warnings)
	}

	retryKey := "MAX_RETRIES"
	if stageKey, ok := retryEnvKeys[stage]; ok && config.LoadEnvString(stageKey, "") != "" {
		retryKey = stageKey
	}
	result = config.LoadEnvInt(retryKey, cfg.MaxRetries, func(v int) error {
		return config.ValidateIntRange(v, 0, 10)
	})
	cfg.MaxRetries = result.Value.(int)
	if result.FallbackApplied {
		fallback("max_retries", result.Warnings)
	}

	// DISCOVERY_INTERVAL is documented in whole seconds.
	result = config.LoadEnvInt("DISCOVERY_INTERVAL", int(cfg.DiscoveryInterval/time.Second), func(v int) error {
		return config.ValidateIntRange(v, 30, 86400)
	})
	cfg.DiscoveryInterval = time.Duration(result.Value.(int)) * time.Second
	if result.FallbackApplied {
		fallback("discovery_interval", result.Warnings)
	}

	prefix := strings.ToUpper(stage)
	cfg.Host = config.LoadEnvString(prefix+"_HOST", cfg.Host)

	result = config.LoadEnvInt(prefix+"_PORT", cfg.Port, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	})
	cfg.Port = result.Value.(int)
	if result.FallbackApplied {
		fallback("port", result.Warnings)
	}

	metrics.SetFallbackActive("", fallbackApplied)
	metrics.RecordLoadTimestamp()

	return &cfg, nil
}

// Addr returns the status server listen address.
func (c *WorkerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
