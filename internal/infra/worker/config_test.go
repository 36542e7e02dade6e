package worker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genesis-connector/internal/observability/logging"
)

// Prometheus collectors register against the default registry once per
// process, so every test shares one metrics instance.
var (
	metricsOnce sync.Once
	testMetrics *WorkerMetrics
)

func sharedMetrics() *WorkerMetrics {
	metricsOnce.Do(func() {
		testMetrics = NewWorkerMetrics("download")
	})
	return testMetrics
}

func TestDefaultConfig_PerStagePorts(t *testing.T) {
	assert.Equal(t, 8081, DefaultConfig(StageDiscovery).Port)
	assert.Equal(t, 8082, DefaultConfig(StageDownload).Port)
	assert.Equal(t, 8083, DefaultConfig(StageExtract).Port)
}

func TestWorkerConfig_Validate(t *testing.T) {
	cfg := DefaultConfig(StageDownload)
	assert.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*WorkerConfig)
	}{
		{"unknown stage", func(c *WorkerConfig) { c.Stage = "mystery" }},
		{"interval too small", func(c *WorkerConfig) { c.Interval = time.Millisecond }},
		{"zero batch size", func(c *WorkerConfig) { c.BatchSize = 0 }},
		{"negative retries", func(c *WorkerConfig) { c.MaxRetries = -1 }},
		{"privileged port", func(c *WorkerConfig) { c.Port = 80 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig(StageDownload)
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv(StageDownload, logging.NewLogger(), sharedMetrics())
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Interval)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 300*time.Second, cfg.DiscoveryInterval)
	assert.Equal(t, 8082, cfg.Port)
	assert.Equal(t, ":8082", cfg.Addr())
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("WORKER_INTERVAL", "30s")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("MAX_DOWNLOAD_RETRIES", "5")
	t.Setenv("DISCOVERY_INTERVAL", "600")
	t.Setenv("DOWNLOAD_PORT", "9090")
	t.Setenv("DOWNLOAD_HOST", "127.0.0.1")

	cfg, err := LoadConfigFromEnv(StageDownload, logging.NewLogger(), sharedMetrics())
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 600*time.Second, cfg.DiscoveryInterval)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
}

func TestLoadConfigFromEnv_FailOpenOnInvalid(t *testing.T) {
	t.Setenv("BATCH_SIZE", "not-a-number")
	t.Setenv("DOWNLOAD_PORT", "80") // privileged, rejected

	cfg, err := LoadConfigFromEnv(StageDownload, logging.NewLogger(), sharedMetrics())
	require.NoError(t, err, "fail-open loading never errors")

	assert.Equal(t, 10, cfg.BatchSize, "invalid value falls back to default")
	assert.Equal(t, 8082, cfg.Port)
}

func TestLoadConfigFromEnv_StageRetryKeyWins(t *testing.T) {
	t.Setenv("MAX_RETRIES", "7")
	t.Setenv("MAX_EXTRACTION_RETRIES", "2")

	extractCfg, err := LoadConfigFromEnv(StageExtract, logging.NewLogger(), sharedMetrics())
	require.NoError(t, err)
	assert.Equal(t, 2, extractCfg.MaxRetries, "stage-specific key overrides MAX_RETRIES")

	discoveryCfg, err := LoadConfigFromEnv(StageDiscovery, logging.NewLogger(), sharedMetrics())
	require.NoError(t, err)
	assert.Equal(t, 7, discoveryCfg.MaxRetries, "discovery falls back to MAX_RETRIES")
}
