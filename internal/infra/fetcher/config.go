package fetcher

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"genesis-connector/internal/pkg/config"
)

// Config holds the configuration for HTML and image downloading.
//
// Security settings:
//   - DenyPrivateIPs: Prevents SSRF attacks by blocking private IP addresses
//   - MaxBodySize: Prevents memory exhaustion from oversized responses
//   - MaxRedirects: Prevents infinite redirect loops
//   - Timeout: Prevents resource starvation from slow servers
//
// Behavior settings:
//   - MaxImages: Caps how many inline images are fetched per article
//   - ImageParallelism: Controls concurrent image downloads within one article
type Config struct {
	// Timeout is the maximum duration for a single HTTP request.
	// Default: 30s
	Timeout time.Duration

	// MaxBodySize is the maximum HTTP response body size in bytes.
	// Enforced during response reading, not from the Content-Length header.
	// Default: 10485760 (10MB)
	MaxBodySize int64

	// MaxRedirects is the maximum number of HTTP redirects to follow.
	// Each redirect target is re-validated for SSRF.
	// Default: 5
	MaxRedirects int

	// DenyPrivateIPs controls whether URLs resolving to private/loopback/
	// link-local IPs are rejected. Should always be true in production.
	// Default: true
	DenyPrivateIPs bool

	// MaxImages is the maximum number of inline images downloaded per
	// article; further references are ignored.
	// Default: 10
	MaxImages int

	// ImageParallelism is the maximum number of concurrent image downloads
	// within a single article.
	// Default: 4
	ImageParallelism int
}

// DefaultConfig returns the default download configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:          30 * time.Second,
		MaxBodySize:      10 * 1024 * 1024,
		MaxRedirects:     5,
		DenyPrivateIPs:   true,
		MaxImages:        10,
		ImageParallelism: 4,
	}
}

// Validate checks if the configuration values are valid and safe.
//
// Validation rules:
//   - Timeout: > 0
//   - MaxBodySize: 1KB-100MB
//   - MaxRedirects: 0-10
//   - MaxImages: 0-50
//   - ImageParallelism: 1-16
func (c *Config) Validate() error {
	if err := config.ValidatePositiveDuration(c.Timeout); err != nil {
		return fmt.Errorf("timeout: %w", err)
	}

	minBodySize := int64(1024)
	maxBodySize := int64(100 * 1024 * 1024)
	if c.MaxBodySize < minBodySize || c.MaxBodySize > maxBodySize {
		return fmt.Errorf("max body size must be between %d and %d bytes, got %d", minBodySize, maxBodySize, c.MaxBodySize)
	}

	if c.MaxRedirects < 0 || c.MaxRedirects > 10 {
		return fmt.Errorf("max redirects must be between 0 and 10, got %d", c.MaxRedirects)
	}

	if c.MaxImages < 0 || c.MaxImages > 50 {
		return fmt.Errorf("max images must be between 0 and 50, got %d", c.MaxImages)
	}

	if c.ImageParallelism < 1 || c.ImageParallelism > 16 {
		return fmt.Errorf("image parallelism must be between 1 and 16, got %d", c.ImageParallelism)
	}

	return nil
}

// LoadConfigFromEnv loads configuration from environment variables,
// falling back to defaults for unset values. After loading, the
// configuration is validated.
//
// Environment variables:
//   - DOWNLOAD_TIMEOUT: seconds, e.g., "30" (default: 30)
//   - DOWNLOAD_MAX_BODY_SIZE: integer in bytes (default: 10485760)
//   - DOWNLOAD_MAX_REDIRECTS: integer (default: 5)
//   - DOWNLOAD_DENY_PRIVATE_IPS: "true" or "false" (default: true)
//   - DOWNLOAD_MAX_IMAGES: integer (default: 10)
//   - DOWNLOAD_IMAGE_PARALLELISM: integer (default: 4)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	// DOWNLOAD_TIMEOUT is specified in whole seconds.
	if val := os.Getenv("DOWNLOAD_TIMEOUT"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			cfg.Timeout = time.Duration(parsed) * time.Second
		} else {
			return cfg, fmt.Errorf("invalid DOWNLOAD_TIMEOUT: %v (expected whole seconds, e.g. '30')", err)
		}
	}

	if val := os.Getenv("DOWNLOAD_MAX_BODY_SIZE"); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.MaxBodySize = parsed
		} else {
			return cfg, fmt.Errorf("invalid DOWNLOAD_MAX_BODY_SIZE: %v", err)
		}
	}

	if val := os.Getenv("DOWNLOAD_MAX_REDIRECTS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			cfg.MaxRedirects = parsed
		} else {
			return cfg, fmt.Errorf("invalid DOWNLOAD_MAX_REDIRECTS: %v", err)
		}
	}

	if val := os.Getenv("DOWNLOAD_DENY_PRIVATE_IPS"); val != "" {
		cfg.DenyPrivateIPs = val == "true"
	}

	if val := os.Getenv("DOWNLOAD_MAX_IMAGES"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			cfg.MaxImages = parsed
		} else {
			return cfg, fmt.Errorf("invalid DOWNLOAD_MAX_IMAGES: %v", err)
		}
	}

	if val := os.Getenv("DOWNLOAD_IMAGE_PARALLELISM"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			cfg.ImageParallelism = parsed
		} else {
			return cfg, fmt.Errorf("invalid DOWNLOAD_IMAGE_PARALLELISM: %v", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
