// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all application metrics including:
//   - HTTP request metrics for the status surfaces (duration, count)
//   - Business metrics (articles discovered, downloaded, parsed; failures)
//   - Image download and extracted-text size metrics
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via each stage's /metrics endpoint.
//
// Example usage:
//
//	import "genesis-connector/internal/observability/metrics"
//
//	func afterDiscoveryRun(newArticles, duplicates, errs int) {
//	    metrics.RecordDiscoveryOutcomes(newArticles, duplicates, errs)
//	}
package metrics
