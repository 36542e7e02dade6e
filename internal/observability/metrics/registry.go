// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track status-surface request patterns and performance
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Business metrics track pipeline throughput per stage
var (
	// ArticlesDiscoveredTotal counts discovery outcomes (new/duplicate/error)
	ArticlesDiscoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "articles_discovered_total",
			Help: "Total articles seen by discovery, by outcome",
		},
		[]string{"outcome"},
	)

	// ArticlesDownloadedTotal counts completed HTML downloads
	ArticlesDownloadedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "articles_downloaded_total",
			Help: "Total articles whose HTML download completed",
		},
	)

	// ArticlesParsedTotal counts completed text extractions
	ArticlesParsedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "articles_parsed_total",
			Help: "Total articles whose text extraction completed",
		},
	)

	// PipelineFailuresTotal counts terminal per-task failures by stage and
	// error kind
	PipelineFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_failures_total",
			Help: "Total terminal task failures by stage and error kind",
		},
		[]string{"stage", "kind"},
	)

	// ImagesDownloadedTotal counts inline image fetches by result
	ImagesDownloadedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "images_downloaded_total",
			Help: "Total inline image downloads by result",
		},
		[]string{"result"},
	)

	// ExtractedTextBytes observes extracted text sizes
	ExtractedTextBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "extracted_text_bytes",
			Help:    "Size distribution of extracted article text",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
	)
)
