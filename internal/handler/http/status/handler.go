// Package status implements the per-stage status HTTP surface: health and
// stats read endpoints plus worker control. One instance serves one stage
// process; all three stages share the same route shape.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"genesis-connector/internal/handler/http/requestid"
	"genesis-connector/internal/handler/http/respond"
	"genesis-connector/internal/infra/worker"
	"genesis-connector/internal/observability/metrics"
	"genesis-connector/internal/observability/tracing"
	"genesis-connector/internal/queue"
)

// QueueStats is the slice of the queue substrate the surface reads.
type QueueStats interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

// BatchFunc triggers one synchronous batch and returns its result for the
// response body.
type BatchFunc func(ctx context.Context) (any, error)

// CleanupFunc triggers stage maintenance with a retention in days.
type CleanupFunc func(ctx context.Context, days int) (any, error)

// Config wires one stage's surface.
type Config struct {
	// Service is the reported service name, e.g. "download-worker".
	Service string

	// Stage is the pipeline stage this process runs.
	Stage string

	// Supervisor is the stage's worker loop (start/stop/running).
	Supervisor *worker.Supervisor

	// Queue provides queue-stats reads. Required.
	Queue QueueStats

	// Checks are the dependency probes behind /health.
	Checks []worker.Check

	// BatchPath is the synchronous-batch route ("/download-batch",
	// "/extract-batch", "/run-discovery"); empty disables it.
	BatchPath string

	// Batch runs one synchronous batch. Required when BatchPath is set.
	Batch BatchFunc

	// Cleanup runs stage maintenance; nil disables POST /cleanup.
	Cleanup CleanupFunc

	// ConfigSnapshot is rendered verbatim into /status.
	ConfigSnapshot map[string]any

	// Logger for request-scope warnings.
	Logger *slog.Logger
}

// Handler serves the status surface for one stage process.
type Handler struct {
	cfg Config

	mu        sync.Mutex
	lastBatch any
}

func NewHandler(cfg Config) *Handler {
	return &Handler{cfg: cfg}
}

// Routes builds the surface's handler with request-id and tracing
// middleware applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.handleLiveness)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /status", h.handleStatus)
	mux.HandleFunc("GET /queue-stats", h.handleQueueStats)
	mux.HandleFunc("POST /start-worker", h.handleStartWorker)
	mux.HandleFunc("POST /stop-worker", h.handleStopWorker)
	if h.cfg.BatchPath != "" && h.cfg.Batch != nil {
		mux.HandleFunc("POST "+h.cfg.BatchPath, h.handleBatch)
	}
	if h.cfg.Cleanup != nil {
		mux.HandleFunc("POST /cleanup", h.handleCleanup)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	return requestid.Middleware(tracing.Middleware(metrics.Middleware(mux)))
}

func (h *Handler) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{
		"service": h.cfg.Service,
		"status":  "ok",
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	details, healthy := worker.RunChecks(r.Context(), h.cfg.Checks)

	statusText := "healthy"
	code := http.StatusOK
	if !healthy {
		statusText = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	respond.JSON(w, code, map[string]any{
		"service":   h.cfg.Service,
		"status":    statusText,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"details":   details,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cfg.Queue.Stats(r.Context())
	if err != nil {
		respond.SafeErrorV2(w, http.StatusServiceUnavailable, err)
		return
	}

	h.mu.Lock()
	lastBatch := h.lastBatch
	h.mu.Unlock()

	respond.JSON(w, http.StatusOK, map[string]any{
		"service":        h.cfg.Service,
		"stage":          h.cfg.Stage,
		"worker_running": h.cfg.Supervisor.Running(),
		"queue_sizes":    stats.QueueSizes,
		"last_batch":     lastBatch,
		"config":         h.cfg.ConfigSnapshot,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cfg.Queue.Stats(r.Context())
	if err != nil {
		respond.SafeErrorV2(w, http.StatusServiceUnavailable, err)
		return
	}
	respond.JSON(w, http.StatusOK, stats)
}

func (h *Handler) handleStartWorker(w http.ResponseWriter, r *http.Request) {
	// The loop must outlive this request; it is bound to the process,
	// not the caller's connection.
	h.cfg.Supervisor.Start(context.WithoutCancel(r.Context()))
	respond.JSON(w, http.StatusOK, map[string]any{
		"worker_running": h.cfg.Supervisor.Running(),
	})
}

func (h *Handler) handleStopWorker(w http.ResponseWriter, r *http.Request) {
	h.cfg.Supervisor.Stop()
	respond.JSON(w, http.StatusOK, map[string]any{
		"worker_running": h.cfg.Supervisor.Running(),
	})
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	result, err := h.cfg.Batch(r.Context())
	if err != nil {
		if h.cfg.Logger != nil {
			h.cfg.Logger.Error("synchronous batch failed",
				slog.String("stage", h.cfg.Stage),
				slog.Any("error", err))
		}
		respond.SafeErrorV2(w, http.StatusInternalServerError, err)
		return
	}

	h.mu.Lock()
	h.lastBatch = result
	h.mu.Unlock()

	respond.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Days int `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.Error(w, http.StatusBadRequest, errors.New("invalid cleanup request body"))
		return
	}
	if body.Days < 1 || body.Days > 365 {
		respond.Error(w, http.StatusBadRequest, errors.New("days must be between 1 and 365"))
		return
	}

	result, err := h.cfg.Cleanup(r.Context(), body.Days)
	if err != nil {
		if h.cfg.Logger != nil {
			h.cfg.Logger.Error("cleanup failed",
				slog.String("stage", h.cfg.Stage),
				slog.Any("error", err))
		}
		respond.SafeErrorV2(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, result)
}

// RecordBatch lets the supervisor loop publish its latest batch result so
// /status can surface the last-batch outcome regardless of trigger.
func (h *Handler) RecordBatch(result any) {
	h.mu.Lock()
	h.lastBatch = result
	h.mu.Unlock()
}
