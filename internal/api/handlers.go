// Package api exposes the analyzer's HTTP surface: batch ingestion, health
// and readiness probes, and operational introspection endpoints.
package api

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domain"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
)

const readyCheckTimeout = 3 * time.Second

// Ingestor accepts normalized page batches. The coordinator implements it.
type Ingestor interface {
	Ingest(ctx context.Context, batch *domain.PageBatch) *domain.TaskSummary
	TaskSnapshot(taskID string) *domain.TaskSummary
	InflightCount() int
}

// ReadyCheck is one named dependency probe for the readiness endpoint.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// DLQInspector reports dead-letter queue depths.
type DLQInspector interface {
	Depths(ctx context.Context) (hits, screenshots int64, err error)
}

// QueueStats reports evidence queue depths.
type QueueStats interface {
	QueueDepths() (hits, screenshots int)
}

// Handler holds the HTTP handlers and their collaborators.
type Handler struct {
	ingest         Ingestor
	checks         []ReadyCheck
	dlq            DLQInspector
	queues         QueueStats
	metricsHandler http.Handler
	maxBodyBytes   int64
	serviceName    string
	serviceVersion string
	logger         logger.Logger
}

// NewHandler wires the HTTP handlers. dlq and queues may be nil; the
// corresponding endpoints then report empty depths.
func NewHandler(
	ingest Ingestor,
	checks []ReadyCheck,
	dlq DLQInspector,
	queues QueueStats,
	metricsHandler http.Handler,
	maxBodyBytes int64,
	serviceName, serviceVersion string,
	log logger.Logger,
) *Handler {
	return &Handler{
		ingest:         ingest,
		checks:         checks,
		dlq:            dlq,
		queues:         queues,
		metricsHandler: metricsHandler,
		maxBodyBytes:   maxBodyBytes,
		serviceName:    serviceName,
		serviceVersion: serviceVersion,
		logger:         log,
	}
}

// Analyze handles POST /analyze: decode, normalize, ingest, answer with the
// task summary.
func (h *Handler) Analyze(c *gin.Context) {
	req, err := h.decodeAnalyzeRequest(c)
	if err != nil {
		h.logger.Warn("rejected analyze payload", logger.Error(err))
		c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	batch := req.toBatch()
	if batch.MainURL == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "main_url is required"})
		return
	}

	summary := h.ingest.Ingest(c.Request.Context(), batch)
	if summary == nil {
		h.logger.Error("ingest returned no summary",
			logger.String("task_id", batch.TaskID))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// decodeAnalyzeRequest reads the body, transparently inflating gzip, with
// the configured size limit applied to the compressed bytes.
func (h *Handler) decodeAnalyzeRequest(c *gin.Context) (*analyzeRequest, error) {
	var body = c.Request.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, h.maxBodyBytes)
	}

	reader := io.Reader(body)
	if c.GetHeader("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}

	var req analyzeRequest
	if err := json.NewDecoder(reader).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Health handles GET /health: liveness, always 200 once serving.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Service: h.serviceName,
		Version: h.serviceVersion,
	})
}

// Ready handles GET /health/ready: pings each dependency with a short
// timeout and answers 503 until all pass.
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyCheckTimeout)
	defer cancel()

	resp := readyResponse{Status: "ready", Checks: make(map[string]string, len(h.checks))}
	code := http.StatusOK
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			resp.Checks[check.Name] = err.Error()
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[check.Name] = "ok"
	}
	c.JSON(code, resp)
}

// DLQHealth handles GET /health/dlq.
func (h *Handler) DLQHealth(c *gin.Context) {
	if h.dlq == nil {
		c.JSON(http.StatusOK, dlqResponse{})
		return
	}
	hits, screenshots, err := h.dlq.Depths(c.Request.Context())
	if err != nil {
		h.logger.Warn("dlq depth probe failed", logger.Error(err))
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "dead-letter queue unavailable"})
		return
	}
	c.JSON(http.StatusOK, dlqResponse{Hits: hits, Screenshots: screenshots})
}

// Stats handles GET /health/stats.
func (h *Handler) Stats(c *gin.Context) {
	resp := statsResponse{InflightTasks: h.ingest.InflightCount()}
	if h.queues != nil {
		resp.HitQueueDepth, resp.ScreenshotQueueDepth = h.queues.QueueDepths()
	}
	if h.dlq != nil {
		if hits, screenshots, err := h.dlq.Depths(c.Request.Context()); err == nil {
			resp.DLQHits = hits
			resp.DLQScreenshots = screenshots
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GetTask handles GET /tasks/:task_id: the in-flight snapshot, or 404 once
// the task has completed and its record moved to the database.
func (h *Handler) GetTask(c *gin.Context) {
	taskID := c.Param("task_id")
	summary := h.ingest.TaskSnapshot(taskID)
	if summary == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Metrics handles GET /metrics.
func (h *Handler) Metrics(c *gin.Context) {
	if h.metricsHandler == nil {
		c.Status(http.StatusNotFound)
		return
	}
	h.metricsHandler.ServeHTTP(c.Writer, c.Request)
}
