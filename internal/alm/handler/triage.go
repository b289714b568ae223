// Package handler provides HTTP handlers for the log triage service.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/biz"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/metrics"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/store"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/model"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/pool"
)

// triageTimeout 单个分诊批次的整体超时。
const triageTimeout = 5 * time.Minute

// TriageHandler handles triage HTTP requests.
type TriageHandler struct {
	service   *biz.TriageService
	registry  *biz.ModelRegistry
	knowledge store.KnowledgeStore
	workers   *pool.Pool
}

// NewTriageHandler creates a new TriageHandler.
func NewTriageHandler(service *biz.TriageService, registry *biz.ModelRegistry, knowledge store.KnowledgeStore, workers *pool.Pool) *TriageHandler {
	return &TriageHandler{
		service:   service,
		registry:  registry,
		knowledge: knowledge,
		workers:   workers,
	}
}

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// TriageRequest represents a batch triage request.
type TriageRequest struct {
	Entries []model.LogEntry `json:"entries" binding:"required"`
}

// Triage runs the full triage pipeline for a batch of log entries.
func (h *TriageHandler) Triage(c *gin.Context) {
	var req TriageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), triageTimeout)
	defer cancel()

	results, err := h.service.Triage(ctx, req.Entries)
	if err != nil {
		h.fail(c, ctx, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: results})
}

// AlertRequest carries a Grafana webhook alert fired by a Loki log rule.
// Label keys follow the Loki stream convention (detected_level, filename,
// job, service_name); unknown keys are ignored.
type AlertRequest struct {
	LogTimestamp time.Time         `json:"logTimestamp" binding:"required"`
	LogMessage   string            `json:"logMessage" binding:"required"`
	LogSummary   string            `json:"logSummary,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
}

// entry converts the alert payload into the pipeline's log entry form.
func (r *AlertRequest) entry() model.LogEntry {
	return model.LogEntry{
		Message:   r.LogMessage,
		Summary:   r.LogSummary,
		Timestamp: r.LogTimestamp.UnixMilli(),
		Labels: model.LogLabels{
			DetectedLevel: model.LogLevel(r.Labels["detected_level"]),
			Filename:      r.Labels["filename"],
			Job:           r.Labels["job"],
			ServiceName:   r.Labels["service_name"],
		},
	}
}

// Alert triages the single log entry behind a fired alert.
func (h *TriageHandler) Alert(c *gin.Context) {
	var req AlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), triageTimeout)
	defer cancel()

	results, err := h.service.Triage(ctx, []model.LogEntry{req.entry()})
	if err != nil {
		h.fail(c, ctx, err)
		return
	}
	if len(results) == 0 {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: "no triage result produced"})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: results[0]})
}

// FitRequest represents a cluster model fit request.
type FitRequest struct {
	Entries []model.LogEntry `json:"entries" binding:"required"`
}

// FitResponse 拟合结果摘要，不回传完整质心矩阵。
type FitResponse struct {
	Version          string  `json:"version"`
	Clusters         int     `json:"clusters"`
	MergeThreshold   float64 `json:"merge_threshold"`
	NoveltyThreshold float64 `json:"novelty_threshold"`
}

// Fit refits the clustering model from a batch of historical entries
// and atomically swaps it in.
func (h *TriageHandler) Fit(c *gin.Context) {
	var req FitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), triageTimeout)
	defer cancel()

	cm, err := h.service.Fit(ctx, req.Entries)
	if err != nil {
		h.fail(c, ctx, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "model fitted", Data: FitResponse{
		Version:          cm.Version,
		Clusters:         len(cm.Centroids),
		MergeThreshold:   cm.MergeThreshold,
		NoveltyThreshold: cm.NoveltyThreshold,
	}})
}

// ModelInfo describes the active clustering model.
type ModelInfo struct {
	Version          string  `json:"version"`
	Clusters         int     `json:"clusters"`
	NoveltyThreshold float64 `json:"novelty_threshold"`
	Seed             int64   `json:"seed"`
}

// Model returns the active clustering model, or 404 when none has been
// fitted or loaded yet.
func (h *TriageHandler) Model(c *gin.Context) {
	cm := h.registry.Current()
	if cm == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: 404, Message: "no clustering model loaded"})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: ModelInfo{
		Version:          cm.Version,
		Clusters:         len(cm.Centroids),
		NoveltyThreshold: cm.NoveltyThreshold,
		Seed:             cm.Seed,
	}})
}

// StatsResponse 运行期统计。
type StatsResponse struct {
	Triage metrics.Snapshot `json:"triage"`
	Pool   pool.Stats       `json:"pool"`
}

// Stats returns triage counters and worker pool statistics.
func (h *TriageHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: StatsResponse{
		Triage: metrics.Get().GetSnapshot(),
		Pool:   h.workers.Stats(),
	}})
}

// IndexKnowledgeRequest represents a knowledge base index request.
type IndexKnowledgeRequest struct {
	Documents []store.Document `json:"documents" binding:"required"`
}

// IndexKnowledge indexes remediation documents into the knowledge base.
func (h *TriageHandler) IndexKnowledge(c *gin.Context) {
	var req IndexKnowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}
	if len(req.Documents) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "documents cannot be empty"})
		return
	}

	if err := h.knowledge.IndexKnowledge(c.Request.Context(), req.Documents); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "documents indexed successfully"})
}

// fail 把业务错误翻译为 HTTP 状态。
func (h *TriageHandler) fail(c *gin.Context, ctx context.Context, err error) {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		c.JSON(http.StatusRequestTimeout, ErrorResponse{
			Code:    408,
			Message: "triage timeout: the batch took too long to process",
		})
	case errors.Is(err, biz.ErrMalformedRequest), errors.Is(err, biz.ErrInsufficientData):
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
	}
}
