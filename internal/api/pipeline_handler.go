package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"EventSync/internal/interfaces"
	"EventSync/internal/repository"
	"EventSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// maxBatchBytes 单个批次请求体上限
const maxBatchBytes = 32 << 20

// PipelineHandler 触发流水线运行、查询运行记录
type PipelineHandler struct {
	ingest   *service.IngestService
	pipeline *service.Pipeline
	runs     repository.RunRepository
	logger   *logrus.Logger
}

// NewPipelineHandler 创建 PipelineHandler；pipeline 需全局唯一
func NewPipelineHandler(ingest *service.IngestService, pipeline *service.Pipeline, runs repository.RunRepository, logger *logrus.Logger) *PipelineHandler {
	return &PipelineHandler{
		ingest:   ingest,
		pipeline: pipeline,
		runs:     runs,
		logger:   logger,
	}
}

// IngestBatch 提交一个候选事件批次并执行完整流水线
// POST /pipeline/batches
func (h *PipelineHandler) IngestBatch(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBatchBytes))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}
	report, err := h.ingest.IngestBatch(c.Request.Context(), service.TriggerAPI, raw)
	if errors.Is(err, service.ErrInvalidBatch) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, "IngestBatch", report, err)
}

// SyncSource 从指定来源拉取批次并执行流水线
// POST /pipeline/sources/:source
func (h *PipelineHandler) SyncSource(c *gin.Context) {
	name := c.Param("source")
	report, err := h.ingest.SyncSource(c.Request.Context(), name)
	if errors.Is(err, interfaces.ErrUnknownSource) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, "SyncSource", report, err)
}

// RunMaintenance 仅执行维护阶段
// POST /pipeline/maintenance
func (h *PipelineHandler) RunMaintenance(c *gin.Context) {
	report, err := h.pipeline.RunMaintenance(c.Request.Context(), service.TriggerAPI)
	h.respond(c, "RunMaintenance", report, err)
}

// ListRuns 最近的运行记录
// GET /api/pipeline/runs?limit=20
func (h *PipelineHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := h.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("ListRuns failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": runs})
}

// respond 阶段错误不影响 200；仅运行本身失败（如请求被取消）返回 500
func (h *PipelineHandler) respond(c *gin.Context, op string, report *service.RunReport, err error) {
	if err != nil {
		h.logger.WithError(err).Errorf("%s failed", op)
		body := gin.H{"error": err.Error()}
		if report != nil {
			body["report"] = report
		}
		c.JSON(http.StatusInternalServerError, body)
		return
	}
	c.JSON(http.StatusOK, report)
}
