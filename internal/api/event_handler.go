package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"EventSync/internal/calendar"
	"EventSync/internal/repository"
	"EventSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EventHandler 提供给前端的事件目录查询接口
type EventHandler struct {
	catalog *service.CatalogService
	loc     *time.Location
	logger  *logrus.Logger
}

// NewEventHandler 创建 EventHandler；loc 用于日历中带具体时刻的事件
func NewEventHandler(db *gorm.DB, loc *time.Location, logger *logrus.Logger) *EventHandler {
	return &EventHandler{
		catalog: service.NewCatalogService(repository.NewEventRepository(db), logger),
		loc:     loc,
		logger:  logger,
	}
}

// ListEvents 主事件列表（附子事件）
// GET /api/events?archived=false&city=Berlin&page=1&page_size=20
func (h *EventHandler) ListEvents(c *gin.Context) {
	var filter repository.CatalogFilter
	if v := c.Query("archived"); v != "" {
		archived, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "archived must be true or false"})
			return
		}
		filter.Archived = &archived
	}
	filter.City = c.Query("city")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.catalog.ListEvents(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		h.logger.WithError(err).Error("ListEvents failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetEvent 主事件详情（含全部子事件）
// GET /api/events/:id
func (h *EventHandler) GetEvent(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be numeric"})
		return
	}
	result, err := h.catalog.GetEvent(c.Request.Context(), id)
	if errors.Is(err, service.ErrEventNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("GetEvent failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Calendar 未归档目录导出为 iCalendar
// GET /api/events/calendar.ics
func (h *EventHandler) Calendar(c *gin.Context) {
	clusters, err := h.catalog.ActiveClusters(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Calendar failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	entries := make([]calendar.Entry, len(clusters))
	for i, cl := range clusters {
		entries[i] = calendar.Entry{Main: cl.MainEvent, Subs: cl.SubEvents}
	}
	var buf bytes.Buffer
	n, err := calendar.Render(&buf, "EventSync", entries, h.loc)
	if err != nil {
		h.logger.WithError(err).Error("Calendar render failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.logger.WithField("events", n).Debug("日历导出完成")
	c.Header("Content-Disposition", `attachment; filename="events.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}
