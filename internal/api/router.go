package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 注册流水线触发、目录查询与监控路由
func RegisterRoutes(r *gin.Engine, pipeline *PipelineHandler, events *EventHandler) {
	// 流水线触发
	r.POST("/pipeline/batches", pipeline.IngestBatch)
	r.POST("/pipeline/sources/:source", pipeline.SyncSource)
	r.POST("/pipeline/maintenance", pipeline.RunMaintenance)
	r.GET("/api/pipeline/runs", pipeline.ListRuns)

	// 事件目录（给前端页面用）
	r.GET("/api/events", events.ListEvents)
	r.GET("/api/events/calendar.ics", events.Calendar)
	r.GET("/api/events/:id", events.GetEvent)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
