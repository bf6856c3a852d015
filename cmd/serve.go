package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"EventSync/internal/api"
	"EventSync/internal/service"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务与定时同步（默认）",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	// 配置Gin运行模式（从配置读取：debug/release）
	gin.SetMode(a.cfg.Server.Mode)
	r := gin.Default()
	// 注册ppof 方便调试和监测性能问题
	pprof.Register(r)
	a.logger.Infof("Gin运行模式: %s", a.cfg.Server.Mode)

	api.RegisterRoutes(r,
		api.NewPipelineHandler(a.ingest, a.pipeline, a.runs, a.logger),
		api.NewEventHandler(a.db, a.cfg.Pipeline.Location(), a.logger),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		// 一次运行包含多次语义判定调用，写超时放宽
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	scheduler := cron.New(cron.WithLocation(a.cfg.Pipeline.Location()))
	if a.cfg.Sync.Cron != "" {
		_, err := scheduler.AddFunc(a.cfg.Sync.Cron, func() {
			a.logger.Info("定时同步开始")
			reports := a.ingest.SyncAll(ctx, a.cfg.Sync.EnabledSources)
			if len(reports) == 0 {
				// 未配置来源时仍执行维护
				if _, err := a.pipeline.RunMaintenance(ctx, service.TriggerCron); err != nil {
					a.logger.WithError(err).Error("定时维护失败")
				}
			}
			a.logger.WithField("runs", len(reports)).Info("定时同步完成")
		})
		if err != nil {
			return fmt.Errorf("解析 sync.cron 失败: %w", err)
		}
		a.logger.Infof("定时同步已启用: %s", a.cfg.Sync.Cron)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Infof("服务启动成功，端口：%d", a.cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("启动服务失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		// 等待正在执行的定时任务结束
		<-scheduler.Stop().Done()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("收到退出信号，正在关闭服务…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
