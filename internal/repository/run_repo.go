package repository

import (
	"context"

	"EventSync/internal/model"

	"gorm.io/gorm"
)

// RunRepository 流水线运行记录
type RunRepository interface {
	SaveRun(ctx context.Context, run *model.PipelineRun) error
	// ListRuns 最近的运行记录（按开始时间倒序）
	ListRuns(ctx context.Context, limit int) ([]*model.PipelineRun, error)
}

type runRepository struct {
	db *gorm.DB
}

// NewRunRepository 创建运行记录仓储
func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) SaveRun(ctx context.Context, run *model.PipelineRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *runRepository) ListRuns(ctx context.Context, limit int) ([]*model.PipelineRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	var runs []*model.PipelineRun
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
