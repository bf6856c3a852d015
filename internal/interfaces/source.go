package interfaces

import (
	"context"
	"errors"

	"EventSync/internal/config"
	"EventSync/internal/model"

	"github.com/sirupsen/logrus"
)

// ErrUnknownSource 来源未配置或初始化失败
var ErrUnknownSource = errors.New("unknown source")

// CandidateSource 候选事件来源（上游抽取结果），每次调用返回一个批次
type CandidateSource interface {
	GetName() string
	// FetchBatch 拉取原始批次（JSON 数组），无新批次时返回 nil
	FetchBatch(ctx context.Context) ([]byte, error)
}

// SourceFactory 来源工厂函数签名
type SourceFactory func(name string, cfg *config.SourceConfig, logger *logrus.Logger) (CandidateSource, error)

// BatchArchiver 原始批次归档
type BatchArchiver interface {
	Archive(ctx context.Context, runID string, raw []byte) (string, error)
}

// RunRecorder 运行记录落库
type RunRecorder interface {
	SaveRun(ctx context.Context, run *model.PipelineRun) error
}
