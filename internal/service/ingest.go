package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"EventSync/internal/interfaces"
	"EventSync/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrInvalidBatch 批次不是合法的候选事件 JSON
var ErrInvalidBatch = errors.New("invalid batch")

// SourceLookup 按名称获取候选事件来源
type SourceLookup interface {
	Get(name string) (interfaces.CandidateSource, error)
	Names() []string
}

// IngestService 拉取/接收原始批次，归档后交给流水线
type IngestService struct {
	pipeline *Pipeline
	sources  SourceLookup
	archiver interfaces.BatchArchiver
	logger   *logrus.Logger
}

func NewIngestService(pipeline *Pipeline, sources SourceLookup, archiver interfaces.BatchArchiver, logger *logrus.Logger) *IngestService {
	return &IngestService{pipeline: pipeline, sources: sources, archiver: archiver, logger: logger}
}

// DecodeBatch 解析抽取端批次：JSON 数组，或 {"events": [...]} 包装
func DecodeBatch(raw []byte) ([]model.Candidate, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []model.Candidate{}, nil
	}
	if raw[0] == '{' {
		var wrapped struct {
			Events []model.Candidate `json:"events"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
		}
		if wrapped.Events == nil {
			return []model.Candidate{}, nil
		}
		return wrapped.Events, nil
	}
	var batch []model.Candidate
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}
	if batch == nil {
		batch = []model.Candidate{}
	}
	return batch, nil
}

// IngestBatch 解析并归档原始批次，然后执行完整流水线
func (s *IngestService) IngestBatch(ctx context.Context, trigger string, raw []byte) (*RunReport, error) {
	batch, err := DecodeBatch(raw)
	if err != nil {
		return nil, err
	}
	s.archive(ctx, trigger, raw)
	return s.pipeline.Run(ctx, trigger, batch)
}

// SyncSource 从指定来源拉取批次；无新批次时只做维护
func (s *IngestService) SyncSource(ctx context.Context, name string) (*RunReport, error) {
	src, err := s.sources.Get(name)
	if err != nil {
		return nil, err
	}
	raw, err := src.FetchBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("来源%s拉取失败: %w", name, err)
	}
	if raw == nil {
		s.logger.WithField("source", name).Info("来源无新批次，仅执行维护")
		return s.pipeline.RunMaintenance(ctx, name)
	}
	return s.IngestBatch(ctx, name, raw)
}

// SyncAll 依次同步所有已配置来源（enabled 为空时同步全部）；单个来源失败不影响其他来源
func (s *IngestService) SyncAll(ctx context.Context, enabled []string) []*RunReport {
	names := enabled
	if len(names) == 0 {
		names = s.sources.Names()
	}
	var reports []*RunReport
	for _, name := range names {
		report, err := s.SyncSource(ctx, name)
		if err != nil {
			s.logger.WithError(err).WithField("source", name).Error("来源同步失败")
		}
		if report != nil {
			reports = append(reports, report)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return reports
}

func (s *IngestService) archive(ctx context.Context, trigger string, raw []byte) {
	if s.archiver == nil {
		return
	}
	key, err := s.archiver.Archive(ctx, uuid.NewString(), raw)
	if err != nil {
		s.logger.WithError(err).WithField("trigger", trigger).Warn("原始批次归档失败，继续处理")
		return
	}
	if key != "" {
		s.logger.WithFields(logrus.Fields{"trigger": trigger, "key": key}).Debug("原始批次已归档")
	}
}
