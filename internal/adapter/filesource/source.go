package filesource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"EventSync/internal/config"
	"EventSync/internal/interfaces"

	"github.com/sirupsen/logrus"
)

// Source 读取抽取端落盘的批次文件；读取后重命名为 *.done，避免重复入库
type Source struct {
	name   string
	path   string
	logger *logrus.Logger
}

func New(name string, cfg *config.SourceConfig, logger *logrus.Logger) (interfaces.CandidateSource, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("来源%s未配置 path", name)
	}
	return &Source{name: name, path: cfg.Path, logger: logger}, nil
}

func (s *Source) GetName() string { return s.name }

func (s *Source) FetchBatch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.WithFields(logrus.Fields{"source": s.name, "path": s.path}).Debug("无新批次文件")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取批次文件失败: %w", err)
	}
	done := fmt.Sprintf("%s.%s.done", s.path, time.Now().UTC().Format("20060102T150405"))
	if err := os.Rename(s.path, done); err != nil {
		return nil, fmt.Errorf("标记批次文件失败: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"source": s.name, "path": done, "bytes": len(raw)}).Info("已读取批次文件")
	return raw, nil
}
