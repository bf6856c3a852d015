package httpsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"EventSync/internal/config"
	"EventSync/internal/interfaces"
	"EventSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// batchPath 抽取服务返回最新批次的接口
const batchPath = "/batches/latest"

// Source 从上游抽取服务拉取最新批次；204 表示无新批次
type Source struct {
	name       string
	cfg        *config.SourceConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func New(name string, cfg *config.SourceConfig, logger *logrus.Logger) (interfaces.CandidateSource, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("来源%s未配置 base_url", name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30
	}
	return &Source{
		name:       name,
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(httpclient.Options{Timeout: timeout, Proxy: cfg.Proxy}, logger),
		logger:     logger,
	}, nil
}

func (s *Source) GetName() string { return s.name }

func (s *Source) FetchBatch(ctx context.Context) ([]byte, error) {
	url := strings.TrimRight(s.cfg.BaseURL, "/") + batchPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("构建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.AuthToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求抽取服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("抽取服务返回 %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	s.logger.WithFields(logrus.Fields{"source": s.name, "bytes": len(body)}).Info("已拉取批次")
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
