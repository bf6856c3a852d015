package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"EventSync/internal/config"
	"EventSync/internal/interfaces"
	"EventSync/internal/model"
	"EventSync/internal/utils/httpclient"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"
)

// Client 基于 Anthropic Messages API 的语义判定客户端；每次 Judge 恰好一次请求，不自动重试
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	logger    *logrus.Logger
}

// New 按配置创建判定服务；未配置 API Key 时返回 Disabled
func New(cfg *config.OracleConfig, logger *logrus.Logger) interfaces.Oracle {
	if cfg.APIKey == "" {
		logger.Warn("未配置 ANTHROPIC_API_KEY，语义判定已禁用，各阶段按失败策略处理")
		return Disabled{}
	}
	return NewClient(cfg, logger)
}

func NewClient(cfg *config.OracleConfig, logger *logrus.Logger) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(httpclient.NewHTTPClient(httpclient.Options{Proxy: cfg.Proxy}, logger)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
		timeout:   timeout,
		logger:    logger,
	}
}

func (c *Client) Judge(ctx context.Context, kind interfaces.CallKind, subjects, comparisons []model.EventSummary) ([]model.Decision, error) {
	if len(subjects) == 0 {
		return []model.Decision{}, nil
	}
	prompt, err := buildPrompt(kind, subjects, comparisons)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("oracle %s 调用失败: %w", kind, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	c.logger.WithFields(logrus.Fields{
		"kind":          kind,
		"subjects":      len(subjects),
		"comparisons":   len(comparisons),
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
		"duration":      time.Since(start).String(),
	}).Debug("oracle 调用完成")

	decisions, err := ParseDecisions(text.String())
	if err != nil {
		return nil, fmt.Errorf("oracle %s 响应解析失败: %w", kind, err)
	}
	if err := CheckDecisions(decisions, len(subjects)); err != nil {
		return nil, err
	}
	return decisions, nil
}

// Disabled 未配置判定服务时使用，所有调用返回 ErrDisabled
type Disabled struct{}

func (Disabled) Judge(context.Context, interfaces.CallKind, []model.EventSummary, []model.EventSummary) ([]model.Decision, error) {
	return nil, ErrDisabled
}
