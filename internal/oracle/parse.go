package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"EventSync/internal/model"
)

var (
	// ErrLengthMismatch 判定条数与输入条数不一致
	ErrLengthMismatch = errors.New("oracle: decision count does not match subject count")
	// ErrDisabled 未配置 API Key
	ErrDisabled = errors.New("oracle: disabled")
	// ErrUnparseable 响应中找不到可解析的 JSON 数组
	ErrUnparseable = errors.New("oracle: unparseable response")
)

var (
	codeFenceRegex     = regexp.MustCompile("(?s)```(?:json|javascript|js)?\\s*\\n?(.*?)\\n?```")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	lineCommentRegex   = regexp.MustCompile(`(?m)^\s*//.*$`)
)

// CheckDecisions 判定必须与输入逐条对应
func CheckDecisions(decisions []model.Decision, subjects int) error {
	if len(decisions) != subjects {
		return fmt.Errorf("%w: got %d, want %d", ErrLengthMismatch, len(decisions), subjects)
	}
	return nil
}

// ParseDecisions 依次尝试：直接解析、去掉代码块、修正尾逗号与注释、从混合文本中截取数组；
// 也接受 {"decisions": [...]} 包装
func ParseDecisions(text string) ([]model.Decision, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty response", ErrUnparseable)
	}
	candidates := []string{trimmed}
	if m := codeFenceRegex.FindStringSubmatch(trimmed); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	last := candidates[len(candidates)-1]
	cleaned := cleanupJSON(last)
	candidates = append(candidates, cleaned)
	if extracted := extractJSON(cleaned); extracted != "" {
		candidates = append(candidates, extracted)
	}

	for _, c := range candidates {
		if decisions, ok := decode(c); ok {
			return decisions, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnparseable, preview(trimmed, 200))
}

func decode(text string) ([]model.Decision, bool) {
	var list []model.Decision
	if err := json.Unmarshal([]byte(text), &list); err == nil {
		return list, true
	}
	var wrapped struct {
		Decisions []model.Decision `json:"decisions"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil && wrapped.Decisions != nil {
		return wrapped.Decisions, true
	}
	return nil, false
}

func cleanupJSON(text string) string {
	cleaned := lineCommentRegex.ReplaceAllString(text, "")
	cleaned = trailingCommaRegex.ReplaceAllString(cleaned, "$1")
	return strings.TrimSpace(cleaned)
}

// extractJSON 截取首个 [ 到最后一个 ] 之间的内容，其次尝试对象
func extractJSON(text string) string {
	if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start >= 0 && end > start {
		return text[start : end+1]
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		return text[start : end+1]
	}
	return ""
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
