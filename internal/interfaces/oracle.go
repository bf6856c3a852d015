package interfaces

import (
	"context"

	"EventSync/internal/model"
)

// CallKind 语义判定调用点，决定提示词与返回结构
type CallKind string

const (
	// CallGroupDuplicates 表内去重：{duplicate_group}
	CallGroupDuplicates CallKind = "group_duplicates"
	// CallCrossTable 主事件 vs 其他父事件下的子事件：{duplicate_of_sub_index}
	CallCrossTable CallKind = "cross_table"
	// CallMatchExisting 主候选 vs 已有主/子事件：{is_new, matching_existing_id}
	CallMatchExisting CallKind = "match_existing"
	// CallCheckNew 子候选 vs 已有子事件：{is_new}
	CallCheckNew CallKind = "check_new"
	// CallReclassifySub 子候选 vs 已有主事件（纠正误分类）：{is_new, matches_main_id, new_temp_key}
	CallReclassifySub CallKind = "reclassify_sub"
)

// Oracle 外部语义判定服务：一次批量同步调用，返回与 subjects 等长、按位置对应的判定
type Oracle interface {
	Judge(ctx context.Context, kind CallKind, subjects, comparisons []model.EventSummary) ([]model.Decision, error)
}

// OracleFunc 便于测试与组合的函数适配
type OracleFunc func(ctx context.Context, kind CallKind, subjects, comparisons []model.EventSummary) ([]model.Decision, error)

func (f OracleFunc) Judge(ctx context.Context, kind CallKind, subjects, comparisons []model.EventSummary) ([]model.Decision, error) {
	return f(ctx, kind, subjects, comparisons)
}
