package service

import (
	"context"

	"EventSync/internal/interfaces"
	"EventSync/internal/model"
	"EventSync/internal/oracle"
)

// 阶段名，用于日志 phase 字段与指标标签
const (
	PhaseArchive      = "archive"
	PhaseOrphans      = "orphans"
	PhaseIntraDedup   = "intra_dedup"
	PhaseCrossDedup   = "cross_dedup"
	PhaseFutureFilter = "future_filter"
	PhaseNewMains     = "new_mains"
	PhaseNewSubs      = "new_subs"
	PhaseReclassify   = "reclassify"
	PhaseCorrections  = "corrections"
	PhaseLink         = "link"
)

// judge 单次批量调用并校验判定条数
func judge(ctx context.Context, o interfaces.Oracle, kind interfaces.CallKind, subjects, comparisons []model.EventSummary) ([]model.Decision, error) {
	decisions, err := o.Judge(ctx, kind, subjects, comparisons)
	if err != nil {
		return nil, err
	}
	if err := oracle.CheckDecisions(decisions, len(subjects)); err != nil {
		return nil, err
	}
	return decisions, nil
}

// idSet 保序去重的 id 集合
type idSet struct {
	order []uint64
	seen  map[uint64]struct{}
}

func newIDSet() *idSet { return &idSet{seen: make(map[uint64]struct{})} }

func (s *idSet) Add(id uint64) bool {
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

func (s *idSet) Has(id uint64) bool {
	_, ok := s.seen[id]
	return ok
}

func (s *idSet) IDs() []uint64 { return s.order }

func (s *idSet) Len() int { return len(s.order) }

// parentField 日志中展示可空父事件 id
func parentField(id *uint64) any {
	if id == nil {
		return nil
	}
	return *id
}
