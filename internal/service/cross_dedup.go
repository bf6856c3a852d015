package service

import (
	"context"
	"fmt"

	"EventSync/internal/interfaces"
	"EventSync/internal/model"
	"EventSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// CrossTableDeduper 删除与其他父事件下某个子事件重复的主事件（被错误提升为顶层的事件）
type CrossTableDeduper struct {
	repo      repository.EventRepository
	oracle    interfaces.Oracle
	descLimit int
	metrics   *Metrics
	logger    *logrus.Logger
}

func NewCrossTableDeduper(repo repository.EventRepository, oracle interfaces.Oracle, descLimit int, metrics *Metrics, logger *logrus.Logger) *CrossTableDeduper {
	return &CrossTableDeduper{repo: repo, oracle: oracle, descLimit: descLimit, metrics: metrics, logger: logger}
}

// Run 返回直接删除的主事件数与级联删除的子事件数；判定失败时不删除
func (d *CrossTableDeduper) Run(ctx context.Context) (deleted, cascaded int64, err error) {
	log := d.logger.WithField("phase", PhaseCrossDedup)

	mains, err := d.repo.ListMainEvents(ctx, repository.MainFilter{ActiveOnly: true})
	if err != nil {
		return 0, 0, fmt.Errorf("拉取主事件失败: %w", err)
	}
	// 无父子事件不参与比较：它们在同一次维护中被孤儿清理删除，若据此删主事件会连同事件一起丢失
	subs, err := d.repo.ListSubEvents(ctx, repository.SubFilter{ActiveOnly: true, WithParentOnly: true})
	if err != nil {
		return 0, 0, fmt.Errorf("拉取子事件失败: %w", err)
	}
	if len(mains) == 0 || len(subs) == 0 {
		return 0, 0, nil
	}

	index := make(map[uint64]int, len(mains))
	subjects := make([]model.EventSummary, len(mains))
	for i, m := range mains {
		index[m.ID] = i
		subjects[i] = m.Summary(d.descLimit)
	}
	comparisons := make([]model.EventSummary, len(subs))
	for j, s := range subs {
		comparisons[j] = s.Summary(d.descLimit)
		if i, ok := index[*s.MainEventID]; ok {
			skip := i
			comparisons[j].SkipMainIndex = &skip
		}
	}

	decisions, err := judge(ctx, d.oracle, interfaces.CallCrossTable, subjects, comparisons)
	if err != nil {
		d.metrics.fallback(PhaseCrossDedup)
		log.WithError(err).Warn("语义判定失败，跳过跨表去重")
		return 0, 0, nil
	}

	targets := newIDSet()
	for i, dec := range decisions {
		if dec.DuplicateOfSubIndex == nil {
			continue
		}
		j := *dec.DuplicateOfSubIndex
		m := mains[i]
		entry := log.WithFields(logrus.Fields{"id": m.ID, "title": m.Title, "sub_index": j})
		if j < 0 || j >= len(subs) {
			entry.Warn("子事件下标越界，忽略")
			continue
		}
		s := subs[j]
		if *s.MainEventID == m.ID {
			entry.WithField("sub_id", s.ID).Warn("判定指向自身子事件，忽略")
			continue
		}
		if targets.Add(m.ID) {
			entry.WithFields(logrus.Fields{"sub_id": s.ID, "sub_title": s.Title}).Info("主事件与其他父事件下的子事件重复，删除主事件")
		}
	}
	if targets.Len() == 0 {
		return 0, 0, nil
	}

	err = d.repo.Transaction(ctx, func(tx repository.EventRepository) error {
		deleted, cascaded, err = tx.DeleteMainEvents(ctx, targets.IDs())
		return err
	})
	if err != nil {
		return 0, 0, fmt.Errorf("删除跨表重复主事件失败: %w", err)
	}
	return deleted, cascaded, nil
}
