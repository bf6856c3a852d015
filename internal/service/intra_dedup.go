package service

import (
	"context"
	"fmt"

	"EventSync/internal/interfaces"
	"EventSync/internal/model"
	"EventSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// IntraResult 表内去重结果；Cascaded 为删除主事件时级联删除的子事件数
type IntraResult struct {
	MainsDeleted int64
	SubsDeleted  int64
	Cascaded     int64
}

// IntraTableDeduper 单表语义去重：同组保留 id 最小的一行，其余删除
type IntraTableDeduper struct {
	repo      repository.EventRepository
	oracle    interfaces.Oracle
	descLimit int
	metrics   *Metrics
	logger    *logrus.Logger
}

func NewIntraTableDeduper(repo repository.EventRepository, oracle interfaces.Oracle, descLimit int, metrics *Metrics, logger *logrus.Logger) *IntraTableDeduper {
	return &IntraTableDeduper{repo: repo, oracle: oracle, descLimit: descLimit, metrics: metrics, logger: logger}
}

// Run 先主表后子表；判定失败或条数不符时该表不删除任何行
func (d *IntraTableDeduper) Run(ctx context.Context) (IntraResult, error) {
	var res IntraResult
	log := d.logger.WithField("phase", PhaseIntraDedup)

	mains, err := d.repo.ListMainEvents(ctx, repository.MainFilter{ActiveOnly: true})
	if err != nil {
		return res, fmt.Errorf("拉取主事件失败: %w", err)
	}
	subjects := make([]model.EventSummary, len(mains))
	titles := make([]string, len(mains))
	ids := make([]uint64, len(mains))
	for i, m := range mains {
		subjects[i] = m.Summary(d.descLimit)
		titles[i], ids[i] = m.Title, m.ID
	}
	if drop := d.duplicates(ctx, log.WithField("table", "main_events"), subjects, ids, titles); len(drop) > 0 {
		err = d.repo.Transaction(ctx, func(tx repository.EventRepository) error {
			res.MainsDeleted, res.Cascaded, err = tx.DeleteMainEvents(ctx, drop)
			return err
		})
		if err != nil {
			return res, fmt.Errorf("删除重复主事件失败: %w", err)
		}
	}

	// 主表删除可能已级联删除部分子事件，重新拉取
	subs, err := d.repo.ListSubEvents(ctx, repository.SubFilter{ActiveOnly: true})
	if err != nil {
		return res, fmt.Errorf("拉取子事件失败: %w", err)
	}
	subjects = make([]model.EventSummary, len(subs))
	titles = make([]string, len(subs))
	ids = make([]uint64, len(subs))
	for i, s := range subs {
		subjects[i] = s.Summary(d.descLimit)
		titles[i], ids[i] = s.Title, s.ID
	}
	if drop := d.duplicates(ctx, log.WithField("table", "sub_events"), subjects, ids, titles); len(drop) > 0 {
		err = d.repo.Transaction(ctx, func(tx repository.EventRepository) error {
			res.SubsDeleted, err = tx.DeleteSubEvents(ctx, drop)
			return err
		})
		if err != nil {
			return res, fmt.Errorf("删除重复子事件失败: %w", err)
		}
	}

	if res.MainsDeleted+res.SubsDeleted > 0 {
		log.WithFields(logrus.Fields{
			"mains_deleted": res.MainsDeleted,
			"subs_deleted":  res.SubsDeleted,
			"cascaded":      res.Cascaded,
		}).Info("表内去重完成")
	}
	return res, nil
}

// duplicates 返回应删除的 id；rows 已按 id 升序
func (d *IntraTableDeduper) duplicates(ctx context.Context, log *logrus.Entry, subjects []model.EventSummary, ids []uint64, titles []string) []uint64 {
	if len(subjects) < 2 {
		return nil
	}
	decisions, err := judge(ctx, d.oracle, interfaces.CallGroupDuplicates, subjects, nil)
	if err != nil {
		d.metrics.fallback(PhaseIntraDedup)
		log.WithError(err).Warn("语义判定失败，本表不做删除")
		return nil
	}
	keeper := make(map[int]int)
	var drop []uint64
	for i, dec := range decisions {
		if dec.DuplicateGroup == nil {
			continue
		}
		g := *dec.DuplicateGroup
		k, ok := keeper[g]
		if !ok {
			keeper[g] = i
			continue
		}
		drop = append(drop, ids[i])
		log.WithFields(logrus.Fields{
			"id":      ids[i],
			"title":   titles[i],
			"kept_id": ids[k],
			"group":   g,
		}).Info("删除表内重复事件")
	}
	return drop
}
