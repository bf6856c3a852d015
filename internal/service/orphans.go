package service

import (
	"context"
	"fmt"

	"EventSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// OrphanReconciler 删除 main_event_id 为空或指向不存在主事件的子事件
type OrphanReconciler struct {
	repo   repository.EventRepository
	logger *logrus.Logger
}

func NewOrphanReconciler(repo repository.EventRepository, logger *logrus.Logger) *OrphanReconciler {
	return &OrphanReconciler{repo: repo, logger: logger}
}

func (o *OrphanReconciler) Run(ctx context.Context) (int64, error) {
	log := o.logger.WithField("phase", PhaseOrphans)

	mainIDs, err := o.repo.ListMainIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("拉取主事件 id 失败: %w", err)
	}
	existing := make(map[uint64]struct{}, len(mainIDs))
	for _, id := range mainIDs {
		existing[id] = struct{}{}
	}
	subs, err := o.repo.ListSubEvents(ctx, repository.SubFilter{})
	if err != nil {
		return 0, fmt.Errorf("拉取子事件失败: %w", err)
	}

	var orphanIDs []uint64
	for _, s := range subs {
		reason := ""
		if s.MainEventID == nil {
			reason = "无父事件"
		} else if _, ok := existing[*s.MainEventID]; !ok {
			reason = "父事件不存在"
		}
		if reason == "" {
			continue
		}
		orphanIDs = append(orphanIDs, s.ID)
		log.WithFields(logrus.Fields{"id": s.ID, "title": s.Title, "main_event_id": parentField(s.MainEventID)}).Info("删除孤儿子事件：" + reason)
	}
	if len(orphanIDs) == 0 {
		return 0, nil
	}

	var deleted int64
	err = o.repo.Transaction(ctx, func(tx repository.EventRepository) error {
		n, err := tx.DeleteSubEvents(ctx, orphanIDs)
		deleted = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("删除孤儿子事件失败: %w", err)
	}
	return deleted, nil
}
