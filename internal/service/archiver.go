package service

import (
	"context"
	"fmt"
	"time"

	"EventSync/internal/model"
	"EventSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// Archiver 按时间窗口归档过期事件，主事件与其子事件作为一个簇整体判断
type Archiver struct {
	repo   repository.EventRepository
	logger *logrus.Logger
}

func NewArchiver(repo repository.EventRepository, logger *logrus.Logger) *Archiver {
	return &Archiver{repo: repo, logger: logger}
}

// Run 归档规则：
//   - 无子事件的主事件、孤儿子事件（含父事件已归档或不存在的）：自身窗口已过则归档
//   - 有子事件的主事件：所有子事件（含已归档的）都已过，才归档主事件及其全部子事件；
//     任一子事件未过或日期无法解析，整个簇保留
//
// 只处理未归档行，一次提交，返回归档行数
func (a *Archiver) Run(ctx context.Context, today time.Time) (int64, error) {
	log := a.logger.WithField("phase", PhaseArchive)

	mains, err := a.repo.ListMainEvents(ctx, repository.MainFilter{ActiveOnly: true})
	if err != nil {
		return 0, fmt.Errorf("拉取主事件失败: %w", err)
	}
	subs, err := a.repo.ListSubEvents(ctx, repository.SubFilter{})
	if err != nil {
		return 0, fmt.Errorf("拉取子事件失败: %w", err)
	}
	activeMains := make(map[uint64]*model.MainEvent, len(mains))
	for _, m := range mains {
		activeMains[m.ID] = m
	}

	children := make(map[uint64][]*model.SubEvent)
	var loose []*model.SubEvent // 无父事件或父事件已归档/不存在
	for _, s := range subs {
		if s.MainEventID != nil {
			if _, ok := activeMains[*s.MainEventID]; ok {
				children[*s.MainEventID] = append(children[*s.MainEventID], s)
				continue
			}
		}
		if !s.IsArchived() {
			loose = append(loose, s)
		}
	}

	var mainIDs, subIDs []uint64
	for _, m := range mains {
		kids := children[m.ID]
		if len(kids) == 0 {
			if IsPast(m.StartDate, m.EndDate, today) {
				mainIDs = append(mainIDs, m.ID)
				log.WithFields(logrus.Fields{"id": m.ID, "title": m.Title}).Info("归档过期主事件")
			}
			continue
		}
		allPast := true
		for _, s := range kids {
			if !IsPast(s.StartDate, s.EndDate, today) {
				allPast = false
				break
			}
		}
		if !allPast {
			continue
		}
		mainIDs = append(mainIDs, m.ID)
		for _, s := range kids {
			if !s.IsArchived() {
				subIDs = append(subIDs, s.ID)
			}
		}
		log.WithFields(logrus.Fields{"id": m.ID, "title": m.Title, "children": len(kids)}).Info("归档过期事件簇")
	}
	for _, s := range loose {
		if IsPast(s.StartDate, s.EndDate, today) {
			subIDs = append(subIDs, s.ID)
			log.WithFields(logrus.Fields{"id": s.ID, "title": s.Title}).Info("归档过期孤儿子事件")
		}
	}

	if len(mainIDs) == 0 && len(subIDs) == 0 {
		return 0, nil
	}
	var archived int64
	err = a.repo.Transaction(ctx, func(tx repository.EventRepository) error {
		n, err := tx.ArchiveMainEvents(ctx, mainIDs)
		if err != nil {
			return fmt.Errorf("归档主事件失败: %w", err)
		}
		archived += n
		n, err = tx.ArchiveSubEvents(ctx, subIDs)
		if err != nil {
			return fmt.Errorf("归档子事件失败: %w", err)
		}
		archived += n
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.WithField("archived", archived).Info("归档完成")
	return archived, nil
}
