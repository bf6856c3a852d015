package service

import (
	"context"
	"fmt"

	"EventSync/internal/model"
	"EventSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// Linker 插入幸存候选并通过 KeyMap 解析父子关系，回填父事件聚合字段
type Linker struct {
	repo   repository.EventRepository
	logger *logrus.Logger
}

func NewLinker(repo repository.EventRepository, logger *logrus.Logger) *Linker {
	return &Linker{repo: repo, logger: logger}
}

// LinkResult 插入计数
type LinkResult struct {
	MainsInserted int
	SubsInserted  int
	Unresolved    int
}

// Run 一次提交完成：插入主事件并绑定 temp_key，插入子事件并解析父事件，
// 把新子事件 id 合并进父事件 sub_event_ids，任一新子事件需要报名时父事件强制需要报名
func (l *Linker) Run(ctx context.Context, mains, subs []model.Candidate, keys *KeyMap) (LinkResult, error) {
	var res LinkResult
	if len(mains) == 0 && len(subs) == 0 {
		return res, nil
	}
	log := l.logger.WithField("phase", PhaseLink)

	err := l.repo.Transaction(ctx, func(tx repository.EventRepository) error {
		mainRows := make([]*model.MainEvent, len(mains))
		for i := range mains {
			mainRows[i] = mains[i].ToMainEvent()
		}
		if err := tx.CreateMainEvents(ctx, mainRows); err != nil {
			return err
		}
		for _, m := range mainRows {
			keys.Bind(m.TempKey, m.ID)
			log.WithFields(logrus.Fields{"id": m.ID, "title": m.Title, "temp_key": m.TempKey}).Info("插入主事件")
		}

		subRows := make([]*model.SubEvent, len(subs))
		for i := range subs {
			parent, err := l.resolveParent(ctx, tx, subs[i].TempKey, keys)
			if err != nil {
				return err
			}
			if parent == nil {
				res.Unresolved++
				log.WithFields(logrus.Fields{"title": subs[i].Title, "temp_key": subs[i].TempKey}).Warn("未解析到父事件，以无父子事件插入")
			}
			subRows[i] = subs[i].ToSubEvent(parent)
		}
		if err := tx.CreateSubEvents(ctx, subRows); err != nil {
			return err
		}

		childIDs := make(map[uint64][]uint64)
		needsRegistration := make(map[uint64]bool)
		var parentIDs []uint64
		for _, s := range subRows {
			log.WithFields(logrus.Fields{"id": s.ID, "title": s.Title, "main_event_id": parentField(s.MainEventID)}).Info("插入子事件")
			if s.MainEventID == nil {
				continue
			}
			pid := *s.MainEventID
			if _, ok := childIDs[pid]; !ok {
				parentIDs = append(parentIDs, pid)
			}
			childIDs[pid] = append(childIDs[pid], s.ID)
			if s.RequiresRegistration() {
				needsRegistration[pid] = true
			}
		}
		if len(parentIDs) == 0 {
			return nil
		}

		parents, err := tx.ListMainEvents(ctx, repository.MainFilter{IDs: parentIDs})
		if err != nil {
			return fmt.Errorf("拉取父事件失败: %w", err)
		}
		for _, p := range parents {
			p.AppendChildIDs(childIDs[p.ID]...)
			if needsRegistration[p.ID] {
				yes := true
				p.RegistrationNeeded = &yes
			}
			if err := tx.SaveMainEvent(ctx, p); err != nil {
				return fmt.Errorf("回填父事件失败: %w, id: %d", err, p.ID)
			}
		}
		if len(parents) != len(parentIDs) {
			log.WithField("parents", parentIDs).Warn("部分父事件已不存在，子事件将在下次运行被清理")
		}
		return nil
	})
	if err != nil {
		return LinkResult{}, err
	}
	res.MainsInserted, res.SubsInserted = len(mains), len(subs)
	return res, nil
}

// resolveParent 解析顺序：别名链与本次运行绑定；被自纠正重定向的 key 再回查当前持有该 key 的主事件
func (l *Linker) resolveParent(ctx context.Context, tx repository.EventRepository, key string, keys *KeyMap) (*uint64, error) {
	if id, ok := keys.Resolve(key); ok {
		return &id, nil
	}
	if !keys.Redirected(key) {
		return nil, nil
	}
	m, err := tx.FindMainByTempKey(ctx, keys.Canonical(key))
	if err != nil {
		return nil, fmt.Errorf("按 temp_key 查找主事件失败: %w", err)
	}
	if m == nil {
		return nil, nil
	}
	keys.Bind(key, m.ID)
	return &m.ID, nil
}
