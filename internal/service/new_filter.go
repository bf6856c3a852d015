package service

import (
	"context"
	"errors"
	"fmt"

	"EventSync/internal/interfaces"
	"EventSync/internal/model"
	"EventSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// ErrMainFilterFailed 主候选判重失败，本次运行放弃整个入库阶段
var ErrMainFilterFailed = errors.New("main candidate duplicate check failed")

// NewEntityFilter 判断候选事件是否已存在于库中
type NewEntityFilter struct {
	repo      repository.EventRepository
	oracle    interfaces.Oracle
	descLimit int
	metrics   *Metrics
	logger    *logrus.Logger
}

func NewNewEntityFilter(repo repository.EventRepository, oracle interfaces.Oracle, descLimit int, metrics *Metrics, logger *logrus.Logger) *NewEntityFilter {
	return &NewEntityFilter{repo: repo, oracle: oracle, descLimit: descLimit, metrics: metrics, logger: logger}
}

// FilterMains 主候选与已有主/子事件以及本批次更早的主候选比对；
// 重复的候选被丢弃，并把它的 temp_key 指向已有事件，使同簇子候选仍能挂到正确的父事件。
// 判定失败返回 ErrMainFilterFailed。
func (f *NewEntityFilter) FilterMains(ctx context.Context, mains []model.Candidate, keys *KeyMap) ([]model.Candidate, int, error) {
	log := f.logger.WithField("phase", PhaseNewMains)
	if len(mains) == 0 {
		return nil, 0, nil
	}

	persistedMains, err := f.repo.ListMainEvents(ctx, repository.MainFilter{ActiveOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: 拉取主事件失败: %v", ErrMainFilterFailed, err)
	}
	persistedSubs, err := f.repo.ListSubEvents(ctx, repository.SubFilter{ActiveOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: 拉取子事件失败: %v", ErrMainFilterFailed, err)
	}
	if len(persistedMains) == 0 && len(persistedSubs) == 0 && len(mains) == 1 {
		return mains, 0, nil
	}

	mainByID := make(map[uint64]*model.MainEvent, len(persistedMains))
	subByID := make(map[uint64]*model.SubEvent, len(persistedSubs))
	comparisons := make([]model.EventSummary, 0, len(persistedMains)+len(persistedSubs)+len(mains))
	for _, m := range persistedMains {
		mainByID[m.ID] = m
		comparisons = append(comparisons, m.Summary(f.descLimit))
	}
	for _, s := range persistedSubs {
		subByID[s.ID] = s
		comparisons = append(comparisons, s.Summary(f.descLimit))
	}
	subjects := make([]model.EventSummary, len(mains))
	for i := range mains {
		subjects[i] = mains[i].Summary(i, f.descLimit)
		comparisons = append(comparisons, subjects[i])
	}

	decisions, err := judge(ctx, f.oracle, interfaces.CallMatchExisting, subjects, comparisons)
	if err != nil {
		f.metrics.fallback(PhaseNewMains)
		log.WithError(err).Error("主候选判重失败，放弃本次入库")
		return nil, 0, fmt.Errorf("%w: %v", ErrMainFilterFailed, err)
	}

	var kept []model.Candidate
	duplicates := 0
	for i, dec := range decisions {
		c := mains[i]
		entry := log.WithFields(logrus.Fields{"title": c.Title, "temp_key": c.TempKey})
		if dec.New() {
			kept = append(kept, c)
			continue
		}
		if dec.MatchingExistingID == nil {
			duplicates++
			entry.Warn("判定为已存在但未给出匹配 id，丢弃且不做映射")
			continue
		}
		kind, id, err := model.ParseRef(*dec.MatchingExistingID, model.RefMain)
		if err != nil {
			entry.WithError(err).Warn("匹配 id 无法解析，按新事件保留")
			kept = append(kept, c)
			continue
		}
		switch kind {
		case model.RefMain:
			m, ok := mainByID[id]
			if !ok {
				entry.WithField("matched", *dec.MatchingExistingID).Warn("匹配的主事件不存在，按新事件保留")
				kept = append(kept, c)
				continue
			}
			// 只绑定候选自己的 key：已有主事件的旧 key 可能被本批次的新主事件复用
			keys.Bind(c.TempKey, m.ID)
			entry.WithFields(logrus.Fields{"id": m.ID, "mapped_key": m.TempKey}).Info("主候选与已有主事件重复")
		case model.RefSub:
			s, ok := subByID[id]
			if !ok {
				entry.WithField("matched", *dec.MatchingExistingID).Warn("匹配的子事件不存在，按新事件保留")
				kept = append(kept, c)
				continue
			}
			if s.MainEventID != nil {
				keys.Bind(c.TempKey, *s.MainEventID)
			}
			entry.WithFields(logrus.Fields{"id": s.ID, "main_event_id": parentField(s.MainEventID)}).Info("主候选与已有子事件重复")
		case model.RefCandidate:
			j := int(id)
			if j >= i {
				entry.WithField("matched", *dec.MatchingExistingID).Warn("匹配到自身或更晚的候选，按新事件保留")
				kept = append(kept, c)
				continue
			}
			keys.Alias(c.TempKey, mains[j].TempKey)
			entry.WithField("duplicate_of", mains[j].Title).Info("主候选与本批次更早的候选重复")
		default:
			entry.WithField("matched", *dec.MatchingExistingID).Warn("未知引用类型，按新事件保留")
			kept = append(kept, c)
			continue
		}
		duplicates++
	}
	return kept, duplicates, nil
}

// FilterSubs 子候选只与已有子事件比对；判定失败时全部视为新事件
func (f *NewEntityFilter) FilterSubs(ctx context.Context, subs []model.Candidate) ([]model.Candidate, int, error) {
	log := f.logger.WithField("phase", PhaseNewSubs)
	if len(subs) == 0 {
		return nil, 0, nil
	}
	persisted, err := f.repo.ListSubEvents(ctx, repository.SubFilter{ActiveOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("拉取子事件失败: %w", err)
	}
	if len(persisted) == 0 {
		return subs, 0, nil
	}

	subjects := interfaces.MapSlice(subs, func(i int, c model.Candidate) model.EventSummary {
		return c.Summary(i, f.descLimit)
	})
	comparisons := interfaces.MapSlice(persisted, func(_ int, s *model.SubEvent) model.EventSummary {
		return s.Summary(f.descLimit)
	})

	decisions, err := judge(ctx, f.oracle, interfaces.CallCheckNew, subjects, comparisons)
	if err != nil {
		f.metrics.fallback(PhaseNewSubs)
		log.WithError(err).Warn("子候选判重失败，全部按新事件处理")
		return subs, 0, nil
	}

	var kept []model.Candidate
	duplicates := 0
	for i, dec := range decisions {
		if dec.New() {
			kept = append(kept, subs[i])
			continue
		}
		duplicates++
		log.WithFields(logrus.Fields{"title": subs[i].Title, "temp_key": subs[i].TempKey}).Info("子候选已存在，丢弃")
	}
	return kept, duplicates, nil
}
