package service

import (
	"context"
	"fmt"
	"strings"

	"EventSync/internal/interfaces"
	"EventSync/internal/model"
	"EventSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// SubReclassifier 发现之前被误存为主事件、实际应是子事件的记录
type SubReclassifier struct {
	repo      repository.EventRepository
	oracle    interfaces.Oracle
	descLimit int
	metrics   *Metrics
	logger    *logrus.Logger
}

func NewSubReclassifier(repo repository.EventRepository, oracle interfaces.Oracle, descLimit int, metrics *Metrics, logger *logrus.Logger) *SubReclassifier {
	return &SubReclassifier{repo: repo, oracle: oracle, descLimit: descLimit, metrics: metrics, logger: logger}
}

// Run 子候选与已有主事件比对。命中时把该主事件加入待删除集合，
// 用建议的 temp_key 覆盖候选的 temp_key 并标记为重定向，候选仍作为子事件入库。
// 判定失败时原样放行。返回（可能改写过 temp_key 的）子候选与待删除主事件 id。
func (r *SubReclassifier) Run(ctx context.Context, subs []model.Candidate, keys *KeyMap) ([]model.Candidate, []uint64, error) {
	log := r.logger.WithField("phase", PhaseReclassify)
	if len(subs) == 0 {
		return subs, nil, nil
	}
	mains, err := r.repo.ListMainEvents(ctx, repository.MainFilter{ActiveOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("拉取主事件失败: %w", err)
	}
	if len(mains) == 0 {
		return subs, nil, nil
	}

	mainByID := make(map[uint64]*model.MainEvent, len(mains))
	comparisons := make([]model.EventSummary, len(mains))
	for i, m := range mains {
		mainByID[m.ID] = m
		comparisons[i] = m.Summary(r.descLimit)
	}
	subjects := interfaces.MapSlice(subs, func(i int, c model.Candidate) model.EventSummary {
		return c.Summary(i, r.descLimit)
	})

	decisions, err := judge(ctx, r.oracle, interfaces.CallReclassifySub, subjects, comparisons)
	if err != nil {
		r.metrics.fallback(PhaseReclassify)
		log.WithError(err).Warn("自纠正判定失败，子候选原样放行")
		return subs, nil, nil
	}

	out := make([]model.Candidate, len(subs))
	copy(out, subs)
	queued := newIDSet()
	for i, dec := range decisions {
		c := &out[i]
		entry := log.WithFields(logrus.Fields{"title": c.Title, "temp_key": c.TempKey})
		if dec.New() {
			continue
		}
		if dec.MatchesMainID == nil {
			entry.Warn("判定非新事件但未给出匹配主事件，按原样保留")
			continue
		}
		_, id, err := model.ParseRef(*dec.MatchesMainID, model.RefMain)
		if err != nil {
			entry.WithError(err).Warn("匹配主事件 id 无法解析，忽略")
			continue
		}
		m, ok := mainByID[id]
		if !ok {
			entry.WithField("matched", *dec.MatchesMainID).Warn("匹配的主事件不存在，忽略")
			continue
		}
		if queued.Add(m.ID) {
			entry.WithFields(logrus.Fields{"id": m.ID, "main_title": m.Title}).Info("发现误分类主事件，加入待删除")
		}
		if dec.NewTempKey != nil && strings.TrimSpace(*dec.NewTempKey) != "" {
			c.TempKey = strings.TrimSpace(*dec.NewTempKey)
			keys.MarkRedirected(c.TempKey)
			entry.WithField("new_temp_key", c.TempKey).Info("子候选 temp_key 已重定向")
		}
	}
	return out, queued.IDs(), nil
}
