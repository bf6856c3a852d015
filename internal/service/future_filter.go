package service

import (
	"strings"
	"time"

	"EventSync/internal/model"

	"github.com/sirupsen/logrus"
)

// WindowResult 时间窗口过滤结果，Mains/Subs 保持输入顺序
type WindowResult struct {
	Mains          []model.Candidate
	Subs           []model.Candidate
	DroppedInvalid int
	DroppedPast    int
}

// FutureWindowFilter 丢弃整体已过期的候选簇
type FutureWindowFilter struct {
	logger *logrus.Logger
}

func NewFutureWindowFilter(logger *logrus.Logger) *FutureWindowFilter {
	return &FutureWindowFilter{logger: logger}
}

// Apply 按类型拆分并按簇判断：
//   - 主候选无同 temp_key 子候选：自身窗口未过（或无法解析）则保留
//   - 主候选有子候选：任一子候选未过（或无法解析）则整簇保留，否则整簇丢弃
//   - 找不到主候选的子候选：单独按自身窗口判断
func (f *FutureWindowFilter) Apply(batch []model.Candidate, today time.Time) WindowResult {
	log := f.logger.WithField("phase", PhaseFutureFilter)
	var res WindowResult

	var mains, subs []model.Candidate
	for _, c := range batch {
		if err := c.Validate(); err != nil {
			res.DroppedInvalid++
			log.WithError(err).WithFields(logrus.Fields{"title": c.Title, "type": c.Type, "temp_key": c.TempKey}).Warn("丢弃无效候选事件")
			continue
		}
		kind, _ := c.Kind()
		c.Type = string(kind)
		c.TempKey = strings.TrimSpace(c.TempKey)
		if kind == model.CandidateMain {
			mains = append(mains, c)
		} else {
			subs = append(subs, c)
		}
	}

	subsByKey := make(map[string][]int)
	for i, s := range subs {
		subsByKey[s.TempKey] = append(subsByKey[s.TempKey], i)
	}
	mainKeys := make(map[string]struct{}, len(mains))
	for _, m := range mains {
		mainKeys[m.TempKey] = struct{}{}
	}

	keepSub := make([]bool, len(subs))
	for _, m := range mains {
		related := subsByKey[m.TempKey]
		if len(related) == 0 {
			if IsPast(m.StartDate, m.EndDate, today) {
				res.DroppedPast++
				log.WithFields(logrus.Fields{"title": m.Title, "temp_key": m.TempKey}).Info("丢弃已过期主候选")
				continue
			}
			res.Mains = append(res.Mains, m)
			continue
		}
		live := false
		for _, i := range related {
			if !IsPast(subs[i].StartDate, subs[i].EndDate, today) {
				live = true
				break
			}
		}
		if !live {
			res.DroppedPast++
			log.WithFields(logrus.Fields{"title": m.Title, "temp_key": m.TempKey, "subs": len(related)}).Info("丢弃已过期候选簇")
			continue
		}
		res.Mains = append(res.Mains, m)
		for _, i := range related {
			keepSub[i] = true
		}
	}

	for i, s := range subs {
		if _, clustered := mainKeys[s.TempKey]; clustered {
			continue
		}
		if IsPast(s.StartDate, s.EndDate, today) {
			log.WithFields(logrus.Fields{"title": s.Title, "temp_key": s.TempKey}).Info("丢弃已过期子候选")
			continue
		}
		keepSub[i] = true
	}

	for i, s := range subs {
		if keepSub[i] {
			res.Subs = append(res.Subs, s)
		} else {
			res.DroppedPast++
		}
	}
	return res
}
