package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"EventSync/internal/interfaces"
	"EventSync/internal/model"
	"EventSync/internal/repository"
	"EventSync/internal/repository/repotest"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2030, 6, 15, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func today() time.Time { return Today(fixedClock, time.UTC) }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newRepo(t *testing.T) (*gorm.DB, repository.EventRepository) {
	t.Helper()
	db := repotest.NewDB(t)
	return db, repository.NewEventRepository(db)
}

var errOracleDown = errors.New("oracle down")

// stubOracle 以“标题忽略大小写 + 开始日期”作为同一事件的判定依据，记录每次调用
type stubOracle struct {
	mu    sync.Mutex
	calls []interfaces.CallKind
	fail  map[interfaces.CallKind]bool
	// override 按调用点替换默认判定
	override map[interfaces.CallKind]func(subjects, comparisons []model.EventSummary) []model.Decision
}

func newStub() *stubOracle {
	return &stubOracle{
		fail:     map[interfaces.CallKind]bool{},
		override: map[interfaces.CallKind]func(subjects, comparisons []model.EventSummary) []model.Decision{},
	}
}

func eventKey(e model.EventSummary) string {
	return strings.ToLower(strings.TrimSpace(e.Title)) + "|" + e.StartDate
}

func sameEvent(a, b model.EventSummary) bool { return eventKey(a) == eventKey(b) }

func (s *stubOracle) count(kind interfaces.CallKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range s.calls {
		if k == kind {
			n++
		}
	}
	return n
}

func (s *stubOracle) Judge(_ context.Context, kind interfaces.CallKind, subjects, comparisons []model.EventSummary) ([]model.Decision, error) {
	s.mu.Lock()
	s.calls = append(s.calls, kind)
	s.mu.Unlock()
	if s.fail[kind] {
		return nil, errOracleDown
	}
	if fn, ok := s.override[kind]; ok {
		return fn(subjects, comparisons), nil
	}

	out := make([]model.Decision, len(subjects))
	switch kind {
	case interfaces.CallGroupDuplicates:
		counts := map[string]int{}
		for _, subj := range subjects {
			counts[eventKey(subj)]++
		}
		groupOf := map[string]int{}
		for i, subj := range subjects {
			k := eventKey(subj)
			if counts[k] < 2 {
				continue
			}
			g, ok := groupOf[k]
			if !ok {
				g = len(groupOf) + 1
				groupOf[k] = g
			}
			out[i].DuplicateGroup = intPtr(g)
		}
	case interfaces.CallCrossTable:
		for i, subj := range subjects {
			for j, c := range comparisons {
				if c.SkipMainIndex != nil && *c.SkipMainIndex == i {
					continue
				}
				if sameEvent(subj, c) {
					out[i].DuplicateOfSubIndex = intPtr(j)
					break
				}
			}
		}
	case interfaces.CallMatchExisting:
		for i, subj := range subjects {
			out[i].IsNew = boolPtr(true)
			for _, c := range comparisons {
				if c.Ref == subj.Ref {
					break // 只允许匹配更早的候选
				}
				if sameEvent(subj, c) {
					out[i].IsNew = boolPtr(false)
					out[i].MatchingExistingID = strPtr(c.Ref)
					break
				}
			}
		}
	case interfaces.CallCheckNew, interfaces.CallReclassifySub:
		for i, subj := range subjects {
			out[i].IsNew = boolPtr(true)
			for _, c := range comparisons {
				if sameEvent(subj, c) {
					out[i].IsNew = boolPtr(false)
					if kind == interfaces.CallReclassifySub {
						out[i].MatchesMainID = strPtr(c.Ref)
					}
					break
				}
			}
		}
	}
	return out, nil
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

func candidate(typ, title, start, end, key string) model.Candidate {
	return model.Candidate{Title: title, StartDate: start, EndDate: end, Type: typ, TempKey: key}
}
