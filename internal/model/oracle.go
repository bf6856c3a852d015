package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// 语义判定服务中行引用的前缀
const (
	RefMain      = "main"
	RefSub       = "sub"
	RefCandidate = "candidate"
)

// EventSummary 发给语义判定服务的单行摘要
type EventSummary struct {
	Ref         string `json:"ref"`
	Title       string `json:"title"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	StartTime   string `json:"start_time,omitempty"`
	EndTime     string `json:"end_time,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	TempKey     string `json:"temp_key,omitempty"`
	ParentRef   string `json:"parent_ref,omitempty"`
	// SkipMainIndex 跨表比对时该子事件必须跳过的主事件下标（其父事件）
	SkipMainIndex *int `json:"skip_main_index,omitempty"`
}

// Decision 判定结果，按调用点只会出现其中一组字段；decisions[i] 对应 subjects[i]
type Decision struct {
	IsNew               *bool   `json:"is_new,omitempty"`
	MatchingExistingID  *string `json:"matching_existing_id,omitempty"`
	DuplicateGroup      *int    `json:"duplicate_group,omitempty"`
	DuplicateOfSubIndex *int    `json:"duplicate_of_sub_index,omitempty"`
	MatchesMainID       *string `json:"matches_main_id,omitempty"`
	NewTempKey          *string `json:"new_temp_key,omitempty"`
}

// UnmarshalJSON 容忍模型输出的常见偏差：id 写成数字、旧字段名 is_duplicate_of_sub_event_index
func (d *Decision) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Decision{}
	if v, ok := raw["is_new"]; ok {
		var b *bool
		if err := json.Unmarshal(v, &b); err != nil {
			return fmt.Errorf("is_new: %w", err)
		}
		d.IsNew = b
	}
	var err error
	if d.MatchingExistingID, err = looseString(raw["matching_existing_id"]); err != nil {
		return fmt.Errorf("matching_existing_id: %w", err)
	}
	if d.MatchesMainID, err = looseString(raw["matches_main_id"]); err != nil {
		return fmt.Errorf("matches_main_id: %w", err)
	}
	if d.NewTempKey, err = looseString(raw["new_temp_key"]); err != nil {
		return fmt.Errorf("new_temp_key: %w", err)
	}
	if d.DuplicateGroup, err = looseInt(raw["duplicate_group"]); err != nil {
		return fmt.Errorf("duplicate_group: %w", err)
	}
	sub := raw["duplicate_of_sub_index"]
	if sub == nil {
		sub = raw["is_duplicate_of_sub_event_index"]
	}
	if d.DuplicateOfSubIndex, err = looseInt(sub); err != nil {
		return fmt.Errorf("duplicate_of_sub_index: %w", err)
	}
	return nil
}

func looseString(v json.RawMessage) (*string, error) {
	if len(v) == 0 || string(v) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return &s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return nil, err
	}
	s = n.String()
	return &s, nil
}

func looseInt(v json.RawMessage) (*int, error) {
	if len(v) == 0 || string(v) == "null" {
		return nil, nil
	}
	var n int
	if err := json.Unmarshal(v, &n); err == nil {
		return &n, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// New 缺省 is_new 视为新事件（信息缺失时倾向保留）
func (d Decision) New() bool {
	return d.IsNew == nil || *d.IsNew
}

// Ref 构造行引用，如 main:12
func Ref(kind string, id uint64) string {
	return kind + ":" + strconv.FormatUint(id, 10)
}

// CandidateRef 批内候选事件引用
func CandidateRef(index int) string {
	return RefCandidate + ":" + strconv.Itoa(index)
}

// ParseRef 解析行引用；纯数字按 defaultKind 处理
func ParseRef(ref, defaultKind string) (kind string, id uint64, err error) {
	ref = strings.TrimSpace(ref)
	kind = defaultKind
	if i := strings.IndexByte(ref, ':'); i >= 0 {
		kind = strings.ToLower(strings.TrimSpace(ref[:i]))
		ref = strings.TrimSpace(ref[i+1:])
	}
	id, err = strconv.ParseUint(ref, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid ref %q: %w", ref, err)
	}
	return kind, id, nil
}

// TruncateRunes 按字符截断（描述字段进入提示词前使用）
func TruncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// venue 场地 + 城市
func (d *EventDetails) venue() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{d.Location, d.Room, d.City} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func (d *EventDetails) summary(ref string, descLimit int) EventSummary {
	return EventSummary{
		Ref:         ref,
		Title:       d.Title,
		StartDate:   d.StartDate,
		EndDate:     d.EndDate,
		StartTime:   d.StartTime,
		EndTime:     d.EndTime,
		Location:    d.venue(),
		Description: TruncateRunes(d.Description, descLimit),
	}
}

// Summary 主事件摘要
func (m *MainEvent) Summary(descLimit int) EventSummary {
	s := m.EventDetails.summary(Ref(RefMain, m.ID), descLimit)
	s.TempKey = m.TempKey
	return s
}

// Summary 子事件摘要（附带父事件引用）
func (s *SubEvent) Summary(descLimit int) EventSummary {
	out := s.EventDetails.summary(Ref(RefSub, s.ID), descLimit)
	if s.MainEventID != nil {
		out.ParentRef = Ref(RefMain, *s.MainEventID)
	}
	return out
}

// Summary 候选事件摘要
func (c *Candidate) Summary(index, descLimit int) EventSummary {
	d := c.Details()
	s := d.summary(CandidateRef(index), descLimit)
	s.TempKey = c.TempKey
	return s
}
