package service

import (
	"strings"
	"time"
)

// 抽取端给出的日期是自由格式字符串，按顺序尝试以下格式；斜杠日期先按 日/月 解析
var dateLayouts = []string{
	"2006-1-2",
	"2.1.2006",
	"2/1/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// ParseEventDate 解析事件日期，返回当天 00:00 UTC；空串或无法识别时 ok=false
func ParseEventDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// ISO 时间戳只取日期部分
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return dateOnly(t), true
	}
	if len(s) > 10 && (s[10] == 'T' || s[10] == ' ') {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return dateOnly(t), true
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), true
		}
	}
	return time.Time{}, false
}

// IsPast 结束日期（缺省回退开始日期）严格早于 today 才算过期；缺失或无法解析一律视为未过期
func IsPast(startDate, endDate string, today time.Time) bool {
	d, ok := ParseEventDate(endDate)
	if !ok {
		d, ok = ParseEventDate(startDate)
	}
	if !ok {
		return false
	}
	return d.Before(today)
}

// Clock 当前时间来源，测试中注入固定时间
type Clock func() time.Time

// Today 返回 loc 时区下的当天日期（00:00 UTC 表示）
func Today(clock Clock, loc *time.Location) time.Time {
	if clock == nil {
		clock = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return dateOnly(clock().In(loc))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
