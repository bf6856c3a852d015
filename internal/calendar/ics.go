package calendar

import (
	"fmt"
	"io"
	"strings"
	"time"

	"EventSync/internal/model"
	"EventSync/internal/service"

	ical "github.com/arran4/golang-ical"
)

const productID = "-//EventSync//Event Catalog//EN"

// Entry 一个主事件及其子事件
type Entry struct {
	Main *model.MainEvent
	Subs []*model.SubEvent
}

// Render 把目录写成 iCalendar；无法解析开始日期的事件跳过，返回写入的 VEVENT 数量
func Render(w io.Writer, name string, entries []Entry, loc *time.Location) (int, error) {
	if loc == nil {
		loc = time.UTC
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	stamp := time.Now().UTC()
	written := 0
	for _, e := range entries {
		if e.Main == nil {
			continue
		}
		mainUID := uid("main", e.Main.ID)
		if addEvent(cal, mainUID, "", &e.Main.EventDetails, e.Main.UpdatedAt, stamp, loc) {
			written++
		}
		for _, s := range e.Subs {
			if addEvent(cal, uid("sub", s.ID), mainUID, &s.EventDetails, s.UpdatedAt, stamp, loc) {
				written++
			}
		}
	}
	if err := cal.SerializeTo(w); err != nil {
		return written, fmt.Errorf("写出日历失败: %w", err)
	}
	return written, nil
}

func uid(kind string, id uint64) string {
	return fmt.Sprintf("%s-%d@eventsync", kind, id)
}

func addEvent(cal *ical.Calendar, id, parentUID string, d *model.EventDetails, modified, stamp time.Time, loc *time.Location) bool {
	start, ok := service.ParseEventDate(d.StartDate)
	if !ok {
		return false
	}
	end, ok := service.ParseEventDate(d.EndDate)
	if !ok || end.Before(start) {
		end = start
	}

	ev := cal.AddEvent(id)
	ev.SetDtStampTime(stamp)
	if !modified.IsZero() {
		ev.SetModifiedAt(modified.UTC())
	}
	ev.SetSummary(d.Title)
	if d.Description != "" {
		ev.SetDescription(d.Description)
	}
	if where := location(d); where != "" {
		ev.SetLocation(where)
	}
	if d.URL != "" {
		ev.SetURL(d.URL)
	}
	if d.Organizer != "" {
		ev.SetOrganizer(d.Organizer)
	}
	if d.ImageKey != "" {
		ev.AddProperty(ical.ComponentPropertyCategories, d.ImageKey)
	}
	if parentUID != "" {
		ev.AddProperty(ical.ComponentProperty("RELATED-TO"), parentUID)
	}

	startAt, hasStart := clockTime(start, d.StartTime, loc)
	endAt, hasEnd := clockTime(end, d.EndTime, loc)
	switch {
	case hasStart && hasEnd && endAt.After(startAt):
		ev.SetStartAt(startAt.UTC())
		ev.SetEndAt(endAt.UTC())
	case hasStart:
		ev.SetStartAt(startAt.UTC())
		ev.SetEndAt(startAt.Add(time.Hour).UTC())
	default:
		// 全天事件的 DTEND 不包含在内
		ev.SetAllDayStartAt(start)
		ev.SetAllDayEndAt(end.AddDate(0, 0, 1))
	}
	return true
}

// clockTime 把 "15:04" / "15:04:05" / "3:04 PM" 形式的时间拼到日期上
func clockTime(day time.Time, clock string, loc *time.Location) (time.Time, bool) {
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"15:04", "15:04:05", "3:04 PM", "3:04PM", "15.04"} {
		t, err := time.Parse(layout, strings.ToUpper(clock))
		if err == nil {
			y, m, dd := day.Date()
			return time.Date(y, m, dd, t.Hour(), t.Minute(), t.Second(), 0, loc), true
		}
	}
	return time.Time{}, false
}

func location(d *model.EventDetails) string {
	var parts []string
	if d.Location != "" {
		parts = append(parts, d.Location)
	}
	street := strings.TrimSpace(d.Street + " " + d.HouseNumber)
	if street != "" {
		parts = append(parts, street)
	}
	city := strings.TrimSpace(d.ZipCode + " " + d.City)
	if city != "" {
		parts = append(parts, city)
	}
	if d.Country != "" {
		parts = append(parts, d.Country)
	}
	return strings.Join(parts, ", ")
}
