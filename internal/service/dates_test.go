package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseEventDate(t *testing.T) {
	want := time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2030-03-04",
		"2030-3-4",
		"04.03.2030",
		"4.3.2030",
		"04/03/2030",
		"March 4, 2030",
		"Mar 4, 2030",
		"4 March 2030",
		"4 Mar 2030",
		"2030-03-04T18:00:00+01:00",
		"2030-03-04 18:00",
		" 2030-03-04 ",
	} {
		got, ok := ParseEventDate(in)
		if assert.True(t, ok, in) {
			assert.Equal(t, want, got, in)
		}
	}

	// 日/月 无效时回退 月/日
	got, ok := ParseEventDate("12/25/2030")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2030, 12, 25, 0, 0, 0, 0, time.UTC), got)

	for _, in := range []string{"", "soon", "TBA", "2030-13-45"} {
		_, ok := ParseEventDate(in)
		assert.False(t, ok, in)
	}
}

func TestIsPast(t *testing.T) {
	day := time.Date(2030, 6, 15, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name       string
		start, end string
		past       bool
	}{
		{"end before today", "2030-06-01", "2030-06-14", true},
		{"end today", "2030-06-01", "2030-06-15", false},
		{"end future, start past", "2030-06-01", "2030-06-20", false},
		{"only start past", "2030-06-14", "", true},
		{"only start future", "2030-06-16", "", false},
		{"unparseable end falls back to start", "2030-06-01", "later", true},
		{"nothing parseable", "tbd", "tbd", false},
		{"missing", "", "", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.past, IsPast(c.start, c.end, day), c.name)
	}
}

func TestTodayUsesLocation(t *testing.T) {
	late := func() time.Time { return time.Date(2030, 6, 15, 23, 30, 0, 0, time.UTC) }
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	assert.Equal(t, time.Date(2030, 6, 16, 0, 0, 0, 0, time.UTC), Today(late, berlin))
	assert.Equal(t, time.Date(2030, 6, 15, 0, 0, 0, 0, time.UTC), Today(late, time.UTC))
}
