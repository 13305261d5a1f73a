package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsqual.transitlab.cl/internal/feed"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func weekdayPattern() [7]bool {
	var pattern [7]bool
	for day := time.Monday; day <= time.Friday; day++ {
		pattern[day] = true
	}
	return pattern
}

func TestResolveWeekdayPatternWithRemovedDate(t *testing.T) {
	// Mon-Fri over two weeks, minus one Wednesday holiday.
	cal := feed.Calendar{
		ServiceID: "wk",
		Weekdays:  weekdayPattern(),
		Start:     date(2026, 3, 2),
		End:       date(2026, 3, 13),
		Removed:   []time.Time{date(2026, 3, 4)},
	}

	set := Resolve([]feed.Calendar{cal}, date(2026, 3, 2), date(2026, 3, 13))
	days := set["wk"]

	assert.Len(t, days, 9, "10 weekdays minus one removed")
	_, active := days[date(2026, 3, 4)]
	assert.False(t, active, "removed date must not be active")
	_, active = days[date(2026, 3, 11)]
	assert.True(t, active)
	_, active = days[date(2026, 3, 7)]
	assert.False(t, active, "saturday is outside the pattern")
}

func TestResolveAddedDate(t *testing.T) {
	cal := feed.Calendar{
		ServiceID: "wk",
		Weekdays:  weekdayPattern(),
		Start:     date(2026, 3, 2),
		End:       date(2026, 3, 6),
		Added:     []time.Time{date(2026, 3, 7)},
	}

	set := Resolve([]feed.Calendar{cal}, date(2026, 3, 2), date(2026, 3, 8))
	days := set["wk"]

	_, active := days[date(2026, 3, 7)]
	assert.True(t, active, "added saturday unions in even past the pattern range")
	assert.Len(t, days, 6)
}

func TestResolveClipsToRequestedRange(t *testing.T) {
	cal := feed.Calendar{
		ServiceID: "wk",
		Weekdays:  weekdayPattern(),
		Start:     date(2026, 1, 1),
		End:       date(2026, 12, 31),
		Added:     []time.Time{date(2026, 6, 1)},
	}

	set := Resolve([]feed.Calendar{cal}, date(2026, 3, 2), date(2026, 3, 6))
	days := set["wk"]

	assert.Len(t, days, 5, "only the requested week resolves")
	_, active := days[date(2026, 6, 1)]
	assert.False(t, active, "exception outside the range is ignored")
}

func TestResolveExceptionOnlyService(t *testing.T) {
	cal := feed.Calendar{
		ServiceID: "special",
		Start:     date(2026, 3, 15),
		End:       date(2026, 3, 15),
		Added:     []time.Time{date(2026, 3, 15)},
	}

	set := Resolve([]feed.Calendar{cal}, date(2026, 3, 1), date(2026, 3, 31))
	require.Len(t, set["special"], 1)
}

func TestActiveServices(t *testing.T) {
	calendars := []feed.Calendar{
		{ServiceID: "wk", Weekdays: weekdayPattern(), Start: date(2026, 3, 2), End: date(2026, 3, 6)},
		{ServiceID: "sat", Weekdays: [7]bool{time.Saturday: true}, Start: date(2026, 3, 2), End: date(2026, 3, 8)},
	}
	set := Resolve(calendars, date(2026, 3, 2), date(2026, 3, 8))

	weekdayOnly := DaySet{date(2026, 3, 3): {}}
	active := set.ActiveServices(weekdayOnly)
	assert.True(t, active["wk"])
	assert.False(t, active["sat"])

	all := set.Dates()
	assert.Len(t, all, 6)
}

func TestDayTypePolicyClassify(t *testing.T) {
	policy := DefaultDayTypePolicy()

	testCases := []struct {
		name string
		date time.Time
		want DayType
	}{
		{name: "Monday", date: date(2026, 3, 2), want: Weekday},
		{name: "Saturday", date: date(2026, 3, 7), want: Saturday},
		{name: "Sunday", date: date(2026, 3, 8), want: Sunday},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := policy.Classify(tc.date)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDayTypePolicyExcludesUnconfiguredBuckets(t *testing.T) {
	policy := NewDayTypePolicy([]DayType{Weekday})

	_, ok := policy.Classify(date(2026, 3, 7))
	assert.False(t, ok, "saturday maps to no configured bucket")

	_, ok = policy.Classify(date(2026, 3, 2))
	assert.True(t, ok)
}

func TestDayTypePolicyDatesFor(t *testing.T) {
	policy := DefaultDayTypePolicy()
	dates := DaySet{
		date(2026, 3, 2): {},
		date(2026, 3, 7): {},
		date(2026, 3, 8): {},
	}

	weekdays := policy.DatesFor(Weekday, dates)
	assert.Len(t, weekdays, 1)

	saturdays := policy.DatesFor(Saturday, dates)
	_, ok := saturdays[date(2026, 3, 7)]
	assert.True(t, ok)
}

func TestDayTypePolicyBucketsOrder(t *testing.T) {
	policy := NewDayTypePolicy([]DayType{"sunday", "holiday", "weekday", "another"})
	assert.Equal(t, []DayType{Weekday, Sunday, DayType("another"), DayType("holiday")}, policy.Buckets())
}
