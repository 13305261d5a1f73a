// Package service resolves GTFS calendars into concrete sets of active
// service-days and classifies calendar dates into day-type buckets.
package service

import (
	"time"

	"gtfsqual.transitlab.cl/internal/feed"
)

// DaySet is a set of calendar dates (UTC midnights).
type DaySet map[time.Time]struct{}

// ServiceDaySet maps each service id to the concrete dates it is active on.
type ServiceDaySet map[string]DaySet

// Resolve expands each calendar's weekday pattern across [start, end]
// (inclusive), then applies exception dates: added dates union in, removed
// dates subtract. The result is an explicit date set per service id, which
// keeps the span and frequency engines free of calendar rule evaluation.
//
// Exception dates outside [start, end] are ignored; the range bounds the
// whole resolution.
func Resolve(calendars []feed.Calendar, start, end time.Time) ServiceDaySet {
	start = midnight(start)
	end = midnight(end)

	set := make(ServiceDaySet, len(calendars))
	for i := range calendars {
		cal := &calendars[i]
		days := make(DaySet)

		from := cal.Start
		if from.Before(start) {
			from = start
		}
		to := cal.End
		if to.After(end) {
			to = end
		}
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			if cal.Weekdays[d.Weekday()] {
				days[d] = struct{}{}
			}
		}

		for _, d := range cal.Added {
			d = midnight(d)
			if !d.Before(start) && !d.After(end) {
				days[d] = struct{}{}
			}
		}
		for _, d := range cal.Removed {
			delete(days, midnight(d))
		}

		set[cal.ServiceID] = days
	}
	return set
}

// ActiveServices returns the service ids active on at least one of the given
// dates.
func (s ServiceDaySet) ActiveServices(dates DaySet) map[string]bool {
	active := make(map[string]bool)
	for serviceID, days := range s {
		for d := range dates {
			if _, ok := days[d]; ok {
				active[serviceID] = true
				break
			}
		}
	}
	return active
}

// Dates returns the union of all dates any service is active on.
func (s ServiceDaySet) Dates() DaySet {
	all := make(DaySet)
	for _, days := range s {
		for d := range days {
			all[d] = struct{}{}
		}
	}
	return all
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
