package service

import (
	"sort"
	"time"
)

// DayType is an aggregation bucket over calendar dates. It is a policy
// choice, not something intrinsic to the feed.
type DayType string

const (
	Weekday  DayType = "weekday"
	Saturday DayType = "saturday"
	Sunday   DayType = "sunday"
)

// DayTypePolicy classifies calendar dates into the configured buckets.
// Dates that map to no configured bucket are excluded from aggregation, not
// errored.
type DayTypePolicy struct {
	buckets map[DayType]bool
}

// NewDayTypePolicy builds a policy restricted to the given buckets. Bucket
// names beyond weekday/saturday/sunday are accepted but never matched by
// Classify; they exist so callers can carry custom labels through
// configuration unchanged.
func NewDayTypePolicy(buckets []DayType) DayTypePolicy {
	m := make(map[DayType]bool, len(buckets))
	for _, b := range buckets {
		m[b] = true
	}
	return DayTypePolicy{buckets: m}
}

// DefaultDayTypePolicy uses the weekday/saturday/sunday buckets.
func DefaultDayTypePolicy() DayTypePolicy {
	return NewDayTypePolicy([]DayType{Weekday, Saturday, Sunday})
}

// Buckets returns the configured bucket labels in a fixed order.
func (p DayTypePolicy) Buckets() []DayType {
	ordered := make([]DayType, 0, len(p.buckets))
	for _, b := range []DayType{Weekday, Saturday, Sunday} {
		if p.buckets[b] {
			ordered = append(ordered, b)
		}
	}
	var custom []DayType
	for b := range p.buckets {
		if b != Weekday && b != Saturday && b != Sunday {
			custom = append(custom, b)
		}
	}
	sort.Slice(custom, func(i, j int) bool { return custom[i] < custom[j] })
	return append(ordered, custom...)
}

// Classify maps a calendar date to its bucket. The second return is false
// when the date belongs to no configured bucket.
func (p DayTypePolicy) Classify(date time.Time) (DayType, bool) {
	var bucket DayType
	switch date.Weekday() {
	case time.Saturday:
		bucket = Saturday
	case time.Sunday:
		bucket = Sunday
	default:
		bucket = Weekday
	}
	if !p.buckets[bucket] {
		return "", false
	}
	return bucket, true
}

// DatesFor filters a date set down to the dates classified into the given
// bucket.
func (p DayTypePolicy) DatesFor(dayType DayType, dates DaySet) DaySet {
	filtered := make(DaySet)
	for d := range dates {
		if bucket, ok := p.Classify(d); ok && bucket == dayType {
			filtered[d] = struct{}{}
		}
	}
	return filtered
}
