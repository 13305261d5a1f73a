// Package span computes first/last service times per stop or route.
package span

import (
	"gtfsqual.transitlab.cl/internal/feed"
)

// Span is a service span in the unbounded offset space: First is the
// earliest departure, Last the latest arrival. Both may exceed 86400 for
// post-midnight service and must stay that way so durations compare
// correctly across midnight.
type Span struct {
	First int
	Last  int
}

// Duration is Last - First in seconds, floored at zero. Zero is a valid
// outcome for a single-departure service, and also for a single dwell-only
// visit, where the only departure falls after the only arrival and the raw
// difference would go negative.
func (s Span) Duration() int {
	if s.Last < s.First {
		return 0
	}
	return s.Last - s.First
}

func (s *Span) observe(arrival, departure int, seeded *bool) {
	if !*seeded {
		s.First = departure
		s.Last = arrival
		*seeded = true
		return
	}
	if departure < s.First {
		s.First = departure
	}
	if arrival > s.Last {
		s.Last = arrival
	}
}

// ForStop computes the span over all stop times at the given stop belonging
// to trips whose service id is in activeServices. The second return is
// false when no trip matches: "no data" is distinguishable from a
// zero-duration span.
func ForStop(f *feed.Feed, stopID string, activeServices map[string]bool) (Span, bool) {
	var s Span
	seeded := false
	for i := range f.Trips {
		t := &f.Trips[i]
		if !activeServices[t.ServiceID] {
			continue
		}
		for j := range t.StopTimes {
			st := &t.StopTimes[j]
			if st.StopID != stopID {
				continue
			}
			s.observe(st.Arrival, st.Departure, &seeded)
		}
	}
	return s, seeded
}

// ForRoute computes the span over all stop times of the route's trips whose
// service id is in activeServices.
func ForRoute(f *feed.Feed, routeID string, activeServices map[string]bool) (Span, bool) {
	var s Span
	seeded := false
	for _, t := range f.TripsForRoute(routeID) {
		if !activeServices[t.ServiceID] {
			continue
		}
		for j := range t.StopTimes {
			st := &t.StopTimes[j]
			s.observe(st.Arrival, st.Departure, &seeded)
		}
	}
	return s, seeded
}
