// Package feed is the typed in-memory model of the GTFS relations the
// metrics engines consume. A Feed is constructed once per run, validated for
// referential integrity at construction, and never mutated afterwards.
package feed

import (
	"time"
)

// Mode is the transit mode of a route, collapsed from the GTFS route_type
// code space.
type Mode int

const (
	ModeBus Mode = iota
	ModeRail
	ModeSubway
	ModeTram
	ModeFerry
	ModeOther
)

// NewMode maps a GTFS route_type code onto a Mode. Extended route type codes
// (and anything unrecognized) collapse to ModeOther.
func NewMode(routeType int) Mode {
	switch routeType {
	case 0:
		return ModeTram
	case 1:
		return ModeSubway
	case 2:
		return ModeRail
	case 3:
		return ModeBus
	case 4:
		return ModeFerry
	default:
		return ModeOther
	}
}

func (m Mode) String() string {
	switch m {
	case ModeBus:
		return "bus"
	case ModeRail:
		return "rail"
	case ModeSubway:
		return "subway"
	case ModeTram:
		return "tram"
	case ModeFerry:
		return "ferry"
	}
	return "other"
}

// Stop is a boarding location. ParentID is a weak reference by id and may
// name a station that is itself a stop in the feed.
type Stop struct {
	ID       string
	Name     string
	Lat      float64
	Lon      float64
	ParentID string
}

type Route struct {
	ID        string
	ShortName string
	LongName  string
	Mode      Mode
}

// StopTime is one scheduled call of a trip at a stop. Arrival and Departure
// are seconds since the service-day's nominal midnight and may exceed 86400
// for post-midnight service.
type StopTime struct {
	StopID    string
	Arrival   int
	Departure int
	Sequence  int
}

// Trip belongs to exactly one route and one service id. StopTimes are
// ordered by strictly increasing Sequence.
type Trip struct {
	ID        string
	RouteID   string
	ServiceID string
	ShapeID   string
	StopTimes []StopTime
}

// Calendar is one service id's weekday pattern, validity range, and
// exception dates merged from calendar_dates.
type Calendar struct {
	ServiceID string
	// Weekdays is indexed by time.Weekday (Sunday == 0).
	Weekdays [7]bool
	Start    time.Time
	End      time.Time
	Added    []time.Time
	Removed  []time.Time
}

type ShapePoint struct {
	Lat float64
	Lon float64
}

type Shape struct {
	ID     string
	Points []ShapePoint
}

// Feed is the immutable snapshot all engines read from.
type Feed struct {
	Stops     []Stop
	Routes    []Route
	Trips     []Trip
	Calendars []Calendar
	Shapes    []Shape

	stopIndex    map[string]int
	routeIndex   map[string]int
	serviceIndex map[string]int
	tripsByRoute map[string][]int
}

func (f *Feed) buildIndexes() {
	f.stopIndex = make(map[string]int, len(f.Stops))
	for i := range f.Stops {
		f.stopIndex[f.Stops[i].ID] = i
	}
	f.routeIndex = make(map[string]int, len(f.Routes))
	for i := range f.Routes {
		f.routeIndex[f.Routes[i].ID] = i
	}
	f.serviceIndex = make(map[string]int, len(f.Calendars))
	for i := range f.Calendars {
		f.serviceIndex[f.Calendars[i].ServiceID] = i
	}
	f.tripsByRoute = make(map[string][]int)
	for i := range f.Trips {
		routeID := f.Trips[i].RouteID
		f.tripsByRoute[routeID] = append(f.tripsByRoute[routeID], i)
	}
}

// StopByID returns the stop with the given id.
func (f *Feed) StopByID(id string) (*Stop, bool) {
	i, ok := f.stopIndex[id]
	if !ok {
		return nil, false
	}
	return &f.Stops[i], true
}

// RouteByID returns the route with the given id.
func (f *Feed) RouteByID(id string) (*Route, bool) {
	i, ok := f.routeIndex[id]
	if !ok {
		return nil, false
	}
	return &f.Routes[i], true
}

// CalendarByServiceID returns the merged calendar for a service id.
func (f *Feed) CalendarByServiceID(id string) (*Calendar, bool) {
	i, ok := f.serviceIndex[id]
	if !ok {
		return nil, false
	}
	return &f.Calendars[i], true
}

// TripsForRoute returns the trips owned by a route, in feed order.
func (f *Feed) TripsForRoute(routeID string) []*Trip {
	indexes := f.tripsByRoute[routeID]
	trips := make([]*Trip, len(indexes))
	for i, idx := range indexes {
		trips[i] = &f.Trips[idx]
	}
	return trips
}

// ShapeByID returns the shape with the given id, if shapes were provided.
func (f *Feed) ShapeByID(id string) (*Shape, bool) {
	for i := range f.Shapes {
		if f.Shapes[i].ID == id {
			return &f.Shapes[i], true
		}
	}
	return nil, false
}

// CalendarRange returns the earliest start and latest end across all
// calendars, the natural default bounds for service-day resolution.
func (f *Feed) CalendarRange() (start, end time.Time) {
	for i := range f.Calendars {
		c := &f.Calendars[i]
		if start.IsZero() || c.Start.Before(start) {
			start = c.Start
		}
		if end.IsZero() || c.End.After(end) {
			end = c.End
		}
		for _, d := range c.Added {
			if start.IsZero() || d.Before(start) {
				start = d
			}
			if end.IsZero() || d.After(end) {
				end = d
			}
		}
	}
	return start, end
}

// validate enforces the cross-relation invariants that must hold before any
// engine runs: every trip names a known route and service id, and every stop
// time names a known stop.
func (f *Feed) validate() error {
	for i := range f.Trips {
		t := &f.Trips[i]
		if _, ok := f.routeIndex[t.RouteID]; !ok {
			return &ReferentialIntegrityError{Relation: "trips", Ref: "route", ID: t.RouteID}
		}
		if _, ok := f.serviceIndex[t.ServiceID]; !ok {
			return &ReferentialIntegrityError{Relation: "trips", Ref: "service", ID: t.ServiceID}
		}
		for j := range t.StopTimes {
			st := &t.StopTimes[j]
			if _, ok := f.stopIndex[st.StopID]; !ok {
				return &ReferentialIntegrityError{Relation: "stop_times", Ref: "stop", ID: st.StopID}
			}
			if j > 0 && st.Sequence <= t.StopTimes[j-1].Sequence {
				return &SchemaError{Relation: "stop_times", Column: "stop_sequence",
					Reason: "sequence indices must be strictly increasing within trip " + t.ID}
			}
			if st.Departure < st.Arrival {
				return &SchemaError{Relation: "stop_times", Column: "departure_time",
					Reason: "departure before arrival at stop " + st.StopID + " of trip " + t.ID}
			}
		}
	}
	return nil
}
