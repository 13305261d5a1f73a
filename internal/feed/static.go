package feed

import (
	"time"

	"github.com/OneBusAway/go-gtfs"
)

// FromStatic adapts an already-parsed gtfs.Static into the metrics Feed
// model, running the same integrity validation as FromRows. Stops without
// coordinates (generic nodes, boarding areas) are skipped, along with the
// stop times that call at them.
func FromStatic(static *gtfs.Static) (*Feed, error) {
	f := &Feed{}

	skipped := make(map[string]bool)
	for _, s := range static.Stops {
		if s.Latitude == nil || s.Longitude == nil {
			skipped[s.Id] = true
			continue
		}
		parentID := ""
		if s.Parent != nil {
			parentID = s.Parent.Id
		}
		f.Stops = append(f.Stops, Stop{
			ID:       s.Id,
			Name:     s.Name,
			Lat:      *s.Latitude,
			Lon:      *s.Longitude,
			ParentID: parentID,
		})
	}

	for _, r := range static.Routes {
		f.Routes = append(f.Routes, Route{
			ID:        r.Id,
			ShortName: r.ShortName,
			LongName:  r.LongName,
			Mode:      NewMode(int(r.Type)),
		})
	}

	for _, s := range static.Services {
		cal := Calendar{
			ServiceID: s.Id,
			Start:     dateOnly(s.StartDate),
			End:       dateOnly(s.EndDate),
		}
		cal.Weekdays[time.Monday] = s.Monday
		cal.Weekdays[time.Tuesday] = s.Tuesday
		cal.Weekdays[time.Wednesday] = s.Wednesday
		cal.Weekdays[time.Thursday] = s.Thursday
		cal.Weekdays[time.Friday] = s.Friday
		cal.Weekdays[time.Saturday] = s.Saturday
		cal.Weekdays[time.Sunday] = s.Sunday
		for _, d := range s.AddedDates {
			cal.Added = append(cal.Added, dateOnly(d))
		}
		for _, d := range s.RemovedDates {
			cal.Removed = append(cal.Removed, dateOnly(d))
		}
		f.Calendars = append(f.Calendars, cal)
	}

	for _, t := range static.Trips {
		shapeID := ""
		if t.Shape != nil {
			shapeID = t.Shape.ID
		}
		trip := Trip{
			ID:        t.ID,
			RouteID:   t.Route.Id,
			ServiceID: t.Service.Id,
			ShapeID:   shapeID,
		}
		for _, st := range t.StopTimes {
			if skipped[st.Stop.Id] {
				continue
			}
			trip.StopTimes = append(trip.StopTimes, StopTime{
				StopID:    st.Stop.Id,
				Arrival:   int(st.ArrivalTime / time.Second),
				Departure: int(st.DepartureTime / time.Second),
				Sequence:  st.StopSequence,
			})
		}
		f.Trips = append(f.Trips, trip)
	}

	for _, s := range static.Shapes {
		shape := Shape{ID: s.ID, Points: make([]ShapePoint, len(s.Points))}
		for i, pt := range s.Points {
			shape.Points[i] = ShapePoint{Lat: pt.Latitude, Lon: pt.Longitude}
		}
		f.Shapes = append(f.Shapes, shape)
	}

	f.buildIndexes()
	if err := f.validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// dateOnly strips any time-of-day component so calendar dates compare as
// pure UTC dates.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
