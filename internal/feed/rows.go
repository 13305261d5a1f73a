package feed

import (
	"sort"
	"strconv"
	"time"

	"gtfsqual.transitlab.cl/internal/gtfstime"
)

// Row is one parsed tabular record: column name to raw text value, as
// delivered by the ingestion boundary.
type Row map[string]string

// Rows carries the parsed relations of one GTFS feed. Shapes and
// CalendarDates may be nil; the other relations are required.
type Rows struct {
	Stops         []Row
	Routes        []Row
	Trips         []Row
	StopTimes     []Row
	Calendar      []Row
	CalendarDates []Row
	Shapes        []Row
}

// FromRows constructs a validated Feed from parsed relation rows. It fails
// on the first violation: construction is all-or-nothing, so a returned Feed
// always satisfies the model invariants.
func FromRows(rows Rows) (*Feed, error) {
	for _, required := range []struct {
		name string
		rows []Row
	}{
		{"stops", rows.Stops},
		{"routes", rows.Routes},
		{"trips", rows.Trips},
		{"stop_times", rows.StopTimes},
		{"calendar", rows.Calendar},
	} {
		if required.rows == nil {
			return nil, &ReferentialIntegrityError{Relation: required.name}
		}
	}

	f := &Feed{}
	var err error
	if f.Stops, err = parseStops(rows.Stops); err != nil {
		return nil, err
	}
	if f.Routes, err = parseRoutes(rows.Routes); err != nil {
		return nil, err
	}
	if f.Calendars, err = parseCalendars(rows.Calendar, rows.CalendarDates); err != nil {
		return nil, err
	}
	if f.Trips, err = parseTrips(rows.Trips, rows.StopTimes); err != nil {
		return nil, err
	}
	if f.Shapes, err = parseShapes(rows.Shapes); err != nil {
		return nil, err
	}

	f.buildIndexes()
	if err := f.validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func requireColumn(relation string, row Row, column string) (string, error) {
	v, ok := row[column]
	if !ok {
		return "", &SchemaError{Relation: relation, Column: column, Reason: "required column missing"}
	}
	return v, nil
}

func requireFloat(relation string, row Row, column string) (float64, error) {
	raw, err := requireColumn(relation, row, column)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &SchemaError{Relation: relation, Column: column, Value: raw, Reason: "not a number"}
	}
	return v, nil
}

func requireInt(relation string, row Row, column string) (int, error) {
	raw, err := requireColumn(relation, row, column)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &SchemaError{Relation: relation, Column: column, Value: raw, Reason: "not an integer"}
	}
	return v, nil
}

func parseStops(rows []Row) ([]Stop, error) {
	stops := make([]Stop, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		id, err := requireColumn("stops", row, "stop_id")
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, &SchemaError{Relation: "stops", Column: "stop_id", Value: id, Reason: "duplicate identifier"}
		}
		seen[id] = true

		lat, err := requireFloat("stops", row, "stop_lat")
		if err != nil {
			return nil, err
		}
		lon, err := requireFloat("stops", row, "stop_lon")
		if err != nil {
			return nil, err
		}
		if lat < -90 || lat > 90 {
			return nil, &SchemaError{Relation: "stops", Column: "stop_lat", Value: row["stop_lat"], Reason: "latitude out of range"}
		}
		if lon < -180 || lon > 180 {
			return nil, &SchemaError{Relation: "stops", Column: "stop_lon", Value: row["stop_lon"], Reason: "longitude out of range"}
		}

		stops = append(stops, Stop{
			ID:       id,
			Name:     row["stop_name"],
			Lat:      lat,
			Lon:      lon,
			ParentID: row["parent_station"],
		})
	}
	return stops, nil
}

func parseRoutes(rows []Row) ([]Route, error) {
	routes := make([]Route, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		id, err := requireColumn("routes", row, "route_id")
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, &SchemaError{Relation: "routes", Column: "route_id", Value: id, Reason: "duplicate identifier"}
		}
		seen[id] = true

		routeType, err := requireInt("routes", row, "route_type")
		if err != nil {
			return nil, err
		}

		routes = append(routes, Route{
			ID:        id,
			ShortName: row["route_short_name"],
			LongName:  row["route_long_name"],
			Mode:      NewMode(routeType),
		})
	}
	return routes, nil
}

func parseCalendars(calendarRows, exceptionRows []Row) ([]Calendar, error) {
	weekdayColumns := [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

	calendars := make([]Calendar, 0, len(calendarRows))
	index := make(map[string]int, len(calendarRows))
	for _, row := range calendarRows {
		id, err := requireColumn("calendar", row, "service_id")
		if err != nil {
			return nil, err
		}
		if _, dup := index[id]; dup {
			return nil, &SchemaError{Relation: "calendar", Column: "service_id", Value: id, Reason: "duplicate identifier"}
		}

		cal := Calendar{ServiceID: id}
		for day := time.Sunday; day <= time.Saturday; day++ {
			flag, err := requireInt("calendar", row, weekdayColumns[day])
			if err != nil {
				return nil, err
			}
			cal.Weekdays[day] = flag == 1
		}

		if cal.Start, err = requireDate("calendar", row, "start_date"); err != nil {
			return nil, err
		}
		if cal.End, err = requireDate("calendar", row, "end_date"); err != nil {
			return nil, err
		}

		index[id] = len(calendars)
		calendars = append(calendars, cal)
	}

	for _, row := range exceptionRows {
		id, err := requireColumn("calendar_dates", row, "service_id")
		if err != nil {
			return nil, err
		}
		date, err := requireDate("calendar_dates", row, "date")
		if err != nil {
			return nil, err
		}
		exceptionType, err := requireInt("calendar_dates", row, "exception_type")
		if err != nil {
			return nil, err
		}

		// A service id appearing only in calendar_dates gets a calendar with
		// no weekday pattern; its added dates define it entirely.
		i, ok := index[id]
		if !ok {
			index[id] = len(calendars)
			i = len(calendars)
			calendars = append(calendars, Calendar{ServiceID: id, Start: date, End: date})
		}

		switch exceptionType {
		case 1:
			calendars[i].Added = append(calendars[i].Added, date)
		case 2:
			calendars[i].Removed = append(calendars[i].Removed, date)
		default:
			return nil, &SchemaError{Relation: "calendar_dates", Column: "exception_type",
				Value: row["exception_type"], Reason: "must be 1 (added) or 2 (removed)"}
		}
	}

	return calendars, nil
}

func requireDate(relation string, row Row, column string) (time.Time, error) {
	raw, err := requireColumn(relation, row, column)
	if err != nil {
		return time.Time{}, err
	}
	t, err := gtfstime.ParseDate(raw)
	if err != nil {
		return time.Time{}, &SchemaError{Relation: relation, Column: column, Value: raw, Reason: "not a YYYYMMDD date"}
	}
	return t, nil
}

func parseTrips(tripRows, stopTimeRows []Row) ([]Trip, error) {
	trips := make([]Trip, 0, len(tripRows))
	index := make(map[string]int, len(tripRows))
	for _, row := range tripRows {
		id, err := requireColumn("trips", row, "trip_id")
		if err != nil {
			return nil, err
		}
		if _, dup := index[id]; dup {
			return nil, &SchemaError{Relation: "trips", Column: "trip_id", Value: id, Reason: "duplicate identifier"}
		}
		routeID, err := requireColumn("trips", row, "route_id")
		if err != nil {
			return nil, err
		}
		serviceID, err := requireColumn("trips", row, "service_id")
		if err != nil {
			return nil, err
		}

		index[id] = len(trips)
		trips = append(trips, Trip{ID: id, RouteID: routeID, ServiceID: serviceID, ShapeID: row["shape_id"]})
	}

	for _, row := range stopTimeRows {
		tripID, err := requireColumn("stop_times", row, "trip_id")
		if err != nil {
			return nil, err
		}
		i, ok := index[tripID]
		if !ok {
			return nil, &ReferentialIntegrityError{Relation: "stop_times", Ref: "trip", ID: tripID}
		}

		stopID, err := requireColumn("stop_times", row, "stop_id")
		if err != nil {
			return nil, err
		}
		sequence, err := requireInt("stop_times", row, "stop_sequence")
		if err != nil {
			return nil, err
		}
		arrival, err := requireOffset(row, "arrival_time")
		if err != nil {
			return nil, err
		}
		departure, err := requireOffset(row, "departure_time")
		if err != nil {
			return nil, err
		}

		trips[i].StopTimes = append(trips[i].StopTimes, StopTime{
			StopID:    stopID,
			Arrival:   arrival,
			Departure: departure,
			Sequence:  sequence,
		})
	}

	// Feeds do not guarantee stop_times row order; the model does.
	for i := range trips {
		sort.Slice(trips[i].StopTimes, func(a, b int) bool {
			return trips[i].StopTimes[a].Sequence < trips[i].StopTimes[b].Sequence
		})
	}
	return trips, nil
}

func requireOffset(row Row, column string) (int, error) {
	raw, err := requireColumn("stop_times", row, column)
	if err != nil {
		return 0, err
	}
	offset, err := gtfstime.ParseOffset(raw)
	if err != nil {
		// Surfaced as-is: the caller distinguishes malformed clock text from
		// structural schema problems.
		return 0, err
	}
	return offset, nil
}

func parseShapes(rows []Row) ([]Shape, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	type point struct {
		sequence int
		pt       ShapePoint
	}
	grouped := make(map[string][]point)
	var order []string
	for _, row := range rows {
		id, err := requireColumn("shapes", row, "shape_id")
		if err != nil {
			return nil, err
		}
		lat, err := requireFloat("shapes", row, "shape_pt_lat")
		if err != nil {
			return nil, err
		}
		lon, err := requireFloat("shapes", row, "shape_pt_lon")
		if err != nil {
			return nil, err
		}
		sequence, err := requireInt("shapes", row, "shape_pt_sequence")
		if err != nil {
			return nil, err
		}
		if _, ok := grouped[id]; !ok {
			order = append(order, id)
		}
		grouped[id] = append(grouped[id], point{sequence: sequence, pt: ShapePoint{Lat: lat, Lon: lon}})
	}

	shapes := make([]Shape, 0, len(grouped))
	for _, id := range order {
		points := grouped[id]
		sort.Slice(points, func(a, b int) bool { return points[a].sequence < points[b].sequence })
		shape := Shape{ID: id, Points: make([]ShapePoint, len(points))}
		for i, p := range points {
			shape.Points[i] = p.pt
		}
		shapes = append(shapes, shape)
	}
	return shapes, nil
}
