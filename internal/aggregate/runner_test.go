package aggregate

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsqual.transitlab.cl/internal/feed"
	"gtfsqual.transitlab.cl/internal/frequency"
	"gtfsqual.transitlab.cl/internal/service"
)

func buildRunnerFeed(t *testing.T) *feed.Feed {
	t.Helper()
	rows := feed.Rows{
		Stops: []feed.Row{
			{"stop_id": "s1", "stop_lat": "47.6", "stop_lon": "-122.3"},
			{"stop_id": "s2", "stop_lat": "47.605", "stop_lon": "-122.31"},
		},
		Routes: []feed.Row{
			{"route_id": "r1", "route_type": "3"},
		},
		Trips: []feed.Row{
			{"trip_id": "t1", "route_id": "r1", "service_id": "wk"},
			{"trip_id": "t2", "route_id": "r1", "service_id": "wk"},
			{"trip_id": "t3", "route_id": "r1", "service_id": "wk"},
		},
		StopTimes: []feed.Row{
			{"trip_id": "t1", "stop_id": "s1", "stop_sequence": "1", "arrival_time": "06:05:00", "departure_time": "06:05:00"},
			{"trip_id": "t1", "stop_id": "s2", "stop_sequence": "2", "arrival_time": "06:15:00", "departure_time": "06:15:00"},
			{"trip_id": "t2", "stop_id": "s1", "stop_sequence": "1", "arrival_time": "06:20:00", "departure_time": "06:20:00"},
			{"trip_id": "t2", "stop_id": "s2", "stop_sequence": "2", "arrival_time": "06:30:00", "departure_time": "06:30:00"},
			{"trip_id": "t3", "stop_id": "s1", "stop_sequence": "1", "arrival_time": "06:35:00", "departure_time": "06:35:00"},
			{"trip_id": "t3", "stop_id": "s2", "stop_sequence": "2", "arrival_time": "06:45:00", "departure_time": "06:45:00"},
		},
		Calendar: []feed.Row{
			{
				"service_id": "wk",
				"monday":     "1", "tuesday": "1", "wednesday": "1", "thursday": "1", "friday": "1",
				"saturday": "0", "sunday": "0",
				"start_date": "20260302", "end_date": "20260313",
			},
		},
	}
	f, err := feed.FromRows(rows)
	require.NoError(t, err)
	return f
}

func runnerParams(f *feed.Feed) Params {
	return Params{
		Feed: f,
		Windows: []frequency.Window{
			{Label: "early", Start: 6 * 3600, End: 7 * 3600},
		},
		BufferRadiusMeters: 400,
	}
}

func findFact(t *testing.T, facts []Fact, key Key) Value {
	t.Helper()
	for _, f := range facts {
		if f.Key == key {
			return f.Value
		}
	}
	t.Fatalf("fact %+v not found", key)
	return Value{}
}

func TestRun(t *testing.T) {
	f := buildRunnerFeed(t)

	result, err := Run(runnerParams(f), slog.Default())
	require.NoError(t, err)
	require.NotNil(t, result)

	// Coverage partitions: the whole network plus the bus mode.
	require.Contains(t, result.Regions, SystemEntityID)
	require.Contains(t, result.Regions, "bus")

	area := findFact(t, result.Facts, Key{
		EntityType: EntitySystem, EntityID: SystemEntityID, Metric: MetricCoverageAreaSqm,
	})
	require.True(t, area.Valid)
	assert.Greater(t, area.Float64, 0.0)

	stops := findFact(t, result.Facts, Key{
		EntityType: EntitySystem, EntityID: SystemEntityID, Metric: MetricCoverageStopCount,
	})
	assert.Equal(t, 2.0, stops.Float64)
}

func TestRunRouteFrequency(t *testing.T) {
	f := buildRunnerFeed(t)

	result, err := Run(runnerParams(f), slog.Default())
	require.NoError(t, err)

	base := Key{EntityType: EntityRoute, EntityID: "r1", DayType: service.Weekday, WindowLabel: "early"}

	count := base
	count.Metric = MetricFreqTripCount
	assert.Equal(t, 3.0, findFact(t, result.Facts, count).Float64)

	mean := base
	mean.Metric = MetricFreqMeanHeadwaySecs
	meanValue := findFact(t, result.Facts, mean)
	require.True(t, meanValue.Valid)
	assert.InDelta(t, 1200, meanValue.Float64, 1e-9)

	gap := base
	gap.Metric = MetricFreqMaxGapSecs
	gapValue := findFact(t, result.Facts, gap)
	require.True(t, gapValue.Valid)
	assert.InDelta(t, 1500, gapValue.Float64, 1e-9, "tail gap from 06:35 to 07:00")
}

func TestRunSpanFacts(t *testing.T) {
	f := buildRunnerFeed(t)

	result, err := Run(runnerParams(f), slog.Default())
	require.NoError(t, err)

	first := findFact(t, result.Facts, Key{
		EntityType: EntityRoute, EntityID: "r1", DayType: service.Weekday, Metric: MetricSpanFirstSecs,
	})
	require.True(t, first.Valid)
	assert.Equal(t, float64(6*3600+300), first.Float64)

	last := findFact(t, result.Facts, Key{
		EntityType: EntityRoute, EntityID: "r1", DayType: service.Weekday, Metric: MetricSpanLastSecs,
	})
	assert.Equal(t, float64(6*3600+45*60), last.Float64)

	// The feed has no saturday service, so saturday span facts exist but
	// carry no value.
	saturday := findFact(t, result.Facts, Key{
		EntityType: EntityRoute, EntityID: "r1", DayType: service.Saturday, Metric: MetricSpanDurationSecs,
	})
	assert.False(t, saturday.Valid)
}

func TestRunDeterministic(t *testing.T) {
	f := buildRunnerFeed(t)

	first, err := Run(runnerParams(f), slog.Default())
	require.NoError(t, err)
	second, err := Run(runnerParams(f), slog.Default())
	require.NoError(t, err)

	if diff := cmp.Diff(first.Facts, second.Facts); diff != "" {
		t.Errorf("facts differ between identical runs (-first +second):\n%s", diff)
	}
}

func TestRunRejectsBadWindows(t *testing.T) {
	f := buildRunnerFeed(t)
	params := runnerParams(f)
	params.Windows = []frequency.Window{
		{Label: "a", Start: 0, End: 7200},
		{Label: "b", Start: 3600, End: 10800},
	}

	_, err := Run(params, slog.Default())
	assert.Error(t, err)
}

func TestRunNoCalendarNoRange(t *testing.T) {
	f := buildRunnerFeed(t)
	params := runnerParams(f)
	// Force an empty resolution range by zeroing both bounds on a feed
	// whose calendars are intact; the calendar range fills them in.
	params.StartDate = time.Time{}
	params.EndDate = time.Time{}

	result, err := Run(params, slog.Default())
	require.NoError(t, err)
	assert.NotEmpty(t, result.Facts)
}
