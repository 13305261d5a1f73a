package aggregate

import (
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"gtfsqual.transitlab.cl/internal/coverage"
	"gtfsqual.transitlab.cl/internal/feed"
	"gtfsqual.transitlab.cl/internal/frequency"
	"gtfsqual.transitlab.cl/internal/logging"
	"gtfsqual.transitlab.cl/internal/service"
	"gtfsqual.transitlab.cl/internal/span"
)

// Metric names as they appear in the fact table and the metrics database.
const (
	MetricCoverageAreaSqm     = "coverage_area_sqm"
	MetricCoverageStopCount   = "coverage_stop_count"
	MetricCoveragePopulation  = "coverage_population_pct"
	MetricSpanFirstSecs       = "span_first_secs"
	MetricSpanLastSecs        = "span_last_secs"
	MetricSpanDurationSecs    = "span_duration_secs"
	MetricFreqTripCount       = "freq_trip_count"
	MetricFreqMeanHeadwaySecs = "freq_mean_headway_secs"
	MetricFreqMaxGapSecs      = "freq_max_gap_secs"
)

// SystemEntityID is the entity id used for feed-wide coverage facts.
const SystemEntityID = "all"

// Params configures one aggregation run over an immutable feed snapshot.
type Params struct {
	Feed               *feed.Feed
	StartDate          time.Time
	EndDate            time.Time
	DayTypePolicy      *service.DayTypePolicy
	Windows            []frequency.Window
	BufferRadiusMeters float64

	// PopulationPoints, when non-empty, enables population-weighted
	// coverage for every computed region.
	PopulationPoints []coverage.WeightedPoint

	// Workers bounds engine parallelism. Zero means GOMAXPROCS.
	Workers int
}

// Result is the atomic output of a successful run. A failed run exposes
// nothing.
type Result struct {
	Facts   []Fact
	Regions map[string]*coverage.Region
}

// Run executes the full pipeline: service-day resolution, coverage
// partitions, and per-entity span and frequency metrics. Engines run
// concurrently over disjoint keys; the first error aborts the run and no
// partial output is returned.
func Run(params Params, logger *slog.Logger) (*Result, error) {
	if params.Feed == nil {
		return nil, fmt.Errorf("aggregate: nil feed")
	}
	if err := frequency.ValidateWindows(params.Windows); err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	policy := service.DefaultDayTypePolicy()
	if params.DayTypePolicy != nil {
		policy = *params.DayTypePolicy
	}

	start, end := params.StartDate, params.EndDate
	if start.IsZero() || end.IsZero() {
		calStart, calEnd := params.Feed.CalendarRange()
		if start.IsZero() {
			start = calStart
		}
		if end.IsZero() {
			end = calEnd
		}
		if start.IsZero() || end.IsZero() {
			return nil, fmt.Errorf("aggregate: feed has no calendar entries and no date range was configured")
		}
	}

	logging.LogOperation(logger, "aggregation run",
		slog.Time("start_date", start),
		slog.Time("end_date", end),
		slog.Int("windows", len(params.Windows)))

	daySets := service.Resolve(params.Feed.Calendars, start, end)
	servicesByDayType := activeServicesByDayType(daySets, policy)

	collection := NewCollection()
	pool := newWorkerPool(params.Workers)

	regions := make(map[string]*coverage.Region)
	var regionsMu sync.Mutex

	// Coverage partitions: the whole network plus one region per mode.
	coverageJobs := coveragePartitions(params.Feed)
	for _, job := range coverageJobs {
		job := job
		pool.submit(func() error {
			stops := coverage.SelectStops(params.Feed, job.filter)
			region, err := coverage.Compute(job.label, stops, params.BufferRadiusMeters)
			if err != nil {
				return fmt.Errorf("coverage %q: %w", job.label, err)
			}
			regionsMu.Lock()
			regions[job.label] = region
			regionsMu.Unlock()
			return putCoverageFacts(collection, job.label, region, params.PopulationPoints)
		})
	}

	// Span and frequency per (entity, day-type). Stops use departures at
	// the stop; routes use trip-start departures.
	for dayType, active := range servicesByDayType {
		dayType, active := dayType, active
		for _, stop := range params.Feed.Stops {
			stopID := stop.ID
			pool.submit(func() error {
				return putEntityFacts(collection, params.Feed, EntityStop, stopID, dayType, active, params.Windows)
			})
		}
		for _, route := range params.Feed.Routes {
			routeID := route.ID
			pool.submit(func() error {
				return putEntityFacts(collection, params.Feed, EntityRoute, routeID, dayType, active, params.Windows)
			})
		}
	}

	if err := pool.wait(); err != nil {
		logging.LogError(logger, "aggregation run failed", err)
		return nil, err
	}

	facts := collection.Facts()
	logging.LogOperation(logger, "aggregation run complete",
		slog.Int("facts", len(facts)),
		slog.Int("regions", len(regions)))
	return &Result{Facts: facts, Regions: regions}, nil
}

// activeServicesByDayType buckets each resolved service day by the policy
// and unions the services active on any date in the bucket. Dates the
// policy does not map are excluded, not errored.
func activeServicesByDayType(daySets service.ServiceDaySet, policy service.DayTypePolicy) map[service.DayType]map[string]bool {
	out := make(map[service.DayType]map[string]bool)
	for _, dayType := range policy.Buckets() {
		out[dayType] = make(map[string]bool)
	}
	for serviceID, dates := range daySets {
		for date := range dates {
			dayType, ok := policy.Classify(date)
			if !ok {
				continue
			}
			out[dayType][serviceID] = true
		}
	}
	return out
}

type coverageJob struct {
	label  string
	filter coverage.Filter
}

func coveragePartitions(f *feed.Feed) []coverageJob {
	jobs := []coverageJob{{label: SystemEntityID}}
	seen := make(map[feed.Mode]bool)
	for _, route := range f.Routes {
		if seen[route.Mode] {
			continue
		}
		seen[route.Mode] = true
		jobs = append(jobs, coverageJob{
			label:  route.Mode.String(),
			filter: coverage.Filter{Modes: []feed.Mode{route.Mode}},
		})
	}
	sort.Slice(jobs[1:], func(i, j int) bool { return jobs[1+i].label < jobs[1+j].label })
	return jobs
}

func putCoverageFacts(c *Collection, label string, region *coverage.Region, population []coverage.WeightedPoint) error {
	key := Key{EntityType: EntitySystem, EntityID: label, Metric: MetricCoverageAreaSqm}
	if err := c.Put(key, Some(region.Area())); err != nil {
		return err
	}
	key.Metric = MetricCoverageStopCount
	if err := c.Put(key, Some(float64(region.StopCount))); err != nil {
		return err
	}
	if len(population) > 0 {
		covered, total := region.WeightedCoverage(population)
		key.Metric = MetricCoveragePopulation
		value := Unavailable()
		if total > 0 {
			value = Some(100 * covered / total)
		}
		if err := c.Put(key, value); err != nil {
			return err
		}
	}
	return nil
}

func putEntityFacts(c *Collection, f *feed.Feed, entityType EntityType, entityID string, dayType service.DayType, active map[string]bool, windows []frequency.Window) error {
	var (
		sp         span.Span
		ok         bool
		departures []int
	)
	switch entityType {
	case EntityStop:
		sp, ok = span.ForStop(f, entityID, active)
		departures = stopDepartures(f, entityID, active)
	case EntityRoute:
		sp, ok = span.ForRoute(f, entityID, active)
		departures = tripStartDepartures(f, entityID, active)
	default:
		return fmt.Errorf("aggregate: unsupported entity type %q", entityType)
	}

	key := Key{EntityType: entityType, EntityID: entityID, DayType: dayType}

	key.Metric = MetricSpanFirstSecs
	if err := c.Put(key, spanValue(float64(sp.First), ok)); err != nil {
		return err
	}
	key.Metric = MetricSpanLastSecs
	if err := c.Put(key, spanValue(float64(sp.Last), ok)); err != nil {
		return err
	}
	key.Metric = MetricSpanDurationSecs
	if err := c.Put(key, spanValue(float64(sp.Duration()), ok)); err != nil {
		return err
	}

	for _, stats := range frequency.Headways(departures, windows) {
		key.WindowLabel = stats.Window.Label
		key.Metric = MetricFreqTripCount
		if err := c.Put(key, Some(float64(stats.TripCount))); err != nil {
			return err
		}
		key.Metric = MetricFreqMeanHeadwaySecs
		if err := c.Put(key, floatValue(stats.MeanHeadway)); err != nil {
			return err
		}
		key.Metric = MetricFreqMaxGapSecs
		if err := c.Put(key, floatValue(stats.MaxGap)); err != nil {
			return err
		}
	}
	return nil
}

func spanValue(v float64, ok bool) Value {
	if !ok {
		return Unavailable()
	}
	return Some(v)
}

func floatValue(v *float64) Value {
	if v == nil {
		return Unavailable()
	}
	return Some(*v)
}

// stopDepartures collects every departure offset at the stop across trips
// whose service is active in the bucket.
func stopDepartures(f *feed.Feed, stopID string, active map[string]bool) []int {
	var out []int
	for _, trip := range f.Trips {
		if !active[trip.ServiceID] {
			continue
		}
		for _, st := range trip.StopTimes {
			if st.StopID == stopID {
				out = append(out, st.Departure)
			}
		}
	}
	return out
}

// tripStartDepartures collects the first-stop departure of each active trip
// on the route.
func tripStartDepartures(f *feed.Feed, routeID string, active map[string]bool) []int {
	var out []int
	for _, trip := range f.TripsForRoute(routeID) {
		if !active[trip.ServiceID] || len(trip.StopTimes) == 0 {
			continue
		}
		out = append(out, trip.StopTimes[0].Departure)
	}
	return out
}

// workerPool runs submitted jobs on a fixed number of goroutines and keeps
// the first error.
type workerPool struct {
	jobs chan func() error
	wg   sync.WaitGroup

	mu  sync.Mutex
	err error
}

func newWorkerPool(workers int) *workerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &workerPool{jobs: make(chan func() error, workers)}
	for i := 0; i < workers; i++ {
		go func() {
			for job := range p.jobs {
				if err := job(); err != nil {
					p.mu.Lock()
					if p.err == nil {
						p.err = err
					}
					p.mu.Unlock()
				}
				p.wg.Done()
			}
		}()
	}
	return p
}

func (p *workerPool) submit(job func() error) {
	p.wg.Add(1)
	p.jobs <- job
}

func (p *workerPool) wait() error {
	p.wg.Wait()
	close(p.jobs)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
