// Package metrics provides Prometheus metrics for the gtfsqual application.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// Aggregation run metrics
	RunsTotal     *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	FactsComputed prometheus.Gauge

	// Feed snapshot metrics
	FeedStops  prometheus.Gauge
	FeedRoutes prometheus.Gauge
	FeedTrips  prometheus.Gauge

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
	DBWaitSecondsTotal prometheus.Counter

	// logger for error reporting
	logger *slog.Logger

	// collectorStarted prevents spawning multiple collector goroutines
	collectorStarted atomic.Bool

	// cancel stops the DB stats collector goroutine
	cancel context.CancelFunc

	// wg tracks the DB stats collector goroutine for graceful shutdown
	wg sync.WaitGroup
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gtfsqual_runs_total",
			Help: "Total number of aggregation runs by outcome",
		},
		[]string{"status"},
	)

	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gtfsqual_run_duration_seconds",
		Help:    "Aggregation run latency distribution",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	factsComputed := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gtfsqual_facts_computed",
		Help: "Number of metric facts produced by the most recent run",
	})

	feedStops := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gtfsqual_feed_stops",
		Help: "Number of stops in the current feed snapshot",
	})

	feedRoutes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gtfsqual_feed_routes",
		Help: "Number of routes in the current feed snapshot",
	})

	feedTrips := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gtfsqual_feed_trips",
		Help: "Number of trips in the current feed snapshot",
	})

	dbConnectionsOpen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gtfsqual_db_connections_open",
		Help: "Number of open database connections",
	})

	dbConnectionsInUse := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gtfsqual_db_connections_in_use",
		Help: "Number of database connections currently in use",
	})

	dbConnectionsIdle := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gtfsqual_db_connections_idle",
		Help: "Number of idle database connections",
	})

	dbWaitSecondsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gtfsqual_db_wait_seconds_total",
		Help: "Total time blocked waiting for a database connection",
	})

	// Register all metrics with the custom registry
	registry.MustRegister(
		runsTotal,
		runDuration,
		factsComputed,
		feedStops,
		feedRoutes,
		feedTrips,
		dbConnectionsOpen,
		dbConnectionsInUse,
		dbConnectionsIdle,
		dbWaitSecondsTotal,
	)

	return &Metrics{
		Registry:           registry,
		RunsTotal:          runsTotal,
		RunDuration:        runDuration,
		FactsComputed:      factsComputed,
		FeedStops:          feedStops,
		FeedRoutes:         feedRoutes,
		FeedTrips:          feedTrips,
		DBConnectionsOpen:  dbConnectionsOpen,
		DBConnectionsInUse: dbConnectionsInUse,
		DBConnectionsIdle:  dbConnectionsIdle,
		DBWaitSecondsTotal: dbWaitSecondsTotal,
		logger:             logger,
	}
}

// ObserveRun records the outcome and duration of one aggregation run.
func (m *Metrics) ObserveRun(duration time.Duration, facts int, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(duration.Seconds())
	if err == nil {
		m.FactsComputed.Set(float64(facts))
	}
}

// SetFeedCounts records the entity counts of the current feed snapshot.
func (m *Metrics) SetFeedCounts(stops, routes, trips int) {
	m.FeedStops.Set(float64(stops))
	m.FeedRoutes.Set(float64(routes))
	m.FeedTrips.Set(float64(trips))
}

// StartDBStatsCollector starts a goroutine that periodically collects database
// connection pool statistics and updates the corresponding metrics.
// The interval specifies how often to collect stats.
// This method is idempotent - calling it multiple times has no effect after the first call.
// Call Shutdown() to stop the collector.
func (m *Metrics) StartDBStatsCollector(db *sql.DB, interval time.Duration) {
	if db == nil {
		return
	}

	// Prevent spawning multiple collectors
	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	var lastWaitDuration time.Duration

	// Add to WaitGroup BEFORE exposing cancel to avoid race with Shutdown
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if m.logger != nil {
					m.logger.Error("panic in DB stats collector", "error", r)
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		collect := func() {
			stats := db.Stats()
			m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
			m.DBConnectionsInUse.Set(float64(stats.InUse))
			m.DBConnectionsIdle.Set(float64(stats.Idle))

			// Add the delta of wait duration since last check
			waitDelta := stats.WaitDuration - lastWaitDuration
			if waitDelta > 0 {
				m.DBWaitSecondsTotal.Add(waitDelta.Seconds())
			}
			lastWaitDuration = stats.WaitDuration
		}

		// Sample once up front so short-lived runs still report pool state.
		collect()

		for {
			select {
			case <-ticker.C:
				collect()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the DB stats collector goroutine and waits for it to exit.
// This method is safe to call multiple times.
func (m *Metrics) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
