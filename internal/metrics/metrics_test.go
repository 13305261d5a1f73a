package metrics

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m := New()

	assert.NotNil(t, m.Registry)
	assert.NotNil(t, m.RunsTotal)
	assert.NotNil(t, m.RunDuration)
	assert.NotNil(t, m.FactsComputed)
	assert.NotNil(t, m.FeedStops)
	assert.NotNil(t, m.DBConnectionsOpen)
	assert.NotNil(t, m.DBWaitSecondsTotal)
}

func TestNewWithLogger(t *testing.T) {
	m := NewWithLogger(nil)
	assert.NotNil(t, m)
	assert.Nil(t, m.logger)
}

func TestObserveRunSuccess(t *testing.T) {
	m := New()

	m.ObserveRun(2*time.Second, 42, nil)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.RunsTotal.WithLabelValues("failure")))
	assert.Equal(t, float64(42), testutil.ToFloat64(m.FactsComputed))
}

func TestObserveRunFailure(t *testing.T) {
	m := New()

	m.FactsComputed.Set(10)
	m.ObserveRun(time.Second, 0, errors.New("feed unreachable"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsTotal.WithLabelValues("failure")))
	// A failed run must not overwrite the last successful fact count
	assert.Equal(t, float64(10), testutil.ToFloat64(m.FactsComputed))
}

func TestSetFeedCounts(t *testing.T) {
	m := New()

	m.SetFeedCounts(120, 14, 900)

	assert.Equal(t, float64(120), testutil.ToFloat64(m.FeedStops))
	assert.Equal(t, float64(14), testutil.ToFloat64(m.FeedRoutes))
	assert.Equal(t, float64(900), testutil.ToFloat64(m.FeedTrips))
}

func TestStartDBStatsCollector_NilDB(t *testing.T) {
	m := New()
	// Should not panic with nil DB
	m.StartDBStatsCollector(nil, time.Second)
	assert.False(t, m.collectorStarted.Load())
}

func TestStartDBStatsCollector_Idempotent(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	m := New()

	m.StartDBStatsCollector(db, 100*time.Millisecond)
	assert.True(t, m.collectorStarted.Load())

	// Second call should be no-op
	m.StartDBStatsCollector(db, 100*time.Millisecond)
	assert.True(t, m.collectorStarted.Load())

	m.Shutdown()
}

func TestStartDBStatsCollector_CollectsStats(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	m := New()
	m.StartDBStatsCollector(db, 50*time.Millisecond)

	// Wait for at least one collection cycle
	time.Sleep(100 * time.Millisecond)

	assert.GreaterOrEqual(t, testutil.ToFloat64(m.DBConnectionsOpen), float64(0))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.DBConnectionsInUse), float64(0))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.DBConnectionsIdle), float64(0))

	m.Shutdown()
}

func TestStartDBStatsCollector_SamplesImmediately(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.NoError(t, db.Ping())

	m := New()
	// An hour-long interval never ticks inside the test; only the up-front
	// sample can move the gauge.
	m.StartDBStatsCollector(db, time.Hour)
	m.Shutdown()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.DBConnectionsOpen))
}

func TestShutdown_StopsGoroutine(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	m := New()
	m.StartDBStatsCollector(db, 50*time.Millisecond)

	done := make(chan struct{})
	go func() {
		m.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not complete within timeout")
	}
}

func TestShutdown_SafeToCallMultipleTimes(t *testing.T) {
	m := New()

	m.Shutdown()
	m.Shutdown()
	m.Shutdown()
}
