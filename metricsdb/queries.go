package metricsdb

import (
	"context"
	"database/sql"
)

// DBTX is the subset of sql.DB and sql.Tx the query layer needs.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Run is one persisted aggregation run.
type Run struct {
	ID                int64
	FeedHash          string
	FeedSource        string
	ConfigFingerprint string
	StartedAt         int64
	DurationMs        int64
	FactCount         int64
}

type CreateRunParams struct {
	FeedHash          string
	FeedSource        string
	ConfigFingerprint string
	StartedAt         int64
	DurationMs        int64
	FactCount         int64
}

func (q *Queries) CreateRun(ctx context.Context, params CreateRunParams) (int64, error) {
	result, err := q.db.ExecContext(ctx,
		`INSERT INTO runs (feed_hash, feed_source, config_fingerprint, started_at, duration_ms, fact_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		params.FeedHash, params.FeedSource, params.ConfigFingerprint,
		params.StartedAt, params.DurationMs, params.FactCount)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetLatestRun returns the most recent run, or sql.ErrNoRows when the store
// is empty.
func (q *Queries) GetLatestRun(ctx context.Context) (Run, error) {
	var run Run
	err := q.db.QueryRowContext(ctx,
		`SELECT id, feed_hash, feed_source, config_fingerprint, started_at, duration_ms, fact_count
		 FROM runs ORDER BY id DESC LIMIT 1`).
		Scan(&run.ID, &run.FeedHash, &run.FeedSource, &run.ConfigFingerprint,
			&run.StartedAt, &run.DurationMs, &run.FactCount)
	return run, err
}

// MetricFactRow is one stored fact. Value is NULL when the metric was
// unavailable for the key.
type MetricFactRow struct {
	RunID       int64
	EntityType  string
	EntityID    string
	DayType     string
	WindowLabel string
	MetricName  string
	Value       sql.NullFloat64
}

type CreateMetricFactParams struct {
	RunID       int64
	EntityType  string
	EntityID    string
	DayType     string
	WindowLabel string
	MetricName  string
	Value       sql.NullFloat64
}

func (q *Queries) CreateMetricFact(ctx context.Context, params CreateMetricFactParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO metric_facts (run_id, entity_type, entity_id, day_type, window_label, metric_name, value)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		params.RunID, params.EntityType, params.EntityID, params.DayType,
		params.WindowLabel, params.MetricName, params.Value)
	return err
}

// ListFactsForRun returns a run's facts in deterministic key order.
func (q *Queries) ListFactsForRun(ctx context.Context, runID int64) ([]MetricFactRow, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT run_id, entity_type, entity_id, day_type, window_label, metric_name, value
		 FROM metric_facts WHERE run_id = ?
		 ORDER BY entity_type, entity_id, day_type, window_label, metric_name`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []MetricFactRow
	for rows.Next() {
		var fact MetricFactRow
		if err := rows.Scan(&fact.RunID, &fact.EntityType, &fact.EntityID,
			&fact.DayType, &fact.WindowLabel, &fact.MetricName, &fact.Value); err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}

type CreateCoverageRegionParams struct {
	RunID        int64
	Label        string
	RadiusMeters float64
	StopCount    int64
	AreaSqm      float64
	GeoJSON      string
}

func (q *Queries) CreateCoverageRegion(ctx context.Context, params CreateCoverageRegionParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO coverage_regions (run_id, label, radius_meters, stop_count, area_sqm, geojson)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		params.RunID, params.Label, params.RadiusMeters, params.StopCount,
		params.AreaSqm, params.GeoJSON)
	return err
}

// CoverageRegionRow is one stored region boundary.
type CoverageRegionRow struct {
	RunID        int64
	Label        string
	RadiusMeters float64
	StopCount    int64
	AreaSqm      float64
	GeoJSON      string
}

func (q *Queries) ListCoverageRegionsForRun(ctx context.Context, runID int64) ([]CoverageRegionRow, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT run_id, label, radius_meters, stop_count, area_sqm, geojson
		 FROM coverage_regions WHERE run_id = ? ORDER BY label`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regions []CoverageRegionRow
	for rows.Next() {
		var region CoverageRegionRow
		if err := rows.Scan(&region.RunID, &region.Label, &region.RadiusMeters,
			&region.StopCount, &region.AreaSqm, &region.GeoJSON); err != nil {
			return nil, err
		}
		regions = append(regions, region)
	}
	return regions, rows.Err()
}
