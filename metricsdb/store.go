package metricsdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gtfsqual.transitlab.cl/internal/aggregate"
	"gtfsqual.transitlab.cl/internal/logging"
)

const factBatchSize = 500

// RegionRecord is one coverage boundary ready for persistence.
type RegionRecord struct {
	Label        string
	RadiusMeters float64
	StopCount    int
	AreaSqm      float64
	GeoJSON      string
}

// StoreRunParams describes one completed aggregation run.
type StoreRunParams struct {
	FeedHash          string
	FeedSource        string
	ConfigFingerprint string
	StartedAt         time.Time
	Duration          time.Duration
	Facts             []aggregate.Fact
	Regions           []RegionRecord
}

// StoreRun persists a run with its facts and regions in one transaction.
// When the latest stored run covers the same feed hash, source, and
// configuration, the store is skipped and the existing run id is returned
// with stored == false.
func (c *Client) StoreRun(ctx context.Context, params StoreRunParams) (runID int64, stored bool, err error) {
	logger := slog.Default().With(slog.String("component", "metrics_store"))

	startTime := time.Now()
	defer func() {
		c.storeRuntime = time.Since(startTime)
	}()

	latest, err := c.Queries.GetLatestRun(ctx)
	if err == nil {
		if latest.FeedHash == params.FeedHash &&
			latest.FeedSource == params.FeedSource &&
			latest.ConfigFingerprint == params.ConfigFingerprint {
			logging.LogOperation(logger, "run_unchanged_skipping_store",
				slog.String("hash", shortHash(params.FeedHash)),
				slog.Int64("run_id", latest.ID))
			return latest.ID, false, nil
		}
	} else if err != sql.ErrNoRows {
		return 0, false, fmt.Errorf("error checking latest run: %w", err)
	}

	tx, err := c.DB.Begin()
	if err != nil {
		return 0, false, err
	}
	defer logging.SafeRollbackWithLogging(tx, logger, "store_run")

	qtx := c.Queries.WithTx(tx)

	runID, err = qtx.CreateRun(ctx, CreateRunParams{
		FeedHash:          params.FeedHash,
		FeedSource:        params.FeedSource,
		ConfigFingerprint: params.ConfigFingerprint,
		StartedAt:         params.StartedAt.Unix(),
		DurationMs:        params.Duration.Milliseconds(),
		FactCount:         int64(len(params.Facts)),
	})
	if err != nil {
		return 0, false, fmt.Errorf("unable to create run: %w", err)
	}

	if err := bulkInsertFacts(ctx, tx, runID, params.Facts); err != nil {
		return 0, false, fmt.Errorf("unable to store facts: %w", err)
	}

	for _, region := range params.Regions {
		err := qtx.CreateCoverageRegion(ctx, CreateCoverageRegionParams{
			RunID:        runID,
			Label:        region.Label,
			RadiusMeters: region.RadiusMeters,
			StopCount:    int64(region.StopCount),
			AreaSqm:      region.AreaSqm,
			GeoJSON:      region.GeoJSON,
		})
		if err != nil {
			return 0, false, fmt.Errorf("unable to store coverage region %q: %w", region.Label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, err
	}

	logging.LogOperation(logger, "run_stored",
		slog.Int64("run_id", runID),
		slog.Int("facts", len(params.Facts)),
		slog.Int("regions", len(params.Regions)))
	return runID, true, nil
}

// bulkInsertFacts writes facts as multi-row inserts to keep large fact
// tables from paying per-row round trips.
func bulkInsertFacts(ctx context.Context, tx *sql.Tx, runID int64, facts []aggregate.Fact) error {
	const baseQuery = `INSERT INTO metric_facts (
		run_id, entity_type, entity_id, day_type, window_label, metric_name, value
	) VALUES `

	for start := 0; start < len(facts); start += factBatchSize {
		end := start + factBatchSize
		if end > len(facts) {
			end = len(facts)
		}
		batch := facts[start:end]

		var query strings.Builder
		query.WriteString(baseQuery)
		args := make([]interface{}, 0, len(batch)*7)

		for i, fact := range batch {
			if i > 0 {
				query.WriteString(", ")
			}
			query.WriteString("(?, ?, ?, ?, ?, ?, ?)")

			value := sql.NullFloat64{Float64: fact.Value.Float64, Valid: fact.Value.Valid}
			args = append(args,
				runID,
				string(fact.EntityType),
				fact.EntityID,
				string(fact.DayType),
				fact.WindowLabel,
				fact.Metric,
				value,
			)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := tx.ExecContext(ctx, query.String(), args...); err != nil {
			return fmt.Errorf("failed to insert metric_facts batch: %w", err)
		}
	}
	return nil
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
