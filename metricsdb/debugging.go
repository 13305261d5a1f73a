package metricsdb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/davecgh/go-spew/spew"

	"gtfsqual.transitlab.cl/internal/logging"
)

// TableCounts returns row counts for every known table.
func (c *Client) TableCounts() (map[string]int, error) {
	rows, err := c.DB.Query("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, fmt.Errorf("failed to query table names: %w", err)
	}
	defer logging.SafeCloseWithLogging(rows,
		slog.Default().With(slog.String("component", "debugging")),
		"database_rows")

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int)

	tableCountQueries := map[string]string{
		"runs":             "SELECT COUNT(*) FROM runs",
		"metric_facts":     "SELECT COUNT(*) FROM metric_facts",
		"coverage_regions": "SELECT COUNT(*) FROM coverage_regions",
	}

	for _, table := range tables {
		query, ok := tableCountQueries[table]
		if !ok {
			continue
		}

		var count int
		if err := c.DB.QueryRow(query).Scan(&count); err != nil {
			return nil, err
		}
		counts[table] = count
	}

	return counts, nil
}

// DumpRun renders a stored run and its rows for debugging sessions.
func (c *Client) DumpRun(ctx context.Context, runID int64) (string, error) {
	facts, err := c.Queries.ListFactsForRun(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("failed to list facts for run %d: %w", runID, err)
	}
	regions, err := c.Queries.ListCoverageRegionsForRun(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("failed to list regions for run %d: %w", runID, err)
	}
	return spew.Sdump(map[string]interface{}{
		"run_id":  runID,
		"facts":   facts,
		"regions": regions,
	}), nil
}
