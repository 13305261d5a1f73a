package app

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gtfsqual.transitlab.cl/internal/aggregate"
	"gtfsqual.transitlab.cl/internal/appconf"
	"gtfsqual.transitlab.cl/internal/coverage"
	"gtfsqual.transitlab.cl/internal/export"
	"gtfsqual.transitlab.cl/internal/feed"
	"gtfsqual.transitlab.cl/internal/frequency"
	"gtfsqual.transitlab.cl/internal/gtfstime"
	"gtfsqual.transitlab.cl/internal/ingest"
	"gtfsqual.transitlab.cl/internal/logging"
	"gtfsqual.transitlab.cl/internal/service"
	"gtfsqual.transitlab.cl/metricsdb"
)

// RunReport summarizes one completed pipeline run.
type RunReport struct {
	RunID     int64
	Stored    bool
	FeedHash  string
	FactCount int
	Regions   map[string]*coverage.Region
	Facts     []aggregate.Fact
	Duration  time.Duration
}

// Run executes the full pipeline: fetch, parse, aggregate, persist, export.
func (app *Application) Run(ctx context.Context) (*RunReport, error) {
	logger := app.Logger.With(slog.String("component", "pipeline"))
	started := app.Clock.Now()

	archive, hash, err := app.Fetcher.Fetch(ctx, app.Config.FeedSource, ingest.FetchOptions{
		AuthHeaderKey:   app.Config.StaticAuthHeaderKey,
		AuthHeaderValue: app.Config.StaticAuthHeaderValue,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}

	f, err := ingest.Build(archive)
	if err != nil {
		if !app.Config.LenientParse {
			return nil, fmt.Errorf("feed load failed: %w", err)
		}
		logging.LogError(logger, "strict feed load failed, retrying with lenient parser", err)
		staticData, perr := ingest.ParseStatic(archive)
		if perr != nil {
			return nil, fmt.Errorf("lenient feed load failed: %w", perr)
		}
		if f, perr = feed.FromStatic(staticData); perr != nil {
			return nil, fmt.Errorf("lenient feed load failed: %w", perr)
		}
	}
	app.Metrics.SetFeedCounts(len(f.Stops), len(f.Routes), len(f.Trips))

	params, err := engineParams(app.Config, f)
	if err != nil {
		return nil, err
	}

	result, err := aggregate.Run(params, logger)
	duration := app.Clock.Now().Sub(started)
	app.Metrics.ObserveRun(duration, factCount(result), err)
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		FeedHash:  hash,
		FactCount: len(result.Facts),
		Regions:   result.Regions,
		Facts:     result.Facts,
		Duration:  duration,
	}

	if app.Config.OutputDBPath != "" {
		runID, stored, err := app.persist(ctx, hash, started, duration, result)
		if err != nil {
			return nil, err
		}
		report.RunID = runID
		report.Stored = stored
	}

	if err := app.export(f, result); err != nil {
		return nil, err
	}

	return report, nil
}

func factCount(result *aggregate.Result) int {
	if result == nil {
		return 0
	}
	return len(result.Facts)
}

func (app *Application) persist(ctx context.Context, hash string, started time.Time, duration time.Duration, result *aggregate.Result) (int64, bool, error) {
	logger := app.Logger.With(slog.String("component", "pipeline"))

	dbConfig := metricsdb.NewConfig(app.Config.OutputDBPath, app.Config.Env, app.Config.Verbose)
	client, err := metricsdb.NewClient(dbConfig)
	if err != nil {
		return 0, false, fmt.Errorf("metrics store open failed: %w", err)
	}
	defer logging.SafeCloseWithLogging(client, logger, "metrics_database")

	app.Metrics.StartDBStatsCollector(client.DB, dbStatsInterval)
	defer app.Metrics.Shutdown()

	regions := make([]metricsdb.RegionRecord, 0, len(result.Regions))
	for label, region := range result.Regions {
		geoJSON, err := export.RegionGeoJSON(label, region)
		if err != nil {
			return 0, false, err
		}
		regions = append(regions, metricsdb.RegionRecord{
			Label:        label,
			RadiusMeters: region.RadiusMeters,
			StopCount:    region.StopCount,
			AreaSqm:      region.Area(),
			GeoJSON:      geoJSON,
		})
	}

	return client.StoreRun(ctx, metricsdb.StoreRunParams{
		FeedHash:          hash,
		FeedSource:        app.Config.FeedSource,
		ConfigFingerprint: configFingerprint(app.Config),
		StartedAt:         started,
		Duration:          duration,
		Facts:             result.Facts,
		Regions:           regions,
	})
}

// dbStatsInterval is how often the connection pool gauges refresh while the
// metrics store is open.
const dbStatsInterval = 15 * time.Second

func (app *Application) export(f *feed.Feed, result *aggregate.Result) error {
	if path := app.Config.FactsExportPath; path != "" {
		out, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("error creating facts export: %w", err)
		}
		if err := export.WriteFactsCSV(out, result.Facts); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("error closing facts export: %w", err)
		}
	}
	if path := app.Config.GeoJSONExportPath; path != "" {
		out, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("error creating geojson export: %w", err)
		}
		if err := export.WriteRegionsGeoJSON(out, result.Regions); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("error closing geojson export: %w", err)
		}
	}
	if path := app.Config.PolylinesExportPath; path != "" {
		out, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("error creating polylines export: %w", err)
		}
		if err := export.WritePolylines(out, f, result.Regions); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("error closing polylines export: %w", err)
		}
	}
	return nil
}

// engineParams translates the run configuration into engine inputs,
// parsing window boundaries and date bounds from their clock-text forms.
func engineParams(cfg appconf.Config, f *feed.Feed) (aggregate.Params, error) {
	windows := make([]frequency.Window, len(cfg.FrequencyWindows))
	for i, wc := range cfg.FrequencyWindows {
		start, err := gtfstime.ParseOffset(wc.Start)
		if err != nil {
			return aggregate.Params{}, fmt.Errorf("window %q start: %w", wc.Label, err)
		}
		end, err := gtfstime.ParseOffset(wc.End)
		if err != nil {
			return aggregate.Params{}, fmt.Errorf("window %q end: %w", wc.Label, err)
		}
		windows[i] = frequency.Window{Label: wc.Label, Start: start, End: end}
	}

	buckets := make([]service.DayType, len(cfg.DayTypeBuckets))
	for i, b := range cfg.DayTypeBuckets {
		buckets[i] = service.DayType(b)
	}
	policy := service.NewDayTypePolicy(buckets)

	params := aggregate.Params{
		Feed:               f,
		DayTypePolicy:      &policy,
		Windows:            windows,
		BufferRadiusMeters: cfg.BufferRadiusMeters,
	}

	if cfg.StartDate != "" {
		start, err := gtfstime.ParseDate(cfg.StartDate)
		if err != nil {
			return aggregate.Params{}, fmt.Errorf("start_date: %w", err)
		}
		params.StartDate = start
	}
	if cfg.EndDate != "" {
		end, err := gtfstime.ParseDate(cfg.EndDate)
		if err != nil {
			return aggregate.Params{}, fmt.Errorf("end_date: %w", err)
		}
		params.EndDate = end
	}

	if cfg.PopulationSource != "" {
		points, err := ingest.LoadPopulationPoints(cfg.PopulationSource)
		if err != nil {
			return aggregate.Params{}, err
		}
		params.PopulationPoints = points
	}

	return params, nil
}

// configFingerprint hashes the parts of the configuration that change run
// output, so an unchanged feed with unchanged settings can skip the store.
func configFingerprint(cfg appconf.Config) string {
	h := sha256.New()
	fmt.Fprintf(h, "radius=%v;buckets=%v;start=%s;end=%s;pop=%s;", cfg.BufferRadiusMeters,
		cfg.DayTypeBuckets, cfg.StartDate, cfg.EndDate, cfg.PopulationSource)
	for _, w := range cfg.FrequencyWindows {
		fmt.Fprintf(h, "window=%s,%s,%s;", w.Label, w.Start, w.End)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
