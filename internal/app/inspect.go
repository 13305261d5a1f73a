package app

import (
	"context"
	"fmt"

	"gtfsqual.transitlab.cl/internal/ingest"
)

// InspectReport holds the entity counts and parser warnings for a feed.
type InspectReport struct {
	Source   string
	FeedHash string
	Agencies int
	Routes   int
	Stops    int
	Trips    int
	Services int
	Shapes   int
	Warnings []string
}

// Inspect fetches and parses a feed without running any engine, reporting
// what the archive contains.
func (app *Application) Inspect(ctx context.Context) (*InspectReport, error) {
	archive, hash, err := app.Fetcher.Fetch(ctx, app.Config.FeedSource, ingest.FetchOptions{
		AuthHeaderKey:   app.Config.StaticAuthHeaderKey,
		AuthHeaderValue: app.Config.StaticAuthHeaderValue,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}

	staticData, err := ingest.ParseStatic(archive)
	if err != nil {
		return nil, err
	}

	report := &InspectReport{
		Source:   app.Config.FeedSource,
		FeedHash: hash,
		Agencies: len(staticData.Agencies),
		Routes:   len(staticData.Routes),
		Stops:    len(staticData.Stops),
		Trips:    len(staticData.Trips),
		Services: len(staticData.Services),
		Shapes:   len(staticData.Shapes),
	}
	for _, warning := range staticData.Warnings {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%v", warning))
	}
	return report, nil
}
