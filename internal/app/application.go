// Package app wires configuration, the fetcher, the engines, and the
// metrics store into one runnable pipeline.
package app

import (
	"log/slog"

	"gtfsqual.transitlab.cl/internal/appconf"
	"gtfsqual.transitlab.cl/internal/clock"
	"gtfsqual.transitlab.cl/internal/ingest"
	"gtfsqual.transitlab.cl/internal/metrics"
)

// Application holds the dependencies for the pipeline commands.
type Application struct {
	Config  appconf.Config
	Logger  *slog.Logger
	Fetcher *ingest.Fetcher
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

func New(config appconf.Config, logger *slog.Logger) *Application {
	return &Application{
		Config:  config,
		Logger:  logger,
		Fetcher: ingest.NewFetcher(),
		Clock:   clock.RealClock{},
		Metrics: metrics.NewWithLogger(logger),
	}
}
