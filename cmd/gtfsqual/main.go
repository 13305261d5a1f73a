package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"gtfsqual.transitlab.cl/internal/app"
	"gtfsqual.transitlab.cl/internal/appconf"
	"gtfsqual.transitlab.cl/internal/coverage"
	"gtfsqual.transitlab.cl/internal/logging"
)

func main() {
	// A missing .env file is fine; environment variables win regardless.
	_ = godotenv.Load()

	cliApp := &cli.App{
		Name:  "gtfsqual",
		Usage: "compute service-quality metrics from a GTFS static feed",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML run configuration",
				Value:   "gtfsqual.yaml",
			},
			&cli.StringFlag{
				Name:    "env",
				Usage:   "runtime environment: development, test, production",
				EnvVars: []string{"GTFSQUAL_ENV"},
				Value:   "development",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "serve Prometheus metrics on this address while running (e.g. :9090)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the metrics pipeline end to end",
				Action: func(c *cli.Context) error {
					application, err := buildApplication(c)
					if err != nil {
						return err
					}
					return runPipeline(c, application)
				},
			},
			{
				Name:  "inspect",
				Usage: "fetch and parse the feed, reporting entity counts and warnings",
				Action: func(c *cli.Context) error {
					application, err := buildApplication(c)
					if err != nil {
						return err
					}
					return runInspect(c, application)
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
}

func buildApplication(c *cli.Context) (*app.Application, error) {
	verbose := c.Bool("verbose")

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := appconf.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	cfg.Env = appconf.EnvFlagToEnvironment(c.String("env"))
	cfg.Verbose = verbose

	return app.New(cfg, logger), nil
}

func runPipeline(c *cli.Context, application *app.Application) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr := c.String("metrics-addr"); addr != "" {
		serveMetrics(addr, application)
	}

	report, err := application.Run(ctx)
	if err != nil {
		return err
	}

	color.Green("run complete in %s", report.Duration.Round(time.Millisecond))
	fmt.Printf("feed hash: %s\n", report.FeedHash[:8])
	fmt.Printf("facts computed: %d\n", report.FactCount)
	for _, label := range sortedRegionLabels(report.Regions) {
		region := report.Regions[label]
		fmt.Printf("coverage %-12s %8.3f km2 (%d stops)\n",
			label, region.Area()/1e6, region.StopCount)
	}
	if report.Stored {
		color.Green("stored as run %d in %s", report.RunID, application.Config.OutputDBPath)
	} else if application.Config.OutputDBPath != "" {
		color.Yellow("feed and configuration unchanged, reusing run %d", report.RunID)
	}
	return nil
}

func runInspect(c *cli.Context, application *app.Application) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := application.Inspect(ctx)
	if err != nil {
		return err
	}

	color.Green("parsed %s", report.Source)
	fmt.Printf("feed hash: %s\n", report.FeedHash[:8])
	fmt.Printf("agencies: %d\n", report.Agencies)
	fmt.Printf("routes:   %d\n", report.Routes)
	fmt.Printf("stops:    %d\n", report.Stops)
	fmt.Printf("trips:    %d\n", report.Trips)
	fmt.Printf("services: %d\n", report.Services)
	fmt.Printf("shapes:   %d\n", report.Shapes)
	if len(report.Warnings) > 0 {
		color.Yellow("%d parser warnings:", len(report.Warnings))
		for _, warning := range report.Warnings {
			fmt.Printf("  %s\n", warning)
		}
	}
	return nil
}

func serveMetrics(addr string, application *app.Application) {
	logger := application.Logger.With(slog.String("component", "metrics_server"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(application.Metrics.Registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.LogError(logger, "metrics server exited", err)
		}
	}()
	logging.LogOperation(logger, "metrics_server_started", slog.String("addr", addr))
}

func sortedRegionLabels(regions map[string]*coverage.Region) []string {
	labels := make([]string, 0, len(regions))
	for label := range regions {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
