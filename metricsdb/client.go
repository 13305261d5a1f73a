// Package metricsdb persists aggregation runs, their metric facts, and
// coverage region boundaries in SQLite.
package metricsdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"gtfsqual.transitlab.cl/internal/appconf"
	"gtfsqual.transitlab.cl/internal/logging"
)

//go:embed schema.sql
var ddl string

// Config holds database client configuration.
type Config struct {
	DBPath  string
	Env     appconf.Environment
	verbose bool
}

func NewConfig(dbPath string, env appconf.Environment, verbose bool) Config {
	return Config{DBPath: dbPath, Env: env, verbose: verbose}
}

// Client is the main entry point for the metrics store.
type Client struct {
	config       Config
	DB           *sql.DB
	Queries      *Queries
	storeRuntime time.Duration
}

// NewClient opens the database, applies the schema, and tunes the
// connection pool.
func NewClient(config Config) (*Client, error) {
	db, err := createDB(config)
	if err != nil {
		return nil, fmt.Errorf("unable to create DB: %w", err)
	}
	if config.verbose {
		logger := slog.Default().With(slog.String("component", "metricsdb"))
		logging.LogOperation(logger, "metrics_database_ready",
			slog.String("db_path", config.DBPath))
	}

	return &Client{
		config:  config,
		DB:      db,
		Queries: New(db),
	}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) GetDBPath() string {
	return c.config.DBPath
}

func createDB(config Config) (*sql.DB, error) {
	if config.Env == appconf.Test && config.DBPath != ":memory:" {
		return nil, fmt.Errorf("test database must use in-memory storage, got path: %s", config.DBPath)
	}

	db, err := sql.Open("sqlite3", config.DBPath)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := configureSQLitePerformance(ctx, db); err != nil {
		return nil, fmt.Errorf("error configuring SQLite performance: %w", err)
	}

	if err := performDatabaseMigration(ctx, db); err != nil {
		return nil, fmt.Errorf("error performing database migration: %w", err)
	}

	configureConnectionPool(db, config)

	return db, nil
}

func performDatabaseMigration(ctx context.Context, db *sql.DB) error {
	statements := strings.Split(ddl, "-- migrate") // Split DDL into individual statements
	for _, stmt := range statements {
		trimmedStmt := strings.TrimSpace(stmt)
		if trimmedStmt == "" {
			continue // Skip empty statements
		}
		if _, err := db.ExecContext(ctx, trimmedStmt); err != nil {
			return fmt.Errorf("error executing DDL statement [%s]: %w", trimmedStmt, err)
		}
	}
	return nil
}

// configureSQLitePerformance applies PRAGMA settings for bulk fact inserts.
func configureSQLitePerformance(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA cache_size=-64000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// configureConnectionPool limits :memory: databases to a single connection
// since each connection to a :memory: database is a separate database.
func configureConnectionPool(db *sql.DB, config Config) {
	if config.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
}
