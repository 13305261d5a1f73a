// Package ingest fetches GTFS archives and turns them into feed snapshots.
package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"gtfsqual.transitlab.cl/internal/logging"
)

const maxStaticSize = 200 * 1024 * 1024

// FetchOptions controls remote fetches. AuthHeaderKey/Value are forwarded
// verbatim when both are set.
type FetchOptions struct {
	AuthHeaderKey   string
	AuthHeaderValue string
}

// Fetcher retrieves GTFS archives from a local path or URL. Remote fetches
// are rate limited so a repeatedly invoked pipeline cannot hammer the feed
// publisher.
type Fetcher struct {
	limiter *rate.Limiter
	client  *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		limiter: rate.NewLimiter(rate.Every(30*time.Second), 1),
		client: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

// IsLocalSource reports whether the source names a file on disk rather
// than a URL.
func IsLocalSource(source string) bool {
	return !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://")
}

// Fetch returns the raw archive bytes and their sha256 hex digest. The
// digest lets callers skip reprocessing an unchanged feed.
func (f *Fetcher) Fetch(ctx context.Context, source string, opts FetchOptions) ([]byte, string, error) {
	var b []byte
	var err error

	logger := slog.Default().With(slog.String("component", "gtfs_fetcher"))

	if IsLocalSource(source) {
		b, err = os.ReadFile(source)
		if err != nil {
			return nil, "", fmt.Errorf("error reading local GTFS file: %w", err)
		}
	} else {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, "", fmt.Errorf("error waiting for fetch rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, "", fmt.Errorf("error creating GTFS request: %w", err)
		}

		// Add auth header if provided
		if opts.AuthHeaderKey != "" && opts.AuthHeaderValue != "" {
			req.Header.Set(opts.AuthHeaderKey, opts.AuthHeaderValue)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("error downloading GTFS data: %w", err)
		}
		defer logging.SafeCloseWithLogging(resp.Body, logger, "http_response_body")

		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("failed to download GTFS data: received HTTP status %s", resp.Status)
		}
		b, err = io.ReadAll(io.LimitReader(resp.Body, maxStaticSize+1))
		if err != nil {
			return nil, "", fmt.Errorf("error reading GTFS data: %w", err)
		}
		if int64(len(b)) > maxStaticSize {
			return nil, "", fmt.Errorf("static GTFS response exceeds size limit of %d bytes", maxStaticSize)
		}
	}

	hash := fmt.Sprintf("%x", sha256.Sum256(b))
	logging.LogOperation(logger, "gtfs_archive_fetched",
		slog.String("source", source),
		slog.Int("bytes", len(b)),
		slog.String("sha256", hash))
	return b, hash, nil
}
