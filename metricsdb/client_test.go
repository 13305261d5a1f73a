package metricsdb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsqual.transitlab.cl/internal/aggregate"
	"gtfsqual.transitlab.cl/internal/appconf"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(NewConfig(":memory:", appconf.Test, false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func sampleParams() StoreRunParams {
	return StoreRunParams{
		FeedHash:          "abc123def456",
		FeedSource:        "https://transit.example/gtfs.zip",
		ConfigFingerprint: "fp-1",
		StartedAt:         time.Unix(1756400000, 0),
		Duration:          1500 * time.Millisecond,
		Facts: []aggregate.Fact{
			{
				Key: aggregate.Key{
					EntityType:  aggregate.EntityRoute,
					EntityID:    "r1",
					DayType:     "weekday",
					WindowLabel: "peak_am",
					Metric:      aggregate.MetricFreqTripCount,
				},
				Value: aggregate.Some(12),
			},
			{
				Key: aggregate.Key{
					EntityType:  aggregate.EntityRoute,
					EntityID:    "r1",
					DayType:     "sunday",
					WindowLabel: "peak_am",
					Metric:      aggregate.MetricFreqMeanHeadwaySecs,
				},
				Value: aggregate.Unavailable(),
			},
		},
		Regions: []RegionRecord{
			{Label: "all", RadiusMeters: 400, StopCount: 2, AreaSqm: 950000, GeoJSON: `{"type":"FeatureCollection"}`},
		},
	}
}

func TestNewClientRejectsFileDBInTestEnv(t *testing.T) {
	_, err := NewClient(NewConfig("/tmp/real.db", appconf.Test, false))
	assert.Error(t, err)
}

func TestStoreRunRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	runID, stored, err := client.StoreRun(ctx, sampleParams())
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Greater(t, runID, int64(0))

	facts, err := client.Queries.ListFactsForRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, facts, 2)

	assert.Equal(t, "route", facts[0].EntityType)
	assert.Equal(t, "r1", facts[0].EntityID)
	assert.Equal(t, "sunday", facts[0].DayType)
	assert.Equal(t, aggregate.MetricFreqMeanHeadwaySecs, facts[0].MetricName)
	assert.False(t, facts[0].Value.Valid, "unavailable metric stored as NULL")

	assert.Equal(t, "weekday", facts[1].DayType)
	require.True(t, facts[1].Value.Valid)
	assert.Equal(t, 12.0, facts[1].Value.Float64)

	regions, err := client.Queries.ListCoverageRegionsForRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "all", regions[0].Label)
	assert.Equal(t, int64(2), regions[0].StopCount)
}

func TestStoreRunSkipsUnchanged(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	firstID, stored, err := client.StoreRun(ctx, sampleParams())
	require.NoError(t, err)
	require.True(t, stored)

	secondID, stored, err := client.StoreRun(ctx, sampleParams())
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Equal(t, firstID, secondID)

	counts, err := client.TableCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts["runs"])
}

func TestStoreRunNewFingerprintStoresAgain(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	firstID, _, err := client.StoreRun(ctx, sampleParams())
	require.NoError(t, err)

	changed := sampleParams()
	changed.ConfigFingerprint = "fp-2"
	secondID, stored, err := client.StoreRun(ctx, changed)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.NotEqual(t, firstID, secondID)
}

func TestStoreRunManyFacts(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	params := sampleParams()
	params.Facts = nil
	for i := 0; i < factBatchSize+50; i++ {
		params.Facts = append(params.Facts, aggregate.Fact{
			Key: aggregate.Key{
				EntityType: aggregate.EntityStop,
				EntityID:   fmt.Sprintf("s%04d", i),
				DayType:    "weekday",
				Metric:     aggregate.MetricSpanDurationSecs,
			},
			Value: aggregate.Some(float64(i)),
		})
	}

	runID, _, err := client.StoreRun(ctx, params)
	require.NoError(t, err)

	facts, err := client.Queries.ListFactsForRun(ctx, runID)
	require.NoError(t, err)
	assert.Len(t, facts, factBatchSize+50)
}

func TestTableCounts(t *testing.T) {
	client := newTestClient(t)

	counts, err := client.TableCounts()
	require.NoError(t, err)
	assert.Equal(t, 0, counts["runs"])
	assert.Equal(t, 0, counts["metric_facts"])
	assert.Equal(t, 0, counts["coverage_regions"])
}

func TestDumpRun(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	runID, _, err := client.StoreRun(ctx, sampleParams())
	require.NoError(t, err)

	dump, err := client.DumpRun(ctx, runID)
	require.NoError(t, err)
	assert.Contains(t, dump, "r1")
	assert.Contains(t, dump, "peak_am")
}
