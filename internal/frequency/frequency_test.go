package frequency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadwaysThreeDepartures(t *testing.T) {
	windows := []Window{{Label: "w", Start: 0, End: 3600}}
	stats := Headways([]int{300, 1200, 2100}, windows)

	require.Len(t, stats, 1)
	s := stats[0]
	assert.Equal(t, 3, s.TripCount)
	require.NotNil(t, s.MeanHeadway)
	assert.InDelta(t, 1200, *s.MeanHeadway, 1e-9)
	require.NotNil(t, s.MaxGap)
	assert.InDelta(t, 1500, *s.MaxGap, 1e-9, "tail gap to window end dominates")
}

func TestHeadwaysSingleDeparture(t *testing.T) {
	windows := []Window{{Label: "w", Start: 0, End: 3600}}
	stats := Headways([]int{600}, windows)

	s := stats[0]
	assert.Equal(t, 1, s.TripCount)
	assert.Nil(t, s.MeanHeadway, "one departure defines no interval")
	require.NotNil(t, s.MaxGap)
	assert.InDelta(t, 3000, *s.MaxGap, 1e-9)
}

func TestHeadwaysEmptyWindow(t *testing.T) {
	windows := []Window{{Label: "w", Start: 0, End: 3600}}
	stats := Headways(nil, windows)

	s := stats[0]
	assert.Equal(t, 0, s.TripCount)
	assert.Nil(t, s.MeanHeadway)
	assert.Nil(t, s.MaxGap)
}

func TestHeadwaysHalfOpenBoundaries(t *testing.T) {
	windows := []Window{
		{Label: "first", Start: 0, End: 3600},
		{Label: "second", Start: 3600, End: 7200},
	}
	stats := Headways([]int{3600}, windows)

	assert.Equal(t, 0, stats[0].TripCount, "boundary departure belongs to the later window")
	assert.Equal(t, 1, stats[1].TripCount)
}

func TestHeadwaysMidnightCrossingWindow(t *testing.T) {
	// [23:00, 25:00) in offset space covers post-midnight departures of the
	// same service-day.
	windows := []Window{{Label: "late", Start: 23 * 3600, End: 25 * 3600}}
	stats := Headways([]int{23*3600 + 1800, 24*3600 + 1800}, windows)

	s := stats[0]
	assert.Equal(t, 2, s.TripCount)
	require.NotNil(t, s.MeanHeadway)
	assert.InDelta(t, 3600, *s.MeanHeadway, 1e-9)
}

func TestHeadwaysUnsortedInput(t *testing.T) {
	windows := []Window{{Label: "w", Start: 0, End: 3600}}
	forward := Headways([]int{300, 1200, 2100}, windows)
	shuffled := Headways([]int{2100, 300, 1200}, windows)

	assert.Equal(t, *forward[0].MaxGap, *shuffled[0].MaxGap)
	assert.Equal(t, *forward[0].MeanHeadway, *shuffled[0].MeanHeadway)
}

func TestValidateWindows(t *testing.T) {
	testCases := []struct {
		name    string
		windows []Window
		wantErr bool
	}{
		{name: "Defaults", windows: DefaultWindows(), wantErr: false},
		{name: "Empty", windows: nil, wantErr: false},
		{name: "MissingLabel", windows: []Window{{Start: 0, End: 60}}, wantErr: true},
		{name: "EndNotAfterStart", windows: []Window{{Label: "w", Start: 60, End: 60}}, wantErr: true},
		{
			name: "Overlapping",
			windows: []Window{
				{Label: "a", Start: 0, End: 120},
				{Label: "b", Start: 60, End: 180},
			},
			wantErr: true,
		},
		{
			name: "GapBetweenWindowsAllowed",
			windows: []Window{
				{Label: "a", Start: 0, End: 60},
				{Label: "b", Start: 120, End: 180},
			},
			wantErr: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateWindows(tc.windows)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
