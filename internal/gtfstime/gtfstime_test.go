package gtfstime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOffset(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
	}{
		{name: "Midnight", value: "00:00:00", want: 0},
		{name: "MorningPeak", value: "06:30:00", want: 23400},
		{name: "PastMidnight", value: "25:30:00", want: 91800},
		{name: "ExactlyTwentyFour", value: "24:00:00", want: 86400},
		{name: "SingleDigitHour", value: "6:30:00", want: 23400},
		{name: "LastSecond", value: "23:59:59", want: 86399},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseOffset(tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseOffsetErrors(t *testing.T) {
	testCases := []struct {
		name  string
		value string
	}{
		{name: "Empty", value: ""},
		{name: "MissingSeconds", value: "06:30"},
		{name: "MinutesTooLarge", value: "06:60:00"},
		{name: "SecondsTooLarge", value: "06:00:61"},
		{name: "NotNumeric", value: "six:30:00"},
		{name: "SingleDigitMinutes", value: "06:3:00"},
		{name: "TrailingGarbage", value: "06:30:00x"},
		{name: "NegativeMinutes", value: "08:-5:00"},
		{name: "SignedMinutes", value: "08:+5:00"},
		{name: "NegativeSeconds", value: "08:05:-1"},
		{name: "SignedHours", value: "+8:05:00"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseOffset(tc.value)
			require.Error(t, err)

			var tfe *TimeFormatError
			assert.ErrorAs(t, err, &tfe)
		})
	}
}

func TestFormatOffsetRoundTrip(t *testing.T) {
	for _, value := range []string{"00:00:00", "06:30:00", "25:30:00", "24:00:00"} {
		offset, err := ParseOffset(value)
		require.NoError(t, err)
		assert.Equal(t, value, FormatOffset(offset))
	}
}

func TestFormatOffsetPastMidnightNotWrapped(t *testing.T) {
	// 91800 is 25:30:00 under the same service day, never 01:30:00.
	assert.Equal(t, "25:30:00", FormatOffset(91800))
}

func TestParseDate(t *testing.T) {
	date, err := ParseDate("20260316")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), date)

	_, err = ParseDate("2026-03-16")
	assert.Error(t, err)

	assert.Equal(t, "20260316", FormatDate(date))
}
