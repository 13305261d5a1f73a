// Package gtfstime handles the GTFS time and date text formats.
//
// GTFS clock text measures time from the service-day's nominal midnight and
// is allowed to exceed 24:00:00: a trip departing at "25:30:00" runs at
// 01:30 the next morning but still belongs to the previous service-day. The
// offsets produced here therefore range beyond 86400 and must never be
// wrapped modulo a day.
package gtfstime

import (
	"fmt"
	"strings"
	"time"
)

// SecondsPerDay is the length of a nominal service-day.
const SecondsPerDay = 24 * 60 * 60

// TimeFormatError reports GTFS clock text that cannot be parsed.
type TimeFormatError struct {
	Value  string
	Reason string
}

func (e *TimeFormatError) Error() string {
	return fmt.Sprintf("malformed GTFS time %q: %s", e.Value, e.Reason)
}

// ParseOffset converts GTFS clock text ("HH:MM:SS", hours unbounded) into
// seconds since the service-day's nominal midnight. A single-digit hour
// field is accepted, matching feeds that write "8:05:00".
func ParseOffset(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, &TimeFormatError{Value: s, Reason: "expected HH:MM:SS"}
	}

	hourText := parts[0]
	if len(hourText) < 1 || len(hourText) > 3 {
		return 0, &TimeFormatError{Value: s, Reason: "hours field must have 1 to 3 digits"}
	}
	hours, err := parseDigits(hourText)
	if err != nil {
		return 0, &TimeFormatError{Value: s, Reason: "hours field is not a non-negative integer"}
	}

	minutes, err := parseTwoDigit(parts[1])
	if err != nil || minutes > 59 {
		return 0, &TimeFormatError{Value: s, Reason: "minutes field must be 00-59"}
	}
	seconds, err := parseTwoDigit(parts[2])
	if err != nil || seconds > 59 {
		return 0, &TimeFormatError{Value: s, Reason: "seconds field must be 00-59"}
	}

	return hours*3600 + minutes*60 + seconds, nil
}

func parseTwoDigit(s string) (int, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("expected 2 digits, got %q", s)
	}
	return parseDigits(s)
}

// parseDigits parses a field of ASCII digits only. strconv.Atoi would also
// accept a leading sign, letting text like "08:-5:00" slip through.
func parseDigits(s string) (int, error) {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("non-digit character in %q", s)
		}
		n = n*10 + int(s[i]-'0')
	}
	return n, nil
}

// FormatOffset renders a seconds offset back into GTFS clock text. Offsets
// past midnight come back with hours >= 24, round-tripping ParseOffset.
func FormatOffset(offset int) string {
	sign := ""
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, offset/3600, (offset/60)%60, offset%60)
}

// ParseDate parses a GTFS date (YYYYMMDD) into a UTC midnight time.Time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("20060102", s, time.UTC)
	if err != nil {
		return time.Time{}, &TimeFormatError{Value: s, Reason: "expected YYYYMMDD"}
	}
	return t, nil
}

// FormatDate renders a date in the GTFS YYYYMMDD form.
func FormatDate(t time.Time) string {
	return t.Format("20060102")
}
