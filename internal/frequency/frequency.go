// Package frequency buckets departures into time-of-day windows and
// computes headway statistics per window.
package frequency

import (
	"fmt"
	"sort"

	"gtfsqual.transitlab.cl/internal/gtfstime"
)

// Window is a half-open offset range [Start, End) in the same offset space
// as stop-time offsets. A window crossing midnight is expressed with
// End > 86400 ("23:00:00" to "25:00:00"), never by wrapping.
type Window struct {
	Label string
	Start int
	End   int
}

func (w Window) Span() int {
	return w.End - w.Start
}

// DefaultWindows is the standard peak/midday/evening partition.
func DefaultWindows() []Window {
	return []Window{
		{Label: "peak_am", Start: 6 * 3600, End: 9 * 3600},
		{Label: "midday", Start: 9 * 3600, End: 15 * 3600},
		{Label: "peak_pm", Start: 15 * 3600, End: 19 * 3600},
		{Label: "evening", Start: 19 * 3600, End: 24 * 3600},
	}
}

// ValidateWindows checks that windows are well-formed, ordered, and
// non-overlapping.
func ValidateWindows(windows []Window) error {
	for i, w := range windows {
		if w.Label == "" {
			return fmt.Errorf("window %d has no label", i)
		}
		if w.End <= w.Start {
			return fmt.Errorf("window %q: end %s is not after start %s",
				w.Label, gtfstime.FormatOffset(w.End), gtfstime.FormatOffset(w.Start))
		}
		if i > 0 && w.Start < windows[i-1].End {
			return fmt.Errorf("window %q overlaps %q", w.Label, windows[i-1].Label)
		}
	}
	return nil
}

// Stats holds headway statistics for one window. MeanHeadway and MaxGap are
// nil when unavailable: a window with no departures has neither, and a
// single departure defines no interval, so its mean headway is likewise
// unavailable (its max gap is still computed against the window bounds).
type Stats struct {
	Window      Window
	TripCount   int
	MeanHeadway *float64
	MaxGap      *float64
}

// Headways partitions the given departure offsets into the windows and
// computes per-window statistics. Departures are matched against half-open
// windows, so a departure exactly on a shared boundary counts toward the
// later window only.
//
// MaxGap treats the window boundaries as virtual bounding departures: a
// window [0, 3600) with departures at 300, 1200, 2100 has gaps 300, 900,
// 900, 1500, so the long tail gap is visible instead of hidden.
func Headways(departures []int, windows []Window) []Stats {
	sorted := make([]int, len(departures))
	copy(sorted, departures)
	sort.Ints(sorted)

	results := make([]Stats, len(windows))
	for i, w := range windows {
		inside := selectRange(sorted, w.Start, w.End)
		stats := Stats{Window: w, TripCount: len(inside)}

		if len(inside) >= 2 {
			mean := float64(w.Span()) / float64(len(inside))
			stats.MeanHeadway = &mean
		}
		if len(inside) >= 1 {
			maxGap := float64(inside[0] - w.Start)
			for j := 1; j < len(inside); j++ {
				if gap := float64(inside[j] - inside[j-1]); gap > maxGap {
					maxGap = gap
				}
			}
			if tail := float64(w.End - inside[len(inside)-1]); tail > maxGap {
				maxGap = tail
			}
			stats.MaxGap = &maxGap
		}

		results[i] = stats
	}
	return results
}

// selectRange returns the values of a sorted slice falling in [start, end).
func selectRange(sorted []int, start, end int) []int {
	lo := sort.SearchInts(sorted, start)
	hi := sort.SearchInts(sorted, end)
	return sorted[lo:hi]
}
