package model

import (
	"sort"
	"time"
)

// Series is the final per-symbol artifact: ascending by timestamp,
// one bar per timestamp, trimmed to the caller's start boundary.
type Series []Bar

// BuildSeries normalizes raw bars into a Series: sort ascending, keep the
// last-received bar per timestamp, drop everything before boundary.
// Arrival order is not trusted, so the sort is mandatory.
func BuildSeries(bars []Bar, boundary time.Time) Series {
	if len(bars) == 0 {
		return nil
	}
	// Stable sort so that for equal timestamps the later arrival stays last.
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	cutoff := boundary.UnixMilli()
	out := make(Series, 0, len(sorted))
	for _, b := range sorted {
		if b.Timestamp < cutoff {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Timestamp == b.Timestamp {
			out[n-1] = b // last write wins
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Span returns the first and last bar times of the series.
func (s Series) Span() (first, last time.Time) {
	if len(s) == 0 {
		return time.Time{}, time.Time{}
	}
	return s[0].Time(), s[len(s)-1].Time()
}

// TotalReturn is the percent change from the first close to the last close.
// Zero when the series has fewer than two bars or starts at zero.
func (s Series) TotalReturn() float64 {
	if len(s) < 2 {
		return 0
	}
	first := s[0].Close
	if first == 0 {
		return 0
	}
	return (s[len(s)-1].Close - first) / first * 100
}

// Midnight reports whether every bar sits exactly on a UTC day boundary.
// Daily and coarser series qualify; intraday series do not.
func (s Series) Midnight() bool {
	const dayMillis = 24 * 60 * 60 * 1000
	for _, b := range s {
		if b.Timestamp%dayMillis != 0 {
			return false
		}
	}
	return true
}
