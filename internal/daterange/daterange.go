// Package daterange turns a requested start date into the TWS lookback
// duration and the boundary used to trim returned history.
package daterange

import (
	"fmt"
	"strings"
	"time"
)

// DefaultStart is used when the caller does not request a start date.
const DefaultStart = "2008-01-01"

const (
	minYears = 1
	maxYears = 30
)

var layouts = []string{"20060102", "2006-01-02"}

// Range describes one resolved lookback request.
type Range struct {
	// Start is the boundary at midnight UTC; bars before it are discarded.
	Start time.Time
	// Years is the lookback depth requested from the broker, clamped to
	// [1, 30].
	Years int
}

// Duration renders the TWS durationStr form, e.g. "17 Y".
func (r Range) Duration() string {
	return fmt.Sprintf("%d Y", r.Years)
}

// Resolve parses start as YYYYMMDD or YYYY-MM-DD and sizes the lookback so
// the broker returns at least everything from start to now. Start dates in
// the future still yield the minimum one-year lookback.
func Resolve(start string, now time.Time) (Range, error) {
	start = strings.TrimSpace(start)
	if start == "" {
		start = DefaultStart
	}

	var parsed time.Time
	var err error
	for _, layout := range layouts {
		parsed, err = time.Parse(layout, start)
		if err == nil {
			break
		}
	}
	if err != nil {
		return Range{}, fmt.Errorf("invalid start date %q: want YYYYMMDD or YYYY-MM-DD", start)
	}
	parsed = parsed.UTC()

	days := int(now.UTC().Sub(parsed).Hours() / 24)
	years := days/365 + 1
	if years < minYears {
		years = minYears
	}
	if years > maxYears {
		years = maxYears
	}
	return Range{Start: parsed, Years: years}, nil
}
