// Package barsize validates and normalizes TWS bar-size strings and derives
// the wait budget for one historical-data request from the bar-size category.
package barsize

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Default is substituted whenever a requested bar size cannot be recognized.
const Default = "1 day"

// Category groups bar sizes by payload weight. Higher-frequency requests
// return more bars and need a longer wait budget.
type Category int

const (
	Unknown Category = iota
	UltraHighFreq
	HighFreq
	MediumFreq
	Hourly
	DailyPlus
)

func (c Category) String() string {
	switch c {
	case UltraHighFreq:
		return "ultra_high_freq"
	case HighFreq:
		return "high_freq"
	case MediumFreq:
		return "medium_freq"
	case Hourly:
		return "hourly"
	case DailyPlus:
		return "daily_plus"
	default:
		return "unknown"
	}
}

// ParseCategory maps a category name ("daily_plus") back to its Category.
func ParseCategory(s string) (Category, bool) {
	for _, c := range []Category{UltraHighFreq, HighFreq, MediumFreq, Hourly, DailyPlus} {
		if c.String() == s {
			return c, true
		}
	}
	return Unknown, false
}

// categories maps every supported TWS bar-size string to its category.
var categories = map[string]Category{
	"30 secs": UltraHighFreq,

	"1 min":  HighFreq,
	"2 mins": HighFreq,
	"3 mins": HighFreq,
	"5 mins": HighFreq,

	"10 mins": MediumFreq,
	"15 mins": MediumFreq,
	"20 mins": MediumFreq,
	"30 mins": MediumFreq,

	"1 hour":  Hourly,
	"2 hours": Hourly,
	"3 hours": Hourly,
	"4 hours": Hourly,
	"8 hours": Hourly,

	"1 day":   DailyPlus,
	"1 week":  DailyPlus,
	"1 month": DailyPlus,
}

// Valid reports whether s is a supported bar-size string as-is.
func Valid(s string) bool {
	_, ok := categories[s]
	return ok
}

// CategoryOf returns the category for s, or Unknown.
func CategoryOf(s string) Category {
	return categories[s]
}

// Supported returns all supported bar-size strings, sorted.
func Supported() []string {
	out := make([]string, 0, len(categories))
	for k := range categories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Normalize canonicalizes spacing, case and unit pluralization ("1 minute" →
// "1 min", "2 hr" → "2 hours"). When the input cannot be mapped onto a
// supported size it returns (Default, false); it never errors. Normalize is
// idempotent over its own output.
func Normalize(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Default, false
	}
	if Valid(trimmed) {
		return trimmed, true
	}
	canonical := canonicalize(trimmed)
	if Valid(canonical) {
		return canonical, true
	}
	return Default, false
}

func canonicalize(s string) string {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return s
	}
	number, unit := parts[0], strings.ToLower(parts[1])
	n, err := strconv.Atoi(number)
	if err != nil {
		return s
	}

	switch unit {
	case "sec", "secs", "second", "seconds":
		unit = "secs"
	case "min", "mins", "minute", "minutes":
		unit = "mins"
		if n == 1 {
			unit = "min"
		}
	case "h", "hr", "hrs", "hour", "hours":
		unit = "hours"
		if n == 1 {
			unit = "hour"
		}
	}
	return number + " " + unit
}

// Suggest proposes replacements for an unsupported bar-size string, keyed on
// the unit family the caller seemed to want.
func Suggest(invalid string) []string {
	lower := strings.ToLower(invalid)
	switch {
	case strings.Contains(lower, "sec"):
		return []string{"30 secs", "1 min"}
	case strings.Contains(lower, "min"):
		return []string{"1 min", "5 mins", "15 mins", "30 mins"}
	case strings.Contains(lower, "hour"), strings.Contains(lower, "hr"):
		return []string{"1 hour", "2 hours", "4 hours"}
	default:
		return []string{"1 day", "1 week"}
	}
}

// Timeouts maps category → wait budget for one historical-data request.
// The defaults are empirical, not invariants; config may override them.
type Timeouts map[Category]time.Duration

// DefaultTimeouts returns the stock wait budgets per category.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		UltraHighFreq: 120 * time.Second,
		HighFreq:      90 * time.Second,
		MediumFreq:    75 * time.Second,
		Hourly:        60 * time.Second,
		DailyPlus:     45 * time.Second,
	}
}

// For returns the wait budget for the given bar size. Sizes outside the
// supported set fall back to 60s.
func (t Timeouts) For(size string) time.Duration {
	if d, ok := t[CategoryOf(size)]; ok {
		return d
	}
	return 60 * time.Second
}
