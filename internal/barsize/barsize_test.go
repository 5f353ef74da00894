package barsize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCanonicalForms(t *testing.T) {
	cases := map[string]string{
		"1 day":      "1 day",
		"1 min":      "1 min",
		"1 minute":   "1 min",
		"5 minutes":  "5 mins",
		"5 MINS":     "5 mins",
		"30 seconds": "30 secs",
		"30 sec":     "30 secs",
		"1 hr":       "1 hour",
		"2 hr":       "2 hours",
		"2 h":        "2 hours",
		"4 hours":    "4 hours",
		"  1 week  ": "1 week",
	}
	for in, want := range cases {
		got, ok := Normalize(in)
		assert.True(t, ok, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}
}

func TestNormalizeUnsupportedFallsBackToDefault(t *testing.T) {
	for _, in := range []string{"", "7 mins", "45 secs", "1 fortnight", "daily", "0 mins"} {
		got, ok := Normalize(in)
		assert.False(t, ok, "input %q", in)
		assert.Equal(t, Default, got, "input %q", in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, size := range Supported() {
		got, ok := Normalize(size)
		assert.True(t, ok)
		assert.Equal(t, size, got)

		again, ok := Normalize(got)
		assert.True(t, ok)
		assert.Equal(t, got, again)
	}
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, UltraHighFreq, CategoryOf("30 secs"))
	assert.Equal(t, HighFreq, CategoryOf("1 min"))
	assert.Equal(t, HighFreq, CategoryOf("5 mins"))
	assert.Equal(t, MediumFreq, CategoryOf("30 mins"))
	assert.Equal(t, Hourly, CategoryOf("8 hours"))
	assert.Equal(t, DailyPlus, CategoryOf("1 month"))
	assert.Equal(t, Unknown, CategoryOf("9 mins"))
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory("daily_plus")
	assert.True(t, ok)
	assert.Equal(t, DailyPlus, c)

	c, ok = ParseCategory("hourly")
	assert.True(t, ok)
	assert.Equal(t, Hourly, c)

	_, ok = ParseCategory("weekly")
	assert.False(t, ok)
	_, ok = ParseCategory("unknown")
	assert.False(t, ok)
}

func TestTimeoutsFor(t *testing.T) {
	tm := DefaultTimeouts()
	assert.Equal(t, 120*time.Second, tm.For("30 secs"))
	assert.Equal(t, 90*time.Second, tm.For("5 mins"))
	assert.Equal(t, 75*time.Second, tm.For("15 mins"))
	assert.Equal(t, 60*time.Second, tm.For("2 hours"))
	assert.Equal(t, 45*time.Second, tm.For("1 week"))
	assert.Equal(t, 60*time.Second, tm.For("no such size"))
}

func TestSuggest(t *testing.T) {
	assert.Equal(t, []string{"30 secs", "1 min"}, Suggest("45 sec"))
	assert.Equal(t, []string{"1 min", "5 mins", "15 mins", "30 mins"}, Suggest("7 mins"))
	assert.Equal(t, []string{"1 hour", "2 hours", "4 hours"}, Suggest("5 hours"))
	assert.Equal(t, []string{"1 day", "1 week"}, Suggest("decade"))
}
