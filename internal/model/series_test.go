package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func barAt(t time.Time, close float64) Bar {
	return Bar{Timestamp: t.UnixMilli(), Open: close, High: close, Low: close, Close: close, Volume: 100}
}

func TestBuildSeriesSortsAscending(t *testing.T) {
	bars := []Bar{
		barAt(day(2024, 3, 3), 3),
		barAt(day(2024, 3, 1), 1),
		barAt(day(2024, 3, 2), 2),
	}
	s := BuildSeries(bars, day(2024, 1, 1))
	assert.Len(t, s, 3)
	assert.Equal(t, 1.0, s[0].Close)
	assert.Equal(t, 2.0, s[1].Close)
	assert.Equal(t, 3.0, s[2].Close)
}

func TestBuildSeriesDuplicateTimestampLastWins(t *testing.T) {
	ts := day(2024, 3, 1)
	bars := []Bar{
		barAt(ts, 10),
		barAt(day(2024, 3, 2), 20),
		barAt(ts, 11), // inserted later, must replace the first
	}
	s := BuildSeries(bars, day(2024, 1, 1))
	assert.Len(t, s, 2)
	assert.Equal(t, 11.0, s[0].Close)
	assert.Equal(t, 20.0, s[1].Close)
}

func TestBuildSeriesFiltersBelowBoundary(t *testing.T) {
	bars := []Bar{
		barAt(day(2019, 12, 30), 1),
		barAt(day(2019, 12, 31), 2),
		barAt(day(2020, 1, 1), 3),
		barAt(day(2020, 1, 2), 4),
		barAt(day(2020, 1, 3), 5),
	}
	s := BuildSeries(bars, day(2020, 1, 1))
	assert.Len(t, s, 3)
	for _, b := range s {
		assert.False(t, b.Time().Before(day(2020, 1, 1)))
	}
}

func TestBuildSeriesEmpty(t *testing.T) {
	assert.Nil(t, BuildSeries(nil, day(2020, 1, 1)))
	// All bars below boundary collapse to nil as well.
	s := BuildSeries([]Bar{barAt(day(2019, 1, 1), 1)}, day(2020, 1, 1))
	assert.Nil(t, s)
}

func TestSeriesSpanAndReturn(t *testing.T) {
	s := BuildSeries([]Bar{
		barAt(day(2020, 1, 2), 100),
		barAt(day(2020, 6, 1), 150),
	}, day(2020, 1, 1))
	first, last := s.Span()
	assert.Equal(t, day(2020, 1, 2), first)
	assert.Equal(t, day(2020, 6, 1), last)
	assert.InDelta(t, 50.0, s.TotalReturn(), 1e-9)

	var empty Series
	assert.Equal(t, 0.0, empty.TotalReturn())
}

func TestSeriesMidnight(t *testing.T) {
	daily := Series{barAt(day(2024, 3, 1), 1), barAt(day(2024, 3, 2), 2)}
	assert.True(t, daily.Midnight())

	intraday := Series{{Timestamp: day(2024, 3, 1).UnixMilli() + 9*3600*1000, Close: 1}}
	assert.False(t, intraday.Midnight())
}
