package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"ibkr-data/internal/app"
	"ibkr-data/internal/batch"
)

func TestWindow(t *testing.T) {
	symbols := []string{"A", "B", "C", "D", "E"}

	assert.Equal(t, symbols, window(symbols, 0, 0))
	assert.Equal(t, []string{"A", "B", "C"}, window(symbols, 3, 0))
	assert.Equal(t, []string{"C", "D", "E"}, window(symbols, 0, 3))
	// max-count applies first, then the 1-based offset.
	assert.Equal(t, []string{"B", "C"}, window(symbols, 3, 2))
	assert.Nil(t, window(symbols, 2, 5))
}

func TestConfirmFull(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"Y\n", true},
		{"yes\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"whatever\n", false},
	}
	for _, c := range cases {
		var out bytes.Buffer
		got := confirmFull(strings.NewReader(c.input), &out, 100)
		assert.Equal(t, c.want, got, "input %q", c.input)
		assert.Contains(t, out.String(), "100 symbols")
		assert.Contains(t, out.String(), "(y/N)")
	}
}

func TestConfirmFullEstimate(t *testing.T) {
	var out bytes.Buffer
	confirmFull(strings.NewReader("n\n"), &out, 102)
	// 102 symbols at ~10s each.
	assert.Contains(t, out.String(), "17 minutes")
}

func TestFetchFlagsOverrideConfig(t *testing.T) {
	cfg := &app.Config{
		Host:          "127.0.0.1",
		Port:          7496,
		ClientID:      5,
		DataDir:       "data",
		StartDate:     "2008-01-01",
		BarSize:       "1 day",
		PacingSeconds: 3,
	}

	ff := fetchFlags{}
	opts := ff.options(cfg, "indices")
	assert.Equal(t, batch.Options{
		Host:         "127.0.0.1",
		Port:         7496,
		ClientIDBase: 5,
		StartDate:    "2008-01-01",
		BarSize:      "1 day",
		OutDir:       "data",
		SubDir:       "indices",
		Pacing:       cfg.Pacing(),
	}, opts)

	ff = fetchFlags{startDate: "2024-01-01", barSize: "5 mins", out: "/tmp/x"}
	opts = ff.options(cfg, "")
	assert.Equal(t, "2024-01-01", opts.StartDate)
	assert.Equal(t, "5 mins", opts.BarSize)
	assert.Equal(t, "/tmp/x", opts.OutDir)
}
