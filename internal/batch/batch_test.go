package batch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ibkr-data/internal/fetch"
	"ibkr-data/internal/ibkr"
	"ibkr-data/internal/model"
	"ibkr-data/internal/saver"
)

type stubFetcher struct {
	reqs []fetch.Request
	fn   func(req fetch.Request) fetch.Outcome
}

func (s *stubFetcher) FetchSeries(_ context.Context, req fetch.Request) fetch.Outcome {
	s.reqs = append(s.reqs, req)
	return s.fn(req)
}

type failingSaver struct{}

func (failingSaver) Extension() string { return "csv" }
func (failingSaver) Save(model.Series, string) error {
	return os.ErrPermission
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleSeries() model.Series {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	return model.Series{
		{Timestamp: day.UnixMilli(), Open: 100, High: 102, Low: 99, Close: 101, Volume: 1000},
		{Timestamp: day.AddDate(0, 0, 1).UnixMilli(), Open: 101, High: 103, Low: 100, Close: 102, Volume: 1100},
	}
}

func TestRunSavesAndReports(t *testing.T) {
	dir := t.TempDir()
	fetcher := &stubFetcher{fn: func(req fetch.Request) fetch.Outcome {
		if req.Symbol == "MSFT" {
			return fetch.Outcome{ErrorMessage: "all exchange configurations failed", Attempts: 5}
		}
		return fetch.Outcome{Success: true, Series: sampleSeries(), Attempts: 1}
	}}
	r := NewRunner(fetcher, saver.New("csv"), testLogger())

	res, err := r.Run(context.Background(), []string{"AAPL", "MSFT", "NVDA"}, ibkr.Equity, Options{
		Host:         "127.0.0.1",
		Port:         7497,
		ClientIDBase: 10,
		OutDir:       dir,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, []string{"AAPL", "NVDA"}, res.Success)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "MSFT", res.Failed[0].Symbol)
	assert.Equal(t, "all exchange configurations failed", res.Failed[0].Reason)
	assert.NotEmpty(t, res.RunID)
	assert.InDelta(t, 66.67, res.SuccessRate(), 0.01)

	// Session ids are base + 1-based position.
	require.Len(t, fetcher.reqs, 3)
	assert.Equal(t, 11, fetcher.reqs[0].ClientID)
	assert.Equal(t, 12, fetcher.reqs[1].ClientID)
	assert.Equal(t, 13, fetcher.reqs[2].ClientID)

	assert.FileExists(t, filepath.Join(dir, "AAPL.csv"))
	assert.FileExists(t, filepath.Join(dir, "NVDA.csv"))
	assert.NoFileExists(t, filepath.Join(dir, "MSFT.csv"))

	var okList []string
	raw, err := os.ReadFile(filepath.Join(dir, successReport))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &okList))
	assert.Equal(t, []string{"AAPL", "NVDA"}, okList)

	failed, err := LoadFailed(dir)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, FailedEntry{Symbol: "MSFT", Kind: "STK", Reason: "all exchange configurations failed"}, failed[0])

	var summary runSummary
	raw, err = os.ReadFile(filepath.Join(dir, summaryReport))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, res.RunID, summary.RunID)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Failed)
}

func TestRunWritesIntoSubDir(t *testing.T) {
	dir := t.TempDir()
	fetcher := &stubFetcher{fn: func(fetch.Request) fetch.Outcome {
		return fetch.Outcome{Success: true, Series: sampleSeries(), Attempts: 1}
	}}
	r := NewRunner(fetcher, saver.New("csv"), testLogger())

	_, err := r.Run(context.Background(), []string{"NDX"}, ibkr.Index, Options{OutDir: dir, SubDir: "indices"})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "indices", "NDX.csv"))
	// Reports stay at the top of the output dir.
	assert.FileExists(t, filepath.Join(dir, summaryReport))
}

func TestRunGroupsSpansKindsAndDirs(t *testing.T) {
	dir := t.TempDir()
	fetcher := &stubFetcher{fn: func(fetch.Request) fetch.Outcome {
		return fetch.Outcome{Success: true, Series: sampleSeries(), Attempts: 1}
	}}
	r := NewRunner(fetcher, saver.New("csv"), testLogger())

	groups := []Group{
		{Symbols: []string{"AAPL", "MSFT"}, Kind: ibkr.Equity},
		{Symbols: []string{"NDX"}, Kind: ibkr.Index, SubDir: "indices"},
	}
	res, err := r.RunGroups(context.Background(), groups, Options{OutDir: dir})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, []string{"AAPL", "MSFT", "NDX"}, res.Success)
	assert.FileExists(t, filepath.Join(dir, "AAPL.csv"))
	assert.FileExists(t, filepath.Join(dir, "indices", "NDX.csv"))

	// Session ids keep counting across groups.
	require.Len(t, fetcher.reqs, 3)
	assert.Equal(t, 3, fetcher.reqs[2].ClientID)
	assert.Equal(t, ibkr.Index, fetcher.reqs[2].Kind)

	// One report set covers the whole run.
	assert.FileExists(t, filepath.Join(dir, summaryReport))
	assert.NoFileExists(t, filepath.Join(dir, failedReport))
}

func TestRunRecordsSaveFailures(t *testing.T) {
	dir := t.TempDir()
	fetcher := &stubFetcher{fn: func(fetch.Request) fetch.Outcome {
		return fetch.Outcome{Success: true, Series: sampleSeries(), Attempts: 1}
	}}
	r := NewRunner(fetcher, failingSaver{}, testLogger())

	res, err := r.Run(context.Background(), []string{"AAPL"}, ibkr.Equity, Options{OutDir: dir})
	require.NoError(t, err)

	assert.Empty(t, res.Success)
	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed[0].Reason, "save:")
}

func TestRunStopsWhenCancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &stubFetcher{fn: func(fetch.Request) fetch.Outcome {
		cancel() // arrives mid-run, like SIGINT
		return fetch.Outcome{Success: true, Series: sampleSeries(), Attempts: 1}
	}}
	r := NewRunner(fetcher, saver.New("json"), testLogger())

	start := time.Now()
	res, err := r.Run(ctx, []string{"AAPL", "MSFT", "NVDA"}, ibkr.Equity, Options{OutDir: dir, Pacing: time.Minute})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []string{"AAPL"}, res.Success)
	require.Len(t, fetcher.reqs, 1)

	// Partial run still leaves reports behind.
	assert.FileExists(t, filepath.Join(dir, successReport))
	assert.FileExists(t, filepath.Join(dir, summaryReport))
}

func TestRunPacesBetweenSymbols(t *testing.T) {
	dir := t.TempDir()
	fetcher := &stubFetcher{fn: func(fetch.Request) fetch.Outcome {
		return fetch.Outcome{Success: true, Series: sampleSeries(), Attempts: 1}
	}}
	r := NewRunner(fetcher, saver.New("json"), testLogger())

	start := time.Now()
	_, err := r.Run(context.Background(), []string{"A", "B", "C"}, ibkr.Equity, Options{OutDir: dir, Pacing: 30 * time.Millisecond})
	require.NoError(t, err)

	// Two gaps of 30ms: after A and after B, none after C.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestLoadFailedMissingReport(t *testing.T) {
	_, err := LoadFailed(t.TempDir())
	assert.Error(t, err)
}

func TestJoinFailedReasons(t *testing.T) {
	var failed []FailedEntry
	for _, s := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		failed = append(failed, FailedEntry{Symbol: s, Reason: "timeout"})
	}
	got := joinFailedReasons(failed)
	assert.Contains(t, got, "A: timeout")
	assert.Contains(t, got, "(+2 more)")
	assert.NotContains(t, got, "F: timeout")

	assert.Equal(t, "", joinFailedReasons(nil))
}
