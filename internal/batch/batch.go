// Package batch runs a symbol list through the fetcher one symbol at a
// time, persists each series, and records run reports for retry.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"ibkr-data/internal/fetch"
	"ibkr-data/internal/ibkr"
	"ibkr-data/internal/saver"
)

// SeriesFetcher is the slice of the fetch layer the runner needs.
type SeriesFetcher interface {
	FetchSeries(ctx context.Context, req fetch.Request) fetch.Outcome
}

// Options configure one batch run.
type Options struct {
	Host         string
	Port         int
	ClientIDBase int // per-symbol session id = base + 1-based index
	StartDate    string
	BarSize      string
	OutDir       string        // report dir and default output dir
	SubDir       string        // optional subdir for the data files (indices, custom_list)
	Pacing       time.Duration // sleep between symbols, skipped after the last
}

// Result aggregates one run.
type Result struct {
	RunID   string
	Total   int
	Success []string
	Failed  []FailedEntry
	Elapsed time.Duration
}

// SuccessRate returns the success percentage of the run.
func (r Result) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(len(r.Success)) / float64(r.Total) * 100
}

// Runner downloads symbols sequentially. The broker tolerates one client
// per session id, so there is no worker pool here.
type Runner struct {
	fetcher SeriesFetcher
	saver   saver.SeriesSaver
	logger  *slog.Logger
}

func NewRunner(fetcher SeriesFetcher, sv saver.SeriesSaver, logger *slog.Logger) *Runner {
	return &Runner{fetcher: fetcher, saver: sv, logger: logger}
}

// Group is one slice of a run: symbols fetched with the same asset kind
// into the same subdirectory.
type Group struct {
	Symbols []string
	Kind    ibkr.AssetKind
	SubDir  string
}

// Run fetches every symbol in order and saves each successful series as
// <outdir>/<subdir>/<SYMBOL>.<ext>. Cancelled contexts abort between
// symbols; reports cover whatever completed.
func (r *Runner) Run(ctx context.Context, symbols []string, kind ibkr.AssetKind, opts Options) (Result, error) {
	return r.RunGroups(ctx, []Group{{Symbols: symbols, Kind: kind, SubDir: opts.SubDir}}, opts)
}

type workItem struct {
	symbol string
	kind   ibkr.AssetKind
	dir    string
}

// RunGroups runs several groups as one batch: session ids, pacing and the
// run reports span all of them. Retry mode uses this to resubmit stocks
// and indices from one failed report together.
func (r *Runner) RunGroups(ctx context.Context, groups []Group, opts Options) (Result, error) {
	var items []workItem
	for _, g := range groups {
		dir := opts.OutDir
		if g.SubDir != "" {
			dir = filepath.Join(opts.OutDir, g.SubDir)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Result{}, err
		}
		for _, sym := range g.Symbols {
			items = append(items, workItem{symbol: sym, kind: g.Kind, dir: dir})
		}
	}

	res := Result{RunID: uuid.NewString(), Total: len(items)}
	start := time.Now()
	r.logger.Info("batch start", "run_id", res.RunID, "symbols", len(items), "out", opts.OutDir)

	for i, it := range items {
		if ctx.Err() != nil {
			r.logger.Warn("batch interrupted", "done", i, "remaining", len(items)-i)
			break
		}
		r.logger.Info("symbol start", "symbol", it.symbol, "kind", string(it.kind), "progress", fmt.Sprintf("%d/%d", i+1, len(items)))

		symStart := time.Now()
		outcome := r.fetcher.FetchSeries(ctx, fetch.Request{
			Symbol:    it.symbol,
			Kind:      it.kind,
			StartDate: opts.StartDate,
			BarSize:   opts.BarSize,
			Host:      opts.Host,
			Port:      opts.Port,
			ClientID:  opts.ClientIDBase + i + 1,
		})

		if !outcome.Success {
			res.Failed = append(res.Failed, FailedEntry{Symbol: it.symbol, Kind: string(it.kind), Reason: outcome.ErrorMessage})
			r.logger.Error("symbol failed", "symbol", it.symbol, "reason", outcome.ErrorMessage, "attempts", outcome.Attempts)
		} else {
			path := filepath.Join(it.dir, it.symbol+"."+r.saver.Extension())
			if err := r.saver.Save(outcome.Series, path); err != nil {
				res.Failed = append(res.Failed, FailedEntry{Symbol: it.symbol, Kind: string(it.kind), Reason: "save: " + err.Error()})
				r.logger.Error("symbol save failed", "symbol", it.symbol, "path", path, "error", err)
			} else {
				res.Success = appendUnique(res.Success, it.symbol)
				logSaved(r.logger, it.symbol, outcome, path, time.Since(symStart))
			}
		}

		if opts.Pacing > 0 && i < len(items)-1 {
			if !sleepCtx(ctx, opts.Pacing) {
				r.logger.Warn("batch interrupted", "done", i+1, "remaining", len(items)-i-1)
				break
			}
		}
	}

	res.Elapsed = time.Since(start)
	if err := writeRunReports(opts.OutDir, res); err != nil {
		r.logger.Warn("could not write run report", "error", err)
	}
	r.logger.Info("batch done",
		"run_id", res.RunID,
		"success", len(res.Success),
		"failed", len(res.Failed),
		"rate_pct", res.SuccessRate(),
		"elapsed", res.Elapsed.Round(time.Second).String(),
	)
	if len(res.Failed) > 0 {
		r.logger.Info("failed symbols", "count", len(res.Failed), "reasons", joinFailedReasons(res.Failed))
	}
	return res, nil
}

func logSaved(logger *slog.Logger, sym string, outcome fetch.Outcome, path string, elapsed time.Duration) {
	first, last := outcome.Series.Span()
	attrs := []any{
		"symbol", sym,
		"records", len(outcome.Series),
		"from", first.Format("2006-01-02"),
		"to", last.Format("2006-01-02"),
		"return_pct", roundPct(outcome.Series.TotalReturn()),
		"elapsed", elapsed.Round(time.Millisecond).String(),
	}
	if fi, err := os.Stat(path); err == nil {
		attrs = append(attrs, "size_kb", roundPct(float64(fi.Size())/1024))
	}
	logger.Info("symbol saved", attrs...)
}

func roundPct(v float64) float64 {
	return math.Round(v*100) / 100
}

// sleepCtx waits d or returns false when ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func appendUnique(list []string, sym string) []string {
	for _, s := range list {
		if s == sym {
			return list
		}
	}
	return append(list, sym)
}
