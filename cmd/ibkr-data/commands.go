package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"

	"ibkr-data/internal/app"
	"ibkr-data/internal/batch"
	"ibkr-data/internal/ibkr"
	"ibkr-data/internal/universe"
)

// fetchFlags are shared by every fetch command. Empty values defer to config.
type fetchFlags struct {
	startDate string
	barSize   string
	out       string
}

func (ff *fetchFlags) register(f *flag.FlagSet) {
	f.StringVar(&ff.startDate, "start-date", "", "history start date, YYYY-MM-DD or YYYYMMDD")
	f.StringVar(&ff.barSize, "bar-size", "", `bar size, e.g. "1 day", "5 mins"`)
	f.StringVar(&ff.out, "out", "", "output directory")
}

func (ff *fetchFlags) options(cfg *app.Config, subDir string) batch.Options {
	opts := batch.Options{
		Host:         cfg.Host,
		Port:         cfg.Port,
		ClientIDBase: cfg.ClientID,
		StartDate:    cfg.StartDate,
		BarSize:      cfg.BarSize,
		OutDir:       cfg.DataDir,
		SubDir:       subDir,
		Pacing:       cfg.Pacing(),
	}
	if ff.startDate != "" {
		opts.StartDate = ff.startDate
	}
	if ff.barSize != "" {
		opts.BarSize = ff.barSize
	}
	if ff.out != "" {
		opts.OutDir = ff.out
	}
	return opts
}

// windowFlags trim the symbol list of the universe-driven commands.
type windowFlags struct {
	maxCount  int
	startFrom int
}

func (wf *windowFlags) register(f *flag.FlagSet) {
	f.IntVar(&wf.maxCount, "max-count", 0, "process at most N symbols")
	f.IntVar(&wf.startFrom, "start-from", 0, "start at the 1-based position")
}

// window trims the symbol list: -max-count first, then -start-from (1-based).
func window(symbols []string, maxCount, startFrom int) []string {
	if maxCount > 0 && maxCount < len(symbols) {
		symbols = symbols[:maxCount]
	}
	if startFrom > 1 {
		if startFrom > len(symbols) {
			return nil
		}
		symbols = symbols[startFrom-1:]
	}
	return symbols
}

// confirmFull gates the full-universe mode behind a y/N prompt.
func confirmFull(in io.Reader, out io.Writer, symbols int) bool {
	fmt.Fprintf(out, "About to fetch history for all %d symbols.\n", symbols)
	fmt.Fprintf(out, "Estimated time: %.0f minutes.\n", float64(symbols)*10/60)
	fmt.Fprint(out, "Continue? (y/N): ")
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func runBatch(ctx context.Context, a *app.App, symbols []string, kind ibkr.AssetKind, opts batch.Options) subcommands.ExitStatus {
	if len(symbols) == 0 {
		a.Logger.Error("no symbols to fetch")
		return subcommands.ExitFailure
	}
	if _, err := a.Runner.Run(ctx, symbols, kind, opts); err != nil {
		a.Logger.Error("batch run failed", "error", err)
		return subcommands.ExitFailure
	}
	if ctx.Err() != nil {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type testCmd struct {
	fetchFlags
	windowFlags
}

func (*testCmd) Name() string     { return "test" }
func (*testCmd) Synopsis() string { return "fetch the fixed six-symbol test subset" }
func (*testCmd) Usage() string {
	return `test [-max-count N] [-start-from I] [-start-date D] [-bar-size S] [-out DIR]:
  Fetch AAPL MSFT GOOGL TSLA NVDA META. Quick check that TWS is reachable.
`
}

func (c *testCmd) SetFlags(f *flag.FlagSet) {
	c.fetchFlags.register(f)
	c.windowFlags.register(f)
}

func (c *testCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := args[0].(*app.App)
	symbols := window(universe.TestSubset(), c.maxCount, c.startFrom)
	return runBatch(ctx, a, symbols, ibkr.Equity, c.options(a.Config, ""))
}

type fullCmd struct {
	fetchFlags
	windowFlags
}

func (*fullCmd) Name() string     { return "full" }
func (*fullCmd) Synopsis() string { return "fetch the whole universe file" }
func (*fullCmd) Usage() string {
	return `full [-max-count N] [-start-from I] [-start-date D] [-bar-size S] [-out DIR]:
  Fetch every symbol of the configured universe file. Asks for confirmation.
`
}

func (c *fullCmd) SetFlags(f *flag.FlagSet) {
	c.fetchFlags.register(f)
	c.windowFlags.register(f)
}

func (c *fullCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := args[0].(*app.App)
	symbols, err := universe.Load(a.Config.UniverseFile)
	if err != nil {
		a.Logger.Error("failed to load universe", "error", err)
		return subcommands.ExitFailure
	}
	if !confirmFull(os.Stdin, os.Stdout, len(symbols)) {
		fmt.Println("cancelled")
		return subcommands.ExitSuccess
	}
	return runBatch(ctx, a, window(symbols, c.maxCount, c.startFrom), ibkr.Equity, c.options(a.Config, ""))
}

type listCmd struct{ fetchFlags }

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "fetch an explicit symbol list" }
func (*listCmd) Usage() string {
	return `list [-start-date D] [-bar-size S] [-out DIR] SYMBOL...:
  Fetch the given stock symbols into the custom_list subdirectory.
`
}
func (c *listCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *listCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := args[0].(*app.App)
	return runBatch(ctx, a, universe.Clean(f.Args()), ibkr.Equity, c.options(a.Config, "custom_list"))
}

type indexCmd struct{ fetchFlags }

func (*indexCmd) Name() string     { return "index" }
func (*indexCmd) Synopsis() string { return "fetch index symbols" }
func (*indexCmd) Usage() string {
	return `index [-start-date D] [-bar-size S] [-out DIR] SYMBOL...:
  Fetch the given indices (e.g. NDX SPX VIX) into the indices subdirectory.
`
}
func (c *indexCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *indexCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := args[0].(*app.App)
	return runBatch(ctx, a, universe.Clean(f.Args()), ibkr.Index, c.options(a.Config, "indices"))
}

type retryCmd struct{ fetchFlags }

func (*retryCmd) Name() string     { return "retry" }
func (*retryCmd) Synopsis() string { return "resubmit the failed symbols of the last run" }
func (*retryCmd) Usage() string {
	return `retry [-start-date D] [-bar-size S] [-out DIR]:
  Read .lastrun.failed.json from the output directory and fetch those symbols again.
`
}
func (c *retryCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *retryCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := args[0].(*app.App)
	dir := a.Config.DataDir
	if c.out != "" {
		dir = c.out
	}
	failed, err := batch.LoadFailed(dir)
	if err != nil {
		a.Logger.Error("failed to load retry list", "error", err)
		return subcommands.ExitFailure
	}
	var stocks, indices []string
	for _, e := range failed {
		if ibkr.AssetKind(e.Kind) == ibkr.Index {
			indices = append(indices, e.Symbol)
		} else {
			stocks = append(stocks, e.Symbol)
		}
	}
	if len(stocks) == 0 && len(indices) == 0 {
		a.Logger.Info("nothing to retry")
		return subcommands.ExitSuccess
	}
	a.Logger.Info("retrying failed symbols", "stocks", len(stocks), "indices", len(indices))

	var groups []batch.Group
	if len(stocks) > 0 {
		groups = append(groups, batch.Group{Symbols: stocks, Kind: ibkr.Equity})
	}
	if len(indices) > 0 {
		groups = append(groups, batch.Group{Symbols: indices, Kind: ibkr.Index, SubDir: "indices"})
	}
	opts := c.options(a.Config, "")
	if _, err := a.Runner.RunGroups(ctx, groups, opts); err != nil {
		a.Logger.Error("batch run failed", "error", err)
		return subcommands.ExitFailure
	}
	if ctx.Err() != nil {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
