package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/google/subcommands"

	"ibkr-data/internal/app"
	"ibkr-data/internal/slogx"
)

func init() {
	slog.SetDefault(slogx.NewDefault("info"))
}

func main() {
	configPath := flag.String("config", os.Getenv("IBKR_DATA_CONFIG"), "path to YAML config file")

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&testCmd{}, "fetch")
	subcommands.Register(&fullCmd{}, "fetch")
	subcommands.Register(&listCmd{}, "fetch")
	subcommands.Register(&indexCmd{}, "fetch")
	subcommands.Register(&retryCmd{}, "fetch")

	flag.Parse()
	os.Exit(int(run(*configPath)))
}

func run(configPath string) subcommands.ExitStatus {
	a, cleanup, err := InitializeApp(app.ConfigPath(configPath))
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		return subcommands.ExitFailure
	}
	defer cleanup()

	ctx, stop := app.SignalContext(context.Background())
	defer stop()

	return subcommands.Execute(ctx, a)
}
