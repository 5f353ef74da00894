package app

import (
	"fmt"
	"log/slog"

	"ibkr-data/internal/batch"
	"ibkr-data/internal/fetch"
	"ibkr-data/internal/saver"
	"ibkr-data/internal/slogx"
)

// ConfigPath selects an explicit YAML config file; empty means defaults.
type ConfigPath string

// App holds the application dependencies built by Wire.
type App struct {
	Config  *Config
	Logger  *slog.Logger
	Saver   saver.SeriesSaver
	Fetcher *fetch.Fetcher
	Runner  *batch.Runner
}

// ProvideConfig loads config (for Wire).
func ProvideConfig(path ConfigPath) (*Config, error) {
	return LoadConfig(string(path))
}

// ProvideLogger builds the process logger and installs it as the slog
// default (for Wire). The cleanup closes the log file, if one is open.
func ProvideLogger(cfg *Config) (*slog.Logger, func(), error) {
	logger, f, err := slogx.NewWithFile(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	slog.SetDefault(logger)
	cleanup := func() {
		if f != nil {
			f.Close()
		}
	}
	return logger, cleanup, nil
}

// ProvideSeriesSaver creates the SeriesSaver from config (for Wire).
// Returns error if SaveFormat is not supported.
func ProvideSeriesSaver(cfg *Config) (saver.SeriesSaver, error) {
	sv := saver.New(cfg.SaveFormat)
	if sv == nil {
		return nil, fmt.Errorf("unsupported save_format %q (use: csv, json, parquet, sqlite)", cfg.SaveFormat)
	}
	return sv, nil
}

// ProvideFetcher creates the per-symbol fetcher (for Wire).
func ProvideFetcher(cfg *Config, logger *slog.Logger) *fetch.Fetcher {
	return fetch.New(cfg.FetchConfig(), logger)
}

// ProvideRunner creates the batch runner (for Wire).
func ProvideRunner(f *fetch.Fetcher, sv saver.SeriesSaver, logger *slog.Logger) *batch.Runner {
	return batch.NewRunner(f, sv, logger)
}
