//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject

package main

import (
	"ibkr-data/internal/app"
)

// InitializeApp builds the App via Wire. The returned cleanup closes the
// log file, if one is open.
func InitializeApp(path app.ConfigPath) (*app.App, func(), error) {
	config, err := app.ProvideConfig(path)
	if err != nil {
		return nil, nil, err
	}
	logger, cleanup, err := app.ProvideLogger(config)
	if err != nil {
		return nil, nil, err
	}
	seriesSaver, err := app.ProvideSeriesSaver(config)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	fetcher := app.ProvideFetcher(config, logger)
	runner := app.ProvideRunner(fetcher, seriesSaver, logger)
	appApp := &app.App{
		Config:  config,
		Logger:  logger,
		Saver:   seriesSaver,
		Fetcher: fetcher,
		Runner:  runner,
	}
	return appApp, func() {
		cleanup()
	}, nil
}
