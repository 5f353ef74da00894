//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"ibkr-data/internal/app"
)

// InitializeApp builds the App via Wire. The returned cleanup closes the
// log file, if one is open.
func InitializeApp(path app.ConfigPath) (*app.App, func(), error) {
	wire.Build(
		app.ProvideConfig,
		app.ProvideLogger,
		app.ProvideSeriesSaver,
		app.ProvideFetcher,
		app.ProvideRunner,
		wire.Struct(new(app.App), "*"),
	)
	return nil, nil, nil
}
