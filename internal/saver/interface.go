package saver

import (
	"strings"

	"ibkr-data/internal/model"
)

// SeriesSaver persists one symbol's cleaned series to a single file.
type SeriesSaver interface {
	Save(series model.Series, path string) error
	Extension() string
}

// New creates an implementation by format (csv, json, parquet, sqlite).
// Returns nil if the format is not supported.
func New(format string) SeriesSaver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}
	case "json":
		return JSONSaver{}
	case "parquet":
		return ParquetSaver{}
	case "sqlite":
		return SQLiteSaver{}
	default:
		return nil
	}
}
