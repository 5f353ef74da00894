package saver

import (
	"github.com/parquet-go/parquet-go"

	"ibkr-data/internal/model"
)

// ParquetSaver writes the series as a Parquet file.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) Save(series model.Series, path string) error {
	return parquet.WriteFile(path, []model.Bar(series))
}
