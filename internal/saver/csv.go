package saver

import (
	"encoding/csv"
	"os"
	"strconv"

	"ibkr-data/internal/model"
)

const (
	dayLayout  = "2006-01-02"
	timeLayout = "2006-01-02 15:04:05"
)

// CSVSaver writes a date-indexed OHLCV table.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) Save(series model.Series, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	if err := w.Write([]string{"date", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}

	layout := timeLayout
	if series.Midnight() {
		layout = dayLayout
	}
	for _, b := range series {
		rec := []string{
			b.Time().Format(layout),
			floatStr(b.Open),
			floatStr(b.High),
			floatStr(b.Low),
			floatStr(b.Close),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func floatStr(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
