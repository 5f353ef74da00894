package saver

import (
	"encoding/json"
	"os"

	"ibkr-data/internal/model"
)

// JSONSaver writes the series as an indented JSON array.
type JSONSaver struct{}

func (JSONSaver) Extension() string { return "json" }

func (JSONSaver) Save(series model.Series, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(series)
}
