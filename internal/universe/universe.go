// Package universe loads and cleans the symbol lists the batch runner works on.
package universe

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// TestSubset returns the fixed six-symbol list used by the test mode.
func TestSubset() []string {
	return []string{"AAPL", "MSFT", "GOOGL", "TSLA", "NVDA", "META"}
}

// Load reads a list of symbols from a file.
// Supported formats:
//   - .txt  : one symbol per line, '#' lines are treated as comments
//   - .tsv  : tab-separated, first column is the symbol (constituents dumps)
//   - .json : JSON array of strings
func Load(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe file %s: %w", path, err)
	}

	var symbols []string
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(content, &symbols); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	case ".txt", ".tsv":
		symbols = parseLines(string(content))
	default:
		return nil, fmt.Errorf("unsupported universe file extension %q (use .txt, .tsv or .json)", ext)
	}

	symbols = Clean(symbols)
	slog.Info("loaded universe", "count", len(symbols), "path", path)
	return symbols, nil
}

// parseLines extracts one symbol per non-empty, non-comment line,
// taking the first tab-separated column.
func parseLines(s string) []string {
	var symbols []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '\t'); i >= 0 {
			line = line[:i]
		}
		symbols = append(symbols, line)
	}
	return symbols
}

// Clean normalizes ad-hoc symbol input: strips a leading '$', uppercases,
// drops empties and duplicates while preserving order.
func Clean(symbols []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$")))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
