package batch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	successReport = ".lastrun.success.json"
	failedReport  = ".lastrun.failed.json"
	summaryReport = ".lastrun.summary.json"
)

// FailedEntry records one symbol that produced no file this run.
type FailedEntry struct {
	Symbol string `json:"symbol"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

type runSummary struct {
	RunID          string  `json:"run_id"`
	Total          int     `json:"total"`
	Success        int     `json:"success"`
	Failed         int     `json:"failed"`
	SuccessRatePct float64 `json:"success_rate_pct"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	FinishedAt     string  `json:"finished_at"`
}

func writeRunReports(dir string, res Result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if len(res.Success) > 0 {
		if err := writeJSON(filepath.Join(dir, successReport), res.Success); err != nil {
			return err
		}
		slog.Info("report wrote success", "path", filepath.Join(dir, successReport), "symbols", len(res.Success))
	}
	if len(res.Failed) > 0 {
		if err := writeJSON(filepath.Join(dir, failedReport), res.Failed); err != nil {
			return err
		}
		slog.Info("report wrote failed", "path", filepath.Join(dir, failedReport), "count", len(res.Failed))
	}
	summary := runSummary{
		RunID:          res.RunID,
		Total:          res.Total,
		Success:        len(res.Success),
		Failed:         len(res.Failed),
		SuccessRatePct: res.SuccessRate(),
		ElapsedSeconds: res.Elapsed.Seconds(),
		FinishedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	return writeJSON(filepath.Join(dir, summaryReport), summary)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadFailed reads the failed report of the previous run for resubmission.
func LoadFailed(dir string) ([]FailedEntry, error) {
	path := filepath.Join(dir, failedReport)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read failed report %s: %w", path, err)
	}
	var entries []FailedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse failed report: %w", err)
	}
	return entries, nil
}

func joinFailedReasons(failed []FailedEntry) string {
	if len(failed) == 0 {
		return ""
	}
	var b strings.Builder
	for i, f := range failed {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.Symbol)
		b.WriteString(": ")
		b.WriteString(f.Reason)
		if i >= 4 && len(failed) > 6 {
			b.WriteString(fmt.Sprintf(" (+%d more)", len(failed)-5))
			break
		}
	}
	return b.String()
}
