package storage

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// RunPath centralizes path computation for a run's records.
type RunPath struct {
	Task  string // e.g. "csv-to-oscal-cd"
	Date  string // "2026-02-14"
	RunID string
}

// NewRunPath creates a RunPath from a task name, timestamp and run ID.
func NewRunPath(task string, timestamp time.Time, runID string) *RunPath {
	return &RunPath{
		Task:  Slug(task),
		Date:  timestamp.UTC().Format("2006-01-02"),
		RunID: runID,
	}
}

// BasePath returns the run-level directory path.
// Example: "runs/csv-to-oscal-cd/2026-02-14/<run-id>"
func (r *RunPath) BasePath() string {
	return fmt.Sprintf("runs/%s/%s/%s", r.Task, r.Date, r.RunID)
}

// ManifestPath returns the path to the manifest file.
func (r *RunPath) ManifestPath() string {
	return r.BasePath() + "/manifest.json"
}

// ReportPath returns the path to the run report.
func (r *RunPath) ReportPath() string {
	return r.BasePath() + "/report.json"
}

// Slug lowercases name and collapses everything but letters and digits into
// single dashes.
// Example: "CSV to OSCAL CD" -> "csv-to-oscal-cd"
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return "run"
	}
	return b.String()
}
