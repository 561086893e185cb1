package output

import (
	"encoding/json"
	"io"

	"github.com/sigcomply/compdef-cli/internal/core/result"
)

// JSONFormatter formats reports as JSON.
type JSONFormatter struct {
	writer  io.Writer
	compact bool
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{writer: w}
}

// SetCompact sets whether to output compact (non-indented) JSON.
func (f *JSONFormatter) SetCompact(compact bool) *JSONFormatter {
	f.compact = compact
	return f
}

// jsonRunReport adds the lint summary to a run report.
type jsonRunReport struct {
	*result.RunReport
	Summary *result.LintSummary `json:"summary,omitempty"`
}

// FormatRunReport formats a run report as JSON.
func (f *JSONFormatter) FormatRunReport(report *result.RunReport) error {
	out := jsonRunReport{RunReport: report}
	if len(report.PolicyResults) > 0 {
		s := result.Summarize(report.PolicyResults)
		out.Summary = &s
	}
	return f.encode(out)
}

// FormatLintReport formats a lint report as JSON.
func (f *JSONFormatter) FormatLintReport(report *result.LintReport) error {
	return f.encode(report)
}

func (f *JSONFormatter) encode(v interface{}) error {
	enc := json.NewEncoder(f.writer)
	if !f.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
