// Package output renders run and lint reports.
package output

import (
	"fmt"
	"io"

	"github.com/sigcomply/compdef-cli/internal/core/result"
)

// Supported output formats.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatJUnit = "junit"
)

// Formatter renders reports to a writer.
type Formatter interface {
	FormatRunReport(report *result.RunReport) error
	FormatLintReport(report *result.LintReport) error
}

// New returns the formatter for format.
func New(format string, w io.Writer) (Formatter, error) {
	switch format {
	case FormatText, "":
		return NewTextFormatter(w), nil
	case FormatJSON:
		return NewJSONFormatter(w), nil
	case FormatJUnit:
		return NewJUnitFormatter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
