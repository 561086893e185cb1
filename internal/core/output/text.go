package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/sigcomply/compdef-cli/internal/core/result"
)

// TextFormatter formats reports as human-readable text.
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter.
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// FormatRunReport formats the outcome of a generate run.
//
//nolint:errcheck // fmt write errors are not actionable
func (f *TextFormatter) FormatRunReport(report *result.RunReport) error {
	fmt.Fprintf(f.writer, "Task %s\n", report.Task)
	fmt.Fprintf(f.writer, "  Outcome:     %s\n", report.Outcome)
	if report.Spreadsheet != "" {
		fmt.Fprintf(f.writer, "  Spreadsheet: %s (%d rows)\n", report.Spreadsheet, report.Rows)
	}
	if report.Existing != "" {
		fmt.Fprintf(f.writer, "  Existing:    %s\n", report.Existing)
	}
	if report.OutputPath != "" {
		fmt.Fprintf(f.writer, "  Output:      %s\n", report.OutputPath)
	}
	if report.Digest != "" {
		fmt.Fprintf(f.writer, "  Digest:      %s\n", report.Digest)
	}
	for _, w := range report.Warnings {
		fmt.Fprintf(f.writer, "  Warning:     %s\n", w)
	}
	if report.Error != "" {
		fmt.Fprintf(f.writer, "  Error:       %s\n", report.Error)
		return nil
	}

	fmt.Fprintln(f.writer)
	f.formatChanges(&report.Changes)

	if len(report.PolicyResults) > 0 {
		fmt.Fprintln(f.writer)
		f.formatPolicyResults(report.PolicyResults)
		fmt.Fprintln(f.writer)
		f.formatSummary(result.Summarize(report.PolicyResults))
	}
	return nil
}

// FormatLintReport formats a lint report.
//
//nolint:errcheck // fmt write errors are not actionable
func (f *TextFormatter) FormatLintReport(report *result.LintReport) error {
	fmt.Fprintf(f.writer, "Lint %s\n\n", report.Document)
	f.formatPolicyResults(report.PolicyResults)
	fmt.Fprintln(f.writer)
	f.formatSummary(report.Summary)
	return nil
}

//nolint:errcheck // fmt write errors are not actionable
func (f *TextFormatter) formatChanges(c *result.Changes) {
	fmt.Fprintln(f.writer, "Changes")
	fmt.Fprintln(f.writer, "-------")
	if !c.HasChanges() {
		fmt.Fprintln(f.writer, "  none")
		return
	}
	rows := []struct {
		label  string
		counts result.Counts
	}{
		{"Rules", c.Rules},
		{"Set parameters", c.SetParameters},
		{"Control mappings", c.ControlMappings},
		{"Components", c.Components},
	}
	for _, r := range rows {
		fmt.Fprintf(f.writer, "  %-17s %d added, %d deleted, %d modified\n",
			r.label+":", r.counts.Added, r.counts.Deleted, r.counts.Modified)
	}
}

//nolint:errcheck // fmt write errors are not actionable
func (f *TextFormatter) formatPolicyResults(results []result.PolicyResult) {
	fmt.Fprintln(f.writer, "Policy Evaluation")
	fmt.Fprintln(f.writer, "-----------------")

	for i := range results {
		pr := &results[i]
		fmt.Fprintf(f.writer, "  [%s] %s (%s) [%s]\n", statusText(pr.Status), pr.Name, pr.PolicyID, pr.Severity)

		if pr.Message != "" && pr.Status != result.StatusPass {
			fmt.Fprintf(f.writer, "         %s\n", pr.Message)
		}
		if pr.ResourcesEvaluated > 0 {
			fmt.Fprintf(f.writer, "         Resources: %d evaluated, %d failed\n", pr.ResourcesEvaluated, pr.ResourcesFailed)
		}
		for _, v := range pr.Violations {
			fmt.Fprintf(f.writer, "         - %s\n", v.Reason)
			if v.ResourceID != "" {
				fmt.Fprintf(f.writer, "           Resource: %s\n", v.ResourceID)
			}
		}
	}
}

//nolint:errcheck // fmt write errors are not actionable
func (f *TextFormatter) formatSummary(s result.LintSummary) {
	fmt.Fprintln(f.writer, "Summary")
	fmt.Fprintln(f.writer, "-------")
	fmt.Fprintf(f.writer, "  Policies: %d total, %d passed, %d failed, %d skipped, %d errored\n",
		s.TotalPolicies, s.PassedPolicies, s.FailedPolicies, s.SkippedPolicies, s.ErroredPolicies)
}

func statusText(status result.ResultStatus) string {
	return strings.ToUpper(string(status))
}
