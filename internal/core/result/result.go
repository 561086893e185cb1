// Package result provides core types for task outcomes and policy evaluation results.
package result

import (
	"errors"
	"time"
)

// Outcome is the binary result of a task run, with simulated variants for dry runs.
type Outcome string

// Outcome constants for task runs.
const (
	OutcomeSuccess          Outcome = "SUCCESS"
	OutcomeFailure          Outcome = "FAILURE"
	OutcomeSimulatedSuccess Outcome = "SIMULATED_SUCCESS"
	OutcomeSimulatedFailure Outcome = "SIMULATED_FAILURE"
)

// OutcomeFor maps an error and the simulate flag onto an Outcome.
func OutcomeFor(err error, simulate bool) Outcome {
	switch {
	case err == nil && simulate:
		return OutcomeSimulatedSuccess
	case err == nil:
		return OutcomeSuccess
	case simulate:
		return OutcomeSimulatedFailure
	default:
		return OutcomeFailure
	}
}

// IsSuccess reports whether the outcome is a (possibly simulated) success.
func (o Outcome) IsSuccess() bool {
	return o == OutcomeSuccess || o == OutcomeSimulatedSuccess
}

// ConfigError reports missing or invalid task configuration.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Message
}

// ProcessingError reports a failure while reading input or building the document.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	if e.Stage == "" {
		return "processing error: " + e.Err.Error()
	}
	return "processing error (" + e.Stage + "): " + e.Err.Error()
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is, or wraps, a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// Counts holds added/deleted/modified tallies for one category.
type Counts struct {
	Added    int `json:"added"`
	Deleted  int `json:"deleted"`
	Modified int `json:"modified"`
}

// Total returns the sum of all tallies.
func (c Counts) Total() int {
	return c.Added + c.Deleted + c.Modified
}

// Changes summarizes what a reconciliation did to a component definition.
type Changes struct {
	Rules           Counts `json:"rules"`
	SetParameters   Counts `json:"set_parameters"`
	ControlMappings Counts `json:"control_mappings"`
	Components      Counts `json:"components"`
}

// Total returns the number of individual changes across all categories.
func (c *Changes) Total() int {
	return c.Rules.Total() + c.SetParameters.Total() + c.ControlMappings.Total() + c.Components.Total()
}

// HasChanges returns true if the reconciliation altered the document.
func (c *Changes) HasChanges() bool {
	return c.Total() > 0
}

// RunReport is the outcome of a generate run as presented to the user.
type RunReport struct {
	RunID         string         `json:"run_id"`
	Task          string         `json:"task"`
	Outcome       Outcome        `json:"outcome"`
	Timestamp     time.Time      `json:"timestamp"`
	Spreadsheet   string         `json:"spreadsheet"`
	Rows          int            `json:"rows"`
	Existing      string         `json:"existing,omitempty"`
	OutputPath    string         `json:"output_path,omitempty"`
	Digest        string         `json:"digest,omitempty"`
	Changes       Changes        `json:"changes"`
	PolicyResults []PolicyResult `json:"policy_results,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// LintReport is the outcome of linting one component definition.
type LintReport struct {
	Document      string         `json:"document"`
	Timestamp     time.Time      `json:"timestamp"`
	PolicyResults []PolicyResult `json:"policy_results"`
	Summary       LintSummary    `json:"summary"`
}

// NewLintReport builds a report and its summary.
func NewLintReport(document string, ts time.Time, results []PolicyResult) *LintReport {
	return &LintReport{
		Document:      document,
		Timestamp:     ts,
		PolicyResults: results,
		Summary:       Summarize(results),
	}
}
