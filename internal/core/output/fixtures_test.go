package output

import (
	"time"

	"github.com/sigcomply/compdef-cli/internal/core/result"
)

var testTime = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func testPolicyResults() []result.PolicyResult {
	return []result.PolicyResult{
		{
			PolicyID:           "empty-component",
			Name:               "Components carry rules or mappings",
			Status:             result.StatusPass,
			Severity:           result.SeverityHigh,
			Message:            "All resources compliant",
			ResourcesEvaluated: 2,
		},
		{
			PolicyID:           "parameter-default",
			Name:               "Declared parameters have defaults",
			Status:             result.StatusFail,
			Severity:           result.SeverityMedium,
			Message:            "1 violation(s) found",
			ResourcesEvaluated: 2,
			ResourcesFailed:    1,
			Violations: []result.Violation{
				{ResourceID: "K8s/Service", ResourceType: "oscal:component", Reason: "Parameter param_a has no set-parameter"},
			},
		},
		{
			PolicyID: "validation-check",
			Name:     "Validation rules name a check",
			Status:   result.StatusSkip,
			Severity: result.SeverityLow,
			Message:  "No matching resources to evaluate",
		},
		{
			PolicyID: "broken",
			Name:     "Broken",
			Status:   result.StatusError,
			Severity: result.SeverityLow,
			Message:  "Policy evaluation error: boom",
		},
	}
}

func testRunReport() *result.RunReport {
	return &result.RunReport{
		RunID:       "run-1",
		Task:        "csv-to-oscal-cd",
		Outcome:     result.OutcomeSuccess,
		Timestamp:   testTime,
		Spreadsheet: "rules.csv",
		Rows:        3,
		OutputPath:  "out/component-definition.json",
		Digest:      "abc123",
		Changes: result.Changes{
			Rules:           result.Counts{Added: 2, Modified: 1},
			ControlMappings: result.Counts{Added: 4},
		},
		PolicyResults: testPolicyResults(),
	}
}
