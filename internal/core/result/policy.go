package result

// ResultStatus represents the outcome of a policy evaluation.
type ResultStatus string

// ResultStatus constants for policy evaluation outcomes.
const (
	StatusPass  ResultStatus = "pass"
	StatusFail  ResultStatus = "fail"
	StatusSkip  ResultStatus = "skip"
	StatusError ResultStatus = "error"
)

// IsValid checks if the status is a known valid value.
func (s ResultStatus) IsValid() bool {
	switch s {
	case StatusPass, StatusFail, StatusSkip, StatusError:
		return true
	}
	return false
}

// Severity indicates the importance of a policy or violation.
type Severity string

// Severity constants for policy importance levels.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// IsValid checks if the severity is a known valid value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Violation represents a single policy violation for a specific resource.
type Violation struct {
	ResourceID   string                 `json:"resource_id"`
	ResourceType string                 `json:"resource_type"`
	Reason       string                 `json:"reason"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// PolicyResult represents the outcome of evaluating a single policy.
type PolicyResult struct {
	PolicyID           string       `json:"policy_id"`
	Name               string       `json:"name"`
	Status             ResultStatus `json:"status"`
	Severity           Severity     `json:"severity"`
	Message            string       `json:"message"`
	ResourcesEvaluated int          `json:"resources_evaluated"`
	ResourcesFailed    int          `json:"resources_failed"`
	Violations         []Violation  `json:"violations,omitempty"`
	ResourceTypes      []string     `json:"resource_types,omitempty"`
}

// HasViolations returns true if there are any violations.
func (r *PolicyResult) HasViolations() bool {
	return len(r.Violations) > 0
}

// LintSummary provides aggregate statistics for a lint run.
type LintSummary struct {
	TotalPolicies   int `json:"total_policies"`
	PassedPolicies  int `json:"passed_policies"`
	FailedPolicies  int `json:"failed_policies"`
	SkippedPolicies int `json:"skipped_policies"`
	ErroredPolicies int `json:"errored_policies"`
}

// Summarize computes the summary statistics from policy results.
func Summarize(results []PolicyResult) LintSummary {
	var s LintSummary
	for i := range results {
		s.TotalPolicies++
		switch results[i].Status {
		case StatusPass:
			s.PassedPolicies++
		case StatusFail:
			s.FailedPolicies++
		case StatusSkip:
			s.SkippedPolicies++
		case StatusError:
			s.ErroredPolicies++
		}
	}
	return s
}

// HasFailures returns true if any policy failed or errored.
func (s LintSummary) HasFailures() bool {
	return s.FailedPolicies > 0 || s.ErroredPolicies > 0
}
