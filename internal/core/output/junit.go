package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/sigcomply/compdef-cli/internal/core/result"
)

// JUnitFormatter formats lint results as JUnit XML for CI/CD integration.
type JUnitFormatter struct {
	writer io.Writer
}

// NewJUnitFormatter creates a new JUnit XML formatter.
func NewJUnitFormatter(w io.Writer) *JUnitFormatter {
	return &JUnitFormatter{
		writer: w,
	}
}

// junitTestSuites is the root element of JUnit XML.
type junitTestSuites struct {
	XMLName xml.Name         `xml:"testsuites"`
	Suites  []junitTestSuite `xml:"testsuite"`
}

// junitTestSuite represents a single test suite (one per document).
type junitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	TestCases []junitTestCase `xml:"testcase"`
}

// junitTestCase represents a single test case (one per policy).
type junitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Error     *junitError   `xml:"error,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

// junitFailure represents a test failure (policy violation).
type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

// junitError represents a test error (execution error).
type junitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

// junitSkipped represents a skipped test.
type junitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// FormatLintReport formats a lint report as JUnit XML.
func (f *JUnitFormatter) FormatLintReport(report *result.LintReport) error {
	return f.write(f.buildTestSuite(report.Document, report.Timestamp.Format("2006-01-02T15:04:05"), report.PolicyResults))
}

// FormatRunReport formats the lint results of a generate run as JUnit XML.
func (f *JUnitFormatter) FormatRunReport(report *result.RunReport) error {
	name := report.OutputPath
	if name == "" {
		name = report.Task
	}
	return f.write(f.buildTestSuite(name, report.Timestamp.Format("2006-01-02T15:04:05"), report.PolicyResults))
}

func (f *JUnitFormatter) write(suite junitTestSuite) error {
	testsuites := junitTestSuites{
		Suites: []junitTestSuite{suite},
	}

	if _, err := f.writer.Write([]byte(xml.Header)); err != nil {
		return err
	}

	enc := xml.NewEncoder(f.writer)
	enc.Indent("", "  ")
	if err := enc.Encode(testsuites); err != nil {
		return err
	}
	_, err := f.writer.Write([]byte("\n"))
	return err
}

// buildTestSuite converts policy results into a JUnit test suite.
func (f *JUnitFormatter) buildTestSuite(name, timestamp string, results []result.PolicyResult) junitTestSuite {
	suite := junitTestSuite{
		Name:      name,
		Timestamp: timestamp,
		Tests:     len(results),
		TestCases: make([]junitTestCase, 0, len(results)),
	}

	for i := range results {
		pr := &results[i]
		suite.TestCases = append(suite.TestCases, f.buildTestCase(pr))

		switch pr.Status {
		case result.StatusFail:
			suite.Failures++
		case result.StatusError:
			suite.Errors++
		case result.StatusSkip:
			suite.Skipped++
		}
	}

	return suite
}

// buildTestCase converts a PolicyResult into a JUnit test case.
func (f *JUnitFormatter) buildTestCase(pr *result.PolicyResult) junitTestCase {
	tc := junitTestCase{
		Name:      pr.PolicyID,
		ClassName: "compdef." + string(pr.Severity),
	}

	switch pr.Status {
	case result.StatusFail:
		tc.Failure = &junitFailure{
			Message: pr.Message,
			Type:    string(pr.Severity),
			Content: f.formatViolations(pr.Violations),
		}
	case result.StatusError:
		tc.Error = &junitError{
			Message: pr.Message,
			Type:    "error",
			Content: pr.Message,
		}
	case result.StatusSkip:
		tc.Skipped = &junitSkipped{
			Message: pr.Message,
		}
	}

	return tc
}

// formatViolations formats violations as a string for the failure content.
func (f *JUnitFormatter) formatViolations(violations []result.Violation) string {
	if len(violations) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, v := range violations {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("- %s (%s): %s", v.ResourceID, v.ResourceType, v.Reason))
	}
	return sb.String()
}
