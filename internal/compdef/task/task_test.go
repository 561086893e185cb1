package task

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigcomply/compdef-cli/internal/compdef/oscalio"
	"github.com/sigcomply/compdef-cli/internal/core/config"
	"github.com/sigcomply/compdef-cli/internal/core/result"
	"github.com/sigcomply/compdef-cli/internal/core/storage"
)

const headings = `$$Component_Title,$$Component_Description,$$Component_Type,$$Rule_Id,$$Rule_Description,$$Profile_Source,$$Profile_Description,$$Control_Id_List,$$Namespace,$$Parameter_Id,$$Parameter_Description,$$Parameter_Value_Default`

const (
	ruleA = `K8s,Kubernetes cluster,Service,rule_a,Rule A,https://example.com/profile.json,NIST 800-53,"ac-2, ac-3_smt.a",https://example.com/ns,param_a,Param A,"1, 2"`
	ruleB = `K8s,Kubernetes cluster,Service,rule_b,Rule B,https://example.com/profile.json,NIST 800-53,ac-6,https://example.com/ns,,,`
)

const violatingPolicy = `
package compdef.custom.always

metadata := {
	"id": "always-fails",
	"name": "Always fails",
	"severity": "high",
	"resource_types": ["oscal:component"]
}

violations contains violation if {
	violation := {"resource_id": input.resource_id, "resource_type": input.resource_type, "reason": "nope"}
}
`

func writeCSV(t *testing.T, dir string, rows ...string) string {
	t.Helper()
	lines := append([]string{headings, "descriptions"}, rows...)
	p := filepath.Join(dir, "rules.csv")
	require.NoError(t, os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0600))
	return p
}

func testConfig(t *testing.T, rows ...string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.New()
	cfg.Task.CSVFile = writeCSV(t, dir, rows...)
	cfg.Task.OutputDir = filepath.Join(dir, "out")
	return cfg
}

func outputPath(cfg *config.Config) string {
	return filepath.Join(cfg.Task.OutputDir, cfg.Task.OutputName)
}

func TestGenerate_NewDocument(t *testing.T) {
	cfg := testConfig(t, ruleA, ruleB)

	report, err := Generate(context.Background(), Options{Config: cfg})
	require.NoError(t, err)

	assert.Equal(t, result.OutcomeSuccess, report.Outcome)
	assert.Equal(t, 2, report.Rows)
	assert.Equal(t, 2, report.Changes.Rules.Added)
	assert.Equal(t, 1, report.Changes.Components.Added)
	assert.Equal(t, config.DefaultOutputName, report.OutputPath)
	assert.NotEmpty(t, report.Digest)
	assert.False(t, result.Summarize(report.PolicyResults).HasFailures(), "%+v", report.PolicyResults)

	cd, err := oscalio.LoadFile(outputPath(cfg))
	require.NoError(t, err)
	require.NotNil(t, cd.Components)
	assert.Len(t, *cd.Components, 1)
}

func TestGenerate_RerunIsByteIdentical(t *testing.T) {
	cfg := testConfig(t, ruleA, ruleB)

	_, err := Generate(context.Background(), Options{Config: cfg})
	require.NoError(t, err)
	first, err := os.ReadFile(outputPath(cfg))
	require.NoError(t, err)

	cfg.Task.ComponentDefinition = outputPath(cfg)
	report, err := Generate(context.Background(), Options{Config: cfg})
	require.NoError(t, err)

	second, err := os.ReadFile(outputPath(cfg))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.False(t, report.Changes.HasChanges())
}

func TestGenerate_Simulate(t *testing.T) {
	cfg := testConfig(t, ruleA)

	report, err := Generate(context.Background(), Options{Config: cfg, Simulate: true})
	require.NoError(t, err)

	assert.Equal(t, result.OutcomeSimulatedSuccess, report.Outcome)
	assert.Empty(t, report.OutputPath)
	assert.NoFileExists(t, outputPath(cfg))
}

func TestGenerate_MissingConfiguration(t *testing.T) {
	cfg := config.New()

	report, err := Generate(context.Background(), Options{Config: cfg})
	require.Error(t, err)
	assert.True(t, result.IsConfigError(err))
	assert.Equal(t, result.OutcomeFailure, report.Outcome)
	assert.Contains(t, report.Error, "csv_file")

	report, err = Generate(context.Background(), Options{Config: cfg, Simulate: true})
	require.Error(t, err)
	assert.Equal(t, result.OutcomeSimulatedFailure, report.Outcome)
}

func TestGenerate_UnsupportedSpreadsheet(t *testing.T) {
	cfg := testConfig(t, ruleA)
	cfg.Task.CSVFile = strings.TrimSuffix(cfg.Task.CSVFile, ".csv") + ".ods"

	_, err := Generate(context.Background(), Options{Config: cfg})
	assert.True(t, result.IsConfigError(err))
}

func TestGenerate_FailureLeavesPreviousOutput(t *testing.T) {
	cfg := testConfig(t, ruleA)
	_, err := Generate(context.Background(), Options{Config: cfg})
	require.NoError(t, err)
	before, err := os.ReadFile(outputPath(cfg))
	require.NoError(t, err)

	writeCSV(t, filepath.Dir(cfg.Task.CSVFile), ruleA, ruleA)
	report, err := Generate(context.Background(), Options{Config: cfg})
	require.Error(t, err)

	var procErr *result.ProcessingError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, "sheet", procErr.Stage)
	assert.Equal(t, result.OutcomeFailure, report.Outcome)

	after, err := os.ReadFile(outputPath(cfg))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestGenerate_RefusesOverwrite(t *testing.T) {
	cfg := testConfig(t, ruleA)
	require.NoError(t, os.MkdirAll(cfg.Task.OutputDir, 0750))
	require.NoError(t, os.WriteFile(outputPath(cfg), []byte("previous"), 0600))

	no := false
	cfg.Task.OutputOverwrite = &no
	_, err := Generate(context.Background(), Options{Config: cfg})

	var exists *storage.ExistsError
	require.ErrorAs(t, err, &exists)

	data, err := os.ReadFile(outputPath(cfg))
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
}

func TestGenerate_BadExistingDocument(t *testing.T) {
	cfg := testConfig(t, ruleA)
	bad := filepath.Join(t.TempDir(), "cd.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"catalog": {}}`), 0600))
	cfg.Task.ComponentDefinition = bad

	_, err := Generate(context.Background(), Options{Config: cfg})
	require.Error(t, err)
	assert.True(t, errors.Is(err, oscalio.ErrNotComponentDefinition))
}

func TestGenerate_FailOnViolation(t *testing.T) {
	cfg := testConfig(t, ruleA)
	cfg.PolicyDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PolicyDir, "always.rego"), []byte(violatingPolicy), 0600))

	report, err := Generate(context.Background(), Options{Config: cfg, Simulate: true})
	require.NoError(t, err, "violations only fail the run when configured")
	assert.True(t, result.Summarize(report.PolicyResults).HasFailures())

	cfg.FailOnViolation = true
	_, err = Generate(context.Background(), Options{Config: cfg})
	require.ErrorIs(t, err, ErrPolicyViolations)
	assert.NoFileExists(t, outputPath(cfg))
}

func TestGenerate_LintDisabled(t *testing.T) {
	cfg := testConfig(t, ruleA)
	cfg.LintEnabled = false

	report, err := Generate(context.Background(), Options{Config: cfg, Simulate: true})
	require.NoError(t, err)
	assert.Empty(t, report.PolicyResults)
}

func TestGenerate_Records(t *testing.T) {
	cfg := testConfig(t, ruleA)
	cfg.Storage.Records = true

	report, err := Generate(context.Background(), Options{Config: cfg})
	require.NoError(t, err)

	backend := storage.NewLocalBackend(&storage.LocalConfig{Path: cfg.Task.OutputDir})
	items, err := backend.List(context.Background(), &storage.ListFilter{Prefix: "runs"})
	require.NoError(t, err)
	require.Len(t, items, 2, "manifest and report")

	var manifestPath string
	for _, it := range items {
		if strings.HasSuffix(it.Path, "manifest.json") {
			manifestPath = it.Path
		}
	}
	require.NotEmpty(t, manifestPath)
	assert.Contains(t, manifestPath, report.RunID)

	m, err := storage.LoadManifest(context.Background(), backend, manifestPath)
	require.NoError(t, err)
	assert.Equal(t, report.Digest, m.ContentDigest)
	assert.Equal(t, 1, m.Changes.Rules.Added)
	require.NotNil(t, m.Document)
	assert.Equal(t, config.DefaultOutputName, m.Document.Path)
}

// failingPutBackend fails every Put after the first failAfter calls.
type failingPutBackend struct {
	storage.Backend
	failAfter int
	puts      int
}

func (b *failingPutBackend) Put(ctx context.Context, path string, data []byte, opts *storage.PutOptions) (*storage.StoredItem, error) {
	b.puts++
	if b.puts > b.failAfter {
		return nil, errors.New("bucket unavailable")
	}
	return b.Backend.Put(ctx, path, data, opts)
}

func TestGenerate_RecordFailureAfterDocumentIsWarning(t *testing.T) {
	cfg := testConfig(t, ruleA)
	cfg.Storage.Records = true
	backend := &failingPutBackend{
		Backend:   storage.NewLocalBackend(&storage.LocalConfig{Path: cfg.Task.OutputDir}),
		failAfter: 1,
	}

	report, err := Generate(context.Background(), Options{Config: cfg, Backend: backend})
	require.NoError(t, err)

	assert.Equal(t, result.OutcomeSuccess, report.Outcome)
	assert.Empty(t, report.Error)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "bucket unavailable")
	assert.Equal(t, 2, backend.puts, "document then report")

	cd, err := oscalio.LoadFile(outputPath(cfg))
	require.NoError(t, err)
	require.NotNil(t, cd.Components)
	assert.Len(t, *cd.Components, 1)
}

type stubReader map[string]string

func (s stubReader) Read(_ context.Context, ref string) ([]byte, error) {
	data, ok := s[ref]
	if !ok {
		return nil, errors.New("not found: " + ref)
	}
	return []byte(data), nil
}

func TestGenerate_CustomReader(t *testing.T) {
	cfg := config.New()
	cfg.Task.CSVFile = "github:acme/controls/rules.csv@main"
	cfg.Task.OutputDir = t.TempDir()
	reader := stubReader{cfg.Task.CSVFile: headings + "\ndescriptions\n" + ruleB + "\n"}

	report, err := Generate(context.Background(), Options{Config: cfg, Reader: reader})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rows)
	assert.FileExists(t, outputPath(cfg))
}
