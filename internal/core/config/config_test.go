package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigcomply/compdef-cli/internal/core/result"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, DefaultTask, cfg.Task.Name)
	assert.Equal(t, DefaultOutputName, cfg.Task.OutputName)
	assert.True(t, cfg.Task.Overwrite())
	assert.Equal(t, "text", cfg.OutputFormat)
	assert.True(t, cfg.LintEnabled)
	assert.False(t, cfg.FailOnViolation)
	assert.Equal(t, []string{DefaultLintPack}, cfg.LintPacks)
	assert.Equal(t, "local", cfg.Storage.Backend)
	require.NoError(t, cfg.Validate())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(p, []byte(content), 0600))
	return p
}

func TestConfig_LoadFromFile(t *testing.T) {
	p := writeConfig(t, `
task:
  title: Cluster controls
  version: "2.1"
  csv_file: rules.csv
  component_definition: github:acme/controls/cd.json@main
  output_dir: /abs/out
  output_overwrite: false
  user_namespace: https://acme.example/ns
  class_columns:
    Rule_Id: scc_rule_id
output:
  format: json
  verbose: true
lint:
  enabled: false
  fail_on_violation: true
  packs: [builtin, extra]
  policy_dir: policies
storage:
  backend: s3
  records: true
  s3:
    bucket: oscal-artifacts
    region: eu-west-1
    prefix: cd/
`)

	cfg := New()
	require.NoError(t, cfg.LoadFromFile(p))

	assert.Equal(t, p, cfg.ConfigFile)
	assert.Equal(t, "Cluster controls", cfg.Task.Title)
	assert.Equal(t, "2.1", cfg.Task.Version)
	assert.Equal(t, filepath.Join(filepath.Dir(p), "rules.csv"), cfg.Task.CSVFile)
	assert.Equal(t, "github:acme/controls/cd.json@main", cfg.Task.ComponentDefinition)
	assert.Equal(t, "/abs/out", cfg.Task.OutputDir)
	assert.False(t, cfg.Task.Overwrite())
	assert.Equal(t, "https://acme.example/ns", cfg.Task.UserNamespace)
	assert.Equal(t, map[string]string{"Rule_Id": "scc_rule_id"}, cfg.Task.ClassColumns)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.True(t, cfg.Verbose)
	assert.False(t, cfg.LintEnabled)
	assert.True(t, cfg.FailOnViolation)
	assert.Equal(t, []string{"builtin", "extra"}, cfg.LintPacks)
	assert.Equal(t, "policies", cfg.PolicyDir)
	assert.Equal(t, StorageConfig{Backend: "s3", Records: true, Bucket: "oscal-artifacts", Region: "eu-west-1", Prefix: "cd/"}, cfg.Storage)
	require.NoError(t, cfg.Validate())
}

func TestConfig_LoadFromFile_Errors(t *testing.T) {
	cfg := New()
	require.NoError(t, cfg.LoadFromFile(""))

	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, result.IsConfigError(err))

	err = cfg.LoadFromFile(writeConfig(t, "task: [not, a, map]"))
	assert.True(t, result.IsConfigError(err))
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("COMPDEF_CSV_FILE", "env.csv")
	t.Setenv("COMPDEF_OUTPUT_DIR", "out")
	t.Setenv("COMPDEF_OUTPUT_FORMAT", "junit")
	t.Setenv("COMPDEF_LINT", "false")
	t.Setenv("COMPDEF_FAIL_ON_VIOLATION", "true")
	t.Setenv("COMPDEF_STORAGE_BACKEND", "s3")
	t.Setenv("COMPDEF_STORAGE_BUCKET", "bucket")
	t.Setenv("GITHUB_TOKEN", "ghp_test")

	cfg := New()
	cfg.LoadFromEnv()

	assert.Equal(t, "env.csv", cfg.Task.CSVFile)
	assert.Equal(t, "out", cfg.Task.OutputDir)
	assert.Equal(t, "junit", cfg.OutputFormat)
	assert.False(t, cfg.LintEnabled)
	assert.True(t, cfg.FailOnViolation)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "bucket", cfg.Storage.Bucket)
	assert.Equal(t, "ghp_test", cfg.GitHubToken)
}

func TestConfig_EnvOverridesFile(t *testing.T) {
	p := writeConfig(t, "task:\n  csv_file: /from/file.csv\noutput:\n  format: json\n")
	t.Setenv("COMPDEF_CSV_FILE", "/from/env.csv")

	cfg, err := LoadWithConfigPath(p)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.csv", cfg.Task.CSVFile)
	assert.Equal(t, "json", cfg.OutputFormat)
}

func TestConfig_FindConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())

	assert.Equal(t, "", findConfigFile(""))
	assert.Equal(t, "explicit.yaml", findConfigFile("explicit.yaml"))

	require.NoError(t, os.WriteFile(FileName, []byte("{}"), 0600))
	assert.Equal(t, FileName, findConfigFile(""))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad format", func(c *Config) { c.OutputFormat = "sarif" }, "invalid output format"},
		{"bad backend", func(c *Config) { c.Storage.Backend = "gcs" }, "invalid storage backend"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = "s3" }, "bucket is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, result.IsConfigError(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateTask(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing csv", func(c *Config) { c.Task.CSVFile = "" }, "csv_file is required"},
		{"missing output dir", func(c *Config) { c.Task.OutputDir = "" }, "output_dir is required"},
		{"output name with path", func(c *Config) { c.Task.OutputName = "a/b.json" }, "output_name"},
		{"empty class column", func(c *Config) { c.Task.ClassColumns = map[string]string{" ": "x"} }, "class_columns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Task.CSVFile = "rules.csv"
			cfg.Task.OutputDir = "out"
			tt.modify(cfg)
			err := cfg.ValidateTask()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, result.IsConfigError(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_LoadFromFile_RemotePathsKept(t *testing.T) {
	p := writeConfig(t, `
task:
  csv_file: s3://acme-controls/rules.xlsx
  output_dir: oscal/cd
storage:
  backend: s3
  s3:
    bucket: oscal-artifacts
`)

	cfg := New()
	require.NoError(t, cfg.LoadFromFile(p))
	assert.Equal(t, "s3://acme-controls/rules.xlsx", cfg.Task.CSVFile)
	assert.Equal(t, "oscal/cd", cfg.Task.OutputDir, "S3 output is a key prefix")
}
