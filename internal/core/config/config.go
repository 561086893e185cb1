// Package config provides configuration loading and validation for the compdef CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sigcomply/compdef-cli/internal/core/result"
)

const (
	envTrue  = "true"
	envFalse = "false"

	// FileName is the config file searched for in the working and home directories.
	FileName = ".compdef.yaml"

	// DefaultTask names the spreadsheet to component-definition task.
	DefaultTask = "csv-to-oscal-cd"

	// DefaultOutputName is the file written into the output directory.
	DefaultOutputName = "component-definition.json"

	// DefaultLintPack is the policy pack evaluated when none is configured.
	DefaultLintPack = "builtin"
)

// SupportedOutputFormats lists valid output formats.
var SupportedOutputFormats = []string{"text", "json", "junit"}

// SupportedBackends lists valid storage backends.
var SupportedBackends = []string{"local", "s3"}

// TaskConfig holds the generate task settings.
type TaskConfig struct {
	Name                string            `yaml:"name,omitempty" json:"name"`
	Title               string            `yaml:"title,omitempty" json:"title,omitempty"`
	Version             string            `yaml:"version,omitempty" json:"version,omitempty"`
	CSVFile             string            `yaml:"csv_file,omitempty" json:"csv_file"`
	ComponentDefinition string            `yaml:"component_definition,omitempty" json:"component_definition,omitempty"`
	OutputDir           string            `yaml:"output_dir,omitempty" json:"output_dir"`
	OutputName          string            `yaml:"output_name,omitempty" json:"output_name"`
	OutputOverwrite     *bool             `yaml:"output_overwrite,omitempty" json:"output_overwrite"`
	UserNamespace       string            `yaml:"user_namespace,omitempty" json:"user_namespace,omitempty"`
	ClassColumns        map[string]string `yaml:"class_columns,omitempty" json:"class_columns,omitempty"`
}

// Overwrite reports whether an existing output file may be replaced.
func (t *TaskConfig) Overwrite() bool {
	return t.OutputOverwrite == nil || *t.OutputOverwrite
}

// OutputConfig holds output settings from the config file.
type OutputConfig struct {
	Format  string `yaml:"format,omitempty" json:"format,omitempty"`
	Verbose *bool  `yaml:"verbose,omitempty" json:"verbose,omitempty"`
}

// LintConfig holds policy lint settings from the config file.
type LintConfig struct {
	Enabled         *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	FailOnViolation *bool    `yaml:"fail_on_violation,omitempty" json:"fail_on_violation,omitempty"`
	Packs           []string `yaml:"packs,omitempty" json:"packs,omitempty"`
	PolicyDir       string   `yaml:"policy_dir,omitempty" json:"policy_dir,omitempty"`
}

// S3StorageConfig holds S3 storage settings from the config file.
type S3StorageConfig struct {
	Bucket string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Region string `yaml:"region,omitempty" json:"region,omitempty"`
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// FileStorageConfig holds storage settings as they appear in the YAML file.
type FileStorageConfig struct {
	Backend string           `yaml:"backend,omitempty" json:"backend,omitempty"`
	Records *bool            `yaml:"records,omitempty" json:"records,omitempty"`
	S3      *S3StorageConfig `yaml:"s3,omitempty" json:"s3,omitempty"`
}

// fileConfig mirrors Config with YAML-friendly structure for file parsing.
type fileConfig struct {
	Task    *TaskConfig        `yaml:"task,omitempty"`
	Output  *OutputConfig      `yaml:"output,omitempty"`
	Lint    *LintConfig        `yaml:"lint,omitempty"`
	Storage *FileStorageConfig `yaml:"storage,omitempty"`
}

// Config holds all configuration for a compdef run.
type Config struct {
	Task TaskConfig `json:"task"`

	OutputFormat string `json:"output_format"`
	Verbose      bool   `json:"verbose"`

	LintEnabled     bool     `json:"lint_enabled"`
	FailOnViolation bool     `json:"fail_on_violation"`
	LintPacks       []string `json:"lint_packs"`
	PolicyDir       string   `json:"policy_dir,omitempty"`

	Storage StorageConfig `json:"storage"`

	GitHubToken string `json:"-"` // Never serialize

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `json:"-"`
}

// StorageConfig holds output storage settings. The local backend writes
// under the task's output directory.
type StorageConfig struct {
	Backend string `json:"backend"` // local, s3
	Records bool   `json:"records"` // write a run manifest next to the document
	Bucket  string `json:"bucket"`  // For S3 backend
	Region  string `json:"region"`  // For S3 backend
	Prefix  string `json:"prefix"`  // For S3 backend
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Task: TaskConfig{
			Name:       DefaultTask,
			OutputName: DefaultOutputName,
		},
		OutputFormat:    "text",
		LintEnabled:     true,
		FailOnViolation: false,
		LintPacks:       []string{DefaultLintPack},
		Storage:         StorageConfig{Backend: "local"},
	}
}

// Load creates a fully initialized Config by loading from all sources.
// Precedence: defaults < config file < env vars (CLI flags applied separately).
func Load() (*Config, error) {
	return LoadWithConfigPath("")
}

// LoadWithConfigPath creates a fully initialized Config using a specific config file path.
func LoadWithConfigPath(configPath string) (*Config, error) {
	cfg := New()
	if err := cfg.LoadFromFile(findConfigFile(configPath)); err != nil {
		return nil, err
	}
	cfg.LoadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile determines which config file to load.
// Search order: explicit path > .compdef.yaml in CWD > $HOME/.compdef.yaml.
// Returns empty string if no config file is found.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if _, err := os.Stat(FileName); err == nil {
		return FileName
	}

	home, err := os.UserHomeDir()
	if err == nil {
		homePath := filepath.Join(home, FileName)
		if _, err := os.Stat(homePath); err == nil {
			return homePath
		}
	}

	return ""
}

// LoadFromFile loads configuration from a YAML file. An empty path is a
// no-op; a named file that cannot be read or parsed is a ConfigError.
// Relative input and output paths are resolved against the file's directory.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is the user's config file
	if err != nil {
		return &result.ConfigError{Message: fmt.Sprintf("cannot read config file %s: %v", path, err)}
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return &result.ConfigError{Message: fmt.Sprintf("cannot parse config file %s: %v", path, err)}
	}

	c.ConfigFile = path
	if fc.Task != nil {
		remoteOutput := fc.Storage != nil && fc.Storage.Backend == "s3"
		relativeTo(filepath.Dir(path), fc.Task, remoteOutput)
	}
	c.mergeFileConfig(&fc)
	return nil
}

// relativeTo resolves local task paths against dir. Remote references and an
// S3 output prefix are left as written.
func relativeTo(dir string, t *TaskConfig, remoteOutput bool) {
	paths := []*string{&t.CSVFile, &t.ComponentDefinition}
	if !remoteOutput {
		paths = append(paths, &t.OutputDir)
	}
	for _, p := range paths {
		if *p != "" && !filepath.IsAbs(*p) && !isRemote(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "github:") || strings.HasPrefix(ref, "s3://")
}

// mergeFileConfig merges non-zero values from a parsed file config into this Config.
func (c *Config) mergeFileConfig(fc *fileConfig) {
	if fc.Task != nil {
		c.mergeTaskConfig(fc.Task)
	}

	if fc.Output != nil {
		if fc.Output.Format != "" {
			c.OutputFormat = fc.Output.Format
		}
		if fc.Output.Verbose != nil {
			c.Verbose = *fc.Output.Verbose
		}
	}

	if fc.Lint != nil {
		if fc.Lint.Enabled != nil {
			c.LintEnabled = *fc.Lint.Enabled
		}
		if fc.Lint.FailOnViolation != nil {
			c.FailOnViolation = *fc.Lint.FailOnViolation
		}
		if len(fc.Lint.Packs) > 0 {
			c.LintPacks = fc.Lint.Packs
		}
		if fc.Lint.PolicyDir != "" {
			c.PolicyDir = fc.Lint.PolicyDir
		}
	}

	if fc.Storage != nil {
		c.mergeStorageConfig(fc.Storage)
	}
}

func (c *Config) mergeTaskConfig(t *TaskConfig) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Task.Name, t.Name)
	set(&c.Task.Title, t.Title)
	set(&c.Task.Version, t.Version)
	set(&c.Task.CSVFile, t.CSVFile)
	set(&c.Task.ComponentDefinition, t.ComponentDefinition)
	set(&c.Task.OutputDir, t.OutputDir)
	set(&c.Task.OutputName, t.OutputName)
	set(&c.Task.UserNamespace, t.UserNamespace)
	if t.OutputOverwrite != nil {
		c.Task.OutputOverwrite = t.OutputOverwrite
	}
	if len(t.ClassColumns) > 0 {
		c.Task.ClassColumns = t.ClassColumns
	}
}

// mergeStorageConfig merges file-based storage settings into the flat StorageConfig.
func (c *Config) mergeStorageConfig(fs *FileStorageConfig) {
	if fs.Backend != "" {
		c.Storage.Backend = fs.Backend
	}
	if fs.Records != nil {
		c.Storage.Records = *fs.Records
	}
	if fs.S3 != nil {
		if fs.S3.Bucket != "" {
			c.Storage.Bucket = fs.S3.Bucket
		}
		if fs.S3.Region != "" {
			c.Storage.Region = fs.S3.Region
		}
		if fs.S3.Prefix != "" {
			c.Storage.Prefix = fs.S3.Prefix
		}
	}
}

// LoadFromEnv loads configuration from environment variables.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("COMPDEF_CSV_FILE"); v != "" {
		c.Task.CSVFile = v
	}

	if v := os.Getenv("COMPDEF_COMPONENT_DEFINITION"); v != "" {
		c.Task.ComponentDefinition = v
	}

	if v := os.Getenv("COMPDEF_OUTPUT_DIR"); v != "" {
		c.Task.OutputDir = v
	}

	if v := os.Getenv("COMPDEF_USER_NAMESPACE"); v != "" {
		c.Task.UserNamespace = v
	}

	if v := os.Getenv("COMPDEF_TITLE"); v != "" {
		c.Task.Title = v
	}

	if v := os.Getenv("COMPDEF_VERSION"); v != "" {
		c.Task.Version = v
	}

	if v := os.Getenv("COMPDEF_OUTPUT_FORMAT"); v != "" {
		c.OutputFormat = v
	}

	if os.Getenv("COMPDEF_VERBOSE") == envTrue {
		c.Verbose = true
	}

	switch os.Getenv("COMPDEF_LINT") {
	case envTrue:
		c.LintEnabled = true
	case envFalse:
		c.LintEnabled = false
	}

	if os.Getenv("COMPDEF_FAIL_ON_VIOLATION") == envTrue {
		c.FailOnViolation = true
	}

	if v := os.Getenv("COMPDEF_POLICY_DIR"); v != "" {
		c.PolicyDir = v
	}

	if v := os.Getenv("COMPDEF_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}

	if os.Getenv("COMPDEF_STORAGE_RECORDS") == envTrue {
		c.Storage.Records = true
	}

	if v := os.Getenv("COMPDEF_STORAGE_BUCKET"); v != "" {
		c.Storage.Bucket = v
	}

	if v := os.Getenv("COMPDEF_STORAGE_REGION"); v != "" {
		c.Storage.Region = v
	}

	if v := os.Getenv("COMPDEF_STORAGE_PREFIX"); v != "" {
		c.Storage.Prefix = v
	}

	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHubToken = v
	}
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if !contains(SupportedOutputFormats, c.OutputFormat) {
		return &result.ConfigError{Message: fmt.Sprintf("invalid output format %q: must be one of %v", c.OutputFormat, SupportedOutputFormats)}
	}

	if !contains(SupportedBackends, c.Storage.Backend) {
		return &result.ConfigError{Message: fmt.Sprintf("invalid storage backend %q: must be one of %v", c.Storage.Backend, SupportedBackends)}
	}

	if c.Storage.Backend == "s3" && c.Storage.Bucket == "" {
		return &result.ConfigError{Message: "storage.s3.bucket is required for the s3 backend"}
	}

	return nil
}

// ValidateTask checks the settings the generate task requires.
func (c *Config) ValidateTask() error {
	if c.Task.CSVFile == "" {
		return &result.ConfigError{Message: "task.csv_file is required"}
	}
	if c.Task.OutputDir == "" {
		return &result.ConfigError{Message: "task.output_dir is required"}
	}
	if c.Task.OutputName == "" || strings.ContainsAny(c.Task.OutputName, `/\`) {
		return &result.ConfigError{Message: fmt.Sprintf("invalid task.output_name %q", c.Task.OutputName)}
	}
	for col := range c.Task.ClassColumns {
		if strings.TrimSpace(col) == "" {
			return &result.ConfigError{Message: "task.class_columns has an empty column name"}
		}
	}
	return nil
}

// contains checks if a slice contains a value.
func contains(slice []string, value string) bool {
	for _, v := range slice {
		if v == value {
			return true
		}
	}
	return false
}
