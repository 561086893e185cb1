package compdef

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sigcomply/compdef-cli/internal/compdef/task"
	"github.com/sigcomply/compdef-cli/internal/core/config"
	"github.com/sigcomply/compdef-cli/internal/core/logging"
	"github.com/sigcomply/compdef-cli/internal/core/output"
	"github.com/sigcomply/compdef-cli/internal/core/result"
)

var (
	flagCSV                 string
	flagComponentDefinition string
	flagOutputDir           string
	flagTitle               string
	flagDocVersion          string
	flagNamespace           string
	flagOverwrite           bool
	flagSimulate            bool
	flagLint                bool
	flagOutput              string
	flagVerbose             bool
)

// errFailed signals a failure that has already been reported.
var errFailed = errors.New("task failed")

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"csv-to-cd"},
		Short:   "Generate or update a component definition from a spreadsheet",
		Long: `Generate or update an OSCAL component definition from a spreadsheet.

Rows are reconciled against --component-definition when given: rules,
set-parameters and control mappings missing from the spreadsheet are
deleted, new ones are added, and changed values are updated in place.

Examples:
  # Create a new component definition
  compdef generate --csv rules.csv --output-dir out

  # Update the previous output in place
  compdef generate --csv rules.xlsx --component-definition out/component-definition.json --output-dir out

  # Read the spreadsheet from GitHub (requires GITHUB_TOKEN)
  compdef generate --csv github:acme/controls/rules.csv@main --output-dir out

  # Dry run, JSON report
  compdef generate --simulate --output json`,
		RunE: runGenerate,
	}

	cmd.Flags().StringVar(&flagCSV, "csv", "", "Spreadsheet path or github:owner/repo/path[@ref] (.csv or .xlsx)")
	cmd.Flags().StringVar(&flagComponentDefinition, "component-definition", "", "Existing component definition to update")
	cmd.Flags().StringVar(&flagOutputDir, "output-dir", "", "Directory (or key prefix) for the generated document")
	cmd.Flags().StringVar(&flagTitle, "title", "", "Document title")
	cmd.Flags().StringVar(&flagDocVersion, "version", "", "Document version")
	cmd.Flags().StringVar(&flagNamespace, "namespace", "", "Namespace for user column properties")
	cmd.Flags().BoolVar(&flagOverwrite, "overwrite", true, "Replace an existing output file")
	cmd.Flags().BoolVar(&flagSimulate, "simulate", false, "Run every step except writing the output")
	cmd.Flags().BoolVar(&flagLint, "lint", true, "Evaluate policies against the generated document")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Report format (text, json, junit)")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose logging")

	return cmd
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	applyGenerateFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck // stderr sync errors are not actionable

	report, runErr := task.Generate(cmd.Context(), task.Options{
		Config:   cfg,
		Simulate: flagSimulate,
		Logger:   log,
	})

	formatter, err := output.New(cfg.OutputFormat, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := formatter.FormatRunReport(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if runErr != nil {
		log.Debug("generate failed", zap.Error(runErr))
		if result.IsConfigError(runErr) {
			return runErr
		}
		return fmt.Errorf("%w: %s", errFailed, report.Outcome)
	}
	return nil
}

// applyGenerateFlags applies CLI flag values on top of the loaded config.
func applyGenerateFlags(cmd *cobra.Command, cfg *config.Config) {
	if flagCSV != "" {
		cfg.Task.CSVFile = flagCSV
	}
	if flagComponentDefinition != "" {
		cfg.Task.ComponentDefinition = flagComponentDefinition
	}
	if flagOutputDir != "" {
		cfg.Task.OutputDir = flagOutputDir
	}
	if flagTitle != "" {
		cfg.Task.Title = flagTitle
	}
	if flagDocVersion != "" {
		cfg.Task.Version = flagDocVersion
	}
	if flagNamespace != "" {
		cfg.Task.UserNamespace = flagNamespace
	}
	if cmd.Flags().Changed("overwrite") {
		overwrite := flagOverwrite
		cfg.Task.OutputOverwrite = &overwrite
	}
	if cmd.Flags().Changed("lint") {
		cfg.LintEnabled = flagLint
	}
	if flagOutput != "" {
		cfg.OutputFormat = flagOutput
	}
	if flagVerbose {
		cfg.Verbose = true
	}
}
