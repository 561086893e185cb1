package compdef

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigcomply/compdef-cli/internal/compdef/oscalio"
	"github.com/sigcomply/compdef-cli/internal/core/output"
	"github.com/sigcomply/compdef-cli/internal/core/result"
	"github.com/sigcomply/compdef-cli/internal/policy"
)

var (
	flagLintOutput      string
	flagPolicyDir       string
	flagPacks           []string
	flagFailOnViolation bool
)

func newLintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint <component-definition>",
		Short: "Evaluate policies against a component definition",
		Long: `Evaluate Rego policies against a component definition.

The builtin pack checks the structure the generator maintains: rule-set
tags, parameter defaults, empty and duplicate components. Add your own
policies with --policy-dir; each .rego file must define a metadata object
and a violations set under the compdef package.

Examples:
  compdef lint out/component-definition.json
  compdef lint out/component-definition.json --policy-dir policies --fail-on-violation
  compdef lint github:acme/controls/cd.json@main --output junit > lint.xml`,
		Args: cobra.ExactArgs(1),
		RunE: runLint,
	}

	cmd.Flags().StringVarP(&flagLintOutput, "output", "o", "", "Report format (text, json, junit)")
	cmd.Flags().StringVar(&flagPolicyDir, "policy-dir", "", "Directory of additional .rego policies")
	cmd.Flags().StringSliceVar(&flagPacks, "pack", nil, "Registered policy packs to evaluate (default: builtin)")
	cmd.Flags().BoolVar(&flagFailOnViolation, "fail-on-violation", false, "Exit non-zero when a policy fails")

	return cmd
}

func runLint(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if flagLintOutput != "" {
		cfg.OutputFormat = flagLintOutput
	}
	if flagPolicyDir != "" {
		cfg.PolicyDir = flagPolicyDir
	}
	if len(flagPacks) > 0 {
		cfg.LintPacks = flagPacks
	}
	if flagFailOnViolation {
		cfg.FailOnViolation = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	data, err := newReader(cfg).Read(ctx, args[0])
	if err != nil {
		return err
	}
	cd, err := oscalio.Decode(data)
	if err != nil {
		return err
	}

	packs, err := policy.Resolve(cfg.LintPacks, cfg.PolicyDir)
	if err != nil {
		return err
	}
	results, err := policy.Lint(ctx, cd, packs...)
	if err != nil {
		return err
	}

	report := result.NewLintReport(args[0], time.Now().UTC(), results)
	formatter, err := output.New(cfg.OutputFormat, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := formatter.FormatLintReport(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if cfg.FailOnViolation && report.Summary.HasFailures() {
		return fmt.Errorf("%w: %d policies failed, %d errored", errFailed, report.Summary.FailedPolicies, report.Summary.ErroredPolicies)
	}
	return nil
}
