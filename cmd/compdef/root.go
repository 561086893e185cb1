// Package compdef provides the CLI commands for the compdef tool.
package compdef

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigcomply/compdef-cli/internal/core/config"
	"github.com/sigcomply/compdef-cli/internal/core/telemetry"
	"github.com/sigcomply/compdef-cli/internal/data_sources/source"
)

var (
	// Set via ldflags
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

var flagConfig string

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compdef",
		Short: "Maintain OSCAL component definitions from a spreadsheet",
		Long: `compdef - OSCAL component definitions from a spreadsheet of record

compdef turns a CSV or XLSX spreadsheet of rules, parameters and control
mappings into an OSCAL component-definition. Re-running against the previous
output reconciles it in place: rule-set tags stay stable and a run with no
spreadsheet changes leaves the document byte-identical.

Run 'compdef template rules.csv' to start a spreadsheet, then
'compdef generate --csv rules.csv --output-dir out'.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file (default: "+config.FileName+")")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "compdef %s\n", version)
			fmt.Fprintf(out, "  commit:  %s\n", commit)
			fmt.Fprintf(out, "  built:   %s\n", buildTime)
		},
	}
}

// setupCommands registers all commands with the root command.
func setupCommands(root *cobra.Command) {
	root.AddCommand(newVersionCmd())
	root.AddCommand(newGenerateCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newLintCmd())
	root.AddCommand(newTemplateCmd())
}

// loadConfig loads configuration from file and env, using --config flag if set.
func loadConfig() (*config.Config, error) {
	if flagConfig != "" {
		return config.LoadWithConfigPath(flagConfig)
	}
	return config.Load()
}

// newReader resolves local, github: and s3:// inputs.
func newReader(cfg *config.Config) *source.Reader {
	return source.NewReader().WithToken(cfg.GitHubToken).WithRegion(cfg.Storage.Region)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	sentryCleanup := telemetry.Init(telemetry.DefaultConfig(version))
	defer sentryCleanup()
	defer telemetry.RecoverAndReport()

	telemetry.SetTag("cli_version", version)
	telemetry.SetTag("commit", commit)

	setupCommands(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		telemetry.CaptureException(err)
		sentryCleanup()
		os.Exit(1)
	}
}

// SetVersionInfo sets version info from main package ldflags
func SetVersionInfo(v, c, b string) {
	version = v
	commit = c
	buildTime = b
}
