package compdef

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sigcomply/compdef-cli/internal/compdef/sheet"
)

var (
	flagUserColumns       []string
	flagTemplateOverwrite bool
)

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template <spreadsheet>",
		Short: "Write an empty spreadsheet with every column heading",
		Long: `Write an empty spreadsheet with the heading and description rows.

Examples:
  compdef template rules.csv
  compdef template rules.xlsx --user-column Owner --user-column Ticket`,
		Args: cobra.ExactArgs(1),
		RunE: runTemplate,
	}

	cmd.Flags().StringSliceVar(&flagUserColumns, "user-column", nil, "Additional user column headings")
	cmd.Flags().BoolVar(&flagTemplateOverwrite, "overwrite", false, "Replace an existing file")

	return cmd
}

func runTemplate(cmd *cobra.Command, args []string) error {
	format, err := sheet.FormatFromPath(args[0])
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := sheet.WriteTemplate(&buf, format, flagUserColumns); err != nil {
		return err
	}
	if _, err := writeLocal(cmd, args[0], buf.Bytes(), flagTemplateOverwrite); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote template %s\n", args[0]) //nolint:errcheck // stdout
	return nil
}
