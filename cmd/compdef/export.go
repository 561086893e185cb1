package compdef

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sigcomply/compdef-cli/internal/compdef/export"
	"github.com/sigcomply/compdef-cli/internal/compdef/oscalio"
	"github.com/sigcomply/compdef-cli/internal/compdef/sheet"
	"github.com/sigcomply/compdef-cli/internal/core/logging"
	"github.com/sigcomply/compdef-cli/internal/core/storage"
)

var flagExportOverwrite bool

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <component-definition> <spreadsheet>",
		Short: "Write a component definition back out as a spreadsheet",
		Long: `Write a component definition back out as a spreadsheet.

The spreadsheet uses the same columns generate reads, one row per rule set,
so generate on the exported file reproduces the document. The format is
taken from the file extension (.csv or .xlsx).

Examples:
  compdef export out/component-definition.json rules.xlsx`,
		Args: cobra.ExactArgs(2),
		RunE: runExport,
	}

	cmd.Flags().BoolVar(&flagExportOverwrite, "overwrite", false, "Replace an existing spreadsheet")

	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	log, err := logging.New(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck // stderr sync errors are not actionable

	format, err := sheet.FormatFromPath(args[1])
	if err != nil {
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

	table := export.FromDefinition(cd)
	for _, s := range table.Skipped {
		log.Warn("rule exported with its first control implementation only", zap.String("rule", s))
	}

	var buf bytes.Buffer
	if err := sheet.Write(&buf, format, table.Records()); err != nil {
		return err
	}

	if _, err := writeLocal(cmd, args[1], buf.Bytes(), flagExportOverwrite); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rule sets to %s\n", len(table.Rows), args[1]) //nolint:errcheck // stdout
	return nil
}

// writeLocal stores data at a local path through the local backend.
func writeLocal(cmd *cobra.Command, path string, data []byte, overwrite bool) (*storage.StoredItem, error) {
	backend := storage.NewLocalBackend(&storage.LocalConfig{Path: filepath.Dir(path)})
	if err := backend.Init(cmd.Context()); err != nil {
		return nil, err
	}
	return backend.Put(cmd.Context(), filepath.Base(path), data, &storage.PutOptions{Overwrite: overwrite})
}
