package sheet

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// xlsxSheetName is the worksheet written by Write.
const xlsxSheetName = "Sheet1"

// Write encodes records (heading rows included) in the given format.
func Write(w io.Writer, format Format, records [][]string) error {
	switch format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.WriteAll(records); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
		return nil
	case FormatXLSX:
		return writeXLSX(w, records)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func writeXLSX(w io.Writer, records [][]string) error {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck // in-memory workbook

	for i := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := records[i]
		if err := f.SetSheetRow(xlsxSheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write XLSX: %w", err)
	}
	return nil
}

// WriteTemplate writes an empty spreadsheet carrying the heading and description rows.
func WriteTemplate(w io.Writer, format Format, userColumns []string) error {
	headings := TemplateHeadings(userColumns)
	return Write(w, format, [][]string{headings, DescriptionRow(headings)})
}
