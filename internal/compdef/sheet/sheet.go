// Package sheet reads the spreadsheet-of-record (CSV or XLSX) that drives
// component-definition synthesis and validates its rows.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format identifies a spreadsheet encoding.
type Format string

// Supported spreadsheet formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// headerRows is the number of leading rows (headings, descriptions) before data.
const headerRows = 2

// Validation errors. Each is wrapped with row context.
var (
	ErrMissingColumn  = errors.New("missing required column")
	ErrMissingValue   = errors.New("missing required value")
	ErrDuplicateRule  = errors.New("duplicate rule id")
	ErrMissingDefault = errors.New("missing default for parameter")
	ErrUnknownFormat  = errors.New("unsupported spreadsheet format")

	ErrDuplicateColumn     = errors.New("duplicate column")
	ErrConflictingDefaults = errors.New("conflicting defaults for parameter")
)

// FormatFromPath infers the spreadsheet format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, path)
	}
}

// userColumn is a non built-in column, kept in spreadsheet order.
type userColumn struct {
	heading string
	index   int
}

// Sheet is a parsed spreadsheet with its heading index.
type Sheet struct {
	headings    []string
	builtin     map[string]int
	userColumns []userColumn
	records     [][]string
}

// Load reads and parses a spreadsheet file.
func Load(path string) (*Sheet, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spreadsheet: %w", err)
	}

	return Parse(data, format)
}

// Parse parses spreadsheet content in the given format.
func Parse(data []byte, format Format) (*Sheet, error) {
	var records [][]string
	var err error

	switch format {
	case FormatCSV:
		records, err = readCSV(bytes.NewReader(data))
	case FormatXLSX:
		records, err = readXLSX(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}

	return newSheet(records)
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	// rows may omit trailing empty cells
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return records, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only workbook

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("XLSX workbook has no worksheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func newSheet(records [][]string) (*Sheet, error) {
	if len(records) == 0 {
		return nil, errors.New("spreadsheet is empty")
	}

	s := &Sheet{
		builtin: make(map[string]int),
	}
	// property name -> heading, for user columns
	userNames := make(map[string]string)

	for i, raw := range records[0] {
		heading := strings.TrimSpace(raw)
		s.headings = append(s.headings, heading)
		if heading == "" {
			continue
		}
		if strings.HasPrefix(heading, BuiltinPrefix) {
			name := strings.TrimPrefix(heading, BuiltinPrefix)
			if _, dup := s.builtin[name]; dup {
				return nil, fmt.Errorf("%w: column %q appears more than once", ErrDuplicateColumn, heading)
			}
			s.builtin[name] = i
			continue
		}

		name := PropertyName(heading)
		if IsBuiltin(name) {
			return nil, fmt.Errorf("%w: user column %q has the name of built-in column %q",
				ErrDuplicateColumn, heading, Heading(name))
		}
		if prev, dup := userNames[name]; dup {
			return nil, fmt.Errorf("%w: user columns %q and %q both map to property %q",
				ErrDuplicateColumn, prev, heading, name)
		}
		userNames[name] = heading
		s.userColumns = append(s.userColumns, userColumn{heading: heading, index: i})
	}

	if len(records) > headerRows {
		s.records = records[headerRows:]
	}

	return s, nil
}

// Headings returns the heading row as read.
func (s *Sheet) Headings() []string {
	return s.headings
}

// UserColumns returns the user column headings in spreadsheet order.
func (s *Sheet) UserColumns() []string {
	cols := make([]string, len(s.userColumns))
	for i, c := range s.userColumns {
		cols[i] = c.heading
	}
	return cols
}

// Rows validates the spreadsheet and returns its data rows.
// Blank rows are skipped.
func (s *Sheet) Rows() ([]Row, error) {
	for _, col := range RequiredColumns {
		if _, ok := s.builtin[col]; !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, Heading(col))
		}
	}

	rows := make([]Row, 0, len(s.records))
	seen := make(map[RuleKey]int)
	params := make(map[parameterKey]Row)

	for i, record := range s.records {
		line := i + headerRows + 1
		if isBlank(record) {
			continue
		}

		row := s.buildRow(line, record)
		if err := row.validate(); err != nil {
			return nil, err
		}

		key := row.RuleKey()
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("row %d: %w %q for component %q (first seen on row %d)",
				line, ErrDuplicateRule, key.RuleID, key.Resource, prev)
		}
		seen[key] = line

		if err := checkDefaults(params, row); err != nil {
			return nil, err
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// parameterKey identifies one set-parameter in a component definition.
type parameterKey struct {
	resource      string
	componentType string
	source        string
	description   string
	parameterID   string
}

// checkDefaults rejects a row whose parameter is already set by an earlier
// row of the same control implementation with different defaults.
func checkDefaults(params map[parameterKey]Row, row Row) error {
	if row.IsValidation() || row.ParameterID() == "" {
		return nil
	}
	pk := parameterKey{
		resource:      row.ComponentTitle(),
		componentType: row.ComponentType(),
		source:        row.ProfileSource(),
		description:   row.ProfileDescription(),
		parameterID:   row.ParameterID(),
	}
	prev, seen := params[pk]
	if !seen {
		params[pk] = row
		return nil
	}
	if !slices.Equal(prev.ParameterDefaults(), row.ParameterDefaults()) {
		return fmt.Errorf("row %d: %w %q: %q differs from %q on row %d",
			row.Line, ErrConflictingDefaults, pk.parameterID,
			row.Get(ColParameterValueDefault), prev.Get(ColParameterValueDefault), prev.Line)
	}
	return nil
}

func (s *Sheet) buildRow(line int, record []string) Row {
	row := Row{
		Line:   line,
		values: make(map[string]string, len(s.builtin)),
	}

	for name, idx := range s.builtin {
		row.values[name] = cellAt(record, idx)
	}
	for _, uc := range s.userColumns {
		row.User = append(row.User, Cell{Name: PropertyName(uc.heading), Value: cellAt(record, uc.index), User: true})
	}

	return row
}

func cellAt(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
