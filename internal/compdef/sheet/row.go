package sheet

import (
	"fmt"
	"strings"
)

// RuleKey identifies a rule across the spreadsheet and the component definition.
// Resource is the owning component's title.
type RuleKey struct {
	Resource      string
	ComponentType string
	RuleID        string
}

func (k RuleKey) String() string {
	return k.Resource + "/" + k.ComponentType + "/" + k.RuleID
}

// Cell is one named value of a row.
type Cell struct {
	Name  string
	Value string
	User  bool
}

// Row is one validated data row of the spreadsheet.
type Row struct {
	// Line is the 1-based spreadsheet line number.
	Line int
	// User holds the user columns in spreadsheet order.
	User []Cell

	values map[string]string
}

// NewRow builds a row from built-in values keyed by column name (without prefix)
// and ordered user cells.
func NewRow(line int, values map[string]string, user []Cell) Row {
	r := Row{Line: line, values: make(map[string]string, len(values))}
	for k, v := range values {
		r.values[k] = strings.TrimSpace(v)
	}
	for _, c := range user {
		r.User = append(r.User, Cell{Name: PropertyName(c.Name), Value: strings.TrimSpace(c.Value), User: true})
	}
	return r
}

// Get returns the value of a built-in column, or "" if absent.
func (r *Row) Get(col string) string {
	return r.values[col]
}

// ComponentTitle returns the owning component's title.
func (r *Row) ComponentTitle() string { return r.values[ColComponentTitle] }

// ComponentType returns the owning component's type.
func (r *Row) ComponentType() string { return r.values[ColComponentType] }

// ComponentDescription returns the owning component's description.
func (r *Row) ComponentDescription() string { return r.values[ColComponentDescription] }

// RuleID returns the rule identifier.
func (r *Row) RuleID() string { return r.values[ColRuleID] }

// Namespace returns the namespace for built-in rule properties.
func (r *Row) Namespace() string { return r.values[ColNamespace] }

// ProfileSource returns the control implementation source.
func (r *Row) ProfileSource() string { return r.values[ColProfileSource] }

// ProfileDescription returns the control implementation description.
func (r *Row) ProfileDescription() string { return r.values[ColProfileDescription] }

// ParameterID returns the rule's parameter id, if any.
func (r *Row) ParameterID() string { return r.values[ColParameterID] }

// IsValidation reports whether the row describes a validation component.
func (r *Row) IsValidation() bool {
	return strings.EqualFold(r.ComponentType(), ComponentTypeValidation)
}

// RuleKey returns the row's rule key.
func (r *Row) RuleKey() RuleKey {
	return RuleKey{
		Resource:      r.ComponentTitle(),
		ComponentType: r.ComponentType(),
		RuleID:        r.RuleID(),
	}
}

// ControlRefs returns the de-duplicated entries of Control_Id_List.
func (r *Row) ControlRefs() []string {
	return splitList(r.values[ColControlIDList], func(c rune) bool {
		return c == ',' || c == ' ' || c == '\t' || c == '\n' || c == '\r'
	})
}

// ParameterDefaults returns the comma separated default values.
func (r *Row) ParameterDefaults() []string {
	return splitList(r.values[ColParameterValueDefault], func(c rune) bool { return c == ',' })
}

// PropertyColumns returns every column that can become a property for this row,
// in precedence order: built-in columns then user columns.
func (r *Row) PropertyColumns() []string {
	if r.IsValidation() {
		return append([]string(nil), ValidationPropertyColumns...)
	}
	cols := append([]string(nil), RulePropertyColumns...)
	for _, c := range r.User {
		cols = append(cols, c.Name)
	}
	return cols
}

// Properties returns the non-empty property cells of the row in precedence order.
func (r *Row) Properties() []Cell {
	var cells []Cell
	for _, col := range r.PropertyColumns() {
		if v := r.values[col]; v != "" && IsBuiltin(col) {
			cells = append(cells, Cell{Name: col, Value: v})
			continue
		}
		for _, u := range r.User {
			if u.Name == col && u.Value != "" {
				cells = append(cells, u)
			}
		}
	}
	return cells
}

func (r *Row) validate() error {
	required := []string{ColComponentTitle, ColComponentType, ColRuleID}
	if r.IsValidation() {
		required = append(required, ColCheckID)
	} else {
		required = RequiredColumns
	}

	for _, col := range required {
		if r.values[col] == "" {
			return fmt.Errorf("row %d: %w for column %q", r.Line, ErrMissingValue, Heading(col))
		}
	}

	if !r.IsValidation() && r.ParameterID() != "" && len(r.ParameterDefaults()) == 0 {
		return fmt.Errorf("row %d: %w %q", r.Line, ErrMissingDefault, r.ParameterID())
	}

	return nil
}

func splitList(s string, sep func(rune) bool) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.FieldsFunc(s, sep) {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}
