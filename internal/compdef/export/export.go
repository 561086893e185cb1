// Package export turns a component definition back into spreadsheet records,
// one row per rule-set, so the spreadsheet can be recovered from the document.
package export

import (
	"strings"

	oscal "github.com/defenseunicorns/go-oscal/src/types/oscal-1-1-3"

	"github.com/sigcomply/compdef-cli/internal/compdef/ruleset"
	"github.com/sigcomply/compdef-cli/internal/compdef/sheet"
)

// Table is an exported spreadsheet.
type Table struct {
	UserColumns []string
	Rows        []map[string]string
	// Skipped lists rule ids mapped under more than one control implementation;
	// only the first is exported.
	Skipped []string
}

// Records returns heading, description and data rows ready for sheet.Write.
func (t *Table) Records() [][]string {
	headings := sheet.TemplateHeadings(t.UserColumns)
	records := [][]string{headings, sheet.DescriptionRow(headings)}
	for _, row := range t.Rows {
		record := make([]string, len(headings))
		for i, h := range headings {
			record[i] = row[strings.TrimPrefix(h, sheet.BuiltinPrefix)]
		}
		records = append(records, record)
	}
	return records
}

type ruleSet struct {
	tag   string
	ns    string
	props map[string]string
}

// FromDefinition extracts one row per rule-set tag.
func FromDefinition(cd *oscal.ComponentDefinition) *Table {
	t := &Table{}
	userSeen := make(map[string]bool)

	if cd == nil || cd.Components == nil {
		return t
	}

	for _, comp := range *cd.Components {
		for _, rs := range ruleSets(comp.Props) {
			ruleID := rs.props[sheet.ColRuleID]
			row := map[string]string{
				sheet.ColComponentTitle:       comp.Title,
				sheet.ColComponentDescription: comp.Description,
				sheet.ColComponentType:        comp.Type,
				sheet.ColNamespace:            rs.ns,
			}
			for name, value := range rs.props {
				row[name] = value
				if !sheet.IsBuiltin(name) && !userSeen[name] {
					userSeen[name] = true
					t.UserColumns = append(t.UserColumns, name)
				}
			}

			if ci, refs, multiple := mappingFor(comp, ruleID); ci != nil {
				row[sheet.ColProfileSource] = ci.Source
				row[sheet.ColProfileDescription] = ci.Description
				row[sheet.ColControlIDList] = strings.Join(refs, " ")
				if pid := rs.props[sheet.ColParameterID]; pid != "" {
					row[sheet.ColParameterValueDefault] = parameterValues(ci, pid)
				}
				if multiple {
					t.Skipped = append(t.Skipped, ruleID)
				}
			}

			t.Rows = append(t.Rows, row)
		}
	}

	return t
}

// ruleSets groups tagged properties by tag in order of first appearance.
func ruleSets(props *[]oscal.Property) []*ruleSet {
	if props == nil {
		return nil
	}

	var sets []*ruleSet
	byTag := make(map[string]*ruleSet)
	for _, p := range *props {
		if !ruleset.IsTag(p.Remarks) {
			continue
		}
		rs, ok := byTag[p.Remarks]
		if !ok {
			rs = &ruleSet{tag: p.Remarks, props: make(map[string]string)}
			byTag[p.Remarks] = rs
			sets = append(sets, rs)
		}
		if p.Name == sheet.ColRuleID {
			rs.ns = p.Ns
		}
		if _, dup := rs.props[p.Name]; !dup {
			rs.props[p.Name] = p.Value
		}
	}

	kept := sets[:0]
	for _, rs := range sets {
		if rs.props[sheet.ColRuleID] != "" {
			kept = append(kept, rs)
		}
	}
	return kept
}

// mappingFor returns the first control implementation referencing ruleID, the
// control and statement ids it maps there, and whether others reference it too.
func mappingFor(comp oscal.DefinedComponent, ruleID string) (*oscal.ControlImplementationSet, []string, bool) {
	if comp.ControlImplementations == nil {
		return nil, nil, false
	}

	var found *oscal.ControlImplementationSet
	var refs []string
	multiple := false

	cis := *comp.ControlImplementations
	for i := range cis {
		ci := &cis[i]
		var here []string
		for _, ir := range ci.ImplementedRequirements {
			if references(ir.Props, ruleID) {
				here = append(here, ir.ControlId)
			}
			if ir.Statements == nil {
				continue
			}
			for _, stmt := range *ir.Statements {
				if references(stmt.Props, ruleID) {
					here = append(here, stmt.StatementId)
				}
			}
		}
		if len(here) == 0 {
			continue
		}
		if found != nil {
			multiple = true
			continue
		}
		found, refs = ci, here
	}

	return found, refs, multiple
}

func references(props *[]oscal.Property, ruleID string) bool {
	if props == nil {
		return false
	}
	for _, p := range *props {
		if p.Name == sheet.ColRuleID && p.Value == ruleID {
			return true
		}
	}
	return false
}

func parameterValues(ci *oscal.ControlImplementationSet, paramID string) string {
	if ci.SetParameters == nil {
		return ""
	}
	for _, sp := range *ci.SetParameters {
		if sp.ParamId == paramID {
			return strings.Join(sp.Values, ", ")
		}
	}
	return ""
}
