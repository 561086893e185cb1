package reconcile

import (
	"slices"

	oscal "github.com/defenseunicorns/go-oscal/src/types/oscal-1-1-3"

	"github.com/sigcomply/compdef-cli/internal/compdef/ruleset"
	"github.com/sigcomply/compdef-cli/internal/compdef/sheet"
)

// ParamKey identifies a set-parameter attached to a rule under one control implementation.
type ParamKey struct {
	Rule        sheet.RuleKey
	Source      string
	Description string
	ParamID     string
}

// MappingKey identifies a rule's reference from one control or statement.
type MappingKey struct {
	Rule        sheet.RuleKey
	Source      string
	Description string
	ControlRef  string
}

// ciRef identifies a control implementation inside a component.
type ciRef struct {
	Resource      string
	ComponentType string
	Source        string
	Description   string
	ParamID       string
}

func (k ParamKey) shared() ciRef {
	return ciRef{k.Rule.Resource, k.Rule.ComponentType, k.Source, k.Description, k.ParamID}
}

// existingRule is a rule found in a component definition.
type existingRule struct {
	tag     string
	paramID string
}

// inventory holds the keys present in a component definition, in document order.
type inventory struct {
	rules     map[sheet.RuleKey]existingRule
	ruleOrder []sheet.RuleKey
	params    map[ParamKey]bool
	paramList []ParamKey
	mappings  map[MappingKey]bool
	mapList   []MappingKey

	// maxTag is the highest tag number in use or recorded as minted
	maxTag int
}

func newInventory() *inventory {
	return &inventory{
		rules:    make(map[sheet.RuleKey]existingRule),
		params:   make(map[ParamKey]bool),
		mappings: make(map[MappingKey]bool),
		maxTag:   -1,
	}
}

func (inv *inventory) addRule(key sheet.RuleKey, r existingRule) {
	if _, ok := inv.rules[key]; ok {
		return
	}
	inv.rules[key] = r
	inv.ruleOrder = append(inv.ruleOrder, key)
}

func (inv *inventory) addParam(key ParamKey) {
	if inv.params[key] {
		return
	}
	inv.params[key] = true
	inv.paramList = append(inv.paramList, key)
}

func (inv *inventory) addMapping(key MappingKey) {
	if inv.mappings[key] {
		return
	}
	inv.mappings[key] = true
	inv.mapList = append(inv.mapList, key)
}

// scan builds the inventory of an existing component definition.
func scan(cd *oscal.ComponentDefinition) *inventory {
	inv := newInventory()

	var tags []string
	for _, comp := range components(cd) {
		props := propsOf(comp.Props)
		for _, p := range props {
			tags = append(tags, p.Remarks)
		}

		// rules by the parameter they declare
		byParam := make(map[string][]string)
		for _, p := range props {
			if !ruleset.IsTag(p.Remarks) || p.Name != sheet.ColRuleID {
				continue
			}
			key := sheet.RuleKey{Resource: comp.Title, ComponentType: comp.Type, RuleID: p.Value}
			r := existingRule{tag: p.Remarks, paramID: tagValue(props, p.Remarks, sheet.ColParameterID)}
			inv.addRule(key, r)
			if r.paramID != "" {
				byParam[r.paramID] = append(byParam[r.paramID], p.Value)
			}
		}

		for _, ci := range controlImplementations(comp) {
			mapped := make(map[string]bool)
			for _, ir := range ci.ImplementedRequirements {
				for _, p := range propsOf(ir.Props) {
					if p.Name == sheet.ColRuleID {
						mapped[p.Value] = true
						inv.addMapping(mappingKey(comp, ci, p.Value, ir.ControlId))
					}
				}
				for _, stmt := range statements(&ir) {
					for _, p := range propsOf(stmt.Props) {
						if p.Name == sheet.ColRuleID {
							mapped[p.Value] = true
							inv.addMapping(mappingKey(comp, ci, p.Value, stmt.StatementId))
						}
					}
				}
			}

			// a set-parameter belongs to each rule mapped here that declares it
			for _, sp := range setParameters(ci.SetParameters) {
				for _, ruleID := range byParam[sp.ParamId] {
					if !mapped[ruleID] {
						continue
					}
					inv.addParam(ParamKey{
						Rule:        sheet.RuleKey{Resource: comp.Title, ComponentType: comp.Type, RuleID: ruleID},
						Source:      ci.Source,
						Description: ci.Description,
						ParamID:     sp.ParamId,
					})
				}
			}
		}
	}

	inv.maxTag = max(ruleset.MaxNumber(tags), highWater(&cd.Metadata))
	return inv
}

func mappingKey(comp *oscal.DefinedComponent, ci *oscal.ControlImplementationSet, ruleID, ref string) MappingKey {
	return MappingKey{
		Rule:        sheet.RuleKey{Resource: comp.Title, ComponentType: comp.Type, RuleID: ruleID},
		Source:      ci.Source,
		Description: ci.Description,
		ControlRef:  ref,
	}
}

// desired holds what the spreadsheet rows call for, in row order.
type desired struct {
	rules     map[sheet.RuleKey]*sheet.Row
	ruleOrder []sheet.RuleKey
	params    map[ParamKey][]string
	paramList []ParamKey

	// shared holds the values of each set-parameter, taken from the first
	// row that sets it
	shared   map[ciRef][]string
	mappings map[MappingKey]*sheet.Row
	mapList  []MappingKey
}

func plan(rows []sheet.Row) *desired {
	d := &desired{
		rules:    make(map[sheet.RuleKey]*sheet.Row),
		params:   make(map[ParamKey][]string),
		shared:   make(map[ciRef][]string),
		mappings: make(map[MappingKey]*sheet.Row),
	}

	for i := range rows {
		row := &rows[i]
		key := row.RuleKey()
		if _, ok := d.rules[key]; ok {
			continue
		}
		d.rules[key] = row
		d.ruleOrder = append(d.ruleOrder, key)

		if row.IsValidation() {
			continue
		}

		if pid := row.ParameterID(); pid != "" {
			pk := ParamKey{Rule: key, Source: row.ProfileSource(), Description: row.ProfileDescription(), ParamID: pid}
			values, ok := d.shared[pk.shared()]
			if !ok {
				values = row.ParameterDefaults()
				d.shared[pk.shared()] = values
			}
			d.params[pk] = values
			d.paramList = append(d.paramList, pk)
		}

		for _, ref := range row.ControlRefs() {
			mk := MappingKey{Rule: key, Source: row.ProfileSource(), Description: row.ProfileDescription(), ControlRef: ref}
			if _, ok := d.mappings[mk]; ok {
				continue
			}
			d.mappings[mk] = row
			d.mapList = append(d.mapList, mk)
		}
	}

	return d
}

// tagValue returns the value of the property named name in the run tagged tag.
func tagValue(props []oscal.Property, tag, name string) string {
	i := slices.IndexFunc(props, func(p oscal.Property) bool {
		return p.Remarks == tag && p.Name == name
	})
	if i < 0 {
		return ""
	}
	return props[i].Value
}
