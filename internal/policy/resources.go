package policy

import (
	"encoding/json"
	"fmt"

	oscal "github.com/defenseunicorns/go-oscal/src/types/oscal-1-1-3"

	"github.com/sigcomply/compdef-cli/internal/compdef/ruleset"
	"github.com/sigcomply/compdef-cli/internal/compdef/sheet"
)

// Resource types produced from a component definition.
const (
	TypeComponent           = "oscal:component"
	TypeValidationComponent = "oscal:validation-component"
)

// Resource is one lintable unit of a component definition.
type Resource struct {
	Type string
	ID   string
	Data map[string]interface{}
}

func (r *Resource) input() map[string]interface{} {
	return map[string]interface{}{
		"resource_type": r.Type,
		"resource_id":   r.ID,
		"data":          r.Data,
	}
}

type ruleSetView struct {
	Tag         string            `json:"tag"`
	RuleIDs     []string          `json:"rule_ids"`
	ParameterID string            `json:"parameter_id,omitempty"`
	Props       map[string]string `json:"props"`
}

type setParamView struct {
	ParamID string   `json:"param_id"`
	Values  []string `json:"values"`
}

type ruleRefView struct {
	Control string `json:"control"`
	RuleID  string `json:"rule_id"`
}

type controlImplementationView struct {
	Source        string         `json:"source"`
	Description   string         `json:"description"`
	SetParameters []setParamView `json:"set_parameters"`
	RuleRefs      []ruleRefView  `json:"rule_refs"`
}

type componentView struct {
	UUID                   string                      `json:"uuid"`
	Title                  string                      `json:"title"`
	Type                   string                      `json:"type"`
	Description            string                      `json:"description"`
	PropCount              int                         `json:"prop_count"`
	RuleSets               []ruleSetView               `json:"rule_sets"`
	ControlImplementations []controlImplementationView `json:"control_implementations"`
}

// FromDefinition turns each component into a resource. Components are
// identified by title, then type.
func FromDefinition(cd *oscal.ComponentDefinition) ([]Resource, error) {
	if cd == nil || cd.Components == nil {
		return nil, nil
	}

	resources := make([]Resource, 0, len(*cd.Components))
	for i := range *cd.Components {
		comp := &(*cd.Components)[i]
		view := viewOf(comp)

		data, err := toMap(view)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", comp.Title, err)
		}

		typ := TypeComponent
		if comp.Type == sheet.ComponentTypeValidation {
			typ = TypeValidationComponent
		}
		resources = append(resources, Resource{
			Type: typ,
			ID:   comp.Title + "/" + comp.Type,
			Data: data,
		})
	}
	return resources, nil
}

func viewOf(comp *oscal.DefinedComponent) componentView {
	view := componentView{
		UUID:                   comp.UUID,
		Title:                  comp.Title,
		Type:                   comp.Type,
		Description:            comp.Description,
		RuleSets:               []ruleSetView{},
		ControlImplementations: []controlImplementationView{},
	}

	byTag := make(map[string]int)
	if comp.Props != nil {
		view.PropCount = len(*comp.Props)
		for _, p := range *comp.Props {
			if !ruleset.IsTag(p.Remarks) {
				continue
			}
			idx, ok := byTag[p.Remarks]
			if !ok {
				idx = len(view.RuleSets)
				byTag[p.Remarks] = idx
				view.RuleSets = append(view.RuleSets, ruleSetView{Tag: p.Remarks, RuleIDs: []string{}, Props: map[string]string{}})
			}
			rs := &view.RuleSets[idx]
			switch p.Name {
			case sheet.ColRuleID:
				rs.RuleIDs = append(rs.RuleIDs, p.Value)
			case sheet.ColParameterID:
				rs.ParameterID = p.Value
			}
			rs.Props[p.Name] = p.Value
		}
	}

	if comp.ControlImplementations != nil {
		for _, ci := range *comp.ControlImplementations {
			civ := controlImplementationView{
				Source:        ci.Source,
				Description:   ci.Description,
				SetParameters: []setParamView{},
				RuleRefs:      []ruleRefView{},
			}
			if ci.SetParameters != nil {
				for _, sp := range *ci.SetParameters {
					civ.SetParameters = append(civ.SetParameters, setParamView{ParamID: sp.ParamId, Values: sp.Values})
				}
			}
			for _, ir := range ci.ImplementedRequirements {
				civ.RuleRefs = append(civ.RuleRefs, refsOf(ir.ControlId, ir.Props)...)
				if ir.Statements != nil {
					for _, stmt := range *ir.Statements {
						civ.RuleRefs = append(civ.RuleRefs, refsOf(stmt.StatementId, stmt.Props)...)
					}
				}
			}
			view.ControlImplementations = append(view.ControlImplementations, civ)
		}
	}

	return view
}

func refsOf(control string, props *[]oscal.Property) []ruleRefView {
	if props == nil {
		return nil
	}
	var refs []ruleRefView
	for _, p := range *props {
		if p.Name == sheet.ColRuleID {
			refs = append(refs, ruleRefView{Control: control, RuleID: p.Value})
		}
	}
	return refs
}

// toMap converts a view into the generic form OPA expects as input.
func toMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
