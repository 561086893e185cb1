package reconcile

import (
	oscal "github.com/defenseunicorns/go-oscal/src/types/oscal-1-1-3"
)

// The OSCAL model uses pointers to slices for optional arrays. These helpers
// return element pointers so callers can edit in place. A returned pointer is
// only valid until the slice it points into is appended to.

func components(cd *oscal.ComponentDefinition) []*oscal.DefinedComponent {
	if cd == nil || cd.Components == nil {
		return nil
	}
	comps := *cd.Components
	out := make([]*oscal.DefinedComponent, len(comps))
	for i := range comps {
		out[i] = &comps[i]
	}
	return out
}

func controlImplementations(comp *oscal.DefinedComponent) []*oscal.ControlImplementationSet {
	if comp.ControlImplementations == nil {
		return nil
	}
	cis := *comp.ControlImplementations
	out := make([]*oscal.ControlImplementationSet, len(cis))
	for i := range cis {
		out[i] = &cis[i]
	}
	return out
}

func statements(ir *oscal.ImplementedRequirementControlImplementation) []*oscal.ControlStatementImplementation {
	if ir.Statements == nil {
		return nil
	}
	stmts := *ir.Statements
	out := make([]*oscal.ControlStatementImplementation, len(stmts))
	for i := range stmts {
		out[i] = &stmts[i]
	}
	return out
}

func propsOf(p *[]oscal.Property) []oscal.Property {
	if p == nil {
		return nil
	}
	return *p
}

func setParameters(p *[]oscal.SetParameter) []oscal.SetParameter {
	if p == nil {
		return nil
	}
	return *p
}

// propsPtr wraps props for the model, omitting empty lists.
func propsPtr(props []oscal.Property) *[]oscal.Property {
	if len(props) == 0 {
		return nil
	}
	return &props
}

func findComponent(cd *oscal.ComponentDefinition, title, typ string) *oscal.DefinedComponent {
	for _, comp := range components(cd) {
		if comp.Title == title && comp.Type == typ {
			return comp
		}
	}
	return nil
}

func findControlImplementation(comp *oscal.DefinedComponent, source, description string) *oscal.ControlImplementationSet {
	if comp == nil {
		return nil
	}
	for _, ci := range controlImplementations(comp) {
		if ci.Source == source && ci.Description == description {
			return ci
		}
	}
	return nil
}

func findRequirement(ci *oscal.ControlImplementationSet, controlID string) *oscal.ImplementedRequirementControlImplementation {
	if ci == nil {
		return nil
	}
	for i := range ci.ImplementedRequirements {
		if ci.ImplementedRequirements[i].ControlId == controlID {
			return &ci.ImplementedRequirements[i]
		}
	}
	return nil
}

func findStatement(ir *oscal.ImplementedRequirementControlImplementation, statementID string) *oscal.ControlStatementImplementation {
	if ir == nil {
		return nil
	}
	for _, stmt := range statements(ir) {
		if stmt.StatementId == statementID {
			return stmt
		}
	}
	return nil
}

func findSetParameter(ci *oscal.ControlImplementationSet, paramID string) *oscal.SetParameter {
	if ci == nil || ci.SetParameters == nil {
		return nil
	}
	sps := *ci.SetParameters
	for i := range sps {
		if sps[i].ParamId == paramID {
			return &sps[i]
		}
	}
	return nil
}

// removeProps drops every property matching drop.
func removeProps(p *[]oscal.Property, drop func(oscal.Property) bool) (*[]oscal.Property, int) {
	var kept []oscal.Property
	removed := 0
	for _, prop := range propsOf(p) {
		if drop(prop) {
			removed++
			continue
		}
		kept = append(kept, prop)
	}
	if removed == 0 {
		return p, 0
	}
	return propsPtr(kept), removed
}

func hasRuleRef(props []oscal.Property, ruleID string) bool {
	for _, p := range props {
		if p.Name == ruleIDProp && p.Value == ruleID {
			return true
		}
	}
	return false
}
