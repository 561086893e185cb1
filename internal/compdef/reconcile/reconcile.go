// Package reconcile merges spreadsheet rows into an OSCAL component definition.
//
// Rules, set-parameters and control mappings are each compared by key between
// the existing document and the rows. Keys only in the document are deleted,
// keys only in the rows are added, and keys in both are updated in place.
// Rule properties are grouped by a rule_set_NNN tag in their remarks; existing
// tags are kept and new tags are numbered above the highest tag ever minted,
// which the document records in a metadata property.
package reconcile

import (
	"slices"
	"time"

	oscal "github.com/defenseunicorns/go-oscal/src/types/oscal-1-1-3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sigcomply/compdef-cli/internal/compdef/oscalio"
	"github.com/sigcomply/compdef-cli/internal/compdef/ruleset"
	"github.com/sigcomply/compdef-cli/internal/compdef/sheet"
	"github.com/sigcomply/compdef-cli/internal/core/result"
)

const ruleIDProp = sheet.ColRuleID

// Defaults for a newly created document.
const (
	DefaultTitle   = "Component definition"
	DefaultVersion = "1.0"
)

// Options configures a reconciliation.
type Options struct {
	// Title and Version are written to the metadata of a new document, and of
	// an existing one when the run changed it. Empty keeps the current value.
	Title   string
	Version string

	// UserNamespace is the namespace for properties from user columns.
	// Empty uses the row's namespace.
	UserNamespace string

	// ClassColumns maps a property name to the class written on it.
	ClassColumns map[string]string

	Now     func() time.Time
	NewUUID func() string
	Logger  *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewUUID == nil {
		o.NewUUID = uuid.NewString
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o Options) timestamp() time.Time {
	return o.Now().UTC().Truncate(time.Second)
}

type reconciler struct {
	opts    Options
	log     *zap.Logger
	doc     *oscal.ComponentDefinition
	old     *inventory
	want    *desired
	changes result.Changes

	// highest rule-set number minted so far
	high int
}

// Reconcile returns a new component definition reflecting rows, derived from
// existing when it is non-nil. existing is not modified. When nothing changed
// the result is equal to existing, metadata included.
func Reconcile(existing *oscal.ComponentDefinition, rows []sheet.Row, opts Options) (*oscal.ComponentDefinition, *result.Changes, error) {
	opts = opts.withDefaults()

	var doc *oscal.ComponentDefinition
	if existing != nil {
		var err error
		if doc, err = oscalio.Clone(existing); err != nil {
			return nil, nil, err
		}
	} else {
		doc = newDefinition(opts)
	}

	r := &reconciler{
		opts: opts,
		log:  opts.Logger,
		doc:  doc,
		old:  scan(doc),
		want: plan(rows),
	}
	r.high = r.old.maxTag

	r.deleteRules()
	r.deleteParams()
	r.deleteMappings()

	r.addRules()
	r.addParams()
	r.addMappings()

	r.modifyComponents()
	r.modifyRules()
	r.modifyParams()
	r.modifyMappings()

	r.prune()

	if r.changes.HasChanges() {
		setHighWater(&r.doc.Metadata, r.high)
		if existing != nil {
			r.touchMetadata()
		}
	}

	r.log.Debug("reconciliation complete",
		zap.Int("rows", len(rows)),
		zap.Int("changes", r.changes.Total()))

	return doc, &r.changes, nil
}

func newDefinition(opts Options) *oscal.ComponentDefinition {
	title, version := opts.Title, opts.Version
	if title == "" {
		title = DefaultTitle
	}
	if version == "" {
		version = DefaultVersion
	}
	return &oscal.ComponentDefinition{
		UUID: opts.NewUUID(),
		Metadata: oscal.Metadata{
			Title:        title,
			Version:      version,
			OscalVersion: oscalio.OSCALVersion,
			LastModified: opts.timestamp(),
		},
	}
}

func (r *reconciler) touchMetadata() {
	md := &r.doc.Metadata
	md.LastModified = r.opts.timestamp()
	if r.opts.Title != "" {
		md.Title = r.opts.Title
	}
	if r.opts.Version != "" {
		md.Version = r.opts.Version
	}
}

func (r *reconciler) deleteRules() {
	for _, key := range r.old.ruleOrder {
		if _, keep := r.want.rules[key]; keep {
			continue
		}
		tag := r.old.rules[key].tag
		if comp := findComponent(r.doc, key.Resource, key.ComponentType); comp != nil {
			comp.Props, _ = removeProps(comp.Props, func(p oscal.Property) bool { return p.Remarks == tag })
		}
		r.changes.Rules.Deleted++
		r.log.Debug("rule deleted", zap.Stringer("rule", key), zap.String("tag", tag))
	}
}

func (r *reconciler) deleteParams() {
	for _, key := range r.old.paramList {
		if _, keep := r.want.params[key]; keep {
			continue
		}
		// another rule still sets the same parameter here
		if _, shared := r.want.shared[key.shared()]; shared {
			continue
		}

		ci := findControlImplementation(findComponent(r.doc, key.Rule.Resource, key.Rule.ComponentType), key.Source, key.Description)
		if ci == nil || ci.SetParameters == nil {
			continue
		}
		kept := slices.DeleteFunc(slices.Clone(*ci.SetParameters), func(sp oscal.SetParameter) bool {
			return sp.ParamId == key.ParamID
		})
		if len(kept) == len(*ci.SetParameters) {
			continue
		}
		if len(kept) == 0 {
			ci.SetParameters = nil
		} else {
			ci.SetParameters = &kept
		}
		r.changes.SetParameters.Deleted++
		r.log.Debug("set-parameter deleted", zap.Stringer("rule", key.Rule), zap.String("param", key.ParamID))
	}
}

func (r *reconciler) deleteMappings() {
	for _, key := range r.old.mapList {
		if r.want.mappings[key] != nil {
			continue
		}
		r.changes.ControlMappings.Deleted++

		ci := findControlImplementation(findComponent(r.doc, key.Rule.Resource, key.Rule.ComponentType), key.Source, key.Description)
		controlID, statementID := sheet.ParseControlRef(key.ControlRef)
		ir := findRequirement(ci, controlID)
		if ir == nil {
			continue
		}

		drop := func(p oscal.Property) bool { return p.Name == ruleIDProp && p.Value == key.Rule.RuleID }
		if statementID == "" {
			ir.Props, _ = removeProps(ir.Props, drop)
		} else if stmt := findStatement(ir, statementID); stmt != nil {
			stmt.Props, _ = removeProps(stmt.Props, drop)
		}
		r.log.Debug("control mapping deleted", zap.Stringer("rule", key.Rule), zap.String("control", key.ControlRef))
	}
}

func (r *reconciler) addRules() {
	var added []sheet.RuleKey
	for _, key := range r.want.ruleOrder {
		if _, ok := r.old.rules[key]; !ok {
			added = append(added, key)
		}
	}
	if len(added) == 0 {
		return
	}

	minter := ruleset.NewMinter(r.old.maxTag, len(added))
	r.high = r.old.maxTag + len(added)
	for _, key := range added {
		row := r.want.rules[key]
		comp := r.ensureComponent(row)
		tag := minter.Next()

		props := propsOf(comp.Props)
		for _, cell := range row.Properties() {
			props = append(props, r.property(row, cell, tag))
		}
		comp.Props = propsPtr(props)

		r.changes.Rules.Added++
		r.log.Debug("rule added", zap.Stringer("rule", key), zap.String("tag", tag), zap.Int("row", row.Line))
	}
}

func (r *reconciler) addParams() {
	for _, key := range r.want.paramList {
		if r.old.params[key] {
			continue
		}
		values := r.want.params[key]
		ci := r.ensureControlImplementation(r.ensureComponent(r.want.rules[key.Rule]), key.Source, key.Description)

		if sp := findSetParameter(ci, key.ParamID); sp != nil {
			sp.Values = values
		} else {
			var sps []oscal.SetParameter
			if ci.SetParameters != nil {
				sps = *ci.SetParameters
			}
			sps = append(sps, oscal.SetParameter{ParamId: key.ParamID, Values: values})
			ci.SetParameters = &sps
		}

		r.changes.SetParameters.Added++
		r.log.Debug("set-parameter added", zap.Stringer("rule", key.Rule), zap.String("param", key.ParamID))
	}
}

func (r *reconciler) addMappings() {
	for _, key := range r.want.mapList {
		if r.old.mappings[key] {
			continue
		}
		row := r.want.mappings[key]
		ci := r.ensureControlImplementation(r.ensureComponent(row), key.Source, key.Description)
		controlID, statementID := sheet.ParseControlRef(key.ControlRef)
		ir := r.ensureRequirement(ci, controlID)

		ref := oscal.Property{Name: ruleIDProp, Value: key.Rule.RuleID, Ns: row.Namespace()}
		if statementID == "" {
			if props := propsOf(ir.Props); !hasRuleRef(props, key.Rule.RuleID) {
				ir.Props = propsPtr(append(props, ref))
			}
		} else {
			stmt := r.ensureStatement(ir, statementID)
			if props := propsOf(stmt.Props); !hasRuleRef(props, key.Rule.RuleID) {
				stmt.Props = propsPtr(append(props, ref))
			}
		}

		r.changes.ControlMappings.Added++
		r.log.Debug("control mapping added", zap.Stringer("rule", key.Rule), zap.String("control", key.ControlRef))
	}
}

type componentKey struct {
	title string
	typ   string
}

// modifyComponents applies the description of each component's first row.
func (r *reconciler) modifyComponents() {
	seen := make(map[componentKey]bool)
	for _, key := range r.want.ruleOrder {
		ck := componentKey{key.Resource, key.ComponentType}
		if seen[ck] {
			continue
		}
		seen[ck] = true

		comp := findComponent(r.doc, key.Resource, key.ComponentType)
		desc := r.want.rules[key].ComponentDescription()
		if comp == nil || comp.Description == desc {
			continue
		}
		comp.Description = desc
		r.changes.Components.Modified++
		r.log.Debug("component modified", zap.String("component", comp.Title))
	}
}

func (r *reconciler) modifyRules() {
	for _, key := range r.want.ruleOrder {
		old, ok := r.old.rules[key]
		if !ok {
			continue
		}
		comp := findComponent(r.doc, key.Resource, key.ComponentType)
		if comp == nil {
			continue
		}
		if r.syncRule(comp, old.tag, r.want.rules[key]) {
			r.changes.Rules.Modified++
			r.log.Debug("rule modified", zap.Stringer("rule", key), zap.String("tag", old.tag))
		}
	}
}

func (r *reconciler) modifyParams() {
	for _, key := range r.want.paramList {
		if !r.old.params[key] {
			continue
		}
		ci := findControlImplementation(findComponent(r.doc, key.Rule.Resource, key.Rule.ComponentType), key.Source, key.Description)
		sp := findSetParameter(ci, key.ParamID)
		values := r.want.params[key]
		if sp == nil || slices.Equal(sp.Values, values) {
			continue
		}
		sp.Values = values
		r.changes.SetParameters.Modified++
		r.log.Debug("set-parameter modified", zap.Stringer("rule", key.Rule), zap.String("param", key.ParamID))
	}
}

// modifyMappings moves the rule references of kept mappings to the row's
// current namespace.
func (r *reconciler) modifyMappings() {
	for _, key := range r.want.mapList {
		if !r.old.mappings[key] {
			continue
		}
		ns := r.want.mappings[key].Namespace()
		ci := findControlImplementation(findComponent(r.doc, key.Rule.Resource, key.Rule.ComponentType), key.Source, key.Description)
		controlID, statementID := sheet.ParseControlRef(key.ControlRef)
		ir := findRequirement(ci, controlID)
		if ir == nil {
			continue
		}

		props := ir.Props
		if statementID != "" {
			stmt := findStatement(ir, statementID)
			if stmt == nil {
				continue
			}
			props = stmt.Props
		}

		changed := false
		for i, p := range propsOf(props) {
			if p.Name == ruleIDProp && p.Value == key.Rule.RuleID && p.Ns != ns {
				(*props)[i].Ns = ns
				changed = true
			}
		}
		if changed {
			r.changes.ControlMappings.Modified++
			r.log.Debug("control mapping modified", zap.Stringer("rule", key.Rule), zap.String("control", key.ControlRef))
		}
	}
}

// prune removes statements, requirements, control implementations and
// components left empty by deletions.
func (r *reconciler) prune() {
	if r.doc.Components == nil {
		return
	}

	var comps []oscal.DefinedComponent
	for _, comp := range *r.doc.Components {
		var cis []oscal.ControlImplementationSet
		for _, ci := range controlImplementations(&comp) {
			var irs []oscal.ImplementedRequirementControlImplementation
			for _, ir := range ci.ImplementedRequirements {
				var stmts []oscal.ControlStatementImplementation
				for _, stmt := range statements(&ir) {
					if len(propsOf(stmt.Props)) > 0 {
						stmts = append(stmts, *stmt)
					}
				}
				ir.Statements = nil
				if len(stmts) > 0 {
					ir.Statements = &stmts
				}
				if len(propsOf(ir.Props)) > 0 || ir.Statements != nil || ir.SetParameters != nil {
					irs = append(irs, ir)
				}
			}
			if len(irs) > 0 {
				c := *ci
				c.ImplementedRequirements = irs
				cis = append(cis, c)
			}
		}

		comp.ControlImplementations = nil
		if len(cis) > 0 {
			comp.ControlImplementations = &cis
		}

		if len(propsOf(comp.Props)) == 0 && comp.ControlImplementations == nil {
			r.changes.Components.Deleted++
			r.log.Debug("component removed", zap.String("component", comp.Title))
			continue
		}
		comps = append(comps, comp)
	}

	r.doc.Components = nil
	if len(comps) > 0 {
		r.doc.Components = &comps
	}
}

func (r *reconciler) ensureComponent(row *sheet.Row) *oscal.DefinedComponent {
	if comp := findComponent(r.doc, row.ComponentTitle(), row.ComponentType()); comp != nil {
		return comp
	}

	var comps []oscal.DefinedComponent
	if r.doc.Components != nil {
		comps = *r.doc.Components
	}
	comps = append(comps, oscal.DefinedComponent{
		UUID:        r.opts.NewUUID(),
		Type:        row.ComponentType(),
		Title:       row.ComponentTitle(),
		Description: row.ComponentDescription(),
	})
	r.doc.Components = &comps

	r.changes.Components.Added++
	r.log.Debug("component added", zap.String("component", row.ComponentTitle()))
	return &comps[len(comps)-1]
}

func (r *reconciler) ensureControlImplementation(comp *oscal.DefinedComponent, source, description string) *oscal.ControlImplementationSet {
	if ci := findControlImplementation(comp, source, description); ci != nil {
		return ci
	}

	var cis []oscal.ControlImplementationSet
	if comp.ControlImplementations != nil {
		cis = *comp.ControlImplementations
	}
	cis = append(cis, oscal.ControlImplementationSet{
		UUID:        r.opts.NewUUID(),
		Source:      source,
		Description: description,
	})
	comp.ControlImplementations = &cis
	return &cis[len(cis)-1]
}

func (r *reconciler) ensureRequirement(ci *oscal.ControlImplementationSet, controlID string) *oscal.ImplementedRequirementControlImplementation {
	if ir := findRequirement(ci, controlID); ir != nil {
		return ir
	}
	ci.ImplementedRequirements = append(ci.ImplementedRequirements, oscal.ImplementedRequirementControlImplementation{
		UUID:      r.opts.NewUUID(),
		ControlId: controlID,
	})
	return &ci.ImplementedRequirements[len(ci.ImplementedRequirements)-1]
}

func (r *reconciler) ensureStatement(ir *oscal.ImplementedRequirementControlImplementation, statementID string) *oscal.ControlStatementImplementation {
	if stmt := findStatement(ir, statementID); stmt != nil {
		return stmt
	}

	var stmts []oscal.ControlStatementImplementation
	if ir.Statements != nil {
		stmts = *ir.Statements
	}
	stmts = append(stmts, oscal.ControlStatementImplementation{
		UUID:        r.opts.NewUUID(),
		StatementId: statementID,
	})
	ir.Statements = &stmts
	return &stmts[len(stmts)-1]
}
