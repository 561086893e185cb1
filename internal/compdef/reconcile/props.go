package reconcile

import (
	"slices"

	oscal "github.com/defenseunicorns/go-oscal/src/types/oscal-1-1-3"

	"github.com/sigcomply/compdef-cli/internal/compdef/sheet"
)

// property builds the component property for one row cell.
func (r *reconciler) property(row *sheet.Row, cell sheet.Cell, tag string) oscal.Property {
	ns := row.Namespace()
	if cell.User && r.opts.UserNamespace != "" {
		ns = r.opts.UserNamespace
	}
	return oscal.Property{
		Name:    cell.Name,
		Value:   cell.Value,
		Ns:      ns,
		Class:   r.opts.ClassColumns[cell.Name],
		Remarks: tag,
	}
}

// syncRule brings the properties tagged tag in line with row. Existing
// properties are updated in place, properties for emptied columns are removed,
// and properties for new columns are inserted after the closest preceding
// column in precedence order. It reports whether anything changed.
func (r *reconciler) syncRule(comp *oscal.DefinedComponent, tag string, row *sheet.Row) bool {
	want := make(map[string]oscal.Property)
	for _, cell := range row.Properties() {
		want[cell.Name] = r.property(row, cell, tag)
	}

	changed := false
	present := make(map[string]bool)
	var props []oscal.Property

	for _, p := range propsOf(comp.Props) {
		if p.Remarks != tag {
			props = append(props, p)
			continue
		}
		np, ok := want[p.Name]
		if !ok || present[p.Name] {
			changed = true
			continue
		}
		if p.Value != np.Value || p.Ns != np.Ns || p.Class != np.Class {
			p.Value, p.Ns, p.Class = np.Value, np.Ns, np.Class
			changed = true
		}
		present[p.Name] = true
		props = append(props, p)
	}

	order := row.PropertyColumns()
	for _, cell := range row.Properties() {
		if present[cell.Name] {
			continue
		}
		at := insertionPoint(props, tag, cell.Name, order)
		props = slices.Insert(props, at, want[cell.Name])
		present[cell.Name] = true
		changed = true
	}

	if changed {
		comp.Props = propsPtr(props)
	}
	return changed
}

// insertionPoint returns the index at which a property named name belongs
// within the run tagged tag.
func insertionPoint(props []oscal.Property, tag, name string, order []string) int {
	rank := slices.Index(order, name)
	first, after := -1, -1
	for i, p := range props {
		if p.Remarks != tag {
			continue
		}
		if first < 0 {
			first = i
		}
		if pr := slices.Index(order, p.Name); pr >= 0 && pr < rank {
			after = i
		}
	}
	switch {
	case after >= 0:
		return after + 1
	case first >= 0:
		return first
	default:
		return len(props)
	}
}
