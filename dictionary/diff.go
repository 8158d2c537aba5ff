package dictionary

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/c360studio/semdict/qname"
)

// DiffKind classifies the change of one element between model versions.
type DiffKind string

// Diff kinds.
const (
	DiffCreated   DiffKind = "CREATED"
	DiffUpdated   DiffKind = "UPDATED"
	DiffDeleted   DiffKind = "DELETED"
	DiffUnchanged DiffKind = "UNCHANGED"
)

// ModelDiff is the change of one type, aspect or property. Class is the
// owning class of a property diff.
type ModelDiff struct {
	Name  qname.QName `json:"name"`
	Kind  ElementKind `json:"kind"`
	Diff  DiffKind    `json:"diff"`
	Class qname.QName `json:"class,omitzero"`
}

// String renders the diff as "KIND name DIFF".
func (d ModelDiff) String() string {
	return fmt.Sprintf("%s %s %s", d.Kind, d.Name, d.Diff)
}

// Breaking reports whether the diff blocks an in-place update: a type or
// aspect that was deleted or structurally changed.
func (d ModelDiff) Breaking() bool {
	if d.Kind != ElementType && d.Kind != ElementAspect {
		return false
	}
	return d.Diff == DiffDeleted || d.Diff == DiffUpdated
}

// Diff classifies every type, aspect and declared property of prev and next.
// A nil prev makes everything CREATED, a nil next everything DELETED.
//
// A class is UPDATED when its parent or mandatory aspects change, when an
// override changes, or when a property or association it declared is
// removed or changed. Added properties, added associations and edits to
// titles or descriptions leave it UNCHANGED.
func Diff(prev, next *CompiledModel) []ModelDiff {
	var diffs []ModelDiff
	diffs = append(diffs, diffClasses(classesOf(prev, false), classesOf(next, false))...)
	diffs = append(diffs, diffClasses(classesOf(prev, true), classesOf(next, true))...)
	return diffs
}

// Breaking returns the breaking entries of diffs.
func Breaking(diffs []ModelDiff) []ModelDiff {
	var out []ModelDiff
	for _, d := range diffs {
		if d.Breaking() {
			out = append(out, d)
		}
	}
	return out
}

func classesOf(m *CompiledModel, aspects bool) []*ClassDefinition {
	if m == nil {
		return nil
	}
	if aspects {
		return m.Aspects()
	}
	return m.Types()
}

// diffClasses walks two name-sorted class lists in step.
func diffClasses(prev, next []*ClassDefinition) []ModelDiff {
	var diffs []ModelDiff
	i, j := 0, 0
	for i < len(prev) || j < len(next) {
		switch {
		case j == len(next) || (i < len(prev) && qname.Less(prev[i].Name, next[j].Name)):
			diffs = append(diffs, ModelDiff{Name: prev[i].Name, Kind: prev[i].Kind(), Diff: DiffDeleted})
			diffs = append(diffs, diffProperties(prev[i], nil)...)
			i++
		case i == len(prev) || qname.Less(next[j].Name, prev[i].Name):
			diffs = append(diffs, ModelDiff{Name: next[j].Name, Kind: next[j].Kind(), Diff: DiffCreated})
			diffs = append(diffs, diffProperties(nil, next[j])...)
			j++
		default:
			kind := DiffUnchanged
			if classUpdated(prev[i], next[j]) {
				kind = DiffUpdated
			}
			diffs = append(diffs, ModelDiff{Name: next[j].Name, Kind: next[j].Kind(), Diff: kind})
			diffs = append(diffs, diffProperties(prev[i], next[j])...)
			i++
			j++
		}
	}
	return diffs
}

// diffProperties classifies the properties declared by either version of a
// class. Either side may be nil.
func diffProperties(prev, next *ClassDefinition) []ModelDiff {
	owner := qname.QName{}
	before := map[qname.QName]*PropertyDefinition{}
	after := map[qname.QName]*PropertyDefinition{}
	if prev != nil {
		owner = prev.Name
		for _, p := range prev.DeclaredProperties() {
			before[p.Name] = p
		}
	}
	if next != nil {
		owner = next.Name
		for _, p := range next.DeclaredProperties() {
			after[p.Name] = p
		}
	}

	names := make([]qname.QName, 0, len(before)+len(after))
	for n := range before {
		names = append(names, n)
	}
	for n := range after {
		if _, ok := before[n]; !ok {
			names = append(names, n)
		}
	}
	sortNames(names)

	diffs := make([]ModelDiff, 0, len(names))
	for _, n := range names {
		a, inPrev := before[n]
		b, inNext := after[n]
		d := ModelDiff{Name: n, Kind: ElementProperty, Class: owner}
		switch {
		case !inNext:
			d.Diff = DiffDeleted
		case !inPrev:
			d.Diff = DiffCreated
		case propertyUpdated(a, b):
			d.Diff = DiffUpdated
		default:
			d.Diff = DiffUnchanged
		}
		diffs = append(diffs, d)
	}
	return diffs
}

func classUpdated(a, b *ClassDefinition) bool {
	if a.IsAspect != b.IsAspect || a.Parent != b.Parent {
		return true
	}
	if !sameNameSet(a.declaredMandatoryAspects, b.declaredMandatoryAspects) {
		return true
	}

	for _, p := range a.DeclaredProperties() {
		q, ok := b.Properties[p.Name]
		if !ok || q.ContainerClass != b.Name || q.Override || propertyUpdated(p, q) {
			return true
		}
	}

	ao, bo := a.Overrides(), b.Overrides()
	if len(ao) != len(bo) {
		return true
	}
	for i := range ao {
		if ao[i].Name != bo[i].Name || propertyUpdated(ao[i], bo[i]) {
			return true
		}
	}

	for _, x := range a.DeclaredAssociations() {
		y, ok := b.Associations[x.Name]
		if !ok || y.SourceClass != b.Name || associationUpdated(x, y) {
			return true
		}
	}
	return false
}

func propertyUpdated(a, b *PropertyDefinition) bool {
	return a.DataType != b.DataType ||
		a.Multiple != b.Multiple ||
		a.Mandatory != b.Mandatory ||
		a.MandatoryEnforced != b.MandatoryEnforced ||
		a.Protected != b.Protected ||
		a.Indexed != b.Indexed ||
		a.Override != b.Override ||
		a.Default != b.Default ||
		constraintsUpdated(a.Constraints, b.Constraints)
}

func constraintsUpdated(a, b []*ConstraintDefinition) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.anonymous != y.anonymous || (!x.anonymous && x.Name != y.Name) {
			return true
		}
		if x.Ref != y.Ref || x.Type != y.Type || !reflect.DeepEqual(x.Parameters, y.Parameters) {
			return true
		}
	}
	return false
}

func associationUpdated(a, b *AssociationDefinition) bool {
	return a.TargetClass != b.TargetClass ||
		a.Child != b.Child ||
		a.Protected != b.Protected ||
		a.SourceMandatory != b.SourceMandatory ||
		a.SourceMany != b.SourceMany ||
		a.TargetMandatory != b.TargetMandatory ||
		a.TargetMany != b.TargetMany
}

func sameNameSet(a, b []qname.QName) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[qname.QName]struct{}, len(a))
	for _, n := range a {
		set[n] = struct{}{}
	}
	for _, n := range b {
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}

// describeDiffs renders breaking diffs for error messages.
func describeDiffs(diffs []ModelDiff) string {
	parts := make([]string, 0, len(diffs))
	for _, d := range diffs {
		parts = append(parts, strings.ToLower(string(d.Kind))+" "+d.Name.String()+" "+strings.ToLower(string(d.Diff)))
	}
	return strings.Join(parts, ", ")
}
