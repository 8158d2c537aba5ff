package dictionary

import (
	"fmt"
	"sort"

	"github.com/c360studio/semdict/namespace"
	"github.com/c360studio/semdict/qname"
)

// View is a consistent read-only snapshot of one tenant: its own registry
// overlaid on the default registry. Tenant models shadow default models of
// the same name. A View never changes and needs no locking.
type View struct {
	tenant  string
	own     *Registry
	base    *Registry
	exclude qname.QName
}

// NewView creates a view of own over base. base is nil for the default tenant.
func NewView(own, base *Registry) *View {
	return &View{tenant: own.Tenant(), own: own, base: base}
}

// excluding returns a view that hides every model named name. Used as the
// compile query for a new version of that model.
func (v *View) excluding(name qname.QName) *View {
	c := *v
	c.exclude = name
	return &c
}

// Tenant returns the tenant domain of the view.
func (v *View) Tenant() string { return v.tenant }

func (v *View) visible(m *CompiledModel) bool {
	return v.exclude.IsZero() || m.Name() != v.exclude
}

// Model returns the named model as seen by the tenant.
func (v *View) Model(name qname.QName) (*CompiledModel, error) {
	if m, ok := v.own.Model(name); ok && v.visible(m) {
		return m, nil
	}
	if v.base != nil {
		if m, ok := v.base.Model(name); ok && v.visible(m) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
}

// Models returns every model visible to the tenant, sorted by name.
func (v *View) Models() []*CompiledModel {
	var out []*CompiledModel
	for _, m := range v.own.Models() {
		if v.visible(m) {
			out = append(out, m)
		}
	}
	if v.base != nil {
		for _, m := range v.base.Models() {
			if _, shadowed := v.own.Model(m.Name()); !shadowed && v.visible(m) {
				out = append(out, m)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return qname.Less(out[i].Name(), out[j].Name()) })
	return out
}

// ModelsForURI returns the models declaring uri: the tenant's own first, then
// default models the tenant does not shadow by name.
func (v *View) ModelsForURI(uri string) []*CompiledModel {
	var out []*CompiledModel
	for _, m := range v.own.ModelsForURI(uri) {
		if v.visible(m) {
			out = append(out, m)
		}
	}
	if v.base != nil {
		for _, m := range v.base.ModelsForURI(uri) {
			if _, shadowed := v.own.Model(m.Name()); !shadowed && v.visible(m) {
				out = append(out, m)
			}
		}
	}
	return out
}

// IsModelInherited reports whether the tenant sees the named model through
// the default registry rather than defining it.
func (v *View) IsModelInherited(name qname.QName) (bool, error) {
	if _, ok := v.own.Model(name); ok {
		return false, nil
	}
	if v.base != nil {
		if _, ok := v.base.Model(name); ok {
			return true, nil
		}
	}
	return false, fmt.Errorf("%w: %s", ErrModelNotFound, name)
}

// Namespaces resolves prefixes through the tenant's namespaces, then the
// default tenant's.
func (v *View) Namespaces() namespace.Resolver {
	if v.base == nil {
		return v.own.namespaces
	}
	return namespace.Overlay(v.own.namespaces, v.base.namespaces)
}

// NamespaceList returns every visible namespace binding sorted by URI.
func (v *View) NamespaceList() []namespace.Namespace {
	seen := make(map[string]bool)
	var out []namespace.Namespace
	for _, r := range []*Registry{v.own, v.base} {
		if r == nil {
			continue
		}
		for _, ns := range r.Namespaces() {
			if !seen[ns.URI] {
				seen[ns.URI] = true
				out = append(out, ns)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// lookup finds the first visible model declaring name's namespace for which
// get succeeds.
func lookup[T any](v *View, name qname.QName, get func(*CompiledModel, qname.QName) (T, bool)) (T, bool) {
	for _, m := range v.ModelsForURI(name.Namespace) {
		if d, ok := get(m, name); ok {
			return d, true
		}
	}
	var zero T
	return zero, false
}

// DataType returns the named data type.
func (v *View) DataType(name qname.QName) (*DataTypeDefinition, bool) {
	return lookup(v, name, (*CompiledModel).DataType)
}

// Type returns the named type.
func (v *View) Type(name qname.QName) (*ClassDefinition, bool) {
	return lookup(v, name, (*CompiledModel).Type)
}

// Aspect returns the named aspect.
func (v *View) Aspect(name qname.QName) (*ClassDefinition, bool) {
	return lookup(v, name, (*CompiledModel).Aspect)
}

// Class returns the named type or aspect.
func (v *View) Class(name qname.QName) (*ClassDefinition, bool) {
	return lookup(v, name, (*CompiledModel).Class)
}

// Property returns the named property as declared.
func (v *View) Property(name qname.QName) (*PropertyDefinition, bool) {
	return lookup(v, name, (*CompiledModel).Property)
}

// ClassProperty returns property prop of class, including inherited
// properties and overrides.
func (v *View) ClassProperty(class, prop qname.QName) (*PropertyDefinition, bool) {
	cls, ok := v.Class(class)
	if !ok {
		return nil, false
	}
	return cls.Property(prop)
}

// Association returns the named association.
func (v *View) Association(name qname.QName) (*AssociationDefinition, bool) {
	return lookup(v, name, (*CompiledModel).Association)
}

// Constraint returns the named constraint.
func (v *View) Constraint(name qname.QName) (*ConstraintDefinition, bool) {
	return lookup(v, name, (*CompiledModel).Constraint)
}

// Types returns the types declared by the named model.
func (v *View) Types(model qname.QName) ([]*ClassDefinition, error) {
	m, err := v.Model(model)
	if err != nil {
		return nil, err
	}
	return m.Types(), nil
}

// Aspects returns the aspects declared by the named model.
func (v *View) Aspects(model qname.QName) ([]*ClassDefinition, error) {
	m, err := v.Model(model)
	if err != nil {
		return nil, err
	}
	return m.Aspects(), nil
}

// Properties returns the properties declared by the named model. A non-zero
// dataType keeps only properties of that type.
func (v *View) Properties(model, dataType qname.QName) ([]*PropertyDefinition, error) {
	m, err := v.Model(model)
	if err != nil {
		return nil, err
	}
	props := m.Properties()
	if dataType.IsZero() {
		return props, nil
	}
	out := props[:0:0]
	for _, p := range props {
		if p.DataType == dataType {
			out = append(out, p)
		}
	}
	return out, nil
}

// Associations returns the associations declared by the named model.
func (v *View) Associations(model qname.QName) ([]*AssociationDefinition, error) {
	m, err := v.Model(model)
	if err != nil {
		return nil, err
	}
	return m.Associations(), nil
}

// Constraints returns the model scope constraints of the named model.
func (v *View) Constraints(model qname.QName) ([]*ConstraintDefinition, error) {
	m, err := v.Model(model)
	if err != nil {
		return nil, err
	}
	return m.Constraints(), nil
}

// DataTypes returns the data types declared by the named model.
func (v *View) DataTypes(model qname.QName) ([]*DataTypeDefinition, error) {
	m, err := v.Model(model)
	if err != nil {
		return nil, err
	}
	return m.DataTypes(), nil
}

// ModelNamespaces returns the namespaces declared by the named model.
func (v *View) ModelNamespaces(model qname.QName) ([]namespace.Namespace, error) {
	m, err := v.Model(model)
	if err != nil {
		return nil, err
	}
	return m.Namespaces(), nil
}

// AllTypes returns the names of every visible type, sorted.
func (v *View) AllTypes() []qname.QName {
	return v.allClasses(false)
}

// AllAspects returns the names of every visible aspect, sorted.
func (v *View) AllAspects() []qname.QName {
	return v.allClasses(true)
}

// AllDataTypes returns the names of every visible data type, sorted.
func (v *View) AllDataTypes() []qname.QName {
	var out []qname.QName
	for _, m := range v.Models() {
		for _, d := range m.DataTypes() {
			out = append(out, d.Name)
		}
	}
	sortNames(out)
	return out
}

func (v *View) allClasses(aspects bool) []qname.QName {
	var out []qname.QName
	for _, c := range v.classes(aspects) {
		out = append(out, c.Name)
	}
	sortNames(out)
	return out
}

func (v *View) classes(aspects bool) []*ClassDefinition {
	var out []*ClassDefinition
	for _, m := range v.Models() {
		if aspects {
			out = append(out, m.Aspects()...)
		} else {
			out = append(out, m.Types()...)
		}
	}
	return out
}

// SubTypes returns the types below superType. With follow false only types
// whose parent is superType are returned; root types are never returned.
// With follow true every type whose ancestor chain reaches superType is
// returned, superType itself included.
func (v *View) SubTypes(superType qname.QName, follow bool) []qname.QName {
	return v.subClasses(superType, follow, false)
}

// SubAspects is SubTypes for aspects.
func (v *View) SubAspects(superAspect qname.QName, follow bool) []qname.QName {
	return v.subClasses(superAspect, follow, true)
}

func (v *View) subClasses(super qname.QName, follow, aspects bool) []qname.QName {
	if super.IsZero() {
		return nil
	}
	parents := make(map[qname.QName]qname.QName)
	for _, c := range v.classes(aspects) {
		parents[c.Name] = c.Parent
	}

	var out []qname.QName
	for name, parent := range parents {
		if !follow {
			if !parent.IsZero() && parent == super {
				out = append(out, name)
			}
			continue
		}
		seen := make(map[qname.QName]bool)
		current := name
		for !current.IsZero() && current != super && !seen[current] {
			seen[current] = true
			current = parents[current]
		}
		if current == super {
			out = append(out, name)
		}
	}
	sortNames(out)
	return out
}

// IsSubClass reports whether class a is b or descends from b. Both must be
// known and of the same kind.
func (v *View) IsSubClass(a, b qname.QName) bool {
	ca, ok := v.Class(a)
	if !ok {
		return false
	}
	cb, ok := v.Class(b)
	if !ok || ca.IsAspect != cb.IsAspect {
		return false
	}

	seen := make(map[qname.QName]bool)
	for current := ca; current != nil && !seen[current.Name]; {
		if current.Name == b {
			return true
		}
		seen[current.Name] = true
		if !current.HasParent() {
			return false
		}
		next, ok := v.Class(current.Parent)
		if !ok || next.IsAspect != ca.IsAspect {
			return false
		}
		current = next
	}
	return false
}
