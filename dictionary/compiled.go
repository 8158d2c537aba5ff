package dictionary

import (
	"sort"

	"github.com/c360studio/semdict/namespace"
	"github.com/c360studio/semdict/qname"
	"github.com/c360studio/semdict/schema"
)

// CompiledModel is the resolved form of a raw model. It is never mutated
// once compiled, so it may be shared between registries and read without
// locks.
type CompiledModel struct {
	def *ModelDefinition
	raw *schema.Model

	dataTypes    map[qname.QName]*DataTypeDefinition
	types        map[qname.QName]*ClassDefinition
	aspects      map[qname.QName]*ClassDefinition
	properties   map[qname.QName]*PropertyDefinition
	associations map[qname.QName]*AssociationDefinition
	constraints  map[qname.QName]*ConstraintDefinition
}

// Name returns the model name.
func (m *CompiledModel) Name() qname.QName { return m.def.Name }

// Definition returns the model metadata.
func (m *CompiledModel) Definition() *ModelDefinition { return m.def }

// Raw returns a copy of the raw model this was compiled from.
func (m *CompiledModel) Raw() *schema.Model { return m.raw.Clone() }

// Namespaces returns the namespaces declared by the model.
func (m *CompiledModel) Namespaces() []namespace.Namespace {
	return append([]namespace.Namespace(nil), m.def.Namespaces...)
}

// Imports returns the namespaces imported by the model.
func (m *CompiledModel) Imports() []namespace.Namespace {
	return append([]namespace.Namespace(nil), m.def.Imports...)
}

// Declares reports whether the model declares uri.
func (m *CompiledModel) Declares(uri string) bool {
	for _, ns := range m.def.Namespaces {
		if ns.URI == uri {
			return true
		}
	}
	return false
}

// ImportsURI reports whether the model imports uri.
func (m *CompiledModel) ImportsURI(uri string) bool {
	for _, ns := range m.def.Imports {
		if ns.URI == uri {
			return true
		}
	}
	return false
}

// DataType returns the named data type declared by this model.
func (m *CompiledModel) DataType(name qname.QName) (*DataTypeDefinition, bool) {
	d, ok := m.dataTypes[name]
	return d, ok
}

// Type returns the named type declared by this model.
func (m *CompiledModel) Type(name qname.QName) (*ClassDefinition, bool) {
	c, ok := m.types[name]
	return c, ok
}

// Aspect returns the named aspect declared by this model.
func (m *CompiledModel) Aspect(name qname.QName) (*ClassDefinition, bool) {
	c, ok := m.aspects[name]
	return c, ok
}

// Class returns the named type or aspect declared by this model.
func (m *CompiledModel) Class(name qname.QName) (*ClassDefinition, bool) {
	if c, ok := m.types[name]; ok {
		return c, true
	}
	c, ok := m.aspects[name]
	return c, ok
}

// Property returns the named property declared by this model. Overrides are
// not included.
func (m *CompiledModel) Property(name qname.QName) (*PropertyDefinition, bool) {
	p, ok := m.properties[name]
	return p, ok
}

// Association returns the named association declared by this model.
func (m *CompiledModel) Association(name qname.QName) (*AssociationDefinition, bool) {
	a, ok := m.associations[name]
	return a, ok
}

// Constraint returns the named constraint in the model scope, either declared
// at model level or on a property.
func (m *CompiledModel) Constraint(name qname.QName) (*ConstraintDefinition, bool) {
	c, ok := m.constraints[name]
	return c, ok
}

// DataTypes returns the declared data types sorted by name.
func (m *CompiledModel) DataTypes() []*DataTypeDefinition {
	return sortedValues(m.dataTypes, func(d *DataTypeDefinition) qname.QName { return d.Name })
}

// Types returns the declared types sorted by name.
func (m *CompiledModel) Types() []*ClassDefinition {
	return sortedValues(m.types, func(c *ClassDefinition) qname.QName { return c.Name })
}

// Aspects returns the declared aspects sorted by name.
func (m *CompiledModel) Aspects() []*ClassDefinition {
	return sortedValues(m.aspects, func(c *ClassDefinition) qname.QName { return c.Name })
}

// Properties returns the declared properties sorted by name.
func (m *CompiledModel) Properties() []*PropertyDefinition {
	return sortedValues(m.properties, func(p *PropertyDefinition) qname.QName { return p.Name })
}

// Associations returns the declared associations sorted by name.
func (m *CompiledModel) Associations() []*AssociationDefinition {
	return sortedValues(m.associations, func(a *AssociationDefinition) qname.QName { return a.Name })
}

// Constraints returns the model scope constraints sorted by name.
func (m *CompiledModel) Constraints() []*ConstraintDefinition {
	return sortedValues(m.constraints, func(c *ConstraintDefinition) qname.QName { return c.Name })
}

func sortedValues[V any](m map[qname.QName]V, name func(V) qname.QName) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return qname.Less(name(out[i]), name(out[j])) })
	return out
}
