package dictionary

import (
	"sort"
	"time"

	"github.com/c360studio/semdict/namespace"
	"github.com/c360studio/semdict/qname"
)

// ElementKind classifies schema elements.
type ElementKind string

// Element kinds.
const (
	ElementType        ElementKind = "TYPE"
	ElementAspect      ElementKind = "ASPECT"
	ElementProperty    ElementKind = "PROPERTY"
	ElementAssociation ElementKind = "ASSOCIATION"
	ElementConstraint  ElementKind = "CONSTRAINT"
	ElementDataType    ElementKind = "DATATYPE"
	ElementModel       ElementKind = "MODEL"
)

// ModelDefinition is the descriptive part of a compiled model.
type ModelDefinition struct {
	Name        qname.QName
	Title       string
	Description string
	Author      string
	Published   time.Time
	Version     string
	Namespaces  []namespace.Namespace
	Imports     []namespace.Namespace
}

// DataTypeDefinition is a resolved property data type.
type DataTypeDefinition struct {
	Name        qname.QName
	Model       qname.QName
	Title       string
	Description string
	Kind        string
}

// ClassDefinition is a resolved type or aspect. Parent is the zero QName for
// root classes; a parent chain only links classes of the same kind.
type ClassDefinition struct {
	Name        qname.QName
	Model       qname.QName
	Title       string
	Description string
	Parent      qname.QName
	IsAspect    bool
	Archive     bool

	// Properties holds every property of the class: inherited ones, with
	// overrides merged, and declared ones.
	Properties map[qname.QName]*PropertyDefinition
	// Associations holds inherited and declared associations.
	Associations map[qname.QName]*AssociationDefinition
	// MandatoryAspects lists inherited then declared mandatory aspects.
	MandatoryAspects []qname.QName

	declaredProperties       []qname.QName
	declaredAssociations     []qname.QName
	declaredMandatoryAspects []qname.QName
}

// Kind returns ElementAspect or ElementType.
func (c *ClassDefinition) Kind() ElementKind {
	if c.IsAspect {
		return ElementAspect
	}
	return ElementType
}

// HasParent reports whether the class has a super class.
func (c *ClassDefinition) HasParent() bool {
	return !c.Parent.IsZero()
}

// Property returns the named property, inherited or declared.
func (c *ClassDefinition) Property(name qname.QName) (*PropertyDefinition, bool) {
	p, ok := c.Properties[name]
	return p, ok
}

// DeclaredProperties returns the properties declared by this class itself,
// excluding inherited ones and overrides, in declaration order.
func (c *ClassDefinition) DeclaredProperties() []*PropertyDefinition {
	out := make([]*PropertyDefinition, 0, len(c.declaredProperties))
	for _, name := range c.declaredProperties {
		out = append(out, c.Properties[name])
	}
	return out
}

// Overrides returns the overrides declared by this class, sorted by name.
func (c *ClassDefinition) Overrides() []*PropertyDefinition {
	var out []*PropertyDefinition
	for _, p := range c.Properties {
		if p.Override && p.ContainerClass == c.Name {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return qname.Less(out[i].Name, out[j].Name) })
	return out
}

// DeclaredAssociations returns the associations declared by this class in
// declaration order.
func (c *ClassDefinition) DeclaredAssociations() []*AssociationDefinition {
	out := make([]*AssociationDefinition, 0, len(c.declaredAssociations))
	for _, name := range c.declaredAssociations {
		out = append(out, c.Associations[name])
	}
	return out
}

// DeclaredMandatoryAspects returns the mandatory aspects named by this class.
func (c *ClassDefinition) DeclaredMandatoryAspects() []qname.QName {
	return append([]qname.QName(nil), c.declaredMandatoryAspects...)
}

// PropertyNames returns the names of all properties, sorted.
func (c *ClassDefinition) PropertyNames() []qname.QName {
	names := make([]qname.QName, 0, len(c.Properties))
	for name := range c.Properties {
		names = append(names, name)
	}
	sortNames(names)
	return names
}

// IsContainer reports whether the class has a child association.
func (c *ClassDefinition) IsContainer() bool {
	for _, a := range c.Associations {
		if a.Child {
			return true
		}
	}
	return false
}

// PropertyDefinition is a resolved property. For an override, ContainerClass
// is the overriding class; otherwise it is the declaring class.
type PropertyDefinition struct {
	Name              qname.QName
	Model             qname.QName
	ContainerClass    qname.QName
	Title             string
	Description       string
	DataType          qname.QName
	Multiple          bool
	Mandatory         bool
	MandatoryEnforced bool
	Protected         bool
	Indexed           bool
	Override          bool
	Default           string
	Constraints       []*ConstraintDefinition
}

// AssociationDefinition is a resolved association.
type AssociationDefinition struct {
	Name            qname.QName
	Model           qname.QName
	SourceClass     qname.QName
	TargetClass     qname.QName
	Title           string
	Description     string
	Child           bool
	Protected       bool
	SourceMandatory bool
	SourceMany      bool
	TargetMandatory bool
	TargetMany      bool
}

func sortNames(names []qname.QName) {
	sort.Slice(names, func(i, j int) bool { return qname.Less(names[i], names[j]) })
}
