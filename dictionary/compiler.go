package dictionary

import (
	"errors"
	"fmt"
	"sort"

	"github.com/c360studio/semdict/namespace"
	"github.com/c360studio/semdict/qname"
	"github.com/c360studio/semdict/schema"
	"github.com/c360studio/semdict/vocabulary/datatypes"
)

// ModelQuery looks up definitions in models that are already published.
// The model being compiled is never visible through it.
type ModelQuery interface {
	DataType(name qname.QName) (*DataTypeDefinition, bool)
	Class(name qname.QName) (*ClassDefinition, bool)
	Constraint(name qname.QName) (*ConstraintDefinition, bool)
}

type emptyQuery struct{}

func (emptyQuery) DataType(qname.QName) (*DataTypeDefinition, bool)     { return nil, false }
func (emptyQuery) Class(qname.QName) (*ClassDefinition, bool)           { return nil, false }
func (emptyQuery) Constraint(qname.QName) (*ConstraintDefinition, bool) { return nil, false }

// Compile resolves raw into a CompiledModel. Names resolve through the
// model's own namespaces and imports first, then through ns. References to
// other models go through query. Compile has no side effects; raw is copied.
func Compile(raw *schema.Model, query ModelQuery, ns namespace.Resolver) (*CompiledModel, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: nil model", ErrInvalidModel)
	}
	if err := raw.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	if query == nil {
		query = emptyQuery{}
	}

	c := &compiler{
		raw:      raw.Clone(),
		query:    query,
		rawClass: make(map[qname.QName]*schema.Class),
		rawProp:  make(map[qname.QName]*schema.Property),
	}
	if err := c.construct(ns); err != nil {
		return nil, err
	}
	if err := c.resolveDependencies(); err != nil {
		return nil, err
	}
	if err := c.resolveInheritance(); err != nil {
		return nil, err
	}
	return c.m, nil
}

type compiler struct {
	raw      *schema.Model
	query    ModelQuery
	resolver namespace.Resolver
	declared map[string]bool
	m        *CompiledModel
	anon     int

	classes  []*ClassDefinition
	rawClass map[qname.QName]*schema.Class
	rawProp  map[qname.QName]*schema.Property
}

// construct creates a definition for every element and checks name
// uniqueness within the model.
func (c *compiler) construct(ns namespace.Resolver) error {
	raw := c.raw

	bindings := make([]namespace.Namespace, 0, len(raw.Imports)+len(raw.Namespaces))
	bindings = append(bindings, raw.Imports...)
	bindings = append(bindings, raw.Namespaces...)
	c.resolver = namespace.Overlay(namespace.NewMap(bindings...), ns)

	c.declared = make(map[string]bool, len(raw.Namespaces))
	for _, d := range raw.Namespaces {
		c.declared[d.URI] = true
	}
	for _, imp := range raw.Imports {
		if c.declared[imp.URI] {
			continue
		}
		if ns == nil {
			return elementError(ElementModel, imp.URI, fmt.Errorf("%w: import %s", ErrUnresolvedNamespace, imp.URI))
		}
		if _, ok := ns.Prefix(imp.URI); !ok {
			return elementError(ElementModel, imp.URI, fmt.Errorf("%w: import %s", ErrUnresolvedNamespace, imp.URI))
		}
	}

	name, err := c.resolve(raw.Name, ElementModel)
	if err != nil {
		return err
	}
	c.m = &CompiledModel{
		def: &ModelDefinition{
			Name:        name,
			Title:       raw.Title,
			Description: raw.Description,
			Author:      raw.Author,
			Published:   raw.Published,
			Version:     raw.Version,
			Namespaces:  append([]namespace.Namespace(nil), raw.Namespaces...),
			Imports:     append([]namespace.Namespace(nil), raw.Imports...),
		},
		raw:          raw,
		dataTypes:    make(map[qname.QName]*DataTypeDefinition),
		types:        make(map[qname.QName]*ClassDefinition),
		aspects:      make(map[qname.QName]*ClassDefinition),
		properties:   make(map[qname.QName]*PropertyDefinition),
		associations: make(map[qname.QName]*AssociationDefinition),
		constraints:  make(map[qname.QName]*ConstraintDefinition),
	}

	for _, dt := range raw.DataTypes {
		dn, err := c.resolveDeclared(dt.Name, ElementDataType)
		if err != nil {
			return err
		}
		if _, dup := c.m.dataTypes[dn]; dup {
			return elementError(ElementDataType, dt.Name, ErrDuplicateDefinition)
		}
		c.m.dataTypes[dn] = &DataTypeDefinition{
			Name:        dn,
			Model:       name,
			Title:       dt.Title,
			Description: dt.Description,
			Kind:        dt.Kind,
		}
	}

	for _, rc := range raw.Constraints {
		cn, err := c.resolveDeclared(rc.Name, ElementConstraint)
		if err != nil {
			return err
		}
		if _, dup := c.m.constraints[cn]; dup {
			return elementError(ElementConstraint, rc.Name, fmt.Errorf("%w in model", ErrDuplicateConstraint))
		}
		def, err := c.inlineConstraint(cn, rc)
		if err != nil {
			return err
		}
		c.m.constraints[cn] = def
	}

	for i := range raw.Types {
		if err := c.constructClass(&raw.Types[i], false); err != nil {
			return err
		}
	}
	for i := range raw.Aspects {
		if err := c.constructClass(&raw.Aspects[i], true); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) constructClass(rc *schema.Class, isAspect bool) error {
	kind := ElementType
	if isAspect {
		kind = ElementAspect
	}
	name, err := c.resolveDeclared(rc.Name, kind)
	if err != nil {
		return err
	}
	if _, dup := c.rawClass[name]; dup {
		return elementError(kind, rc.Name, ErrDuplicateDefinition)
	}

	cls := &ClassDefinition{
		Name:        name,
		Model:       c.m.def.Name,
		Title:       rc.Title,
		Description: rc.Description,
		IsAspect:    isAspect,
		Archive:     rc.Archive,
	}
	c.rawClass[name] = rc
	c.classes = append(c.classes, cls)
	if isAspect {
		c.m.aspects[name] = cls
	} else {
		c.m.types[name] = cls
	}

	for i := range rc.Properties {
		rp := &rc.Properties[i]
		pn, err := c.resolveDeclared(rp.Name, ElementProperty)
		if err != nil {
			return err
		}
		if _, dup := c.m.properties[pn]; dup {
			return elementError(ElementProperty, rp.Name, ErrDuplicateDefinition)
		}
		indexed := true
		if rp.Indexed != nil {
			indexed = *rp.Indexed
		}
		c.m.properties[pn] = &PropertyDefinition{
			Name:              pn,
			Model:             c.m.def.Name,
			ContainerClass:    name,
			Title:             rp.Title,
			Description:       rp.Description,
			Multiple:          rp.Multiple,
			Mandatory:         rp.Mandatory,
			MandatoryEnforced: rp.MandatoryEnforced,
			Protected:         rp.Protected,
			Indexed:           indexed,
			Default:           rp.Default,
		}
		c.rawProp[pn] = rp
		cls.declaredProperties = append(cls.declaredProperties, pn)
	}

	for _, ra := range rc.Associations {
		an, err := c.resolveDeclared(ra.Name, ElementAssociation)
		if err != nil {
			return err
		}
		if _, dup := c.m.associations[an]; dup {
			return elementError(ElementAssociation, ra.Name, ErrDuplicateDefinition)
		}
		c.m.associations[an] = &AssociationDefinition{
			Name:            an,
			Model:           c.m.def.Name,
			SourceClass:     name,
			Title:           ra.Title,
			Description:     ra.Description,
			Child:           ra.Child,
			Protected:       ra.Protected,
			SourceMandatory: ra.Source.Mandatory,
			SourceMany:      ra.Source.Many,
			TargetMandatory: ra.Target.Mandatory,
			TargetMany:      ra.Target.Many,
		}
		cls.declaredAssociations = append(cls.declaredAssociations, an)
	}
	return nil
}

// resolveDependencies binds data types, constraints, parents, mandatory
// aspects and association targets.
func (c *compiler) resolveDependencies() error {
	for _, cls := range c.classes {
		rc := c.rawClass[cls.Name]

		for _, pn := range cls.declaredProperties {
			if err := c.resolveProperty(c.m.properties[pn]); err != nil {
				return err
			}
		}

		if rc.Parent != "" {
			pn, err := c.resolve(rc.Parent, cls.Kind())
			if err != nil {
				return err
			}
			parent, ok := c.class(pn)
			if !ok || parent.IsAspect != cls.IsAspect {
				return elementError(cls.Kind(), rc.Name, fmt.Errorf("%w: %s", ErrParentNotFound, rc.Parent))
			}
			cls.Parent = pn
		}

		for _, raw := range rc.MandatoryAspects {
			an, err := c.resolve(raw, cls.Kind())
			if err != nil {
				return err
			}
			aspect, ok := c.class(an)
			if !ok || !aspect.IsAspect {
				return elementError(cls.Kind(), rc.Name, fmt.Errorf("%w: mandatory aspect %s", ErrAspectNotFound, raw))
			}
			if !containsName(cls.declaredMandatoryAspects, an) {
				cls.declaredMandatoryAspects = append(cls.declaredMandatoryAspects, an)
			}
		}

		for i, an := range cls.declaredAssociations {
			assoc := c.m.associations[an]
			target := rc.Associations[i].Target.Class
			tn, err := c.resolve(target, ElementAssociation)
			if err != nil {
				return err
			}
			if _, ok := c.class(tn); !ok {
				return elementError(ElementAssociation, rc.Associations[i].Name, fmt.Errorf("%w: target %s", ErrClassNotFound, target))
			}
			assoc.TargetClass = tn
		}
	}
	return nil
}

func (c *compiler) resolveProperty(p *PropertyDefinition) error {
	rp := c.rawProp[p.Name]
	dn, err := c.resolve(rp.Type, ElementProperty)
	if err != nil {
		return err
	}
	dt, ok := c.m.dataTypes[dn]
	if !ok {
		dt, ok = c.query.DataType(dn)
	}
	if !ok {
		return elementError(ElementProperty, rp.Name, fmt.Errorf("%w: %s", ErrUnknownDataType, rp.Type))
	}
	p.DataType = dt.Name
	if (dt.Name == datatypes.Content || dt.Kind == datatypes.KindContent) && p.Multiple {
		return elementError(ElementProperty, rp.Name, ErrInvalidContentProperty)
	}

	constraints, err := c.buildConstraints(rp.Constraints, p.Name)
	if err != nil {
		return err
	}
	p.Constraints = constraints
	return nil
}

// resolveInheritance merges inherited properties, overrides and associations,
// walking classes from the root of each local hierarchy to its leaves.
func (c *compiler) resolveInheritance() error {
	depth, err := c.depths()
	if err != nil {
		return err
	}
	ordered := append([]*ClassDefinition(nil), c.classes...)
	sort.SliceStable(ordered, func(i, j int) bool { return depth[ordered[i].Name] < depth[ordered[j].Name] })

	for _, cls := range ordered {
		rc := c.rawClass[cls.Name]

		var parent *ClassDefinition
		if cls.HasParent() {
			parent, _ = c.class(cls.Parent)
		}

		props := make(map[qname.QName]*PropertyDefinition)
		assocs := make(map[qname.QName]*AssociationDefinition)
		var aspects []qname.QName
		if parent != nil {
			for k, v := range parent.Properties {
				props[k] = v
			}
			for k, v := range parent.Associations {
				assocs[k] = v
			}
			aspects = append(aspects, parent.MandatoryAspects...)
		}

		for _, o := range rc.Overrides {
			on, err := c.resolve(o.Name, ElementProperty)
			if err != nil {
				return err
			}
			inherited, ok := props[on]
			if !ok {
				return elementError(ElementProperty, o.Name, fmt.Errorf("%w in %s", ErrInvalidOverride, rc.Name))
			}
			merged, err := c.mergeOverride(inherited, o, cls)
			if err != nil {
				return err
			}
			props[on] = merged
		}

		for _, pn := range cls.declaredProperties {
			if _, exists := props[pn]; exists {
				return elementError(ElementProperty, pn.String(), fmt.Errorf("%w: already defined in the hierarchy of %s", ErrDuplicateDefinition, rc.Name))
			}
			props[pn] = c.m.properties[pn]
		}
		for _, an := range cls.declaredAssociations {
			if _, exists := assocs[an]; exists {
				return elementError(ElementAssociation, an.String(), fmt.Errorf("%w: already defined in the hierarchy of %s", ErrDuplicateDefinition, rc.Name))
			}
			assocs[an] = c.m.associations[an]
		}
		for _, a := range cls.declaredMandatoryAspects {
			if !containsName(aspects, a) {
				aspects = append(aspects, a)
			}
		}

		cls.Properties = props
		cls.Associations = assocs
		cls.MandatoryAspects = aspects
	}
	return nil
}

// depths returns the distance of each local class from the first ancestor
// outside this model. Cycles among local classes are errors.
func (c *compiler) depths() (map[qname.QName]int, error) {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[qname.QName]int, len(c.classes))
	depth := make(map[qname.QName]int, len(c.classes))

	var visit func(cls *ClassDefinition) error
	visit = func(cls *ClassDefinition) error {
		switch state[cls.Name] {
		case visiting:
			return elementError(cls.Kind(), cls.Name.String(), ErrInheritanceCycle)
		case done:
			return nil
		}
		state[cls.Name] = visiting
		d := 0
		if cls.HasParent() {
			if parent, ok := c.localClass(cls.Parent); ok {
				if err := visit(parent); err != nil {
					return err
				}
				d = depth[parent.Name] + 1
			}
		}
		state[cls.Name] = done
		depth[cls.Name] = d
		return nil
	}

	for _, cls := range c.classes {
		if err := visit(cls); err != nil {
			return nil, err
		}
	}
	return depth, nil
}

// class finds a class in this model first, then in published models.
func (c *compiler) class(name qname.QName) (*ClassDefinition, bool) {
	if cls, ok := c.localClass(name); ok {
		return cls, true
	}
	return c.query.Class(name)
}

func (c *compiler) localClass(name qname.QName) (*ClassDefinition, bool) {
	return c.m.Class(name)
}

func (c *compiler) resolve(name string, kind ElementKind) (qname.QName, error) {
	q, err := qname.Parse(name, c.resolver)
	if err != nil {
		if errors.Is(err, qname.ErrUnresolvedPrefix) {
			return qname.QName{}, elementError(kind, name, fmt.Errorf("%w: %w", ErrUnresolvedNamespace, err))
		}
		return qname.QName{}, elementError(kind, name, fmt.Errorf("%w: %w", ErrInvalidModel, err))
	}
	return q, nil
}

// resolveDeclared resolves the name of a new element, which must live in a
// namespace declared by this model.
func (c *compiler) resolveDeclared(name string, kind ElementKind) (qname.QName, error) {
	q, err := c.resolve(name, kind)
	if err != nil {
		return q, err
	}
	if !c.declared[q.Namespace] {
		return qname.QName{}, elementError(kind, name, fmt.Errorf("%w: namespace %q is not declared by the model", ErrInvalidModel, q.Namespace))
	}
	return q, nil
}

func containsName(names []qname.QName, name qname.QName) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
