package dictionary

import (
	"fmt"
	"strings"

	"github.com/c360studio/semdict/qname"
	"github.com/c360studio/semdict/schema"
)

// mergeOverride builds the definition of inherited as redefined by o in cls.
// Fields o leaves unset keep the inherited value. Mandatory and mandatory
// enforcement can be tightened but never relaxed.
func (c *compiler) mergeOverride(inherited *PropertyDefinition, o schema.PropertyOverride, cls *ClassDefinition) (*PropertyDefinition, error) {
	p := *inherited
	p.Model = c.m.def.Name
	p.ContainerClass = cls.Name
	p.Override = true

	if o.Default != nil {
		p.Default = *o.Default
	}
	if o.Mandatory != nil {
		if inherited.Mandatory && !*o.Mandatory {
			return nil, elementError(ElementProperty, o.Name, fmt.Errorf("%w in %s", ErrCannotRelaxMandatory, cls.Name))
		}
		p.Mandatory = *o.Mandatory
	}
	if o.MandatoryEnforced != nil {
		if inherited.MandatoryEnforced && !*o.MandatoryEnforced {
			return nil, elementError(ElementProperty, o.Name, fmt.Errorf("%w in %s", ErrCannotRelaxMandatoryEnforcement, cls.Name))
		}
		p.MandatoryEnforced = *o.MandatoryEnforced
	}

	if o.Constraints != nil {
		constraints, err := c.buildConstraints(o.Constraints, p.Name)
		if err != nil {
			return nil, err
		}
		p.Constraints = constraints
	} else {
		p.Constraints = append([]*ConstraintDefinition(nil), inherited.Constraints...)
	}
	return &p, nil
}

// buildConstraints resolves the constraints of property prop. Names must be
// unique on the property and across the model scope; every constraint built
// here joins the model scope.
func (c *compiler) buildConstraints(raws []schema.Constraint, prop qname.QName) ([]*ConstraintDefinition, error) {
	out := make([]*ConstraintDefinition, 0, len(raws))
	onProperty := make(map[qname.QName]bool, len(raws))

	for _, rc := range raws {
		def, err := c.propertyConstraint(rc, prop)
		if err != nil {
			return nil, err
		}
		if onProperty[def.Name] {
			return nil, elementError(ElementConstraint, def.Name.String(), fmt.Errorf("%w on property %s", ErrDuplicateConstraint, prop))
		}
		if _, dup := c.m.constraints[def.Name]; dup {
			return nil, elementError(ElementConstraint, def.Name.String(), fmt.Errorf("%w in model", ErrDuplicateConstraint))
		}
		onProperty[def.Name] = true
		c.m.constraints[def.Name] = def
		out = append(out, def)
	}
	return out, nil
}

func (c *compiler) propertyConstraint(rc schema.Constraint, prop qname.QName) (*ConstraintDefinition, error) {
	var name qname.QName
	anonymous := rc.Name == ""
	if anonymous {
		name = qname.New(c.anonNamespace(prop), fmt.Sprintf("%s_anon_%d", prop.Local, c.anon))
		c.anon++
	} else {
		var err error
		if name, err = c.resolve(rc.Name, ElementConstraint); err != nil {
			return nil, err
		}
	}

	if rc.Ref == "" {
		def, err := c.inlineConstraint(name, rc)
		if err != nil {
			return nil, err
		}
		def.anonymous = anonymous
		return def, nil
	}

	ref, err := c.resolve(rc.Ref, ElementConstraint)
	if err != nil {
		return nil, err
	}
	target, ok := c.m.constraints[ref]
	if !ok {
		target, ok = c.query.Constraint(ref)
	}
	if !ok {
		return nil, elementError(ElementConstraint, rc.Ref, ErrConstraintNotFound)
	}

	def := &ConstraintDefinition{
		Name:        name,
		Model:       c.m.def.Name,
		Ref:         ref,
		Type:        target.Type,
		Title:       firstNonEmpty(rc.Title, target.Title),
		Description: firstNonEmpty(rc.Description, target.Description),
		Parameters:  target.Parameters,
		rule:        target.rule,
		anonymous:   anonymous,
	}
	return def, nil
}

// anonNamespace keeps anonymous constraint names inside a namespace this
// model declares, so they are found by namespace lookups.
func (c *compiler) anonNamespace(prop qname.QName) string {
	if c.declared[prop.Namespace] || len(c.raw.Namespaces) == 0 {
		return prop.Namespace
	}
	return c.raw.Namespaces[0].URI
}

func (c *compiler) inlineConstraint(name qname.QName, rc schema.Constraint) (*ConstraintDefinition, error) {
	typ := ConstraintType(strings.ToUpper(rc.Type))
	r, err := newRule(typ, rc.Parameters)
	if err != nil {
		return nil, elementError(ElementConstraint, name.String(), fmt.Errorf("%w: %w", ErrInvalidConstraint, err))
	}
	return &ConstraintDefinition{
		Name:        name,
		Model:       c.m.def.Name,
		Type:        typ,
		Title:       rc.Title,
		Description: rc.Description,
		Parameters:  rc.Parameters,
		rule:        r,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
