package dictionary

import (
	"fmt"

	"github.com/c360studio/semdict/qname"
)

// AnonymousType combines a type with applied aspects into a throwaway class
// definition describing the full property set of an instance. Each aspect
// contributes all its properties and associations, inherited ones included;
// the type's own definitions win on name clashes. The result is never
// published.
func (v *View) AnonymousType(typeName qname.QName, aspects []qname.QName) (*ClassDefinition, error) {
	base, ok := v.Type(typeName)
	if !ok {
		return nil, &Error{Op: "anonymous type", Tenant: v.tenant, Kind: ElementType, Element: typeName.String(), Err: ErrTypeNotFound}
	}

	anon := &ClassDefinition{
		Name:             base.Name,
		Model:            base.Model,
		Title:            base.Title,
		Description:      base.Description,
		Parent:           base.Parent,
		Archive:          base.Archive,
		Properties:       make(map[qname.QName]*PropertyDefinition, len(base.Properties)),
		Associations:     make(map[qname.QName]*AssociationDefinition, len(base.Associations)),
		MandatoryAspects: append([]qname.QName(nil), base.MandatoryAspects...),
	}
	for k, p := range base.Properties {
		anon.Properties[k] = p
	}
	for k, a := range base.Associations {
		anon.Associations[k] = a
	}

	for _, name := range aspects {
		aspect, ok := v.Aspect(name)
		if !ok {
			return nil, &Error{Op: "anonymous type", Tenant: v.tenant, Kind: ElementAspect, Element: name.String(),
				Err: fmt.Errorf("%w applied to %s", ErrAspectNotFound, typeName)}
		}
		for k, p := range aspect.Properties {
			if _, exists := anon.Properties[k]; !exists {
				anon.Properties[k] = p
			}
		}
		for k, a := range aspect.Associations {
			if _, exists := anon.Associations[k]; !exists {
				anon.Associations[k] = a
			}
		}
		if !containsName(anon.MandatoryAspects, name) {
			anon.MandatoryAspects = append(anon.MandatoryAspects, name)
		}
	}
	return anon, nil
}
