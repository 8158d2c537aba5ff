// Package schema defines raw model definitions as authored in YAML.
//
// Names inside a raw model are written prefix:local (or {uri}local) and are
// resolved by the dictionary compiler; this package only carries them.
package schema

import (
	"time"

	"github.com/c360studio/semdict/namespace"
)

// Model is one author-supplied unit of schema.
type Model struct {
	Name        string                `yaml:"name" json:"name"`
	Title       string                `yaml:"title,omitempty" json:"title,omitempty"`
	Description string                `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string                `yaml:"author,omitempty" json:"author,omitempty"`
	Published   time.Time             `yaml:"published,omitempty" json:"published,omitempty"`
	Version     string                `yaml:"version,omitempty" json:"version,omitempty"`
	Imports     []namespace.Namespace `yaml:"imports,omitempty" json:"imports,omitempty"`
	Namespaces  []namespace.Namespace `yaml:"namespaces,omitempty" json:"namespaces,omitempty"`
	DataTypes   []DataType            `yaml:"data_types,omitempty" json:"data_types,omitempty"`
	Constraints []Constraint          `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Types       []Class               `yaml:"types,omitempty" json:"types,omitempty"`
	Aspects     []Class               `yaml:"aspects,omitempty" json:"aspects,omitempty"`
}

// DataType declares a primitive property type.
type DataType struct {
	Name        string `yaml:"name" json:"name"`
	Title       string `yaml:"title,omitempty" json:"title,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Kind names the Go representation of values, e.g. "string", "int64".
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`
}

// Class declares a type or an aspect. Which one is decided by the list it
// appears in.
type Class struct {
	Name             string             `yaml:"name" json:"name"`
	Title            string             `yaml:"title,omitempty" json:"title,omitempty"`
	Description      string             `yaml:"description,omitempty" json:"description,omitempty"`
	Parent           string             `yaml:"parent,omitempty" json:"parent,omitempty"`
	Archive          bool               `yaml:"archive,omitempty" json:"archive,omitempty"`
	Properties       []Property         `yaml:"properties,omitempty" json:"properties,omitempty"`
	Overrides        []PropertyOverride `yaml:"overrides,omitempty" json:"overrides,omitempty"`
	Associations     []Association      `yaml:"associations,omitempty" json:"associations,omitempty"`
	MandatoryAspects []string           `yaml:"mandatory_aspects,omitempty" json:"mandatory_aspects,omitempty"`
}

// Property declares a class property.
type Property struct {
	Name              string       `yaml:"name" json:"name"`
	Title             string       `yaml:"title,omitempty" json:"title,omitempty"`
	Description       string       `yaml:"description,omitempty" json:"description,omitempty"`
	Type              string       `yaml:"type" json:"type"`
	Mandatory         bool         `yaml:"mandatory,omitempty" json:"mandatory,omitempty"`
	MandatoryEnforced bool         `yaml:"mandatory_enforced,omitempty" json:"mandatory_enforced,omitempty"`
	Multiple          bool         `yaml:"multiple,omitempty" json:"multiple,omitempty"`
	Protected         bool         `yaml:"protected,omitempty" json:"protected,omitempty"`
	Indexed           *bool        `yaml:"indexed,omitempty" json:"indexed,omitempty"`
	Default           string       `yaml:"default,omitempty" json:"default,omitempty"`
	Constraints       []Constraint `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}

// PropertyOverride redefines an inherited property. Nil fields inherit the
// parent's value; a nil Constraints list inherits the parent's constraints.
type PropertyOverride struct {
	Name              string       `yaml:"name" json:"name"`
	Mandatory         *bool        `yaml:"mandatory,omitempty" json:"mandatory,omitempty"`
	MandatoryEnforced *bool        `yaml:"mandatory_enforced,omitempty" json:"mandatory_enforced,omitempty"`
	Default           *string      `yaml:"default,omitempty" json:"default,omitempty"`
	Constraints       []Constraint `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}

// Association declares a relationship from the owning class to a target class.
type Association struct {
	Name        string            `yaml:"name" json:"name"`
	Title       string            `yaml:"title,omitempty" json:"title,omitempty"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Child       bool              `yaml:"child,omitempty" json:"child,omitempty"`
	Protected   bool              `yaml:"protected,omitempty" json:"protected,omitempty"`
	Source      AssociationSource `yaml:"source,omitempty" json:"source,omitempty"`
	Target      AssociationTarget `yaml:"target" json:"target"`
}

// AssociationSource describes the owning end.
type AssociationSource struct {
	Mandatory bool `yaml:"mandatory,omitempty" json:"mandatory,omitempty"`
	Many      bool `yaml:"many,omitempty" json:"many,omitempty"`
}

// AssociationTarget describes the far end.
type AssociationTarget struct {
	Class     string `yaml:"class" json:"class"`
	Mandatory bool   `yaml:"mandatory,omitempty" json:"mandatory,omitempty"`
	Many      bool   `yaml:"many,omitempty" json:"many,omitempty"`
}

// Constraint declares a value constraint. At model scope it must be named.
// On a property it is either a Ref to a model constraint or an inline
// definition, named or anonymous.
type Constraint struct {
	Name        string         `yaml:"name,omitempty" json:"name,omitempty"`
	Ref         string         `yaml:"ref,omitempty" json:"ref,omitempty"`
	Type        string         `yaml:"type,omitempty" json:"type,omitempty"`
	Title       string         `yaml:"title,omitempty" json:"title,omitempty"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Parameters  map[string]any `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// Clone returns a deep copy of m.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	c := *m
	c.Imports = append([]namespace.Namespace(nil), m.Imports...)
	c.Namespaces = append([]namespace.Namespace(nil), m.Namespaces...)
	c.DataTypes = append([]DataType(nil), m.DataTypes...)
	c.Constraints = cloneConstraints(m.Constraints)
	c.Types = cloneClasses(m.Types)
	c.Aspects = cloneClasses(m.Aspects)
	return &c
}

func cloneClasses(in []Class) []Class {
	if in == nil {
		return nil
	}
	out := make([]Class, len(in))
	for i, cls := range in {
		out[i] = cls
		out[i].Properties = make([]Property, len(cls.Properties))
		for j, p := range cls.Properties {
			out[i].Properties[j] = p
			if p.Indexed != nil {
				v := *p.Indexed
				out[i].Properties[j].Indexed = &v
			}
			out[i].Properties[j].Constraints = cloneConstraints(p.Constraints)
		}
		if cls.Properties == nil {
			out[i].Properties = nil
		}
		out[i].Overrides = make([]PropertyOverride, len(cls.Overrides))
		for j, o := range cls.Overrides {
			out[i].Overrides[j] = PropertyOverride{
				Name:              o.Name,
				Mandatory:         cloneBool(o.Mandatory),
				MandatoryEnforced: cloneBool(o.MandatoryEnforced),
				Constraints:       cloneConstraints(o.Constraints),
			}
			if o.Default != nil {
				v := *o.Default
				out[i].Overrides[j].Default = &v
			}
		}
		if cls.Overrides == nil {
			out[i].Overrides = nil
		}
		out[i].Associations = append([]Association(nil), cls.Associations...)
		out[i].MandatoryAspects = append([]string(nil), cls.MandatoryAspects...)
	}
	return out
}

func cloneConstraints(in []Constraint) []Constraint {
	if in == nil {
		return nil
	}
	out := make([]Constraint, len(in))
	for i, c := range in {
		out[i] = c
		if c.Parameters != nil {
			out[i].Parameters = make(map[string]any, len(c.Parameters))
			for k, v := range c.Parameters {
				if list, ok := v.([]any); ok {
					v = append([]any(nil), list...)
				}
				out[i].Parameters[k] = v
			}
		}
	}
	return out
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
