package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidModel is returned for documents that are not structurally valid models.
var ErrInvalidModel = errors.New("invalid model")

// Parse decodes a single YAML model document. Unknown fields are rejected.
func Parse(data []byte) (*Model, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Model
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidModel)
		}
		return nil, fmt.Errorf("parse model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadFile reads and parses a model file.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Marshal encodes m as YAML.
func Marshal(m *Model) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("marshal model: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal model: %w", err)
	}
	return buf.Bytes(), nil
}

// Validate checks the shape of the model: every element that needs a name
// has one. Name resolution is left to the compiler.
func (m *Model) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidModel)
	}
	for _, ns := range m.Namespaces {
		if ns.URI == "" {
			return fmt.Errorf("%w: namespace with prefix %q has no uri", ErrInvalidModel, ns.Prefix)
		}
	}
	for _, ns := range m.Imports {
		if ns.URI == "" {
			return fmt.Errorf("%w: import with prefix %q has no uri", ErrInvalidModel, ns.Prefix)
		}
	}
	for _, dt := range m.DataTypes {
		if dt.Name == "" {
			return fmt.Errorf("%w: data type without name", ErrInvalidModel)
		}
	}
	for _, c := range m.Constraints {
		if c.Name == "" {
			return fmt.Errorf("%w: model constraint without name", ErrInvalidModel)
		}
		if c.Ref != "" {
			return fmt.Errorf("%w: model constraint %s cannot be a reference", ErrInvalidModel, c.Name)
		}
	}
	for _, list := range [][]Class{m.Types, m.Aspects} {
		for _, cls := range list {
			if err := cls.validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Class) validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: class without name", ErrInvalidModel)
	}
	for _, p := range c.Properties {
		if p.Name == "" {
			return fmt.Errorf("%w: %s: property without name", ErrInvalidModel, c.Name)
		}
		if p.Type == "" {
			return fmt.Errorf("%w: %s: property %s has no type", ErrInvalidModel, c.Name, p.Name)
		}
	}
	for _, o := range c.Overrides {
		if o.Name == "" {
			return fmt.Errorf("%w: %s: override without name", ErrInvalidModel, c.Name)
		}
	}
	for _, a := range c.Associations {
		if a.Name == "" {
			return fmt.Errorf("%w: %s: association without name", ErrInvalidModel, c.Name)
		}
		if a.Target.Class == "" {
			return fmt.Errorf("%w: %s: association %s has no target class", ErrInvalidModel, c.Name, a.Name)
		}
	}
	return nil
}
