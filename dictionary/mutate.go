package dictionary

import (
	"errors"
	"fmt"

	"github.com/c360studio/semdict/namespace"
	"github.com/c360studio/semdict/qname"
	"github.com/c360studio/semdict/schema"
)

// ResolveModelName resolves the name of raw through its own namespace
// bindings first, then ns.
func ResolveModelName(raw *schema.Model, ns namespace.Resolver) (qname.QName, error) {
	if raw == nil {
		return qname.QName{}, fmt.Errorf("%w: nil model", ErrInvalidModel)
	}
	bindings := make([]namespace.Namespace, 0, len(raw.Imports)+len(raw.Namespaces))
	bindings = append(bindings, raw.Imports...)
	bindings = append(bindings, raw.Namespaces...)
	name, err := qname.Parse(raw.Name, namespace.Overlay(namespace.NewMap(bindings...), ns))
	if err != nil {
		if errors.Is(err, qname.ErrUnresolvedPrefix) {
			return qname.QName{}, elementError(ElementModel, raw.Name, fmt.Errorf("%w: %w", ErrUnresolvedNamespace, err))
		}
		return qname.QName{}, elementError(ElementModel, raw.Name, fmt.Errorf("%w: %w", ErrInvalidModel, err))
	}
	return name, nil
}

// candidate is a compiled model not yet inserted into a registry.
type candidate struct {
	model *CompiledModel
	prev  *CompiledModel
	diffs []ModelDiff
}

// compileCandidate compiles raw as seen by the tenant of own and diffs it
// against own's model of the same name. Other models of that name are hidden
// from the compile query, so a new version never resolves against the old.
func compileCandidate(own, base *Registry, raw *schema.Model) (*candidate, error) {
	view := NewView(own, base)
	name, err := ResolveModelName(raw, view.Namespaces())
	if err != nil {
		return nil, err
	}
	m, err := Compile(raw, view.excluding(name), view.Namespaces())
	if err != nil {
		return nil, err
	}
	prev, _ := own.Model(m.Name())
	return &candidate{model: m, prev: prev, diffs: Diff(prev, m)}, nil
}

// validate rejects the candidate when it deletes or changes an existing
// type or aspect.
func (c *candidate) validate() error {
	breaking := Breaking(c.diffs)
	if len(breaking) == 0 {
		return nil
	}
	return &Error{
		Op:    "validate",
		Model: c.model.Name().String(),
		Diffs: breaking,
		Err:   fmt.Errorf("%w: %s", ErrIncompatibleModelUpdate, describeDiffs(breaking)),
	}
}

// applyPut inserts a validated candidate and recompiles the models that
// import its namespaces.
func applyPut(own, base *Registry, c *candidate) (*Registry, error) {
	next, err := own.withModel(c.model, base)
	if err != nil {
		return nil, err
	}
	return recompileDependents(next, base, c.model.Name(), namespaceURIs(c.model, c.prev))
}

// applyRemove deletes the named model and recompiles its dependents. It
// returns the removed model.
func applyRemove(own, base *Registry, name qname.QName) (*Registry, *CompiledModel, error) {
	old, ok := own.Model(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	next, _ := own.withoutModel(name)
	next, err := recompileDependents(next, base, name, namespaceURIs(old))
	if err != nil {
		return nil, nil, err
	}
	return next, old, nil
}

// recompileDependents recompiles, in import order, every model of reg that
// transitively imports one of uris. A dependent that no longer compiles
// fails the whole change.
func recompileDependents(reg, base *Registry, changed qname.QName, uris []string) (*Registry, error) {
	seen := map[qname.QName]bool{changed: true}
	var affected []*CompiledModel
	queue := reg.dependents(changed, uris)
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		if seen[m.Name()] {
			continue
		}
		seen[m.Name()] = true
		affected = append(affected, m)
		queue = append(queue, reg.dependents(m.Name(), namespaceURIs(m))...)
	}
	if len(affected) == 0 {
		return reg, nil
	}

	raws := make([]*schema.Model, 0, len(affected))
	names := make(map[*schema.Model]qname.QName, len(affected))
	for _, m := range affected {
		raws = append(raws, m.raw)
		names[m.raw] = m.Name()
	}
	for _, raw := range schema.SortByImports(raws) {
		name := names[raw]
		view := NewView(reg, base)
		m, err := Compile(raw, view.excluding(name), view.Namespaces())
		if err == nil {
			reg, err = reg.withModel(m, base)
		}
		if err != nil {
			return nil, &Error{
				Op:    "compile",
				Model: name.String(),
				Err:   fmt.Errorf("%w: %s: %w", ErrDependentModel, name, err),
			}
		}
	}
	return reg, nil
}

// namespaceURIs returns the URIs declared by the given models. Nil models
// are skipped.
func namespaceURIs(models ...*CompiledModel) []string {
	var uris []string
	for _, m := range models {
		if m == nil {
			continue
		}
		for _, ns := range m.Namespaces() {
			uris = append(uris, ns.URI)
		}
	}
	return uris
}
