package dictionary

import (
	"fmt"
	"sort"

	"github.com/c360studio/semdict/namespace"
	"github.com/c360studio/semdict/qname"
)

// Registry is the published state of one tenant: its models, the index from
// namespace URI to the models declaring it, and the namespaces those models
// declare. A Registry is immutable; every change produces a new one.
type Registry struct {
	tenant     string
	models     map[qname.QName]*CompiledModel
	byURI      map[string][]*CompiledModel
	namespaces *namespace.Registry
}

// NewRegistry creates an empty registry for tenant.
func NewRegistry(tenant string) *Registry {
	return &Registry{
		tenant:     tenant,
		models:     make(map[qname.QName]*CompiledModel),
		byURI:      make(map[string][]*CompiledModel),
		namespaces: namespace.New(),
	}
}

// Tenant returns the tenant domain.
func (r *Registry) Tenant() string { return r.tenant }

// Len returns the number of models.
func (r *Registry) Len() int { return len(r.models) }

// Model returns the named model of this registry only.
func (r *Registry) Model(name qname.QName) (*CompiledModel, bool) {
	m, ok := r.models[name]
	return m, ok
}

// Models returns the models of this registry sorted by name.
func (r *Registry) Models() []*CompiledModel {
	return sortedValues(r.models, (*CompiledModel).Name)
}

// ModelsForURI returns the models of this registry declaring uri.
func (r *Registry) ModelsForURI(uri string) []*CompiledModel {
	return append([]*CompiledModel(nil), r.byURI[uri]...)
}

// Namespaces returns the namespaces declared by the registry's models.
func (r *Registry) Namespaces() []namespace.Namespace {
	return r.namespaces.Namespaces()
}

func (r *Registry) clone() *Registry {
	c := &Registry{
		tenant:     r.tenant,
		models:     make(map[qname.QName]*CompiledModel, len(r.models)+1),
		byURI:      make(map[string][]*CompiledModel, len(r.byURI)+1),
		namespaces: r.namespaces.Clone(),
	}
	for k, v := range r.models {
		c.models[k] = v
	}
	for k, v := range r.byURI {
		c.byURI[k] = v
	}
	return c
}

// withModel returns a registry in which m replaces any model of the same
// name. base is the default registry when r belongs to another tenant.
//
// A namespace may be declared by one model per registry. A tenant may
// redeclare a namespace of the default registry only in a model that
// shadows the default model declaring it.
func (r *Registry) withModel(m *CompiledModel, base *Registry) (*Registry, error) {
	next := r.clone()
	if old, ok := next.models[m.Name()]; ok {
		next.retract(old)
	}

	for _, ns := range m.Namespaces() {
		if owners := next.byURI[ns.URI]; len(owners) > 0 {
			return nil, elementError(ElementModel, ns.URI,
				fmt.Errorf("%w: already declared by model %s", ErrNamespaceConflict, owners[0].Name()))
		}
		if base != nil {
			for _, owner := range base.byURI[ns.URI] {
				if owner.Name() != m.Name() {
					return nil, elementError(ElementModel, ns.URI,
						fmt.Errorf("%w: declared by default model %s", ErrNamespaceConflict, owner.Name()))
				}
			}
			if _, shadowed := base.models[m.Name()]; !shadowed || !base.declares(m.Name(), ns.URI) {
				if err := base.namespaces.Check(ns); err != nil {
					return nil, elementError(ElementModel, ns.URI, fmt.Errorf("%w: %w", ErrNamespaceConflict, err))
				}
			}
		}
		if err := next.namespaces.Add(ns); err != nil {
			return nil, elementError(ElementModel, ns.URI, fmt.Errorf("%w: %w", ErrNamespaceConflict, err))
		}
		next.byURI[ns.URI] = []*CompiledModel{m}
	}
	next.models[m.Name()] = m
	return next, nil
}

// withoutModel returns a registry without the named model.
func (r *Registry) withoutModel(name qname.QName) (*Registry, bool) {
	old, ok := r.models[name]
	if !ok {
		return r, false
	}
	next := r.clone()
	next.retract(old)
	return next, true
}

// retract removes m and its namespace and URI index entries. Only called on
// a fresh clone.
func (r *Registry) retract(m *CompiledModel) {
	for _, ns := range m.Namespaces() {
		r.namespaces.Remove(ns)
		owners := r.byURI[ns.URI]
		kept := make([]*CompiledModel, 0, len(owners))
		for _, o := range owners {
			if o.Name() != m.Name() {
				kept = append(kept, o)
			}
		}
		if len(kept) == 0 {
			delete(r.byURI, ns.URI)
		} else {
			r.byURI[ns.URI] = kept
		}
	}
	delete(r.models, m.Name())
}

func (r *Registry) declares(model qname.QName, uri string) bool {
	m, ok := r.models[model]
	return ok && m.Declares(uri)
}

// dependents returns the models of r, other than the named one, importing
// any of uris.
func (r *Registry) dependents(exclude qname.QName, uris []string) []*CompiledModel {
	var out []*CompiledModel
	for _, m := range r.Models() {
		if m.Name() == exclude {
			continue
		}
		for _, uri := range uris {
			if m.ImportsURI(uri) {
				out = append(out, m)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return qname.Less(out[i].Name(), out[j].Name()) })
	return out
}
