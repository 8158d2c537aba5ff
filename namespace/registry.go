// Package namespace maps namespace prefixes to URIs and back.
//
// A Registry keeps both directions injective: a prefix names at most one URI
// and a URI carries at most one prefix. Registries owned by a published
// dictionary are never mutated; writers Clone first.
package namespace

import (
	"errors"
	"fmt"
	"sort"
)

// Registry errors.
var (
	// ErrPrefixConflict is returned when a prefix is already bound to another URI.
	ErrPrefixConflict = errors.New("namespace prefix already bound")

	// ErrURIConflict is returned when a URI already carries another prefix.
	ErrURIConflict = errors.New("namespace uri already bound")
)

// Namespace is a prefix binding for a namespace URI.
type Namespace struct {
	URI    string `json:"uri" yaml:"uri"`
	Prefix string `json:"prefix" yaml:"prefix"`
}

// Resolver resolves in both directions.
type Resolver interface {
	URI(prefix string) (string, bool)
	Prefix(uri string) (string, bool)
}

// Registry is a bidirectional prefix/URI map. The zero value is not usable;
// call New.
type Registry struct {
	byPrefix map[string]string
	byURI    map[string]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byPrefix: make(map[string]string),
		byURI:    make(map[string]string),
	}
}

// Clone returns an independent copy.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		byPrefix: make(map[string]string, len(r.byPrefix)),
		byURI:    make(map[string]string, len(r.byURI)),
	}
	for k, v := range r.byPrefix {
		c.byPrefix[k] = v
	}
	for k, v := range r.byURI {
		c.byURI[k] = v
	}
	return c
}

// Check reports whether ns could be added without breaking injectivity.
func (r *Registry) Check(ns Namespace) error {
	if uri, ok := r.byPrefix[ns.Prefix]; ok && uri != ns.URI {
		return fmt.Errorf("%w: prefix %q is bound to %s", ErrPrefixConflict, ns.Prefix, uri)
	}
	if prefix, ok := r.byURI[ns.URI]; ok && prefix != ns.Prefix {
		return fmt.Errorf("%w: %s is bound to prefix %q", ErrURIConflict, ns.URI, prefix)
	}
	return nil
}

// Add binds ns. Re-adding an identical binding is a no-op.
func (r *Registry) Add(ns Namespace) error {
	if err := r.Check(ns); err != nil {
		return err
	}
	r.byPrefix[ns.Prefix] = ns.URI
	r.byURI[ns.URI] = ns.Prefix
	return nil
}

// Remove drops the binding for ns if it is present exactly as given.
func (r *Registry) Remove(ns Namespace) {
	if uri, ok := r.byPrefix[ns.Prefix]; ok && uri == ns.URI {
		delete(r.byPrefix, ns.Prefix)
	}
	if prefix, ok := r.byURI[ns.URI]; ok && prefix == ns.Prefix {
		delete(r.byURI, ns.URI)
	}
}

// URI returns the URI bound to prefix.
func (r *Registry) URI(prefix string) (string, bool) {
	uri, ok := r.byPrefix[prefix]
	return uri, ok
}

// Prefix returns the prefix bound to uri.
func (r *Registry) Prefix(uri string) (string, bool) {
	prefix, ok := r.byURI[uri]
	return prefix, ok
}

// HasURI reports whether uri is bound.
func (r *Registry) HasURI(uri string) bool {
	_, ok := r.byURI[uri]
	return ok
}

// Namespaces returns all bindings sorted by URI.
func (r *Registry) Namespaces() []Namespace {
	out := make([]Namespace, 0, len(r.byURI))
	for uri, prefix := range r.byURI {
		out = append(out, Namespace{URI: uri, Prefix: prefix})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// Len returns the number of bindings.
func (r *Registry) Len() int {
	return len(r.byURI)
}

// Overlay resolves through each resolver in order; the first hit wins.
// Nil resolvers are skipped.
func Overlay(resolvers ...Resolver) Resolver {
	out := make(overlay, 0, len(resolvers))
	for _, r := range resolvers {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type overlay []Resolver

func (o overlay) URI(prefix string) (string, bool) {
	for _, r := range o {
		if uri, ok := r.URI(prefix); ok {
			return uri, true
		}
	}
	return "", false
}

func (o overlay) Prefix(uri string) (string, bool) {
	for _, r := range o {
		if prefix, ok := r.Prefix(uri); ok {
			return prefix, true
		}
	}
	return "", false
}

// Map is a fixed Resolver built from a list of bindings, used for the
// local prefixes of a single model.
type Map struct {
	reg *Registry
}

// NewMap builds a Map; later bindings replace earlier ones with the same prefix.
func NewMap(bindings ...Namespace) *Map {
	reg := New()
	for _, ns := range bindings {
		if old, ok := reg.byPrefix[ns.Prefix]; ok {
			delete(reg.byURI, old)
		}
		reg.byPrefix[ns.Prefix] = ns.URI
		reg.byURI[ns.URI] = ns.Prefix
	}
	return &Map{reg: reg}
}

// URI implements Resolver.
func (m *Map) URI(prefix string) (string, bool) { return m.reg.URI(prefix) }

// Prefix implements Resolver.
func (m *Map) Prefix(uri string) (string, bool) { return m.reg.Prefix(uri) }
