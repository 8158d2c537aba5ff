package dictionary

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/c360studio/semdict/qname"
	"github.com/c360studio/semdict/schema"
)

type buildKey struct{}

// Build is the private registry of a tenant being initialized. Listeners put
// models into it; nothing outside the initializing call path sees it until
// the build completes and is published.
type Build struct {
	id     string
	tenant string
	base   *Registry

	mu  sync.Mutex
	reg *Registry
}

func newBuild(domain string, base *Registry) *Build {
	return &Build{
		id:     uuid.NewString(),
		tenant: domain,
		base:   base,
		reg:    NewRegistry(domain),
	}
}

// ID identifies the build in logs and traces.
func (b *Build) ID() string { return b.id }

// Tenant returns the tenant domain being built.
func (b *Build) Tenant() string { return b.tenant }

// PutModel compiles raw, validates it against any model of the same name
// already in the build and inserts it.
func (b *Build) PutModel(raw *schema.Model) (qname.QName, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := compileCandidate(b.reg, b.base, raw)
	if err == nil {
		err = c.validate()
	}
	if err != nil {
		return qname.QName{}, withContext(err, "put", b.tenant, rawName(raw))
	}
	next, err := applyPut(b.reg, b.base, c)
	if err != nil {
		return qname.QName{}, withContext(err, "put", b.tenant, c.model.Name().String())
	}
	b.reg = next
	return c.model.Name(), nil
}

// RemoveModel removes the named model from the build.
func (b *Build) RemoveModel(name qname.QName) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next, _, err := applyRemove(b.reg, b.base, name)
	if err != nil {
		return withContext(err, "remove", b.tenant, name.String())
	}
	b.reg = next
	return nil
}

// View returns a snapshot of the build so far.
func (b *Build) View() *View {
	return NewView(b.registry(), b.base)
}

func (b *Build) registry() *Registry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reg
}

// buildFrom returns the build carried by ctx, if any.
func buildFrom(ctx context.Context) *Build {
	b, _ := ctx.Value(buildKey{}).(*Build)
	return b
}

func rawName(raw *schema.Model) string {
	if raw == nil {
		return ""
	}
	return raw.Name
}
