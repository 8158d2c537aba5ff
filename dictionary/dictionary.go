// Package dictionary is the content dictionary: a hot-reloadable type system
// of types, aspects, properties, associations and constraints, compiled from
// raw models and published per tenant.
//
// The default tenant holds the shared base models. Every other tenant sees
// its own models overlaid on the default ones. Registries are built lazily on
// first access by invoking the registered listeners, then published
// atomically; readers never see a partially built registry.
package dictionary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/c360studio/semdict/cache"
	"github.com/c360studio/semdict/event"
	"github.com/c360studio/semdict/metric"
	"github.com/c360studio/semdict/qname"
	"github.com/c360studio/semdict/schema"
	"github.com/c360studio/semdict/tenant"
)

// State is the lifecycle state of one tenant's registry.
type State int

// Tenant states.
const (
	StateUninitialized State = iota
	StateBuilding
	StatePublished
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StatePublished:
		return "published"
	default:
		return "uninitialized"
	}
}

// UsageChecker reports whether content still depends on a model. RemoveModel
// refuses to remove a model for which it returns an error.
type UsageChecker interface {
	ModelInUse(ctx context.Context, tenant string, m *CompiledModel) error
}

// UsageCheckerFunc adapts a function to UsageChecker.
type UsageCheckerFunc func(ctx context.Context, tenant string, m *CompiledModel) error

// ModelInUse implements UsageChecker.
func (f UsageCheckerFunc) ModelInUse(ctx context.Context, tenant string, m *CompiledModel) error {
	return f(ctx, tenant, m)
}

// Option configures a Dictionary.
type Option func(*Dictionary)

// WithCache sets the cache of published registries. Caches implementing
// cache.Broadcaster are told about every mutation.
func WithCache(c cache.Cache[*Registry]) Option {
	return func(d *Dictionary) { d.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dictionary) { d.logger = l }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metric.Metrics) Option {
	return func(d *Dictionary) { d.metrics = m }
}

// WithEvents sets the emitter of change events.
func WithEvents(e *event.Emitter) Option {
	return func(d *Dictionary) { d.events = e }
}

// WithTracer sets the tracer. The global otel tracer is used by default.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dictionary) { d.tracer = t }
}

// WithUsageChecker sets the collaborator consulted before a model is removed.
func WithUsageChecker(u UsageChecker) Option {
	return func(d *Dictionary) { d.usage = u }
}

// Dictionary owns the listeners and the published registries of every
// tenant. The zero value is not usable; call New.
type Dictionary struct {
	// mu guards the cache swap. Readers hold it only to fetch references.
	mu sync.RWMutex
	// writeMu serialises mutations so each one diffs against the latest state.
	writeMu sync.Mutex
	cache   cache.Cache[*Registry]
	group   singleflight.Group

	stateMu  sync.Mutex
	gens     map[string]uint64
	building map[string]int
	tenants  map[string]bool

	listenersMu sync.RWMutex
	listeners   []Listener

	logger  *slog.Logger
	metrics *metric.Metrics
	events  *event.Emitter
	tracer  trace.Tracer
	usage   UsageChecker
}

// New creates a dictionary with no listeners.
func New(opts ...Option) *Dictionary {
	d := &Dictionary{
		gens:     make(map[string]uint64),
		building: make(map[string]int),
		tenants:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.cache == nil {
		d.cache = cache.NewLocal[*Registry]("dictionary", d.logger)
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer("github.com/c360studio/semdict/dictionary")
	}
	if n, ok := d.cache.(cache.Notifier); ok {
		n.OnInvalidate(d.evicted)
	}
	return d
}

// Register appends l to the listeners. It takes effect at the next build.
func (d *Dictionary) Register(l Listener) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.listeners = append(d.listeners, l)
}

func (d *Dictionary) snapshotListeners() []Listener {
	d.listenersMu.RLock()
	defer d.listenersMu.RUnlock()
	return append([]Listener(nil), d.listeners...)
}

func cacheKey(domain string) string {
	if tenant.IsDefault(domain) {
		return "default"
	}
	return "tenant." + domain
}

// domainOf is the inverse of cacheKey.
func domainOf(key string) (string, bool) {
	if key == "default" {
		return tenant.DefaultDomain, true
	}
	return strings.CutPrefix(key, "tenant.")
}

// evicted retires the registries a peer node invalidated. Builds that began
// before the eviction are not published.
func (d *Dictionary) evicted(key string, all bool) {
	domain, ok := domainOf(key)
	if !all && !ok {
		return
	}
	if all || tenant.IsDefault(domain) {
		all, domain = true, tenant.DefaultDomain
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.stateMu.Lock()
	d.gens[domain]++
	d.stateMu.Unlock()

	if all {
		d.cache.Flush()
		clear(d.tenants)
	} else {
		d.cache.Delete(key)
		delete(d.tenants, domain)
	}
	d.logger.Debug("Registry evicted by peer", "tenant", tenant.Label(domain), "all", all)
}

// State returns the lifecycle state of the tenant in ctx.
func (d *Dictionary) State(ctx context.Context) State {
	domain := tenant.Domain(ctx)
	d.mu.RLock()
	_, ok := d.cache.Get(cacheKey(domain))
	d.mu.RUnlock()
	if ok {
		return StatePublished
	}
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.building[domain] > 0 {
		return StateBuilding
	}
	return StateUninitialized
}

// Tenants returns the domains with a published registry on this node.
func (d *Dictionary) Tenants() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.tenants))
	for t := range d.tenants {
		out = append(out, t)
	}
	return out
}

// Init builds the registry of the tenant in ctx unless it is published.
func (d *Dictionary) Init(ctx context.Context) error {
	_, err := d.registry(ctx, tenant.Domain(ctx))
	return err
}

// Destroy discards the registry of the tenant in ctx. Destroying the default
// tenant discards every tenant, since their registries were compiled against
// it. The next access rebuilds.
func (d *Dictionary) Destroy(ctx context.Context) error {
	domain := tenant.Domain(ctx)
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	dropped := d.swap(domain, nil)
	d.broadcast(ctx, domain)
	d.afterDestroy(ctx, dropped)
	d.logger.Info("Dictionary destroyed", "tenant", tenant.Label(domain), "tenants", len(dropped))
	return nil
}

// Reset destroys and immediately rebuilds the registry of the tenant in ctx.
func (d *Dictionary) Reset(ctx context.Context) error {
	if err := d.Destroy(ctx); err != nil {
		return err
	}
	return d.Init(ctx)
}

// View returns a snapshot of the tenant in ctx, building it if needed.
func (d *Dictionary) View(ctx context.Context) (*View, error) {
	domain := tenant.Domain(ctx)
	if b := buildFrom(ctx); b != nil && b.tenant == domain {
		return b.View(), nil
	}
	if !tenant.IsDefault(domain) && buildFrom(ctx) == nil {
		d.mu.RLock()
		own, ok := d.cache.Get(cacheKey(domain))
		base, baseOK := d.cache.Get(cacheKey(tenant.DefaultDomain))
		d.mu.RUnlock()
		if ok && baseOK {
			d.metrics.ObserveCache(true)
			return NewView(own, base), nil
		}
	}
	own, base, err := d.registries(ctx, domain)
	if err != nil {
		return nil, err
	}
	return NewView(own, base), nil
}

// ModelName resolves the name raw would be stored under for the tenant in
// ctx.
func (d *Dictionary) ModelName(ctx context.Context, raw *schema.Model) (qname.QName, error) {
	v, err := d.View(ctx)
	if err != nil {
		return qname.QName{}, err
	}
	return ResolveModelName(raw, v.Namespaces())
}

// PutModel compiles raw, validates it against the tenant's current model of
// the same name and publishes it. Inside a listener the model goes into the
// build in progress instead.
func (d *Dictionary) PutModel(ctx context.Context, raw *schema.Model) (qname.QName, error) {
	domain := tenant.Domain(ctx)
	if b := buildFrom(ctx); b != nil && b.tenant == domain {
		return b.PutModel(raw)
	}

	ctx, span := d.startSpan(ctx, "dictionary.put_model", domain)
	defer span.End()

	name, diffs, err := d.putModel(ctx, domain, raw)
	d.metrics.ObserveOperation("put", err)
	endSpan(span, err)
	if err != nil {
		d.logger.Warn("Model rejected", "tenant", tenant.Label(domain), "model", rawName(raw), "error", err)
		return qname.QName{}, err
	}
	d.logger.Debug("Model published", "tenant", tenant.Label(domain), "model", name.String())
	d.emit(ctx, event.TypeModelPut, domain, name, diffs)
	return name, nil
}

func (d *Dictionary) putModel(ctx context.Context, domain string, raw *schema.Model) (qname.QName, []ModelDiff, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	own, base, err := d.registries(ctx, domain)
	if err != nil {
		return qname.QName{}, nil, err
	}
	c, err := compileCandidate(own, base, raw)
	if err == nil {
		err = c.validate()
	}
	if err != nil {
		return qname.QName{}, nil, withContext(err, "put", domain, rawName(raw))
	}
	next, err := applyPut(own, base, c)
	if err != nil {
		return qname.QName{}, nil, withContext(err, "put", domain, c.model.Name().String())
	}
	d.publish(ctx, domain, next)
	return c.model.Name(), c.diffs, nil
}

// RemoveModel removes the named model of the tenant in ctx. Models of the
// default tenant cannot be removed through another tenant.
func (d *Dictionary) RemoveModel(ctx context.Context, name qname.QName) error {
	domain := tenant.Domain(ctx)
	if b := buildFrom(ctx); b != nil && b.tenant == domain {
		return b.RemoveModel(name)
	}

	ctx, span := d.startSpan(ctx, "dictionary.remove_model", domain)
	defer span.End()

	old, err := d.removeModel(ctx, domain, name)
	d.metrics.ObserveOperation("remove", err)
	endSpan(span, err)
	if err != nil {
		d.logger.Warn("Model removal rejected", "tenant", tenant.Label(domain), "model", name.String(), "error", err)
		return err
	}
	d.logger.Debug("Model removed", "tenant", tenant.Label(domain), "model", name.String())
	d.emit(ctx, event.TypeModelRemoved, domain, name, Diff(old, nil))
	return nil
}

func (d *Dictionary) removeModel(ctx context.Context, domain string, name qname.QName) (*CompiledModel, error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	own, base, err := d.registries(ctx, domain)
	if err != nil {
		return nil, err
	}
	m, ok := own.Model(name)
	if !ok {
		return nil, &Error{Op: "remove", Tenant: domain, Model: name.String(), Err: ErrModelNotFound}
	}
	if d.usage != nil {
		if err := d.usage.ModelInUse(ctx, domain, m); err != nil {
			if !errors.Is(err, ErrModelInUse) {
				err = fmt.Errorf("%w: %w", ErrModelInUse, err)
			}
			return nil, &Error{Op: "remove", Tenant: domain, Model: name.String(), Err: err}
		}
	}
	next, old, err := applyRemove(own, base, name)
	if err != nil {
		return nil, withContext(err, "remove", domain, name.String())
	}
	d.publish(ctx, domain, next)
	return old, nil
}

// ValidateModel reports whether PutModel would accept raw, without
// publishing anything.
func (d *Dictionary) ValidateModel(ctx context.Context, raw *schema.Model) error {
	domain := tenant.Domain(ctx)
	own, base, err := d.registries(ctx, domain)
	if err == nil {
		var c *candidate
		c, err = compileCandidate(own, base, raw)
		if err == nil {
			err = c.validate()
		}
		if err == nil {
			_, err = applyPut(own, base, c)
		}
	}
	d.metrics.ObserveOperation("validate", err)
	return withContext(err, "validate", domain, rawName(raw))
}

// DiffModel compiles raw and classifies its changes against the tenant's
// current model of the same name.
func (d *Dictionary) DiffModel(ctx context.Context, raw *schema.Model) ([]ModelDiff, error) {
	domain := tenant.Domain(ctx)
	own, base, err := d.registries(ctx, domain)
	if err != nil {
		return nil, err
	}
	c, err := compileCandidate(own, base, raw)
	if err != nil {
		return nil, withContext(err, "diff", domain, rawName(raw))
	}
	return c.diffs, nil
}

// registries returns the tenant's own registry and, for tenants other than
// the default, the default registry.
func (d *Dictionary) registries(ctx context.Context, domain string) (own, base *Registry, err error) {
	own, err = d.registry(ctx, domain)
	if err != nil {
		return nil, nil, err
	}
	if tenant.IsDefault(domain) {
		return own, nil, nil
	}
	base, err = d.registry(ctx, tenant.DefaultDomain)
	if err != nil {
		return nil, nil, err
	}
	return own, base, nil
}

// registry returns the published registry of domain, serving reads of a
// build in progress from the build itself and building on a cache miss.
func (d *Dictionary) registry(ctx context.Context, domain string) (*Registry, error) {
	if b := buildFrom(ctx); b != nil {
		switch {
		case b.tenant == domain:
			return b.registry(), nil
		case tenant.IsDefault(domain) && b.base != nil:
			return b.base, nil
		case tenant.IsDefault(b.tenant):
			return nil, &Error{Op: "init", Tenant: domain, Err: fmt.Errorf("%w: default tenant", ErrBuildInProgress)}
		}
	}

	d.mu.RLock()
	reg, ok := d.cache.Get(cacheKey(domain))
	d.mu.RUnlock()
	d.metrics.ObserveCache(ok)
	if ok {
		return reg, nil
	}
	return d.build(ctx, domain)
}

// build coalesces concurrent builds of one tenant. The build itself is not
// cancelled with the caller; a cancelled caller just stops waiting.
func (d *Dictionary) build(ctx context.Context, domain string) (*Registry, error) {
	ch := d.group.DoChan(cacheKey(domain), func() (any, error) {
		return d.doBuild(context.WithoutCancel(ctx), domain)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Registry), nil
	}
}

func (d *Dictionary) doBuild(ctx context.Context, domain string) (*Registry, error) {
	// Reads made while building another tenant must not leak into this one.
	ctx = context.WithValue(ctx, buildKey{}, (*Build)(nil))

	gen := d.beginBuild(domain)
	defer d.endBuild(domain)

	// The generation is taken before the default registry is read, so a
	// default mutation in between is seen and the read repeated.
	var base *Registry
	for !tenant.IsDefault(domain) {
		var err error
		if base, err = d.registry(ctx, tenant.DefaultDomain); err != nil {
			return nil, fmt.Errorf("build default dictionary: %w", err)
		}
		current := d.generation(domain)
		if current == gen {
			break
		}
		gen = current
	}

	b := newBuild(domain, base)
	label := tenant.Label(domain)
	logger := d.logger.With("tenant", label, "build", b.ID())

	ctx, span := d.startSpan(ctx, "dictionary.build", domain)
	span.SetAttributes(attribute.String("dictionary.build_id", b.ID()))
	defer span.End()

	start := time.Now()
	logger.Debug("Building dictionary")
	buildCtx := context.WithValue(ctx, buildKey{}, b)
	for _, l := range d.snapshotListeners() {
		if err := l.OnDictionaryInit(buildCtx, b); err != nil {
			err = withContext(err, "init", domain, "")
			d.metrics.ObserveBuild(label, time.Since(start), err)
			endSpan(span, err)
			logger.Error("Dictionary build failed", "error", err)
			return nil, err
		}
	}

	reg := b.registry()
	d.mu.Lock()
	published := d.generation(domain) == gen
	if published {
		d.cache.Set(cacheKey(domain), reg)
		d.tenants[domain] = true
	}
	d.mu.Unlock()

	d.metrics.ObserveBuild(label, time.Since(start), nil)
	endSpan(span, nil)
	if !published {
		logger.Info("Dictionary destroyed during build, not publishing")
		return reg, nil
	}
	d.metrics.SetModels(label, reg.Len())
	logger.Info("Dictionary initialized", "models", reg.Len(), "duration", time.Since(start))

	for _, l := range d.snapshotListeners() {
		l.AfterDictionaryInit(ctx, domain)
	}
	d.emit(ctx, event.TypeInitialized, domain, qname.QName{}, nil)
	return reg, nil
}

func (d *Dictionary) beginBuild(domain string) uint64 {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.building[domain]++
	return d.generationLocked(domain)
}

func (d *Dictionary) endBuild(domain string) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.building[domain]--; d.building[domain] <= 0 {
		delete(d.building, domain)
	}
}

func (d *Dictionary) generation(domain string) uint64 {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.generationLocked(domain)
}

// generationLocked changes whenever the tenant or the default tenant is
// mutated or destroyed. Both counters only grow, so their sum does too.
func (d *Dictionary) generationLocked(domain string) uint64 {
	if tenant.IsDefault(domain) {
		return d.gens[domain]
	}
	return d.gens[domain] + d.gens[tenant.DefaultDomain]
}

// publish swaps in a mutated registry.
func (d *Dictionary) publish(ctx context.Context, domain string, reg *Registry) {
	dropped := d.swap(domain, reg)
	d.metrics.SetModels(tenant.Label(domain), reg.Len())
	d.broadcast(ctx, domain)
	d.afterDestroy(ctx, dropped)
}

// swap replaces the cached registry of domain, deleting it when reg is nil,
// and invalidates builds in progress. A change to the default tenant drops
// every other tenant. It returns the tenants whose registries were discarded.
func (d *Dictionary) swap(domain string, reg *Registry) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stateMu.Lock()
	d.gens[domain]++
	d.stateMu.Unlock()

	var dropped []string
	if reg == nil {
		d.cache.Delete(cacheKey(domain))
		delete(d.tenants, domain)
		dropped = append(dropped, domain)
	} else {
		d.cache.Set(cacheKey(domain), reg)
		d.tenants[domain] = true
	}
	if tenant.IsDefault(domain) {
		for t := range d.tenants {
			if tenant.IsDefault(t) {
				continue
			}
			d.cache.Delete(cacheKey(t))
			delete(d.tenants, t)
			dropped = append(dropped, t)
		}
	}
	return dropped
}

func (d *Dictionary) broadcast(ctx context.Context, domain string) {
	b, ok := d.cache.(cache.Broadcaster)
	if !ok {
		return
	}
	var err error
	if tenant.IsDefault(domain) {
		err = b.InvalidateAll(ctx)
	} else {
		err = b.Invalidate(ctx, cacheKey(domain))
	}
	if err != nil {
		d.logger.Warn("Failed to broadcast invalidation", "tenant", tenant.Label(domain), "error", err)
	}
}

func (d *Dictionary) afterDestroy(ctx context.Context, dropped []string) {
	if len(dropped) == 0 {
		return
	}
	listeners := d.snapshotListeners()
	for _, t := range dropped {
		for _, l := range listeners {
			l.AfterDictionaryDestroy(ctx, t)
		}
		d.emit(ctx, event.TypeDestroyed, t, qname.QName{}, nil)
	}
}

func (d *Dictionary) emit(ctx context.Context, typ event.Type, domain string, model qname.QName, diffs []ModelDiff) {
	if d.events == nil {
		return
	}
	ev := event.Event{Type: typ, Tenant: domain}
	if !model.IsZero() {
		ev.Model = model.String()
	}
	for _, diff := range diffs {
		if diff.Diff == DiffUnchanged {
			continue
		}
		ev.Changes = append(ev.Changes, event.Change{
			Element: diff.Name.String(),
			Kind:    string(diff.Kind),
			Diff:    string(diff.Diff),
		})
	}
	_ = d.events.Emit(ctx, ev)
}

func (d *Dictionary) startSpan(ctx context.Context, name, domain string) (context.Context, trace.Span) {
	return d.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("dictionary.tenant", tenant.Label(domain))),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
