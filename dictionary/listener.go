package dictionary

import "context"

// Listener populates and observes the dictionary of a tenant. Listeners are
// invoked synchronously in registration order.
type Listener interface {
	// OnDictionaryInit is called while the tenant is Building. It may put
	// models into b and read them back through ctx. An error aborts the build.
	OnDictionaryInit(ctx context.Context, b *Build) error
	// AfterDictionaryInit is called once the tenant's registry is published.
	AfterDictionaryInit(ctx context.Context, tenant string)
	// AfterDictionaryDestroy is called after the tenant's registry is discarded.
	AfterDictionaryDestroy(ctx context.Context, tenant string)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Init      func(ctx context.Context, b *Build) error
	AfterInit func(ctx context.Context, tenant string)
	Destroy   func(ctx context.Context, tenant string)
}

// OnDictionaryInit implements Listener.
func (f ListenerFuncs) OnDictionaryInit(ctx context.Context, b *Build) error {
	if f.Init == nil {
		return nil
	}
	return f.Init(ctx, b)
}

// AfterDictionaryInit implements Listener.
func (f ListenerFuncs) AfterDictionaryInit(ctx context.Context, tenant string) {
	if f.AfterInit != nil {
		f.AfterInit(ctx, tenant)
	}
}

// AfterDictionaryDestroy implements Listener.
func (f ListenerFuncs) AfterDictionaryDestroy(ctx context.Context, tenant string) {
	if f.Destroy != nil {
		f.Destroy(ctx, tenant)
	}
}
