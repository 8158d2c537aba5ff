package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memKV is an in-memory jetstream.KeyValue covering what Cluster uses.
type memKV struct {
	jetstream.KeyValue

	mu       sync.Mutex
	rev      uint64
	watchers []*memWatcher
}

func (kv *memKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.rev++
	e := &memEntry{key: key, value: append([]byte(nil), value...), rev: kv.rev}
	for _, w := range kv.watchers {
		w.ch <- e
	}
	return kv.rev, nil
}

func (kv *memKV) WatchAll(_ context.Context, _ ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	w := &memWatcher{ch: make(chan jetstream.KeyValueEntry, 16)}
	kv.watchers = append(kv.watchers, w)
	return w, nil
}

type memWatcher struct {
	ch   chan jetstream.KeyValueEntry
	once sync.Once
}

func (w *memWatcher) Updates() <-chan jetstream.KeyValueEntry { return w.ch }
func (w *memWatcher) Stop() error {
	w.once.Do(func() { close(w.ch) })
	return nil
}

type memEntry struct {
	key   string
	value []byte
	rev   uint64
}

func (e *memEntry) Bucket() string                  { return "test" }
func (e *memEntry) Key() string                     { return e.key }
func (e *memEntry) Value() []byte                   { return e.value }
func (e *memEntry) Revision() uint64                { return e.rev }
func (e *memEntry) Created() time.Time              { return time.Time{} }
func (e *memEntry) Delta() uint64                   { return 0 }
func (e *memEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }

func TestLocal(t *testing.T) {
	c := NewLocal[*int]("test", nil)
	v := 7

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", &v)
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 7, *got)
	assert.Equal(t, 1, c.Len())

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)

	c.Set("b", &v)
	c.Flush()
	assert.Equal(t, 0, c.Len())
}

func TestLocal_WrongType(t *testing.T) {
	c := NewLocal[string]("test", nil)
	c.cache.Set("a", 42, 0)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCluster_InvalidatesPeers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv := &memKV{}
	a := NewClusterFromKV[string](kv, nil)
	b := NewClusterFromKV[string](kv, nil)
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))
	defer a.Stop()
	defer b.Stop()

	a.Set("tenant.acme", "a-registry")
	b.Set("tenant.acme", "b-registry")
	b.Set("default", "b-default")

	require.NoError(t, a.Invalidate(ctx, "tenant.acme"))

	require.Eventually(t, func() bool {
		_, ok := b.Get("tenant.acme")
		return !ok
	}, time.Second, 5*time.Millisecond)

	// The writer keeps its own entry.
	got, ok := a.Get("tenant.acme")
	assert.True(t, ok)
	assert.Equal(t, "a-registry", got)

	_, ok = b.Get("default")
	assert.True(t, ok)
}

func TestCluster_InvalidateAll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv := &memKV{}
	a := NewClusterFromKV[string](kv, nil)
	b := NewClusterFromKV[string](kv, nil)
	require.NoError(t, b.Start(ctx))
	defer b.Stop()

	b.Set("default", "x")
	b.Set("tenant.acme", "y")

	require.NoError(t, a.InvalidateAll(ctx))

	require.Eventually(t, func() bool {
		return b.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestCluster_NotifiesBeforeEvicting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type notice struct {
		key     string
		all     bool
		present bool
	}
	kv := &memKV{}
	a := NewClusterFromKV[string](kv, nil)
	b := NewClusterFromKV[string](kv, nil)
	notices := make(chan notice, 2)
	b.OnInvalidate(func(key string, all bool) {
		_, present := b.Get("tenant.acme")
		notices <- notice{key: key, all: all, present: present}
	})
	require.NoError(t, b.Start(ctx))
	defer b.Stop()

	b.Set("tenant.acme", "x")
	require.NoError(t, a.Invalidate(ctx, "tenant.acme"))
	assert.Equal(t, notice{key: "tenant.acme", present: true}, <-notices)

	b.Set("tenant.acme", "y")
	require.NoError(t, a.InvalidateAll(ctx))
	assert.Equal(t, notice{all: true, present: true}, <-notices)
	require.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestCluster_DefaultKeyRoundTrip(t *testing.T) {
	for _, key := range []string{"", "default", "tenant.acme.com"} {
		encoded := encodeKey(key)
		assert.NotContains(t, encoded, ".")
		decoded, err := decodeKey(encoded)
		require.NoError(t, err)
		assert.Equal(t, key, decoded)
	}
}

func TestCluster_StopIdempotent(t *testing.T) {
	c := NewClusterFromKV[string](&memKV{}, nil)
	assert.NoError(t, c.Stop())
	require.NoError(t, c.Start(context.Background()))
	assert.NoError(t, c.Stop())
	assert.NoError(t, c.Stop())
}
