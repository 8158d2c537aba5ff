package storage

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semdict/namespace"
	"github.com/c360studio/semdict/qname"
	"github.com/c360studio/semdict/schema"
)

// memKV is an in-memory jetstream.KeyValue covering what ModelStore uses.
type memKV struct {
	jetstream.KeyValue

	mu   sync.Mutex
	rev  uint64
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (kv *memKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.rev++
	kv.data[key] = append([]byte(nil), value...)
	return kv.rev, nil
}

func (kv *memKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return &memEntry{key: key, value: v, rev: kv.rev}, nil
}

func (kv *memKV) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.data, key)
	return nil
}

func (kv *memKV) Keys(_ context.Context, _ ...jetstream.WatchOpt) ([]string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if len(kv.data) == 0 {
		return nil, jetstream.ErrNoKeysFound
	}
	keys := make([]string, 0, len(kv.data))
	for k := range kv.data {
		keys = append(keys, k)
	}
	return keys, nil
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

func sampleModel(name string) *schema.Model {
	return &schema.Model{
		Name:       "ex:" + name,
		Namespaces: []namespace.Namespace{{URI: "urn:ex:" + name, Prefix: "ex"}},
		Types:      []schema.Class{{Name: "ex:doc"}},
	}
}

func TestModelStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewModelStoreFromKV(newMemKV())
	name := qname.New("urn:ex:a", "a")

	_, err := s.Get(ctx, "", name)
	assert.ErrorIs(t, err, ErrNotFound)

	rev, err := s.Put(ctx, "", name, sampleModel("a"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rev)

	got, err := s.Get(ctx, "", name)
	require.NoError(t, err)
	assert.Equal(t, "ex:a", got.Name)
	require.Len(t, got.Types, 1)

	// Tenants are isolated.
	_, err = s.Get(ctx, "acme", name)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, "", name))
	_, err = s.Get(ctx, "", name)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete(ctx, "", name))
}

func TestModelStore_ListAndTenants(t *testing.T) {
	ctx := context.Background()
	s := NewModelStoreFromKV(newMemKV())

	models, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, models)

	_, err = s.Put(ctx, "", qname.New("urn:ex:a", "a"), sampleModel("a"))
	require.NoError(t, err)
	_, err = s.Put(ctx, "", qname.New("urn:ex:b", "b"), sampleModel("b"))
	require.NoError(t, err)
	_, err = s.Put(ctx, "acme.com", qname.New("urn:ex:a", "a"), sampleModel("a"))
	require.NoError(t, err)

	models, err = s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, models, 2)

	models, err = s.List(ctx, "acme.com")
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "ex:a", models[0].Name)

	tenants, err := s.Tenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "acme.com"}, tenants)
}

func TestModelKey(t *testing.T) {
	key := modelKey("", qname.New("urn:ex", "m"))
	assert.Regexp(t, `^_default\.[A-Za-z0-9_-]+$`, key)

	tk, _, ok := strings.Cut(modelKey("acme", qname.New("urn:ex", "m")), ".")
	require.True(t, ok)
	domain, err := decodeTenant(tk)
	require.NoError(t, err)
	assert.Equal(t, "acme", domain)
}
