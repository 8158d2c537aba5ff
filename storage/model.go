// Package storage persists raw model definitions in a NATS KV bucket so that
// every node can rebuild tenant dictionaries from the same source.
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/semdict/qname"
	"github.com/c360studio/semdict/schema"
)

// DefaultBucket is the KV bucket holding raw models.
const DefaultBucket = "SEMDICT_MODELS"

// defaultTenantKey stands in for the empty default tenant domain in keys.
const defaultTenantKey = "_default"

// ModelStore stores raw models by tenant and model name. Values are the YAML
// form of the model.
type ModelStore struct {
	kv jetstream.KeyValue
}

// NewModelStore creates a store on bucket, creating the bucket if needed.
func NewModelStore(ctx context.Context, js jetstream.JetStream, bucket string) (*ModelStore, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	kv, err := getOrCreateBucket(ctx, js, bucket)
	if err != nil {
		return nil, fmt.Errorf("create models bucket: %w", err)
	}
	return NewModelStoreFromKV(kv), nil
}

// NewModelStoreFromKV wraps an existing bucket.
func NewModelStoreFromKV(kv jetstream.KeyValue) *ModelStore {
	return &ModelStore{kv: kv}
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Semdict %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
}

// Put stores m under name for tenant and returns the new revision.
func (s *ModelStore) Put(ctx context.Context, tenant string, name qname.QName, m *schema.Model) (uint64, error) {
	data, err := schema.Marshal(m)
	if err != nil {
		return 0, err
	}
	rev, err := s.kv.Put(ctx, modelKey(tenant, name), data)
	if err != nil {
		return 0, fmt.Errorf("store model: %w", err)
	}
	return rev, nil
}

// Get retrieves the model stored under name for tenant.
func (s *ModelStore) Get(ctx context.Context, tenant string, name qname.QName) (*schema.Model, error) {
	entry, err := s.kv.Get(ctx, modelKey(tenant, name))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get model: %w", err)
	}
	m, err := schema.Parse(entry.Value())
	if err != nil {
		return nil, fmt.Errorf("decode model %s: %w", name, err)
	}
	return m, nil
}

// Delete removes the model stored under name for tenant. Deleting a missing
// model is not an error.
func (s *ModelStore) Delete(ctx context.Context, tenant string, name qname.QName) error {
	if err := s.kv.Delete(ctx, modelKey(tenant, name)); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete model: %w", err)
	}
	return nil
}

// List returns every model stored for tenant, ordered by key.
func (s *ModelStore) List(ctx context.Context, tenant string) ([]*schema.Model, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list model keys: %w", err)
	}

	prefix := tenantKey(tenant) + "."
	sort.Strings(keys)

	models := make([]*schema.Model, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			if isNotFound(err) {
				continue // Deleted since listing
			}
			return nil, fmt.Errorf("get model %s: %w", key, err)
		}
		m, err := schema.Parse(entry.Value())
		if err != nil {
			return nil, fmt.Errorf("decode model %s: %w", key, err)
		}
		models = append(models, m)
	}
	return models, nil
}

// Tenants returns the tenant domains that have stored models.
func (s *ModelStore) Tenants(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list model keys: %w", err)
	}

	seen := make(map[string]struct{})
	var tenants []string
	for _, key := range keys {
		tk, _, ok := strings.Cut(key, ".")
		if !ok {
			continue
		}
		domain, err := decodeTenant(tk)
		if err != nil {
			continue
		}
		if _, dup := seen[domain]; dup {
			continue
		}
		seen[domain] = struct{}{}
		tenants = append(tenants, domain)
	}
	sort.Strings(tenants)
	return tenants, nil
}

func modelKey(tenant string, name qname.QName) string {
	return tenantKey(tenant) + "." + base64.RawURLEncoding.EncodeToString([]byte(name.String()))
}

func tenantKey(tenant string) string {
	if tenant == "" {
		return defaultTenantKey
	}
	return base64.RawURLEncoding.EncodeToString([]byte(tenant))
}

func decodeTenant(key string) (string, error) {
	if key == defaultTenantKey {
		return "", nil
	}
	b, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
