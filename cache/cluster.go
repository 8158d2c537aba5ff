package cache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultBucket is the KV bucket used for invalidation messages.
const DefaultBucket = "SEMDICT_CACHE"

// allKey marks an InvalidateAll message. It cannot collide with an encoded
// key because base64url output never contains '.'.
const allKey = "all.keys"

var errNotStarted = errors.New("cluster cache not started")

// invalidation is the value written to the bucket.
type invalidation struct {
	Node  string    `json:"node"`
	Token string    `json:"token"`
	At    time.Time `json:"at"`
}

// Cluster is a Local cache whose invalidations reach every node watching the
// same bucket.
type Cluster[V any] struct {
	*Local[V]

	kv     jetstream.KeyValue
	node   string
	logger *slog.Logger

	mu      sync.Mutex
	watcher jetstream.KeyWatcher
	wg      sync.WaitGroup
	onEvict func(key string, all bool)
}

// NewCluster creates a cluster cache on bucket, creating the bucket if needed.
func NewCluster[V any](ctx context.Context, js jetstream.JetStream, bucket string, logger *slog.Logger) (*Cluster[V], error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "Semdict registry cache invalidations",
			History:     1,
			TTL:         time.Hour,
		})
		if err != nil {
			return nil, fmt.Errorf("create cache bucket: %w", err)
		}
	}
	return NewClusterFromKV[V](kv, logger), nil
}

// NewClusterFromKV creates a cluster cache on an existing bucket.
func NewClusterFromKV[V any](kv jetstream.KeyValue, logger *slog.Logger) *Cluster[V] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cluster[V]{
		Local:  NewLocal[V]("registry", logger),
		kv:     kv,
		node:   uuid.NewString(),
		logger: logger,
	}
}

// Node returns the identifier this process writes into invalidations.
func (c *Cluster[V]) Node() string {
	return c.node
}

// OnInvalidate implements Notifier. Only the last registered fn is kept.
func (c *Cluster[V]) OnInvalidate(fn func(key string, all bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

func (c *Cluster[V]) notify(key string, all bool) {
	c.mu.Lock()
	fn := c.onEvict
	c.mu.Unlock()
	if fn != nil {
		fn(key, all)
	}
}

// Start watches the bucket for invalidations written by peers. It returns
// once the watcher is established; processing stops when ctx is cancelled
// or Stop is called.
func (c *Cluster[V]) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watcher != nil {
		return nil
	}
	w, err := c.kv.WatchAll(ctx, jetstream.UpdatesOnly())
	if err != nil {
		return fmt.Errorf("watch cache bucket: %w", err)
	}
	c.watcher = w

	c.wg.Add(1)
	go c.process(ctx, w)
	return nil
}

// Stop ends the watcher and waits for the processing goroutine.
func (c *Cluster[V]) Stop() error {
	c.mu.Lock()
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()

	if w == nil {
		return nil
	}
	err := w.Stop()
	c.wg.Wait()
	return err
}

func (c *Cluster[V]) process(ctx context.Context, w jetstream.KeyWatcher) {
	defer c.wg.Done()

	updates := w.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-updates:
			if !ok {
				return
			}
			if entry == nil {
				continue
			}
			c.apply(entry)
		}
	}
}

func (c *Cluster[V]) apply(entry jetstream.KeyValueEntry) {
	if entry.Operation() != jetstream.KeyValuePut {
		return
	}
	var msg invalidation
	if err := json.Unmarshal(entry.Value(), &msg); err != nil {
		c.logger.Warn("Malformed cache invalidation", "key", entry.Key(), "error", err)
		return
	}
	if msg.Node == c.node {
		return
	}

	if entry.Key() == allKey {
		c.notify("", true)
		c.Local.Flush()
		c.logger.Debug("Flushed registry cache on peer request", "peer", msg.Node)
		return
	}
	key, err := decodeKey(entry.Key())
	if err != nil {
		c.logger.Warn("Undecodable cache invalidation key", "key", entry.Key(), "error", err)
		return
	}
	c.notify(key, false)
	c.Local.Delete(key)
	c.logger.Debug("Evicted registry on peer request", "key", key, "peer", msg.Node)
}

// Invalidate implements Broadcaster.
func (c *Cluster[V]) Invalidate(ctx context.Context, key string) error {
	return c.publish(ctx, encodeKey(key))
}

// InvalidateAll implements Broadcaster.
func (c *Cluster[V]) InvalidateAll(ctx context.Context) error {
	return c.publish(ctx, allKey)
}

func (c *Cluster[V]) publish(ctx context.Context, kvKey string) error {
	if c.kv == nil {
		return errNotStarted
	}
	data, err := json.Marshal(invalidation{Node: c.node, Token: uuid.NewString(), At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal invalidation: %w", err)
	}
	if _, err := c.kv.Put(ctx, kvKey, data); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

func encodeKey(key string) string {
	if key == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeKey(kvKey string) (string, error) {
	if kvKey == "_" {
		return "", nil
	}
	b, err := base64.RawURLEncoding.DecodeString(kvKey)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
