package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360studio/semdict/dictionary"
	"github.com/c360studio/semdict/schema"
	"github.com/c360studio/semdict/tenant"
)

// ModelSource lists the stored raw models of a tenant. *storage.ModelStore
// satisfies it.
type ModelSource interface {
	List(ctx context.Context, tenant string) ([]*schema.Model, error)
}

// Store loads the models kept in a model store, so that models put through
// the admin API survive restarts and are seen by every node.
type Store struct {
	source ModelSource
	logger *slog.Logger
}

// NewStore creates a listener loading models from source.
func NewStore(source ModelSource, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{source: source, logger: logger}
}

// OnDictionaryInit implements dictionary.Listener.
func (s *Store) OnDictionaryInit(ctx context.Context, b *dictionary.Build) error {
	models, err := s.source.List(ctx, b.Tenant())
	if err != nil {
		return fmt.Errorf("list stored models: %w", err)
	}
	for _, m := range schema.SortByImports(models) {
		if _, err := b.PutModel(m); err != nil {
			return fmt.Errorf("load stored model %s: %w", m.Name, err)
		}
	}
	if len(models) > 0 {
		s.logger.Info("Loaded stored models", "tenant", tenant.Label(b.Tenant()), "count", len(models))
	}
	return nil
}

// AfterDictionaryInit implements dictionary.Listener.
func (s *Store) AfterDictionaryInit(context.Context, string) {}

// AfterDictionaryDestroy implements dictionary.Listener.
func (s *Store) AfterDictionaryDestroy(context.Context, string) {}
