// Package bootstrap populates the dictionary during initialization: the
// builtin models shipped with the binary, model files on disk and models
// kept in the NATS model store. It also watches model files and resets the
// affected tenant when they change.
package bootstrap

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/c360studio/semdict/dictionary"
	"github.com/c360studio/semdict/schema"
	"github.com/c360studio/semdict/tenant"
)

//go:embed models/*.yaml
var builtinFS embed.FS

// builtinFiles lists the embedded models in import order.
var builtinFiles = []string{
	"models/datatypes.yaml",
	"models/system.yaml",
	"models/content.yaml",
}

// BuiltinModels parses the embedded models in import order.
func BuiltinModels() ([]*schema.Model, error) {
	models := make([]*schema.Model, 0, len(builtinFiles))
	for _, name := range builtinFiles {
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read builtin model %s: %w", name, err)
		}
		m, err := schema.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse builtin model %s: %w", name, err)
		}
		models = append(models, m)
	}
	return models, nil
}

// Builtin registers the embedded models for the default tenant.
type Builtin struct {
	logger *slog.Logger
}

// NewBuiltin creates the builtin model listener.
func NewBuiltin(logger *slog.Logger) *Builtin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builtin{logger: logger}
}

// OnDictionaryInit implements dictionary.Listener.
func (l *Builtin) OnDictionaryInit(ctx context.Context, b *dictionary.Build) error {
	if !tenant.IsDefault(b.Tenant()) {
		return nil
	}
	models, err := BuiltinModels()
	if err != nil {
		return err
	}
	for _, m := range models {
		name, err := b.PutModel(m)
		if err != nil {
			return fmt.Errorf("register builtin model: %w", err)
		}
		l.logger.Debug("Registered builtin model", "model", name.String())
	}
	return nil
}

// AfterDictionaryInit implements dictionary.Listener.
func (l *Builtin) AfterDictionaryInit(context.Context, string) {}

// AfterDictionaryDestroy implements dictionary.Listener.
func (l *Builtin) AfterDictionaryDestroy(context.Context, string) {}
