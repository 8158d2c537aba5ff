package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/c360studio/semdict/dictionary"
	"github.com/c360studio/semdict/schema"
	"github.com/c360studio/semdict/tenant"
)

// TenantsDir is the subdirectory of a models directory holding one directory
// per tenant domain.
const TenantsDir = "tenants"

// DefaultPatterns match model files when none are configured.
var DefaultPatterns = []string{"**/*.yaml", "**/*.yml"}

// Directory loads model files from disk. Files under <root>/tenants/<domain>/
// belong to that tenant; every other matching file belongs to the default
// tenant. Models are put in import order.
type Directory struct {
	root     string
	patterns []string
	logger   *slog.Logger
}

// NewDirectory creates a listener loading models under root.
func NewDirectory(root string, patterns []string, logger *slog.Logger) (*Directory, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid model file pattern %q", p)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{root: root, patterns: patterns, logger: logger}, nil
}

// Root returns the models directory.
func (d *Directory) Root() string { return d.root }

// Files returns the model files of domain, relative to the models directory
// and sorted.
func (d *Directory) Files(domain string) ([]string, error) {
	dir := d.root
	if !tenant.IsDefault(domain) {
		dir = filepath.Join(d.root, TenantsDir, domain)
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat models directory: %w", err)
	}

	fsys := os.DirFS(dir)
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range d.patterns {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("match %s: %w", pattern, err)
		}
		for _, m := range matches {
			if tenant.IsDefault(domain) && isTenantPath(m) {
				continue
			}
			rel := m
			if !tenant.IsDefault(domain) {
				rel = path.Join(TenantsDir, domain, m)
			}
			if !seen[rel] {
				seen[rel] = true
				files = append(files, rel)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// Load parses the model files of domain and orders them by imports.
func (d *Directory) Load(domain string) ([]*schema.Model, error) {
	files, err := d.Files(domain)
	if err != nil {
		return nil, err
	}
	models := make([]*schema.Model, 0, len(files))
	for _, f := range files {
		m, err := schema.LoadFile(filepath.Join(d.root, filepath.FromSlash(f)))
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return schema.SortByImports(models), nil
}

// Matches reports whether rel, a slash separated path relative to the models
// directory, is a model file and returns its tenant.
func (d *Directory) Matches(rel string) (domain string, ok bool) {
	rel = filepath.ToSlash(rel)
	local := rel
	if isTenantPath(rel) {
		parts := strings.SplitN(rel, "/", 3)
		if len(parts) < 3 {
			return "", false
		}
		domain, local = tenant.Normalize(parts[1]), parts[2]
	}
	for _, p := range d.patterns {
		if doublestar.MatchUnvalidated(p, local) {
			return domain, true
		}
	}
	return "", false
}

// OnDictionaryInit implements dictionary.Listener.
func (d *Directory) OnDictionaryInit(ctx context.Context, b *dictionary.Build) error {
	models, err := d.Load(b.Tenant())
	if err != nil {
		return err
	}
	for _, m := range models {
		name, err := b.PutModel(m)
		if err != nil {
			return fmt.Errorf("load model %s: %w", m.Name, err)
		}
		d.logger.Debug("Loaded model file", "tenant", tenant.Label(b.Tenant()), "model", name.String())
	}
	if len(models) > 0 {
		d.logger.Info("Loaded model files", "tenant", tenant.Label(b.Tenant()), "count", len(models))
	}
	return nil
}

// AfterDictionaryInit implements dictionary.Listener.
func (d *Directory) AfterDictionaryInit(context.Context, string) {}

// AfterDictionaryDestroy implements dictionary.Listener.
func (d *Directory) AfterDictionaryDestroy(context.Context, string) {}

func isTenantPath(rel string) bool {
	return strings.HasPrefix(rel, TenantsDir+"/")
}
