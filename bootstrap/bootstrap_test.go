package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semdict/dictionary"
	"github.com/c360studio/semdict/qname"
	"github.com/c360studio/semdict/schema"
	"github.com/c360studio/semdict/tenant"
	"github.com/c360studio/semdict/vocabulary/datatypes"
	"github.com/c360studio/semdict/vocabulary/system"
)

const projectModelYAML = `
name: p:project
imports:
  - uri: https://semdict.dev/model/datatype/1.0
    prefix: d
  - uri: https://semdict.dev/model/content/1.0
    prefix: cm
namespaces:
  - uri: urn:semdict:project
    prefix: p
types:
  - name: p:report
    parent: cm:content
    properties:
      - name: p:pages
        type: d:int
`

const acmeModelYAML = `
name: a:acme
imports:
  - uri: https://semdict.dev/model/content/1.0
    prefix: cm
namespaces:
  - uri: urn:semdict:acme
    prefix: a
types:
  - name: a:invoice
    parent: cm:content
`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestBuiltinModels(t *testing.T) {
	d := dictionary.New()
	d.Register(NewBuiltin(nil))

	v, err := d.View(context.Background())
	require.NoError(t, err)

	assert.Len(t, v.Models(), 3)
	assert.Len(t, v.AllDataTypes(), 14)

	text, ok := v.DataType(datatypes.Text)
	require.True(t, ok)
	assert.Equal(t, datatypes.KindString, text.Kind)

	folder, ok := v.Type(system.TypeFolder)
	require.True(t, ok)
	assert.Equal(t, system.TypeCmObject, folder.Parent)
	assert.Contains(t, folder.Properties, system.PropName)
	assert.NotContains(t, folder.Properties, system.PropNodeUUID, "aspect properties stay on the aspect")
	assert.Contains(t, folder.MandatoryAspects, system.AspectReferenceable)
	assert.Contains(t, folder.MandatoryAspects, system.AspectAuditable)

	instance, err := v.AnonymousType(system.TypeFolder, folder.MandatoryAspects)
	require.NoError(t, err)
	assert.Contains(t, instance.Properties, system.PropNodeUUID)
	assert.Contains(t, instance.Properties, system.PropName)

	assert.True(t, v.IsSubClass(system.TypeContent, system.TypeBase))
	assert.Contains(t, v.SubTypes(system.TypeCmObject, true), system.TypeFolder)

	name, ok := v.Property(system.PropName)
	require.True(t, ok)
	require.Len(t, name.Constraints, 1)
	tests := []struct {
		value string
		valid bool
	}{
		{"report.txt", true},
		{"bad:name", false},
		{"trailing.", false},
		{"trailing ", false},
	}
	for _, tt := range tests {
		err := name.Constraints[0].Evaluate(tt.value)
		if tt.valid {
			assert.NoError(t, err, tt.value)
		} else {
			assert.Error(t, err, tt.value)
		}
	}
}

func TestBuiltin_SkipsTenants(t *testing.T) {
	d := dictionary.New()
	d.Register(NewBuiltin(nil))

	v, err := d.View(tenant.WithDomain(context.Background(), "acme"))
	require.NoError(t, err)

	// Builtin models come from the default tenant.
	models := v.Models()
	assert.Len(t, models, 3)
	for _, m := range models {
		inherited, err := v.IsModelInherited(m.Name())
		require.NoError(t, err)
		assert.True(t, inherited, m.Name().String())
	}
}

func TestDirectory_Files(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "project.yaml", projectModelYAML)
	writeFile(t, root, "nested/extra.yml", projectModelYAML)
	writeFile(t, root, "notes.txt", "not a model")
	writeFile(t, root, "tenants/acme/acme.yaml", acmeModelYAML)

	dir, err := NewDirectory(root, nil, nil)
	require.NoError(t, err)

	files, err := dir.Files(tenant.DefaultDomain)
	require.NoError(t, err)
	assert.Equal(t, []string{"nested/extra.yml", "project.yaml"}, files)

	files, err = dir.Files("acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"tenants/acme/acme.yaml"}, files)

	files, err = dir.Files("unknown")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDirectory_Matches(t *testing.T) {
	dir, err := NewDirectory(t.TempDir(), []string{"**/*.yaml"}, nil)
	require.NoError(t, err)

	tests := []struct {
		rel    string
		domain string
		ok     bool
	}{
		{"project.yaml", "", true},
		{"nested/deep/model.yaml", "", true},
		{"tenants/acme/acme.yaml", "acme", true},
		{"tenants/Acme/sub/acme.yaml", "acme", true},
		{"project.yml", "", false},
		{"tenants/acme", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			domain, ok := dir.Matches(tt.rel)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.domain, domain)
			}
		})
	}
}

func TestNewDirectory_InvalidPattern(t *testing.T) {
	_, err := NewDirectory(t.TempDir(), []string{"[unclosed"}, nil)
	assert.Error(t, err)
}

func TestDirectory_LoadsTenants(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "project.yaml", projectModelYAML)
	writeFile(t, root, "tenants/acme/acme.yaml", acmeModelYAML)

	dir, err := NewDirectory(root, nil, nil)
	require.NoError(t, err)

	d := dictionary.New()
	d.Register(NewBuiltin(nil))
	d.Register(dir)

	v, err := d.View(context.Background())
	require.NoError(t, err)
	report := qname.New("urn:semdict:project", "report")
	assert.True(t, v.IsSubClass(report, system.TypeBase))
	_, ok := v.Type(qname.New("urn:semdict:acme", "invoice"))
	assert.False(t, ok)

	v, err = d.View(tenant.WithDomain(context.Background(), "acme"))
	require.NoError(t, err)
	_, ok = v.Type(qname.New("urn:semdict:acme", "invoice"))
	assert.True(t, ok)
	_, ok = v.Type(report)
	assert.True(t, ok, "default models are visible to tenants")
}

func TestDirectory_BrokenFileFailsBuild(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "broken.yaml", "name: [not a qname")

	dir, err := NewDirectory(root, nil, nil)
	require.NoError(t, err)

	d := dictionary.New()
	d.Register(NewBuiltin(nil))
	d.Register(dir)

	_, err = d.View(context.Background())
	assert.Error(t, err)
	assert.Equal(t, dictionary.StateUninitialized, d.State(context.Background()))
}

type fakeSource struct {
	models map[string][]*schema.Model
	err    error
}

func (f *fakeSource) List(_ context.Context, domain string) ([]*schema.Model, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.models[domain], nil
}

func TestStore_LoadsInImportOrder(t *testing.T) {
	project, err := schema.Parse([]byte(projectModelYAML))
	require.NoError(t, err)
	derived, err := schema.Parse([]byte(`
name: x:derived
imports:
  - uri: urn:semdict:project
    prefix: p
namespaces:
  - uri: urn:semdict:derived
    prefix: x
types:
  - name: x:memo
    parent: p:report
`))
	require.NoError(t, err)

	// Stored models come back in key order, not import order.
	src := &fakeSource{models: map[string][]*schema.Model{
		"": {derived, project},
	}}

	d := dictionary.New()
	d.Register(NewBuiltin(nil))
	d.Register(NewStore(src, nil))

	v, err := d.View(context.Background())
	require.NoError(t, err)
	assert.True(t, v.IsSubClass(qname.New("urn:semdict:derived", "memo"), system.TypeCmObject))
}

func TestStore_ListError(t *testing.T) {
	d := dictionary.New()
	d.Register(NewStore(&fakeSource{err: errors.New("bucket unavailable")}, nil))

	_, err := d.View(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")
}

type recordingResetter struct {
	mu      sync.Mutex
	domains []string
}

func (r *recordingResetter) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.domains = append(r.domains, tenant.Domain(ctx))
	return nil
}

func (r *recordingResetter) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.domains...)
}

func TestWatcher_ResetsChangedTenant(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "project.yaml", projectModelYAML)
	writeFile(t, root, "tenants/acme/acme.yaml", acmeModelYAML)

	dir, err := NewDirectory(root, nil, nil)
	require.NoError(t, err)

	resetter := &recordingResetter{}
	w, err := NewWatcher(dir, resetter, 20*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	writeFile(t, root, "tenants/acme/acme.yaml", acmeModelYAML+"\n# edited\n")
	assert.Eventually(t, func() bool {
		calls := resetter.calls()
		return len(calls) == 1 && calls[0] == "acme"
	}, 2*time.Second, 10*time.Millisecond)

	writeFile(t, root, "project.yaml", projectModelYAML+"\n# edited\n")
	assert.Eventually(t, func() bool {
		calls := resetter.calls()
		return len(calls) == 2 && calls[1] == ""
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_IgnoresUnchangedAndForeignFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "project.yaml", projectModelYAML)

	dir, err := NewDirectory(root, nil, nil)
	require.NoError(t, err)

	resetter := &recordingResetter{}
	w, err := NewWatcher(dir, resetter, 20*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// Same content and non-model files do not trigger a reset.
	writeFile(t, root, "project.yaml", projectModelYAML)
	writeFile(t, root, "README.md", "docs")
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, resetter.calls())

	require.NoError(t, os.Remove(filepath.Join(root, "project.yaml")))
	assert.Eventually(t, func() bool {
		return len(resetter.calls()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestContentHash(t *testing.T) {
	assert.Equal(t, contentHash([]byte("a")), contentHash([]byte("a")))
	assert.NotEqual(t, contentHash([]byte("a")), contentHash([]byte("b")))
	assert.Len(t, contentHash(nil), 64)
}
