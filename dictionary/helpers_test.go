package dictionary

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360studio/semdict/qname"
	"github.com/c360studio/semdict/schema"
	"github.com/c360studio/semdict/tenant"
)

const testNS = "urn:semdict:test"

const dataTypesYAML = `
name: d:datatypes
namespaces:
  - uri: https://semdict.dev/model/datatype/1.0
    prefix: d
data_types:
  - name: d:text
    kind: string
  - name: d:int
    kind: int64
  - name: d:boolean
    kind: bool
  - name: d:content
    kind: content
`

const baseModelYAML = `
name: t:model
imports:
  - uri: https://semdict.dev/model/datatype/1.0
    prefix: d
namespaces:
  - uri: urn:semdict:test
    prefix: t
constraints:
  - name: t:short
    type: LENGTH
    parameters:
      maxLength: 10
types:
  - name: t:base
    title: Base
    properties:
      - name: t:title
        type: d:text
        mandatory: true
      - name: t:size
        type: d:int
  - name: t:mid
    parent: t:base
  - name: t:leaf
    parent: t:mid
    properties:
      - name: t:code
        type: d:text
        constraints:
          - ref: t:short
aspects:
  - name: t:tagged
    properties:
      - name: t:tags
        type: d:text
        multiple: true
  - name: t:special
    parent: t:tagged
`

func tq(local string) qname.QName {
	return qname.New(testNS, local)
}

func mustParse(t testing.TB, doc string) *schema.Model {
	t.Helper()
	m, err := schema.Parse([]byte(doc))
	require.NoError(t, err)
	return m
}

// buildView puts docs into a fresh default build and returns its view.
func buildView(t testing.TB, docs ...string) *View {
	t.Helper()
	b := newBuild(tenant.DefaultDomain, nil)
	for _, doc := range docs {
		_, err := b.PutModel(mustParse(t, doc))
		require.NoError(t, err)
	}
	return b.View()
}

// loader is a listener putting fixed models for each tenant.
type loader struct {
	mu     sync.Mutex
	models map[string][]string
	calls  map[string]int
}

func newLoader() *loader {
	return &loader{models: make(map[string][]string), calls: make(map[string]int)}
}

func (l *loader) add(domain string, docs ...string) *loader {
	l.models[domain] = append(l.models[domain], docs...)
	return l
}

func (l *loader) count(domain string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[domain]
}

func (l *loader) OnDictionaryInit(ctx context.Context, b *Build) error {
	l.mu.Lock()
	l.calls[b.Tenant()]++
	docs := append([]string(nil), l.models[b.Tenant()]...)
	l.mu.Unlock()
	for _, doc := range docs {
		raw, err := schema.Parse([]byte(doc))
		if err != nil {
			return err
		}
		if _, err := b.PutModel(raw); err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) AfterDictionaryInit(context.Context, string)    {}
func (l *loader) AfterDictionaryDestroy(context.Context, string) {}

func tenantCtx(domain string) context.Context {
	return tenant.WithDomain(context.Background(), domain)
}
