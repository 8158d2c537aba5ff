package dictionary

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/c360studio/semdict/tenant"
)

func TestDictionary_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	d, _ := newTestDictionary(t, WithTracer(tp.Tracer("test")))
	ctx := tenant.WithDomain(context.Background(), "acme")

	_, err := d.PutModel(ctx, mustParse(t, acmeModelYAML))
	require.NoError(t, err)
	_, err = d.PutModel(ctx, mustParse(t, testModel(`
types:
  - name: t:orphan
    parent: t:missing
`)))
	require.Error(t, err)

	byName := make(map[string][]tracetest.SpanStub)
	for _, s := range exporter.GetSpans() {
		byName[s.Name] = append(byName[s.Name], s)
	}

	builds := byName["dictionary.build"]
	require.Len(t, builds, 2, "default and acme")
	for _, s := range builds {
		assert.Equal(t, codes.Ok, s.Status.Code)
	}

	puts := byName["dictionary.put_model"]
	require.Len(t, puts, 2)
	assert.Equal(t, codes.Ok, puts[0].Status.Code)
	assert.Equal(t, codes.Error, puts[1].Status.Code)
	assert.Contains(t, puts[0].Attributes, attribute.String("dictionary.tenant", "acme"))
}
