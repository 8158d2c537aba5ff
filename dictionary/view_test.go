package dictionary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semdict/qname"
	"github.com/c360studio/semdict/vocabulary/datatypes"
)

func TestView_SubTypeTransitivity(t *testing.T) {
	v := buildView(t, dataTypesYAML, baseModelYAML)
	base, mid, leaf := tq("base"), tq("mid"), tq("leaf")

	assert.Subset(t, v.SubTypes(base, true), []qname.QName{mid, leaf})
	assert.Equal(t, []qname.QName{mid}, v.SubTypes(base, false))
	assert.True(t, v.IsSubClass(leaf, base))
	assert.False(t, v.IsSubClass(base, leaf))
}

func TestView_SubClasses(t *testing.T) {
	v := buildView(t, dataTypesYAML, baseModelYAML)

	tests := []struct {
		name   string
		got    []qname.QName
		expect []qname.QName
	}{
		{"follow includes self", v.SubTypes(tq("base"), true), []qname.QName{tq("base"), tq("leaf"), tq("mid")}},
		{"leaf has no subtypes", v.SubTypes(tq("leaf"), false), nil},
		{"follow from leaf", v.SubTypes(tq("leaf"), true), []qname.QName{tq("leaf")}},
		{"aspects", v.SubAspects(tq("tagged"), false), []qname.QName{tq("special")}},
		{"types never under aspects", v.SubTypes(tq("tagged"), true), nil},
		{"zero name", v.SubTypes(qname.QName{}, false), nil},
		{"unknown name", v.SubTypes(tq("ghost"), true), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.got)
		})
	}
}

func TestView_IsSubClass(t *testing.T) {
	v := buildView(t, dataTypesYAML, baseModelYAML)

	tests := []struct {
		a, b qname.QName
		want bool
	}{
		{tq("leaf"), tq("mid"), true},
		{tq("leaf"), tq("leaf"), true},
		{tq("special"), tq("tagged"), true},
		{tq("tagged"), tq("special"), false},
		{tq("leaf"), tq("tagged"), false},
		{tq("special"), tq("base"), false},
		{tq("ghost"), tq("base"), false},
		{tq("base"), tq("ghost"), false},
	}
	for _, tt := range tests {
		t.Run(tt.a.Local+"/"+tt.b.Local, func(t *testing.T) {
			assert.Equal(t, tt.want, v.IsSubClass(tt.a, tt.b))
		})
	}
}

func TestView_Lookups(t *testing.T) {
	v := buildView(t, dataTypesYAML, baseModelYAML)
	model := tq("model")

	_, ok := v.Type(tq("tagged"))
	assert.False(t, ok, "aspects are not types")
	_, ok = v.Aspect(tq("tagged"))
	assert.True(t, ok)
	_, ok = v.Property(tq("ghost"))
	assert.False(t, ok)
	_, ok = v.Type(qname.New("urn:unknown", "x"))
	assert.False(t, ok)

	dt, ok := v.DataType(datatypes.Int)
	require.True(t, ok)
	assert.Equal(t, datatypes.KindInt, dt.Kind)

	p, ok := v.ClassProperty(tq("leaf"), tq("title"))
	require.True(t, ok)
	assert.Equal(t, tq("base"), p.ContainerClass)
	_, ok = v.ClassProperty(tq("base"), tq("code"))
	assert.False(t, ok)

	types, err := v.Types(model)
	require.NoError(t, err)
	assert.Len(t, types, 3)

	aspects, err := v.Aspects(model)
	require.NoError(t, err)
	assert.Len(t, aspects, 2)

	ints, err := v.Properties(model, datatypes.Int)
	require.NoError(t, err)
	require.Len(t, ints, 1)
	assert.Equal(t, tq("size"), ints[0].Name)

	all, err := v.Properties(model, qname.QName{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	constraints, err := v.Constraints(model)
	require.NoError(t, err)
	assert.Len(t, constraints, 2)

	_, err = v.Types(tq("ghost"))
	assert.ErrorIs(t, err, ErrModelNotFound)

	assert.Len(t, v.AllTypes(), 3)
	assert.Len(t, v.AllAspects(), 2)
	assert.Len(t, v.AllDataTypes(), 4)
	assert.Len(t, v.Models(), 2)
	assert.Len(t, v.ModelsForURI(testNS), 1)

	prefix, ok := v.Namespaces().Prefix(testNS)
	require.True(t, ok)
	assert.Equal(t, "t", prefix)
}

func TestView_AnonymousType(t *testing.T) {
	v := buildView(t, dataTypesYAML, baseModelYAML)

	anon, err := v.AnonymousType(tq("leaf"), []qname.QName{tq("special")})
	require.NoError(t, err)
	assert.ElementsMatch(t, []qname.QName{tq("title"), tq("size"), tq("code"), tq("tags")}, anon.PropertyNames())
	assert.Equal(t, []qname.QName{tq("special")}, anon.MandatoryAspects)

	leaf, _ := v.Type(tq("leaf"))
	assert.Len(t, leaf.Properties, 3, "the published type is untouched")

	_, err = v.AnonymousType(tq("ghost"), nil)
	assert.ErrorIs(t, err, ErrTypeNotFound)

	_, err = v.AnonymousType(tq("leaf"), []qname.QName{tq("base")})
	assert.ErrorIs(t, err, ErrAspectNotFound)
}

func TestView_TenantOverlay(t *testing.T) {
	defaults := newBuild("", nil)
	_, err := defaults.PutModel(mustParse(t, dataTypesYAML))
	require.NoError(t, err)
	_, err = defaults.PutModel(mustParse(t, baseModelYAML))
	require.NoError(t, err)
	base := defaults.registry()

	acme := newBuild("acme", base)
	_, err = acme.PutModel(mustParse(t, `
name: t:model
imports:
  - uri: https://semdict.dev/model/datatype/1.0
    prefix: d
namespaces:
  - uri: urn:semdict:test
    prefix: t
types:
  - name: t:base
    title: Acme base
`))
	require.NoError(t, err)
	v := acme.View()

	m, err := v.Model(tq("model"))
	require.NoError(t, err)
	assert.Len(t, m.Types(), 1)

	cls, ok := v.Type(tq("base"))
	require.True(t, ok)
	assert.Equal(t, "Acme base", cls.Title)
	_, ok = v.Type(tq("leaf"))
	assert.False(t, ok, "the tenant model shadows the whole default model")

	inherited, err := v.IsModelInherited(tq("model"))
	require.NoError(t, err)
	assert.False(t, inherited)

	inherited, err = v.IsModelInherited(qname.New(datatypes.Namespace, datatypes.ModelName))
	require.NoError(t, err)
	assert.True(t, inherited)

	_, err = v.IsModelInherited(tq("ghost"))
	assert.ErrorIs(t, err, ErrModelNotFound)

	assert.Len(t, v.Models(), 2)
}
