package dictionary

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileBase(t *testing.T, doc string) *CompiledModel {
	t.Helper()
	m, err := compileTest(t, doc)
	require.NoError(t, err)
	return m
}

func diffOf(diffs []ModelDiff, kind ElementKind, name string) (ModelDiff, bool) {
	for _, d := range diffs {
		if d.Kind == kind && d.Name == tq(name) {
			return d, true
		}
	}
	return ModelDiff{}, false
}

func TestDiff_SameModelTwiceIsUnchanged(t *testing.T) {
	a := compileBase(t, baseModelYAML)
	b := compileBase(t, baseModelYAML)

	diffs := Diff(a, b)
	require.NotEmpty(t, diffs)
	for _, d := range diffs {
		assert.Equal(t, DiffUnchanged, d.Diff, d.String())
	}
	assert.Empty(t, Breaking(diffs))
}

func TestDiff_NilSides(t *testing.T) {
	m := compileBase(t, baseModelYAML)

	for _, d := range Diff(nil, m) {
		assert.Equal(t, DiffCreated, d.Diff, d.String())
	}

	removed := Diff(m, nil)
	for _, d := range removed {
		assert.Equal(t, DiffDeleted, d.Diff, d.String())
	}
	// Three types and two aspects.
	assert.Len(t, Breaking(removed), 5)
	assert.Empty(t, Diff(nil, nil))
}

func TestDiff_Classification(t *testing.T) {
	prev := compileBase(t, baseModelYAML)

	tests := []struct {
		name     string
		edit     func(string) string
		kind     ElementKind
		element  string
		want     DiffKind
		breaking bool
	}{
		{
			name:    "title change",
			edit:    func(s string) string { return strings.Replace(s, "title: Base", "title: Renamed", 1) },
			kind:    ElementType,
			element: "base",
			want:    DiffUnchanged,
		},
		{
			name: "added property",
			edit: func(s string) string {
				return strings.Replace(s, "  - name: t:mid\n", "  - name: t:mid\n    properties:\n      - name: t:added\n        type: d:text\n", 1)
			},
			kind:    ElementType,
			element: "mid",
			want:    DiffUnchanged,
		},
		{
			name: "added type",
			edit: func(s string) string {
				return strings.Replace(s, "aspects:\n", "  - name: t:extra\naspects:\n", 1)
			},
			kind:    ElementType,
			element: "extra",
			want:    DiffCreated,
		},
		{
			name: "removed type",
			edit: func(s string) string {
				return strings.Replace(s, "  - name: t:special\n    parent: t:tagged\n", "", 1)
			},
			kind:     ElementAspect,
			element:  "special",
			want:     DiffDeleted,
			breaking: true,
		},
		{
			name:     "changed parent",
			edit:     func(s string) string { return strings.Replace(s, "parent: t:mid", "parent: t:base", 1) },
			kind:     ElementType,
			element:  "leaf",
			want:     DiffUpdated,
			breaking: true,
		},
		{
			name:     "property made mandatory",
			edit:     func(s string) string { return strings.Replace(s, "        type: d:int\n", "        type: d:int\n        mandatory: true\n", 1) },
			kind:     ElementType,
			element:  "base",
			want:     DiffUpdated,
			breaking: true,
		},
		{
			name:    "property diff recorded",
			edit:    func(s string) string { return strings.Replace(s, "        type: d:int\n", "        type: d:int\n        multiple: true\n", 1) },
			kind:    ElementProperty,
			element: "size",
			want:    DiffUpdated,
		},
		{
			name: "anonymous constraint renumbered",
			edit: func(s string) string {
				return strings.Replace(s, "        type: d:int\n", "        type: d:int\n        constraints:\n          - type: MINMAX\n            parameters: {minValue: 0}\n", 1)
			},
			kind:    ElementType,
			element: "leaf",
			want:    DiffUnchanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := compileBase(t, tt.edit(baseModelYAML))
			diffs := Diff(prev, next)

			d, ok := diffOf(diffs, tt.kind, tt.element)
			require.True(t, ok, "no diff for %s %s in %v", tt.kind, tt.element, diffs)
			assert.Equal(t, tt.want, d.Diff)
			assert.Equal(t, tt.breaking, d.Breaking())
		})
	}
}
