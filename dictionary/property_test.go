package dictionary

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/c360studio/semdict/namespace"
	"github.com/c360studio/semdict/qname"
	"github.com/c360studio/semdict/schema"
	"github.com/c360studio/semdict/vocabulary/datatypes"
)

// hierarchyModel builds a model of n types where type i has parent
// parents[i], or no parent when parents[i] is negative.
func hierarchyModel(parents []int) *schema.Model {
	m := &schema.Model{
		Name:       "t:generated",
		Imports:    []namespace.Namespace{{URI: datatypes.Namespace, Prefix: datatypes.Prefix}},
		Namespaces: []namespace.Namespace{{URI: testNS, Prefix: "t"}},
	}
	for i, p := range parents {
		cls := schema.Class{
			Name: fmt.Sprintf("t:c%d", i),
			Properties: []schema.Property{
				{Name: fmt.Sprintf("t:p%d", i), Type: "d:text"},
			},
		}
		if p >= 0 {
			cls.Parent = fmt.Sprintf("t:c%d", p)
		}
		m.Types = append(m.Types, cls)
	}
	return m
}

func drawParents(t *rapid.T) []int {
	n := rapid.IntRange(1, 12).Draw(t, "n")
	parents := make([]int, n)
	parents[0] = -1
	for i := 1; i < n; i++ {
		parents[i] = rapid.IntRange(-1, i-1).Draw(t, fmt.Sprintf("parent%d", i))
	}
	return parents
}

func isAncestor(parents []int, a, b int) bool {
	for cur := a; cur >= 0; cur = parents[cur] {
		if cur == b {
			return true
		}
	}
	return false
}

func TestProperty_Hierarchy(t *testing.T) {
	base := buildView(t, dataTypesYAML).own

	rapid.Check(t, func(t *rapid.T) {
		parents := drawParents(t)
		c, err := compileCandidate(base, nil, hierarchyModel(parents))
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		reg, err := applyPut(base, nil, c)
		if err != nil {
			t.Fatalf("put: %v", err)
		}
		v := NewView(reg, nil)

		name := func(i int) qname.QName { return tq(fmt.Sprintf("c%d", i)) }
		for a := range parents {
			cls, ok := v.Type(name(a))
			if !ok {
				t.Fatalf("type c%d missing", a)
			}
			var inherited int
			for b := range parents {
				want := isAncestor(parents, a, b)
				if got := v.IsSubClass(name(a), name(b)); got != want {
					t.Fatalf("IsSubClass(c%d, c%d) = %v, want %v", a, b, got, want)
				}
				if want {
					inherited++
				}
			}
			if len(cls.Properties) != inherited {
				t.Fatalf("c%d has %d properties, want %d", a, len(cls.Properties), inherited)
			}

			direct := map[qname.QName]bool{}
			for _, n := range v.SubTypes(name(a), false) {
				direct[n] = true
			}
			all := map[qname.QName]bool{}
			for _, n := range v.SubTypes(name(a), true) {
				all[n] = true
			}
			for b := range parents {
				if direct[name(b)] != (parents[b] == a) {
					t.Fatalf("SubTypes(c%d, false) disagrees on c%d", a, b)
				}
				if all[name(b)] != isAncestor(parents, b, a) {
					t.Fatalf("SubTypes(c%d, true) disagrees on c%d", a, b)
				}
			}
		}
	})
}

func TestProperty_DiffOfSameModelIsUnchanged(t *testing.T) {
	base := buildView(t, dataTypesYAML).own

	rapid.Check(t, func(t *rapid.T) {
		raw := hierarchyModel(drawParents(t))
		a, err := compileCandidate(base, nil, raw)
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		b, err := compileCandidate(base, nil, raw)
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		for _, d := range Diff(a.model, b.model) {
			if d.Diff != DiffUnchanged {
				t.Fatalf("unexpected diff %s", d)
			}
		}
	})
}
