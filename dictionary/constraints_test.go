package dictionary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstraint_Evaluate(t *testing.T) {
	tests := []struct {
		name   string
		typ    ConstraintType
		params map[string]any
		pass   []any
		fail   []any
	}{
		{
			name:   "regex",
			typ:    ConstraintRegex,
			params: map[string]any{"expression": "[a-z]+"},
			pass:   []any{"abc", []string{"x", "yz"}, nil},
			fail:   []any{"ABC", "abc1", []any{"ok", "NO"}},
		},
		{
			name:   "regex must not match",
			typ:    ConstraintRegex,
			params: map[string]any{"expression": ".*[\"*\\\\>].*", "requiresMatch": false},
			pass:   []any{"plain name"},
			fail:   []any{"bad*name"},
		},
		{
			name:   "length",
			typ:    ConstraintLength,
			params: map[string]any{"minLength": 2, "maxLength": 4},
			pass:   []any{"ab", "abcd", "ünïc"},
			fail:   []any{"a", "abcde"},
		},
		{
			name:   "minmax",
			typ:    ConstraintMinMax,
			params: map[string]any{"minValue": 0, "maxValue": 10.5},
			pass:   []any{0, int64(10), 10.5, "3"},
			fail:   []any{-1, 11, "eleven"},
		},
		{
			name:   "list case sensitive",
			typ:    ConstraintList,
			params: map[string]any{"allowedValues": []any{"draft", "final"}},
			pass:   []any{"draft", []string{"draft", "final"}},
			fail:   []any{"Draft", "other"},
		},
		{
			name:   "list case insensitive",
			typ:    ConstraintList,
			params: map[string]any{"allowedValues": []any{"Draft"}, "caseSensitive": "false"},
			pass:   []any{"draft", "DRAFT"},
			fail:   []any{"final"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := newRule(tt.typ, tt.params)
			require.NoError(t, err)
			c := &ConstraintDefinition{Name: tq("c"), Type: tt.typ, Parameters: tt.params, rule: r}

			for _, v := range tt.pass {
				assert.NoError(t, c.Evaluate(v), "value %v", v)
			}
			for _, v := range tt.fail {
				assert.ErrorIs(t, c.Evaluate(v), ErrConstraintViolation, "value %v", v)
			}
		})
	}
}

func TestConstraint_InvalidParameters(t *testing.T) {
	tests := []struct {
		name   string
		typ    ConstraintType
		params map[string]any
	}{
		{"missing type", "", nil},
		{"unknown type", "SPELLCHECK", nil},
		{"bad regex", ConstraintRegex, map[string]any{"expression": "("}},
		{"inverted length", ConstraintLength, map[string]any{"minLength": 5, "maxLength": 1}},
		{"fractional length", ConstraintLength, map[string]any{"maxLength": 1.5}},
		{"empty minmax", ConstraintMinMax, map[string]any{}},
		{"inverted minmax", ConstraintMinMax, map[string]any{"minValue": 3, "maxValue": 1}},
		{"empty list", ConstraintList, map[string]any{"allowedValues": []any{}}},
		{"list not a list", ConstraintList, map[string]any{"allowedValues": "a,b"}},
		{"bool not a bool", ConstraintRegex, map[string]any{"expression": "a", "requiresMatch": 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newRule(tt.typ, tt.params)
			assert.Error(t, err)
		})
	}
}
