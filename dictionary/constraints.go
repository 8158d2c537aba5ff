package dictionary

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/c360studio/semdict/qname"
)

// ErrConstraintViolation is returned by Evaluate when a value breaks a constraint.
var ErrConstraintViolation = errors.New("constraint violation")

// ConstraintType names a constraint implementation.
type ConstraintType string

// Constraint types.
const (
	ConstraintRegex  ConstraintType = "REGEX"
	ConstraintLength ConstraintType = "LENGTH"
	ConstraintMinMax ConstraintType = "MINMAX"
	ConstraintList   ConstraintType = "LIST"
)

// ConstraintDefinition is a resolved value constraint. Ref is set when the
// definition references a constraint declared elsewhere; Type and Parameters
// are then copied from the referenced definition.
type ConstraintDefinition struct {
	Name        qname.QName
	Model       qname.QName
	Ref         qname.QName
	Type        ConstraintType
	Title       string
	Description string
	Parameters  map[string]any

	rule      rule
	anonymous bool
}

// Evaluate checks value against the constraint. Slices are checked element by
// element; nil passes.
func (c *ConstraintDefinition) Evaluate(value any) error {
	if value == nil || c.rule == nil {
		return nil
	}
	switch vs := value.(type) {
	case []any:
		for _, v := range vs {
			if err := c.Evaluate(v); err != nil {
				return err
			}
		}
		return nil
	case []string:
		for _, v := range vs {
			if err := c.Evaluate(v); err != nil {
				return err
			}
		}
		return nil
	}
	if err := c.rule.evaluate(value); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConstraintViolation, c.Name, err)
	}
	return nil
}

type rule interface {
	evaluate(value any) error
}

func newRule(typ ConstraintType, params map[string]any) (rule, error) {
	switch ConstraintType(strings.ToUpper(string(typ))) {
	case ConstraintRegex:
		return newRegexRule(params)
	case ConstraintLength:
		return newLengthRule(params)
	case ConstraintMinMax:
		return newMinMaxRule(params)
	case ConstraintList:
		return newListRule(params)
	case "":
		return nil, errors.New("constraint type is required")
	default:
		return nil, fmt.Errorf("unknown constraint type %q", typ)
	}
}

type regexRule struct {
	re            *regexp.Regexp
	requiresMatch bool
}

func newRegexRule(params map[string]any) (rule, error) {
	expr, ok, err := paramString(params, "expression")
	if err != nil {
		return nil, err
	}
	if !ok || expr == "" {
		return nil, errors.New("expression is required")
	}
	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return nil, fmt.Errorf("expression: %w", err)
	}
	requiresMatch, _, err := paramBool(params, "requiresMatch", true)
	if err != nil {
		return nil, err
	}
	return &regexRule{re: re, requiresMatch: requiresMatch}, nil
}

func (r *regexRule) evaluate(value any) error {
	s := fmt.Sprint(value)
	if r.re.MatchString(s) != r.requiresMatch {
		if r.requiresMatch {
			return fmt.Errorf("%q does not match %s", s, r.re)
		}
		return fmt.Errorf("%q matches %s", s, r.re)
	}
	return nil
}

type lengthRule struct {
	min, max int
}

func newLengthRule(params map[string]any) (rule, error) {
	minLen, _, err := paramInt(params, "minLength", 0)
	if err != nil {
		return nil, err
	}
	maxLen, _, err := paramInt(params, "maxLength", math.MaxInt)
	if err != nil {
		return nil, err
	}
	if minLen < 0 || maxLen < minLen {
		return nil, fmt.Errorf("invalid length range [%d, %d]", minLen, maxLen)
	}
	return &lengthRule{min: minLen, max: maxLen}, nil
}

func (r *lengthRule) evaluate(value any) error {
	n := utf8.RuneCountInString(fmt.Sprint(value))
	if n < r.min || n > r.max {
		return fmt.Errorf("length %d outside [%d, %d]", n, r.min, r.max)
	}
	return nil
}

type minMaxRule struct {
	min, max float64
}

func newMinMaxRule(params map[string]any) (rule, error) {
	minVal, hasMin, err := paramFloat(params, "minValue", math.Inf(-1))
	if err != nil {
		return nil, err
	}
	maxVal, hasMax, err := paramFloat(params, "maxValue", math.Inf(1))
	if err != nil {
		return nil, err
	}
	if !hasMin && !hasMax {
		return nil, errors.New("minValue or maxValue is required")
	}
	if maxVal < minVal {
		return nil, fmt.Errorf("invalid value range [%g, %g]", minVal, maxVal)
	}
	return &minMaxRule{min: minVal, max: maxVal}, nil
}

func (r *minMaxRule) evaluate(value any) error {
	f, err := toFloat(value)
	if err != nil {
		return err
	}
	if f < r.min || f > r.max {
		return fmt.Errorf("value %g outside [%g, %g]", f, r.min, r.max)
	}
	return nil
}

type listRule struct {
	allowed       map[string]struct{}
	caseSensitive bool
}

func newListRule(params map[string]any) (rule, error) {
	values, err := paramStrings(params, "allowedValues")
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errors.New("allowedValues is required")
	}
	caseSensitive, _, err := paramBool(params, "caseSensitive", true)
	if err != nil {
		return nil, err
	}
	r := &listRule{allowed: make(map[string]struct{}, len(values)), caseSensitive: caseSensitive}
	for _, v := range values {
		if !caseSensitive {
			v = strings.ToLower(v)
		}
		r.allowed[v] = struct{}{}
	}
	return r, nil
}

func (r *listRule) evaluate(value any) error {
	s := fmt.Sprint(value)
	key := s
	if !r.caseSensitive {
		key = strings.ToLower(s)
	}
	if _, ok := r.allowed[key]; !ok {
		return fmt.Errorf("%q is not an allowed value", s)
	}
	return nil
}

func paramString(params map[string]any, key string) (string, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("%s: expected string, got %T", key, v)
	}
	return s, true, nil
}

func paramBool(params map[string]any, key string, def bool) (bool, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, true, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return def, false, fmt.Errorf("%s: %w", key, err)
		}
		return parsed, true, nil
	default:
		return def, false, fmt.Errorf("%s: expected bool, got %T", key, v)
	}
}

func paramInt(params map[string]any, key string, def int) (int, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, false, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return def, false, fmt.Errorf("%s: %w", key, err)
	}
	if f != math.Trunc(f) {
		return def, false, fmt.Errorf("%s: expected integer, got %g", key, f)
	}
	return int(f), true, nil
}

func paramFloat(params map[string]any, key string, def float64) (float64, bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, false, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return def, false, fmt.Errorf("%s: %w", key, err)
	}
	return f, true, nil
}

func paramStrings(params map[string]any, key string) ([]string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: expected list, got %T", key, v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
