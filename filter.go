package fabric

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zoobzio/vecna"
)

// wrapInvalidQuery tags a filter validation error with ErrInvalidQuery.
func wrapInvalidQuery(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
}

// evalFilter evaluates a vecna filter node against component metadata.
func evalFilter(f *vecna.Filter, md Metadata) (bool, error) {
	switch f.Op() {
	case vecna.And:
		for _, child := range f.Children() {
			ok, err := evalFilter(child, md)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case vecna.Or:
		for _, child := range f.Children() {
			ok, err := evalFilter(child, md)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case vecna.Not:
		children := f.Children()
		if len(children) != 1 {
			return false, fmt.Errorf("%w: NOT requires exactly one child", ErrInvalidQuery)
		}
		ok, err := evalFilter(children[0], md)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return evalCondition(f, md)
	}
}

// evalCondition evaluates a field condition against metadata. Absent fields
// fail every condition except Ne and Nin, which they satisfy.
func evalCondition(f *vecna.Filter, md Metadata) (bool, error) {
	value, present := md.value(f.Field())
	want := f.Value()

	switch f.Op() {
	case vecna.Eq:
		return present && valuesEqual(value, want), nil
	case vecna.Ne:
		return !present || !valuesEqual(value, want), nil
	case vecna.Gt, vecna.Gte, vecna.Lt, vecna.Lte:
		if !present {
			return false, nil
		}
		cmp, err := compareValues(value, want)
		if err != nil {
			return false, err
		}
		switch f.Op() {
		case vecna.Gt:
			return cmp > 0, nil
		case vecna.Gte:
			return cmp >= 0, nil
		case vecna.Lt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case vecna.In:
		slice, ok := want.([]any)
		if !ok {
			return false, fmt.Errorf("%w: In requires slice value", ErrInvalidQuery)
		}
		if !present {
			return false, nil
		}
		for _, candidate := range slice {
			if valuesEqual(value, candidate) {
				return true, nil
			}
		}
		return false, nil
	case vecna.Nin:
		slice, ok := want.([]any)
		if !ok {
			return false, fmt.Errorf("%w: Nin requires slice value", ErrInvalidQuery)
		}
		if !present {
			return true, nil
		}
		for _, candidate := range slice {
			if valuesEqual(value, candidate) {
				return false, nil
			}
		}
		return true, nil
	case vecna.Like:
		pattern, ok := want.(string)
		if !ok {
			return false, fmt.Errorf("%w: Like requires string pattern", ErrInvalidQuery)
		}
		s, ok := value.(string)
		if !present || !ok {
			return false, nil
		}
		return matchLike(s, pattern), nil
	case vecna.Contains:
		if !present {
			return false, nil
		}
		return sliceContains(value, want), nil
	default:
		return false, fmt.Errorf("%w: %s", ErrOperatorNotSupported, f.Op())
	}
}

// valuesEqual compares two JSON-compatible values, coercing numeric types
// so ints written by callers match float64s read back from snapshots.
func valuesEqual(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		fb, okb := asFloat(b)
		return okb && fa == fb
	}
	return a == b
}

// compareValues orders two values: numerics numerically, strings
// lexically. Anything else is not orderable.
func compareValues(a, b any) (int, error) {
	if fa, ok := asFloat(a); ok {
		fb, okb := asFloat(b)
		if !okb {
			return 0, fmt.Errorf("%w: comparing number to %T", ErrInvalidQuery, b)
		}
		switch {
		case fa < fb:
			return -1, nil
		case fa > fb:
			return 1, nil
		default:
			return 0, nil
		}
	}
	sa, oka := a.(string)
	sb, okb := b.(string)
	if oka && okb {
		return strings.Compare(sa, sb), nil
	}
	return 0, fmt.Errorf("%w: ordering %T", ErrOperatorNotSupported, a)
}

// asFloat coerces the numeric types that appear in metadata maps.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// matchLike evaluates a SQL-style pattern: % matches any run, _ one rune.
func matchLike(s, pattern string) bool {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// sliceContains reports whether a slice-valued field contains want.
func sliceContains(value, want any) bool {
	switch vs := value.(type) {
	case []any:
		for _, v := range vs {
			if valuesEqual(v, want) {
				return true
			}
		}
	case []string:
		for _, v := range vs {
			if valuesEqual(v, want) {
				return true
			}
		}
	}
	return false
}
