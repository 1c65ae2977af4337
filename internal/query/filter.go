package query

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
)

// Op is a filter operator.
type Op string

const (
	OpEq  Op = "eq"
	OpIn  Op = "in"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

// bracketOps is the complete set of tokens accepted inside "field[...]".
var bracketOps = map[string]Op{
	"gt":  OpGt,
	"gte": OpGte,
	"lt":  OpLt,
	"lte": OpLte,
}

// reservedParams are consumed by other stages and never become filters.
var reservedParams = map[string]struct{}{
	"page":    {},
	"sort":    {},
	"fields":  {},
	"keyword": {},
	"limit":   {},
}

var filterKey = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]*)(?:\[([A-Za-z]+)\])?$`)

// Condition is a single typed predicate. Values holds exactly one value for
// every operator except OpIn.
type Condition struct {
	Field  string
	Op     Op
	Values []any
}

// Value returns the first value of the condition.
func (c Condition) Value() any {
	if len(c.Values) == 0 {
		return nil
	}
	return c.Values[0]
}

// ParseError reports an unusable query parameter.
type ParseError struct {
	Param  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("query parameter %q: %s", e.Param, e.Reason)
}

// Kind implements apperr.Classified.
func (e *ParseError) Kind() apperr.Kind { return apperr.KindValidation }

// parseFilters converts the non-reserved parameters into conditions. Keys are
// visited in sorted order so the resulting descriptor is deterministic.
func parseFilters(s *Schema, params url.Values) ([]Condition, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		if _, ok := reservedParams[k]; ok {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var conds []Condition
	for _, key := range keys {
		m := filterKey.FindStringSubmatch(key)
		if m == nil {
			return nil, &ParseError{Param: key, Reason: "malformed filter"}
		}
		name, token := m[1], m[2]

		field, ok := s.Lookup(name)
		if !ok {
			return nil, &ParseError{Param: key, Reason: "unknown field"}
		}

		raw := params[key]
		if token == "" {
			c, err := equality(key, name, field, raw)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
			continue
		}

		op, ok := bracketOps[token]
		if !ok {
			return nil, &ParseError{Param: key, Reason: fmt.Sprintf("unsupported operator %q", token)}
		}
		if !field.Type.ordered() {
			return nil, &ParseError{Param: key, Reason: fmt.Sprintf("operator %q is not supported for %s fields", token, field.Type)}
		}
		for _, r := range raw {
			v, err := parseValue(field.Type, r)
			if err != nil {
				return nil, &ParseError{Param: key, Reason: err.Error()}
			}
			conds = append(conds, Condition{Field: name, Op: op, Values: []any{v}})
		}
	}
	return conds, nil
}

func equality(key, name string, field Field, raw []string) (Condition, error) {
	values := make([]any, 0, len(raw))
	for _, r := range raw {
		v, err := parseValue(field.Type, r)
		if err != nil {
			return Condition{}, &ParseError{Param: key, Reason: err.Error()}
		}
		values = append(values, v)
	}
	if len(values) == 1 {
		return Condition{Field: name, Op: OpEq, Values: values}, nil
	}
	return Condition{Field: name, Op: OpIn, Values: values}, nil
}

// parseValue parses a raw parameter according to the field type.
func parseValue(t Type, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch t {
	case String, Strings:
		return raw, nil
	case Int:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected an integer, got %q", raw)
		}
		return v, nil
	case Money:
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", raw)
		}
		return v, nil
	case Bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected a boolean, got %q", raw)
		}
		return v, nil
	case Time:
		if v, err := time.Parse(time.RFC3339, raw); err == nil {
			return v, nil
		}
		v, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return nil, fmt.Errorf("expected an RFC 3339 timestamp or a date, got %q", raw)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("field type %d is not filterable", t)
	}
}

// normalizeValue checks a programmatic value against the field type and
// converts it to the representation parseValue produces.
func normalizeValue(t Type, v any) (any, error) {
	switch t {
	case String, Strings:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Int:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		}
	case Money:
		if d, ok := v.(decimal.Decimal); ok {
			return d, nil
		}
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case Time:
		if tm, ok := v.(time.Time); ok {
			return tm, nil
		}
	}
	return nil, fmt.Errorf("value %v (%T) does not match %s field", v, v, t)
}
