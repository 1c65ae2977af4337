package query

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Evaluate applies d to an in-memory collection. It returns the selected
// window (ordered and projected) and the number of matching documents before
// the window was applied. docs is not modified.
func Evaluate(docs []Document, d Descriptor) ([]Document, int64) {
	matched := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if Matches(doc, d) {
			matched = append(matched, doc)
		}
	}
	total := int64(len(matched))

	if len(d.sort) > 0 {
		slices.SortStableFunc(matched, func(a, b Document) int {
			for _, k := range d.sort {
				f, _ := d.schema.Lookup(k.Field)
				c := compareValues(f.Type, a[k.Field], b[k.Field])
				if c == 0 {
					continue
				}
				if k.Desc {
					return -c
				}
				return c
			}
			return 0
		})
	}

	if d.Paginated() {
		skip := d.Skip()
		if skip >= len(matched) {
			matched = matched[:0]
		} else {
			matched = matched[skip:min(skip+d.limit, len(matched))]
		}
	}

	out := make([]Document, len(matched))
	for i, doc := range matched {
		out[i] = project(doc, d.fields)
	}
	return out, total
}

// Matches reports whether doc satisfies every condition and the search of d.
func Matches(doc Document, d Descriptor) bool {
	for _, c := range d.conditions {
		f, _ := d.schema.Lookup(c.Field)
		if !matchCondition(f.Type, doc[c.Field], c) {
			return false
		}
	}
	if d.search != nil && !matchSearch(doc, d.search) {
		return false
	}
	return true
}

func matchCondition(t Type, have any, c Condition) bool {
	if have == nil {
		return false
	}
	switch c.Op {
	case OpEq:
		return equalValue(t, have, c.Value())
	case OpIn:
		for _, v := range c.Values {
			if equalValue(t, have, v) {
				return true
			}
		}
		return false
	case OpGt:
		return compareValues(t, have, c.Value()) > 0
	case OpGte:
		return compareValues(t, have, c.Value()) >= 0
	case OpLt:
		return compareValues(t, have, c.Value()) < 0
	case OpLte:
		return compareValues(t, have, c.Value()) <= 0
	default:
		return false
	}
}

func equalValue(t Type, have, want any) bool {
	if t == Strings {
		set, _ := have.([]string)
		s, _ := want.(string)
		return slices.Contains(set, s)
	}
	return compareValues(t, have, want) == 0
}

// compareValues orders two values of type t. Missing values sort first.
func compareValues(t Type, a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch t {
	case Int:
		return cmp.Compare(toInt64(a), toInt64(b))
	case Money:
		return toDecimal(a).Cmp(toDecimal(b))
	case Time:
		at, _ := a.(time.Time)
		bt, _ := b.(time.Time)
		return at.Compare(bt)
	case Bool:
		ab, _ := a.(bool)
		bb, _ := b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case Strings:
		as, _ := a.([]string)
		bs, _ := b.([]string)
		return slices.Compare(as, bs)
	default:
		as, _ := a.(string)
		bs, _ := b.(string)
		return strings.Compare(as, bs)
	}
}

func matchSearch(doc Document, s *SearchSpec) bool {
	needle := strings.ToLower(s.Keyword)
	for _, name := range s.Fields {
		switch v := doc[name].(type) {
		case string:
			if strings.Contains(strings.ToLower(v), needle) {
				return true
			}
		case []string:
			for _, e := range v {
				if strings.Contains(strings.ToLower(e), needle) {
					return true
				}
			}
		}
	}
	return false
}

// Project keeps only the fields selected by d. Without a selection doc is
// copied as is.
func (d Descriptor) Project(doc Document) Document {
	return project(doc, d.fields)
}

func project(doc Document, fields []string) Document {
	out := make(Document, len(doc))
	if len(fields) == 0 {
		for k, v := range doc {
			out[k] = v
		}
		return out
	}
	for _, name := range fields {
		if v, ok := doc[name]; ok {
			out[name] = v
		}
	}
	return out
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}

func toDecimal(v any) decimal.Decimal {
	switch n := v.(type) {
	case decimal.Decimal:
		return n
	case decimal.NullDecimal:
		return n.Decimal
	default:
		return decimal.Zero
	}
}
