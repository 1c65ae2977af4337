package query

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
)

const (
	// DefaultLimit is used when Paginate is given a non-positive default.
	DefaultLimit = 20
	// MaxLimit caps the page size a client can request.
	MaxLimit = 100
	// MaxPage caps the page number so that the skip always fits in an
	// int32 OFFSET.
	MaxPage = 1_000_000
)

// SortKey orders results by one field.
type SortKey struct {
	Field string
	Desc  bool
}

// SearchSpec is a case-insensitive substring match of Keyword against any
// of Fields.
type SearchSpec struct {
	Keyword string
	Fields  []string
}

// Descriptor is the immutable result of a Builder. Backends read it through
// its accessors; every accessor returns a copy.
type Descriptor struct {
	schema     *Schema
	conditions []Condition
	search     *SearchSpec
	sort       []SortKey
	fields     []string
	page       int
	limit      int
}

func (d Descriptor) clone() Descriptor {
	c := d
	c.conditions = slices.Clone(d.conditions)
	c.sort = slices.Clone(d.sort)
	c.fields = slices.Clone(d.fields)
	if d.search != nil {
		s := *d.search
		s.Fields = slices.Clone(s.Fields)
		c.search = &s
	}
	return c
}

// Schema returns the schema the descriptor was built against.
func (d Descriptor) Schema() *Schema { return d.schema }

// Conditions returns the filter predicates, all of which must hold.
func (d Descriptor) Conditions() []Condition { return slices.Clone(d.conditions) }

// Search returns the keyword search, if any.
func (d Descriptor) Search() (SearchSpec, bool) {
	if d.search == nil {
		return SearchSpec{}, false
	}
	s := *d.search
	s.Fields = slices.Clone(s.Fields)
	return s, true
}

// Sort returns the ordering. Empty means storage order.
func (d Descriptor) Sort() []SortKey { return slices.Clone(d.sort) }

// Fields returns the projection. Empty means whole documents.
func (d Descriptor) Fields() []string { return slices.Clone(d.fields) }

// Paginated reports whether a result window applies.
func (d Descriptor) Paginated() bool { return d.limit > 0 }

// Page is the 1-based page number, or 0 when not paginated.
func (d Descriptor) Page() int { return d.page }

// Limit is the page size, or 0 when not paginated.
func (d Descriptor) Limit() int { return d.limit }

// Skip is the number of matching documents before the window.
func (d Descriptor) Skip() int {
	if d.limit == 0 || d.page < 1 {
		return 0
	}
	return (d.page - 1) * d.limit
}

// Unpaginated returns the descriptor used for counting: filters and search
// only, without window, ordering or projection.
func (d Descriptor) Unpaginated() Descriptor {
	c := d.clone()
	c.page, c.limit = 0, 0
	c.sort = nil
	c.fields = nil
	return c
}

// Metadata describes a page of results given the total matching documents.
func (d Descriptor) Metadata(total int64) Metadata {
	m := Metadata{
		Page:           d.page,
		Limit:          d.limit,
		TotalDocuments: total,
	}
	switch {
	case total == 0:
		m.TotalPages = 0
	case d.limit == 0:
		m.TotalPages = 1
	default:
		m.TotalPages = int((total + int64(d.limit) - 1) / int64(d.limit))
	}
	return m
}

// Builder assembles a Descriptor from request parameters. Stages may be
// called in any order; each returns a new Builder and leaves the receiver
// untouched. The first failing stage wins and later stages are no-ops.
type Builder struct {
	params url.Values
	desc   Descriptor
	err    error
}

// NewBuilder starts a pipeline over schema with the given parameters.
func NewBuilder(schema *Schema, params url.Values) Builder {
	if params == nil {
		params = url.Values{}
	}
	return Builder{
		params: params,
		desc:   Descriptor{schema: schema},
	}
}

func (b Builder) stage(fn func(d *Descriptor) error) Builder {
	if b.err != nil {
		return b
	}
	if b.desc.schema == nil {
		b.err = errors.New("query: nil schema")
		return b
	}
	d := b.desc.clone()
	if err := fn(&d); err != nil {
		b.err = err
		return b
	}
	b.desc = d
	return b
}

// Paginate reads page and limit. Missing, non-numeric or non-positive values
// fall back to page 1 and defaultLimit; limit is capped at MaxLimit and page
// at MaxPage.
func (b Builder) Paginate(defaultLimit int) Builder {
	if defaultLimit < 1 {
		defaultLimit = DefaultLimit
	}
	return b.stage(func(d *Descriptor) error {
		d.page = min(positiveInt(b.params.Get("page"), 1), MaxPage)
		d.limit = min(positiveInt(b.params.Get("limit"), defaultLimit), MaxLimit)
		return nil
	})
}

// Filter parses every non-reserved parameter into a typed condition.
func (b Builder) Filter() Builder {
	return b.stage(func(d *Descriptor) error {
		conds, err := parseFilters(d.schema, b.params)
		if err != nil {
			return err
		}
		d.conditions = append(d.conditions, conds...)
		return nil
	})
}

// Where adds a condition that does not come from the client, such as
// restricting orders to their owner.
func (b Builder) Where(field string, op Op, value any) Builder {
	return b.stage(func(d *Descriptor) error {
		f, ok := d.schema.Lookup(field)
		if !ok {
			return errors.Errorf("where: unknown field %q", field)
		}
		if op != OpEq && !f.Type.ordered() {
			return errors.Errorf("where: operator %q is not supported for %s field %q", op, f.Type, field)
		}
		v, err := normalizeValue(f.Type, value)
		if err != nil {
			return errors.Wrapf(err, "where %q", field)
		}
		d.conditions = append(d.conditions, Condition{Field: field, Op: op, Values: []any{v}})
		return nil
	})
}

// Sort reads the comma separated sort parameter, "-" meaning descending.
// Without it the schema default applies. The id field is appended as a
// tie-breaker so that pages do not overlap.
func (b Builder) Sort() Builder {
	return b.stage(func(d *Descriptor) error {
		raw := b.params.Get("sort")
		if strings.TrimSpace(raw) == "" {
			raw = d.schema.DefaultSort
		}
		keys, err := parseSort(d.schema, raw)
		if err != nil {
			return err
		}
		d.sort = keys
		return nil
	})
}

func parseSort(s *Schema, raw string) ([]SortKey, error) {
	var keys []SortKey
	seen := make(map[string]struct{})
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		desc := strings.HasPrefix(tok, "-")
		name := strings.TrimLeft(tok, "-+")
		if _, ok := s.Lookup(name); !ok {
			return nil, &ParseError{Param: "sort", Reason: "unknown field " + strconv.Quote(name)}
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		keys = append(keys, SortKey{Field: name, Desc: desc})
	}
	if len(keys) == 0 {
		return nil, nil
	}
	if _, ok := seen[IDField]; !ok {
		if _, declared := s.Lookup(IDField); declared {
			keys = append(keys, SortKey{Field: IDField})
		}
	}
	return keys, nil
}

// Search applies the keyword parameter to fields, or to the schema's search
// fields when none are given. Without a keyword it does nothing.
func (b Builder) Search(fields ...string) Builder {
	return b.stage(func(d *Descriptor) error {
		keyword := strings.TrimSpace(b.params.Get("keyword"))
		if len(fields) == 0 {
			fields = d.schema.Search
		}
		if keyword == "" || len(fields) == 0 {
			return nil
		}
		for _, name := range fields {
			f, ok := d.schema.Lookup(name)
			if !ok || !f.Type.textual() {
				return errors.Errorf("search: field %q is not searchable", name)
			}
		}
		d.search = &SearchSpec{Keyword: keyword, Fields: slices.Clone(fields)}
		return nil
	})
}

// Fields reads the comma separated projection. The id field is always kept.
func (b Builder) Fields() Builder {
	return b.stage(func(d *Descriptor) error {
		raw := strings.TrimSpace(b.params.Get("fields"))
		if raw == "" {
			return nil
		}
		out := []string{IDField}
		for _, tok := range strings.Split(raw, ",") {
			name := strings.TrimSpace(tok)
			if name == "" || slices.Contains(out, name) {
				continue
			}
			if _, ok := d.schema.Lookup(name); !ok {
				return &ParseError{Param: "fields", Reason: "unknown field " + strconv.Quote(name)}
			}
			out = append(out, name)
		}
		d.fields = out
		return nil
	})
}

// Build returns the descriptor or the first stage error.
func (b Builder) Build() (Descriptor, error) {
	if b.err != nil {
		return Descriptor{}, b.err
	}
	if b.desc.schema == nil {
		return Descriptor{}, errors.New("query: nil schema")
	}
	return b.desc.clone(), nil
}

// Standard runs every client-facing stage in the usual order.
func Standard(schema *Schema, params url.Values, defaultLimit int) Builder {
	return NewBuilder(schema, params).
		Filter().
		Search().
		Sort().
		Fields().
		Paginate(defaultLimit)
}

func positiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
