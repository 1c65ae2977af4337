package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/query"
)

// compiled is a descriptor translated to SQL fragments. Identifiers come
// from the schema only; every value is a positional argument.
type compiled struct {
	where   string
	orderBy string
	window  string
	args    []any
}

func (c *compiled) arg(v any) string {
	c.args = append(c.args, v)
	return "$" + strconv.Itoa(len(c.args))
}

func compile(d query.Descriptor) compiled {
	var (
		c     compiled
		preds []string
		s     = d.Schema()
	)

	for _, cond := range d.Conditions() {
		f, _ := s.Lookup(cond.Field)
		col := pgx.Identifier{s.Column(cond.Field)}.Sanitize()
		preds = append(preds, c.predicate(f.Type, col, cond))
	}

	if search, ok := d.Search(); ok {
		pattern := c.arg("%" + escapeLike(search.Keyword) + "%")
		ors := make([]string, 0, len(search.Fields))
		for _, name := range search.Fields {
			f, _ := s.Lookup(name)
			col := pgx.Identifier{s.Column(name)}.Sanitize()
			if f.Type == query.Strings {
				ors = append(ors, "EXISTS (SELECT 1 FROM unnest("+col+") AS v WHERE v ILIKE "+pattern+")")
			} else {
				ors = append(ors, col+" ILIKE "+pattern)
			}
		}
		preds = append(preds, "("+strings.Join(ors, " OR ")+")")
	}

	if len(preds) > 0 {
		c.where = " WHERE " + strings.Join(preds, " AND ")
	}

	if keys := d.Sort(); len(keys) > 0 {
		parts := make([]string, len(keys))
		for i, k := range keys {
			col := pgx.Identifier{s.Column(k.Field)}.Sanitize()
			if k.Desc {
				parts[i] = col + " DESC NULLS LAST"
			} else {
				parts[i] = col + " ASC NULLS FIRST"
			}
		}
		c.orderBy = " ORDER BY " + strings.Join(parts, ", ")
	}

	if d.Paginated() {
		c.window = " LIMIT " + c.arg(d.Limit()) + " OFFSET " + c.arg(d.Skip())
	}
	return c
}

func (c *compiled) predicate(t query.Type, col string, cond query.Condition) string {
	if t == query.Strings {
		switch cond.Op {
		case query.OpIn:
			vals := make([]string, 0, len(cond.Values))
			for _, v := range cond.Values {
				s, _ := v.(string)
				vals = append(vals, s)
			}
			return col + " && " + c.arg(vals) + "::text[]"
		default:
			return c.arg(cond.Value()) + " = ANY(" + col + ")"
		}
	}

	switch cond.Op {
	case query.OpIn:
		ph := make([]string, len(cond.Values))
		for i, v := range cond.Values {
			ph[i] = c.arg(v)
		}
		return col + " IN (" + strings.Join(ph, ", ") + ")"
	case query.OpGt:
		return col + " > " + c.arg(cond.Value())
	case query.OpGte:
		return col + " >= " + c.arg(cond.Value())
	case query.OpLt:
		return col + " < " + c.arg(cond.Value())
	case query.OpLte:
		return col + " <= " + c.arg(cond.Value())
	default:
		return col + " = " + c.arg(cond.Value())
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// tableFinder runs compiled descriptors against one table.
type tableFinder[T any] struct {
	db      *DB
	table   string
	columns string
	scan    pgx.RowToFunc[T]
	doc     func(*T) query.Document
}

func (f tableFinder[T]) Find(ctx context.Context, d query.Descriptor) ([]query.Document, error) {
	c := compile(d)
	sql := "SELECT " + f.columns + " FROM " + f.table + c.where + c.orderBy + c.window

	rows, err := f.db.conn(ctx).Query(ctx, sql, c.args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", f.table)
	}
	items, err := pgx.CollectRows(rows, f.scan)
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s", f.table)
	}

	docs := make([]query.Document, len(items))
	for i := range items {
		docs[i] = d.Project(f.doc(&items[i]))
	}
	return docs, nil
}

func (f tableFinder[T]) Count(ctx context.Context, d query.Descriptor) (int64, error) {
	c := compile(d.Unpaginated())
	var n int64
	if err := f.db.conn(ctx).QueryRow(ctx, "SELECT count(*) FROM "+f.table+c.where, c.args...).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count %s", f.table)
	}
	return n, nil
}
