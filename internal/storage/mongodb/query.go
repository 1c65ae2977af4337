package mongodb

import (
	"context"
	"regexp"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/storefront/internal/query"
)

// key maps a schema field to its document key.
func key(field string) string {
	if field == query.IDField {
		return "_id"
	}
	return field
}

func bsonValue(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return toDecimal128(d)
	}
	return v
}

var comparison = map[query.Op]string{
	query.OpGt:  "$gt",
	query.OpGte: "$gte",
	query.OpLt:  "$lt",
	query.OpLte: "$lte",
}

// compileFilter builds the match document of d. Array fields match a
// scalar when any element equals it, which is the set semantics of the
// Strings type.
func compileFilter(d query.Descriptor) bson.D {
	var and bson.A
	for _, c := range d.Conditions() {
		k := key(c.Field)
		switch c.Op {
		case query.OpEq:
			and = append(and, bson.D{{Key: k, Value: bsonValue(c.Value())}})
		case query.OpIn:
			vals := make(bson.A, len(c.Values))
			for i, v := range c.Values {
				vals[i] = bsonValue(v)
			}
			and = append(and, bson.D{{Key: k, Value: bson.D{{Key: "$in", Value: vals}}}})
		default:
			and = append(and, bson.D{{Key: k, Value: bson.D{{Key: comparison[c.Op], Value: bsonValue(c.Value())}}}})
		}
	}

	if s, ok := d.Search(); ok {
		pattern := regexp.QuoteMeta(s.Keyword)
		or := make(bson.A, 0, len(s.Fields))
		for _, f := range s.Fields {
			or = append(or, bson.D{{Key: key(f), Value: bson.D{
				{Key: "$regex", Value: pattern},
				{Key: "$options", Value: "i"},
			}}})
		}
		and = append(and, bson.D{{Key: "$or", Value: or}})
	}

	if len(and) == 0 {
		return bson.D{}
	}
	return bson.D{{Key: "$and", Value: and}}
}

func compileFind(d query.Descriptor) *options.FindOptions {
	opts := options.Find()
	if keys := d.Sort(); len(keys) > 0 {
		sort := make(bson.D, len(keys))
		for i, k := range keys {
			dir := 1
			if k.Desc {
				dir = -1
			}
			sort[i] = bson.E{Key: key(k.Field), Value: dir}
		}
		opts.SetSort(sort)
	}
	if d.Paginated() {
		opts.SetSkip(int64(d.Skip())).SetLimit(int64(d.Limit()))
	}
	if fields := d.Fields(); len(fields) > 0 {
		proj := make(bson.D, len(fields))
		for i, f := range fields {
			proj[i] = bson.E{Key: key(f), Value: 1}
		}
		opts.SetProjection(proj)
	}
	return opts
}

// collectionFinder runs descriptors against one collection whose documents
// decode into D and convert to the domain type T.
type collectionFinder[D, T any] struct {
	coll   *mongo.Collection
	decode func(D) T
	doc    func(*T) query.Document
}

func (f collectionFinder[D, T]) Find(ctx context.Context, d query.Descriptor) ([]query.Document, error) {
	cur, err := f.coll.Find(ctx, compileFilter(d), compileFind(d))
	if err != nil {
		return nil, errors.Wrapf(err, "find %s", f.coll.Name())
	}
	var raw []D
	if err := cur.All(ctx, &raw); err != nil {
		return nil, errors.Wrapf(err, "decode %s", f.coll.Name())
	}
	docs := make([]query.Document, len(raw))
	for i := range raw {
		v := f.decode(raw[i])
		docs[i] = d.Project(f.doc(&v))
	}
	return docs, nil
}

func (f collectionFinder[D, T]) Count(ctx context.Context, d query.Descriptor) (int64, error) {
	n, err := f.coll.CountDocuments(ctx, compileFilter(d.Unpaginated()))
	if err != nil {
		return 0, errors.Wrapf(err, "count %s", f.coll.Name())
	}
	return n, nil
}
