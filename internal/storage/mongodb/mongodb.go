// Package mongodb implements the storage backend on MongoDB. Checkout runs
// in a multi-document transaction, so the server must be a replica set.
package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/order"
)

const (
	colProducts      = "products"
	colCategories    = "categories"
	colSubcategories = "subcategories"
	colCarts         = "carts"
	colCoupons       = "coupons"
	colOrders        = "orders"
	colUsers         = "users"
	colReviews       = "reviews"
	colAPIKeys       = "api_keys"
)

// Connect opens a client and verifies the primary is reachable.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, errors.Wrap(err, "ping")
	}
	return client, nil
}

var _ order.Transactor = (*DB)(nil)

// DB hands out repositories over one database.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
}

// New wraps database name of client.
func New(client *mongo.Client, name string) *DB {
	return &DB{client: client, db: client.Database(name)}
}

// Ping checks the primary.
func (d *DB) Ping(ctx context.Context) error {
	return d.client.Ping(ctx, readpref.Primary())
}

func (d *DB) coll(name string) *mongo.Collection { return d.db.Collection(name) }

// EnsureIndexes creates the unique indexes the repositories rely on.
func (d *DB) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colCarts: {{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		colUsers: {{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		colReviews: {{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "productId", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		colAPIKeys: {{
			Keys:    bson.D{{Key: "keyHash", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		colOrders: {{
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
		}},
		colProducts: {
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "slug", Value: 1}, {Key: "createdAt", Value: 1}}},
			{Keys: bson.D{{Key: "categoryId", Value: 1}}},
			{Keys: bson.D{{Key: "subcategoryId", Value: 1}}},
		},
		colCategories: {{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		colSubcategories: {
			{
				Keys:    bson.D{{Key: "slug", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "categoryId", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := d.coll(name).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "create %s indexes", name)
		}
	}
	return nil
}

// WithinTx runs fn in a snapshot transaction with majority writes. Nested
// calls join the outer transaction.
func (d *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := d.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "start session")
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	var fnErr error
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		fnErr = fn(sc)
		return nil, fnErr
	}, opts)
	switch {
	case err == nil:
		return nil
	case fnErr != nil && errors.Is(err, fnErr):
		return classifyWrite(err)
	case hasLabel(err, "UnknownTransactionCommitResult"):
		return apperr.Wrap(apperr.KindInconsistent, err, "commit outcome unknown")
	default:
		return classifyWrite(errors.Wrap(err, "transaction"))
	}
}

func hasLabel(err error, label string) bool {
	var le mongo.LabeledError
	return errors.As(err, &le) && le.HasErrorLabel(label)
}

// classifyWrite maps transaction write conflicts to a retryable conflict.
func classifyWrite(err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	if hasLabel(err, "TransientTransactionError") {
		return apperr.Wrap(apperr.KindConflict, err, "concurrent update, please retry")
	}
	return err
}

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.NewDecimal128(0, 0)
	}
	return v
}

func fromDecimal128(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func toNullDecimal128(d decimal.NullDecimal) *primitive.Decimal128 {
	if !d.Valid {
		return nil
	}
	v := toDecimal128(d.Decimal)
	return &v
}

func fromNullDecimal128(v *primitive.Decimal128) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(fromDecimal128(*v))
}

// utc normalizes a decoded time; the driver decodes BSON dates as local.
func utc(t time.Time) time.Time { return t.UTC() }

// ref stores an empty id as a missing field.
func ref(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func deref(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
