package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/storefront/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// couponDoc is keyed by its code. The code is repeated as a plain field so
// the schema's code field filters and sorts like any other.
type couponDoc struct {
	Code         string               `bson:"_id"`
	CodeField    string               `bson:"code"`
	DiscountType string               `bson:"discountType"`
	Value        primitive.Decimal128 `bson:"value"`
	Description  string               `bson:"description"`
	ValidFrom    *time.Time           `bson:"validFrom"`
	ExpiresAt    time.Time            `bson:"expiresAt"`
	CreatedAt    time.Time            `bson:"createdAt"`
	UpdatedAt    time.Time            `bson:"updatedAt"`
}

func newCouponDoc(c *coupon.Coupon) couponDoc {
	return couponDoc{
		Code:         c.Code,
		CodeField:    c.Code,
		DiscountType: string(c.DiscountType),
		Value:        toDecimal128(c.Value),
		Description:  c.Description,
		ValidFrom:    c.ValidFrom,
		ExpiresAt:    c.ExpiresAt,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func (d couponDoc) coupon() coupon.Coupon {
	return coupon.Coupon{
		Code:         d.Code,
		DiscountType: coupon.DiscountType(d.DiscountType),
		Value:        fromDecimal128(d.Value),
		Description:  d.Description,
		ValidFrom:    utcPtr(d.ValidFrom),
		ExpiresAt:    utc(d.ExpiresAt),
		CreatedAt:    utc(d.CreatedAt),
		UpdatedAt:    utc(d.UpdatedAt),
	}
}

// CouponRepository implements coupon.Repository backed by MongoDB.
type CouponRepository struct {
	coll *mongo.Collection
}

// Coupons returns the coupon repository.
func (d *DB) Coupons() *CouponRepository { return &CouponRepository{coll: d.coll(colCoupons)} }

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var doc couponDoc
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: code}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	c := doc.coupon()
	return &c, nil
}

func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	if _, err := r.coll.InsertOne(ctx, newCouponDoc(c)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return coupon.ErrAlreadyExists
		}
		return errors.Wrapf(err, "create coupon %q", c.Code)
	}
	return nil
}

// Update replaces the terms of a coupon. The code and creation time are
// kept.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	doc := newCouponDoc(c)
	res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: c.Code}}, bson.D{{Key: "$set", Value: bson.D{
		{Key: "discountType", Value: doc.DiscountType},
		{Key: "value", Value: doc.Value},
		{Key: "description", Value: doc.Description},
		{Key: "validFrom", Value: doc.ValidFrom},
		{Key: "expiresAt", Value: doc.ExpiresAt},
		{Key: "updatedAt", Value: doc.UpdatedAt},
	}}})
	if err != nil {
		return errors.Wrapf(err, "update coupon %q", c.Code)
	}
	if res.MatchedCount == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// CreateBatch inserts coupons, skipping codes that already exist. It
// returns the number of documents inserted.
func (r *CouponRepository) CreateBatch(ctx context.Context, coupons []coupon.Coupon) (int64, error) {
	if len(coupons) == 0 {
		return 0, nil
	}
	models := make([]mongo.WriteModel, len(coupons))
	for i := range coupons {
		doc := newCouponDoc(&coupons[i])
		models[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "_id", Value: doc.Code}}).
			SetUpdate(bson.D{{Key: "$setOnInsert", Value: bson.D{
				{Key: "code", Value: doc.CodeField},
				{Key: "discountType", Value: doc.DiscountType},
				{Key: "value", Value: doc.Value},
				{Key: "description", Value: doc.Description},
				{Key: "validFrom", Value: doc.ValidFrom},
				{Key: "expiresAt", Value: doc.ExpiresAt},
				{Key: "createdAt", Value: doc.CreatedAt},
				{Key: "updatedAt", Value: doc.UpdatedAt},
			}}}).
			SetUpsert(true)
	}
	res, err := r.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, errors.Wrap(err, "insert coupons")
	}
	return res.UpsertedCount, nil
}

// Codes streams every stored code to fn.
func (r *CouponRepository) Codes(ctx context.Context, fn func(code string)) error {
	cur, err := r.coll.Find(ctx, bson.D{}, options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return errors.Wrap(err, "list coupon codes")
	}
	defer func() { _ = cur.Close(ctx) }()

	for cur.Next(ctx) {
		var doc struct {
			Code string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return errors.Wrap(err, "decode coupon code")
		}
		fn(doc.Code)
	}
	if err := cur.Err(); err != nil {
		return errors.Wrap(err, "iterate coupon codes")
	}
	return nil
}

func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: code}})
	if err != nil {
		return errors.Wrapf(err, "delete coupon %q", code)
	}
	if res.DeletedCount == 0 {
		return coupon.ErrNotFound
	}
	return nil
}
