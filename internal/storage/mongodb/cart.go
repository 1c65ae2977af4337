package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
)

var _ cart.Repository = (*CartRepository)(nil)

type cartItemDoc struct {
	ID                   string               `bson:"id"`
	ProductID            string               `bson:"productId"`
	Color                string               `bson:"color"`
	Quantity             int                  `bson:"quantity"`
	Price                primitive.Decimal128 `bson:"price"`
	UnitDiscount         primitive.Decimal128 `bson:"unitDiscount"`
	TotalProductDiscount primitive.Decimal128 `bson:"totalProductDiscount"`
}

type appliedDoc struct {
	Code         string               `bson:"code"`
	DiscountType string               `bson:"discountType"`
	Value        primitive.Decimal128 `bson:"value"`
}

func newAppliedDoc(a *coupon.Applied) *appliedDoc {
	if a == nil {
		return nil
	}
	return &appliedDoc{Code: a.Code, DiscountType: string(a.DiscountType), Value: toDecimal128(a.Value)}
}

func (d *appliedDoc) applied() *coupon.Applied {
	if d == nil {
		return nil
	}
	return &coupon.Applied{Code: d.Code, DiscountType: coupon.DiscountType(d.DiscountType), Value: fromDecimal128(d.Value)}
}

type cartDoc struct {
	ID                      string               `bson:"_id"`
	UserID                  string               `bson:"userId"`
	Items                   []cartItemDoc        `bson:"items"`
	Coupon                  *appliedDoc          `bson:"coupon"`
	TotalPrice              primitive.Decimal128 `bson:"totalPrice"`
	ItemDiscount            primitive.Decimal128 `bson:"itemDiscount"`
	CouponDiscount          primitive.Decimal128 `bson:"couponDiscount"`
	TotalPriceAfterDiscount primitive.Decimal128 `bson:"totalPriceAfterDiscount"`
	Version                 int64                `bson:"version"`
	CreatedAt               time.Time            `bson:"createdAt"`
	UpdatedAt               time.Time            `bson:"updatedAt"`
}

func newCartDoc(c *cart.Cart) cartDoc {
	items := make([]cartItemDoc, len(c.Items))
	for i, it := range c.Items {
		items[i] = cartItemDoc{
			ID:                   it.ID,
			ProductID:            it.ProductID,
			Color:                it.Color,
			Quantity:             it.Quantity,
			Price:                toDecimal128(it.Price),
			UnitDiscount:         toDecimal128(it.UnitDiscount),
			TotalProductDiscount: toDecimal128(it.TotalProductDiscount),
		}
	}
	return cartDoc{
		ID:                      c.ID,
		UserID:                  c.UserID,
		Items:                   items,
		Coupon:                  newAppliedDoc(c.Coupon),
		TotalPrice:              toDecimal128(c.TotalPrice),
		ItemDiscount:            toDecimal128(c.ItemDiscount),
		CouponDiscount:          toDecimal128(c.CouponDiscount),
		TotalPriceAfterDiscount: toDecimal128(c.TotalPriceAfterDiscount),
		Version:                 c.Version,
		CreatedAt:               c.CreatedAt,
		UpdatedAt:               c.UpdatedAt,
	}
}

func (d cartDoc) cart() cart.Cart {
	items := make([]cart.Item, len(d.Items))
	for i, it := range d.Items {
		items[i] = cart.Item{
			ID:                   it.ID,
			ProductID:            it.ProductID,
			Color:                it.Color,
			Quantity:             it.Quantity,
			Price:                fromDecimal128(it.Price),
			UnitDiscount:         fromDecimal128(it.UnitDiscount),
			TotalProductDiscount: fromDecimal128(it.TotalProductDiscount),
		}
	}
	return cart.Cart{
		ID:                      d.ID,
		UserID:                  d.UserID,
		Items:                   items,
		Coupon:                  d.Coupon.applied(),
		TotalPrice:              fromDecimal128(d.TotalPrice),
		ItemDiscount:            fromDecimal128(d.ItemDiscount),
		CouponDiscount:          fromDecimal128(d.CouponDiscount),
		TotalPriceAfterDiscount: fromDecimal128(d.TotalPriceAfterDiscount),
		Version:                 d.Version,
		CreatedAt:               utc(d.CreatedAt),
		UpdatedAt:               utc(d.UpdatedAt),
	}
}

// CartRepository implements cart.Repository. The unique userId index keeps
// one cart per user; writes match on the version field.
type CartRepository struct {
	coll *mongo.Collection
}

// Carts returns the cart repository.
func (d *DB) Carts() *CartRepository { return &CartRepository{coll: d.coll(colCarts)} }

func (r *CartRepository) getOne(ctx context.Context, filter bson.D) (*cart.Cart, error) {
	var doc cartDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrap(err, "get cart")
	}
	c := doc.cart()
	return &c, nil
}

func (r *CartRepository) GetByUser(ctx context.Context, userID string) (*cart.Cart, error) {
	return r.getOne(ctx, bson.D{{Key: "userId", Value: userID}})
}

func (r *CartRepository) GetByID(ctx context.Context, id string) (*cart.Cart, error) {
	return r.getOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	doc := newCartDoc(c)
	if c.Version == 0 {
		doc.Version = 1
		if _, err := r.coll.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return cart.ErrConcurrentUpdate
			}
			return classifyWrite(errors.Wrap(err, "insert cart"))
		}
		c.Version = 1
		return nil
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: c.ID}, {Key: "version", Value: c.Version}},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "items", Value: doc.Items},
				{Key: "coupon", Value: doc.Coupon},
				{Key: "totalPrice", Value: doc.TotalPrice},
				{Key: "itemDiscount", Value: doc.ItemDiscount},
				{Key: "couponDiscount", Value: doc.CouponDiscount},
				{Key: "totalPriceAfterDiscount", Value: doc.TotalPriceAfterDiscount},
				{Key: "updatedAt", Value: doc.UpdatedAt},
			}},
			{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
		},
	)
	if err != nil {
		return classifyWrite(errors.Wrap(err, "update cart"))
	}
	if res.MatchedCount == 0 {
		return cart.ErrConcurrentUpdate
	}
	c.Version++
	return nil
}

func (r *CartRepository) Delete(ctx context.Context, id string, version int64) error {
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "version", Value: version}})
	if err != nil {
		return classifyWrite(errors.Wrap(err, "delete cart"))
	}
	if res.DeletedCount == 0 {
		return cart.ErrConcurrentUpdate
	}
	return nil
}
