package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

type orderItemDoc struct {
	ProductID            string               `bson:"productId"`
	Color                string               `bson:"color"`
	Quantity             int                  `bson:"quantity"`
	Price                primitive.Decimal128 `bson:"price"`
	TotalProductDiscount primitive.Decimal128 `bson:"totalProductDiscount"`
}

type addressDoc struct {
	Street string `bson:"street"`
	City   string `bson:"city"`
	Phone  string `bson:"phone"`
}

type orderDoc struct {
	ID              string               `bson:"_id"`
	UserID          string               `bson:"userId"`
	Items           []orderItemDoc       `bson:"cartItems"`
	ShippingAddress addressDoc           `bson:"shippingAddress"`
	PaymentMethod   string               `bson:"paymentMethod"`
	Coupon          *appliedDoc          `bson:"coupon"`
	TotalPrice      primitive.Decimal128 `bson:"totalPrice"`
	TotalOrderPrice primitive.Decimal128 `bson:"totalOrderPrice"`
	IsPaid          bool                 `bson:"isPaid"`
	PaidAt          *time.Time           `bson:"paidAt"`
	IsDelivered     bool                 `bson:"isDelivered"`
	DeliveredAt     *time.Time           `bson:"deliveredAt"`
	CreatedAt       time.Time            `bson:"createdAt"`
	UpdatedAt       time.Time            `bson:"updatedAt"`
}

func newOrderDoc(o *order.Order) orderDoc {
	items := make([]orderItemDoc, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemDoc{
			ProductID:            it.ProductID,
			Color:                it.Color,
			Quantity:             it.Quantity,
			Price:                toDecimal128(it.Price),
			TotalProductDiscount: toDecimal128(it.TotalProductDiscount),
		}
	}
	return orderDoc{
		ID:              o.ID,
		UserID:          o.UserID,
		Items:           items,
		ShippingAddress: addressDoc(o.ShippingAddress),
		PaymentMethod:   string(o.PaymentMethod),
		Coupon:          newAppliedDoc(o.Coupon),
		TotalPrice:      toDecimal128(o.TotalPrice),
		TotalOrderPrice: toDecimal128(o.TotalOrderPrice),
		IsPaid:          o.IsPaid,
		PaidAt:          o.PaidAt,
		IsDelivered:     o.IsDelivered,
		DeliveredAt:     o.DeliveredAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func (d orderDoc) order() order.Order {
	items := make([]order.Item, len(d.Items))
	for i, it := range d.Items {
		items[i] = order.Item{
			ProductID:            it.ProductID,
			Color:                it.Color,
			Quantity:             it.Quantity,
			Price:                fromDecimal128(it.Price),
			TotalProductDiscount: fromDecimal128(it.TotalProductDiscount),
		}
	}
	return order.Order{
		ID:              d.ID,
		UserID:          d.UserID,
		Items:           items,
		ShippingAddress: order.Address(d.ShippingAddress),
		PaymentMethod:   order.PaymentMethod(d.PaymentMethod),
		Coupon:          d.Coupon.applied(),
		TotalPrice:      fromDecimal128(d.TotalPrice),
		TotalOrderPrice: fromDecimal128(d.TotalOrderPrice),
		IsPaid:          d.IsPaid,
		PaidAt:          utcPtr(d.PaidAt),
		IsDelivered:     d.IsDelivered,
		DeliveredAt:     utcPtr(d.DeliveredAt),
		CreatedAt:       utc(d.CreatedAt),
		UpdatedAt:       utc(d.UpdatedAt),
	}
}

// OrderRepository implements order.Repository backed by MongoDB.
type OrderRepository struct {
	coll *mongo.Collection
}

// Orders returns the order repository.
func (d *DB) Orders() *OrderRepository { return &OrderRepository{coll: d.coll(colOrders)} }

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if _, err := r.coll.InsertOne(ctx, newOrderDoc(o)); err != nil {
		return classifyWrite(errors.Wrap(err, "insert order"))
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	var doc orderDoc
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o := doc.order()
	return &o, nil
}

// raise returns the pipeline stages that set flag and stamp its timestamp
// only on the transition from false.
func raise(flag, stamp string, at time.Time) bson.D {
	return bson.D{
		{Key: stamp, Value: bson.D{{Key: "$cond", Value: bson.A{"$" + flag, "$" + stamp, at}}}},
		{Key: flag, Value: true},
	}
}

// UpdateStatus applies the change with a pipeline update. Stages read the
// document as it was before the update, so timestamps are set once.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, change order.StatusChange) (*order.Order, error) {
	set := bson.D{{Key: "updatedAt", Value: change.At}}
	if change.Paid {
		set = append(set, raise("isPaid", "paidAt", change.At)...)
	}
	if change.Delivered {
		set = append(set, raise("isDelivered", "deliveredAt", change.At)...)
	}
	pipeline := mongo.Pipeline{{{Key: "$set", Value: set}}}

	var doc orderDoc
	err := r.coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, pipeline,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "update order %q", id)
	}
	o := doc.order()
	return &o, nil
}
