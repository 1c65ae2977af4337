package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/query"
)

var (
	// ErrNotFound is returned when a requested order does not exist or is
	// not visible to the caller.
	ErrNotFound = apperr.New(apperr.KindNotFound, "order not found")
	// ErrStatusRegression is returned when asked to clear a status flag that
	// is already set.
	ErrStatusRegression = apperr.New(apperr.KindConflict, "order status cannot be reverted")
	// ErrNoStatusChange is returned when an update names no flag.
	ErrNoStatusChange = apperr.New(apperr.KindValidation, "nothing to update: set isPaid or isDelivered")
)

// PaymentMethod is how an order is paid for.
type PaymentMethod string

// PaymentCash is the only supported payment method.
const PaymentCash PaymentMethod = "cash"

// Address is where an order ships to.
type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	Phone  string `json:"phone"`
}

// Item is a frozen copy of a cart line.
type Item struct {
	ProductID            string          `json:"productId"`
	Color                string          `json:"color"`
	Quantity             int             `json:"quantity"`
	Price                decimal.Decimal `json:"price"`
	TotalProductDiscount decimal.Decimal `json:"totalProductDiscount"`
}

// Order is an immutable record of a checkout. Only the paid and delivered
// flags (and their timestamps) change after creation.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Items           []Item          `json:"cartItems"`
	ShippingAddress Address         `json:"shippingAddress"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	Coupon          *coupon.Applied `json:"coupon,omitempty"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	TotalOrderPrice decimal.Decimal `json:"totalOrderPrice"`
	IsPaid          bool            `json:"isPaid"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	IsDelivered     bool            `json:"isDelivered"`
	DeliveredAt     *time.Time      `json:"deliveredAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Document returns o keyed by schema field names plus its nested parts.
func (o *Order) Document() query.Document {
	doc := query.Document{
		"id":              o.ID,
		"userId":          o.UserID,
		"cartItems":       o.Items,
		"shippingAddress": o.ShippingAddress,
		"paymentMethod":   string(o.PaymentMethod),
		"totalPrice":      o.TotalPrice,
		"totalOrderPrice": o.TotalOrderPrice,
		"isPaid":          o.IsPaid,
		"paidAt":          timeOrNil(o.PaidAt),
		"isDelivered":     o.IsDelivered,
		"deliveredAt":     timeOrNil(o.DeliveredAt),
		"createdAt":       o.CreatedAt,
		"updatedAt":       o.UpdatedAt,
	}
	if o.Coupon != nil {
		doc["coupon"] = *o.Coupon
	}
	return doc
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// StatusChange asks the repository to raise flags. A flag already set keeps
// its original timestamp.
type StatusChange struct {
	Paid      bool
	Delivered bool
	At        time.Time
}

// Schema is the queryable shape of orders.
var Schema = &query.Schema{
	Collection: "orders",
	Fields: map[string]query.Field{
		"id":              {Type: query.String},
		"userId":          {Type: query.String, Column: "user_id"},
		"paymentMethod":   {Type: query.String, Column: "payment_method"},
		"totalPrice":      {Type: query.Money, Column: "total_price"},
		"totalOrderPrice": {Type: query.Money, Column: "total_order_price"},
		"isPaid":          {Type: query.Bool, Column: "is_paid"},
		"paidAt":          {Type: query.Time, Column: "paid_at"},
		"isDelivered":     {Type: query.Bool, Column: "is_delivered"},
		"deliveredAt":     {Type: query.Time, Column: "delivered_at"},
		"createdAt":       {Type: query.Time, Column: "created_at"},
		"updatedAt":       {Type: query.Time, Column: "updated_at"},
	},
	DefaultSort: "-createdAt",
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// UpdateStatus raises the requested flags atomically and returns the
	// stored order.
	UpdateStatus(ctx context.Context, id string, change StatusChange) (*Order, error)
}

// Transactor runs fn in a transaction. Repositories called with the context
// passed to fn take part in it. If fn fails everything is rolled back; if
// the commit outcome is unknown the error is classified as inconsistent.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
