package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/pricing"
)

var (
	// ErrNotFound is returned when the user has no cart yet.
	ErrNotFound = apperr.New(apperr.KindNotFound, "cart not found")
	// ErrItemNotFound is returned when an item id is not in the cart.
	ErrItemNotFound = apperr.New(apperr.KindNotFound, "cart item not found")
	// ErrConcurrentUpdate is returned when a conditional save or delete lost
	// a race against another writer of the same cart.
	ErrConcurrentUpdate = apperr.New(apperr.KindConflict, "cart was modified concurrently, reload and retry")
	// ErrEmpty is returned when checking out a cart without items.
	ErrEmpty = apperr.New(apperr.KindValidation, "cart is empty")
)

// Item is one line of a cart.
type Item struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity"`
	// Price is the unit price captured when the line was created.
	Price decimal.Decimal `json:"price"`
	// UnitDiscount is the per-unit markdown captured with Price.
	UnitDiscount decimal.Decimal `json:"unitDiscount"`
	// TotalProductDiscount is UnitDiscount × Quantity, kept in sync by
	// Recalculate.
	TotalProductDiscount decimal.Decimal `json:"totalProductDiscount"`
}

// Cart is a user's mutable collection of intended purchases.
type Cart struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Items  []Item `json:"items"`
	// Coupon is the applied coupon snapshot: its type and value are the
	// cart's discount.
	Coupon                  *coupon.Applied `json:"coupon,omitempty"`
	TotalPrice              decimal.Decimal `json:"totalPrice"`
	ItemDiscount            decimal.Decimal `json:"itemDiscount"`
	CouponDiscount          decimal.Decimal `json:"couponDiscount"`
	TotalPriceAfterDiscount decimal.Decimal `json:"totalPriceAfterDiscount"`
	// Version is bumped by every successful save. Zero means never stored.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Lines returns the pricing view of the items.
func (c *Cart) Lines() []pricing.Line {
	lines := make([]pricing.Line, len(c.Items))
	for i, it := range c.Items {
		lines[i] = pricing.Line{Price: it.Price, Quantity: it.Quantity, UnitDiscount: it.UnitDiscount}
	}
	return lines
}

// Recalculate refreshes every derived price field from the items and the
// applied coupon. It must run after each mutation.
func (c *Cart) Recalculate() {
	lines := c.Lines()
	for i := range c.Items {
		c.Items[i].TotalProductDiscount = lines[i].Discount().Round(2)
	}
	t := pricing.Quote(lines, c.Coupon)
	c.TotalPrice = t.TotalPrice
	c.ItemDiscount = t.ItemDiscount
	c.CouponDiscount = t.CouponDiscount
	c.TotalPriceAfterDiscount = t.TotalPriceAfterDiscount
}

// indexOf returns the position of the item with the given id, or -1.
func (c *Cart) indexOf(itemID string) int {
	for i, it := range c.Items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

// QuantityOf returns the units of a product across all lines.
func (c *Cart) QuantityOf(productID string) int {
	n := 0
	for _, it := range c.Items {
		if it.ProductID == productID {
			n += it.Quantity
		}
	}
	return n
}

// Repository persists carts. Save and Delete are conditional on Version.
type Repository interface {
	GetByUser(ctx context.Context, userID string) (*Cart, error)
	GetByID(ctx context.Context, id string) (*Cart, error)
	// Save inserts c when c.Version is zero and otherwise updates it only if
	// the stored version still equals c.Version. On success c.Version is
	// incremented; a lost race returns ErrConcurrentUpdate.
	Save(ctx context.Context, c *Cart) error
	// Delete removes the cart only if its stored version equals version.
	// A missing cart or a version mismatch returns ErrConcurrentUpdate.
	Delete(ctx context.Context, id string, version int64) error
}
