// Package pricing computes cart totals and applies coupons.
package pricing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// Line is one priced cart line.
type Line struct {
	// Price is the unit price captured when the line was added.
	Price    decimal.Decimal
	Quantity int
	// UnitDiscount is the per-unit markdown captured with the price.
	UnitDiscount decimal.Decimal
}

// Total returns price × quantity.
func (l Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Discount returns the markdown of the whole line, capped at its total.
func (l Line) Discount() decimal.Decimal {
	d := l.UnitDiscount.Mul(decimal.NewFromInt(int64(l.Quantity)))
	if d.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(d, l.Total())
}

// Totals are the derived price fields of a cart.
type Totals struct {
	// TotalPrice is Σ price × quantity.
	TotalPrice decimal.Decimal
	// ItemDiscount is Σ line discounts.
	ItemDiscount decimal.Decimal
	// CouponDiscount is the amount taken off by the applied coupon.
	CouponDiscount decimal.Decimal
	// TotalPriceAfterDiscount is what the customer pays; it never exceeds
	// TotalPrice and is never negative.
	TotalPriceAfterDiscount decimal.Decimal
}

// Quote computes totals for lines with an optional applied coupon. The
// coupon applies to the subtotal after line discounts.
func Quote(lines []Line, applied *coupon.Applied) Totals {
	total := decimal.Zero
	itemDiscount := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
		itemDiscount = itemDiscount.Add(l.Discount())
	}
	total = total.Round(2)
	itemDiscount = itemDiscount.Round(2)

	base := total.Sub(itemDiscount)
	if base.IsNegative() {
		base = decimal.Zero
	}

	couponDiscount := decimal.Zero
	if applied != nil {
		couponDiscount = applied.Amount(base)
	}

	after := base.Sub(couponDiscount)
	if after.IsNegative() {
		after = decimal.Zero
	}

	return Totals{
		TotalPrice:              total,
		ItemDiscount:            itemDiscount,
		CouponDiscount:          couponDiscount,
		TotalPriceAfterDiscount: after.Round(2),
	}
}

// Engine applies coupons on top of Quote.
type Engine struct {
	coupons coupon.Validator
}

// NewEngine creates an Engine that resolves codes through v.
func NewEngine(v coupon.Validator) *Engine {
	return &Engine{coupons: v}
}

// Quote is a convenience wrapper around the package-level Quote.
func (e *Engine) Quote(lines []Line, applied *coupon.Applied) Totals {
	return Quote(lines, applied)
}

// ApplyCoupon validates code and prices lines with it. A missing code yields
// coupon.ErrNotFound; an expired one coupon.ErrExpired. The caller replaces
// any previously applied coupon with the returned one.
func (e *Engine) ApplyCoupon(ctx context.Context, code string, lines []Line) (coupon.Applied, Totals, error) {
	c, err := e.coupons.Validate(ctx, code)
	if err != nil {
		return coupon.Applied{}, Totals{}, errors.Wrap(err, "validate coupon")
	}
	applied := c.Applied()
	return applied, Quote(lines, &applied), nil
}
