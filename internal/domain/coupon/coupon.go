package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/query"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage off the discounted subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount off, capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

var (
	// ErrNotFound is returned when no coupon has the given code.
	ErrNotFound = apperr.New(apperr.KindNotFound, "coupon not found")
	// ErrExpired is returned when a coupon is past its expiration.
	ErrExpired = apperr.New(apperr.KindConflict, "coupon expired")
	// ErrNotActive is returned when a coupon's validity has not started.
	ErrNotActive = apperr.New(apperr.KindConflict, "coupon is not active yet")
	// ErrAlreadyExists is returned when creating a duplicate code.
	ErrAlreadyExists = apperr.New(apperr.KindConflict, "coupon code already exists")
)

var hundred = decimal.NewFromInt(100)

// Coupon is a named discount rule with an expiration.
type Coupon struct {
	Code         string          `json:"code"`
	DiscountType DiscountType    `json:"discountType"`
	Value        decimal.Decimal `json:"value"`
	Description  string          `json:"description,omitempty"`
	ValidFrom    *time.Time      `json:"validFrom,omitempty"`
	ExpiresAt    time.Time       `json:"expiresAt"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Document returns c keyed by schema field names.
func (c *Coupon) Document() query.Document {
	var from any
	if c.ValidFrom != nil {
		from = *c.ValidFrom
	}
	return query.Document{
		"id":           c.Code,
		"code":         c.Code,
		"discountType": string(c.DiscountType),
		"value":        c.Value,
		"description":  c.Description,
		"validFrom":    from,
		"expiresAt":    c.ExpiresAt,
		"createdAt":    c.CreatedAt,
	}
}

// Applied returns the snapshot a cart keeps of this coupon.
func (c *Coupon) Applied() Applied {
	return Applied{Code: c.Code, DiscountType: c.DiscountType, Value: c.Value}
}

// Applied is the part of a coupon a cart remembers after applying it.
type Applied struct {
	Code         string          `json:"code"`
	DiscountType DiscountType    `json:"discountType"`
	Value        decimal.Decimal `json:"value"`
}

// Amount returns the discount on base, rounded to cents, never negative and
// never more than base.
func (a Applied) Amount(base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch a.DiscountType {
	case DiscountPercentage:
		amount = base.Mul(a.Value).Div(hundred)
	case DiscountFixed:
		amount = a.Value
	default:
		return decimal.Zero
	}
	return floorAtZero(decimal.Min(amount, base)).Round(2)
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Normalize canonicalizes a user supplied code for storage and lookup.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Schema is the queryable shape of coupons.
var Schema = &query.Schema{
	Collection: "coupons",
	Fields: map[string]query.Field{
		"id":           {Type: query.String, Column: "code"},
		"code":         {Type: query.String},
		"discountType": {Type: query.String, Column: "discount_type"},
		"value":        {Type: query.Money},
		"description":  {Type: query.String},
		"validFrom":    {Type: query.Time, Column: "valid_from"},
		"expiresAt":    {Type: query.Time, Column: "expires_at"},
		"createdAt":    {Type: query.Time, Column: "created_at"},
	},
	Search:      []string{"code", "description"},
	DefaultSort: "-createdAt",
}

// Repository provides lookup and mutation of coupons. Codes passed in are
// already normalized.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	// Update stores every field of c except Code and CreatedAt, or returns
	// ErrNotFound.
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, code string) error
}
