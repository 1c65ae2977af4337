package product

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/query"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = apperr.New(apperr.KindNotFound, "product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	Price              decimal.Decimal     `json:"price"`
	PriceAfterDiscount decimal.NullDecimal `json:"priceAfterDiscount"`
	Quantity           int                 `json:"quantity"`
	Sold               int                 `json:"sold"`
	Colors             []string            `json:"colors"`
	Slug               string              `json:"slug"`
	CategoryID         string              `json:"categoryId,omitempty"`
	SubcategoryID      string              `json:"subcategoryId,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// UnitDiscount is the per-unit markdown from priceAfterDiscount, never
// negative and never more than the price.
func (p *Product) UnitDiscount() decimal.Decimal {
	if !p.PriceAfterDiscount.Valid {
		return decimal.Zero
	}
	d := p.Price.Sub(p.PriceAfterDiscount.Decimal)
	if d.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(d, p.Price)
}

// HasColor reports whether color is one of the product's colors. Products
// without declared colors accept any color.
func (p *Product) HasColor(color string) bool {
	if len(p.Colors) == 0 {
		return true
	}
	return slices.ContainsFunc(p.Colors, func(c string) bool {
		return strings.EqualFold(c, color)
	})
}

// Document returns p keyed by schema field names.
func (p *Product) Document() query.Document {
	var after any
	if p.PriceAfterDiscount.Valid {
		after = p.PriceAfterDiscount.Decimal
	}
	return query.Document{
		"id":                 p.ID,
		"title":              p.Title,
		"description":        p.Description,
		"price":              p.Price,
		"priceAfterDiscount": after,
		"quantity":           p.Quantity,
		"sold":               p.Sold,
		"colors":             nonNilStrings(p.Colors),
		"slug":               p.Slug,
		"categoryId":         optional(p.CategoryID),
		"subcategoryId":      optional(p.SubcategoryID),
		"createdAt":          p.CreatedAt,
		"updatedAt":          p.UpdatedAt,
	}
}

// optional maps an unset reference to a missing value.
func optional(id string) any {
	if id == "" {
		return nil
	}
	return id
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// StockChange is one guarded stock decrement.
type StockChange struct {
	ProductID string
	Quantity  int
}

// MergeStockChanges sums quantities per product, keeping first-seen order.
func MergeStockChanges(changes []StockChange) []StockChange {
	idx := make(map[string]int, len(changes))
	out := make([]StockChange, 0, len(changes))
	for _, c := range changes {
		if i, ok := idx[c.ProductID]; ok {
			out[i].Quantity += c.Quantity
			continue
		}
		idx[c.ProductID] = len(out)
		out = append(out, c)
	}
	return out
}

// InsufficientStockError is returned when a guarded decrement or a cart
// mutation asks for more units than are available.
type InsufficientStockError struct {
	// ProductIDs lists the products that could not be decremented, when the
	// backend can tell.
	ProductIDs []string
	Requested  int
	Available  int
}

func (e *InsufficientStockError) Error() string {
	switch {
	case len(e.ProductIDs) == 0:
		return "insufficient stock"
	case e.Requested > 0:
		return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
			e.ProductIDs[0], e.Requested, e.Available)
	default:
		return "insufficient stock for product " + strings.Join(e.ProductIDs, ", ")
	}
}

// Kind implements apperr.Classified.
func (e *InsufficientStockError) Kind() apperr.Kind { return apperr.KindConflict }

// Schema is the queryable shape of products.
var Schema = &query.Schema{
	Collection: "products",
	Fields: map[string]query.Field{
		"id":                 {Type: query.String},
		"title":              {Type: query.String},
		"description":        {Type: query.String},
		"price":              {Type: query.Money},
		"priceAfterDiscount": {Type: query.Money, Column: "price_after_discount"},
		"quantity":           {Type: query.Int},
		"sold":               {Type: query.Int},
		"colors":             {Type: query.Strings},
		"slug":               {Type: query.String},
		"categoryId":         {Type: query.String, Column: "category_id"},
		"subcategoryId":      {Type: query.String, Column: "subcategory_id"},
		"createdAt":          {Type: query.Time, Column: "created_at"},
		"updatedAt":          {Type: query.Time, Column: "updated_at"},
	},
	Search:      []string{"title", "description", "colors"},
	DefaultSort: "-createdAt",
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	// GetBySlug returns the oldest product with slug. Slugs are not unique.
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
	// DecrementStock subtracts each change from quantity and adds it to sold
	// in one batch, only where quantity covers the change. If any guard
	// fails it returns *InsufficientStockError; callers run it inside a
	// transaction so that partial effects are rolled back.
	DecrementStock(ctx context.Context, changes []StockChange) error
}
