package cart

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
)

// ErrColorUnavailable is returned when a product does not come in the
// requested color.
var ErrColorUnavailable = apperr.New(apperr.KindValidation, "color is not available for this product")

// AddItemRequest holds the input for adding a product to a cart.
type AddItemRequest struct {
	ProductID string
	Quantity  int
	Color     string
}

// Service owns the per-user cart lifecycle.
type Service struct {
	carts    Repository
	products product.Repository
	pricing  *pricing.Engine
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository, engine *pricing.Engine) *Service {
	return &Service{
		carts:    carts,
		products: products,
		pricing:  engine,
		now:      time.Now,
	}
}

// Get returns the user's cart or ErrNotFound.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// AddItem adds quantity units of a product in a color, creating the cart on
// first use. A line with the same product and color is incremented instead
// of duplicated; a new line captures the product's current price.
func (s *Service) AddItem(ctx context.Context, userID string, req AddItemRequest) (*Cart, error) {
	if req.Quantity < 1 {
		return nil, apperr.New(apperr.KindValidation, "invalid cart item").
			WithDetails(map[string]string{"quantity": "must be at least 1"})
	}

	p, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	color, err := canonicalColor(p, req.Color)
	if err != nil {
		return nil, err
	}

	c, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if want := c.QuantityOf(p.ID) + req.Quantity; want > p.Quantity {
		return nil, &product.InsufficientStockError{
			ProductIDs: []string{p.ID},
			Requested:  want,
			Available:  p.Quantity,
		}
	}

	idx := slices.IndexFunc(c.Items, func(it Item) bool {
		return it.ProductID == p.ID && it.Color == color
	})
	if idx >= 0 {
		c.Items[idx].Quantity += req.Quantity
	} else {
		c.Items = append(c.Items, Item{
			ID:           uuid.NewString(),
			ProductID:    p.ID,
			Color:        color,
			Quantity:     req.Quantity,
			Price:        p.Price,
			UnitDiscount: p.UnitDiscount(),
		})
	}

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateQuantity sets the quantity of an item. A quantity below one removes
// the item.
func (s *Service) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return s.RemoveItem(ctx, userID, itemID)
	}

	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx := c.indexOf(itemID)
	if idx < 0 {
		return nil, ErrItemNotFound
	}

	item := c.Items[idx]
	p, err := s.products.GetByID(ctx, item.ProductID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	if want := c.QuantityOf(item.ProductID) - item.Quantity + quantity; want > p.Quantity {
		return nil, &product.InsufficientStockError{
			ProductIDs: []string{p.ID},
			Requested:  want,
			Available:  p.Quantity,
		}
	}

	c.Items[idx].Quantity = quantity
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveItem deletes an item. An emptied cart is kept with zero totals.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx := c.indexOf(itemID)
	if idx < 0 {
		return nil, ErrItemNotFound
	}
	c.Items = slices.Delete(c.Items, idx, idx+1)

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyCoupon validates code and stores it on the cart, replacing any
// coupon applied before. On failure the cart is left untouched.
func (s *Service) ApplyCoupon(ctx context.Context, userID, code string) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	applied, _, err := s.pricing.ApplyCoupon(ctx, code, c.Lines())
	if err != nil {
		return nil, err
	}
	c.Coupon = &applied

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) loadOrCreate(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.carts.GetByUser(ctx, userID)
	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, ErrNotFound):
		now := s.now().UTC()
		return &Cart{
			ID:        uuid.NewString(),
			UserID:    userID,
			Items:     []Item{},
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	default:
		return nil, errors.Wrap(err, "get cart")
	}
}

func (s *Service) save(ctx context.Context, c *Cart) error {
	c.Recalculate()
	c.UpdatedAt = s.now().UTC()
	if err := s.carts.Save(ctx, c); err != nil {
		return errors.Wrap(err, "save cart")
	}
	return nil
}

// canonicalColor returns the product's spelling of color.
func canonicalColor(p *product.Product, color string) (string, error) {
	color = strings.TrimSpace(color)
	if len(p.Colors) == 0 {
		return color, nil
	}
	for _, c := range p.Colors {
		if strings.EqualFold(c, color) {
			return c, nil
		}
	}
	return "", ErrColorUnavailable
}
