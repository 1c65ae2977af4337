package product

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/category"
)

// Input carries the editable attributes of a product.
type Input struct {
	Title              string
	Description        string
	Price              decimal.Decimal
	PriceAfterDiscount decimal.NullDecimal
	Quantity           int
	Colors             []string
	CategoryID         string
	SubcategoryID      string
}

func (in Input) validate() error {
	details := map[string]string{}
	if in.Title == "" {
		details["title"] = "is required"
	}
	if in.Price.IsNegative() {
		details["price"] = "must not be negative"
	}
	if in.PriceAfterDiscount.Valid {
		if in.PriceAfterDiscount.Decimal.IsNegative() {
			details["priceAfterDiscount"] = "must not be negative"
		} else if in.PriceAfterDiscount.Decimal.GreaterThan(in.Price) {
			details["priceAfterDiscount"] = "must not exceed price"
		}
	}
	if in.Quantity < 0 {
		details["quantity"] = "must not be negative"
	}
	if len(details) > 0 {
		return apperr.New(apperr.KindValidation, "invalid product").WithDetails(details)
	}
	return nil
}

// Taxonomy checks where a product may be filed.
type Taxonomy interface {
	// CheckPlacement fails when the category or subcategory is unknown or
	// the subcategory belongs to another category.
	CheckPlacement(ctx context.Context, categoryID, subcategoryID string) error
}

// Service implements catalog administration.
type Service struct {
	repo     Repository
	taxonomy Taxonomy
	now      func() time.Time
}

// NewService creates a product Service. A nil taxonomy accepts any
// placement.
func NewService(repo Repository, taxonomy Taxonomy) *Service {
	return &Service{repo: repo, taxonomy: taxonomy, now: time.Now}
}

func (s *Service) checkPlacement(ctx context.Context, in Input) error {
	if s.taxonomy == nil {
		return nil
	}
	if err := s.taxonomy.CheckPlacement(ctx, in.CategoryID, in.SubcategoryID); err != nil {
		return errors.Wrap(err, "check placement")
	}
	return nil
}

// Get returns a product by id.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	return p, nil
}

// GetBySlug returns the oldest product whose title slugifies to slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	p, err := s.repo.GetBySlug(ctx, strings.ToLower(slug))
	if err != nil {
		return nil, errors.Wrap(err, "get product by slug")
	}
	return p, nil
}

// Create validates and stores a new product.
func (s *Service) Create(ctx context.Context, in Input) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.checkPlacement(ctx, in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p := &Product{
		ID:                 uuid.NewString(),
		Title:              in.Title,
		Description:        in.Description,
		Price:              in.Price.Round(2),
		PriceAfterDiscount: roundNull(in.PriceAfterDiscount),
		Quantity:           in.Quantity,
		Colors:             nonNil(in.Colors),
		Slug:               category.Slugify(in.Title),
		CategoryID:         in.CategoryID,
		SubcategoryID:      in.SubcategoryID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return p, nil
}

// Update replaces the editable attributes of a product. Sold is never
// touched here.
func (s *Service) Update(ctx context.Context, id string, in Input) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.checkPlacement(ctx, in); err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	p.Title = in.Title
	p.Slug = category.Slugify(in.Title)
	p.CategoryID = in.CategoryID
	p.SubcategoryID = in.SubcategoryID
	p.Description = in.Description
	p.Price = in.Price.Round(2)
	p.PriceAfterDiscount = roundNull(in.PriceAfterDiscount)
	p.Quantity = in.Quantity
	p.Colors = nonNil(in.Colors)
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, errors.Wrap(err, "update product")
	}
	return p, nil
}

// Delete removes a product.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete product")
	}
	return nil
}

func roundNull(d decimal.NullDecimal) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NewNullDecimal(d.Decimal.Round(2))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
