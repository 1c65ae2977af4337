package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/apperr"
)

// CreateRequest holds the input for creating a coupon.
type CreateRequest struct {
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	Description  string
	ValidFrom    *time.Time
	ExpiresAt    time.Time
}

// Service implements coupon administration.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a coupon Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// UpdateRequest holds the editable terms of a coupon. The code is fixed.
type UpdateRequest struct {
	DiscountType DiscountType
	Value        decimal.Decimal
	Description  string
	ValidFrom    *time.Time
	ExpiresAt    time.Time
}

func (req UpdateRequest) validate(details map[string]string) error {
	if !req.DiscountType.Valid() {
		details["discountType"] = "must be percentage or fixed"
	}
	if !req.Value.IsPositive() {
		details["value"] = "must be positive"
	} else if req.DiscountType == DiscountPercentage && req.Value.GreaterThan(hundred) {
		details["value"] = "must not exceed 100 for percentage coupons"
	}
	if req.ExpiresAt.IsZero() {
		details["expiresAt"] = "is required"
	} else if req.ValidFrom != nil && !req.ValidFrom.Before(req.ExpiresAt) {
		details["validFrom"] = "must be before expiresAt"
	}
	if len(details) > 0 {
		return apperr.New(apperr.KindValidation, "invalid coupon").WithDetails(details)
	}
	return nil
}

// Create validates and stores a coupon under its normalized code.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Coupon, error) {
	code := Normalize(req.Code)

	details := map[string]string{}
	if code == "" {
		details["code"] = "is required"
	}
	terms := UpdateRequest{
		DiscountType: req.DiscountType,
		Value:        req.Value,
		Description:  req.Description,
		ValidFrom:    req.ValidFrom,
		ExpiresAt:    req.ExpiresAt,
	}
	if err := terms.validate(details); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &Coupon{
		Code:         code,
		DiscountType: req.DiscountType,
		Value:        req.Value,
		Description:  req.Description,
		ValidFrom:    req.ValidFrom,
		ExpiresAt:    req.ExpiresAt.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create coupon")
	}
	return c, nil
}

// Get returns a coupon by code regardless of its validity window.
func (s *Service) Get(ctx context.Context, code string) (*Coupon, error) {
	c, err := s.repo.FindByCode(ctx, Normalize(code))
	if err != nil {
		return nil, errors.Wrap(err, "get coupon")
	}
	return c, nil
}

// Update replaces the terms of a coupon. Carts that already applied it keep
// their snapshot.
func (s *Service) Update(ctx context.Context, code string, req UpdateRequest) (*Coupon, error) {
	if err := req.validate(map[string]string{}); err != nil {
		return nil, err
	}
	c, err := s.repo.FindByCode(ctx, Normalize(code))
	if err != nil {
		return nil, errors.Wrap(err, "get coupon")
	}
	c.DiscountType = req.DiscountType
	c.Value = req.Value
	c.Description = req.Description
	c.ValidFrom = utcPtr(req.ValidFrom)
	c.ExpiresAt = req.ExpiresAt.UTC()
	c.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, errors.Wrap(err, "update coupon")
	}
	return c, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// Delete removes a coupon. Carts that already applied it keep their
// snapshot.
func (s *Service) Delete(ctx context.Context, code string) error {
	if err := s.repo.Delete(ctx, Normalize(code)); err != nil {
		return errors.Wrap(err, "delete coupon")
	}
	return nil
}
