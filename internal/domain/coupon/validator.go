package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Validator resolves a code to a coupon that is usable right now.
type Validator interface {
	Validate(ctx context.Context, code string) (*Coupon, error)
}

// RepoValidator implements Validator on top of a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate normalizes the code, looks the coupon up and checks its validity
// window. Expiration is only checked here, at apply time.
func (v *RepoValidator) Validate(ctx context.Context, code string) (*Coupon, error) {
	code = Normalize(code)
	if code == "" {
		return nil, ErrNotFound
	}

	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := v.now()
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return nil, ErrNotActive
	}
	if !now.Before(c.ExpiresAt) {
		return nil, ErrExpired
	}
	return c, nil
}
