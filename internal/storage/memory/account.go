package memory

import (
	"context"
	"slices"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/review"
	"github.com/xenking/storefront/internal/domain/user"
)

var (
	_ coupon.Repository = (*CouponRepository)(nil)
	_ user.Repository   = (*UserRepository)(nil)
	_ review.Repository = (*ReviewRepository)(nil)
	_ auth.Repository   = (*APIKeyRepository)(nil)
)

// CouponRepository stores coupons keyed by normalized code.
type CouponRepository struct{ s *Store }

// Coupons returns the coupon repository of s.
func (s *Store) Coupons() *CouponRepository { return &CouponRepository{s: s} }

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var (
		c  coupon.Coupon
		ok bool
	)
	r.s.read(ctx, func() { c, ok = r.s.coupons[code] })
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &c, nil
}

func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	return r.s.write(ctx, func(t *tx) error {
		if _, ok := r.s.coupons[c.Code]; ok {
			return coupon.ErrAlreadyExists
		}
		t.record(restore(r.s.coupons, c.Code))
		r.s.coupons[c.Code] = *c
		return nil
	})
}

func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	return r.s.write(ctx, func(t *tx) error {
		stored, ok := r.s.coupons[c.Code]
		if !ok {
			return coupon.ErrNotFound
		}
		t.record(restore(r.s.coupons, c.Code))
		next := *c
		next.CreatedAt = stored.CreatedAt
		r.s.coupons[c.Code] = next
		return nil
	})
}

func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	return r.s.write(ctx, func(t *tx) error {
		if _, ok := r.s.coupons[code]; !ok {
			return coupon.ErrNotFound
		}
		t.record(restore(r.s.coupons, code))
		delete(r.s.coupons, code)
		return nil
	})
}

// UserRepository stores users. Emails are unique.
type UserRepository struct{ s *Store }

// Users returns the user repository of s.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	return r.s.write(ctx, func(t *tx) error {
		for _, stored := range r.s.users {
			if stored.Email == u.Email {
				return user.ErrEmailTaken
			}
		}
		t.record(restore(r.s.users, u.ID))
		r.s.users[u.ID] = *u
		return nil
	})
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	var (
		u  user.User
		ok bool
	)
	r.s.read(ctx, func() { u, ok = r.s.users[id] })
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	return r.s.write(ctx, func(t *tx) error {
		stored, ok := r.s.users[u.ID]
		if !ok {
			return user.ErrNotFound
		}
		for id, other := range r.s.users {
			if id != u.ID && other.Email == u.Email {
				return user.ErrEmailTaken
			}
		}
		t.record(restore(r.s.users, u.ID))
		next := *u
		next.CreatedAt = stored.CreatedAt
		r.s.users[u.ID] = next
		return nil
	})
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.s.write(ctx, func(t *tx) error {
		if _, ok := r.s.users[id]; !ok {
			return user.ErrNotFound
		}
		t.record(restore(r.s.users, id))
		delete(r.s.users, id)
		return nil
	})
}

// ReviewRepository stores reviews. A user reviews a product at most once.
type ReviewRepository struct{ s *Store }

// Reviews returns the review repository of s.
func (s *Store) Reviews() *ReviewRepository { return &ReviewRepository{s: s} }

func (r *ReviewRepository) Create(ctx context.Context, rv *review.Review) error {
	return r.s.write(ctx, func(t *tx) error {
		for _, stored := range r.s.reviews {
			if stored.UserID == rv.UserID && stored.ProductID == rv.ProductID {
				return review.ErrAlreadyReviewed
			}
		}
		t.record(restore(r.s.reviews, rv.ID))
		r.s.reviews[rv.ID] = *rv
		return nil
	})
}

func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*review.Review, error) {
	var (
		rv review.Review
		ok bool
	)
	r.s.read(ctx, func() { rv, ok = r.s.reviews[id] })
	if !ok {
		return nil, review.ErrNotFound
	}
	return &rv, nil
}

func (r *ReviewRepository) Update(ctx context.Context, rv *review.Review) error {
	return r.s.write(ctx, func(t *tx) error {
		stored, ok := r.s.reviews[rv.ID]
		if !ok {
			return review.ErrNotFound
		}
		t.record(restore(r.s.reviews, rv.ID))
		stored.Rating, stored.Comment = rv.Rating, rv.Comment
		r.s.reviews[rv.ID] = stored
		return nil
	})
}

func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	return r.s.write(ctx, func(t *tx) error {
		if _, ok := r.s.reviews[id]; !ok {
			return review.ErrNotFound
		}
		t.record(restore(r.s.reviews, id))
		delete(r.s.reviews, id)
		return nil
	})
}

// APIKeyRepository stores API keys keyed by hash.
type APIKeyRepository struct{ s *Store }

// APIKeys returns the API key repository of s.
func (s *Store) APIKeys() *APIKeyRepository { return &APIKeyRepository{s: s} }

func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var (
		k  auth.APIKeyInfo
		ok bool
	)
	r.s.read(ctx, func() { k, ok = r.s.apikeys[hash] })
	if !ok {
		return nil, auth.ErrAPIKeyNotFound
	}
	k.Scopes = slices.Clone(k.Scopes)
	return &k, nil
}

// Upsert stores k, replacing a key with the same hash.
func (r *APIKeyRepository) Upsert(ctx context.Context, k auth.APIKeyInfo) error {
	return r.s.write(ctx, func(t *tx) error {
		t.record(restore(r.s.apikeys, k.KeyHash))
		k.Scopes = slices.Clone(k.Scopes)
		r.s.apikeys[k.KeyHash] = k
		return nil
	})
}
