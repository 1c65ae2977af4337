package memory

import (
	"context"
	"slices"

	"github.com/xenking/storefront/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository stores carts in a Store, keyed by cart id.
type CartRepository struct {
	s *Store
}

// Carts returns the cart repository of s.
func (s *Store) Carts() *CartRepository { return &CartRepository{s: s} }

func cloneCart(c cart.Cart) cart.Cart {
	c.Items = slices.Clone(c.Items)
	if c.Items == nil {
		c.Items = []cart.Item{}
	}
	if c.Coupon != nil {
		applied := *c.Coupon
		c.Coupon = &applied
	}
	return c
}

func (r *CartRepository) GetByUser(ctx context.Context, userID string) (*cart.Cart, error) {
	var (
		c     cart.Cart
		found bool
	)
	r.s.read(ctx, func() {
		for _, stored := range r.s.carts {
			if stored.UserID == userID {
				c, found = cloneCart(stored), true
				return
			}
		}
	})
	if !found {
		return nil, cart.ErrNotFound
	}
	return &c, nil
}

func (r *CartRepository) GetByID(ctx context.Context, id string) (*cart.Cart, error) {
	var (
		c  cart.Cart
		ok bool
	)
	r.s.read(ctx, func() { c, ok = r.s.carts[id] })
	if !ok {
		return nil, cart.ErrNotFound
	}
	c = cloneCart(c)
	return &c, nil
}

func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	return r.s.write(ctx, func(t *tx) error {
		if c.Version == 0 {
			for _, stored := range r.s.carts {
				if stored.UserID == c.UserID {
					return cart.ErrConcurrentUpdate
				}
			}
		} else if stored, ok := r.s.carts[c.ID]; !ok || stored.Version != c.Version {
			return cart.ErrConcurrentUpdate
		}

		t.record(restore(r.s.carts, c.ID))
		next := cloneCart(*c)
		next.Version++
		r.s.carts[c.ID] = next
		c.Version = next.Version
		return nil
	})
}

func (r *CartRepository) Delete(ctx context.Context, id string, version int64) error {
	return r.s.write(ctx, func(t *tx) error {
		stored, ok := r.s.carts[id]
		if !ok || stored.Version != version {
			return cart.ErrConcurrentUpdate
		}
		t.record(restore(r.s.carts, id))
		delete(r.s.carts, id)
		return nil
	})
}
