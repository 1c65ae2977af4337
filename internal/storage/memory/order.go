package memory

import (
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository stores orders in a Store.
type OrderRepository struct {
	s *Store
}

// Orders returns the order repository of s.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

func cloneOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	if o.Coupon != nil {
		applied := *o.Coupon
		o.Coupon = &applied
	}
	return o
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return r.s.write(ctx, func(t *tx) error {
		if _, ok := r.s.orders[o.ID]; ok {
			return errors.Errorf("order %s already exists", o.ID)
		}
		t.record(restore(r.s.orders, o.ID))
		r.s.orders[o.ID] = cloneOrder(*o)
		return nil
	})
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	var (
		o  order.Order
		ok bool
	)
	r.s.read(ctx, func() { o, ok = r.s.orders[id] })
	if !ok {
		return nil, order.ErrNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, change order.StatusChange) (*order.Order, error) {
	var out order.Order
	err := r.s.write(ctx, func(t *tx) error {
		o, ok := r.s.orders[id]
		if !ok {
			return order.ErrNotFound
		}
		t.record(restore(r.s.orders, id))
		at := change.At
		if change.Paid && !o.IsPaid {
			o.IsPaid, o.PaidAt = true, &at
		}
		if change.Delivered && !o.IsDelivered {
			o.IsDelivered, o.DeliveredAt = true, &at
		}
		o.UpdatedAt = at
		r.s.orders[id] = o
		out = cloneOrder(o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
