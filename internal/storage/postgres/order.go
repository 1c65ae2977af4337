package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

const orderColumns = `id, user_id, items, shipping_address, payment_method, coupon, total_price,
	total_order_price, is_paid, paid_at, is_delivered, delivered_at, created_at, updated_at`

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db *DB
}

// Orders returns the order repository.
func (d *DB) Orders() *OrderRepository { return &OrderRepository{db: d} }

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	var items, addr, coupJSON []byte
	if err := row.Scan(&o.ID, &o.UserID, &items, &addr, &o.PaymentMethod, &coupJSON, &o.TotalPrice,
		&o.TotalOrderPrice, &o.IsPaid, &o.PaidAt, &o.IsDelivered, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return o, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, errors.Wrap(err, "unmarshal order items")
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return o, errors.Wrap(err, "unmarshal shipping address")
	}
	if len(coupJSON) > 0 {
		o.Coupon = new(coupon.Applied)
		if err := json.Unmarshal(coupJSON, o.Coupon); err != nil {
			return o, errors.Wrap(err, "unmarshal order coupon")
		}
	}
	return o, nil
}

// Create persists a new order. Items, address and coupon are serialized to
// JSON for storage in JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return errors.Wrap(err, "marshal shipping address")
	}
	var coupJSON []byte
	if o.Coupon != nil {
		if coupJSON, err = json.Marshal(o.Coupon); err != nil {
			return errors.Wrap(err, "marshal order coupon")
		}
	}

	_, err = r.db.conn(ctx).Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		o.ID, o.UserID, items, addr, o.PaymentMethod, coupJSON, o.TotalPrice,
		o.TotalOrderPrice, o.IsPaid, o.PaidAt, o.IsDelivered, o.DeliveredAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return classify(err, "insert order")
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return &o, nil
}

// UpdateStatus raises flags in one statement. SET expressions see the old
// row, so a timestamp is written only when its flag flips.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, change order.StatusChange) (*order.Order, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `
		UPDATE orders
		SET paid_at = CASE WHEN $2 AND NOT is_paid THEN $4 ELSE paid_at END,
		    is_paid = is_paid OR $2,
		    delivered_at = CASE WHEN $3 AND NOT is_delivered THEN $4 ELSE delivered_at END,
		    is_delivered = is_delivered OR $3,
		    updated_at = $4
		WHERE id = $1
		RETURNING `+orderColumns,
		id, change.Paid, change.Delivered, change.At,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "update order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "update order %q", id)
	}
	return &o, nil
}
