package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
)

var _ cart.Repository = (*CartRepository)(nil)

const cartColumns = `id, user_id, items, coupon, total_price, item_discount, coupon_discount,
	total_price_after_discount, version, created_at, updated_at`

// CartRepository implements cart.Repository. Items and the applied coupon
// are stored as JSONB; writes are guarded by the version column.
type CartRepository struct {
	db *DB
}

// Carts returns the cart repository.
func (d *DB) Carts() *CartRepository { return &CartRepository{db: d} }

func scanCart(row pgx.CollectableRow) (cart.Cart, error) {
	var (
		c          cart.Cart
		items      []byte
		couponJSON []byte
	)
	if err := row.Scan(&c.ID, &c.UserID, &items, &couponJSON, &c.TotalPrice, &c.ItemDiscount,
		&c.CouponDiscount, &c.TotalPriceAfterDiscount, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return c, err
	}
	if err := json.Unmarshal(items, &c.Items); err != nil {
		return c, errors.Wrap(err, "unmarshal cart items")
	}
	if c.Items == nil {
		c.Items = []cart.Item{}
	}
	if len(couponJSON) > 0 {
		c.Coupon = new(coupon.Applied)
		if err := json.Unmarshal(couponJSON, c.Coupon); err != nil {
			return c, errors.Wrap(err, "unmarshal cart coupon")
		}
	}
	return c, nil
}

func (r *CartRepository) getOne(ctx context.Context, where string, arg any) (*cart.Cart, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `SELECT `+cartColumns+` FROM carts WHERE `+where+` = $1`, arg)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrap(err, "get cart")
	}
	return &c, nil
}

func (r *CartRepository) GetByUser(ctx context.Context, userID string) (*cart.Cart, error) {
	return r.getOne(ctx, "user_id", userID)
}

func (r *CartRepository) GetByID(ctx context.Context, id string) (*cart.Cart, error) {
	return r.getOne(ctx, "id", id)
}

// Save inserts a new cart or updates an existing one if its version still
// matches.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	items, err := json.Marshal(c.Items)
	if err != nil {
		return errors.Wrap(err, "marshal cart items")
	}
	var couponJSON []byte
	if c.Coupon != nil {
		if couponJSON, err = json.Marshal(c.Coupon); err != nil {
			return errors.Wrap(err, "marshal cart coupon")
		}
	}

	q := r.db.conn(ctx)
	if c.Version == 0 {
		tag, err := q.Exec(ctx, `
			INSERT INTO carts (`+cartColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
			ON CONFLICT DO NOTHING`,
			c.ID, c.UserID, items, couponJSON, c.TotalPrice, c.ItemDiscount, c.CouponDiscount,
			c.TotalPriceAfterDiscount, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return classify(err, "insert cart")
		}
		if tag.RowsAffected() == 0 {
			return cart.ErrConcurrentUpdate
		}
		c.Version = 1
		return nil
	}

	tag, err := q.Exec(ctx, `
		UPDATE carts
		SET items = $3, coupon = $4, total_price = $5, item_discount = $6, coupon_discount = $7,
		    total_price_after_discount = $8, updated_at = $9, version = version + 1
		WHERE id = $1 AND version = $2`,
		c.ID, c.Version, items, couponJSON, c.TotalPrice, c.ItemDiscount, c.CouponDiscount,
		c.TotalPriceAfterDiscount, c.UpdatedAt,
	)
	if err != nil {
		return classify(err, "update cart")
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrConcurrentUpdate
	}
	c.Version++
	return nil
}

func (r *CartRepository) Delete(ctx context.Context, id string, version int64) error {
	tag, err := r.db.conn(ctx).Exec(ctx, `DELETE FROM carts WHERE id = $1 AND version = $2`, id, version)
	if err != nil {
		return classify(err, "delete cart")
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrConcurrentUpdate
	}
	return nil
}
