package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

const couponColumns = `code, discount_type, value, description, valid_from, expires_at, created_at, updated_at`

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	db *DB
}

// Coupons returns the coupon repository.
func (d *DB) Coupons() *CouponRepository { return &CouponRepository{db: d} }

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(&c.Code, &c.DiscountType, &c.Value, &c.Description, &c.ValidFrom,
		&c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// FindByCode looks up a coupon by its normalized code. Validity windows
// are checked by the caller.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	return &c, nil
}

func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO coupons (`+couponColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.Code, c.DiscountType, c.Value, c.Description, c.ValidFrom, c.ExpiresAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return coupon.ErrAlreadyExists
		}
		return errors.Wrapf(err, "create coupon %q", c.Code)
	}
	return nil
}

// Update replaces the terms of a coupon. The code and creation time are
// kept.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.db.conn(ctx).Exec(ctx, `
		UPDATE coupons
		SET discount_type = $2, value = $3, description = $4, valid_from = $5,
		    expires_at = $6, updated_at = $7
		WHERE code = $1`,
		c.Code, c.DiscountType, c.Value, c.Description, c.ValidFrom, c.ExpiresAt, c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "update coupon %q", c.Code)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// CreateBatch inserts coupons, skipping codes that already exist. It
// returns the number of rows inserted.
func (r *CouponRepository) CreateBatch(ctx context.Context, coupons []coupon.Coupon) (int64, error) {
	if len(coupons) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, c := range coupons {
		batch.Queue(`
			INSERT INTO coupons (`+couponColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (code) DO NOTHING`,
			c.Code, c.DiscountType, c.Value, c.Description, c.ValidFrom, c.ExpiresAt, c.CreatedAt, c.UpdatedAt,
		)
	}

	var inserted int64
	err := r.db.WithinTx(ctx, func(ctx context.Context) error {
		results := r.db.conn(ctx).SendBatch(ctx, batch)
		for range coupons {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return errors.Wrap(err, "insert coupon")
			}
			inserted += tag.RowsAffected()
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Codes streams every stored code to fn.
func (r *CouponRepository) Codes(ctx context.Context, fn func(code string)) error {
	rows, err := r.db.conn(ctx).Query(ctx, `SELECT code FROM coupons`)
	if err != nil {
		return errors.Wrap(err, "list coupon codes")
	}
	var code string
	_, err = pgx.ForEachRow(rows, []any{&code}, func() error {
		fn(code)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "scan coupon codes")
	}
	return nil
}

func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.db.conn(ctx).Exec(ctx, `DELETE FROM coupons WHERE code = $1`, code)
	if err != nil {
		return errors.Wrapf(err, "delete coupon %q", code)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}
