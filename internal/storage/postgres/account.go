package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/review"
	"github.com/xenking/storefront/internal/domain/user"
)

var (
	_ user.Repository   = (*UserRepository)(nil)
	_ review.Repository = (*ReviewRepository)(nil)
)

const (
	userColumns   = `id, name, email, role, password_hash, created_at, updated_at`
	reviewColumns = `id, user_id, product_id, rating, comment, created_at`
)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	db *DB
}

// Users returns the user repository.
func (d *DB) Users() *UserRepository { return &UserRepository{db: d} }

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Name, u.Email, u.Role, u.PasswordHash, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return user.ErrEmailTaken
		}
		return errors.Wrap(err, "insert user")
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get user %q", id)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get user %q", id)
	}
	return &u, nil
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	tag, err := r.db.conn(ctx).Exec(ctx, `
		UPDATE users SET name = $2, email = $3, role = $4, password_hash = $5, updated_at = $6
		WHERE id = $1`,
		u.ID, u.Name, u.Email, u.Role, u.PasswordHash, u.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return user.ErrEmailTaken
		}
		return errors.Wrapf(err, "update user %q", u.ID)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.conn(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "delete user %q", id)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// ReviewRepository implements review.Repository backed by PostgreSQL.
type ReviewRepository struct {
	db *DB
}

// Reviews returns the review repository.
func (d *DB) Reviews() *ReviewRepository { return &ReviewRepository{db: d} }

func scanReview(row pgx.CollectableRow) (review.Review, error) {
	var rv review.Review
	err := row.Scan(&rv.ID, &rv.UserID, &rv.ProductID, &rv.Rating, &rv.Comment, &rv.CreatedAt)
	return rv, err
}

func (r *ReviewRepository) Create(ctx context.Context, rv *review.Review) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO reviews (`+reviewColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		rv.ID, rv.UserID, rv.ProductID, rv.Rating, rv.Comment, rv.CreatedAt,
	)
	switch pgCode(err) {
	case "":
	case codeUniqueViolation:
		return review.ErrAlreadyReviewed
	case codeForeignKeyViolation:
		return product.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "insert review")
	}
	return nil
}

func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*review.Review, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get review %q", id)
	}
	rv, err := pgx.CollectExactlyOneRow(rows, scanReview)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, review.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get review %q", id)
	}
	return &rv, nil
}

func (r *ReviewRepository) Update(ctx context.Context, rv *review.Review) error {
	tag, err := r.db.conn(ctx).Exec(ctx, `UPDATE reviews SET rating = $2, comment = $3 WHERE id = $1`,
		rv.ID, rv.Rating, rv.Comment)
	if err != nil {
		return errors.Wrapf(err, "update review %q", rv.ID)
	}
	if tag.RowsAffected() == 0 {
		return review.ErrNotFound
	}
	return nil
}

func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.conn(ctx).Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "delete review %q", id)
	}
	if tag.RowsAffected() == 0 {
		return review.ErrNotFound
	}
	return nil
}
