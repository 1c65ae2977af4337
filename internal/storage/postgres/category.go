package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/category"
)

var (
	_ category.Repository            = (*CategoryRepository)(nil)
	_ category.SubcategoryRepository = (*SubcategoryRepository)(nil)
)

const (
	categoryColumns    = `id, name, slug, created_at, updated_at`
	subcategoryColumns = `id, name, slug, category_id, created_at, updated_at`
)

// CategoryRepository implements category.Repository backed by PostgreSQL.
type CategoryRepository struct {
	db *DB
}

// Categories returns the category repository.
func (d *DB) Categories() *CategoryRepository { return &CategoryRepository{db: d} }

func scanCategory(row pgx.CollectableRow) (category.Category, error) {
	var c category.Category
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *CategoryRepository) Create(ctx context.Context, c *category.Category) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO categories (`+categoryColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Name, c.Slug, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return category.ErrSlugTaken
		}
		return errors.Wrapf(err, "create category %q", c.ID)
	}
	return nil
}

func (r *CategoryRepository) get(ctx context.Context, where string, arg string) (*category.Category, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `SELECT `+categoryColumns+` FROM categories WHERE `+where+` = $1`, arg)
	if err != nil {
		return nil, errors.Wrapf(err, "get category %q", arg)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, category.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get category %q", arg)
	}
	return &c, nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*category.Category, error) {
	return r.get(ctx, "id", id)
}

func (r *CategoryRepository) GetBySlug(ctx context.Context, slug string) (*category.Category, error) {
	return r.get(ctx, "slug", slug)
}

func (r *CategoryRepository) Update(ctx context.Context, c *category.Category) error {
	tag, err := r.db.conn(ctx).Exec(ctx, `
		UPDATE categories SET name = $2, slug = $3, updated_at = $4 WHERE id = $1`,
		c.ID, c.Name, c.Slug, c.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return category.ErrSlugTaken
		}
		return errors.Wrapf(err, "update category %q", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return category.ErrNotFound
	}
	return nil
}

// Delete relies on the RESTRICT foreign keys of subcategories and products.
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.conn(ctx).Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return category.ErrInUse
		}
		return errors.Wrapf(err, "delete category %q", id)
	}
	if tag.RowsAffected() == 0 {
		return category.ErrNotFound
	}
	return nil
}

// SubcategoryRepository implements category.SubcategoryRepository backed by
// PostgreSQL.
type SubcategoryRepository struct {
	db *DB
}

// Subcategories returns the subcategory repository.
func (d *DB) Subcategories() *SubcategoryRepository { return &SubcategoryRepository{db: d} }

func scanSubcategory(row pgx.CollectableRow) (category.Subcategory, error) {
	var s category.Subcategory
	err := row.Scan(&s.ID, &s.Name, &s.Slug, &s.CategoryID, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *SubcategoryRepository) Create(ctx context.Context, s *category.Subcategory) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO subcategories (`+subcategoryColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Name, s.Slug, s.CategoryID, s.CreatedAt, s.UpdatedAt,
	)
	switch pgCode(err) {
	case "":
	case codeUniqueViolation:
		return category.ErrSlugTaken
	case codeForeignKeyViolation:
		return category.ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "create subcategory %q", s.ID)
	}
	return nil
}

func (r *SubcategoryRepository) get(ctx context.Context, where string, arg string) (*category.Subcategory, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `SELECT `+subcategoryColumns+` FROM subcategories WHERE `+where+` = $1`, arg)
	if err != nil {
		return nil, errors.Wrapf(err, "get subcategory %q", arg)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSubcategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, category.ErrSubcategoryNotFound
		}
		return nil, errors.Wrapf(err, "get subcategory %q", arg)
	}
	return &s, nil
}

func (r *SubcategoryRepository) GetByID(ctx context.Context, id string) (*category.Subcategory, error) {
	return r.get(ctx, "id", id)
}

func (r *SubcategoryRepository) GetBySlug(ctx context.Context, slug string) (*category.Subcategory, error) {
	return r.get(ctx, "slug", slug)
}

func (r *SubcategoryRepository) Update(ctx context.Context, s *category.Subcategory) error {
	tag, err := r.db.conn(ctx).Exec(ctx, `
		UPDATE subcategories SET name = $2, slug = $3, updated_at = $4 WHERE id = $1`,
		s.ID, s.Name, s.Slug, s.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return category.ErrSlugTaken
		}
		return errors.Wrapf(err, "update subcategory %q", s.ID)
	}
	if tag.RowsAffected() == 0 {
		return category.ErrSubcategoryNotFound
	}
	return nil
}

func (r *SubcategoryRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.conn(ctx).Exec(ctx, `DELETE FROM subcategories WHERE id = $1`, id)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return category.ErrInUse
		}
		return errors.Wrapf(err, "delete subcategory %q", id)
	}
	if tag.RowsAffected() == 0 {
		return category.ErrSubcategoryNotFound
	}
	return nil
}
