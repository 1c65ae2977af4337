package postgres

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

const productColumns = `id, title, description, price, price_after_discount, quantity, sold, colors,
	slug, category_id, subcategory_id, created_at, updated_at`

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db *DB
}

// Products returns the product repository.
func (d *DB) Products() *ProductRepository { return &ProductRepository{db: d} }

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p             product.Product
		categoryID    *string
		subcategoryID *string
	)
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Price, &p.PriceAfterDiscount,
		&p.Quantity, &p.Sold, &p.Colors, &p.Slug, &categoryID, &subcategoryID, &p.CreatedAt, &p.UpdatedAt)
	p.CategoryID = deref(categoryID)
	p.SubcategoryID = deref(subcategoryID)
	return p, err
}

// ref maps an unset reference to NULL.
func ref(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func deref(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

// classifyPlacement maps a foreign key violation on the taxonomy columns
// to the missing entry.
func classifyPlacement(err error, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
		if strings.Contains(pgErr.ConstraintName, "subcategory") {
			return category.ErrSubcategoryNotFound
		}
		return category.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// GetByIDs returns the products that exist among ids, in no particular order.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, errors.Wrap(err, "scan products")
	}
	return products, nil
}

// GetBySlug returns the oldest product with slug.
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE slug = $1
		ORDER BY created_at, id
		LIMIT 1`, slug)
	if err != nil {
		return nil, errors.Wrapf(err, "get product by slug %q", slug)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product by slug %q", slug)
	}
	return &p, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.Title, p.Description, p.Price, p.PriceAfterDiscount,
		p.Quantity, p.Sold, nonNil(p.Colors), p.Slug, ref(p.CategoryID), ref(p.SubcategoryID),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return classifyPlacement(err, "create product "+p.ID)
	}
	return nil
}

// Update replaces the editable fields and reloads the stored counters.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	rows, err := r.db.conn(ctx).Query(ctx, `
		UPDATE products
		SET title = $2, description = $3, price = $4, price_after_discount = $5,
		    quantity = $6, colors = $7, slug = $8, category_id = $9, subcategory_id = $10,
		    updated_at = $11
		WHERE id = $1
		RETURNING `+productColumns,
		p.ID, p.Title, p.Description, p.Price, p.PriceAfterDiscount,
		p.Quantity, nonNil(p.Colors), p.Slug, ref(p.CategoryID), ref(p.SubcategoryID), p.UpdatedAt,
	)
	if err != nil {
		return classifyPlacement(err, "update product "+p.ID)
	}
	updated, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return classifyPlacement(err, "update product "+p.ID)
	}
	*p = updated
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.conn(ctx).Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(err, "delete product %q", id)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// DecrementStock applies every change in one guarded statement. Rows whose
// quantity does not cover the change are left out of the update; if any is
// left out the transaction is rolled back.
func (r *ProductRepository) DecrementStock(ctx context.Context, changes []product.StockChange) error {
	if len(changes) == 0 {
		return nil
	}
	ids, qtys := stockArgs(changes)

	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		rows, err := r.db.conn(ctx).Query(ctx, `
			UPDATE products AS p
			SET quantity = p.quantity - c.qty,
			    sold = p.sold + c.qty,
			    updated_at = now()
			FROM unnest($1::text[], $2::bigint[]) AS c(id, qty)
			WHERE p.id = c.id AND p.quantity >= c.qty
			RETURNING p.id`,
			ids, qtys,
		)
		if err != nil {
			return classify(err, "decrement stock")
		}
		updated, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return classify(err, "decrement stock")
		}
		if len(updated) == len(ids) {
			return nil
		}

		var short []string
		for _, id := range ids {
			if !slices.Contains(updated, id) {
				short = append(short, id)
			}
		}
		return &product.InsufficientStockError{ProductIDs: short}
	})
}

// stockArgs splits changes into the array parameters of DecrementStock.
// Quantities travel as bigint so a change above the column range is
// rejected by the stock guard instead of wrapping.
func stockArgs(changes []product.StockChange) ([]string, []int64) {
	ids := make([]string, len(changes))
	qtys := make([]int64, len(changes))
	for i, c := range changes {
		ids[i] = c.ProductID
		qtys[i] = int64(c.Quantity)
	}
	return ids, qtys
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
