// Package category holds the two-level product taxonomy: categories and the
// subcategories that belong to exactly one of them.
package category

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/query"
)

var (
	// ErrNotFound is returned when a requested category does not exist.
	ErrNotFound = apperr.New(apperr.KindNotFound, "category not found")
	// ErrSubcategoryNotFound is returned when a requested subcategory does
	// not exist.
	ErrSubcategoryNotFound = apperr.New(apperr.KindNotFound, "subcategory not found")
	// ErrSlugTaken is returned when another entry of the same collection
	// already has the slug.
	ErrSlugTaken = apperr.New(apperr.KindConflict, "slug is already taken")
	// ErrInUse is returned when deleting an entry that subcategories or
	// products still reference.
	ErrInUse = apperr.New(apperr.KindConflict, "category is still referenced")
	// ErrMismatch is returned when a product names a subcategory of another
	// category.
	ErrMismatch = apperr.New(apperr.KindConflict, "subcategory/category mismatch")
)

// Category is a top-level catalog section.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Document returns c keyed by schema field names.
func (c *Category) Document() query.Document {
	return query.Document{
		"id":        c.ID,
		"name":      c.Name,
		"slug":      c.Slug,
		"createdAt": c.CreatedAt,
		"updatedAt": c.UpdatedAt,
	}
}

// Subcategory is a section within one category. Its category is fixed at
// creation.
type Subcategory struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	CategoryID string    `json:"categoryId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Document returns s keyed by schema field names.
func (s *Subcategory) Document() query.Document {
	return query.Document{
		"id":         s.ID,
		"name":       s.Name,
		"slug":       s.Slug,
		"categoryId": s.CategoryID,
		"createdAt":  s.CreatedAt,
		"updatedAt":  s.UpdatedAt,
	}
}

// Schema is the queryable shape of categories.
var Schema = &query.Schema{
	Collection: "categories",
	Fields: map[string]query.Field{
		"id":        {Type: query.String},
		"name":      {Type: query.String},
		"slug":      {Type: query.String},
		"createdAt": {Type: query.Time, Column: "created_at"},
		"updatedAt": {Type: query.Time, Column: "updated_at"},
	},
	Search:      []string{"name"},
	DefaultSort: "name",
}

// SubcategorySchema is the queryable shape of subcategories.
var SubcategorySchema = &query.Schema{
	Collection: "subcategories",
	Fields: map[string]query.Field{
		"id":         {Type: query.String},
		"name":       {Type: query.String},
		"slug":       {Type: query.String},
		"categoryId": {Type: query.String, Column: "category_id"},
		"createdAt":  {Type: query.Time, Column: "created_at"},
		"updatedAt":  {Type: query.Time, Column: "updated_at"},
	},
	Search:      []string{"name"},
	DefaultSort: "name",
}

// Repository defines persistence operations for categories.
type Repository interface {
	// Create stores c or returns ErrSlugTaken.
	Create(ctx context.Context, c *Category) error
	GetByID(ctx context.Context, id string) (*Category, error)
	GetBySlug(ctx context.Context, slug string) (*Category, error)
	// Update stores the name and slug of c or returns ErrSlugTaken.
	Update(ctx context.Context, c *Category) error
	// Delete removes a category or returns ErrInUse while subcategories or
	// products reference it.
	Delete(ctx context.Context, id string) error
}

// SubcategoryRepository defines persistence operations for subcategories.
type SubcategoryRepository interface {
	// Create stores s or returns ErrSlugTaken.
	Create(ctx context.Context, s *Subcategory) error
	GetByID(ctx context.Context, id string) (*Subcategory, error)
	GetBySlug(ctx context.Context, slug string) (*Subcategory, error)
	// Update stores the name and slug of s or returns ErrSlugTaken.
	Update(ctx context.Context, s *Subcategory) error
	// Delete removes a subcategory or returns ErrInUse while products
	// reference it.
	Delete(ctx context.Context, id string) error
}

// Slugify lowercases name and joins its runs of letters and digits with
// single hyphens.
func Slugify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	gap := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if gap && b.Len() > 0 {
				b.WriteByte('-')
			}
			gap = false
			b.WriteRune(r)
			continue
		}
		gap = true
	}
	return b.String()
}
