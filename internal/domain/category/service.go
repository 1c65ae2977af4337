package category

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/apperr"
)

// maxNameLength bounds category and subcategory names.
const maxNameLength = 100

// Input carries the editable attributes of a category or subcategory.
type Input struct {
	Name string
}

func (in Input) validate() (name, slug string, err error) {
	name = strings.TrimSpace(in.Name)
	slug = Slugify(name)
	details := map[string]string{}
	switch {
	case name == "":
		details["name"] = "is required"
	case len(name) > maxNameLength:
		details["name"] = "must be at most 100 characters"
	case slug == "":
		details["name"] = "must contain a letter or digit"
	}
	if len(details) > 0 {
		return "", "", apperr.New(apperr.KindValidation, "invalid category").WithDetails(details)
	}
	return name, slug, nil
}

// Service manages the taxonomy.
type Service struct {
	categories    Repository
	subcategories SubcategoryRepository
	now           func() time.Time
}

// NewService creates a category Service.
func NewService(categories Repository, subcategories SubcategoryRepository) *Service {
	return &Service{categories: categories, subcategories: subcategories, now: time.Now}
}

// Create stores a category named in.Name under its slug.
func (s *Service) Create(ctx context.Context, in Input) (*Category, error) {
	name, slug, err := in.validate()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	c := &Category{
		ID:        uuid.NewString(),
		Name:      name,
		Slug:      slug,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.categories.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create category")
	}
	return c, nil
}

// Get returns a category by id.
func (s *Service) Get(ctx context.Context, id string) (*Category, error) {
	c, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get category")
	}
	return c, nil
}

// GetBySlug returns the category with slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Category, error) {
	c, err := s.categories.GetBySlug(ctx, strings.ToLower(slug))
	if err != nil {
		return nil, errors.Wrap(err, "get category by slug")
	}
	return c, nil
}

// Update renames a category. The slug follows the name.
func (s *Service) Update(ctx context.Context, id string, in Input) (*Category, error) {
	name, slug, err := in.validate()
	if err != nil {
		return nil, err
	}
	c, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get category")
	}
	c.Name, c.Slug = name, slug
	c.UpdatedAt = s.now().UTC()
	if err := s.categories.Update(ctx, c); err != nil {
		return nil, errors.Wrap(err, "update category")
	}
	return c, nil
}

// Delete removes a category that nothing references.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.categories.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete category")
	}
	return nil
}

// CreateSubcategory stores a subcategory of an existing category.
func (s *Service) CreateSubcategory(ctx context.Context, categoryID string, in Input) (*Subcategory, error) {
	name, slug, err := in.validate()
	if err != nil {
		return nil, err
	}
	if _, err := s.categories.GetByID(ctx, categoryID); err != nil {
		return nil, errors.Wrap(err, "get category")
	}
	now := s.now().UTC()
	sc := &Subcategory{
		ID:         uuid.NewString(),
		Name:       name,
		Slug:       slug,
		CategoryID: categoryID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.subcategories.Create(ctx, sc); err != nil {
		return nil, errors.Wrap(err, "create subcategory")
	}
	return sc, nil
}

// GetSubcategory returns a subcategory by id.
func (s *Service) GetSubcategory(ctx context.Context, id string) (*Subcategory, error) {
	sc, err := s.subcategories.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get subcategory")
	}
	return sc, nil
}

// GetSubcategoryBySlug returns the subcategory with slug.
func (s *Service) GetSubcategoryBySlug(ctx context.Context, slug string) (*Subcategory, error) {
	sc, err := s.subcategories.GetBySlug(ctx, strings.ToLower(slug))
	if err != nil {
		return nil, errors.Wrap(err, "get subcategory by slug")
	}
	return sc, nil
}

// UpdateSubcategory renames a subcategory.
func (s *Service) UpdateSubcategory(ctx context.Context, id string, in Input) (*Subcategory, error) {
	name, slug, err := in.validate()
	if err != nil {
		return nil, err
	}
	sc, err := s.subcategories.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get subcategory")
	}
	sc.Name, sc.Slug = name, slug
	sc.UpdatedAt = s.now().UTC()
	if err := s.subcategories.Update(ctx, sc); err != nil {
		return nil, errors.Wrap(err, "update subcategory")
	}
	return sc, nil
}

// DeleteSubcategory removes a subcategory that no product references.
func (s *Service) DeleteSubcategory(ctx context.Context, id string) error {
	if err := s.subcategories.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete subcategory")
	}
	return nil
}

// CheckPlacement verifies that a product may be filed under categoryID and
// subcategoryID. Both are optional, but a subcategory needs its category.
func (s *Service) CheckPlacement(ctx context.Context, categoryID, subcategoryID string) error {
	if categoryID == "" {
		if subcategoryID != "" {
			return apperr.New(apperr.KindValidation, "invalid product").
				WithDetails(map[string]string{"categoryId": "is required with subcategoryId"})
		}
		return nil
	}
	if _, err := s.categories.GetByID(ctx, categoryID); err != nil {
		return errors.Wrap(err, "get category")
	}
	if subcategoryID == "" {
		return nil
	}
	sc, err := s.subcategories.GetByID(ctx, subcategoryID)
	if err != nil {
		return errors.Wrap(err, "get subcategory")
	}
	if sc.CategoryID != categoryID {
		return ErrMismatch
	}
	return nil
}
