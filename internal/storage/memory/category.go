package memory

import (
	"context"

	"github.com/xenking/storefront/internal/domain/category"
)

var (
	_ category.Repository            = (*CategoryRepository)(nil)
	_ category.SubcategoryRepository = (*SubcategoryRepository)(nil)
)

// CategoryRepository stores categories. Slugs are unique.
type CategoryRepository struct{ s *Store }

// Categories returns the category repository of s.
func (s *Store) Categories() *CategoryRepository { return &CategoryRepository{s: s} }

func (r *CategoryRepository) slugTaken(c *category.Category) bool {
	for id, stored := range r.s.categories {
		if id != c.ID && stored.Slug == c.Slug {
			return true
		}
	}
	return false
}

func (r *CategoryRepository) Create(ctx context.Context, c *category.Category) error {
	return r.s.write(ctx, func(t *tx) error {
		if r.slugTaken(c) {
			return category.ErrSlugTaken
		}
		t.record(restore(r.s.categories, c.ID))
		r.s.categories[c.ID] = *c
		return nil
	})
}

func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*category.Category, error) {
	var (
		c  category.Category
		ok bool
	)
	r.s.read(ctx, func() { c, ok = r.s.categories[id] })
	if !ok {
		return nil, category.ErrNotFound
	}
	return &c, nil
}

func (r *CategoryRepository) GetBySlug(ctx context.Context, slug string) (*category.Category, error) {
	var (
		c  category.Category
		ok bool
	)
	r.s.read(ctx, func() {
		for _, stored := range r.s.categories {
			if stored.Slug == slug {
				c, ok = stored, true
				return
			}
		}
	})
	if !ok {
		return nil, category.ErrNotFound
	}
	return &c, nil
}

func (r *CategoryRepository) Update(ctx context.Context, c *category.Category) error {
	return r.s.write(ctx, func(t *tx) error {
		stored, ok := r.s.categories[c.ID]
		if !ok {
			return category.ErrNotFound
		}
		if r.slugTaken(c) {
			return category.ErrSlugTaken
		}
		t.record(restore(r.s.categories, c.ID))
		stored.Name, stored.Slug, stored.UpdatedAt = c.Name, c.Slug, c.UpdatedAt
		r.s.categories[c.ID] = stored
		return nil
	})
}

// Delete refuses while a subcategory or product points at the category.
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	return r.s.write(ctx, func(t *tx) error {
		if _, ok := r.s.categories[id]; !ok {
			return category.ErrNotFound
		}
		for _, sc := range r.s.subcategories {
			if sc.CategoryID == id {
				return category.ErrInUse
			}
		}
		for _, p := range r.s.products {
			if p.CategoryID == id {
				return category.ErrInUse
			}
		}
		t.record(restore(r.s.categories, id))
		delete(r.s.categories, id)
		return nil
	})
}

// SubcategoryRepository stores subcategories. Slugs are unique.
type SubcategoryRepository struct{ s *Store }

// Subcategories returns the subcategory repository of s.
func (s *Store) Subcategories() *SubcategoryRepository { return &SubcategoryRepository{s: s} }

func (r *SubcategoryRepository) slugTaken(sc *category.Subcategory) bool {
	for id, stored := range r.s.subcategories {
		if id != sc.ID && stored.Slug == sc.Slug {
			return true
		}
	}
	return false
}

func (r *SubcategoryRepository) Create(ctx context.Context, sc *category.Subcategory) error {
	return r.s.write(ctx, func(t *tx) error {
		if _, ok := r.s.categories[sc.CategoryID]; !ok {
			return category.ErrNotFound
		}
		if r.slugTaken(sc) {
			return category.ErrSlugTaken
		}
		t.record(restore(r.s.subcategories, sc.ID))
		r.s.subcategories[sc.ID] = *sc
		return nil
	})
}

func (r *SubcategoryRepository) GetByID(ctx context.Context, id string) (*category.Subcategory, error) {
	var (
		sc category.Subcategory
		ok bool
	)
	r.s.read(ctx, func() { sc, ok = r.s.subcategories[id] })
	if !ok {
		return nil, category.ErrSubcategoryNotFound
	}
	return &sc, nil
}

func (r *SubcategoryRepository) GetBySlug(ctx context.Context, slug string) (*category.Subcategory, error) {
	var (
		sc category.Subcategory
		ok bool
	)
	r.s.read(ctx, func() {
		for _, stored := range r.s.subcategories {
			if stored.Slug == slug {
				sc, ok = stored, true
				return
			}
		}
	})
	if !ok {
		return nil, category.ErrSubcategoryNotFound
	}
	return &sc, nil
}

func (r *SubcategoryRepository) Update(ctx context.Context, sc *category.Subcategory) error {
	return r.s.write(ctx, func(t *tx) error {
		stored, ok := r.s.subcategories[sc.ID]
		if !ok {
			return category.ErrSubcategoryNotFound
		}
		if r.slugTaken(sc) {
			return category.ErrSlugTaken
		}
		t.record(restore(r.s.subcategories, sc.ID))
		stored.Name, stored.Slug, stored.UpdatedAt = sc.Name, sc.Slug, sc.UpdatedAt
		r.s.subcategories[sc.ID] = stored
		return nil
	})
}

// Delete refuses while a product points at the subcategory.
func (r *SubcategoryRepository) Delete(ctx context.Context, id string) error {
	return r.s.write(ctx, func(t *tx) error {
		if _, ok := r.s.subcategories[id]; !ok {
			return category.ErrSubcategoryNotFound
		}
		for _, p := range r.s.products {
			if p.SubcategoryID == id {
				return category.ErrInUse
			}
		}
		t.record(restore(r.s.subcategories, id))
		delete(r.s.subcategories, id)
		return nil
	})
}
