package memory

import (
	"context"
	"slices"
	"time"

	"github.com/xenking/storefront/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository stores products in a Store.
type ProductRepository struct {
	s *Store
}

// Products returns the product repository of s.
func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

func cloneProduct(p product.Product) product.Product {
	p.Colors = slices.Clone(p.Colors)
	return p
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var (
		p  product.Product
		ok bool
	)
	r.s.read(ctx, func() { p, ok = r.s.products[id] })
	if !ok {
		return nil, product.ErrNotFound
	}
	p = cloneProduct(p)
	return &p, nil
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	r.s.read(ctx, func() {
		for _, id := range ids {
			if p, ok := r.s.products[id]; ok {
				out = append(out, cloneProduct(p))
			}
		}
	})
	return out, nil
}

// GetBySlug returns the oldest product with slug.
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*product.Product, error) {
	var (
		p     product.Product
		found bool
	)
	r.s.read(ctx, func() {
		for _, stored := range r.s.products {
			if stored.Slug != slug {
				continue
			}
			if !found || stored.CreatedAt.Before(p.CreatedAt) ||
				(stored.CreatedAt.Equal(p.CreatedAt) && stored.ID < p.ID) {
				p, found = stored, true
			}
		}
	})
	if !found {
		return nil, product.ErrNotFound
	}
	p = cloneProduct(p)
	return &p, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	return r.s.write(ctx, func(t *tx) error {
		t.record(restore(r.s.products, p.ID))
		r.s.products[p.ID] = cloneProduct(*p)
		return nil
	})
}

// Update replaces the editable fields. Stock counters are kept as stored.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	return r.s.write(ctx, func(t *tx) error {
		stored, ok := r.s.products[p.ID]
		if !ok {
			return product.ErrNotFound
		}
		t.record(restore(r.s.products, p.ID))
		next := cloneProduct(*p)
		next.Sold = stored.Sold
		next.CreatedAt = stored.CreatedAt
		r.s.products[p.ID] = next
		*p = cloneProduct(next)
		return nil
	})
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	return r.s.write(ctx, func(t *tx) error {
		if _, ok := r.s.products[id]; !ok {
			return product.ErrNotFound
		}
		t.record(restore(r.s.products, id))
		delete(r.s.products, id)
		return nil
	})
}

// DecrementStock applies all changes or none.
func (r *ProductRepository) DecrementStock(ctx context.Context, changes []product.StockChange) error {
	return r.s.write(ctx, func(t *tx) error {
		var short []string
		for _, c := range changes {
			p, ok := r.s.products[c.ProductID]
			if !ok || p.Quantity < c.Quantity {
				short = append(short, c.ProductID)
			}
		}
		if len(short) > 0 {
			return &product.InsufficientStockError{ProductIDs: short}
		}

		now := time.Now().UTC()
		for _, c := range changes {
			t.record(restore(r.s.products, c.ProductID))
			p := r.s.products[c.ProductID]
			p.Quantity -= c.Quantity
			p.Sold += c.Quantity
			p.UpdatedAt = now
			r.s.products[c.ProductID] = p
		}
		return nil
	})
}
