// Package memory is an in-process storage backend. It implements every
// repository, the checkout transactor and the query finders, and backs the
// service and handler tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/review"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/query"
)

var _ order.Transactor = (*Store)(nil)

// Store holds all collections. Writers are serialized by txMu: a transaction
// holds it from start to commit, single writes hold it for one operation.
// Reads outside a transaction take txMu as well, so they wait for an open
// transaction to commit or roll back. Reads inside one see its own writes.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	categories    map[string]category.Category
	subcategories map[string]category.Subcategory
	products      map[string]product.Product
	carts         map[string]cart.Cart
	coupons       map[string]coupon.Coupon
	orders        map[string]order.Order
	users         map[string]user.User
	reviews       map[string]review.Review
	apikeys       map[string]auth.APIKeyInfo
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		categories:    map[string]category.Category{},
		subcategories: map[string]category.Subcategory{},
		products:      map[string]product.Product{},
		carts:         map[string]cart.Cart{},
		coupons:       map[string]coupon.Coupon{},
		orders:        map[string]order.Order{},
		users:         map[string]user.User{},
		reviews:       map[string]review.Review{},
		apikeys:       map[string]auth.APIKeyInfo{},
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

type tx struct {
	store *Store
	undo  []func()
}

type txKey struct{}

func txFrom(ctx context.Context, s *Store) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	if t == nil || t.store != s {
		return nil
	}
	return t
}

// WithinTx runs fn with exclusive write access. Writes made through ctx are
// undone in reverse order if fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx, s) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	t := &tx{store: s}
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		s.mu.Lock()
		for _, undo := range slices.Backward(t.undo) {
			undo()
		}
		s.mu.Unlock()
		return err
	}
	if err := ctx.Err(); err != nil {
		s.mu.Lock()
		for _, undo := range slices.Backward(t.undo) {
			undo()
		}
		s.mu.Unlock()
		return errors.Wrap(err, "commit")
	}
	return nil
}

// write runs fn under the data lock. Outside a transaction it also takes
// the writer lock for the duration of fn.
func (s *Store) write(ctx context.Context, fn func(t *tx) error) error {
	t := txFrom(ctx, s)
	if t == nil {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(t)
}

// read runs fn under the data lock. Outside a transaction it first waits
// for the writer lock.
func (s *Store) read(ctx context.Context, fn func()) {
	if txFrom(ctx, s) == nil {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// record registers an undo step. It is a no-op outside a transaction.
func (t *tx) record(undo func()) {
	if t != nil {
		t.undo = append(t.undo, undo)
	}
}

// restore returns an undo step that puts prev back under key, or removes
// key when it did not exist.
func restore[V any](m map[string]V, key string) func() {
	prev, existed := m[key]
	return func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	}
}

// finder evaluates descriptors against a snapshot of one collection.
type finder struct {
	docs func(ctx context.Context) []query.Document
}

var _ query.Finder = finder{}

func (f finder) Find(ctx context.Context, d query.Descriptor) ([]query.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs, _ := query.Evaluate(f.docs(ctx), d)
	return docs, nil
}

func (f finder) Count(ctx context.Context, d query.Descriptor) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	_, total := query.Evaluate(f.docs(ctx), d.Unpaginated())
	return total, nil
}

func snapshot[V any](s *Store, m map[string]V, doc func(*V) query.Document) func(context.Context) []query.Document {
	return func(ctx context.Context) []query.Document {
		var out []query.Document
		s.read(ctx, func() {
			out = make([]query.Document, 0, len(m))
			for _, v := range m {
				out = append(out, doc(&v))
			}
		})
		return out
	}
}

// Finder returns the finder for the collection described by schema.
func (s *Store) Finder(schema *query.Schema) (query.Finder, error) {
	switch schema.Collection {
	case category.Schema.Collection:
		return finder{docs: snapshot(s, s.categories, (*category.Category).Document)}, nil
	case category.SubcategorySchema.Collection:
		return finder{docs: snapshot(s, s.subcategories, (*category.Subcategory).Document)}, nil
	case product.Schema.Collection:
		return finder{docs: snapshot(s, s.products, (*product.Product).Document)}, nil
	case coupon.Schema.Collection:
		return finder{docs: snapshot(s, s.coupons, (*coupon.Coupon).Document)}, nil
	case order.Schema.Collection:
		return finder{docs: snapshot(s, s.orders, (*order.Order).Document)}, nil
	case user.Schema.Collection:
		return finder{docs: snapshot(s, s.users, (*user.User).Document)}, nil
	case review.Schema.Collection:
		return finder{docs: snapshot(s, s.reviews, (*review.Review).Document)}, nil
	default:
		return nil, errors.Errorf("unknown collection %q", schema.Collection)
	}
}
