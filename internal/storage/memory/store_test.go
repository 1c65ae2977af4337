package memory

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/category"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/query"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type services struct {
	store  *Store
	carts  *cart.Service
	orders *order.Service
}

func newServices(t *testing.T) services {
	t.Helper()
	s := New()
	engine := pricing.NewEngine(coupon.NewRepoValidator(s.Coupons()))
	orders, err := order.NewService(s.Carts(), s.Products(), s.Orders(), s)
	require.NoError(t, err)
	return services{
		store:  s,
		carts:  cart.NewService(s.Carts(), s.Products(), engine),
		orders: orders,
	}
}

func addProduct(t *testing.T, s *Store, p product.Product) {
	t.Helper()
	require.NoError(t, s.Products().Create(context.Background(), &p))
}

func address() order.Address {
	return order.Address{Street: "1 Main St", City: "Springfield", Phone: "555-0100"}
}

func TestCheckout_LastUnit(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	addProduct(t, svc.store, product.Product{ID: "p1", Title: "Lamp", Price: dec("250"), Quantity: 1, Sold: 4})

	c, err := svc.carts.AddItem(ctx, "u1", cart.AddItemRequest{ProductID: "p1", Quantity: 1})
	require.NoError(t, err)

	o, err := svc.orders.Checkout(ctx, order.CheckoutRequest{UserID: "u1", CartID: c.ID, ShippingAddress: address()})
	require.NoError(t, err)
	assert.True(t, dec("250").Equal(o.TotalOrderPrice))

	p, err := svc.store.Products().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Quantity)
	assert.Equal(t, 5, p.Sold)

	_, err = svc.store.Carts().GetByID(ctx, c.ID)
	require.ErrorIs(t, err, cart.ErrNotFound)

	stored, err := svc.store.Orders().GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.UserID)
}

func TestCheckout_RollsBackOnStockShortage(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	addProduct(t, svc.store, product.Product{ID: "p1", Price: dec("10"), Quantity: 5})
	addProduct(t, svc.store, product.Product{ID: "p2", Price: dec("20"), Quantity: 5})

	_, err := svc.carts.AddItem(ctx, "u1", cart.AddItemRequest{ProductID: "p1", Quantity: 2})
	require.NoError(t, err)
	c, err := svc.carts.AddItem(ctx, "u1", cart.AddItemRequest{ProductID: "p2", Quantity: 3})
	require.NoError(t, err)

	// Someone else buys p2 down to one unit after the cart was filled.
	require.NoError(t, svc.store.Products().DecrementStock(ctx, []product.StockChange{{ProductID: "p2", Quantity: 4}}))

	_, err = svc.orders.Checkout(ctx, order.CheckoutRequest{UserID: "u1", CartID: c.ID, ShippingAddress: address()})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	var stockErr *product.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, []string{"p2"}, stockErr.ProductIDs)

	p1, err := svc.store.Products().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p1.Quantity)
	assert.Equal(t, 0, p1.Sold)

	_, err = svc.store.Carts().GetByID(ctx, c.ID)
	require.NoError(t, err)

	f, err := svc.store.Finder(order.Schema)
	require.NoError(t, err)
	d, err := query.NewBuilder(order.Schema, nil).Build()
	require.NoError(t, err)
	n, err := f.Count(ctx, d)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWithinTx_UndoesAllWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	addProduct(t, s, product.Product{ID: "p1", Price: dec("1"), Quantity: 3})

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Products().DecrementStock(ctx, []product.StockChange{{ProductID: "p1", Quantity: 2}}))
		require.NoError(t, s.Products().Create(ctx, &product.Product{ID: "p2", Price: dec("1")}))
		require.NoError(t, s.Orders().Create(ctx, &order.Order{ID: "o1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	p1, err := s.Products().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p1.Quantity)
	_, err = s.Products().GetByID(ctx, "p2")
	require.ErrorIs(t, err, product.ErrNotFound)
	_, err = s.Orders().GetByID(ctx, "o1")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestCheckout_ConcurrentLastUnit(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	addProduct(t, svc.store, product.Product{ID: "p1", Price: dec("99.99"), Quantity: 1})

	const buyers = 8
	cartIDs := make([]string, buyers)
	for i := range buyers {
		c, err := svc.carts.AddItem(ctx, fmt.Sprintf("u%d", i), cart.AddItemRequest{ProductID: "p1", Quantity: 1})
		require.NoError(t, err)
		cartIDs[i] = c.ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.orders.Checkout(ctx, order.CheckoutRequest{
				UserID:          fmt.Sprintf("u%d", i),
				CartID:          cartIDs[i],
				ShippingAddress: address(),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperr.KindOf(err) == apperr.KindConflict:
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, buyers-1, conflicts)

	p, err := svc.store.Products().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Quantity)
	assert.Equal(t, 1, p.Sold)
}

// racingCarts bumps the stored cart right after checkout read it.
type racingCarts struct {
	*CartRepository
}

func (r racingCarts) GetByID(ctx context.Context, id string) (*cart.Cart, error) {
	c, err := r.CartRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	bumped := *c
	if err := r.CartRepository.Save(ctx, &bumped); err != nil {
		return nil, err
	}
	return c, nil
}

func TestCheckout_CartChangedDuringCheckout(t *testing.T) {
	ctx := context.Background()
	svc := newServices(t)
	addProduct(t, svc.store, product.Product{ID: "p1", Price: dec("5"), Quantity: 10})

	c, err := svc.carts.AddItem(ctx, "u1", cart.AddItemRequest{ProductID: "p1", Quantity: 2})
	require.NoError(t, err)

	orders, err := order.NewService(racingCarts{svc.store.Carts()}, svc.store.Products(), svc.store.Orders(), svc.store)
	require.NoError(t, err)

	_, err = orders.Checkout(ctx, order.CheckoutRequest{UserID: "u1", CartID: c.ID, ShippingAddress: address()})
	require.ErrorIs(t, err, cart.ErrConcurrentUpdate)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	p, err := svc.store.Products().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, p.Quantity)
	assert.Equal(t, 0, p.Sold)

	got, err := svc.store.Carts().GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Version+1, got.Version)

	f, err := svc.store.Finder(order.Schema)
	require.NoError(t, err)
	d, err := query.NewBuilder(order.Schema, nil).Build()
	require.NoError(t, err)
	n, err := f.Count(ctx, d)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCartSave_FirstWriteWins(t *testing.T) {
	ctx := context.Background()
	s := New()
	repo := s.Carts()

	a := &cart.Cart{ID: "a", UserID: "u1"}
	b := &cart.Cart{ID: "b", UserID: "u1"}
	require.NoError(t, repo.Save(ctx, a))
	require.ErrorIs(t, repo.Save(ctx, b), cart.ErrConcurrentUpdate)
	assert.Equal(t, int64(1), a.Version)
}

func TestFinder_PaginationScenario(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 12; i++ {
		addProduct(t, s, product.Product{
			ID:        fmt.Sprintf("p%02d", i),
			Title:     fmt.Sprintf("Product %d", i),
			Price:     decimal.NewFromInt(int64(i * 100)),
			Quantity:  i,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}

	f, err := s.Finder(product.Schema)
	require.NoError(t, err)

	params := url.Values{"page": {"2"}, "limit": {"5"}, "sort": {"createdAt"}}
	d, err := query.Standard(product.Schema, params, query.DefaultLimit).Build()
	require.NoError(t, err)

	res, err := query.Run(ctx, f, d)
	require.NoError(t, err)
	assert.Equal(t, query.Metadata{Page: 2, Limit: 5, TotalPages: 3, TotalDocuments: 12}, res.Metadata)
	require.Len(t, res.Documents, 5)
	for i, doc := range res.Documents {
		assert.Equal(t, fmt.Sprintf("p%02d", i+6), doc["id"])
	}
}

func TestFinder_PriceRangeScenario(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 1; i <= 12; i++ {
		addProduct(t, s, product.Product{
			ID:    fmt.Sprintf("p%02d", i),
			Price: decimal.NewFromInt(int64(i * 100)),
		})
	}
	f, err := s.Finder(product.Schema)
	require.NoError(t, err)

	params := url.Values{"price[gte]": {"500"}, "price[lte]": {"1000"}, "sort": {"price"}, "fields": {"price"}}
	d, err := query.Standard(product.Schema, params, query.DefaultLimit).Build()
	require.NoError(t, err)

	res, err := query.Run(ctx, f, d)
	require.NoError(t, err)
	assert.Equal(t, int64(6), res.Metadata.TotalDocuments)
	require.Len(t, res.Documents, 6)
	assert.Equal(t, "p05", res.Documents[0]["id"])
	assert.Equal(t, "p10", res.Documents[5]["id"])
	assert.NotContains(t, res.Documents[0], "title")
}

func TestFinder_UnknownCollection(t *testing.T) {
	_, err := New().Finder(&query.Schema{Collection: "widgets"})
	require.Error(t, err)
}

func TestStore_ReadWaitsForOpenTransaction(t *testing.T) {
	ctx := context.Background()
	s := New()
	addProduct(t, s, product.Product{ID: "p1", Title: "Lamp", Price: dec("10"), Quantity: 3})

	written := make(chan struct{})
	release := make(chan struct{})
	txDone := make(chan error, 1)
	go func() {
		txDone <- s.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.Products().DecrementStock(ctx, []product.StockChange{{ProductID: "p1", Quantity: 3}}); err != nil {
				return err
			}
			p, err := s.Products().GetByID(ctx, "p1")
			if err != nil {
				return err
			}
			if p.Quantity != 0 {
				return errors.Errorf("own write not visible: quantity %d", p.Quantity)
			}
			close(written)
			<-release
			return errors.New("abort")
		})
	}()
	<-written

	got := make(chan int, 1)
	go func() {
		p, err := s.Products().GetByID(ctx, "p1")
		if err != nil {
			got <- -1
			return
		}
		got <- p.Quantity
	}()

	select {
	case q := <-got:
		t.Fatalf("read returned quantity %d while the transaction was open", q)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.EqualError(t, <-txDone, "abort")
	assert.Equal(t, 3, <-got)
}

func TestCategories_ReferencesBlockDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()

	require.NoError(t, s.Categories().Create(ctx, &category.Category{ID: "c1", Name: "Electronics", Slug: "electronics", CreatedAt: now}))
	err := s.Categories().Create(ctx, &category.Category{ID: "c2", Name: "electronics", Slug: "electronics", CreatedAt: now})
	require.ErrorIs(t, err, category.ErrSlugTaken)

	require.NoError(t, s.Subcategories().Create(ctx, &category.Subcategory{ID: "s1", Name: "Laptops", Slug: "laptops", CategoryID: "c1"}))
	err = s.Subcategories().Create(ctx, &category.Subcategory{ID: "s2", Name: "Ghost", Slug: "ghost", CategoryID: "c9"})
	require.ErrorIs(t, err, category.ErrNotFound)

	addProduct(t, s, product.Product{ID: "p1", Title: "Laptop", Price: dec("900"), CategoryID: "c1", SubcategoryID: "s1"})

	require.ErrorIs(t, s.Categories().Delete(ctx, "c1"), category.ErrInUse)
	require.ErrorIs(t, s.Subcategories().Delete(ctx, "s1"), category.ErrInUse)

	require.NoError(t, s.Products().Delete(ctx, "p1"))
	require.NoError(t, s.Subcategories().Delete(ctx, "s1"))
	require.NoError(t, s.Categories().Delete(ctx, "c1"))

	_, err = s.Categories().GetBySlug(ctx, "electronics")
	require.ErrorIs(t, err, category.ErrNotFound)
}

func TestProducts_GetBySlugReturnsOldest(t *testing.T) {
	ctx := context.Background()
	s := New()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	addProduct(t, s, product.Product{ID: "new", Title: "Lamp", Slug: "lamp", Price: dec("5"), CreatedAt: t0.Add(time.Hour)})
	addProduct(t, s, product.Product{ID: "old", Title: "Lamp", Slug: "lamp", Price: dec("5"), CreatedAt: t0})

	p, err := s.Products().GetBySlug(ctx, "lamp")
	require.NoError(t, err)
	assert.Equal(t, "old", p.ID)

	_, err = s.Products().GetBySlug(ctx, "desk")
	require.ErrorIs(t, err, product.ErrNotFound)
}
