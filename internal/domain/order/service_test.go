package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockCartRepo struct {
	byID      map[string]*cart.Cart
	deleteErr error
	deleted   []string
}

func (m *mockCartRepo) GetByUser(_ context.Context, userID string) (*cart.Cart, error) {
	for _, c := range m.byID {
		if c.UserID == userID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, cart.ErrNotFound
}

func (m *mockCartRepo) GetByID(_ context.Context, id string) (*cart.Cart, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	cp := *c
	cp.Items = append([]cart.Item(nil), c.Items...)
	return &cp, nil
}

func (m *mockCartRepo) Save(context.Context, *cart.Cart) error { return nil }

func (m *mockCartRepo) Delete(_ context.Context, id string, version int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	c, ok := m.byID[id]
	if !ok || c.Version != version {
		return cart.ErrConcurrentUpdate
	}
	delete(m.byID, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockProductRepo struct {
	stock     map[string]int
	decrement [][]product.StockChange
}

func (m *mockProductRepo) GetByID(context.Context, string) (*product.Product, error) {
	return nil, product.ErrNotFound
}

func (m *mockProductRepo) GetByIDs(context.Context, []string) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetBySlug(context.Context, string) (*product.Product, error) {
	return nil, product.ErrNotFound
}
func (m *mockProductRepo) Create(context.Context, *product.Product) error { return nil }
func (m *mockProductRepo) Update(context.Context, *product.Product) error { return nil }
func (m *mockProductRepo) Delete(context.Context, string) error           { return nil }

func (m *mockProductRepo) DecrementStock(_ context.Context, changes []product.StockChange) error {
	m.decrement = append(m.decrement, changes)
	var short []string
	for _, ch := range changes {
		if m.stock[ch.ProductID] < ch.Quantity {
			short = append(short, ch.ProductID)
		}
	}
	if len(short) > 0 {
		return &product.InsufficientStockError{ProductIDs: short}
	}
	for _, ch := range changes {
		m.stock[ch.ProductID] -= ch.Quantity
	}
	return nil
}

type mockOrderRepo struct {
	byID      map[string]*Order
	createErr error
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, change StatusChange) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	at := change.At
	if change.Paid && !o.IsPaid {
		o.IsPaid, o.PaidAt = true, &at
	}
	if change.Delivered && !o.IsDelivered {
		o.IsDelivered, o.DeliveredAt = true, &at
	}
	o.UpdatedAt = at
	cp := *o
	return &cp, nil
}

// mockTx runs fn directly. commitErr simulates a failure after fn succeeded.
type mockTx struct {
	calls     int
	commitErr error
}

func (m *mockTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	if err := fn(ctx); err != nil {
		return err
	}
	return m.commitErr
}

// --- Helpers ---

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testAddress() Address {
	return Address{Street: "1 Main St", City: "Springfield", Phone: "+1 555 0100"}
}

type fixture struct {
	svc      *Service
	carts    *mockCartRepo
	products *mockProductRepo
	orders   *mockOrderRepo
	tx       *mockTx
}

func newFixture(t *testing.T, stock map[string]int, carts ...cart.Cart) *fixture {
	t.Helper()
	f := &fixture{
		carts:    &mockCartRepo{byID: map[string]*cart.Cart{}},
		products: &mockProductRepo{stock: stock},
		orders:   &mockOrderRepo{byID: map[string]*Order{}},
		tx:       &mockTx{},
	}
	for i := range carts {
		carts[i].Recalculate()
		f.carts.byID[carts[i].ID] = &carts[i]
	}
	svc, err := NewService(f.carts, f.products, f.orders, f.tx, WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	f.svc = svc
	return f
}

func oneItemCart() cart.Cart {
	return cart.Cart{
		ID:      "c1",
		UserID:  "u1",
		Version: 3,
		Items: []cart.Item{
			{ID: "i1", ProductID: "p1", Color: "red", Quantity: 1, Price: dec("250")},
		},
	}
}

// --- Checkout ---

func TestCheckout_Success(t *testing.T) {
	f := newFixture(t, map[string]int{"p1": 1}, oneItemCart())

	o, err := f.svc.Checkout(context.Background(), CheckoutRequest{
		UserID:          "u1",
		CartID:          "c1",
		ShippingAddress: testAddress(),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "u1", o.UserID)
	assert.Equal(t, PaymentCash, o.PaymentMethod)
	assert.Equal(t, testAddress(), o.ShippingAddress)
	assert.True(t, dec("250").Equal(o.TotalOrderPrice))
	assert.False(t, o.IsPaid)
	assert.False(t, o.IsDelivered)
	assert.Equal(t, testNow, o.CreatedAt)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "p1", o.Items[0].ProductID)
	assert.Equal(t, "red", o.Items[0].Color)

	assert.Equal(t, 0, f.products.stock["p1"])
	assert.Equal(t, []string{"c1"}, f.carts.deleted)
	assert.Contains(t, f.orders.byID, o.ID)
	assert.Equal(t, 1, f.tx.calls)
}

func TestCheckout_CouponSnapshot(t *testing.T) {
	c := oneItemCart()
	c.Coupon = &coupon.Applied{Code: "SAVE10", DiscountType: coupon.DiscountPercentage, Value: dec("10")}
	f := newFixture(t, map[string]int{"p1": 5}, c)

	o, err := f.svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1", CartID: "c1", ShippingAddress: testAddress()})
	require.NoError(t, err)

	assert.True(t, dec("250").Equal(o.TotalPrice))
	assert.True(t, dec("225").Equal(o.TotalOrderPrice))
	require.NotNil(t, o.Coupon)
	assert.Equal(t, "SAVE10", o.Coupon.Code)
}

func TestCheckout_MergesStockChanges(t *testing.T) {
	c := oneItemCart()
	c.Items = []cart.Item{
		{ID: "i1", ProductID: "p1", Color: "red", Quantity: 2, Price: dec("10")},
		{ID: "i2", ProductID: "p1", Color: "blue", Quantity: 3, Price: dec("10")},
	}
	f := newFixture(t, map[string]int{"p1": 5}, c)

	_, err := f.svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1", CartID: "c1", ShippingAddress: testAddress()})
	require.NoError(t, err)

	require.Len(t, f.products.decrement, 1)
	assert.Equal(t, []product.StockChange{{ProductID: "p1", Quantity: 5}}, f.products.decrement[0])
	assert.Equal(t, 0, f.products.stock["p1"])
}

func TestCheckout_Errors(t *testing.T) {
	tests := []struct {
		name     string
		req      CheckoutRequest
		mutate   func(f *fixture)
		wantErr  error
		wantKind apperr.Kind
	}{
		{
			name:     "missing address",
			req:      CheckoutRequest{UserID: "u1", CartID: "c1"},
			wantKind: apperr.KindValidation,
		},
		{
			name:     "unknown cart",
			req:      CheckoutRequest{UserID: "u1", CartID: "nope", ShippingAddress: testAddress()},
			wantErr:  cart.ErrNotFound,
			wantKind: apperr.KindNotFound,
		},
		{
			name:     "cart of another user",
			req:      CheckoutRequest{UserID: "u2", CartID: "c1", ShippingAddress: testAddress()},
			wantErr:  cart.ErrNotFound,
			wantKind: apperr.KindNotFound,
		},
		{
			name:     "empty cart",
			req:      CheckoutRequest{UserID: "u1", CartID: "c1", ShippingAddress: testAddress()},
			mutate:   func(f *fixture) { f.carts.byID["c1"].Items = nil },
			wantErr:  cart.ErrEmpty,
			wantKind: apperr.KindValidation,
		},
		{
			name:     "insufficient stock",
			req:      CheckoutRequest{UserID: "u1", CartID: "c1", ShippingAddress: testAddress()},
			mutate:   func(f *fixture) { f.products.stock["p1"] = 0 },
			wantKind: apperr.KindConflict,
		},
		{
			name:     "cart changed concurrently",
			req:      CheckoutRequest{UserID: "u1", CartID: "c1", ShippingAddress: testAddress()},
			mutate:   func(f *fixture) { f.carts.deleteErr = cart.ErrConcurrentUpdate },
			wantErr:  cart.ErrConcurrentUpdate,
			wantKind: apperr.KindConflict,
		},
		{
			name:     "order insert fails",
			req:      CheckoutRequest{UserID: "u1", CartID: "c1", ShippingAddress: testAddress()},
			mutate:   func(f *fixture) { f.orders.createErr = errors.New("connection reset") },
			wantKind: apperr.KindInternal,
		},
		{
			name: "commit outcome unknown",
			req:  CheckoutRequest{UserID: "u1", CartID: "c1", ShippingAddress: testAddress()},
			mutate: func(f *fixture) {
				f.tx.commitErr = apperr.Wrap(apperr.KindInconsistent, errors.New("eof"), "commit")
			},
			wantKind: apperr.KindInconsistent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]int{"p1": 1}, oneItemCart())
			if tt.mutate != nil {
				tt.mutate(f)
			}

			o, err := f.svc.Checkout(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, o)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}

func TestCheckout_InsufficientStockNamesProducts(t *testing.T) {
	f := newFixture(t, map[string]int{"p1": 0}, oneItemCart())

	_, err := f.svc.Checkout(context.Background(), CheckoutRequest{UserID: "u1", CartID: "c1", ShippingAddress: testAddress()})

	var stockErr *product.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, []string{"p1"}, stockErr.ProductIDs)
	assert.Empty(t, f.orders.byID)
	assert.Contains(t, f.carts.byID, "c1")
}

// --- Status ---

func newOrderFixture(t *testing.T, o Order) *fixture {
	t.Helper()
	f := newFixture(t, map[string]int{})
	f.orders.byID[o.ID] = &o
	return f
}

func ptr[T any](v T) *T { return &v }

func TestUpdateStatus_MarkPaid(t *testing.T) {
	f := newOrderFixture(t, Order{ID: "o1", UserID: "u1"})

	o, err := f.svc.UpdateStatus(context.Background(), "o1", StatusUpdate{IsPaid: ptr(true)})
	require.NoError(t, err)

	assert.True(t, o.IsPaid)
	require.NotNil(t, o.PaidAt)
	assert.Equal(t, testNow, *o.PaidAt)
	assert.False(t, o.IsDelivered)
	assert.Nil(t, o.DeliveredAt)
}

func TestUpdateStatus_RepeatKeepsTimestamp(t *testing.T) {
	paidAt := testNow.Add(-time.Hour)
	f := newOrderFixture(t, Order{ID: "o1", IsPaid: true, PaidAt: &paidAt})

	o, err := f.svc.UpdateStatus(context.Background(), "o1", StatusUpdate{IsPaid: ptr(true)})
	require.NoError(t, err)

	assert.True(t, o.IsPaid)
	assert.Equal(t, paidAt, *o.PaidAt)
}

func TestUpdateStatus_Errors(t *testing.T) {
	paidAt := testNow.Add(-time.Hour)

	tests := []struct {
		name     string
		id       string
		upd      StatusUpdate
		wantErr  error
		wantKind apperr.Kind
	}{
		{name: "no fields", id: "o1", wantErr: ErrNoStatusChange, wantKind: apperr.KindValidation},
		{name: "unknown order", id: "nope", upd: StatusUpdate{IsPaid: ptr(true)}, wantErr: ErrNotFound, wantKind: apperr.KindNotFound},
		{name: "unpay", id: "o1", upd: StatusUpdate{IsPaid: ptr(false)}, wantErr: ErrStatusRegression, wantKind: apperr.KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrderFixture(t, Order{ID: "o1", IsPaid: true, PaidAt: &paidAt})

			_, err := f.svc.UpdateStatus(context.Background(), tt.id, tt.upd)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}

func TestUpdateStatus_FalseOnUnsetIsNoop(t *testing.T) {
	f := newOrderFixture(t, Order{ID: "o1"})

	o, err := f.svc.UpdateStatus(context.Background(), "o1", StatusUpdate{IsDelivered: ptr(false)})
	require.NoError(t, err)
	assert.False(t, o.IsDelivered)
	assert.Nil(t, o.DeliveredAt)
}

func TestGetOwned(t *testing.T) {
	f := newOrderFixture(t, Order{ID: "o1", UserID: "u1"})

	o, err := f.svc.GetOwned(context.Background(), "o1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)

	_, err = f.svc.GetOwned(context.Background(), "o1", "u2")
	require.ErrorIs(t, err, ErrNotFound)
}
