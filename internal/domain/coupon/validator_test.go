package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/apperr"
)

type mockCouponRepo struct {
	coupon     *Coupon
	err        error
	lookedUp   string
	created    *Coupon
	createErr  error
	updated    *Coupon
	deletedKey string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	m.lookedUp = code
	return m.coupon, m.err
}

func (m *mockCouponRepo) Create(_ context.Context, c *Coupon) error {
	m.created = c
	return m.createErr
}

func (m *mockCouponRepo) Update(_ context.Context, c *Coupon) error {
	m.updated = c
	return nil
}

func (m *mockCouponRepo) Delete(_ context.Context, code string) error {
	m.deletedKey = code
	return nil
}

func TestRepoValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name        string
		repo        *mockCouponRepo
		code        string
		wantErr     error
		wantErrKind apperr.Kind
	}{
		{
			name: "valid code",
			repo: &mockCouponRepo{coupon: &Coupon{Code: "SAVE10", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10), ExpiresAt: futureTime}},
			code: " save10 ",
		},
		{
			name:        "unknown code",
			repo:        &mockCouponRepo{err: ErrNotFound},
			code:        "BOGUS",
			wantErr:     ErrNotFound,
			wantErrKind: apperr.KindNotFound,
		},
		{
			name:        "blank code",
			repo:        &mockCouponRepo{},
			code:        "   ",
			wantErr:     ErrNotFound,
			wantErrKind: apperr.KindNotFound,
		},
		{
			name:        "expired",
			repo:        &mockCouponRepo{coupon: &Coupon{Code: "OLD", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10), ExpiresAt: pastTime}},
			code:        "OLD",
			wantErr:     ErrExpired,
			wantErrKind: apperr.KindConflict,
		},
		{
			name:        "expires exactly now",
			repo:        &mockCouponRepo{coupon: &Coupon{Code: "EDGE", DiscountType: DiscountFixed, Value: decimal.NewFromInt(1), ExpiresAt: fixedNow}},
			code:        "EDGE",
			wantErr:     ErrExpired,
			wantErrKind: apperr.KindConflict,
		},
		{
			name:        "not yet valid",
			repo:        &mockCouponRepo{coupon: &Coupon{Code: "SOON", DiscountType: DiscountFixed, Value: decimal.NewFromInt(1), ValidFrom: &futureTime, ExpiresAt: futureTime.Add(time.Hour)}},
			code:        "SOON",
			wantErr:     ErrNotActive,
			wantErrKind: apperr.KindConflict,
		},
		{
			name: "inside window",
			repo: &mockCouponRepo{coupon: &Coupon{Code: "WINDOW", DiscountType: DiscountFixed, Value: decimal.NewFromInt(1), ValidFrom: &pastTime, ExpiresAt: futureTime}},
			code: "window",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo)
			v.now = func() time.Time { return fixedNow }

			got, err := v.Validate(context.Background(), tt.code)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.wantErrKind, apperr.KindOf(err))
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, Normalize(tt.code), tt.repo.lookedUp)
		})
	}
}

func TestRepoValidator_RepositoryError(t *testing.T) {
	v := NewRepoValidator(&mockCouponRepo{err: errors.New("db down")})
	_, err := v.Validate(context.Background(), "X")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup coupon")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestApplied_Amount(t *testing.T) {
	tests := []struct {
		name    string
		applied Applied
		base    string
		want    string
	}{
		{name: "ten percent", applied: Applied{DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10)}, base: "250", want: "25"},
		{name: "percentage rounds to cents", applied: Applied{DiscountType: DiscountPercentage, Value: decimal.NewFromInt(15)}, base: "33.33", want: "5"},
		{name: "full percentage", applied: Applied{DiscountType: DiscountPercentage, Value: decimal.NewFromInt(100)}, base: "42.10", want: "42.1"},
		{name: "fixed", applied: Applied{DiscountType: DiscountFixed, Value: decimal.NewFromInt(9)}, base: "40", want: "9"},
		{name: "fixed capped at base", applied: Applied{DiscountType: DiscountFixed, Value: decimal.NewFromInt(999)}, base: "10", want: "10"},
		{name: "zero base", applied: Applied{DiscountType: DiscountFixed, Value: decimal.NewFromInt(5)}, base: "0", want: "0"},
		{name: "unknown type", applied: Applied{DiscountType: "free_lowest", Value: decimal.NewFromInt(5)}, base: "10", want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.applied.Amount(decimal.RequireFromString(tt.base))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestService_Create(t *testing.T) {
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("normalizes code", func(t *testing.T) {
		repo := &mockCouponRepo{}
		c, err := NewService(repo).Create(context.Background(), CreateRequest{
			Code:         " summer10 ",
			DiscountType: DiscountPercentage,
			Value:        decimal.NewFromInt(10),
			ExpiresAt:    expires,
		})
		require.NoError(t, err)
		assert.Equal(t, "SUMMER10", c.Code)
		assert.Same(t, c, repo.created)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		_, err := NewService(&mockCouponRepo{}).Create(context.Background(), CreateRequest{
			DiscountType: DiscountPercentage,
			Value:        decimal.NewFromInt(150),
		})
		require.Error(t, err)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		details := apperr.DetailsOf(err)
		assert.Contains(t, details, "code")
		assert.Contains(t, details, "value")
		assert.Contains(t, details, "expiresAt")
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := NewService(&mockCouponRepo{createErr: ErrAlreadyExists}).Create(context.Background(), CreateRequest{
			Code:         "X",
			DiscountType: DiscountFixed,
			Value:        decimal.NewFromInt(1),
			ExpiresAt:    expires,
		})
		require.ErrorIs(t, err, ErrAlreadyExists)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	})
}

func TestService_Update(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("replaces terms", func(t *testing.T) {
		repo := &mockCouponRepo{coupon: &Coupon{
			Code: "SUMMER10", DiscountType: DiscountPercentage, Value: decimal.NewFromInt(10),
			ExpiresAt: expires, CreatedAt: created,
		}}
		c, err := NewService(repo).Update(context.Background(), " summer10 ", UpdateRequest{
			DiscountType: DiscountFixed,
			Value:        decimal.NewFromInt(7),
			Description:  "7 off",
			ExpiresAt:    expires.AddDate(1, 0, 0),
		})
		require.NoError(t, err)
		assert.Equal(t, "SUMMER10", repo.lookedUp)
		assert.Equal(t, "SUMMER10", c.Code)
		assert.Equal(t, DiscountFixed, c.DiscountType)
		assert.True(t, decimal.NewFromInt(7).Equal(c.Value))
		assert.Equal(t, created, c.CreatedAt)
		assert.Same(t, c, repo.updated)
	})

	t.Run("rejects invalid terms", func(t *testing.T) {
		repo := &mockCouponRepo{coupon: &Coupon{Code: "X"}}
		_, err := NewService(repo).Update(context.Background(), "X", UpdateRequest{
			DiscountType: DiscountPercentage,
			Value:        decimal.NewFromInt(101),
			ExpiresAt:    expires,
		})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		assert.Contains(t, apperr.DetailsOf(err), "value")
		assert.Nil(t, repo.updated)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := NewService(&mockCouponRepo{err: ErrNotFound}).Update(context.Background(), "NOPE", UpdateRequest{
			DiscountType: DiscountFixed,
			Value:        decimal.NewFromInt(1),
			ExpiresAt:    expires,
		})
		require.ErrorIs(t, err, ErrNotFound)
	})
}
