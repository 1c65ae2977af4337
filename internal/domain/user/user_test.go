package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
)

type mockUserRepo struct {
	byID map[string]*User
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	m.byID[u.ID] = u
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *u
	return &c, nil
}

func (m *mockUserRepo) Update(_ context.Context, u *User) error {
	if _, ok := m.byID[u.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range m.byID {
		if id != u.ID && existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	stored := *u
	m.byID[u.ID] = &stored
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func newTestService() *Service {
	s := NewService(&mockUserRepo{byID: map[string]*User{}})
	s.cost = bcrypt.MinCost
	return s
}

func TestCreate(t *testing.T) {
	s := newTestService()

	u, err := s.Create(context.Background(), CreateRequest{
		Name:     " Ada ",
		Email:    "Ada@Example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, auth.RoleUser, u.Role)
	assert.NotEqual(t, "correct horse", u.PasswordHash)
	assert.True(t, u.CheckPassword("correct horse"))
	assert.False(t, u.CheckPassword("wrong"))

	got, err := s.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
}

func TestCreate_Invalid(t *testing.T) {
	s := newTestService()

	_, err := s.Create(context.Background(), CreateRequest{Email: "nope", Password: "short", Role: "root"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	details := apperr.DetailsOf(err)
	assert.Contains(t, details, "name")
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")
	assert.Contains(t, details, "role")
}

func TestCreate_DuplicateEmail(t *testing.T) {
	s := newTestService()
	req := CreateRequest{Name: "A", Email: "a@example.com", Password: "12345678"}

	_, err := s.Create(context.Background(), req)
	require.NoError(t, err)

	req.Email = "A@example.com"
	_, err = s.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrEmailTaken)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestGet_NotFound(t *testing.T) {
	_, err := newTestService().Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	u, err := s.Create(ctx, CreateRequest{Name: "Ada", Email: "ada@example.com", Password: "12345678"})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateRequest{Name: "Bob", Email: "bob@example.com", Password: "12345678"})
	require.NoError(t, err)

	name, role := " Ada L. ", auth.RoleAdmin
	updated, err := s.Update(ctx, u.ID, UpdateRequest{Name: &name, Role: &role})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", updated.Name)
	assert.Equal(t, auth.RoleAdmin, updated.Role)
	assert.Equal(t, "ada@example.com", updated.Email)
	assert.True(t, updated.CheckPassword("12345678"))

	taken := "BOB@example.com"
	_, err = s.Update(ctx, u.ID, UpdateRequest{Email: &taken})
	require.ErrorIs(t, err, ErrEmailTaken)

	bad := auth.Role("root")
	_, err = s.Update(ctx, u.ID, UpdateRequest{Role: &bad})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = s.Update(ctx, "missing", UpdateRequest{Name: &name})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	u, err := s.Create(ctx, CreateRequest{Name: "Ada", Email: "ada@example.com", Password: "old-secret"})
	require.NoError(t, err)

	err = s.ChangePassword(ctx, u.ID, PasswordChange{Current: "wrong", Password: "new-secret", VerifyCurrent: true})
	require.ErrorIs(t, err, ErrWrongPassword)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	err = s.ChangePassword(ctx, u.ID, PasswordChange{Current: "old-secret", Password: "short", VerifyCurrent: true})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	require.NoError(t, s.ChangePassword(ctx, u.ID, PasswordChange{Current: "old-secret", Password: "new-secret", VerifyCurrent: true}))
	got, err := s.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.CheckPassword("new-secret"))
	assert.False(t, got.CheckPassword("old-secret"))

	require.NoError(t, s.ChangePassword(ctx, u.ID, PasswordChange{Password: "admin-reset"}))
	got, err = s.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.CheckPassword("admin-reset"))
}

func TestDelete(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	u, err := s.Create(ctx, CreateRequest{Name: "Ada", Email: "ada@example.com", Password: "12345678"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, u.ID))
	_, err = s.Get(ctx, u.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, u.ID), ErrNotFound)
}
