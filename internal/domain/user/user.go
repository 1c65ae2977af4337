package user

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/query"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = apperr.New(apperr.KindNotFound, "user not found")
	// ErrEmailTaken is returned when another user already has the email.
	ErrEmailTaken = apperr.New(apperr.KindConflict, "email is already registered")
	// ErrWrongPassword is returned when a password change does not prove
	// the current password.
	ErrWrongPassword = apperr.New(apperr.KindForbidden, "current password does not match")
)

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         auth.Role `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Document returns u keyed by schema field names, without the password hash.
func (u *User) Document() query.Document {
	return query.Document{
		"id":        u.ID,
		"name":      u.Name,
		"email":     u.Email,
		"role":      string(u.Role),
		"createdAt": u.CreatedAt,
		"updatedAt": u.UpdatedAt,
	}
}

// Schema is the queryable shape of users. The password hash is not part of
// it and can never be filtered on or projected.
var Schema = &query.Schema{
	Collection: "users",
	Fields: map[string]query.Field{
		"id":        {Type: query.String},
		"name":      {Type: query.String},
		"email":     {Type: query.String},
		"role":      {Type: query.String},
		"createdAt": {Type: query.Time, Column: "created_at"},
		"updatedAt": {Type: query.Time, Column: "updated_at"},
	},
	Search:      []string{"name", "email"},
	DefaultSort: "-createdAt",
}

// Repository defines persistence operations for users.
type Repository interface {
	// Create stores u or returns ErrEmailTaken.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	// Update stores every field of u except CreatedAt. It returns
	// ErrEmailTaken or ErrNotFound.
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error
}

// CreateRequest holds the input for creating a user.
type CreateRequest struct {
	Name     string
	Email    string
	Password string
	Role     auth.Role
}

func (r CreateRequest) validate() error {
	details := map[string]string{}
	if strings.TrimSpace(r.Name) == "" {
		details["name"] = "is required"
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		details["email"] = "must be a valid email address"
	}
	if len(r.Password) < MinPasswordLength {
		details["password"] = "must be at least 8 characters"
	}
	if r.Role != "" && !r.Role.Valid() {
		details["role"] = "must be one of: user, admin"
	}
	return invalid(details)
}

// UpdateRequest changes the profile of a user. Nil fields are kept.
type UpdateRequest struct {
	Name  *string
	Email *string
	Role  *auth.Role
}

func (r UpdateRequest) validate() error {
	details := map[string]string{}
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		details["name"] = "must not be empty"
	}
	if r.Email != nil {
		if _, err := mail.ParseAddress(*r.Email); err != nil {
			details["email"] = "must be a valid email address"
		}
	}
	if r.Role != nil && !r.Role.Valid() {
		details["role"] = "must be one of: user, admin"
	}
	return invalid(details)
}

// PasswordChange replaces a user's password. Current is checked only when
// VerifyCurrent is set, which is the case when users change their own.
type PasswordChange struct {
	Current       string
	Password      string
	VerifyCurrent bool
}

func invalid(details map[string]string) error {
	if len(details) > 0 {
		return apperr.New(apperr.KindValidation, "invalid user").WithDetails(details)
	}
	return nil
}

// Service manages user accounts.
type Service struct {
	repo Repository
	now  func() time.Time
	cost int
}

// NewService creates a user Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now, cost: bcrypt.DefaultCost}
}

// Create validates req, hashes the password and stores the user.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*User, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	role := req.Role
	if role == "" {
		role = auth.RoleUser
	}
	now := s.now().UTC()
	u := &User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, errors.Wrap(err, "create user")
	}
	return u, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	return u, nil
}

// Update applies req to the user with id.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*User, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	if req.Name != nil {
		u.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Role != nil {
		u.Role = *req.Role
	}
	u.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, errors.Wrap(err, "update user")
	}
	return u, nil
}

// ChangePassword stores a new hash for the user with id.
func (s *Service) ChangePassword(ctx context.Context, id string, req PasswordChange) error {
	if len(req.Password) < MinPasswordLength {
		return invalid(map[string]string{"password": "must be at least 8 characters"})
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return errors.Wrap(err, "get user")
	}
	if req.VerifyCurrent && !u.CheckPassword(req.Current) {
		return ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	u.PasswordHash = string(hash)
	u.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, u); err != nil {
		return errors.Wrap(err, "update password")
	}
	return nil
}

// Delete removes a user. Their orders and reviews are kept.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete user")
	}
	return nil
}

// CheckPassword reports whether password matches u's hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
