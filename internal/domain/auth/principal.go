package auth

import (
	"context"
	"slices"

	"github.com/xenking/storefront/internal/apperr"
)

var (
	// ErrUnauthorized is returned when a request carries no valid credentials.
	ErrUnauthorized = apperr.New(apperr.KindUnauthorized, "authentication required")
	// ErrForbidden is returned when the caller's role is not allowed.
	ErrForbidden = apperr.New(apperr.KindForbidden, "you are not allowed to access this resource")
)

// Role is the coarse permission level of a caller.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Role    Role
}

// IsAdmin reports whether p has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Allowed reports whether p holds one of roles.
func (p Principal) Allowed(roles ...Role) bool {
	return slices.Contains(roles, p.Role)
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
