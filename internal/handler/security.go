package handler

import (
	"net/http"
	"strings"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
)

// APIKeyHeader carries a raw API key.
const APIKeyHeader = "api_key"

// Security authenticates requests by bearer token or API key. Either
// authenticator may be nil to disable that scheme.
type Security struct {
	keys   *auth.APIKeyAuthenticator
	tokens *auth.TokenVerifier
}

// NewSecurity creates a Security.
func NewSecurity(keys *auth.APIKeyAuthenticator, tokens *auth.TokenVerifier) *Security {
	return &Security{keys: keys, tokens: tokens}
}

// Authenticate stores the caller's principal in the request context.
// Requests without credentials pass through anonymously; requests with bad
// credentials are rejected so a typo never silently downgrades to public.
func (s *Security) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok, err := s.principal(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if ok {
			r = r.WithContext(auth.WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Security) principal(r *http.Request) (auth.Principal, bool, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, _ := strings.Cut(h, " ")
		if !strings.EqualFold(scheme, "Bearer") || token == "" {
			return auth.Principal{}, false, apperr.New(apperr.KindUnauthorized, "malformed authorization header")
		}
		if s.tokens == nil {
			return auth.Principal{}, false, apperr.New(apperr.KindUnauthorized, "bearer tokens are not accepted")
		}
		p, err := s.tokens.Verify(strings.TrimSpace(token))
		return p, err == nil, err
	}
	if key := r.Header.Get(APIKeyHeader); key != "" {
		if s.keys == nil {
			return auth.Principal{}, false, apperr.New(apperr.KindUnauthorized, "api keys are not accepted")
		}
		p, err := s.keys.Authenticate(r.Context(), key)
		return p, err == nil, err
	}
	return auth.Principal{}, false, nil
}

// RequireRole answers 401 without a principal and 403 when the principal
// holds none of roles.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFrom(r.Context())
			switch {
			case !ok:
				writeError(w, r, auth.ErrUnauthorized)
			case !p.Allowed(roles...):
				writeError(w, r, auth.ErrForbidden)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// caller returns the principal set by Authenticate. Routes using it sit
// behind RequireRole.
func caller(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}
