package auth

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/storefront/internal/apperr"
)

// Claims are the bearer token claims understood by the API.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 bearer tokens. Issuing tokens is left to an
// external identity service; Sign exists for tooling and tests.
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier creates a TokenVerifier. An empty issuer accepts any.
func NewTokenVerifier(secret []byte, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: secret, issuer: issuer}
}

// Verify parses token and returns its principal.
func (v *TokenVerifier) Verify(token string) (Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Principal{}, apperr.Wrap(apperr.KindUnauthorized, err, "invalid or expired token")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Principal{}, apperr.New(apperr.KindUnauthorized, "token has no subject")
	}
	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return Principal{}, apperr.New(apperr.KindUnauthorized, "token has an unknown role")
	}
	return Principal{Subject: sub, Role: role}, nil
}

// Sign issues a token for p valid for ttl.
func (v *TokenVerifier) Sign(p Principal, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return s, nil
}
