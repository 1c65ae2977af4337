package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/xenking/storefront/internal/apperr"
)

// ErrAPIKeyNotFound is returned by repositories when no key matches a hash.
var ErrAPIKeyNotFound = apperr.New(apperr.KindUnauthorized, "api key not found")

// ScopeAdmin grants the admin role to an API key.
const ScopeAdmin = "admin"

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	// UserID is the user the key acts for. Keys without a user act as
	// themselves.
	UserID string
	Scopes []string
}

// Principal maps the key to the identity it authenticates.
func (k *APIKeyInfo) Principal() Principal {
	p := Principal{Subject: k.UserID, Role: RoleUser}
	if p.Subject == "" {
		p.Subject = "apikey:" + k.ID
	}
	if slices.Contains(k.Scopes, ScopeAdmin) {
		p.Role = RoleAdmin
	}
	return p
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashAPIKey returns the hex HMAC-SHA256 of key under pepper. Only this
// hash is ever stored.
func HashAPIKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// APIKeyAuthenticator resolves raw API keys to principals.
type APIKeyAuthenticator struct {
	keys   Repository
	pepper []byte
}

// NewAPIKeyAuthenticator creates an APIKeyAuthenticator.
func NewAPIKeyAuthenticator(keys Repository, pepper []byte) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{keys: keys, pepper: pepper}
}

// Authenticate hashes key, looks it up and compares the stored hash in
// constant time.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, key string) (Principal, error) {
	if key == "" {
		return Principal{}, ErrUnauthorized
	}
	hexHash := HashAPIKey(a.pepper, key)

	info, err := a.keys.FindByHash(ctx, hexHash)
	if err != nil {
		return Principal{}, apperr.Wrap(apperr.KindUnauthorized, err, "invalid api key")
	}

	computed, _ := hex.DecodeString(hexHash)
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(computed, stored) != 1 {
		return Principal{}, ErrUnauthorized
	}
	return info.Principal(), nil
}
