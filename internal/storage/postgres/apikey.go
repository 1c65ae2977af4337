package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	db *DB
}

// APIKeys returns the API key repository.
func (d *DB) APIKeys() *APIKeyRepository { return &APIKeyRepository{db: d} }

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var k auth.APIKeyInfo
	err := r.db.conn(ctx).QueryRow(ctx, `
		SELECT id, key_hash, name, user_id, scopes
		FROM api_keys
		WHERE key_hash = $1 AND active`,
		hash,
	).Scan(&k.ID, &k.KeyHash, &k.Name, &k.UserID, &k.Scopes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrAPIKeyNotFound
		}
		return nil, errors.Wrap(err, "find api key by hash")
	}
	return &k, nil
}

// Upsert stores k, replacing a key with the same id.
func (r *APIKeyRepository) Upsert(ctx context.Context, k auth.APIKeyInfo) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO api_keys (id, key_hash, name, user_id, scopes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET key_hash = EXCLUDED.key_hash, name = EXCLUDED.name,
		    user_id = EXCLUDED.user_id, scopes = EXCLUDED.scopes, active = true`,
		k.ID, k.KeyHash, k.Name, k.UserID, nonNil(k.Scopes),
	)
	if err != nil {
		return errors.Wrapf(err, "upsert api key %q", k.ID)
	}
	return nil
}
