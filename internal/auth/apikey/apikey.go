// Package apikey provides SHA-256-based API key validation against
// PostgreSQL, scoped to actions (e.g. "documents:search", "collections:*")
// and collections, satisfying manager.AuthManager. Raw keys are generated
// with crypto/rand, hashed before storage, and validated by comparing the
// hash of the presented key with the stored hash.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/monishk/shardsearch/pkg/postgres"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
)

// KeyInfo holds metadata about a validated API key. Actions and
// Collections are stored comma-joined; "*" in either matches anything, the
// same wildcard convention Typesense scoped keys use. Params holds
// default search parameters (e.g. a forced filter_by) that KeyMatches
// merges into the caller's outParams, so a key can be scoped to a subset
// of documents without the caller having to know about it.
type KeyInfo struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	RateLimit   int               `json:"rate_limit"`
	IsActive    bool              `json:"is_active"`
	Actions     []string          `json:"actions"`
	Collections []string          `json:"collections"`
	Params      map[string]string `json:"params,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
}

func matchesScope(scope []string, want string) bool {
	for _, s := range scope {
		if s == "*" || s == want {
			return true
		}
	}
	return false
}

const apiKeySchema = `
CREATE TABLE IF NOT EXISTS api_keys (
	id          BIGSERIAL PRIMARY KEY,
	key_hash    TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	rate_limit  INT NOT NULL DEFAULT 0,
	is_active   BOOLEAN NOT NULL DEFAULT true,
	actions     TEXT NOT NULL DEFAULT '*',
	collections TEXT NOT NULL DEFAULT '*',
	params      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at  TIMESTAMPTZ
)`

// Validator validates API keys against the api_keys table in PostgreSQL.
type Validator struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewValidator opens db's api_keys table (creating it if absent) and
// returns a Validator backed by it.
func NewValidator(db *postgres.Client) (*Validator, error) {
	if _, err := db.DB.Exec(apiKeySchema); err != nil {
		return nil, fmt.Errorf("creating api_keys table: %w", err)
	}
	return &Validator{
		db:     db,
		logger: slog.Default().With("component", "apikey-validator"),
	}, nil
}

// Validate checks a raw API key against the database.
// Returns KeyInfo on success, or ErrInvalidKey / ErrExpiredKey on failure.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	hash := HashKey(rawKey)

	var info KeyInfo
	var expiresAt sql.NullTime
	var createdAt time.Time
	var actions, collections, params string

	err := v.db.DB.QueryRowContext(ctx,
		`SELECT id, name, rate_limit, is_active, actions, collections, params, created_at, expires_at
		 FROM api_keys
		 WHERE key_hash = $1 AND is_active = true`,
		hash,
	).Scan(&info.ID, &info.Name, &info.RateLimit, &info.IsActive, &actions, &collections, &params, &createdAt, &expiresAt)

	info.CreatedAt = createdAt
	info.Actions = splitScope(actions)
	info.Collections = splitScope(collections)
	info.Params = parseParams(params)

	if err == sql.ErrNoRows {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}

	if expiresAt.Valid {
		if expiresAt.Time.Before(time.Now()) {
			return nil, ErrExpiredKey
		}
		info.ExpiresAt = &expiresAt.Time
	}

	return &info, nil
}

// KeyMatches implements manager.AuthManager: it validates rawKey and
// checks that action and every requested collection fall within the key's
// scope, merging the key's default params (if any) into outParams for
// values the caller did not already set — the scoped-key mechanism spec.md
// §1 leaves to an external AuthManager.
func (v *Validator) KeyMatches(ctx context.Context, rawKey, action string, collections []string, outParams map[string]string) (bool, error) {
	info, err := v.Validate(ctx, rawKey)
	if err != nil {
		return false, nil
	}
	if !matchesScope(info.Actions, action) {
		return false, nil
	}
	for _, c := range collections {
		if !matchesScope(info.Collections, c) {
			return false, nil
		}
	}
	for k, v := range info.Params {
		if _, set := outParams[k]; !set {
			outParams[k] = v
		}
	}
	return true, nil
}

// CreateKey generates a new API key, stores its hash, and returns the raw key.
// The raw key is returned only once and cannot be retrieved again.
func (v *Validator) CreateKey(ctx context.Context, name string, rateLimit int, actions, collections []string, expiresAt *time.Time) (string, error) {
	rawKey := generateRawKey()
	hash := HashKey(rawKey)

	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: *expiresAt, Valid: true}
	}
	if len(actions) == 0 {
		actions = []string{"*"}
	}
	if len(collections) == 0 {
		collections = []string{"*"}
	}

	_, err := v.db.DB.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, name, rate_limit, actions, collections, expires_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		hash, name, rateLimit, joinScope(actions), joinScope(collections), expiry,
	)
	if err != nil {
		return "", fmt.Errorf("creating api key: %w", err)
	}

	v.logger.Info("api key created", "name", name, "rate_limit", rateLimit)
	return rawKey, nil
}

// RevokeKey deactivates an API key so it can no longer be used.
func (v *Validator) RevokeKey(ctx context.Context, rawKey string) error {
	hash := HashKey(rawKey)

	result, err := v.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false WHERE key_hash = $1`,
		hash,
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInvalidKey
	}

	v.logger.Info("api key revoked")
	return nil
}

// ListKeys returns all active API keys (without the raw key / hash).
func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := v.db.DB.QueryContext(ctx,
		`SELECT id, name, rate_limit, is_active, actions, collections, created_at, expires_at FROM api_keys WHERE is_active = true ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		var k KeyInfo
		var expiresAt sql.NullTime
		var actions, collections string
		if err := rows.Scan(&k.ID, &k.Name, &k.RateLimit, &k.IsActive, &actions, &collections, &k.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		k.Actions = splitScope(actions)
		k.Collections = splitScope(collections)
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

// HashKey returns the SHA-256 hex digest of a raw API key.
func HashKey(raw string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(raw)))
}

// generateRawKey returns a cryptographically random 32-byte hex-encoded string
// suitable for use as an API key.
func generateRawKey() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func splitScope(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func joinScope(scope []string) string {
	return strings.Join(scope, ",")
}

// parseParams decodes a "key=value&key=value" params blob. It is
// deliberately not JSON: scoped-key params are a small flat set of
// wire-parameter overrides, and this format keeps them readable directly
// in the api_keys table.
func parseParams(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, "&") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			out[kv[0]] = kv[1]
		}
	}
	return out
}
