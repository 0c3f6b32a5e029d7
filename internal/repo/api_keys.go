package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"

	"fieldline/internal/domain"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// InsertAPIKey stores a device key. KeyHash must already be hashed.
func (r Repo) InsertAPIKey(ctx context.Context, key domain.APIKey) error {
	switch {
	case key.ID == "":
		return errors.New("id required")
	case key.ActorID == "":
		return errors.New("actor_id required")
	case key.KeyHash == "":
		return errors.New("key_hash required")
	}
	if _, err := domain.ParseRole(string(key.Role)); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO api_keys(id,actor_id,role,name,key_hash,created_at) VALUES (?,?,?,?,?,?)`,
		key.ID, key.ActorID, string(key.Role), nullable(key.Name), key.KeyHash, key.CreatedAt)
	return err
}

func scanAPIKey(row rowScanner) (domain.APIKey, error) {
	var key domain.APIKey
	var role string
	var name sql.NullString
	if err := row.Scan(&key.ID, &key.ActorID, &role, &name, &key.KeyHash, &key.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return key, ErrNotFound
		}
		return key, err
	}
	key.Role = domain.Role(role)
	key.Name = name.String
	return key, nil
}

func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	return scanAPIKey(r.DB.QueryRowContext(ctx, `SELECT id,actor_id,role,name,key_hash,created_at FROM api_keys WHERE key_hash=? LIMIT 1`, hash))
}

// ListAPIKeys returns keys, optionally filtered by role.
func (r Repo) ListAPIKeys(ctx context.Context, role domain.Role) ([]domain.APIKey, error) {
	query := `SELECT id,actor_id,role,name,key_hash,created_at FROM api_keys`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, string(role))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []domain.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r Repo) DeleteAPIKey(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, errors.New("id required")
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	if err != nil {
		return false, err
	}
	return affected(res)
}
