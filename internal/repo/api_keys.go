package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/rs/xid"

	"minigames/internal/domain"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// RegisterAPIKey hashes key and stores it for player.
func (r Repo) RegisterAPIKey(ctx context.Context, playerID, name, key string) (domain.APIKey, error) {
	if strings.TrimSpace(playerID) == "" {
		return domain.APIKey{}, errors.New("player_id required")
	}
	if strings.TrimSpace(key) == "" {
		return domain.APIKey{}, errors.New("key required")
	}
	k := domain.APIKey{
		ID:        xid.New().String(),
		PlayerID:  playerID,
		Name:      name,
		KeyHash:   HashAPIKey(key),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := r.DB.ExecContext(ctx, `INSERT INTO api_keys(id,player_id,name,key_hash,created_at) VALUES (?,?,?,?,?)`,
		k.ID, k.PlayerID, nullable(k.Name), k.KeyHash, k.CreatedAt); err != nil {
		return domain.APIKey{}, err
	}
	return k, nil
}

// GetAPIKeyByHash returns an API key by its hashed value.
func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	var key domain.APIKey
	err := r.DB.QueryRowContext(ctx, `SELECT id,player_id,COALESCE(name,''),key_hash,created_at FROM api_keys WHERE key_hash=? LIMIT 1`, hash).
		Scan(&key.ID, &key.PlayerID, &key.Name, &key.KeyHash, &key.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.APIKey{}, ErrNotFound
	}
	return key, err
}

// ListAPIKeys returns API keys, optionally filtered by player.
func (r Repo) ListAPIKeys(ctx context.Context, playerID string) ([]domain.APIKey, error) {
	query := `SELECT id,player_id,COALESCE(name,''),key_hash,created_at FROM api_keys`
	var args []any
	if playerID != "" {
		query += ` WHERE player_id=?`
		args = append(args, playerID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []domain.APIKey
	for rows.Next() {
		var key domain.APIKey
		if err := rows.Scan(&key.ID, &key.PlayerID, &key.Name, &key.KeyHash, &key.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r Repo) DeleteAPIKey(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id required")
	}
	_, err := r.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	return err
}
