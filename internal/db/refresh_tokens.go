package db

import (
	"context"
	"errors"
	"time"

	"github.com/gallery-hub/backend/internal/model"
)

// ErrTokenRotated signals that the presented token was already revoked when
// the conditional rotation update ran. Exactly one of any set of concurrent
// rotations of the same token can avoid it.
var ErrTokenRotated = errors.New("refresh token already rotated")

func (db *Postgres) InsertRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time, meta model.ClientMeta) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at, user_agent, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := db.Pool.Exec(ctx, query, userID, tokenHash, expiresAt, meta.UserAgent, meta.IPAddress)
	return err
}

func (db *Postgres) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, revoked_at, replaced_by, user_agent, ip_address, created_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	var t model.RefreshToken
	err := db.Pool.QueryRow(ctx, query, tokenHash).Scan(
		&t.ID,
		&t.UserID,
		&t.TokenHash,
		&t.ExpiresAt,
		&t.RevokedAt,
		&t.ReplacedBy,
		&t.UserAgent,
		&t.IPAddress,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RotateRefreshToken revokes the presented row and inserts its replacement
// in one transaction. The revoke is conditional on the row still being
// unrevoked; a zero row count means a concurrent rotation won and the caller
// must treat the presentation as reuse.
func (db *Postgres) RotateRefreshToken(ctx context.Context, oldTokenID, userID int64, newTokenHash string, newExpiresAt time.Time, meta model.ClientMeta) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = NOW(), replaced_by = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, oldTokenID, newTokenHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenRotated
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at, user_agent, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, userID, newTokenHash, newExpiresAt, meta.UserAgent, meta.IPAddress); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (db *Postgres) RevokeRefreshTokenByHash(ctx context.Context, tokenHash string) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL
	`
	_, err := db.Pool.Exec(ctx, query, tokenHash)
	return err
}

func (db *Postgres) RevokeAllRefreshTokens(ctx context.Context, userID int64) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL
	`
	_, err := db.Pool.Exec(ctx, query, userID)
	return err
}
