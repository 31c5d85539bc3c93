package db

import (
	"context"

	"github.com/gallery-hub/backend/internal/model"
)

func (db *Postgres) InsertLoginHistory(ctx context.Context, h model.LoginHistory) error {
	query := `
		INSERT INTO login_history (user_id, provider, ip_address, user_agent, success, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	_, err := db.Pool.Exec(ctx, query,
		h.UserID, h.Provider, h.IPAddress, h.UserAgent, h.Success, h.FailureReason)
	return err
}
