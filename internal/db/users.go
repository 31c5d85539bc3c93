package db

import (
	"context"
	"time"

	"github.com/gallery-hub/backend/internal/model"
)

const userColumns = `
	id, email, handle, password_hash, tier, active, email_verified,
	failed_login_attempts, locked_until, last_login_at, password_changed_at,
	google_id, github_id, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Handle,
		&user.PasswordHash,
		&user.Tier,
		&user.Active,
		&user.EmailVerified,
		&user.FailedLoginAttempts,
		&user.LockedUntil,
		&user.LastLoginAt,
		&user.PasswordChangedAt,
		&user.GoogleID,
		&user.GithubID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

type NewUser struct {
	Email         string
	Handle        string
	PasswordHash  string
	EmailVerified bool
	GoogleID      *string
	GithubID      *string
}

func (db *Postgres) CreateUser(ctx context.Context, u NewUser) (*model.User, error) {
	query := `
		INSERT INTO users (email, handle, password_hash, email_verified, google_id, github_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING` + userColumns
	return scanUser(db.Pool.QueryRow(ctx, query,
		u.Email, u.Handle, u.PasswordHash, u.EmailVerified, u.GoogleID, u.GithubID))
}

func (db *Postgres) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(db.Pool.QueryRow(ctx, query, userID))
}

func (db *Postgres) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(db.Pool.QueryRow(ctx, query, email))
}

func (db *Postgres) GetUserByHandle(ctx context.Context, handle string) (*model.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE handle = $1`
	return scanUser(db.Pool.QueryRow(ctx, query, handle))
}

func (db *Postgres) GetUserByProviderID(ctx context.Context, provider, externalID string) (*model.User, error) {
	column := "google_id"
	if provider == model.ProviderGithub {
		column = "github_id"
	}
	query := `SELECT` + userColumns + ` FROM users WHERE ` + column + ` = $1`
	return scanUser(db.Pool.QueryRow(ctx, query, externalID))
}

// IncrementFailedAttempts bumps the counter atomically and returns the new
// value so the guard can decide on lockout without a read-modify-write race.
func (db *Postgres) IncrementFailedAttempts(ctx context.Context, userID int64) (int, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING failed_login_attempts
	`
	var attempts int
	if err := db.Pool.QueryRow(ctx, query, userID).Scan(&attempts); err != nil {
		return 0, err
	}
	return attempts, nil
}

func (db *Postgres) LockUser(ctx context.Context, userID int64, until time.Time) error {
	query := `
		UPDATE users
		SET locked_until = $2, updated_at = NOW()
		WHERE id = $1
	`
	_, err := db.Pool.Exec(ctx, query, userID, until)
	return err
}

// ResetFailedAttempts clears the counter and any expired lock, and stamps
// the last successful login.
func (db *Postgres) ResetFailedAttempts(ctx context.Context, userID int64) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, last_login_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	_, err := db.Pool.Exec(ctx, query, userID)
	return err
}

func (db *Postgres) SetPasswordHash(ctx context.Context, userID int64, hash string) error {
	query := `
		UPDATE users
		SET password_hash = $2, password_changed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	_, err := db.Pool.Exec(ctx, query, userID, hash)
	return err
}

func (db *Postgres) SetTier(ctx context.Context, userID int64, tier model.Tier) error {
	query := `
		UPDATE users
		SET tier = $2, updated_at = NOW()
		WHERE id = $1
	`
	_, err := db.Pool.Exec(ctx, query, userID, tier)
	return err
}

func (db *Postgres) MarkEmailVerified(ctx context.Context, userID int64) error {
	query := `
		UPDATE users
		SET email_verified = TRUE, updated_at = NOW()
		WHERE id = $1
	`
	_, err := db.Pool.Exec(ctx, query, userID)
	return err
}
