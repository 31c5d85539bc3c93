package db

import "context"

func (db *Postgres) EnsureSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			handle TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			tier TEXT NOT NULL DEFAULT 'free',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			email_verified BOOLEAN NOT NULL DEFAULT FALSE,
			failed_login_attempts INT NOT NULL DEFAULT 0,
			locked_until TIMESTAMPTZ,
			last_login_at TIMESTAMPTZ,
			password_changed_at TIMESTAMPTZ,
			google_id TEXT UNIQUE,
			github_id TEXT UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS refresh_tokens (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token_hash TEXT NOT NULL UNIQUE,
			expires_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ,
			replaced_by TEXT,
			user_agent TEXT NOT NULL DEFAULT '',
			ip_address TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS refresh_tokens_user_id_idx ON refresh_tokens(user_id)`,
		`
		CREATE TABLE IF NOT EXISTS quota_usage (
			user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			tokens_used BIGINT NOT NULL DEFAULT 0 CHECK (tokens_used >= 0),
			period_start TIMESTAMPTZ NOT NULL,
			period_end TIMESTAMPTZ NOT NULL,
			lifetime_tokens_used BIGINT NOT NULL DEFAULT 0,
			lifetime_analyses BIGINT NOT NULL DEFAULT 0,
			period_analyses BIGINT NOT NULL DEFAULT 0,
			custom_limit BIGINT CHECK (custom_limit IS NULL OR custom_limit >= 0),
			last_analysis_at TIMESTAMPTZ,
			last_analysis_url TEXT NOT NULL DEFAULT '',
			last_analysis_tokens BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (period_end > period_start)
		)
		`,
		`CREATE INDEX IF NOT EXISTS quota_usage_period_end_idx ON quota_usage(period_end)`,
		`
		CREATE TABLE IF NOT EXISTS quota_transactions (
			id UUID PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			type TEXT NOT NULL,
			tokens_amount BIGINT NOT NULL,
			tokens_before BIGINT NOT NULL,
			tokens_after BIGINT NOT NULL,
			analysis_id TEXT NOT NULL DEFAULT '',
			analysis_url TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS quota_transactions_user_id_idx ON quota_transactions(user_id, created_at)`,
		`
		CREATE TABLE IF NOT EXISTS login_history (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
			provider TEXT NOT NULL DEFAULT 'local',
			ip_address TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			success BOOLEAN NOT NULL,
			failure_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS login_history_user_id_idx ON login_history(user_id, created_at)`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}
