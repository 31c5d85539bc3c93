package db

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gallery-hub/backend/internal/model"
)

const usageColumns = `
	user_id, tokens_used, period_start, period_end,
	lifetime_tokens_used, lifetime_analyses, period_analyses, custom_limit,
	last_analysis_at, last_analysis_url, last_analysis_tokens, updated_at`

func scanUsage(row interface{ Scan(...any) error }) (*model.QuotaUsage, error) {
	var u model.QuotaUsage
	err := row.Scan(
		&u.UserID,
		&u.TokensUsed,
		&u.PeriodStart,
		&u.PeriodEnd,
		&u.LifetimeTokensUsed,
		&u.LifetimeAnalyses,
		&u.PeriodAnalyses,
		&u.CustomLimit,
		&u.LastAnalysisAt,
		&u.LastAnalysisURL,
		&u.LastAnalysisTokens,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (db *Postgres) GetQuotaUsage(ctx context.Context, userID int64) (*model.QuotaUsage, error) {
	query := `SELECT` + usageColumns + ` FROM quota_usage WHERE user_id = $1`
	return scanUsage(db.Pool.QueryRow(ctx, query, userID))
}

// EnsureQuotaUsage provisions the counter row on first use. Concurrent
// provisioning is resolved by ON CONFLICT DO NOTHING plus re-read.
func (db *Postgres) EnsureQuotaUsage(ctx context.Context, userID int64, period time.Duration) (*model.QuotaUsage, error) {
	query := `
		INSERT INTO quota_usage (user_id, period_start, period_end, updated_at)
		VALUES ($1, NOW(), NOW() + $2, NOW())
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := db.Pool.Exec(ctx, query, userID, period); err != nil {
		return nil, err
	}
	return db.GetQuotaUsage(ctx, userID)
}

func insertQuotaTransaction(ctx context.Context, tx pgx.Tx, t *model.QuotaTransaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Metadata == nil {
		t.Metadata = map[string]string{}
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO quota_transactions
			(id, user_id, type, tokens_amount, tokens_before, tokens_after,
			 analysis_id, analysis_url, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`, t.ID, t.UserID, t.Type, t.TokensAmount, t.TokensBefore, t.TokensAfter,
		t.AnalysisID, t.AnalysisURL, t.Description, t.Metadata)
	return err
}

// ApplyAnalysis attributes actual cost post-hoc: additive counter update and
// the ledger row commit together. Returns tokens_used before and after.
func (db *Postgres) ApplyAnalysis(ctx context.Context, userID, cost int64, corr model.Correlation) (int64, int64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var before, after int64
	err = tx.QueryRow(ctx, `
		UPDATE quota_usage
		SET tokens_used = tokens_used + $2,
			lifetime_tokens_used = lifetime_tokens_used + $2,
			lifetime_analyses = lifetime_analyses + 1,
			period_analyses = period_analyses + 1,
			last_analysis_at = NOW(),
			last_analysis_url = $3,
			last_analysis_tokens = $2,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING tokens_used - $2, tokens_used
	`, userID, cost, corr.AnalysisURL).Scan(&before, &after)
	if err != nil {
		return 0, 0, err
	}

	err = insertQuotaTransaction(ctx, tx, &model.QuotaTransaction{
		UserID:       userID,
		Type:         model.TxAnalysis,
		TokensAmount: -cost,
		TokensBefore: before,
		TokensAfter:  after,
		AnalysisID:   corr.AnalysisID,
		AnalysisURL:  corr.AnalysisURL,
		Description:  "analysis cost",
	})
	if err != nil {
		return 0, 0, err
	}

	return before, after, tx.Commit(ctx)
}

// ApplyCredit reduces tokens_used, floored at zero, for refunds and bonus
// grants. The ledger row records the credit actually applied, so the amount
// reflects the truncation when the floor clips it.
func (db *Postgres) ApplyCredit(ctx context.Context, userID, amount int64, txType model.QuotaTransactionType, corr model.Correlation, description string) (int64, int64, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var before, after int64
	err = tx.QueryRow(ctx, `
		WITH prev AS (
			SELECT tokens_used FROM quota_usage WHERE user_id = $1 FOR UPDATE
		)
		UPDATE quota_usage q
		SET tokens_used = GREATEST(q.tokens_used - $2, 0), updated_at = NOW()
		FROM prev
		WHERE q.user_id = $1
		RETURNING prev.tokens_used, q.tokens_used
	`, userID, amount).Scan(&before, &after)
	if err != nil {
		return 0, 0, err
	}

	err = insertQuotaTransaction(ctx, tx, &model.QuotaTransaction{
		UserID:       userID,
		Type:         txType,
		TokensAmount: before - after,
		TokensBefore: before,
		TokensAfter:  after,
		AnalysisID:   corr.AnalysisID,
		AnalysisURL:  corr.AnalysisURL,
		Description:  description,
	})
	if err != nil {
		return 0, 0, err
	}

	return before, after, tx.Commit(ctx)
}

// ResetPeriod zeroes the counters and advances the window. With onlyIfExpired
// the update is guarded by period_end <= NOW(), which makes the lazy
// reset-on-read and the batch sweep idempotent against each other.
func (db *Postgres) ResetPeriod(ctx context.Context, userID int64, period time.Duration, onlyIfExpired bool) (bool, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		WITH prev AS (
			SELECT tokens_used FROM quota_usage WHERE user_id = $1 FOR UPDATE
		)
		UPDATE quota_usage q
		SET tokens_used = 0,
			period_analyses = 0,
			period_start = NOW(),
			period_end = NOW() + $2,
			updated_at = NOW()
		FROM prev
		WHERE q.user_id = $1
	`
	if onlyIfExpired {
		query += ` AND q.period_end <= NOW()`
	}
	query += ` RETURNING prev.tokens_used, q.tokens_used`

	var before, after int64
	err = tx.QueryRow(ctx, query, userID, period).Scan(&before, &after)
	if err != nil {
		if IsNoRows(err) {
			// Already fresh; nothing to do.
			return false, nil
		}
		return false, err
	}

	err = insertQuotaTransaction(ctx, tx, &model.QuotaTransaction{
		UserID:       userID,
		Type:         model.TxReset,
		TokensAmount: before - after,
		TokensBefore: before,
		TokensAfter:  after,
		Description:  "period reset",
	})
	if err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

// SetCustomLimit writes the override (nil clears it) and logs the transition
// with before/after limits in the transaction metadata.
func (db *Postgres) SetCustomLimit(ctx context.Context, userID int64, limit *int64, reason string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var prevLimit *int64
	var used int64
	err = tx.QueryRow(ctx, `
		SELECT custom_limit, tokens_used FROM quota_usage WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&prevLimit, &used)
	if err != nil {
		return err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE quota_usage SET custom_limit = $2, updated_at = NOW() WHERE user_id = $1
	`, userID, limit); err != nil {
		return err
	}

	err = insertQuotaTransaction(ctx, tx, &model.QuotaTransaction{
		UserID:       userID,
		Type:         model.TxCustomQuotaSet,
		TokensAmount: 0,
		TokensBefore: used,
		TokensAfter:  used,
		Description:  reason,
		Metadata: map[string]string{
			"previous_limit": formatLimit(prevLimit),
			"new_limit":      formatLimit(limit),
		},
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func formatLimit(limit *int64) string {
	if limit == nil {
		return "default"
	}
	return strconv.FormatInt(*limit, 10)
}

// ListExpiredUsage returns the user ids whose period has lapsed, feeding the
// batch sweep.
func (db *Postgres) ListExpiredUsage(ctx context.Context) ([]int64, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT user_id FROM quota_usage WHERE period_end <= NOW()
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *Postgres) ListQuotaTransactions(ctx context.Context, userID int64, limit int) ([]model.QuotaTransaction, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_id, type, tokens_amount, tokens_before, tokens_after,
			analysis_id, analysis_url, description, metadata, created_at
		FROM quota_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.QuotaTransaction
	for rows.Next() {
		var t model.QuotaTransaction
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Type, &t.TokensAmount, &t.TokensBefore, &t.TokensAfter,
			&t.AnalysisID, &t.AnalysisURL, &t.Description, &t.Metadata, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	if list == nil {
		list = []model.QuotaTransaction{}
	}
	return list, rows.Err()
}
