package service

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/gallery-hub/backend/internal/config"
	"github.com/gallery-hub/backend/internal/model"
)

// quotaLedger - persistence for usage counters and the append-only
// transaction log. Every mutation pairs both in one transaction.
type quotaLedger interface {
	GetQuotaUsage(ctx context.Context, userID int64) (*model.QuotaUsage, error)
	EnsureQuotaUsage(ctx context.Context, userID int64, period time.Duration) (*model.QuotaUsage, error)
	ApplyAnalysis(ctx context.Context, userID, cost int64, corr model.Correlation) (int64, int64, error)
	ApplyCredit(ctx context.Context, userID, amount int64, txType model.QuotaTransactionType, corr model.Correlation, description string) (int64, int64, error)
	ResetPeriod(ctx context.Context, userID int64, period time.Duration, onlyIfExpired bool) (bool, error)
	SetCustomLimit(ctx context.Context, userID int64, limit *int64, reason string) error
	ListExpiredUsage(ctx context.Context) ([]int64, error)
}

type quotaUserReader interface {
	GetUserByID(ctx context.Context, userID int64) (*model.User, error)
}

// Notifier is the fire-and-forget notification sink. Failures are logged by
// callers and never affect the primary operation.
type Notifier interface {
	Notify(ctx context.Context, userID int64, kind string, payload map[string]string) error
}

const (
	NotifyQuotaWarning     = "quota_warning"
	NotifySecurityConflict = "security_conflict"
	NotifyTierChange       = "tier_change"
)

// QuotaService meters the per-user token budget against the tier-limit
// table, with custom overrides, bonuses, refunds and scheduled resets.
type QuotaService struct {
	ledger   quotaLedger
	users    quotaUserReader
	notifier Notifier
	cfg      config.QuotaConfig
	logger   *zap.Logger
}

func NewQuotaService(ledger quotaLedger, users quotaUserReader, notifier Notifier, cfg config.QuotaConfig, logger *zap.Logger) *QuotaService {
	return &QuotaService{
		ledger:   ledger,
		users:    users,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// GetStatus lazily provisions the usage row and performs an implicit reset
// when the period has lapsed, so status is always fresh without an external
// scheduler having run.
func (s *QuotaService) GetStatus(ctx context.Context, userID int64) (*model.QuotaStatus, error) {
	usage, err := s.freshUsage(ctx, userID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	limit := s.effectiveLimit(user, usage)
	remaining := limit - usage.TokensUsed
	if remaining < 0 {
		remaining = 0
	}

	return &model.QuotaStatus{
		UserID:      userID,
		Tier:        user.Tier,
		Limit:       limit,
		Used:        usage.TokensUsed,
		Remaining:   remaining,
		CustomLimit: usage.CustomLimit,
		PeriodStart: usage.PeriodStart,
		PeriodEnd:   usage.PeriodEnd,
	}, nil
}

// CheckSufficient is a pure read: no provisioning side effects beyond the
// lazy reset shared with GetStatus.
func (s *QuotaService) CheckSufficient(ctx context.Context, userID, estimatedCost int64) (*model.SufficiencyCheck, error) {
	if estimatedCost < 0 {
		return nil, ErrValidation
	}

	status, err := s.GetStatus(ctx, userID)
	if err != nil {
		return nil, err
	}

	check := &model.SufficiencyCheck{
		Sufficient: status.Remaining >= estimatedCost,
		Remaining:  status.Remaining,
	}
	if !check.Sufficient {
		check.Shortfall = estimatedCost - status.Remaining
	}
	return check, nil
}

// Deduct attributes actual cost after the metered operation ran. The 80%
// threshold warning fires exactly on the crossing deduction and is
// best-effort: a notifier failure never fails the deduction.
func (s *QuotaService) Deduct(ctx context.Context, userID, actualCost int64, corr model.Correlation) error {
	if actualCost <= 0 {
		return ErrValidation
	}

	status, err := s.GetStatus(ctx, userID)
	if err != nil {
		return err
	}

	before, after, err := s.ledger.ApplyAnalysis(ctx, userID, actualCost, corr)
	if err != nil {
		return err
	}

	warnAt := int64(float64(status.Limit) * s.cfg.WarnThreshold)
	if before < warnAt && after >= warnAt && after < status.Limit {
		payload := map[string]string{
			"used":  strconv.FormatInt(after, 10),
			"limit": strconv.FormatInt(status.Limit, 10),
		}
		if err := s.notifier.Notify(ctx, userID, NotifyQuotaWarning, payload); err != nil {
			s.logger.Warn("quota warning notification failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	return nil
}

// Refund credits back cost attributed to a failed operation, floored at
// zero.
func (s *QuotaService) Refund(ctx context.Context, userID, amount int64, corr model.Correlation, reason string) error {
	if amount <= 0 {
		return ErrValidation
	}
	if _, err := s.freshUsage(ctx, userID); err != nil {
		return err
	}
	_, _, err := s.ledger.ApplyCredit(ctx, userID, amount, model.TxRefund, corr, reason)
	return err
}

// GrantBonus models bonus tokens as a reduction of tokens_used rather than
// a limit increase, so they are forfeited at the next period reset.
func (s *QuotaService) GrantBonus(ctx context.Context, userID, amount int64, reason string) error {
	if amount <= 0 {
		return ErrValidation
	}
	if _, err := s.freshUsage(ctx, userID); err != nil {
		return err
	}
	_, _, err := s.ledger.ApplyCredit(ctx, userID, amount, model.TxBonus, model.Correlation{}, reason)
	return err
}

// SetCustomLimit installs an admin override superseding the tier default.
func (s *QuotaService) SetCustomLimit(ctx context.Context, userID, limit int64, reason string) error {
	if limit < 0 {
		return ErrValidation
	}
	if _, err := s.ledger.EnsureQuotaUsage(ctx, userID, s.cfg.Period); err != nil {
		return err
	}
	return s.ledger.SetCustomLimit(ctx, userID, &limit, reason)
}

func (s *QuotaService) ClearCustomLimit(ctx context.Context, userID int64, reason string) error {
	if _, err := s.ledger.EnsureQuotaUsage(ctx, userID, s.cfg.Period); err != nil {
		return err
	}
	return s.ledger.SetCustomLimit(ctx, userID, nil, reason)
}

// Reset forces a new period regardless of expiry.
func (s *QuotaService) Reset(ctx context.Context, userID int64) error {
	if _, err := s.ledger.EnsureQuotaUsage(ctx, userID, s.cfg.Period); err != nil {
		return err
	}
	_, err := s.ledger.ResetPeriod(ctx, userID, s.cfg.Period, false)
	return err
}

// SweepExpired resets every lapsed period, isolating per-user failures, and
// returns the count actually reset.
func (s *QuotaService) SweepExpired(ctx context.Context) (int, error) {
	ids, err := s.ledger.ListExpiredUsage(ctx)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, id := range ids {
		did, err := s.ledger.ResetPeriod(ctx, id, s.cfg.Period, true)
		if err != nil {
			s.logger.Error("quota sweep reset failed", zap.Int64("user_id", id), zap.Error(err))
			continue
		}
		if did {
			reset++
		}
	}
	return reset, nil
}

func (s *QuotaService) freshUsage(ctx context.Context, userID int64) (*model.QuotaUsage, error) {
	usage, err := s.ledger.EnsureQuotaUsage(ctx, userID, s.cfg.Period)
	if err != nil {
		return nil, err
	}

	if !time.Now().Before(usage.PeriodEnd) {
		if _, err := s.ledger.ResetPeriod(ctx, userID, s.cfg.Period, true); err != nil {
			return nil, err
		}
		usage, err = s.ledger.GetQuotaUsage(ctx, userID)
		if err != nil {
			return nil, err
		}
	}
	return usage, nil
}

func (s *QuotaService) effectiveLimit(user *model.User, usage *model.QuotaUsage) int64 {
	if usage.CustomLimit != nil {
		return *usage.CustomLimit
	}
	return s.cfg.TierLimit(string(user.Tier))
}
