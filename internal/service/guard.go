package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gallery-hub/backend/internal/config"
	"github.com/gallery-hub/backend/internal/db"
	"github.com/gallery-hub/backend/internal/model"
)

type guardUserStore interface {
	GetUserByProviderID(ctx context.Context, provider, externalID string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, u db.NewUser) (*model.User, error)
	IncrementFailedAttempts(ctx context.Context, userID int64) (int, error)
	LockUser(ctx context.Context, userID int64, until time.Time) error
	ResetFailedAttempts(ctx context.Context, userID int64) error
	MarkEmailVerified(ctx context.Context, userID int64) error
	InsertLoginHistory(ctx context.Context, h model.LoginHistory) error
}

type quotaProvisioner interface {
	EnsureQuotaUsage(ctx context.Context, userID int64, period time.Duration) (*model.QuotaUsage, error)
}

// GuardService owns login-attempt counting, the lockout state machine and
// OAuth identity resolution.
type GuardService struct {
	store       guardUserStore
	quota       quotaProvisioner
	notifier    Notifier
	cfg         config.LockoutConfig
	quotaPeriod time.Duration
	logger      *zap.Logger
}

func NewGuardService(store guardUserStore, quota quotaProvisioner, notifier Notifier, cfg config.LockoutConfig, quotaPeriod time.Duration, logger *zap.Logger) *GuardService {
	return &GuardService{
		store:       store,
		quota:       quota,
		notifier:    notifier,
		cfg:         cfg,
		quotaPeriod: quotaPeriod,
		logger:      logger,
	}
}

// IsLocked reports whether the lock is set and still in the future. An
// elapsed lock clears implicitly on the next successful authentication.
func (s *GuardService) IsLocked(user *model.User) bool {
	return user.LockedUntil != nil && time.Now().Before(*user.LockedUntil)
}

// LockRemaining returns how long the caller must wait.
func (s *GuardService) LockRemaining(user *model.User) time.Duration {
	if user.LockedUntil == nil {
		return 0
	}
	remaining := time.Until(*user.LockedUntil)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordFailure increments the counter and, at the configured threshold,
// transitions the account to locked. The lock is purely time-based.
func (s *GuardService) RecordFailure(ctx context.Context, user *model.User, provider, reason string, meta model.ClientMeta) error {
	attempts, err := s.store.IncrementFailedAttempts(ctx, user.ID)
	if err != nil {
		return err
	}

	if attempts >= s.cfg.MaxFailedAttempts {
		until := time.Now().Add(s.cfg.LockoutDuration)
		if err := s.store.LockUser(ctx, user.ID, until); err != nil {
			return err
		}
		s.logger.Warn("account locked",
			zap.Int64("user_id", user.ID),
			zap.Int("attempts", attempts),
			zap.Time("locked_until", until),
		)
	}

	s.appendHistory(ctx, &user.ID, provider, meta, false, reason)
	return nil
}

// RecordSuccess resets the counter, clears any lock and stamps last-login.
func (s *GuardService) RecordSuccess(ctx context.Context, user *model.User, provider string, meta model.ClientMeta) error {
	if err := s.store.ResetFailedAttempts(ctx, user.ID); err != nil {
		return err
	}
	s.appendHistory(ctx, &user.ID, provider, meta, true, "")
	return nil
}

// RecordUnknown logs an attempt against an email with no account.
func (s *GuardService) RecordUnknown(ctx context.Context, provider, reason string, meta model.ClientMeta) {
	s.appendHistory(ctx, nil, provider, meta, false, reason)
}

// ResolveOAuthIdentity maps a verified provider identity to a user:
// stored provider id wins; an email owned by a different account is a
// conflict (auto-linking is deliberately disabled, the owner is alerted);
// no match provisions a new account.
func (s *GuardService) ResolveOAuthIdentity(ctx context.Context, identity model.OAuthIdentity) (*model.User, error) {
	user, err := s.store.GetUserByProviderID(ctx, identity.Provider, identity.ExternalID)
	if err == nil {
		if !user.EmailVerified {
			if err := s.store.MarkEmailVerified(ctx, user.ID); err != nil {
				s.logger.Warn("failed to mark email verified", zap.Int64("user_id", user.ID), zap.Error(err))
			}
		}
		return user, nil
	}
	if !db.IsNoRows(err) {
		return nil, err
	}

	owner, err := s.store.GetUserByEmail(ctx, identity.Email)
	if err == nil {
		payload := map[string]string{
			"provider": identity.Provider,
			"email":    identity.Email,
		}
		if nerr := s.notifier.Notify(ctx, owner.ID, NotifySecurityConflict, payload); nerr != nil {
			s.logger.Warn("security conflict notification failed", zap.Int64("user_id", owner.ID), zap.Error(nerr))
		}
		s.logger.Warn("oauth email conflict rejected",
			zap.String("provider", identity.Provider),
			zap.Int64("owner_id", owner.ID),
		)
		return nil, ErrConflict
	}
	if !db.IsNoRows(err) {
		return nil, err
	}

	return s.provision(ctx, identity)
}

// provision creates the account, resolving handle contention by
// unique-constraint-triggered retry with exponential backoff and a
// timestamp-suffix fallback that is guaranteed unique.
func (s *GuardService) provision(ctx context.Context, identity model.OAuthIdentity) (*model.User, error) {
	base := deriveHandle(identity)

	newUser := db.NewUser{
		Email:         identity.Email,
		EmailVerified: true,
	}
	externalID := identity.ExternalID
	switch identity.Provider {
	case model.ProviderGithub:
		newUser.GithubID = &externalID
	default:
		newUser.GoogleID = &externalID
	}

	var user *model.User
	var err error
	for attempt := 0; attempt < s.cfg.HandleAttempts; attempt++ {
		newUser.Handle = base
		if attempt > 0 {
			newUser.Handle = base + "-" + randomSuffix()
			backoff := s.cfg.HandleBackoff << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		user, err = s.store.CreateUser(ctx, newUser)
		if err == nil {
			break
		}
		if !db.IsUniqueViolation(err) {
			return nil, err
		}
	}

	if user == nil {
		newUser.Handle = base + "-" + timestampSuffix()
		user, err = s.store.CreateUser(ctx, newUser)
		if err != nil {
			return nil, err
		}
	}

	// Dependent quota record: a partial failure here must not fail the
	// signup. GetStatus provisioning repairs it lazily on next read.
	if _, err := s.quota.EnsureQuotaUsage(ctx, user.ID, s.quotaPeriod); err != nil {
		s.logger.Warn("quota provisioning degraded, will repair lazily",
			zap.Int64("user_id", user.ID), zap.Error(err))
	}

	return user, nil
}

func (s *GuardService) appendHistory(ctx context.Context, userID *int64, provider string, meta model.ClientMeta, success bool, reason string) {
	err := s.store.InsertLoginHistory(ctx, model.LoginHistory{
		UserID:        userID,
		Provider:      provider,
		IPAddress:     meta.IPAddress,
		UserAgent:     meta.UserAgent,
		Success:       success,
		FailureReason: reason,
	})
	if err != nil {
		s.logger.Warn("failed to append login history", zap.Error(err))
	}
}

func deriveHandle(identity model.OAuthIdentity) string {
	candidate := identity.Name
	if candidate == "" {
		candidate, _, _ = strings.Cut(identity.Email, "@")
	}

	var b strings.Builder
	for _, r := range strings.ToLower(candidate) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			b.WriteRune('-')
		}
	}
	handle := strings.Trim(b.String(), "-")
	if len(handle) < 3 {
		handle = "user-" + randomSuffix()
	}
	if len(handle) > 30 {
		handle = handle[:30]
	}
	return handle
}

func randomSuffix() string {
	return uuid.NewString()[:6]
}

func timestampSuffix() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}
