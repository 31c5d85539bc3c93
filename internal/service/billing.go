package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/gallery-hub/backend/internal/model"
)

const (
	BillingActivated = "activated"
	BillingPastDue   = "past_due"
	BillingCancelled = "cancelled"
)

type billingUserStore interface {
	GetUserByID(ctx context.Context, userID int64) (*model.User, error)
	SetTier(ctx context.Context, userID int64, tier model.Tier) error
}

// BillingService applies tier-change events from the payment processor.
// The quota manager reads the tier fresh on every status call, so a change
// here takes effect on the next GetStatus with no propagation step.
type BillingService struct {
	users    billingUserStore
	notifier Notifier
	logger   *zap.Logger
}

func NewBillingService(users billingUserStore, notifier Notifier, logger *zap.Logger) *BillingService {
	return &BillingService{users: users, notifier: notifier, logger: logger}
}

func (s *BillingService) HandleEvent(ctx context.Context, event model.BillingEvent) error {
	var tier model.Tier
	switch event.Type {
	case BillingActivated:
		tier = model.TierPro
	case BillingPastDue, BillingCancelled:
		tier = model.TierFree
	default:
		return ErrValidation
	}

	user, err := s.users.GetUserByID(ctx, event.UserID)
	if err != nil {
		return err
	}
	if user.Tier == tier {
		return nil
	}

	if err := s.users.SetTier(ctx, event.UserID, tier); err != nil {
		return err
	}

	payload := map[string]string{
		"previous_tier": string(user.Tier),
		"new_tier":      string(tier),
		"event":         event.Type,
	}
	if err := s.notifier.Notify(ctx, event.UserID, NotifyTierChange, payload); err != nil {
		s.logger.Warn("tier change notification failed", zap.Int64("user_id", event.UserID), zap.Error(err))
	}

	s.logger.Info("tier changed",
		zap.Int64("user_id", event.UserID),
		zap.String("tier", string(tier)),
		zap.String("event", event.Type),
	)
	return nil
}
