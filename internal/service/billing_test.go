package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gallery-hub/backend/internal/model"
)

func newBillingService(t *testing.T) (*BillingService, *fakeUserStore, *fakeNotifier) {
	t.Helper()
	users := newFakeUserStore()
	notifier := &fakeNotifier{}
	return NewBillingService(users, notifier, zap.NewNop()), users, notifier
}

func TestBillingActivationUpgrades(t *testing.T) {
	svc, users, notifier := newBillingService(t)
	user := users.addUser(model.User{Email: "a@example.com", Handle: "alice", Active: true})
	ctx := context.Background()

	require.NoError(t, svc.HandleEvent(ctx, model.BillingEvent{Type: BillingActivated, UserID: user.ID}))

	fresh, err := users.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierPro, fresh.Tier)

	changes := notifier.byKind(NotifyTierChange)
	require.Len(t, changes, 1)
	assert.Equal(t, "free", changes[0].Payload["previous_tier"])
	assert.Equal(t, "pro", changes[0].Payload["new_tier"])
}

func TestBillingPastDueDowngrades(t *testing.T) {
	svc, users, _ := newBillingService(t)
	user := users.addUser(model.User{Email: "a@example.com", Handle: "alice", Active: true, Tier: model.TierPro})
	ctx := context.Background()

	require.NoError(t, svc.HandleEvent(ctx, model.BillingEvent{Type: BillingPastDue, UserID: user.ID}))

	fresh, err := users.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierFree, fresh.Tier)
}

func TestBillingSameTierIsNoop(t *testing.T) {
	svc, users, notifier := newBillingService(t)
	user := users.addUser(model.User{Email: "a@example.com", Handle: "alice", Active: true})
	ctx := context.Background()

	require.NoError(t, svc.HandleEvent(ctx, model.BillingEvent{Type: BillingCancelled, UserID: user.ID}))

	fresh, err := users.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierFree, fresh.Tier)
	assert.Empty(t, notifier.byKind(NotifyTierChange))
}

func TestBillingUnknownEventType(t *testing.T) {
	svc, users, _ := newBillingService(t)
	user := users.addUser(model.User{Email: "a@example.com", Handle: "alice", Active: true})

	err := svc.HandleEvent(context.Background(), model.BillingEvent{Type: "refunded", UserID: user.ID})
	assert.ErrorIs(t, err, ErrValidation)
}
