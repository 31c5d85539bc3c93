package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gallery-hub/backend/internal/config"
	"github.com/gallery-hub/backend/internal/model"
)

func newAuthService(t *testing.T) (*AuthService, *fakeUserStore, *fakeTokenStore) {
	t.Helper()
	users := newFakeUserStore()
	ledger := newFakeLedger()
	notifier := &fakeNotifier{}
	logger := zap.NewNop()

	guard := NewGuardService(users, ledger, notifier, testLockoutConfig(), 7*24*time.Hour, logger)
	tokens, store := newTokenService(t, users, time.Hour)
	svc := NewAuthService(users, guard, tokens, config.AuthConfig{RefreshTTL: time.Hour}, logger)
	return svc, users, store
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()

	pair, err := svc.Register(ctx, "a@example.com", "correct horse", "alice", model.ClientMeta{})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	pair, err = svc.Login(ctx, "a@example.com", "correct horse", model.ClientMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.RefreshToken)

	// Email matching is case-insensitive.
	_, err = svc.Login(ctx, "A@Example.COM", "correct horse", model.ClientMeta{})
	assert.NoError(t, err)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "not-an-email", "correct horse", "alice", model.ClientMeta{})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.Register(ctx, "a@example.com", "short", "alice", model.ClientMeta{})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.Register(ctx, "a@example.com", "correct horse", "al", model.ClientMeta{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@example.com", "correct horse", "alice", model.ClientMeta{})
	require.NoError(t, err)

	_, err = svc.Register(ctx, "a@example.com", "another pass", "alice2", model.ClientMeta{})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, users, _ := newAuthService(t)

	_, err := svc.Login(context.Background(), "ghost@example.com", "whatever1", model.ClientMeta{})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// Recorded without a user id for audit.
	require.Len(t, users.history, 1)
	assert.Nil(t, users.history[0].UserID)
}

func TestLoginWrongPasswordCountsFailure(t *testing.T) {
	svc, users, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@example.com", "correct horse", "alice", model.ClientMeta{})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "a@example.com", "wrong horse", model.ClientMeta{})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	user, err := users.GetUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, user.FailedLoginAttempts)
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@example.com", "correct horse", "alice", model.ClientMeta{})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = svc.Login(ctx, "a@example.com", "wrong horse", model.ClientMeta{})
		assert.ErrorIs(t, err, ErrUnauthenticated)
	}

	// Even the correct password is refused while locked, with the wait time
	// attached.
	_, err = svc.Login(ctx, "a@example.com", "correct horse", model.ClientMeta{})
	require.ErrorIs(t, err, ErrAccountLocked)
	var locked *AccountLockedError
	require.ErrorAs(t, err, &locked)
	assert.Greater(t, locked.RetryAfter, time.Duration(0))
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, users, _ := newAuthService(t)
	users.addUser(model.User{Email: "a@example.com", Handle: "alice", Active: false, PasswordHash: "x"})

	_, err := svc.Login(context.Background(), "a@example.com", "whatever1", model.ClientMeta{})
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestPasswordLoginRejectedForOAuthOnlyAccount(t *testing.T) {
	svc, users, _ := newAuthService(t)
	externalID := "google-123"
	users.addUser(model.User{Email: "a@example.com", Handle: "alice", Active: true, GoogleID: &externalID})

	_, err := svc.Login(context.Background(), "a@example.com", "any password", model.ClientMeta{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLoginWithOAuth(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()

	pair, err := svc.LoginWithOAuth(ctx, model.OAuthIdentity{
		Provider:   model.ProviderGoogle,
		ExternalID: "google-123",
		Email:      "a@example.com",
		Name:       "Alice",
	}, model.ClientMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.RefreshToken)

	// Same identity again resolves to the same account.
	again, err := svc.LoginWithOAuth(ctx, model.OAuthIdentity{
		Provider:   model.ProviderGoogle,
		ExternalID: "google-123",
		Email:      "a@example.com",
	}, model.ClientMeta{})
	require.NoError(t, err)
	assert.NotEmpty(t, again.RefreshToken)
}

func TestRefreshRotates(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()

	pair, err := svc.Register(ctx, "a@example.com", "correct horse", "alice", model.ClientMeta{})
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, pair.RefreshToken, model.ClientMeta{})
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	_, err = svc.Refresh(ctx, pair.RefreshToken, model.ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogoutRevokesPresentedToken(t *testing.T) {
	svc, _, _ := newAuthService(t)
	ctx := context.Background()

	pair, err := svc.Register(ctx, "a@example.com", "correct horse", "alice", model.ClientMeta{})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))

	_, err = svc.Refresh(ctx, pair.RefreshToken, model.ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestChangePasswordRevokesAllSessions(t *testing.T) {
	svc, users, store := newAuthService(t)
	ctx := context.Background()

	pair, err := svc.Register(ctx, "a@example.com", "correct horse", "alice", model.ClientMeta{})
	require.NoError(t, err)
	second, err := svc.Login(ctx, "a@example.com", "correct horse", model.ClientMeta{})
	require.NoError(t, err)

	user, err := users.GetUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "correct horse", "battery staple"))
	assert.Equal(t, 0, store.activeCount(user.ID))

	_, err = svc.Refresh(ctx, pair.RefreshToken, model.ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = svc.Refresh(ctx, second.RefreshToken, model.ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Old password out, new password in.
	_, err = svc.Login(ctx, "a@example.com", "correct horse", model.ClientMeta{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = svc.Login(ctx, "a@example.com", "battery staple", model.ClientMeta{})
	assert.NoError(t, err)
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	svc, users, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@example.com", "correct horse", "alice", model.ClientMeta{})
	require.NoError(t, err)
	user, err := users.GetUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, "wrong horse", "battery staple")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	err = svc.ChangePassword(ctx, user.ID, "correct horse", "short")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGetUserUnknownID(t *testing.T) {
	svc, _, _ := newAuthService(t)
	_, err := svc.GetUser(context.Background(), 404)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
