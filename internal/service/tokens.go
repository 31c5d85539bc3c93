package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gallery-hub/backend/internal/db"
	"github.com/gallery-hub/backend/internal/model"
	"github.com/gallery-hub/backend/internal/token"
)

// refreshTokenStore - persistence for issued refresh tokens. Rows are only
// ever revoked, never deleted.
type refreshTokenStore interface {
	InsertRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time, meta model.ClientMeta) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldTokenID, userID int64, newTokenHash string, newExpiresAt time.Time, meta model.ClientMeta) error
	RevokeRefreshTokenByHash(ctx context.Context, tokenHash string) error
	RevokeAllRefreshTokens(ctx context.Context, userID int64) error
}

type tokenUserReader interface {
	GetUserByID(ctx context.Context, userID int64) (*model.User, error)
}

// TokenService orchestrates access/refresh pair issuance, rotation-on-refresh
// and bulk revocation.
type TokenService struct {
	store      refreshTokenStore
	users      tokenUserReader
	codec      *token.Codec
	refreshTTL time.Duration
	logger     *zap.Logger
}

func NewTokenService(store refreshTokenStore, users tokenUserReader, codec *token.Codec, refreshTTL time.Duration, logger *zap.Logger) *TokenService {
	return &TokenService{
		store:      store,
		users:      users,
		codec:      codec,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

// IssuePair creates a new active refresh token and a signed access token.
// The raw refresh secret is returned exactly once.
func (s *TokenService) IssuePair(ctx context.Context, user *model.User, meta model.ClientMeta) (*model.TokenPair, error) {
	accessToken, expiresIn, err := s.codec.SignAccess(user)
	if err != nil {
		return nil, err
	}

	secret, err := token.NewOpaqueSecret()
	if err != nil {
		return nil, err
	}

	if err := s.store.InsertRefreshToken(ctx, user.ID, token.HashSecret(secret), time.Now().Add(s.refreshTTL), meta); err != nil {
		return nil, err
	}

	return &model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: secret,
		ExpiresIn:    expiresIn,
	}, nil
}

// Rotate redeems a refresh secret at most once. The presented row is revoked
// with a pointer to its replacement in the same transaction that inserts the
// replacement, so two concurrent rotations of one secret cannot both
// succeed. Revoked or expired presentations are reuse signals: logged
// against the owner, surfaced as a generic invalid-token error.
func (s *TokenService) Rotate(ctx context.Context, presentedSecret string, meta model.ClientMeta) (*model.TokenPair, error) {
	if presentedSecret == "" {
		return nil, ErrInvalidToken
	}

	record, err := s.store.GetRefreshTokenByHash(ctx, token.HashSecret(presentedSecret))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	now := time.Now()
	if record.RevokedAt != nil {
		s.flagReuse(record, meta, "revoked token presented")
		return nil, ErrInvalidToken
	}
	if now.After(record.ExpiresAt) {
		if err := s.store.RevokeRefreshTokenByHash(ctx, record.TokenHash); err != nil {
			s.logger.Warn("failed to revoke expired refresh token", zap.Int64("user_id", record.UserID), zap.Error(err))
		}
		return nil, ErrInvalidToken
	}

	// Claims are signed from current user state so tier or role changes
	// since issuance take effect on the new access token.
	user, err := s.users.GetUserByID(ctx, record.UserID)
	if err != nil {
		return nil, err
	}

	newSecret, err := token.NewOpaqueSecret()
	if err != nil {
		return nil, err
	}

	err = s.store.RotateRefreshToken(ctx, record.ID, record.UserID, token.HashSecret(newSecret), now.Add(s.refreshTTL), meta)
	if err != nil {
		if errors.Is(err, db.ErrTokenRotated) {
			s.flagReuse(record, meta, "lost rotation race")
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	accessToken, expiresIn, err := s.codec.SignAccess(user)
	if err != nil {
		return nil, err
	}

	return &model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newSecret,
		ExpiresIn:    expiresIn,
	}, nil
}

// Revoke revokes a single refresh token by its raw secret. Used on logout;
// a blank or unknown secret is a no-op.
func (s *TokenService) Revoke(ctx context.Context, presentedSecret string) error {
	if presentedSecret == "" {
		return nil
	}
	return s.store.RevokeRefreshTokenByHash(ctx, token.HashSecret(presentedSecret))
}

// RevokeAll marks every active token of the user revoked. Idempotent; used
// on password change, deactivation and suspected compromise.
func (s *TokenService) RevokeAll(ctx context.Context, userID int64) error {
	return s.store.RevokeAllRefreshTokens(ctx, userID)
}

// flagReuse records the reuse signal for review. Legitimate clients never
// replay a rotated token, so this is logged loudly but never blocks the
// caller-facing 401.
func (s *TokenService) flagReuse(record *model.RefreshToken, meta model.ClientMeta, detail string) {
	s.logger.Warn("token_reuse detected",
		zap.Int64("user_id", record.UserID),
		zap.Int64("token_id", record.ID),
		zap.String("detail", detail),
		zap.String("ip", meta.IPAddress),
		zap.String("user_agent", meta.UserAgent),
	)
}
