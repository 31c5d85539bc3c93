package service

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/gallery-hub/backend/internal/config"
	"github.com/gallery-hub/backend/internal/db"
	"github.com/gallery-hub/backend/internal/model"
)

const (
	refreshCookieName = "gallery_refresh"
	minPasswordLength = 8
	minHandleLength   = 3
)

type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   int
}

type authUserStore interface {
	GetUserByID(ctx context.Context, userID int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateUser(ctx context.Context, u db.NewUser) (*model.User, error)
	SetPasswordHash(ctx context.Context, userID int64, hash string) error
}

// AuthService composes the account guard and the token lifecycle manager
// into the top-level register/login/refresh use cases.
type AuthService struct {
	users     authUserStore
	guard     *GuardService
	tokens    *TokenService
	cookieCfg CookieConfig
	logger    *zap.Logger
}

func NewAuthService(users authUserStore, guard *GuardService, tokens *TokenService, cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:  users,
		guard:  guard,
		tokens: tokens,
		cookieCfg: CookieConfig{
			Name:     refreshCookieName,
			Path:     "/",
			Domain:   cfg.CookieDomain,
			Secure:   cfg.CookieSecure,
			SameSite: parseSameSite(cfg.CookieSameSite),
			MaxAge:   int(cfg.RefreshTTL.Seconds()),
		},
		logger: logger,
	}
}

func (s *AuthService) CookieConfig() CookieConfig {
	return s.cookieCfg
}

func (s *AuthService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Register(ctx context.Context, email, password, handle string, meta model.ClientMeta) (*model.TokenPair, error) {
	if err := validateRegistration(email, password, handle); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := s.users.CreateUser(ctx, db.NewUser{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Handle:       handle,
		PasswordHash: string(hash),
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}

	if err := s.guard.RecordSuccess(ctx, user, model.ProviderLocal, meta); err != nil {
		s.logger.Warn("failed to record registration success", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	return s.tokens.IssuePair(ctx, user, meta)
}

func (s *AuthService) Login(ctx context.Context, email, password string, meta model.ClientMeta) (*model.TokenPair, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, ErrValidation
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if db.IsNoRows(err) {
			s.guard.RecordUnknown(ctx, model.ProviderLocal, "unknown email", meta)
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	if err := s.checkAccount(user); err != nil {
		return nil, err
	}

	// OAuth-only accounts have no credential hash and cannot log in with a
	// password at all.
	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		if err := s.guard.RecordFailure(ctx, user, model.ProviderLocal, "bad credentials", meta); err != nil {
			s.logger.Warn("failed to record login failure", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		return nil, ErrUnauthenticated
	}

	if err := s.guard.RecordSuccess(ctx, user, model.ProviderLocal, meta); err != nil {
		return nil, err
	}

	return s.tokens.IssuePair(ctx, user, meta)
}

// LoginWithOAuth handles a verified provider identity: resolution (or
// provisioning) through the guard, then the same lockout and active checks
// as a password login.
func (s *AuthService) LoginWithOAuth(ctx context.Context, identity model.OAuthIdentity, meta model.ClientMeta) (*model.TokenPair, error) {
	user, err := s.guard.ResolveOAuthIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}

	if err := s.checkAccount(user); err != nil {
		s.guard.RecordUnknown(ctx, identity.Provider, "blocked oauth login", meta)
		return nil, err
	}

	if err := s.guard.RecordSuccess(ctx, user, identity.Provider, meta); err != nil {
		return nil, err
	}

	return s.tokens.IssuePair(ctx, user, meta)
}

func (s *AuthService) Refresh(ctx context.Context, refreshSecret string, meta model.ClientMeta) (*model.TokenPair, error) {
	return s.tokens.Rotate(ctx, refreshSecret, meta)
}

func (s *AuthService) Logout(ctx context.Context, refreshSecret string) error {
	return s.tokens.Revoke(ctx, refreshSecret)
}

// ChangePassword verifies the current credential, installs the new hash and
// revokes every outstanding refresh token.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength || len(newPassword) > 128 {
		return ErrValidation
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if user.PasswordHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)) != nil {
			return ErrUnauthenticated
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if err := s.users.SetPasswordHash(ctx, userID, string(hash)); err != nil {
		return err
	}

	return s.tokens.RevokeAll(ctx, userID)
}

func (s *AuthService) checkAccount(user *model.User) error {
	if !user.Active {
		return ErrAccountInactive
	}
	if s.guard.IsLocked(user) {
		return &AccountLockedError{RetryAfter: s.guard.LockRemaining(user)}
	}
	return nil
}

func validateRegistration(email, password, handle string) error {
	email = strings.TrimSpace(email)
	if len(email) < 3 || len(email) > 254 || !strings.Contains(email, "@") {
		return ErrValidation
	}
	if len(password) < minPasswordLength || len(password) > 128 {
		return ErrValidation
	}
	if len(handle) < minHandleLength || len(handle) > 30 {
		return ErrValidation
	}
	return nil
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
