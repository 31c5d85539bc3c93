package client

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/gallery-hub/backend/internal/config"
	"github.com/gallery-hub/backend/internal/model"
)

const googleIssuer = "https://accounts.google.com"

// GoogleOAuth exchanges an authorization code and verifies the resulting ID
// token, yielding the identity fed into account-guard resolution.
type GoogleOAuth struct {
	oauthCfg *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

func NewGoogleOAuth(ctx context.Context, cfg config.OAuthConfig) (*GoogleOAuth, error) {
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		return nil, fmt.Errorf("missing GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET")
	}

	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover google oidc provider: %w", err)
	}

	return &GoogleOAuth{
		oauthCfg: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.GoogleClientID}),
	}, nil
}

func (g *GoogleOAuth) AuthURL(state string) string {
	return g.oauthCfg.AuthCodeURL(state)
}

func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (model.OAuthIdentity, error) {
	oauthToken, err := g.oauthCfg.Exchange(ctx, code)
	if err != nil {
		return model.OAuthIdentity{}, fmt.Errorf("code exchange failed: %w", err)
	}

	rawIDToken, ok := oauthToken.Extra("id_token").(string)
	if !ok {
		return model.OAuthIdentity{}, fmt.Errorf("no id_token in oauth response")
	}

	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return model.OAuthIdentity{}, fmt.Errorf("id token verification failed: %w", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return model.OAuthIdentity{}, fmt.Errorf("failed to parse id token claims: %w", err)
	}
	if !claims.EmailVerified {
		return model.OAuthIdentity{}, fmt.Errorf("google account email not verified")
	}

	return model.OAuthIdentity{
		Provider:   model.ProviderGoogle,
		ExternalID: idToken.Subject,
		Email:      claims.Email,
		Name:       claims.Name,
	}, nil
}
