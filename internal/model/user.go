package model

import "time"

type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// User is the directory entity referenced by the quota and token subsystems.
// PasswordHash is empty for OAuth-only accounts.
type User struct {
	ID                  int64
	Email               string
	Handle              string
	PasswordHash        string
	Tier                Tier
	Active              bool
	EmailVerified       bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	PasswordChangedAt   *time.Time
	GoogleID            *string
	GithubID            *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ProviderID returns the stored external id for a provider, if any.
func (u *User) ProviderID(provider string) *string {
	switch provider {
	case ProviderGoogle:
		return u.GoogleID
	case ProviderGithub:
		return u.GithubID
	}
	return nil
}

const (
	ProviderGoogle = "google"
	ProviderGithub = "github"
	ProviderLocal  = "local"
)

// OAuthIdentity is the verified identity extracted from a provider callback.
type OAuthIdentity struct {
	Provider   string
	ExternalID string
	Email      string
	Name       string
}

type LoginHistory struct {
	ID            int64
	UserID        *int64
	Provider      string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	CreatedAt     time.Time
}
