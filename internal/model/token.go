package model

import "time"

// RefreshToken rows are never physically deleted; revocation keeps the
// rotation chain auditable.
type RefreshToken struct {
	ID           int64
	UserID       int64
	TokenHash    string
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	ReplacedBy   *string
	UserAgent    string
	IPAddress    string
	CreatedAt    time.Time
}

// Active reports whether the token may still be redeemed.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// ClientMeta is the audit metadata captured with each issued token and
// login-history row.
type ClientMeta struct {
	UserAgent string
	IPAddress string
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}
