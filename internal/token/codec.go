package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gallery-hub/backend/internal/model"
)

// ClassUser marks access tokens for regular accounts. Deployments running a
// second token population (e.g. gallery service accounts) use a different
// class so tokens can never be cross-accepted.
const ClassUser = "user"

const opaqueSecretBytes = 32

var ErrInvalidToken = errors.New("invalid token")

type AccessClaims struct {
	Email string     `json:"email"`
	Tier  model.Tier `json:"tier"`
	Class string     `json:"cls"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access tokens and hashes opaque secrets. It holds
// no persistent state.
type Codec struct {
	secret    []byte
	accessTTL time.Duration
	class     string
}

func NewCodec(secret []byte, accessTTL time.Duration) *Codec {
	return &Codec{secret: secret, accessTTL: accessTTL, class: ClassUser}
}

func (c *Codec) SignAccess(user *model.User) (string, int64, error) {
	now := time.Now()
	claims := AccessClaims{
		Email: user.Email,
		Tier:  user.Tier,
		Class: c.class,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(c.accessTTL.Seconds()), nil
}

func (c *Codec) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Class != c.class {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// UserID parses the numeric subject claim.
func (cl *AccessClaims) UserID() (int64, error) {
	id, err := strconv.ParseInt(cl.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// NewOpaqueSecret returns a cryptographically random secret used for refresh
// tokens and one-time email/reset tokens. The caller sees it exactly once;
// only its hash is ever persisted.
func NewOpaqueSecret() (string, error) {
	raw := make([]byte, opaqueSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashSecret is the sole persisted representation of an opaque secret:
// hex-encoded SHA-256.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
