package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Auth      AuthConfig
	Lockout   LockoutConfig
	Quota     QuotaConfig
	OAuth     OAuthConfig
	Notify    NotifyConfig
	Estimator EstimatorConfig
	Pipeline  PipelineConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

type AuthConfig struct {
	JWTSecret      string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite string
}

// LockoutConfig is injected into the account guard so tests can substitute
// thresholds.
type LockoutConfig struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	HandleAttempts    int
	HandleBackoff     time.Duration
}

// QuotaConfig carries the tier-limit table and period. Limits are opaque
// cost units, not literal LLM tokens.
type QuotaConfig struct {
	FreeLimit     int64
	ProLimit      int64
	Period        time.Duration
	WarnThreshold float64
	SweepInterval time.Duration
}

func (q QuotaConfig) TierLimit(tier string) int64 {
	if tier == "pro" {
		return q.ProLimit
	}
	return q.FreeLimit
}

type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

type NotifyConfig struct {
	WebhookURL string
}

type EstimatorConfig struct {
	APIKey string
	Model  string
}

type PipelineConfig struct {
	BaseURL string
}

func Load() Config {
	return Config{
		Server: ServerConfig{
			Port:           getenv("PORT", "8080"),
			AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret:      os.Getenv("JWT_SECRET"),
			AccessTTL:      getduration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTTL:     getduration("JWT_REFRESH_TTL", 30*24*time.Hour),
			CookieDomain:   os.Getenv("AUTH_COOKIE_DOMAIN"),
			CookieSecure:   getbool("AUTH_COOKIE_SECURE", true),
			CookieSameSite: getenv("AUTH_COOKIE_SAMESITE", "lax"),
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: getint("LOCKOUT_MAX_ATTEMPTS", 5),
			LockoutDuration:   getduration("LOCKOUT_DURATION", 15*time.Minute),
			HandleAttempts:    getint("HANDLE_MAX_ATTEMPTS", 10),
			HandleBackoff:     getduration("HANDLE_BACKOFF", 25*time.Millisecond),
		},
		Quota: QuotaConfig{
			FreeLimit:     getint64("QUOTA_FREE_LIMIT", 100000),
			ProLimit:      getint64("QUOTA_PRO_LIMIT", 400000),
			Period:        getduration("QUOTA_PERIOD", 7*24*time.Hour),
			WarnThreshold: 0.8,
			SweepInterval: getduration("QUOTA_SWEEP_INTERVAL", time.Hour),
		},
		OAuth: OAuthConfig{
			GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		},
		Notify: NotifyConfig{
			WebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
		},
		Estimator: EstimatorConfig{
			APIKey: os.Getenv("AI_API_KEY"),
			Model:  getenv("AI_ESTIMATOR_MODEL", "gemini-2.0-flash"),
		},
		Pipeline: PipelineConfig{
			BaseURL: os.Getenv("PIPELINE_URL"),
		},
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getint(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getint64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}
