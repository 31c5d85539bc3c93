package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gallery-hub/backend/internal/config"
	"github.com/gallery-hub/backend/internal/db"
	"github.com/gallery-hub/backend/internal/model"
)

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505"}
}

type fakeUserStore struct {
	mu      sync.Mutex
	nextID  int64
	users   map[int64]*model.User
	history []model.LoginHistory
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[int64]*model.User)}
}

func (f *fakeUserStore) addUser(u model.User) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u.ID = f.nextID
	if u.Tier == "" {
		u.Tier = model.TierFree
	}
	f.users[u.ID] = &u
	copy := u
	return &copy
}

func (f *fakeUserStore) CreateUser(ctx context.Context, u db.NewUser) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if strings.EqualFold(existing.Email, u.Email) || existing.Handle == u.Handle {
			return nil, uniqueViolation()
		}
	}
	f.nextID++
	user := &model.User{
		ID:            f.nextID,
		Email:         strings.ToLower(u.Email),
		Handle:        u.Handle,
		PasswordHash:  u.PasswordHash,
		Tier:          model.TierFree,
		Active:        true,
		EmailVerified: u.EmailVerified,
		GoogleID:      u.GoogleID,
		GithubID:      u.GithubID,
		CreatedAt:     time.Now(),
	}
	f.users[user.ID] = user
	copy := *user
	return &copy, nil
}

func (f *fakeUserStore) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copy := *user
	return &copy, nil
}

func (f *fakeUserStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(user.Email, email) {
			copy := *user
			return &copy, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeUserStore) GetUserByProviderID(ctx context.Context, provider, externalID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		stored := user.ProviderID(provider)
		if stored != nil && *stored == externalID {
			copy := *user
			return &copy, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeUserStore) IncrementFailedAttempts(ctx context.Context, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	user.FailedLoginAttempts++
	return user.FailedLoginAttempts, nil
}

func (f *fakeUserStore) LockUser(ctx context.Context, userID int64, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	user.LockedUntil = &until
	return nil
}

func (f *fakeUserStore) ResetFailedAttempts(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	now := time.Now()
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	return nil
}

func (f *fakeUserStore) SetPasswordHash(ctx context.Context, userID int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	now := time.Now()
	user.PasswordHash = hash
	user.PasswordChangedAt = &now
	return nil
}

func (f *fakeUserStore) SetTier(ctx context.Context, userID int64, tier model.Tier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	user.Tier = tier
	return nil
}

func (f *fakeUserStore) MarkEmailVerified(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	user.EmailVerified = true
	return nil
}

func (f *fakeUserStore) InsertLoginHistory(ctx context.Context, h model.LoginHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, h)
	return nil
}

type fakeTokenStore struct {
	mu     sync.Mutex
	nextID int64
	tokens map[string]*model.RefreshToken
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: make(map[string]*model.RefreshToken)}
}

func (f *fakeTokenStore) InsertRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time, meta model.ClientMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.tokens[tokenHash]; exists {
		return uniqueViolation()
	}
	f.nextID++
	f.tokens[tokenHash] = &model.RefreshToken{
		ID:        f.nextID,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
		CreatedAt: time.Now(),
	}
	return nil
}

func (f *fakeTokenStore) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.tokens[tokenHash]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copy := *record
	return &copy, nil
}

// RotateRefreshToken mirrors the conditional-update semantics of the real
// store: revoking an already revoked row reports ErrTokenRotated.
func (f *fakeTokenStore) RotateRefreshToken(ctx context.Context, oldTokenID, userID int64, newTokenHash string, newExpiresAt time.Time, meta model.ClientMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var old *model.RefreshToken
	for _, record := range f.tokens {
		if record.ID == oldTokenID {
			old = record
			break
		}
	}
	if old == nil || old.RevokedAt != nil {
		return db.ErrTokenRotated
	}

	now := time.Now()
	old.RevokedAt = &now
	old.ReplacedBy = &newTokenHash

	f.nextID++
	f.tokens[newTokenHash] = &model.RefreshToken{
		ID:        f.nextID,
		UserID:    userID,
		TokenHash: newTokenHash,
		ExpiresAt: newExpiresAt,
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
		CreatedAt: now,
	}
	return nil
}

func (f *fakeTokenStore) RevokeRefreshTokenByHash(ctx context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.tokens[tokenHash]
	if ok && record.RevokedAt == nil {
		now := time.Now()
		record.RevokedAt = &now
	}
	return nil
}

func (f *fakeTokenStore) RevokeAllRefreshTokens(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for _, record := range f.tokens {
		if record.UserID == userID && record.RevokedAt == nil {
			record.RevokedAt = &now
		}
	}
	return nil
}

func (f *fakeTokenStore) activeCount(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, record := range f.tokens {
		if record.UserID == userID && record.Active(time.Now()) {
			count++
		}
	}
	return count
}

type fakeLedger struct {
	mu        sync.Mutex
	usage     map[int64]*model.QuotaUsage
	txs       []model.QuotaTransaction
	failReset map[int64]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		usage:     make(map[int64]*model.QuotaUsage),
		failReset: make(map[int64]bool),
	}
}

func (f *fakeLedger) GetQuotaUsage(ctx context.Context, userID int64) (*model.QuotaUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	usage, ok := f.usage[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copy := *usage
	return &copy, nil
}

func (f *fakeLedger) EnsureQuotaUsage(ctx context.Context, userID int64, period time.Duration) (*model.QuotaUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	usage, ok := f.usage[userID]
	if !ok {
		now := time.Now()
		usage = &model.QuotaUsage{
			UserID:      userID,
			PeriodStart: now,
			PeriodEnd:   now.Add(period),
		}
		f.usage[userID] = usage
	}
	copy := *usage
	return &copy, nil
}

func (f *fakeLedger) ApplyAnalysis(ctx context.Context, userID, cost int64, corr model.Correlation) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	usage, ok := f.usage[userID]
	if !ok {
		return 0, 0, pgx.ErrNoRows
	}
	before := usage.TokensUsed
	usage.TokensUsed += cost
	usage.LifetimeTokensUsed += cost
	usage.LifetimeAnalyses++
	usage.PeriodAnalyses++
	f.txs = append(f.txs, model.QuotaTransaction{
		UserID:       userID,
		Type:         model.TxAnalysis,
		TokensAmount: -cost,
		TokensBefore: before,
		TokensAfter:  usage.TokensUsed,
		AnalysisID:   corr.AnalysisID,
		AnalysisURL:  corr.AnalysisURL,
	})
	return before, usage.TokensUsed, nil
}

func (f *fakeLedger) ApplyCredit(ctx context.Context, userID, amount int64, txType model.QuotaTransactionType, corr model.Correlation, description string) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	usage, ok := f.usage[userID]
	if !ok {
		return 0, 0, pgx.ErrNoRows
	}
	before := usage.TokensUsed
	after := before - amount
	if after < 0 {
		after = 0
	}
	usage.TokensUsed = after
	f.txs = append(f.txs, model.QuotaTransaction{
		UserID:       userID,
		Type:         txType,
		TokensAmount: before - after,
		TokensBefore: before,
		TokensAfter:  after,
		AnalysisID:   corr.AnalysisID,
		Description:  description,
	})
	return before, after, nil
}

func (f *fakeLedger) ResetPeriod(ctx context.Context, userID int64, period time.Duration, onlyIfExpired bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReset[userID] {
		return false, errDeliberate
	}
	usage, ok := f.usage[userID]
	if !ok {
		return false, nil
	}
	now := time.Now()
	if onlyIfExpired && now.Before(usage.PeriodEnd) {
		return false, nil
	}
	before := usage.TokensUsed
	usage.TokensUsed = 0
	usage.PeriodAnalyses = 0
	usage.PeriodStart = now
	usage.PeriodEnd = now.Add(period)
	f.txs = append(f.txs, model.QuotaTransaction{
		UserID:       userID,
		Type:         model.TxReset,
		TokensAmount: before,
		TokensBefore: before,
	})
	return true, nil
}

func (f *fakeLedger) SetCustomLimit(ctx context.Context, userID int64, limit *int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	usage, ok := f.usage[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	usage.CustomLimit = limit
	f.txs = append(f.txs, model.QuotaTransaction{
		UserID:      userID,
		Type:        model.TxCustomQuotaSet,
		Description: reason,
	})
	return nil
}

func (f *fakeLedger) ListExpiredUsage(ctx context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var ids []int64
	for id, usage := range f.usage {
		if !now.Before(usage.PeriodEnd) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeLedger) expirePeriod(userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if usage, ok := f.usage[userID]; ok {
		usage.PeriodEnd = time.Now().Add(-time.Minute)
	}
}

func (f *fakeLedger) sumAmounts(userID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, tx := range f.txs {
		if tx.UserID == userID {
			sum += tx.TokensAmount
		}
	}
	return sum
}

func (f *fakeLedger) countTx(userID int64, txType model.QuotaTransactionType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, tx := range f.txs {
		if tx.UserID == userID && tx.Type == txType {
			count++
		}
	}
	return count
}

type notification struct {
	UserID  int64
	Kind    string
	Payload map[string]string
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []notification
	fail  error
}

func (f *fakeNotifier) Notify(ctx context.Context, userID int64, kind string, payload map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, notification{UserID: userID, Kind: kind, Payload: payload})
	return nil
}

func (f *fakeNotifier) byKind(kind string) []notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notification
	for _, n := range f.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

var errDeliberate = &pgconn.PgError{Code: "57014", Message: "deliberate failure"}

func testQuotaConfig() config.QuotaConfig {
	return config.QuotaConfig{
		FreeLimit:     100,
		ProLimit:      400,
		Period:        7 * 24 * time.Hour,
		WarnThreshold: 0.8,
	}
}

func testLockoutConfig() config.LockoutConfig {
	return config.LockoutConfig{
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
		HandleAttempts:    10,
		HandleBackoff:     time.Millisecond,
	}
}
