package model

import "time"

// QuotaUsage is the single mutable counter row per user. All history lives
// in quota_transactions.
type QuotaUsage struct {
	UserID              int64
	TokensUsed          int64
	PeriodStart         time.Time
	PeriodEnd           time.Time
	LifetimeTokensUsed  int64
	LifetimeAnalyses    int64
	PeriodAnalyses      int64
	CustomLimit         *int64
	LastAnalysisAt      *time.Time
	LastAnalysisURL     string
	LastAnalysisTokens  int64
	UpdatedAt           time.Time
}

type QuotaTransactionType string

const (
	TxAnalysis       QuotaTransactionType = "analysis"
	TxReset          QuotaTransactionType = "reset"
	TxBonus          QuotaTransactionType = "bonus"
	TxRefund         QuotaTransactionType = "refund"
	TxCustomQuotaSet QuotaTransactionType = "custom_quota_set"
)

// QuotaTransaction is append-only. TokensBefore and TokensAfter snapshot
// tokens_used around the mutation; TokensAmount is the budget delta, so
// TokensAfter = TokensBefore - TokensAmount and deductions carry a negative
// amount while credits and resets carry a positive one.
type QuotaTransaction struct {
	ID           string
	UserID       int64
	Type         QuotaTransactionType
	TokensAmount int64
	TokensBefore int64
	TokensAfter  int64
	AnalysisID   string
	AnalysisURL  string
	Description  string
	Metadata     map[string]string
	CreatedAt    time.Time
}

type QuotaStatus struct {
	UserID      int64     `json:"userId"`
	Tier        Tier      `json:"tier"`
	Limit       int64     `json:"limit"`
	Used        int64     `json:"used"`
	Remaining   int64     `json:"remaining"`
	CustomLimit *int64    `json:"customLimit,omitempty"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
}

type SufficiencyCheck struct {
	Sufficient bool  `json:"sufficient"`
	Remaining  int64 `json:"remaining"`
	Shortfall  int64 `json:"shortfall,omitempty"`
}

// Correlation links a quota transaction back to the metered operation.
type Correlation struct {
	AnalysisID  string
	AnalysisURL string
}
