package model

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type PingResponse struct {
	Message string `json:"message"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Handle   string `json:"handle"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type AuthResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type AuthLogoutResponse struct {
	Status string `json:"status"`
}

type AuthMeResponse struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	Handle string `json:"handle"`
	Tier   Tier   `json:"tier"`
}

type QuotaExceededResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	Shortfall int64  `json:"shortfall"`
}

type CustomLimitRequest struct {
	Limit  int64  `json:"limit"`
	Reason string `json:"reason"`
}

type BonusRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type RefundRequest struct {
	Amount     int64  `json:"amount"`
	Reason     string `json:"reason"`
	AnalysisID string `json:"analysisId"`
}

type AnalyzeRequest struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

type AnalyzeResponse struct {
	Status     string `json:"status"`
	AnalysisID string `json:"analysisId"`
	TokensUsed int64  `json:"tokensUsed"`
	Remaining  int64  `json:"remaining"`
}

// BillingEvent is the tier-change payload delivered by the payment
// processor webhook.
type BillingEvent struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId"`
}

type SweepResponse struct {
	Status string `json:"status"`
	Reset  int    `json:"reset"`
}
