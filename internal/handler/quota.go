package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gallery-hub/backend/internal/model"
	"github.com/gallery-hub/backend/internal/service"
)

type quotaTransactionReader interface {
	ListQuotaTransactions(ctx context.Context, userID int64, limit int) ([]model.QuotaTransaction, error)
}

type QuotaHandler struct {
	svc          *service.QuotaService
	transactions quotaTransactionReader
}

func NewQuotaHandler(svc *service.QuotaService, transactions quotaTransactionReader) *QuotaHandler {
	return &QuotaHandler{svc: svc, transactions: transactions}
}

// Status godoc
// @Summary Get current quota status
// @Description Provisions the usage row on first use and resets lapsed periods implicitly, so the response is always fresh.
// @Tags quota
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.QuotaStatus
// @Failure 401 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/quota [get]
func (h *QuotaHandler) Status(c *gin.Context) {
	userID, ok := AuthUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	status, err := h.svc.GetStatus(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Check godoc
// @Summary Check whether the remaining quota covers an estimated cost
// @Tags quota
// @Produce json
// @Security BearerAuth
// @Param cost query int true "Estimated cost"
// @Success 200 {object} model.SufficiencyCheck
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /api/v1/quota/check [get]
func (h *QuotaHandler) Check(c *gin.Context) {
	userID, ok := AuthUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	cost, err := strconv.ParseInt(c.Query("cost"), 10, 64)
	if err != nil || cost < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cost"})
		return
	}

	check, err := h.svc.CheckSufficient(c.Request.Context(), userID, cost)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

// Transactions godoc
// @Summary List recent quota transactions
// @Tags quota
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.QuotaTransaction
// @Failure 401 {object} model.ErrorResponse
// @Router /api/v1/quota/transactions [get]
func (h *QuotaHandler) Transactions(c *gin.Context) {
	userID, ok := AuthUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	list, err := h.transactions.ListQuotaTransactions(c.Request.Context(), userID, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GrantBonus godoc
// @Summary Grant bonus tokens to a user
// @Description Bonus tokens reduce used tokens and are forfeited at the next period reset.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Param request body model.BonusRequest true "Amount and reason"
// @Success 200 {object} model.StatusResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /api/v1/admin/users/{userId}/bonus [post]
func (h *QuotaHandler) GrantBonus(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req model.BonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.svc.GrantBonus(c.Request.Context(), userID, req.Amount, req.Reason); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.StatusResponse{Status: "bonus_granted"})
}

// Refund godoc
// @Summary Refund tokens attributed to a failed operation
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Param request body model.RefundRequest true "Amount, reason and optional analysis id"
// @Success 200 {object} model.StatusResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /api/v1/admin/users/{userId}/refund [post]
func (h *QuotaHandler) Refund(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req model.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	corr := model.Correlation{AnalysisID: req.AnalysisID}
	if err := h.svc.Refund(c.Request.Context(), userID, req.Amount, corr, req.Reason); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.StatusResponse{Status: "refunded"})
}

// SetCustomLimit godoc
// @Summary Set a custom quota limit overriding the tier default
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Param request body model.CustomLimitRequest true "Limit and reason"
// @Success 200 {object} model.StatusResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /api/v1/admin/users/{userId}/quota-limit [put]
func (h *QuotaHandler) SetCustomLimit(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req model.CustomLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.svc.SetCustomLimit(c.Request.Context(), userID, req.Limit, req.Reason); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.StatusResponse{Status: "custom_limit_set"})
}

// ClearCustomLimit godoc
// @Summary Clear the custom quota limit, restoring the tier default
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Success 200 {object} model.StatusResponse
// @Router /api/v1/admin/users/{userId}/quota-limit [delete]
func (h *QuotaHandler) ClearCustomLimit(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if err := h.svc.ClearCustomLimit(c.Request.Context(), userID, c.Query("reason")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.StatusResponse{Status: "custom_limit_cleared"})
}

// Reset godoc
// @Summary Force a quota period reset for a user
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Success 200 {object} model.StatusResponse
// @Router /api/v1/admin/users/{userId}/quota-reset [post]
func (h *QuotaHandler) Reset(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if err := h.svc.Reset(c.Request.Context(), userID); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.StatusResponse{Status: "reset"})
}

// Sweep godoc
// @Summary Reset every expired quota period
// @Description Per-user failures are logged and skipped; the response counts successful resets only.
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.SweepResponse
// @Router /api/v1/admin/quota-sweep [post]
func (h *QuotaHandler) Sweep(c *gin.Context) {
	count, err := h.svc.SweepExpired(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.SweepResponse{Status: "swept", Reset: count})
}
