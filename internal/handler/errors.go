package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gallery-hub/backend/internal/model"
	"github.com/gallery-hub/backend/internal/service"
)

// writeServiceError maps the service error taxonomy to stable HTTP codes.
// Anything unmatched is an unexpected persistence failure and surfaces as a
// generic 500.
func writeServiceError(c *gin.Context, err error) {
	var locked *service.AccountLockedError
	if errors.As(err, &locked) {
		c.Header("Retry-After", locked.RetryAfter.Round(1e9).String())
		c.JSON(http.StatusLocked, model.ErrorResponse{
			Error: locked.Error(),
			Code:  "account_locked",
		})
		return
	}

	var exceeded *service.QuotaExceededError
	if errors.As(err, &exceeded) {
		c.JSON(http.StatusPaymentRequired, model.QuotaExceededResponse{
			Error:     "quota exceeded",
			Code:      "quota_exceeded",
			Limit:     exceeded.Limit,
			Remaining: exceeded.Remaining,
			Shortfall: exceeded.Shortfall,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid input", Code: "validation_failed"})
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, service.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "unauthenticated", Code: "unauthenticated"})
	case errors.Is(err, service.ErrAccountInactive):
		c.JSON(http.StatusForbidden, model.ErrorResponse{Error: "account inactive", Code: "account_inactive"})
	case errors.Is(err, service.ErrAccountLocked):
		c.JSON(http.StatusLocked, model.ErrorResponse{Error: "account locked", Code: "account_locked"})
	case errors.Is(err, service.ErrQuotaExceeded):
		c.JSON(http.StatusPaymentRequired, model.ErrorResponse{Error: "quota exceeded", Code: "quota_exceeded"})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, model.ErrorResponse{Error: "already exists", Code: "conflict"})
	default:
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "server error"})
	}
}
