package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gallery-hub/backend/internal/model"
	"github.com/gallery-hub/backend/internal/service"
)

type BillingHandler struct {
	svc *service.BillingService
}

func NewBillingHandler(svc *service.BillingService) *BillingHandler {
	return &BillingHandler{svc: svc}
}

// Webhook godoc
// @Summary Receive a tier-change event from the payment processor
// @Description Supported event types: activated, past_due, cancelled. The new tier takes effect on the next quota status read.
// @Tags billing
// @Accept json
// @Produce json
// @Param request body model.BillingEvent true "Billing event"
// @Success 200 {object} model.StatusResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /api/v1/billing/webhook [post]
func (h *BillingHandler) Webhook(c *gin.Context) {
	var event model.BillingEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.svc.HandleEvent(c.Request.Context(), event); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.StatusResponse{Status: "processed"})
}
