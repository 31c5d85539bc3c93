package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gallery-hub/backend/internal/model"
	"github.com/gallery-hub/backend/internal/service"
)

type costEstimator interface {
	EstimateCost(ctx context.Context, content string) (int64, error)
}

type analysisPipeline interface {
	Run(ctx context.Context, analysisID, url, content string) (int64, error)
}

// AnalysisHandler glues the metered analysis flow together. Cost is
// estimated up front for the sufficiency check and attributed post-hoc at
// the actual figure the pipeline reports, so a failed run costs nothing.
type AnalysisHandler struct {
	quota     *service.QuotaService
	estimator costEstimator
	pipeline  analysisPipeline
	logger    *zap.Logger
}

func NewAnalysisHandler(quota *service.QuotaService, estimator costEstimator, pipeline analysisPipeline, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{quota: quota, estimator: estimator, pipeline: pipeline, logger: logger}
}

// Analyze godoc
// @Summary Run a metered analysis
// @Description Rejects with quota context (limit, remaining, shortfall) when the estimated cost exceeds the remaining budget.
// @Tags analysis
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.AnalyzeRequest true "Analysis target"
// @Success 200 {object} model.AnalyzeResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 402 {object} model.QuotaExceededResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /api/v1/analyses [post]
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	userID, ok := AuthUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req model.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ctx := c.Request.Context()

	estimate, err := h.estimator.EstimateCost(ctx, req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	check, err := h.quota.CheckSufficient(ctx, userID, estimate)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !check.Sufficient {
		status, serr := h.quota.GetStatus(ctx, userID)
		limit := int64(0)
		if serr == nil {
			limit = status.Limit
		}
		writeServiceError(c, &service.QuotaExceededError{
			Limit:     limit,
			Remaining: check.Remaining,
			Shortfall: check.Shortfall,
		})
		return
	}

	analysisID := uuid.NewString()
	corr := model.Correlation{AnalysisID: analysisID, AnalysisURL: req.URL}

	actual, err := h.pipeline.Run(ctx, analysisID, req.URL, req.Content)
	if err != nil {
		h.logger.Error("analysis pipeline failed",
			zap.Int64("user_id", userID),
			zap.String("analysis_id", analysisID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "analysis failed"})
		return
	}

	if err := h.quota.Deduct(ctx, userID, actual, corr); err != nil {
		// The resource was consumed; attribution failure is an internal
		// inconsistency worth a loud log, but the caller got their result.
		h.logger.Error("quota deduction failed after analysis",
			zap.Int64("user_id", userID),
			zap.String("analysis_id", analysisID),
			zap.Error(err),
		)
	}

	status, err := h.quota.GetStatus(ctx, userID)
	remaining := int64(0)
	if err == nil {
		remaining = status.Remaining
	}

	c.JSON(http.StatusOK, model.AnalyzeResponse{
		Status:     "completed",
		AnalysisID: analysisID,
		TokensUsed: actual,
		Remaining:  remaining,
	})
}
