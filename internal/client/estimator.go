package client

import (
	"context"

	"google.golang.org/genai"

	"github.com/gallery-hub/backend/internal/config"
)

// CostEstimator produces the estimated token cost of an analysis before it
// runs. With an API key configured it asks the model to count tokens;
// otherwise it falls back to a length heuristic so the quota check still
// has a number to work with.
type CostEstimator struct {
	client *genai.Client
	model  string
}

// Roughly four bytes per token for mixed prose; used when no genai client
// is available.
const fallbackBytesPerToken = 4

func NewCostEstimator(ctx context.Context, cfg config.EstimatorConfig) (*CostEstimator, error) {
	estimator := &CostEstimator{model: cfg.Model}
	if cfg.APIKey == "" {
		return estimator, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, err
	}
	estimator.client = client
	return estimator, nil
}

func (e *CostEstimator) EstimateCost(ctx context.Context, content string) (int64, error) {
	if e.client == nil {
		return e.heuristic(content), nil
	}

	res, err := e.client.Models.CountTokens(ctx, e.model, genai.Text(content), nil)
	if err != nil || res == nil {
		// Estimation must not block the analysis path.
		return e.heuristic(content), nil
	}
	return int64(res.TotalTokens), nil
}

func (e *CostEstimator) heuristic(content string) int64 {
	estimate := int64(len(content) / fallbackBytesPerToken)
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}
