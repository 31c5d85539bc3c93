package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gallery-hub/backend/internal/config"
)

// PipelineClient talks to the external analysis pipeline. The core only
// consumes the actual cost figure it reports, never the analysis content.
type PipelineClient struct {
	baseURL    string
	httpClient *http.Client
}

type pipelineRequest struct {
	AnalysisID string `json:"analysis_id"`
	URL        string `json:"url"`
	Content    string `json:"content"`
}

type pipelineResponse struct {
	Status     string `json:"status"`
	TokensUsed int64  `json:"tokens_used"`
}

func NewPipelineClient(cfg config.PipelineConfig) *PipelineClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://gallery-analysis.gallery.svc:8000"
	}

	return &PipelineClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Run executes the analysis and returns the actual token cost consumed.
func (c *PipelineClient) Run(ctx context.Context, analysisID, url, content string) (int64, error) {
	payload, err := json.Marshal(pipelineRequest{
		AnalysisID: analysisID,
		URL:        url,
		Content:    content,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal pipeline request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/analyze", bytes.NewBuffer(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("pipeline request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read pipeline response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("pipeline returned status %d", resp.StatusCode)
	}

	var parsed pipelineResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse pipeline response: %w", err)
	}
	return parsed.TokensUsed, nil
}
