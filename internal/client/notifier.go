package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gallery-hub/backend/internal/config"
)

// WebhookNotifier posts notification events to the platform's notification
// collaborator. Delivery is best-effort; callers must never fail an
// operation because a notification did not go out.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

type notificationEvent struct {
	UserID  int64             `json:"userId"`
	Kind    string            `json:"kind"`
	Payload map[string]string `json:"payload"`
}

func NewWebhookNotifier(cfg config.NotifyConfig, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url: cfg.WebhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (n *WebhookNotifier) IsConfigured() bool {
	return n.url != ""
}

func (n *WebhookNotifier) Notify(ctx context.Context, userID int64, kind string, payload map[string]string) error {
	if !n.IsConfigured() {
		n.logger.Debug("notifier not configured, dropping event",
			zap.Int64("user_id", userID), zap.String("kind", kind))
		return nil
	}

	body, err := json.Marshal(notificationEvent{
		UserID:  userID,
		Kind:    kind,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification sink returned status %d", resp.StatusCode)
	}
	return nil
}
