package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
)

// WebhookNotifier posts notifications as JSON to a single endpoint that
// renders and delivers them.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier constructs a webhook notifier.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: newHTTPClient(timeout)}
}

// Send delivers one notification.
func (n *WebhookNotifier) Send(ctx context.Context, notification models.Notification) (models.NotificationResult, error) {
	body, err := json.Marshal(notification)
	if err != nil {
		return models.NotificationResult{}, fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return models.NotificationResult{}, fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var receipt struct {
		ID string `json:"id"`
	}
	if err := doJSON(ctx, n.client, req, &receipt); err != nil {
		return models.NotificationResult{}, fmt.Errorf("deliver %s notification: %w", notification.Kind, err)
	}
	return models.NotificationResult{Success: true, ID: receipt.ID}, nil
}

// LogNotifier writes notifications to the log instead of delivering them.
// It is used when no webhook is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a log-only notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Send logs the notification and reports success.
func (n *LogNotifier) Send(_ context.Context, notification models.Notification) (models.NotificationResult, error) {
	n.logger.Info("notification",
		zap.String("kind", string(notification.Kind)),
		zap.String("recipient", notification.Recipient),
		zap.Any("payload", notification.Payload),
	)
	return models.NotificationResult{Success: true}, nil
}
