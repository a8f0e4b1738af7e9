package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// WebhookAgent POSTs notifications as JSON to a configured URL.
type WebhookAgent struct {
	url        string
	httpClient *http.Client
}

// NewWebhookAgent creates a webhook agent.
func NewWebhookAgent(url string) *WebhookAgent {
	return &WebhookAgent{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the agent name.
func (a *WebhookAgent) Name() string { return "webhook" }

// Send delivers one notification.
func (a *WebhookAgent) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// AdminOnly wraps an agent so it only receives admin-audience
// notifications.
func AdminOnly(agent Agent) Agent {
	return &adminFilter{inner: agent}
}

type adminFilter struct {
	inner Agent
}

func (f *adminFilter) Name() string { return f.inner.Name() }

func (f *adminFilter) Send(ctx context.Context, n Notification) error {
	if n.Audience != AudienceAdmins {
		return nil
	}
	return f.inner.Send(ctx, n)
}

// LogAgent writes notifications to the structured log. Useful as a
// default agent and in tests.
type LogAgent struct {
	logger *slog.Logger
}

// NewLogAgent creates a log agent.
func NewLogAgent(logger *slog.Logger) *LogAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAgent{logger: logger.With("component", "notify-log")}
}

// Name returns the agent name.
func (a *LogAgent) Name() string { return "log" }

// Send logs the notification.
func (a *LogAgent) Send(_ context.Context, n Notification) error {
	a.logger.Info("notification",
		"event", n.Event,
		"audience", n.Audience,
		"user_id", n.UserID,
		"subject", n.Subject)
	return nil
}
