package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/slack-go/slack"

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// SlackNotifier sends notifications to Slack via an incoming webhook.
type SlackNotifier struct {
	WebhookURL string
	Client     *http.Client
}

// NewSlackNotifier creates a new SlackNotifier.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{WebhookURL: webhookURL}
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

// Notify posts the alert title in bold followed by the body.
func (s *SlackNotifier) Notify(ctx context.Context, alert models.Alert) error {
	if s.WebhookURL == "" {
		return fmt.Errorf("slack webhook URL is not configured")
	}

	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf("*%s*\n%s", alert.Title, alert.Body),
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.WebhookURL, httpClientOrDefault(s.Client), msg); err != nil {
		return fmt.Errorf("failed to send slack notification: %w", err)
	}
	return nil
}
