package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Summary is the run digest posted to Slack.
type Summary struct {
	Period          string
	Findings        int
	Failing         int
	PassRate        float64
	OpenRecords     int
	NewRecords      int
	Persistent      int
	ResolvedRecords int
	CriticalOpen    int
	TopIssues       []string
	Alerts          []string
}

// SlackClient handles Slack notifications.
type SlackClient struct {
	WebhookURL string
	Channel    string // Optional: Override default channel
	HTTPClient *http.Client
}

// NewSlackClient initializes the Slack integration.
func NewSlackClient(webhookURL string, channel string) *SlackClient {
	return &SlackClient{
		WebhookURL: webhookURL,
		Channel:    channel,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SendAnalysisReport posts a summary. A client without webhook is a no-op.
func (s *SlackClient) SendAnalysisReport(ctx context.Context, summary Summary) error {
	if s == nil || s.WebhookURL == "" {
		return nil
	}
	return s.send(ctx, s.constructPayload(summary))
}

// constructPayload builds the message blocks.
func (s *SlackClient) constructPayload(summary Summary) map[string]interface{} {
	// Determine status icon.
	statusIcon := "🟢"
	if summary.CriticalOpen > 0 {
		statusIcon = "🔴"
	} else if summary.OpenRecords > 0 {
		statusIcon = "🟡"
	}

	blocks := []map[string]interface{}{
		{
			"type": "header",
			"text": map[string]interface{}{
				"type": "plain_text",
				"text": fmt.Sprintf("%s Security Findings Trend Report", statusIcon),
			},
		},
		{
			"type": "context",
			"elements": []map[string]interface{}{
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Period:* %s", summary.Period),
				},
			},
		},
		{
			"type": "divider",
		},
		{
			"type": "section",
			"fields": []map[string]interface{}{
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Findings Analyzed:*\n%d", summary.Findings),
				},
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Pass Rate:*\n%.1f%%", summary.PassRate),
				},
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Open Remediations:*\n%d (%d critical)", summary.OpenRecords, summary.CriticalOpen),
				},
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Resolved:*\n%d", summary.ResolvedRecords),
				},
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Newly Failing:*\n%d", summary.NewRecords),
				},
				{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Persistently Failing:*\n%d", summary.Persistent),
				},
			},
		},
	}

	if len(summary.TopIssues) > 0 {
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": map[string]interface{}{
				"type": "mrkdwn",
				"text": "*Top failing checks*\n• " + strings.Join(summary.TopIssues, "\n• "),
			},
		})
	}

	if len(summary.Alerts) > 0 {
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": map[string]interface{}{
				"type": "mrkdwn",
				"text": "⚠️ *Trend Alerts*\n" + strings.Join(summary.Alerts, "\n"),
			},
		})
	}

	payload := map[string]interface{}{
		"blocks": blocks,
	}

	if s.Channel != "" {
		payload["channel"] = s.Channel
	}

	return payload
}

func (s *SlackClient) send(ctx context.Context, payload map[string]interface{}) error {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received non-200 status from slack: %d", resp.StatusCode)
	}
	return nil
}
