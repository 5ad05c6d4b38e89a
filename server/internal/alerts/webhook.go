package alerts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
)

// Webhook kinds.
const (
	WebhookSlack = "slack"
	WebhookTeams = "teams"
	WebhookHTTP  = "http"
)

// slackMessage is an incoming-webhook message.
type slackMessage struct {
	Text string `json:"text"`
}

// teamsCard is a legacy Office 365 connector card.
type teamsCard struct {
	Type       string `json:"@type"`
	Context    string `json:"@context"`
	ThemeColor string `json:"themeColor"`
	Summary    string `json:"summary"`
	Title      string `json:"title"`
	Text       string `json:"text"`
}

// httpEnvelope wraps the alert for generic receivers.
type httpEnvelope struct {
	Alert *Alert `json:"alert"`
}

// payload renders a for the given webhook kind.
func payload(kind string, a *Alert) ([]byte, error) {
	switch kind {
	case WebhookSlack:
		text := fmt.Sprintf("*%s* %s", badge(a), a.Message)
		return json.Marshal(slackMessage{Text: text})
	case WebhookTeams:
		return json.Marshal(teamsCard{
			Type:       "MessageCard",
			Context:    "http://schema.org/extensions",
			ThemeColor: color(a),
			Summary:    a.RuleName,
			Title:      fmt.Sprintf("logship %s: %s", a.State, a.RuleName),
			Text:       a.Message,
		})
	case WebhookHTTP:
		return json.Marshal(httpEnvelope{Alert: a})
	default:
		return nil, fmt.Errorf("unknown webhook type %q", kind)
	}
}

// deliver posts a to every webhook with a resolvable URL. Failures are
// logged and never reach the caller.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		body, err := payload(wh.Type, a)
		if err != nil {
			slog.Warn("alerts: skipping webhook", "type", wh.Type, "err", err)
			continue
		}
		if err := e.post(context.Background(), url, body); err != nil {
			slog.Error("alerts: webhook delivery failed", "type", wh.Type, "rule", a.RuleName, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

func (e *Engine) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// badge is the Slack prefix for a.
func badge(a *Alert) string {
	if a.State == StateResolved {
		return "[RESOLVED]"
	}
	switch a.Severity {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

// color is the Teams theme color for a.
func color(a *Alert) string {
	if a.State == StateResolved {
		return "2EB67D"
	}
	switch a.Severity {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
