package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// SlackNotifier posts an Event to a Slack incoming webhook URL as a plain
// text message, or through a user-supplied text/template when one is
// configured (rendered by WebhookNotifier's renderTemplate, which is
// shared within this package).
type SlackNotifier struct {
	WebhookURL string
	Template   string
}

func NewSlackNotifier(webhookURL, tmpl string) *SlackNotifier {
	return &SlackNotifier{WebhookURL: webhookURL, Template: tmpl}
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *SlackNotifier) Notify(ctx context.Context, ev Event) error {
	if s.WebhookURL == "" {
		return nil
	}

	text := defaultSlackText(ev)
	if s.Template != "" {
		rendered, err := (&WebhookNotifier{Template: s.Template}).renderTemplate(ev)
		if err != nil {
			return fmt.Errorf("notify: rendering slack template: %w", err)
		}
		text = string(rendered)
	}

	body, err := json.Marshal(slackPayload{Text: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify: slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func defaultSlackText(ev Event) string {
	if ev.Err != nil {
		return fmt.Sprintf("fileset %s: sync run %s failed: %v", ev.Fileset, ev.RunID, ev.Err)
	}
	return fmt.Sprintf("fileset %s: run %s downloaded %d, pruned %d", ev.Fileset, ev.RunID, ev.Downloaded, ev.Pruned)
}
