package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"text/template"
)

// WebhookNotifier POSTs an Event, either as the default JSON encoding or
// through a user-supplied text/template, to an arbitrary HTTP endpoint.
type WebhookNotifier struct {
	URL      string
	Method   string
	Template string
	Headers  map[string]string
}

func NewWebhookNotifier(url, method, tmpl string, headers map[string]string) *WebhookNotifier {
	if method == "" {
		method = "POST"
	}
	return &WebhookNotifier{
		URL:      url,
		Method:   method,
		Template: tmpl,
		Headers:  headers,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, ev Event) error {
	if n.URL == "" {
		return nil
	}

	var body []byte
	var err error
	if n.Template != "" {
		body, err = n.renderTemplate(ev)
		if err != nil {
			return fmt.Errorf("notify: rendering webhook template: %w", err)
		}
	} else {
		body, err = json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("notify: encoding event: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, n.Method, n.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.Headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (n *WebhookNotifier) renderTemplate(ev Event) ([]byte, error) {
	tmpl, err := template.New("webhook").Parse(n.Template)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ev); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
