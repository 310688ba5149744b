package notify

// WebhookConfig mirrors one generic webhook sink's configuration surface.
type WebhookConfig struct {
	URL      string
	Method   string
	Template string
	Headers  map[string]string
}

// Config is the notification section of a fileset's configuration, kept
// independent of the config package to avoid an import cycle.
type Config struct {
	SlackWebhookURL string
	SlackTemplate   string
	Webhooks        []WebhookConfig
}

// Build assembles a single Notifier from cfg, or nil if no sink is
// configured. A coordinator with a nil Notifier simply skips the
// notify step of its tick.
func Build(cfg Config) Notifier {
	var notifiers []Notifier

	if cfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, NewSlackNotifier(cfg.SlackWebhookURL, cfg.SlackTemplate))
	}
	for _, w := range cfg.Webhooks {
		if w.URL != "" {
			notifiers = append(notifiers, NewWebhookNotifier(w.URL, w.Method, w.Template, w.Headers))
		}
	}

	switch len(notifiers) {
	case 0:
		return nil
	case 1:
		return notifiers[0]
	default:
		return &MultiNotifier{Notifiers: notifiers}
	}
}
