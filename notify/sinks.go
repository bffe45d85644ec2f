package notify

import (
	"log/slog"

	"rewards-backend/identity"
)

// SinkConfig selects the delivery channels.
type SinkConfig struct {
	EmailEnabled bool
	WebhookURL   string
}

// Sinks builds the configured channels. Email is only registered when SMTP is set up;
// a webhook URL that fails validation is skipped with a warning.
func Sinks(users identity.Gateway, cfg SinkConfig, logger *slog.Logger) []Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	var sinks []Notifier
	if cfg.EmailEnabled {
		sinks = append(sinks, NewEmailSink(users))
	} else {
		logger.Info("email notifications disabled, SMTP is not configured")
	}
	if cfg.WebhookURL != "" {
		webhook, err := NewWebhookSink(cfg.WebhookURL)
		if err != nil {
			logger.Warn("notification webhook disabled", "error", err)
		} else {
			sinks = append(sinks, webhook)
		}
	}
	return sinks
}
