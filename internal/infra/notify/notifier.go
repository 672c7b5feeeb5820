package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"motorent/internal/app/policies"
)

// Topic carries rendered notification requests from the engine to the
// delivery relay.
const Topic = "notifications.email"

type message struct {
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	HTMLBody  string    `json:"html_body"`
	CreatedAt time.Time `json:"created_at"`
}

// Publisher is the broker surface the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// KafkaNotifier hands notifications to the broker; the relay consumer does
// the actual delivery. Publishing failures bubble up so callers can decide
// whether to log or fail.
type KafkaNotifier struct {
	Producer Publisher
	Prefix   string
}

func (n *KafkaNotifier) Send(ctx context.Context, to, subject, htmlBody string) error {
	payload, err := json.Marshal(message{
		To:        to,
		Subject:   subject,
		HTMLBody:  htmlBody,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return n.Producer.Publish(ctx, n.Prefix+Topic, to, payload, map[string]string{
		"content-type": "application/json",
	})
}

// LogNotifier writes notifications to the log. Used when no broker is
// configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Send(ctx context.Context, to, subject, htmlBody string) error {
	log := n.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("notification", "to", to, "subject", subject)
	return nil
}

var _ policies.Notifier = (*KafkaNotifier)(nil)
var _ policies.Notifier = LogNotifier{}
