package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"

	"motorent/internal/infra/broker/kafka"
)

// Sender delivers one rendered notification to its recipient.
type Sender interface {
	Deliver(ctx context.Context, to, subject, htmlBody string) error
}

// Relay consumes notification requests from the broker and hands them to a
// Sender. Delivery errors are logged and the message is skipped; the broker
// offset advances either way, matching the best-effort contract.
type Relay struct {
	Sender Sender
	Logger *slog.Logger
}

func (r *Relay) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var m message
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		r.log().Error("dropping malformed notification", "topic", msg.Topic, "error", err)
		return nil
	}
	if err := r.Sender.Deliver(ctx, m.To, m.Subject, m.HTMLBody); err != nil {
		r.log().Warn("notification delivery failed", "to", m.To, "subject", m.Subject, "error", err)
	}
	return nil
}

func (r *Relay) log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// LogSender is the default delivery backend: it records the notification in
// the log. A real SMTP or push backend satisfies the same interface.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Deliver(ctx context.Context, to, subject, htmlBody string) error {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("delivering notification", "to", to, "subject", subject)
	return nil
}

var _ kafka.MessageHandler = (*Relay)(nil)
