package policies

import "context"

// Notifier delivers a rendered message to a recipient. Delivery is always
// best-effort: callers log failures and never fail the primary operation
// on a send error.
type Notifier interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// NopNotifier discards every message; useful for tests and dry runs.
type NopNotifier struct{}

func (NopNotifier) Send(ctx context.Context, to, subject, htmlBody string) error { return nil }
