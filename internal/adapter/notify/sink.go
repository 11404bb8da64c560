// Package notify delivers best-effort user notifications.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joseairosa/codesalvage-sub000/internal/domain"
)

// NotificationWriter persists notification rows.
type NotificationWriter interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
}

// Sink writes notifications to the store with a short bounded retry. Callers
// treat delivery as fire-and-forget; a Sink failure is logged by the caller
// and never aborts transfer logic.
type Sink struct {
	writer NotificationWriter
}

// NewSink creates a store-backed notification sink.
func NewSink(writer NotificationWriter) *Sink {
	return &Sink{writer: writer}
}

// Notify persists one notice, retrying transient store failures a few times.
func (s *Sink) Notify(ctx context.Context, userID, kind, title, message, actionURL string) error {
	n := &domain.Notification{
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Message:   message,
		ActionURL: actionURL,
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newShortBackoff(), 3), ctx)
	op := func() error {
		return s.writer.CreateNotification(ctx, n)
	}
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	return nil
}

func newShortBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}
