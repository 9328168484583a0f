// Package notify carries customer notifications out of the request path.
// Delivery is fire-and-forget: a failed notification never fails the
// operation that produced it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

type Kind string

const (
	KindOrderConfirmation Kind = "order_confirmation"
	KindPaymentSucceeded  Kind = "payment_succeeded"
	KindPaymentFailed     Kind = "payment_failed"
	KindOrderCancelled    Kind = "order_cancelled"
)

// Message is the payload published to the notification queue and consumed
// by the worker.
type Message struct {
	Kind        Kind   `json:"kind"`
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	TotalCents  int64  `json:"total_cents"`
	Currency    string `json:"currency"`
	Reason      string `json:"reason,omitempty"`
}

// Notifier publishes a message somewhere a worker can pick it up.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// MessagePublisher is the queue side of the SQS notifier; *aws.Publisher
// satisfies it.
type MessagePublisher interface {
	SendMessage(ctx context.Context, body string, attributes map[string]string) error
}

// QueueNotifier publishes JSON messages to a queue.
type QueueNotifier struct {
	Publisher MessagePublisher
}

func NewQueueNotifier(p MessagePublisher) *QueueNotifier {
	return &QueueNotifier{Publisher: p}
}

func (n *QueueNotifier) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return n.Publisher.SendMessage(ctx, string(body), map[string]string{
		"kind":     string(msg.Kind),
		"order_id": msg.OrderID,
	})
}

// LogNotifier only logs. Used when no queue is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, msg Message) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		"kind", msg.Kind,
		"order_id", msg.OrderID,
		"email", msg.Email,
	)
	return nil
}

// Send delivers msg best-effort: errors are logged and swallowed. A nil
// notifier or a message without an address is skipped.
func Send(ctx context.Context, n Notifier, logger *slog.Logger, msg Message) {
	if n == nil || msg.Email == "" {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := n.Notify(ctx, msg); err != nil {
		logger.ErrorContext(ctx, "notification failed",
			"kind", msg.Kind,
			"order_id", msg.OrderID,
			"err", err,
		)
	}
}
