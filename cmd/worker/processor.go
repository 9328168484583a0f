package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/go-checkout-reconciler/internal/mailer"
	"github.com/imrishuroy/go-checkout-reconciler/internal/notify"
)

// Processor turns queued notifications into e-mails.
type Processor struct {
	sender   mailer.Sender
	from     string
	fromName string
	logger   *slog.Logger
}

// NewProcessor creates a processor that sends through sender.
func NewProcessor(sender mailer.Sender, from, fromName string, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{sender: sender, from: from, fromName: fromName, logger: logger}
}

// Handle processes an SQS batch. Failed records are reported individually so
// only they are redelivered; after the queue's max receives they land in the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.ErrorContext(ctx, "notification delivery failed",
				"message_id", rec.MessageId,
				"err", err,
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg notify.Message
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.Email == "" {
		p.logger.WarnContext(ctx, "notification without recipient dropped",
			"kind", msg.Kind,
			"order_id", msg.OrderID,
		)
		return nil
	}

	email, err := mailer.Render(msg, p.fromName, p.from)
	if err != nil {
		return err
	}
	if err := p.sender.Send(ctx, email); err != nil {
		return fmt.Errorf("send %s for order %s: %w", msg.Kind, msg.OrderID, err)
	}

	p.logger.InfoContext(ctx, "notification sent",
		"kind", msg.Kind,
		"order_id", msg.OrderID,
	)
	return nil
}

// logSender stands in for SMTP when no mail host is configured.
type logSender struct {
	logger *slog.Logger
}

func (s logSender) Send(ctx context.Context, e mailer.Email) error {
	s.logger.InfoContext(ctx, "mail not sent, no smtp host",
		"to", e.To,
		"subject", e.Subject,
	)
	return nil
}
