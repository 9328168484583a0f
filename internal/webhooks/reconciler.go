// Package webhooks applies verified provider callbacks to payment intents
// and orders. Callbacks may repeat, arrive out of order or be forged; each
// is authenticated first and applied at most once.
package webhooks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/imrishuroy/go-checkout-reconciler/internal/aws"
	"github.com/imrishuroy/go-checkout-reconciler/internal/ids"
	"github.com/imrishuroy/go-checkout-reconciler/internal/notify"
	"github.com/imrishuroy/go-checkout-reconciler/internal/orders"
	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
	"github.com/imrishuroy/go-checkout-reconciler/internal/store"
)

// Providers resolves provider clients; *gateway.Registry satisfies it.
type Providers interface {
	Get(p payments.Provider) (payments.ProviderClient, error)
}

// Counter records security and consistency events; *aws.Metrics satisfies it.
type Counter interface {
	Incr(ctx context.Context, name string, dims ...string)
}

type Reconciler struct {
	Store     store.Store
	Providers Providers
	IDs       *ids.Generator
	Notifier  notify.Notifier
	Metrics   Counter
	Logger    *slog.Logger
	Now       func() time.Time
}

func NewReconciler(st store.Store, providers Providers, gen *ids.Generator, notifier notify.Notifier, metrics Counter, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		Store:     st,
		Providers: providers,
		IDs:       gen,
		Notifier:  notifier,
		Metrics:   metrics,
		Logger:    logger,
		Now:       time.Now,
	}
}

func (r *Reconciler) incr(ctx context.Context, name string, provider payments.Provider) {
	if r.Metrics != nil {
		r.Metrics.Incr(ctx, name, "Provider", string(provider))
	}
}

// Handle verifies and applies one callback. The returned error is set only
// with OutcomeError, for failures the provider should retry.
func (r *Reconciler) Handle(ctx context.Context, provider payments.Provider, req payments.WebhookRequest) (payments.Outcome, error) {
	client, err := r.Providers.Get(provider)
	if err != nil {
		return payments.OutcomeNotFound, nil
	}
	logger := r.Logger.With("provider", provider)

	ev, err := client.VerifyWebhookSignature(ctx, req)
	if err != nil {
		logger.WarnContext(ctx, "webhook rejected", "security_event", true, "err", err)
		r.incr(ctx, aws.MetricInvalidSignature, provider)
		return payments.OutcomeInvalidSignature, nil
	}
	logger = logger.With("correlation_id", ev.CorrelationID, "result", ev.Result, "raw_code", ev.RawCode)

	found, err := r.Store.FindIntentByCorrelation(ctx, provider, ev.CorrelationID)
	if err != nil {
		return payments.OutcomeError, err
	}
	if found == nil {
		logger.WarnContext(ctx, "webhook for unknown intent")
		return payments.OutcomeNotFound, nil
	}
	logger = logger.With("intent_id", found.IntentID, "order_id", found.OrderID)

	var (
		outcome payments.Outcome
		order   *orders.Order
	)
	err = r.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		outcome, order = "", nil
		intent, err := tx.GetIntent(ctx, found.IntentID)
		if err != nil {
			return err
		}
		if intent == nil {
			outcome = payments.OutcomeNotFound
			return nil
		}
		if intent.Status.Terminal() {
			outcome = payments.OutcomeDuplicate
			if ev.Result == payments.ResultSucceeded && intent.Status == payments.IntentFailed {
				// money moved on an attempt we already closed
				logger.ErrorContext(ctx, "payment received for closed intent", "status", intent.Status, "transaction_id", ev.TransactionID)
				r.incr(ctx, aws.MetricClosedIntentPayment, provider)
			}
			return nil
		}
		if ev.Amount != nil && *ev.Amount != intent.AmountCents {
			logger.ErrorContext(ctx, "webhook amount mismatch", "expected_cents", intent.AmountCents, "received_cents", *ev.Amount)
			r.incr(ctx, aws.MetricAmountMismatch, provider)
			outcome = payments.OutcomeAmountMismatch
			return nil
		}

		order, err = tx.GetOrder(ctx, intent.OrderID)
		if err != nil {
			return err
		}

		if ev.Result != payments.ResultSucceeded {
			outcome = payments.OutcomeApplied
			return tx.TerminalizeIntent(ctx, intent.IntentID, payments.IntentFailed, "provider result "+ev.RawCode)
		}

		if err := tx.TerminalizeIntent(ctx, intent.IntentID, payments.IntentSucceeded, ""); err != nil {
			return err
		}
		if err := tx.CreatePayment(ctx, &payments.Payment{
			PaymentID:     r.IDs.ID(),
			IntentID:      intent.IntentID,
			OrderID:       intent.OrderID,
			Provider:      intent.Provider,
			AmountCents:   intent.AmountCents,
			Currency:      intent.Currency,
			TransactionID: ev.TransactionID,
			CreatedAt:     r.Now().UTC(),
		}); err != nil {
			return err
		}
		switch {
		case order == nil:
			logger.ErrorContext(ctx, "paid intent has no order")
		case order.Status == orders.StatusPending:
			if err := tx.UpdateOrderStatus(ctx, order.OrderID, orders.StatusPending, orders.StatusConfirmed); err != nil {
				return err
			}
			order.Status = orders.StatusConfirmed
		default:
			// cancelled or moved on while the customer was paying
			logger.ErrorContext(ctx, "payment captured for order not awaiting payment", "order_status", order.Status)
		}
		outcome = payments.OutcomeApplied
		return nil
	})
	switch {
	case errors.Is(err, payments.ErrIntentTerminal), errors.Is(err, payments.ErrDuplicatePayment):
		logger.InfoContext(ctx, "webhook raced with a concurrent delivery")
		return payments.OutcomeDuplicate, nil
	case err != nil:
		logger.ErrorContext(ctx, "webhook apply failed", "err", err)
		return payments.OutcomeError, err
	}

	logger.InfoContext(ctx, "webhook processed", "outcome", outcome)
	if outcome == payments.OutcomeApplied && order != nil {
		kind := notify.KindPaymentFailed
		if ev.Result == payments.ResultSucceeded {
			kind = notify.KindPaymentSucceeded
		}
		notify.Send(ctx, r.Notifier, r.Logger, order.Notification(kind))
	}
	return outcome, nil
}
