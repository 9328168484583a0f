package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/imrishuroy/go-checkout-reconciler/internal/apperr"
	"github.com/imrishuroy/go-checkout-reconciler/internal/ids"
	"github.com/imrishuroy/go-checkout-reconciler/internal/orders"
	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
	"github.com/imrishuroy/go-checkout-reconciler/internal/store"
)

// ProviderLookup resolves a provider client; *gateway.Registry satisfies it.
type ProviderLookup interface {
	Get(p payments.Provider) (payments.ProviderClient, error)
}

type IntentParams struct {
	OrderID        string
	Provider       string
	IdempotencyKey string
	ReturnURL      string
	CancelURL      string
	ClientIP       string
}

// IntentResult is the intent to hand to the client. Reused is set when an
// earlier intent for the same key (or the order's settled COD intent) was
// returned instead of a new one.
type IntentResult struct {
	Intent *payments.Intent
	Reused bool
}

// PaymentsOrchestrator creates payment intents and refunds.
type PaymentsOrchestrator struct {
	Store     store.Store
	Providers ProviderLookup
	IDs       *ids.Generator
	Logger    *slog.Logger
	Now       func() time.Time
}

func NewPaymentsOrchestrator(st store.Store, providers ProviderLookup, gen *ids.Generator, logger *slog.Logger) *PaymentsOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentsOrchestrator{Store: st, Providers: providers, IDs: gen, Logger: logger, Now: time.Now}
}

// CreateIntent opens a payment attempt for an order. The intent row is
// committed before the provider is called, and the provider's checkout URL
// is attached in a second short transaction, so no transaction spans a
// network call.
func (p *PaymentsOrchestrator) CreateIntent(ctx context.Context, in IntentParams) (*IntentResult, error) {
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if len(in.IdempotencyKey) < payments.MinIdempotencyKeyLength {
		return nil, payments.ErrInvalidIdempotencyKey
	}
	provider, err := payments.ParseProvider(in.Provider)
	if err != nil {
		return nil, err
	}
	client, err := p.Providers.Get(provider)
	if err != nil {
		return nil, err
	}

	now := p.Now().UTC()
	fresh := &payments.Intent{
		IntentID:       p.IDs.ID(),
		OrderID:        in.OrderID,
		Provider:       provider,
		Status:         payments.IntentPending,
		IdempotencyKey: in.IdempotencyKey,
		CorrelationID:  p.IDs.CorrelationCode(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var (
		order  *orders.Order
		intent *payments.Intent
		reused bool
	)
	err = p.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		order, intent, reused = nil, nil, false
		var err error
		order, err = tx.GetOrder(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return orders.ErrOrderNotFound
		}
		existing, err := tx.FindIntentByKey(ctx, in.OrderID, provider, in.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Status == payments.IntentFailed {
				return payments.ErrIntentKeyClosed
			}
			intent, reused = existing, true
			return nil
		}

		all, err := tx.ListIntents(ctx, in.OrderID)
		if err != nil {
			return err
		}
		for i := range all {
			if all[i].Status != payments.IntentSucceeded {
				continue
			}
			if provider == payments.ProviderCOD && all[i].Provider == payments.ProviderCOD {
				intent, reused = &all[i], true
				return nil
			}
			return apperr.Wrapf(payments.ErrOrderNotPayable, "order %s is already paid", order.OrderNumber)
		}

		payable := order.Status == orders.StatusPending ||
			(provider == payments.ProviderCOD && order.Status == orders.StatusConfirmed)
		if !payable {
			return apperr.Wrapf(payments.ErrOrderNotPayable, "order %s is %s", order.OrderNumber, order.Status)
		}

		// one live attempt per order
		for i := range all {
			if all[i].Status.Terminal() {
				continue
			}
			if err := tx.TerminalizeIntent(ctx, all[i].IntentID, payments.IntentFailed, "superseded"); err != nil {
				return err
			}
		}

		next := *fresh
		intent = &next
		intent.AmountCents = order.TotalCents
		intent.Currency = order.Currency
		if provider == payments.ProviderCOD {
			session, err := client.CreateCheckoutSession(ctx, p.checkoutRequest(order, intent, in))
			if err != nil {
				return apperr.WithCause(payments.ErrProviderUnavailable, err)
			}
			intent.Status = payments.IntentSucceeded
			intent.ProviderRef = session.ProviderRef
			if order.Status == orders.StatusPending {
				if err := tx.UpdateOrderStatus(ctx, order.OrderID, orders.StatusPending, orders.StatusConfirmed); err != nil {
					return err
				}
			}
		}
		return tx.CreateIntent(ctx, intent)
	})
	if errors.Is(err, payments.ErrDuplicateIntent) {
		// same key raced in from another request
		intent, err = p.Store.FindIntentByKey(ctx, in.OrderID, provider, in.IdempotencyKey)
		if err == nil && intent == nil {
			err = fmt.Errorf("intent for key %q vanished", in.IdempotencyKey)
		}
		if err == nil && intent.Status == payments.IntentFailed {
			err = payments.ErrIntentKeyClosed
		}
		reused = true
		if err == nil {
			order, err = p.Store.GetOrder(ctx, in.OrderID)
		}
	}
	if err != nil {
		return nil, err
	}

	if reused && (intent.Status != payments.IntentPending || intent.CheckoutURL != "") {
		p.Logger.InfoContext(ctx, "payment intent reused", "intent_id", intent.IntentID, "order_id", intent.OrderID, "status", intent.Status)
		return &IntentResult{Intent: intent, Reused: true}, nil
	}
	if intent.Status != payments.IntentPending {
		p.Logger.InfoContext(ctx, "payment intent created", "intent_id", intent.IntentID, "order_id", intent.OrderID, "provider", provider, "status", intent.Status)
		return &IntentResult{Intent: intent}, nil
	}

	// an intent left PENDING without a URL (new, or a crash between phases)
	session, err := client.CreateCheckoutSession(ctx, p.checkoutRequest(order, intent, in))
	if err != nil {
		p.Logger.ErrorContext(ctx, "checkout session failed", "intent_id", intent.IntentID, "provider", provider, "err", err)
		if !reused {
			ferr := p.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
				return tx.TerminalizeIntent(ctx, intent.IntentID, payments.IntentFailed, "provider unavailable")
			})
			if ferr != nil && !errors.Is(ferr, payments.ErrIntentTerminal) {
				p.Logger.ErrorContext(ctx, "failed to close intent", "intent_id", intent.IntentID, "err", ferr)
			}
		}
		return nil, apperr.WithCause(payments.ErrProviderUnavailable, err)
	}

	err = p.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.OpenIntentSession(ctx, intent.IntentID, session.CheckoutURL, session.ProviderRef)
	})
	if errors.Is(err, payments.ErrIntentNotPending) {
		// a webhook or a concurrent request got there first
		current, gerr := p.Store.GetIntent(ctx, intent.IntentID)
		if gerr != nil {
			return nil, gerr
		}
		return &IntentResult{Intent: current, Reused: true}, nil
	}
	if err != nil {
		return nil, err
	}

	intent.Status = payments.IntentProcessing
	intent.CheckoutURL = session.CheckoutURL
	intent.ProviderRef = session.ProviderRef
	p.Logger.InfoContext(ctx, "payment intent created",
		"intent_id", intent.IntentID,
		"order_id", intent.OrderID,
		"provider", provider,
		"amount_cents", intent.AmountCents,
		"correlation_id", intent.CorrelationID,
	)
	return &IntentResult{Intent: intent, Reused: reused}, nil
}

func (p *PaymentsOrchestrator) checkoutRequest(order *orders.Order, intent *payments.Intent, in IntentParams) payments.CheckoutRequest {
	return payments.CheckoutRequest{
		IntentID:      intent.IntentID,
		OrderID:       order.OrderID,
		OrderNumber:   order.OrderNumber,
		CorrelationID: intent.CorrelationID,
		AmountCents:   intent.AmountCents,
		Currency:      intent.Currency,
		Description:   "Payment for order " + order.OrderNumber,
		ReturnURL:     in.ReturnURL,
		CancelURL:     in.CancelURL,
		ClientIP:      in.ClientIP,
	}
}

// Refund returns amountCents of a payment through its provider and records
// the outcome. Zero means the whole remaining amount.
func (p *PaymentsOrchestrator) Refund(ctx context.Context, paymentID string, amountCents int64, reason string) (*payments.Refund, error) {
	payment, err := p.Store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, payments.ErrPaymentNotFound
	}
	prior, err := p.Store.ListRefunds(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	remaining := payment.AmountCents - payments.RefundedCents(prior)
	if amountCents == 0 {
		amountCents = remaining
	}
	if amountCents < 1 || amountCents > remaining {
		return nil, apperr.Wrapf(payments.ErrRefundExceedsPayment, "refund of %d exceeds refundable %d", amountCents, remaining)
	}
	client, err := p.Providers.Get(payment.Provider)
	if err != nil {
		return nil, err
	}
	intent, err := p.Store.GetIntent(ctx, payment.IntentID)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, payments.ErrPaymentIntentNotFound
	}

	refund := &payments.Refund{
		RefundID:    p.IDs.ID(),
		PaymentID:   payment.PaymentID,
		OrderID:     payment.OrderID,
		Provider:    payment.Provider,
		AmountCents: amountCents,
		Currency:    payment.Currency,
		Reason:      reason,
		CreatedAt:   p.Now().UTC(),
	}
	res, perr := client.ProcessRefund(ctx, payments.RefundRequest{
		RefundID:      refund.RefundID,
		Payment:       *payment,
		CorrelationID: intent.CorrelationID,
		AmountCents:   amountCents,
		Reason:        reason,
	})
	if errors.Is(perr, payments.ErrRefundNotSupported) {
		return nil, perr
	}
	if perr != nil {
		refund.Status = payments.RefundFailed
	} else {
		refund.Status = res.Status
		refund.ProviderRef = res.ProviderRef
		if refund.Status == "" {
			refund.Status = payments.RefundSucceeded
		}
	}

	err = p.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateRefund(ctx, refund)
	})
	if err != nil {
		p.Logger.ErrorContext(ctx, "refund not recorded", "refund_id", refund.RefundID, "payment_id", paymentID, "status", refund.Status, "err", err)
		return nil, err
	}
	p.Logger.InfoContext(ctx, "refund recorded",
		"refund_id", refund.RefundID,
		"payment_id", paymentID,
		"amount_cents", amountCents,
		"status", refund.Status,
	)
	if perr != nil {
		return refund, apperr.WithCause(payments.ErrProviderUnavailable, perr)
	}
	return refund, nil
}
