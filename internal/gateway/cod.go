package gateway

import (
	"context"

	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
)

// COD settles on delivery: the session completes immediately and no
// callback ever arrives.
type COD struct{}

func NewCOD() *COD { return &COD{} }

func (COD) Provider() payments.Provider { return payments.ProviderCOD }

func (COD) CreateCheckoutSession(_ context.Context, req payments.CheckoutRequest) (payments.CheckoutSession, error) {
	return payments.CheckoutSession{ProviderRef: "cod-" + req.CorrelationID, Completed: true}, nil
}

func (COD) VerifyWebhookSignature(context.Context, payments.WebhookRequest) (payments.Event, error) {
	return payments.Event{}, payments.ErrInvalidSignature
}

func (COD) ProcessRefund(context.Context, payments.RefundRequest) (payments.RefundResult, error) {
	return payments.RefundResult{}, payments.ErrRefundNotSupported
}
