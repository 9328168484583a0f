package payments

import (
	"context"
	"net/http"
	"net/url"
)

// CheckoutRequest carries what a provider needs to open a checkout session.
type CheckoutRequest struct {
	IntentID      string
	OrderID       string
	OrderNumber   string
	CorrelationID string
	AmountCents   int64
	Currency      string
	Description   string
	ReturnURL     string
	CancelURL     string
	ClientIP      string
}

// CheckoutSession is the provider's answer. Completed is set by providers
// that settle immediately (cash on delivery).
type CheckoutSession struct {
	CheckoutURL string
	ProviderRef string
	Completed   bool
}

// RefundRequest asks a provider to return part or all of a payment.
// CorrelationID is the intent's provider-facing reference.
type RefundRequest struct {
	RefundID      string
	Payment       Payment
	CorrelationID string
	AmountCents   int64
	Reason        string
}

type RefundResult struct {
	ProviderRef string
	Status      RefundStatus
}

// WebhookRequest is the raw callback as received. Adapters sign over the
// exact bytes or query values, so handlers must not re-encode them.
type WebhookRequest struct {
	Header http.Header
	Query  url.Values
	Body   []byte
}

// Result is the normalized outcome a provider reports.
type Result string

const (
	ResultSucceeded Result = "succeeded"
	ResultFailed    Result = "failed"
)

// Event is a verified provider callback in provider-agnostic form. Amount is
// nil when the provider did not send one; RawCode keeps the provider's own
// result code for logs.
type Event struct {
	Provider      Provider
	CorrelationID string
	Result        Result
	Amount        *int64
	TransactionID string
	RawCode       string
}

// ProviderClient is the capability the orchestrators and the reconciler
// depend on. Implementations live in the gateway package.
type ProviderClient interface {
	Provider() Provider
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	// VerifyWebhookSignature authenticates req and normalizes it. Forged or
	// malformed callbacks return ErrInvalidSignature.
	VerifyWebhookSignature(ctx context.Context, req WebhookRequest) (Event, error)
	ProcessRefund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// Outcome is how the reconciler disposed of a callback.
type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeInvalidSignature Outcome = "invalid_signature"
	OutcomeAmountMismatch   Outcome = "amount_mismatch"
	OutcomeError            Outcome = "error"
)

// Acknowledger renders the provider-defined acknowledgment for an outcome.
// Providers retry until they see the exact shape they expect.
type Acknowledger interface {
	Acknowledge(outcome Outcome) (status int, body any)
}
