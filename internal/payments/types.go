// Package payments defines payment intents, the immutable payment and refund
// ledger records, and the capability every payment provider implements.
package payments

import (
	"strings"
	"time"
)

// Provider identifies a payment provider.
type Provider string

const (
	ProviderCOD   Provider = "cod"   // cash on delivery
	ProviderVNPay Provider = "vnpay" // redirect gateway
	ProviderPayOS Provider = "payos" // bank-transfer gateway
)

func ParseProvider(v string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(v)))
	switch p {
	case ProviderCOD, ProviderVNPay, ProviderPayOS:
		return p, nil
	}
	return "", ErrUnsupportedProvider
}

// IntentStatus is the payment intent lifecycle state.
type IntentStatus string

const (
	IntentPending    IntentStatus = "PENDING"
	IntentProcessing IntentStatus = "PROCESSING"
	IntentSucceeded  IntentStatus = "SUCCEEDED"
	IntentFailed     IntentStatus = "FAILED"
)

func (s IntentStatus) Terminal() bool {
	return s == IntentSucceeded || s == IntentFailed
}

// MinIdempotencyKeyLength is the shortest accepted caller-supplied intent key.
const MinIdempotencyKeyLength = 8

// Intent is one attempt to collect an order's total through one provider.
// AmountCents is copied from the order at creation and never changes.
type Intent struct {
	IntentID       string       `dynamodbav:"intent_id" json:"intent_id"`
	OrderID        string       `dynamodbav:"order_id" json:"order_id"`
	Provider       Provider     `dynamodbav:"provider" json:"provider"`
	Status         IntentStatus `dynamodbav:"status" json:"status"`
	AmountCents    int64        `dynamodbav:"amount_cents" json:"amount_cents"`
	Currency       string       `dynamodbav:"currency" json:"currency"`
	IdempotencyKey string       `dynamodbav:"idempotency_key" json:"-"`
	CorrelationID  string       `dynamodbav:"correlation_id" json:"correlation_id"`
	CheckoutURL    string       `dynamodbav:"checkout_url,omitempty" json:"checkout_url,omitempty"`
	ProviderRef    string       `dynamodbav:"provider_ref,omitempty" json:"provider_ref,omitempty"`
	FailureReason  string       `dynamodbav:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	CreatedAt      time.Time    `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `dynamodbav:"updated_at" json:"updated_at"`
}

// Payment is the receipt written once a provider confirms an intent.
type Payment struct {
	PaymentID     string    `dynamodbav:"payment_id" json:"payment_id"`
	IntentID      string    `dynamodbav:"intent_id" json:"intent_id"`
	OrderID       string    `dynamodbav:"order_id" json:"order_id"`
	Provider      Provider  `dynamodbav:"provider" json:"provider"`
	AmountCents   int64     `dynamodbav:"amount_cents" json:"amount_cents"`
	Currency      string    `dynamodbav:"currency" json:"currency"`
	TransactionID string    `dynamodbav:"transaction_id,omitempty" json:"transaction_id,omitempty"`
	CreatedAt     time.Time `dynamodbav:"created_at" json:"created_at"`
}

type RefundStatus string

const (
	RefundSucceeded RefundStatus = "SUCCEEDED"
	RefundFailed    RefundStatus = "FAILED"
)

// Refund references a Payment; the Payment itself is never modified.
type Refund struct {
	RefundID    string       `dynamodbav:"refund_id" json:"refund_id"`
	PaymentID   string       `dynamodbav:"payment_id" json:"payment_id"`
	OrderID     string       `dynamodbav:"order_id" json:"order_id"`
	Provider    Provider     `dynamodbav:"provider" json:"provider"`
	AmountCents int64        `dynamodbav:"amount_cents" json:"amount_cents"`
	Currency    string       `dynamodbav:"currency" json:"currency"`
	Status      RefundStatus `dynamodbav:"status" json:"status"`
	ProviderRef string       `dynamodbav:"provider_ref,omitempty" json:"provider_ref,omitempty"`
	Reason      string       `dynamodbav:"reason,omitempty" json:"reason,omitempty"`
	CreatedAt   time.Time    `dynamodbav:"created_at" json:"created_at"`
}

// RefundedCents sums the successful refunds.
func RefundedCents(refunds []Refund) int64 {
	var total int64
	for _, r := range refunds {
		if r.Status == RefundSucceeded {
			total += r.AmountCents
		}
	}
	return total
}
