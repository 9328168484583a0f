package payments

import (
	"errors"

	"github.com/imrishuroy/go-checkout-reconciler/internal/apperr"
)

var (
	ErrPaymentIntentNotFound = apperr.New(apperr.NotFound, "PAYMENT_INTENT_NOT_FOUND", "payment intent not found")
	ErrPaymentNotFound       = apperr.New(apperr.NotFound, "PAYMENT_NOT_FOUND", "payment not found")
	ErrInvalidSignature      = apperr.New(apperr.Invalid, "INVALID_SIGNATURE", "invalid webhook signature")
	ErrAmountMismatch        = apperr.New(apperr.Invalid, "AMOUNT_MISMATCH", "amount does not match payment intent")
	ErrOrderNotPayable       = apperr.New(apperr.Conflict, "ORDER_NOT_PAYABLE", "order cannot be paid in its current status")
	ErrProviderUnavailable   = apperr.New(apperr.BadGateway, "PROVIDER_UNAVAILABLE", "payment provider unavailable")
	ErrRefundExceedsPayment  = apperr.New(apperr.Invalid, "REFUND_EXCEEDS_PAYMENT", "refund exceeds refundable amount")
	ErrUnsupportedProvider   = apperr.New(apperr.Invalid, apperr.CodeValidation, "unsupported payment provider")
	ErrInvalidIdempotencyKey = apperr.New(apperr.Invalid, apperr.CodeValidation, "idempotency key must be at least 8 characters")
	ErrRefundNotSupported    = apperr.New(apperr.Invalid, "REFUND_NOT_SUPPORTED", "provider does not support refunds")
)

// ErrIntentKeyClosed is returned when a key names an attempt that already
// failed. The client retries with a new key.
var ErrIntentKeyClosed = apperr.New(apperr.Conflict, "IDEMPOTENCY_KEY_CLOSED", "payment attempt for this idempotency key has ended; retry with a new key")

// Store-level conditions. Callers translate them; they never reach clients.
var (
	// ErrIntentTerminal is returned when a terminal intent would be changed again.
	ErrIntentTerminal = errors.New("payment intent already terminal")
	// ErrIntentNotPending is returned when opening a session on an intent that left PENDING.
	ErrIntentNotPending = errors.New("payment intent not pending")
	// ErrDuplicateIntent is returned when (order, provider, key) already exists.
	ErrDuplicateIntent = errors.New("duplicate payment intent key")
	// ErrDuplicatePayment is returned when the intent already has a payment.
	ErrDuplicatePayment = errors.New("payment already recorded for intent")
)
