package validation

import "encoding/json"

// CreateOrderRequest is the payload for POST /checkout/create-order. Prices
// are never accepted from the client.
type CreateOrderRequest struct {
	CartID          string          `json:"cart_id" validate:"omitempty,max=64"`
	PromotionCode   string          `json:"promotion_code" validate:"omitempty,max=64"`
	ShippingAddress json.RawMessage `json:"shipping_address,omitempty"` // opaque, stored as-is
	CustomerEmail   string          `json:"customer_email" validate:"omitempty,email"`
	CustomerName    string          `json:"customer_name" validate:"omitempty,max=255"`
	CustomerPhone   string          `json:"customer_phone" validate:"omitempty,max=32"`
	PaymentMethod   string          `json:"payment_method" validate:"omitempty,oneof=cod vnpay payos"`
	IdempotencyKey  string          `json:"idempotency_key" validate:"omitempty,min=8,max=128"`

	// Guest is set by the handler when the request carries no user.
	Guest bool `json:"-"`
}

// CreateIntentRequest is the payload for POST /payments/intents.
type CreateIntentRequest struct {
	OrderID        string `json:"order_id" validate:"required,max=64"`
	Provider       string `json:"provider" validate:"required,oneof=cod vnpay payos"`
	IdempotencyKey string `json:"idempotency_key" validate:"required,min=8,max=128"`
	ReturnURL      string `json:"return_url" validate:"omitempty,url"`
	CancelURL      string `json:"cancel_url" validate:"omitempty,url"`
}

// UpdateOrderStatusRequest is the payload for POST /orders/:id/status.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// RefundRequest is the payload for POST /payments/:paymentId/refunds. A zero
// amount refunds whatever is left.
type RefundRequest struct {
	Amount int64  `json:"amount" validate:"min=0"`
	Reason string `json:"reason" validate:"max=255"`
}
