package orders

import (
	"errors"
	"time"

	"github.com/imrishuroy/go-checkout-reconciler/internal/apperr"
	"github.com/imrishuroy/go-checkout-reconciler/internal/inventory"
)

// Status is the order lifecycle state.
type Status string

// Order statuses
const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Item is an order line. UnitPriceCents is captured when the order is created
// and never re-read from the catalog.
type Item struct {
	ItemID         string `dynamodbav:"item_id" json:"item_id"`
	ProductID      string `dynamodbav:"product_id" json:"product_id"`
	Name           string `dynamodbav:"name" json:"name"`
	Quantity       int    `dynamodbav:"quantity" json:"quantity"`
	UnitPriceCents int64  `dynamodbav:"unit_price_cents" json:"unit_price_cents"`
}

// LineTotal is quantity times captured unit price.
func (it Item) LineTotal() int64 { return int64(it.Quantity) * it.UnitPriceCents }

// Order represents the item stored in the orders table.
type Order struct {
	OrderID          string    `dynamodbav:"order_id" json:"order_id"`
	OrderNumber      string    `dynamodbav:"order_number" json:"order_number"`
	UserID           string    `dynamodbav:"user_id,omitempty" json:"user_id,omitempty"`
	CustomerEmail    string    `dynamodbav:"customer_email,omitempty" json:"customer_email,omitempty"`
	CustomerName     string    `dynamodbav:"customer_name,omitempty" json:"customer_name,omitempty"`
	CustomerPhone    string    `dynamodbav:"customer_phone,omitempty" json:"customer_phone,omitempty"`
	Status           Status    `dynamodbav:"status" json:"status"`
	SubtotalCents    int64     `dynamodbav:"subtotal_cents" json:"subtotal_cents"`
	DiscountCents    int64     `dynamodbav:"discount_cents" json:"discount_cents"`
	ShippingCents    int64     `dynamodbav:"shipping_cents" json:"shipping_cents"`
	TotalCents       int64     `dynamodbav:"total_cents" json:"total_cents"`
	Currency         string    `dynamodbav:"currency" json:"currency"`
	PromotionCode    string    `dynamodbav:"promotion_code,omitempty" json:"promotion_code,omitempty"`
	PaymentMethod    string    `dynamodbav:"payment_method,omitempty" json:"payment_method,omitempty"`
	ShippingAddress  string    `dynamodbav:"shipping_address,omitempty" json:"shipping_address,omitempty"` // opaque JSON
	CartID           string    `dynamodbav:"cart_id,omitempty" json:"cart_id,omitempty"`
	IdempotencyScope string    `dynamodbav:"idempotency_scope,omitempty" json:"-"`
	IdempotencyKey   string    `dynamodbav:"idempotency_key,omitempty" json:"-"`
	Items            []Item    `dynamodbav:"items" json:"items"`
	CreatedAt        time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt        time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// Lines returns the order's product quantities, used for stock restore.
func (o *Order) Lines() []inventory.Line {
	out := make([]inventory.Line, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// ComputeTotal applies total = max(0, subtotal - discount + shipping).
func ComputeTotal(subtotal, discount, shipping int64) int64 {
	total := subtotal - discount + shipping
	if total < 0 {
		return 0
	}
	return total
}

var (
	ErrOrderNotFound          = apperr.New(apperr.NotFound, "ORDER_NOT_FOUND", "order not found")
	ErrInvalidStateTransition = apperr.New(apperr.Invalid, "INVALID_STATE_TRANSITION", "invalid order status transition")
	ErrOrderReferenced        = apperr.New(apperr.Conflict, "ORDER_REFERENCED", "order has payment intents and cannot be deleted")
)

// ErrStatusMismatch is returned by stores when a conditional status update
// finds a different current status.
var ErrStatusMismatch = errors.New("status mismatch/conditional failed")

// ErrDuplicateOrder is returned by stores when the (scope, idempotency key)
// pair already belongs to another order.
var ErrDuplicateOrder = errors.New("duplicate order idempotency key")
