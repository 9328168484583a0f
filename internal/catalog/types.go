// Package catalog holds the read models the checkout pipeline consumes from
// the surrounding shop: products, carts and customer records. Their CRUD lives
// elsewhere; the pipeline only reads them and completes carts.
package catalog

import (
	"time"

	"github.com/imrishuroy/go-checkout-reconciler/internal/apperr"
)

// Cart statuses
const (
	CartActive    = "ACTIVE"
	CartCompleted = "COMPLETED"
)

// Product is the catalog view used to price an order line.
type Product struct {
	ProductID  string `dynamodbav:"product_id"`
	Name       string `dynamodbav:"name"`
	PriceCents int64  `dynamodbav:"price_cents"`
	Active     bool   `dynamodbav:"active"`
	Deleted    bool   `dynamodbav:"deleted"`
}

// Purchasable reports whether the product can be sold right now.
func (p *Product) Purchasable() bool {
	return p != nil && p.Active && !p.Deleted
}

// CartLine is one product in a cart. Any price the client saw is ignored.
type CartLine struct {
	ProductID string `dynamodbav:"product_id" json:"product_id"`
	Quantity  int    `dynamodbav:"quantity" json:"quantity"`
}

// Cart is a shopper's pending selection. Guest carts have no UserID.
type Cart struct {
	CartID    string     `dynamodbav:"cart_id"`
	UserID    string     `dynamodbav:"user_id,omitempty"`
	Status    string     `dynamodbav:"status"`
	Lines     []CartLine `dynamodbav:"lines"`
	UpdatedAt time.Time  `dynamodbav:"updated_at"`
}

// User is the minimal customer record resolved for guest checkout.
type User struct {
	UserID    string    `dynamodbav:"user_id"`
	Email     string    `dynamodbav:"email"`
	Name      string    `dynamodbav:"name,omitempty"`
	Phone     string    `dynamodbav:"phone,omitempty"`
	Guest     bool      `dynamodbav:"guest"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}

// ErrCartCompleted is returned when a cart was checked out concurrently.
var ErrCartCompleted = apperr.New(apperr.Conflict, "CART_COMPLETED", "cart has already been checked out")
