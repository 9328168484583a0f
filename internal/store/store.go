// Package store declares the persistence contracts shared by the DynamoDB
// and SQL backends. Lookups return (nil, nil) when nothing matches.
package store

import (
	"context"

	"github.com/imrishuroy/go-checkout-reconciler/internal/catalog"
	"github.com/imrishuroy/go-checkout-reconciler/internal/inventory"
	"github.com/imrishuroy/go-checkout-reconciler/internal/orders"
	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
	"github.com/imrishuroy/go-checkout-reconciler/internal/promotions"
)

// Reader is available both inside and outside a transaction.
type Reader interface {
	GetProduct(ctx context.Context, productID string) (*catalog.Product, error)
	GetInventory(ctx context.Context, productID string) (*inventory.Record, error)
	GetCart(ctx context.Context, cartID string) (*catalog.Cart, error)
	GetActiveCart(ctx context.Context, userID string) (*catalog.Cart, error)
	GetUser(ctx context.Context, userID string) (*catalog.User, error)
	FindUserByEmail(ctx context.Context, email string) (*catalog.User, error)

	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*orders.Order, error)
	FindOrderByIdempotencyKey(ctx context.Context, scope, key string) (*orders.Order, error)

	GetIntent(ctx context.Context, intentID string) (*payments.Intent, error)
	FindIntentByKey(ctx context.Context, orderID string, provider payments.Provider, key string) (*payments.Intent, error)
	FindIntentByCorrelation(ctx context.Context, provider payments.Provider, correlationID string) (*payments.Intent, error)
	ListIntents(ctx context.Context, orderID string) ([]payments.Intent, error)
	GetPayment(ctx context.Context, paymentID string) (*payments.Payment, error)
	GetPaymentByIntent(ctx context.Context, intentID string) (*payments.Payment, error)
	ListRefunds(ctx context.Context, paymentID string) ([]payments.Refund, error)

	CountPromotionUsage(ctx context.Context, code, userID string) (total, byUser int, err error)
}

// Tx is a unit of work. Backends may defer writes to commit, so a write's
// error can surface from WithTx rather than from the call itself; callers
// must do all reads they depend on before writing.
type Tx interface {
	Reader

	// DeductStock atomically checks stock - reserved >= qty and decrements
	// stock, writing a movement row. Fails with inventory.ErrInsufficientStock.
	DeductStock(ctx context.Context, productID string, qty int, ref inventory.Reference) error

	CreateUser(ctx context.Context, u *catalog.User) error
	// CreateOrder inserts the order with its items. A taken
	// (IdempotencyScope, IdempotencyKey) fails with orders.ErrDuplicateOrder.
	CreateOrder(ctx context.Context, o *orders.Order) error
	UpdateOrderStatus(ctx context.Context, orderID string, from, to orders.Status) error
	RecordPromotionUsage(ctx context.Context, u *promotions.Usage) error
	CompleteCart(ctx context.Context, cartID string) error

	// CreateIntent fails with payments.ErrDuplicateIntent when the
	// (order, provider, key) triple exists.
	CreateIntent(ctx context.Context, in *payments.Intent) error
	// OpenIntentSession moves a PENDING intent to PROCESSING, else
	// payments.ErrIntentNotPending.
	OpenIntentSession(ctx context.Context, intentID, checkoutURL, providerRef string) error
	// TerminalizeIntent moves a non-terminal intent to SUCCEEDED or FAILED,
	// else payments.ErrIntentTerminal.
	TerminalizeIntent(ctx context.Context, intentID string, to payments.IntentStatus, reason string) error
	// CreatePayment fails with payments.ErrDuplicatePayment when the intent
	// already has one.
	CreatePayment(ctx context.Context, p *payments.Payment) error
	CreateRefund(ctx context.Context, r *payments.Refund) error
}

// Store is the full repository. It satisfies orders.Repository.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	AdjustStock(ctx context.Context, adj inventory.Adjustment) (*inventory.Movement, error)
	UpdateOrderStatus(ctx context.Context, orderID string, from, to orders.Status) error
	DeleteOrder(ctx context.Context, orderID string) error
}

var _ orders.Repository = Store(nil)
