package inventory

import (
	"time"

	"github.com/imrishuroy/go-checkout-reconciler/internal/apperr"
)

// MovementType labels an audit row.
type MovementType string

const (
	MovementDeduct  MovementType = "DEDUCT"
	MovementRestore MovementType = "RESTORE"
	MovementAdjust  MovementType = "ADJUST"
)

// Reference types recorded on movements.
const (
	RefOrder          = "ORDER"
	RefOrderCancelled = "ORDER_CANCELLED"
	RefOrderDeleted   = "ORDER_DELETED"
	RefManual         = "MANUAL"
)

// Record is the per-product stock row. Available is kept equal to
// Stock - Reserved by every write so stores that cannot do arithmetic in a
// condition can still guard on it.
type Record struct {
	ProductID string    `dynamodbav:"product_id"`
	Stock     int64     `dynamodbav:"stock"`
	Reserved  int64     `dynamodbav:"reserved"`
	Available int64     `dynamodbav:"available"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

// AvailableToSell is stock minus reserved.
func (r Record) AvailableToSell() int64 { return r.Stock - r.Reserved }

// Reference ties a stock change to whatever caused it.
type Reference struct {
	Type   string
	ID     string
	Reason string
}

// Movement is the immutable audit row written with every stock change.
type Movement struct {
	MovementID    string       `dynamodbav:"movement_id"`
	ProductID     string       `dynamodbav:"product_id"`
	Type          MovementType `dynamodbav:"type"`
	Quantity      int          `dynamodbav:"quantity"`
	StockBefore   int64        `dynamodbav:"stock_before"`
	StockAfter    int64        `dynamodbav:"stock_after"`
	ReferenceType string       `dynamodbav:"reference_type"`
	ReferenceID   string       `dynamodbav:"reference_id"`
	Reason        string       `dynamodbav:"reason,omitempty"`
	CreatedAt     time.Time    `dynamodbav:"created_at"`
}

// Adjustment is a signed stock change outside checkout (restores and
// operator corrections). Negative deltas are guarded like a deduction.
type Adjustment struct {
	ProductID string
	Delta     int
	Type      MovementType
	Ref       Reference
}

// Line is a quantity of one product.
type Line struct {
	ProductID string
	Quantity  int
}

var (
	ErrInsufficientStock = apperr.New(apperr.Invalid, "INSUFFICIENT_STOCK", "insufficient stock")
	ErrInvalidQuantity   = apperr.New(apperr.Invalid, "VALIDATION_ERROR", "quantity must be at least 1")
)
