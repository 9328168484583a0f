package sqlstore

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type productRow struct {
	ID         string `gorm:"type:varchar(64);primaryKey"`
	Name       string `gorm:"type:varchar(255);not null"`
	PriceCents int64  `gorm:"not null"`
	Active     bool   `gorm:"not null"`
	Deleted    bool   `gorm:"not null"`
	UpdatedAt  time.Time
}

func (productRow) TableName() string { return "products" }

type inventoryRow struct {
	ProductID string `gorm:"type:varchar(64);primaryKey"`
	Stock     int64  `gorm:"not null"`
	Reserved  int64  `gorm:"not null"`
	UpdatedAt time.Time
}

func (inventoryRow) TableName() string { return "inventory" }

type movementRow struct {
	ID            string `gorm:"type:char(36);primaryKey"`
	ProductID     string `gorm:"type:varchar(64);not null;index"`
	Type          string `gorm:"type:varchar(16);not null"`
	Quantity      int    `gorm:"not null"`
	StockBefore   int64  `gorm:"not null"`
	StockAfter    int64  `gorm:"not null"`
	ReferenceType string `gorm:"type:varchar(32);not null;index:ix_movements_ref,priority:1"`
	ReferenceID   string `gorm:"type:varchar(64);not null;index:ix_movements_ref,priority:2"`
	Reason        string `gorm:"type:varchar(255)"`
	CreatedAt     time.Time
}

func (movementRow) TableName() string { return "inventory_movements" }

type cartRow struct {
	ID        string        `gorm:"type:varchar(64);primaryKey"`
	UserID    *string       `gorm:"type:varchar(64);index"`
	Status    string        `gorm:"type:varchar(16);not null"`
	Items     []cartItemRow `gorm:"foreignKey:CartID"`
	UpdatedAt time.Time
}

func (cartRow) TableName() string { return "carts" }

type cartItemRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	CartID    string `gorm:"type:varchar(64);not null;index"`
	ProductID string `gorm:"type:varchar(64);not null"`
	Quantity  int    `gorm:"not null"`
}

func (cartItemRow) TableName() string { return "cart_items" }

type userRow struct {
	ID        string `gorm:"type:char(36);primaryKey"`
	Email     string `gorm:"type:varchar(255);not null;uniqueIndex"`
	Name      string `gorm:"type:varchar(255)"`
	Phone     string `gorm:"type:varchar(32)"`
	Guest     bool   `gorm:"not null"`
	CreatedAt time.Time
}

func (userRow) TableName() string { return "users" }

// orderRow keeps the idempotency pair nullable so orders without a key do
// not collide on the unique index.
type orderRow struct {
	ID               string         `gorm:"type:char(36);primaryKey"`
	OrderNumber      string         `gorm:"type:varchar(32);not null;uniqueIndex"`
	UserID           *string        `gorm:"type:varchar(64);index"`
	CustomerEmail    string         `gorm:"type:varchar(255)"`
	CustomerName     string         `gorm:"type:varchar(255)"`
	CustomerPhone    string         `gorm:"type:varchar(32)"`
	Status           string         `gorm:"type:varchar(16);not null;index"`
	SubtotalCents    int64          `gorm:"not null"`
	DiscountCents    int64          `gorm:"not null"`
	ShippingCents    int64          `gorm:"not null"`
	TotalCents       int64          `gorm:"not null"`
	Currency         string         `gorm:"type:char(3);not null"`
	PromotionCode    *string        `gorm:"type:varchar(64)"`
	PaymentMethod    string         `gorm:"type:varchar(16)"`
	ShippingAddress  datatypes.JSON `gorm:"type:json"`
	CartID           string         `gorm:"type:varchar(64);index"`
	IdempotencyScope *string        `gorm:"type:varchar(128);uniqueIndex:ux_orders_idempotency,priority:1"`
	IdempotencyKey   *string        `gorm:"type:varchar(128);uniqueIndex:ux_orders_idempotency,priority:2"`
	Items            []orderItemRow `gorm:"foreignKey:OrderID"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (orderRow) TableName() string { return "orders" }

type orderItemRow struct {
	ID             string `gorm:"type:char(36);primaryKey"`
	OrderID        string `gorm:"type:char(36);not null;index"`
	Position       int    `gorm:"not null"`
	ProductID      string `gorm:"type:varchar(64);not null"`
	Name           string `gorm:"type:varchar(255)"`
	Quantity       int    `gorm:"not null"`
	UnitPriceCents int64  `gorm:"not null"`
}

func (orderItemRow) TableName() string { return "order_items" }

type intentRow struct {
	ID             string `gorm:"type:char(36);primaryKey"`
	OrderID        string `gorm:"type:char(36);not null;index;uniqueIndex:ux_intents_key,priority:1"`
	Provider       string `gorm:"type:varchar(16);not null;uniqueIndex:ux_intents_key,priority:2;uniqueIndex:ux_intents_correlation,priority:1"`
	IdempotencyKey string `gorm:"type:varchar(128);not null;uniqueIndex:ux_intents_key,priority:3"`
	CorrelationID  string `gorm:"type:varchar(32);not null;uniqueIndex:ux_intents_correlation,priority:2"`
	Status         string `gorm:"type:varchar(16);not null"`
	AmountCents    int64  `gorm:"not null"`
	Currency       string `gorm:"type:char(3);not null"`
	CheckoutURL    string `gorm:"type:varchar(1024)"`
	ProviderRef    string `gorm:"type:varchar(128)"`
	FailureReason  string `gorm:"type:varchar(255)"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (intentRow) TableName() string { return "payment_intents" }

type paymentRow struct {
	ID            string `gorm:"type:char(36);primaryKey"`
	IntentID      string `gorm:"type:char(36);not null;uniqueIndex"`
	OrderID       string `gorm:"type:char(36);not null;index"`
	Provider      string `gorm:"type:varchar(16);not null"`
	AmountCents   int64  `gorm:"not null"`
	Currency      string `gorm:"type:char(3);not null"`
	TransactionID string `gorm:"type:varchar(128)"`
	CreatedAt     time.Time
}

func (paymentRow) TableName() string { return "payments" }

type refundRow struct {
	ID          string `gorm:"type:char(36);primaryKey"`
	PaymentID   string `gorm:"type:char(36);not null;index"`
	OrderID     string `gorm:"type:char(36);not null"`
	Provider    string `gorm:"type:varchar(16);not null"`
	AmountCents int64  `gorm:"not null"`
	Currency    string `gorm:"type:char(3);not null"`
	Status      string `gorm:"type:varchar(16);not null"`
	ProviderRef string `gorm:"type:varchar(128)"`
	Reason      string `gorm:"type:varchar(255)"`
	CreatedAt   time.Time
}

func (refundRow) TableName() string { return "refunds" }

type promotionUsageRow struct {
	ID            string `gorm:"type:char(36);primaryKey"`
	Code          string `gorm:"type:varchar(64);not null;index"`
	UserID        string `gorm:"type:varchar(64);index"`
	OrderID       string `gorm:"type:char(36);not null"`
	DiscountCents int64  `gorm:"not null"`
	CreatedAt     time.Time
}

func (promotionUsageRow) TableName() string { return "promotion_usages" }

// promotionCounterRow counts uses of a limited code. UserID is empty on the
// code-wide row.
type promotionCounterRow struct {
	Code   string `gorm:"type:varchar(64);primaryKey"`
	UserID string `gorm:"type:varchar(64);primaryKey"`
	Uses   int    `gorm:"not null"`
}

func (promotionCounterRow) TableName() string { return "promotion_counters" }

// Migrate creates or updates every table the pipeline uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&productRow{},
		&inventoryRow{},
		&movementRow{},
		&cartRow{},
		&cartItemRow{},
		&userRow{},
		&orderRow{},
		&orderItemRow{},
		&intentRow{},
		&paymentRow{},
		&refundRow{},
		&promotionUsageRow{},
		&promotionCounterRow{},
	)
}
