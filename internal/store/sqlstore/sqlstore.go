// Package sqlstore implements store.Store on GORM. MySQL is the production
// dialect; tests run the same code on SQLite.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/imrishuroy/go-checkout-reconciler/internal/apperr"
	"github.com/imrishuroy/go-checkout-reconciler/internal/catalog"
	"github.com/imrishuroy/go-checkout-reconciler/internal/inventory"
	"github.com/imrishuroy/go-checkout-reconciler/internal/orders"
	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
	"github.com/imrishuroy/go-checkout-reconciler/internal/promotions"
	"github.com/imrishuroy/go-checkout-reconciler/internal/store"
)

const txAttempts = 3

// Open connects with duplicate-key translation enabled. driver is "mysql"
// or "sqlite"; SQLite is meant for local runs and tests.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = gormmysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown sql driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         newLogger(os.Stderr),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite allows one writer; a single connection serializes transactions.
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// newLogger reports slow queries and failures. Lookups that find nothing are
// a normal outcome here and stay quiet.
func newLogger(w io.Writer) logger.Interface {
	return logger.New(log.New(w, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// Store is the GORM-backed store.Store.
type Store struct {
	conn
}

var _ store.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{conn: conn{db: db, now: time.Now, newID: uuid.NewString}}
}

// DB exposes the underlying handle for migrations.
func (s *Store) DB() *gorm.DB { return s.db }

// conn runs queries on either the root handle or a transaction. Inside a
// transaction, order and intent reads take row locks.
type conn struct {
	db      *gorm.DB
	locking bool
	now     func() time.Time
	newID   func() string
}

type txn struct {
	conn
}

func (c conn) q(ctx context.Context) *gorm.DB { return c.db.WithContext(ctx) }

func (c conn) forUpdate(ctx context.Context) *gorm.DB {
	if c.locking {
		return c.q(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return c.q(ctx)
}

// first loads one row, mapping "not found" to ok=false.
func first[T any](q *gorm.DB, query string, args ...any) (*T, error) {
	var row T
	err := q.Where(query, args...).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isRetryable reports deadlocks, lock wait timeouts and busy SQLite files.
func isRetryable(err error) bool {
	if errors.Is(err, store.ErrConflict) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		// 1213: deadlock found; 1205: lock wait timeout
		return me.Number == 1213 || me.Number == 1205
	}
	return strings.Contains(err.Error(), "database is locked")
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return store.Retry(ctx, txAttempts, isRetryable, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(ctx, &txn{conn: conn{db: tx, locking: true, now: s.now, newID: s.newID}})
		})
	})
}

// --- reads ---

func (c conn) GetProduct(ctx context.Context, productID string) (*catalog.Product, error) {
	row, err := first[productRow](c.q(ctx), "id = ?", productID)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (c conn) GetInventory(ctx context.Context, productID string) (*inventory.Record, error) {
	row, err := first[inventoryRow](c.q(ctx), "product_id = ?", productID)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (c conn) GetCart(ctx context.Context, cartID string) (*catalog.Cart, error) {
	row, err := first[cartRow](c.q(ctx).Preload("Items", orderByID), "id = ?", cartID)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (c conn) GetActiveCart(ctx context.Context, userID string) (*catalog.Cart, error) {
	row, err := first[cartRow](c.q(ctx).Preload("Items", orderByID).Order("updated_at DESC"),
		"user_id = ? AND status = ?", userID, catalog.CartActive)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func orderByID(db *gorm.DB) *gorm.DB { return db.Order("id") }

func orderByPosition(db *gorm.DB) *gorm.DB { return db.Order("position") }

func (c conn) GetUser(ctx context.Context, userID string) (*catalog.User, error) {
	row, err := first[userRow](c.q(ctx), "id = ?", userID)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (c conn) FindUserByEmail(ctx context.Context, email string) (*catalog.User, error) {
	row, err := first[userRow](c.q(ctx), "email = ?", email)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (c conn) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	return c.findOrder(ctx, "id = ?", orderID)
}

func (c conn) GetOrderByNumber(ctx context.Context, orderNumber string) (*orders.Order, error) {
	return c.findOrder(ctx, "order_number = ?", orderNumber)
}

func (c conn) FindOrderByIdempotencyKey(ctx context.Context, scope, key string) (*orders.Order, error) {
	return c.findOrder(ctx, "idempotency_scope = ? AND idempotency_key = ?", scope, key)
}

func (c conn) findOrder(ctx context.Context, query string, args ...any) (*orders.Order, error) {
	row, err := first[orderRow](c.forUpdate(ctx).Preload("Items", orderByPosition), query, args...)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return row.toDomain(), nil
}

func (c conn) GetIntent(ctx context.Context, intentID string) (*payments.Intent, error) {
	return c.findIntent(ctx, "id = ?", intentID)
}

func (c conn) FindIntentByKey(ctx context.Context, orderID string, provider payments.Provider, key string) (*payments.Intent, error) {
	return c.findIntent(ctx, "order_id = ? AND provider = ? AND idempotency_key = ?", orderID, string(provider), key)
}

func (c conn) FindIntentByCorrelation(ctx context.Context, provider payments.Provider, correlationID string) (*payments.Intent, error) {
	return c.findIntent(ctx, "provider = ? AND correlation_id = ?", string(provider), correlationID)
}

func (c conn) findIntent(ctx context.Context, query string, args ...any) (*payments.Intent, error) {
	row, err := first[intentRow](c.forUpdate(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("get payment intent: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return row.toDomain(), nil
}

func (c conn) ListIntents(ctx context.Context, orderID string) ([]payments.Intent, error) {
	var rows []intentRow
	if err := c.forUpdate(ctx).Where("order_id = ?", orderID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list payment intents: %w", err)
	}
	out := make([]payments.Intent, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toDomain())
	}
	return out, nil
}

func (c conn) GetPayment(ctx context.Context, paymentID string) (*payments.Payment, error) {
	row, err := first[paymentRow](c.q(ctx), "id = ?", paymentID)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (c conn) GetPaymentByIntent(ctx context.Context, intentID string) (*payments.Payment, error) {
	row, err := first[paymentRow](c.q(ctx), "intent_id = ?", intentID)
	if err != nil || row == nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (c conn) ListRefunds(ctx context.Context, paymentID string) ([]payments.Refund, error) {
	var rows []refundRow
	if err := c.q(ctx).Where("payment_id = ?", paymentID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	out := make([]payments.Refund, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (c conn) CountPromotionUsage(ctx context.Context, code, userID string) (int, int, error) {
	var total, byUser int64
	if err := c.q(ctx).Model(&promotionUsageRow{}).Where("code = ?", code).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("count promotion usage: %w", err)
	}
	if userID != "" {
		if err := c.q(ctx).Model(&promotionUsageRow{}).Where("code = ? AND user_id = ?", code, userID).Count(&byUser).Error; err != nil {
			return 0, 0, fmt.Errorf("count promotion usage: %w", err)
		}
	}
	return int(total), int(byUser), nil
}

// --- writes ---

func (t *txn) DeductStock(ctx context.Context, productID string, qty int, ref inventory.Reference) error {
	if qty < 1 {
		return inventory.ErrInvalidQuantity
	}
	now := t.now().UTC()
	res := t.q(ctx).Model(&inventoryRow{}).
		Where("product_id = ? AND stock - reserved >= ?", productID, qty).
		UpdateColumns(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("deduct stock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Wrapf(inventory.ErrInsufficientStock, "insufficient stock for product %s", productID)
	}
	_, err := t.writeMovement(ctx, productID, -qty, inventory.MovementDeduct, ref, now)
	return err
}

// writeMovement reads the post-update stock inside the same transaction, so
// the snapshot is exact.
func (c conn) writeMovement(ctx context.Context, productID string, delta int, typ inventory.MovementType, ref inventory.Reference, now time.Time) (*movementRow, error) {
	row, err := first[inventoryRow](c.q(ctx), "product_id = ?", productID)
	if err != nil {
		return nil, fmt.Errorf("read stock: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("inventory record %s disappeared", productID)
	}
	qty := delta
	if qty < 0 {
		qty = -qty
	}
	mv := movementRow{
		ID:            c.newID(),
		ProductID:     productID,
		Type:          string(typ),
		Quantity:      qty,
		StockBefore:   row.Stock - int64(delta),
		StockAfter:    row.Stock,
		ReferenceType: ref.Type,
		ReferenceID:   ref.ID,
		Reason:        ref.Reason,
		CreatedAt:     now,
	}
	if err := c.q(ctx).Create(&mv).Error; err != nil {
		return nil, fmt.Errorf("insert movement: %w", err)
	}
	return &mv, nil
}

func (t *txn) CreateUser(ctx context.Context, u *catalog.User) error {
	row := userRow{
		ID:        u.UserID,
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		Guest:     u.Guest,
		CreatedAt: u.CreatedAt,
	}
	if err := t.q(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			// a concurrent checkout registered the same e-mail; retry resolves it
			return fmt.Errorf("create user: %w", store.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (t *txn) CreateOrder(ctx context.Context, o *orders.Order) error {
	if err := t.q(ctx).Create(orderFromDomain(o)).Error; err != nil {
		if isDuplicate(err) {
			return orders.ErrDuplicateOrder
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (c conn) UpdateOrderStatus(ctx context.Context, orderID string, from, to orders.Status) error {
	res := c.q(ctx).Model(&orderRow{}).
		Where("id = ? AND status = ?", orderID, string(from)).
		UpdateColumns(map[string]any{"status": string(to), "updated_at": c.now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("update order status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return orders.ErrStatusMismatch
	}
	return nil
}

func (t *txn) RecordPromotionUsage(ctx context.Context, u *promotions.Usage) error {
	if u.UsageLimit > 0 {
		if err := t.claimPromotionUse(ctx, u.Code, "", u.UsageLimit); err != nil {
			return err
		}
	}
	if u.PerUserLimit > 0 && u.UserID != "" {
		if err := t.claimPromotionUse(ctx, u.Code, u.UserID, u.PerUserLimit); err != nil {
			return err
		}
	}
	row := promotionUsageRow{
		ID:            u.UsageID,
		Code:          u.Code,
		UserID:        u.UserID,
		OrderID:       u.OrderID,
		DiscountCents: u.DiscountCents,
		CreatedAt:     u.CreatedAt,
	}
	if err := t.q(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record promotion usage: %w", err)
	}
	return nil
}

// claimPromotionUse increments the counter for code (and userID, when set)
// unless it has reached limit. The conditional update holds the row lock
// until commit, so concurrent checkouts cannot both take the last use. A
// missing counter starts from the usages already recorded.
func (t *txn) claimPromotionUse(ctx context.Context, code, userID string, limit int) error {
	q := t.q(ctx).Model(&promotionUsageRow{}).Where("code = ?", code)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var seen int64
	if err := q.Count(&seen).Error; err != nil {
		return fmt.Errorf("count promotion usage: %w", err)
	}
	counter := promotionCounterRow{Code: code, UserID: userID, Uses: int(seen)}
	if err := t.q(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&counter).Error; err != nil {
		return fmt.Errorf("init promotion counter: %w", err)
	}
	res := t.q(ctx).Model(&promotionCounterRow{}).
		Where("code = ? AND user_id = ? AND uses < ?", code, userID, limit).
		UpdateColumn("uses", gorm.Expr("uses + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("claim promotion use: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return promotions.ErrUsageLimitReached
	}
	return nil
}

func (t *txn) CompleteCart(ctx context.Context, cartID string) error {
	res := t.q(ctx).Model(&cartRow{}).
		Where("id = ? AND status = ?", cartID, catalog.CartActive).
		UpdateColumns(map[string]any{"status": catalog.CartCompleted, "updated_at": t.now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("complete cart: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return catalog.ErrCartCompleted
	}
	return nil
}

func (t *txn) CreateIntent(ctx context.Context, in *payments.Intent) error {
	if err := t.q(ctx).Create(intentFromDomain(in)).Error; err != nil {
		if isDuplicate(err) {
			return payments.ErrDuplicateIntent
		}
		return fmt.Errorf("create payment intent: %w", err)
	}
	return nil
}

func (t *txn) OpenIntentSession(ctx context.Context, intentID, checkoutURL, providerRef string) error {
	res := t.q(ctx).Model(&intentRow{}).
		Where("id = ? AND status = ?", intentID, string(payments.IntentPending)).
		UpdateColumns(map[string]any{
			"status":       string(payments.IntentProcessing),
			"checkout_url": checkoutURL,
			"provider_ref": providerRef,
			"updated_at":   t.now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("open intent session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return payments.ErrIntentNotPending
	}
	return nil
}

func (t *txn) TerminalizeIntent(ctx context.Context, intentID string, to payments.IntentStatus, reason string) error {
	res := t.q(ctx).Model(&intentRow{}).
		Where("id = ? AND status IN ?", intentID, []string{string(payments.IntentPending), string(payments.IntentProcessing)}).
		UpdateColumns(map[string]any{
			"status":         string(to),
			"failure_reason": reason,
			"updated_at":     t.now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("terminalize intent: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return payments.ErrIntentTerminal
	}
	return nil
}

func (t *txn) CreatePayment(ctx context.Context, p *payments.Payment) error {
	row := paymentRow{
		ID:            p.PaymentID,
		IntentID:      p.IntentID,
		OrderID:       p.OrderID,
		Provider:      string(p.Provider),
		AmountCents:   p.AmountCents,
		Currency:      p.Currency,
		TransactionID: p.TransactionID,
		CreatedAt:     p.CreatedAt,
	}
	if err := t.q(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return payments.ErrDuplicatePayment
		}
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (t *txn) CreateRefund(ctx context.Context, r *payments.Refund) error {
	row := refundRow{
		ID:          r.RefundID,
		PaymentID:   r.PaymentID,
		OrderID:     r.OrderID,
		Provider:    string(r.Provider),
		AmountCents: r.AmountCents,
		Currency:    r.Currency,
		Status:      string(r.Status),
		ProviderRef: r.ProviderRef,
		Reason:      r.Reason,
		CreatedAt:   r.CreatedAt,
	}
	if err := t.q(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	return nil
}

// --- store-level operations ---

// AdjustStock applies one signed change and its movement in a single
// transaction. Negative deltas are guarded like a deduction.
func (s *Store) AdjustStock(ctx context.Context, adj inventory.Adjustment) (*inventory.Movement, error) {
	if adj.Delta == 0 {
		return nil, inventory.ErrInvalidQuantity
	}
	var mv *inventory.Movement
	err := store.Retry(ctx, txAttempts, isRetryable, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			c := conn{db: tx, now: s.now, newID: s.newID}
			now := s.now().UTC()
			q := c.q(ctx).Model(&inventoryRow{}).Where("product_id = ?", adj.ProductID)
			if adj.Delta < 0 {
				q = q.Where("stock - reserved >= ?", -adj.Delta)
			}
			res := q.UpdateColumns(map[string]any{
				"stock":      gorm.Expr("stock + ?", adj.Delta),
				"updated_at": now,
			})
			if res.Error != nil {
				return fmt.Errorf("adjust stock: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				if adj.Delta < 0 {
					return apperr.Wrapf(inventory.ErrInsufficientStock, "insufficient stock for product %s", adj.ProductID)
				}
				return fmt.Errorf("adjust stock: no inventory record for %s", adj.ProductID)
			}
			row, err := c.writeMovement(ctx, adj.ProductID, adj.Delta, adj.Type, adj.Ref, now)
			if err != nil {
				return err
			}
			mv = row.toDomain()
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return mv, nil
}

// DeleteOrder refuses while any payment intent references the order.
// lockOrder selects the order row FOR UPDATE. Intent creation reads the
// order under the same lock, so no intent can appear between the reference
// check and the delete.
func lockOrder(tx *gorm.DB, orderID string) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", orderID)
}

func (s *Store) DeleteOrder(ctx context.Context, orderID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row orderRow
		if err := lockOrder(tx, orderID).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return orders.ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}
		var n int64
		if err := tx.Model(&intentRow{}).Where("order_id = ?", orderID).Count(&n).Error; err != nil {
			return fmt.Errorf("count intents: %w", err)
		}
		if n > 0 {
			return orders.ErrOrderReferenced
		}
		if err := tx.Where("order_id = ?", orderID).Delete(&orderItemRow{}).Error; err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}
		res := tx.Where("id = ?", orderID).Delete(&orderRow{})
		if res.Error != nil {
			return fmt.Errorf("delete order: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return orders.ErrOrderNotFound
		}
		return nil
	})
}
