package dynamo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-checkout-reconciler/internal/apperr"
	"github.com/imrishuroy/go-checkout-reconciler/internal/catalog"
	"github.com/imrishuroy/go-checkout-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-checkout-reconciler/internal/inventory"
	"github.com/imrishuroy/go-checkout-reconciler/internal/orders"
	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
	"github.com/imrishuroy/go-checkout-reconciler/internal/promotions"
	"github.com/imrishuroy/go-checkout-reconciler/internal/store"
)

// stockWrite sets the new stock level computed from rec. The condition pins
// the values that were read, so a concurrent change cancels the transaction
// and the caller retries on fresh numbers.
func (c conn) stockWrite(rec *inventory.Record, delta int, now time.Time) types.TransactWriteItem {
	stock := rec.Stock + int64(delta)
	cond := "stock = :seen AND reserved = :reserved"
	values := map[string]types.AttributeValue{
		":stock":     numAttr(stock),
		":available": numAttr(stock - rec.Reserved),
		":now":       timeAttr(now),
		":seen":      numAttr(rec.Stock),
		":reserved":  numAttr(rec.Reserved),
	}
	if delta < 0 {
		cond += " AND available >= :need"
		values[":need"] = numAttr(int64(-delta))
	}
	return types.TransactWriteItem{Update: &types.Update{
		TableName:                 sdkaws.String(c.tables.Inventory),
		Key:                       keyOf("product_id", rec.ProductID),
		UpdateExpression:          sdkaws.String("SET stock = :stock, available = :available, updated_at = :now"),
		ConditionExpression:       sdkaws.String(cond),
		ExpressionAttributeValues: values,
	}}
}

func (c conn) movement(rec *inventory.Record, delta int, typ inventory.MovementType, ref inventory.Reference, now time.Time) *inventory.Movement {
	qty := delta
	if qty < 0 {
		qty = -qty
	}
	return &inventory.Movement{
		MovementID:    c.newID(),
		ProductID:     rec.ProductID,
		Type:          typ,
		Quantity:      qty,
		StockBefore:   rec.Stock,
		StockAfter:    rec.Stock + int64(delta),
		ReferenceType: ref.Type,
		ReferenceID:   ref.ID,
		Reason:        ref.Reason,
		CreatedAt:     now,
	}
}

func insufficient(productID string) error {
	return apperr.Wrapf(inventory.ErrInsufficientStock, "insufficient stock for product %s", productID)
}

func (t *txn) DeductStock(ctx context.Context, productID string, qty int, ref inventory.Reference) error {
	if qty < 1 {
		return inventory.ErrInvalidQuantity
	}
	rec, err := t.GetInventory(ctx, productID)
	if err != nil {
		return err
	}
	if rec == nil || rec.AvailableToSell() < int64(qty) {
		return insufficient(productID)
	}
	now := t.nowFunc().UTC()
	t.add(t.stockWrite(rec, -qty, now), store.ErrConflict)
	item, err := put(t.tables.Movements, t.movement(rec, -qty, inventory.MovementDeduct, ref, now), "attribute_not_exists(movement_id)")
	if err != nil {
		return err
	}
	t.add(item, nil)
	return nil
}

func (t *txn) CreateUser(ctx context.Context, u *catalog.User) error {
	item, err := put(t.tables.Users, u, "attribute_not_exists(user_id)")
	if err != nil {
		return err
	}
	t.add(item, store.ErrConflict)
	claim, err := put(t.tables.Users, emailClaim{UserID: emailKey(u.Email), OwnerID: u.UserID}, "attribute_not_exists(user_id)")
	if err != nil {
		return err
	}
	// a concurrent checkout claimed the address; the retry finds that user
	t.add(claim, store.ErrConflict)
	return nil
}

func (t *txn) CreateOrder(ctx context.Context, o *orders.Order) error {
	item, err := put(t.tables.Orders, o, "attribute_not_exists(order_id)")
	if err != nil {
		return err
	}
	t.add(item, nil)
	if o.IdempotencyScope == "" || o.IdempotencyKey == "" {
		return nil
	}
	rec := t.keys.NewRecord(idempotency.Key(idempotency.KindOrder, o.IdempotencyScope, o.IdempotencyKey),
		idempotency.KindOrder, o.OrderID, true)
	claim, err := t.keys.TransactPut(rec)
	if err != nil {
		return err
	}
	t.add(claim, orders.ErrDuplicateOrder)
	return nil
}

func (c conn) orderStatusUpdate(orderID string, from, to orders.Status) *types.Update {
	return &types.Update{
		TableName:                sdkaws.String(c.tables.Orders),
		Key:                      keyOf("order_id", orderID),
		UpdateExpression:         sdkaws.String("SET #s = :to, updated_at = :now"),
		ConditionExpression:      sdkaws.String("#s = :from"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":to":   strAttr(string(to)),
			":from": strAttr(string(from)),
			":now":  timeAttr(c.nowFunc().UTC()),
		},
	}
}

func (t *txn) UpdateOrderStatus(ctx context.Context, orderID string, from, to orders.Status) error {
	t.add(types.TransactWriteItem{Update: t.orderStatusUpdate(orderID, from, to)}, orders.ErrStatusMismatch)
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
	item, err := put(t.tables.PromotionUsage, u, "attribute_not_exists(usage_id)")
	if err != nil {
		return err
	}
	t.add(item, nil)
	return nil
}

// counterKey names the counter item kept next to the usage records. It has
// no code attribute, so it stays out of the code index.
func counterKey(code, userID string) string {
	if userID == "" {
		return "counter#" + code
	}
	return "counter#" + code + "#" + userID
}

// claimPromotionUse adds a conditional increment of the code's counter to
// the transaction. A counter that does not exist yet is created from the
// usages already recorded; a concurrent creator cancels the transaction.
func (t *txn) claimPromotionUse(ctx context.Context, code, userID string, limit int) error {
	key := counterKey(code, userID)
	var counter struct {
		Uses int64 `dynamodbav:"uses"`
	}
	found, err := t.get(ctx, t.tables.PromotionUsage, keyOf("usage_id", key), &counter)
	if err != nil {
		return err
	}
	if found {
		t.add(types.TransactWriteItem{Update: &types.Update{
			TableName:           sdkaws.String(t.tables.PromotionUsage),
			Key:                 keyOf("usage_id", key),
			UpdateExpression:    sdkaws.String("ADD uses :one"),
			ConditionExpression: sdkaws.String("uses < :limit"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":one":   numAttr(1),
				":limit": numAttr(int64(limit)),
			},
		}}, promotions.ErrUsageLimitReached)
		return nil
	}

	seen, err := t.countUsage(ctx, code, userID)
	if err != nil {
		return err
	}
	if seen >= limit {
		return promotions.ErrUsageLimitReached
	}
	t.add(types.TransactWriteItem{Put: &types.Put{
		TableName: sdkaws.String(t.tables.PromotionUsage),
		Item: map[string]types.AttributeValue{
			"usage_id": strAttr(key),
			"uses":     numAttr(int64(seen + 1)),
		},
		ConditionExpression: sdkaws.String("attribute_not_exists(usage_id)"),
	}}, store.ErrConflict)
	return nil
}

func (t *txn) CompleteCart(ctx context.Context, cartID string) error {
	t.add(types.TransactWriteItem{Update: &types.Update{
		TableName:                sdkaws.String(t.tables.Carts),
		Key:                      keyOf("cart_id", cartID),
		UpdateExpression:         sdkaws.String("SET #s = :done, updated_at = :now"),
		ConditionExpression:      sdkaws.String("#s = :active"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done":   strAttr(catalog.CartCompleted),
			":active": strAttr(catalog.CartActive),
			":now":    timeAttr(t.nowFunc().UTC()),
		},
	}}, catalog.ErrCartCompleted)
	return nil
}

func (t *txn) CreateIntent(ctx context.Context, in *payments.Intent) error {
	item, err := put(t.tables.Intents, intentItem{
		Intent:              *in,
		ProviderCorrelation: correlationKey(in.Provider, in.CorrelationID),
	}, "attribute_not_exists(intent_id)")
	if err != nil {
		return err
	}
	t.add(item, nil)
	rec := t.keys.NewRecord(idempotency.Key(idempotency.KindIntent, in.OrderID, string(in.Provider), in.IdempotencyKey),
		idempotency.KindIntent, in.IntentID, false)
	claim, err := t.keys.TransactPut(rec)
	if err != nil {
		return err
	}
	t.add(claim, payments.ErrDuplicateIntent)
	return nil
}

func (t *txn) OpenIntentSession(ctx context.Context, intentID, checkoutURL, providerRef string) error {
	t.add(types.TransactWriteItem{Update: &types.Update{
		TableName:                sdkaws.String(t.tables.Intents),
		Key:                      keyOf("intent_id", intentID),
		UpdateExpression:         sdkaws.String("SET #s = :processing, checkout_url = :url, provider_ref = :ref, updated_at = :now"),
		ConditionExpression:      sdkaws.String("#s = :pending"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":processing": strAttr(string(payments.IntentProcessing)),
			":pending":    strAttr(string(payments.IntentPending)),
			":url":        strAttr(checkoutURL),
			":ref":        strAttr(providerRef),
			":now":        timeAttr(t.nowFunc().UTC()),
		},
	}}, payments.ErrIntentNotPending)
	return nil
}

func (t *txn) TerminalizeIntent(ctx context.Context, intentID string, to payments.IntentStatus, reason string) error {
	t.add(types.TransactWriteItem{Update: &types.Update{
		TableName:                sdkaws.String(t.tables.Intents),
		Key:                      keyOf("intent_id", intentID),
		UpdateExpression:         sdkaws.String("SET #s = :to, failure_reason = :reason, updated_at = :now"),
		ConditionExpression:      sdkaws.String("#s IN (:pending, :processing)"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":to":         strAttr(string(to)),
			":reason":     strAttr(reason),
			":pending":    strAttr(string(payments.IntentPending)),
			":processing": strAttr(string(payments.IntentProcessing)),
			":now":        timeAttr(t.nowFunc().UTC()),
		},
	}}, payments.ErrIntentTerminal)
	return nil
}

func (t *txn) CreatePayment(ctx context.Context, p *payments.Payment) error {
	item, err := put(t.tables.Payments, p, "attribute_not_exists(payment_id)")
	if err != nil {
		return err
	}
	t.add(item, nil)
	rec := t.keys.NewRecord(idempotency.Key(idempotency.KindPayment, p.IntentID), idempotency.KindPayment, p.PaymentID, false)
	claim, err := t.keys.TransactPut(rec)
	if err != nil {
		return err
	}
	t.add(claim, payments.ErrDuplicatePayment)
	return nil
}

func (t *txn) CreateRefund(ctx context.Context, r *payments.Refund) error {
	item, err := put(t.tables.Refunds, r, "attribute_not_exists(refund_id)")
	if err != nil {
		return err
	}
	t.add(item, nil)
	return nil
}

// --- store-level operations ---

// AdjustStock applies one signed change with its movement as a two-item
// transaction, retrying when a concurrent writer moved the stock first.
func (s *Store) AdjustStock(ctx context.Context, adj inventory.Adjustment) (*inventory.Movement, error) {
	if adj.Delta == 0 {
		return nil, inventory.ErrInvalidQuantity
	}
	var mv *inventory.Movement
	err := store.Retry(ctx, txAttempts, isRetryable, func() error {
		rec, err := s.GetInventory(ctx, adj.ProductID)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("adjust stock: no inventory record for %s", adj.ProductID)
		}
		if adj.Delta < 0 && rec.AvailableToSell() < int64(-adj.Delta) {
			return insufficient(adj.ProductID)
		}
		now := s.nowFunc().UTC()
		t := &txn{conn: s.conn}
		t.add(t.stockWrite(rec, adj.Delta, now), store.ErrConflict)
		m := t.movement(rec, adj.Delta, adj.Type, adj.Ref, now)
		item, err := put(s.tables.Movements, m, "attribute_not_exists(movement_id)")
		if err != nil {
			return err
		}
		t.add(item, nil)
		if err := t.commit(ctx); err != nil {
			return err
		}
		mv = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mv, nil
}

// UpdateOrderStatus uses a conditional UpdateItem so a concurrent status
// change is detected.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, from, to orders.Status) error {
	u := s.orderStatusUpdate(orderID, from, to)
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 u.TableName,
		Key:                       u.Key,
		UpdateExpression:          u.UpdateExpression,
		ConditionExpression:       u.ConditionExpression,
		ExpressionAttributeNames:  u.ExpressionAttributeNames,
		ExpressionAttributeValues: u.ExpressionAttributeValues,
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return orders.ErrStatusMismatch
		}
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// DeleteOrder refuses while any payment intent references the order, then
// deletes the order and releases its idempotency key.
func (s *Store) DeleteOrder(ctx context.Context, orderID string) error {
	var refs []intentItem
	if err := s.queryIndex(ctx, s.tables.Intents, indexIntentOrder, "order_id", orderID, &refs); err != nil {
		return err
	}
	if len(refs) > 0 {
		return orders.ErrOrderReferenced
	}
	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o == nil {
		return orders.ErrOrderNotFound
	}
	_, err = s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           sdkaws.String(s.tables.Orders),
		Key:                 keyOf("order_id", orderID),
		ConditionExpression: sdkaws.String("attribute_exists(order_id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return orders.ErrOrderNotFound
		}
		return fmt.Errorf("delete order: %w", err)
	}
	if o.IdempotencyScope != "" && o.IdempotencyKey != "" {
		// a key left behind blocks reuse of that key until its TTL passes
		key := idempotency.Key(idempotency.KindOrder, o.IdempotencyScope, o.IdempotencyKey)
		if err := s.keys.Delete(ctx, key); err != nil {
			s.Logger.LogAttrs(ctx, slog.LevelWarn, "order_idempotency_key_not_released",
				slog.String("order_id", orderID),
				slog.String("idempotency_key", key),
				slog.Any("err", err),
			)
		}
	}
	return nil
}
