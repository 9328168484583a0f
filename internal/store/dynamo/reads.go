package dynamo

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-checkout-reconciler/internal/catalog"
	"github.com/imrishuroy/go-checkout-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-checkout-reconciler/internal/inventory"
	"github.com/imrishuroy/go-checkout-reconciler/internal/orders"
	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
)

// intentItem adds the correlation index key to a stored intent.
type intentItem struct {
	payments.Intent
	ProviderCorrelation string `dynamodbav:"provider_correlation"`
}

func correlationKey(p payments.Provider, correlationID string) string {
	return string(p) + "#" + correlationID
}

// emailClaim reserves an e-mail address in the users table. Its user_id is
// the claim key, never a real user.
type emailClaim struct {
	UserID  string `dynamodbav:"user_id"`
	OwnerID string `dynamodbav:"owner_id"`
}

func emailKey(email string) string { return "email#" + email }

func (c conn) GetProduct(ctx context.Context, productID string) (*catalog.Product, error) {
	var p catalog.Product
	ok, err := c.get(ctx, c.tables.Products, keyOf("product_id", productID), &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

func (c conn) GetInventory(ctx context.Context, productID string) (*inventory.Record, error) {
	var rec inventory.Record
	ok, err := c.get(ctx, c.tables.Inventory, keyOf("product_id", productID), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (c conn) GetCart(ctx context.Context, cartID string) (*catalog.Cart, error) {
	var cart catalog.Cart
	ok, err := c.get(ctx, c.tables.Carts, keyOf("cart_id", cartID), &cart)
	if err != nil || !ok {
		return nil, err
	}
	return &cart, nil
}

// GetActiveCart picks the most recently updated ACTIVE cart from the index
// and re-reads it from the table, since the index may lag.
func (c conn) GetActiveCart(ctx context.Context, userID string) (*catalog.Cart, error) {
	var carts []catalog.Cart
	if err := c.queryIndex(ctx, c.tables.Carts, indexCartUser, "user_id", userID, &carts); err != nil {
		return nil, err
	}
	var latest *catalog.Cart
	for i := range carts {
		if carts[i].Status != catalog.CartActive {
			continue
		}
		if latest == nil || carts[i].UpdatedAt.After(latest.UpdatedAt) {
			latest = &carts[i]
		}
	}
	if latest == nil {
		return nil, nil
	}
	cart, err := c.GetCart(ctx, latest.CartID)
	if err != nil || cart == nil || cart.Status != catalog.CartActive {
		return nil, err
	}
	return cart, nil
}

func (c conn) GetUser(ctx context.Context, userID string) (*catalog.User, error) {
	var u catalog.User
	ok, err := c.get(ctx, c.tables.Users, keyOf("user_id", userID), &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

func (c conn) FindUserByEmail(ctx context.Context, email string) (*catalog.User, error) {
	var claim emailClaim
	ok, err := c.get(ctx, c.tables.Users, keyOf("user_id", emailKey(email)), &claim)
	if err != nil || !ok {
		return nil, err
	}
	var u catalog.User
	ok, err = c.get(ctx, c.tables.Users, keyOf("user_id", claim.OwnerID), &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

func (c conn) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	var o orders.Order
	ok, err := c.get(ctx, c.tables.Orders, keyOf("order_id", orderID), &o)
	if err != nil || !ok {
		return nil, err
	}
	return &o, nil
}

func (c conn) GetOrderByNumber(ctx context.Context, orderNumber string) (*orders.Order, error) {
	var found []orders.Order
	if err := c.queryIndex(ctx, c.tables.Orders, indexOrderNumber, "order_number", orderNumber, &found); err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return c.GetOrder(ctx, found[0].OrderID)
}

func (c conn) FindOrderByIdempotencyKey(ctx context.Context, scope, key string) (*orders.Order, error) {
	rec, err := c.keys.Get(ctx, idempotency.Key(idempotency.KindOrder, scope, key))
	if err != nil || rec == nil {
		return nil, err
	}
	return c.GetOrder(ctx, rec.ResourceID)
}

func (c conn) GetIntent(ctx context.Context, intentID string) (*payments.Intent, error) {
	var it intentItem
	ok, err := c.get(ctx, c.tables.Intents, keyOf("intent_id", intentID), &it)
	if err != nil || !ok {
		return nil, err
	}
	return &it.Intent, nil
}

func (c conn) FindIntentByKey(ctx context.Context, orderID string, provider payments.Provider, key string) (*payments.Intent, error) {
	rec, err := c.keys.Get(ctx, idempotency.Key(idempotency.KindIntent, orderID, string(provider), key))
	if err != nil || rec == nil {
		return nil, err
	}
	return c.GetIntent(ctx, rec.ResourceID)
}

func (c conn) FindIntentByCorrelation(ctx context.Context, provider payments.Provider, correlationID string) (*payments.Intent, error) {
	var found []intentItem
	err := c.queryIndex(ctx, c.tables.Intents, indexIntentCorrelation, "provider_correlation",
		correlationKey(provider, correlationID), &found)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return c.GetIntent(ctx, found[0].IntentID)
}

// ListIntents re-reads each indexed intent so statuses are current.
func (c conn) ListIntents(ctx context.Context, orderID string) ([]payments.Intent, error) {
	var found []intentItem
	if err := c.queryIndex(ctx, c.tables.Intents, indexIntentOrder, "order_id", orderID, &found); err != nil {
		return nil, err
	}
	out := make([]payments.Intent, 0, len(found))
	for _, f := range found {
		in, err := c.GetIntent(ctx, f.IntentID)
		if err != nil {
			return nil, err
		}
		if in != nil {
			out = append(out, *in)
		}
	}
	return out, nil
}

func (c conn) GetPayment(ctx context.Context, paymentID string) (*payments.Payment, error) {
	var p payments.Payment
	ok, err := c.get(ctx, c.tables.Payments, keyOf("payment_id", paymentID), &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

func (c conn) GetPaymentByIntent(ctx context.Context, intentID string) (*payments.Payment, error) {
	var found []payments.Payment
	if err := c.queryIndex(ctx, c.tables.Payments, indexPaymentIntent, "intent_id", intentID, &found); err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (c conn) ListRefunds(ctx context.Context, paymentID string) ([]payments.Refund, error) {
	var found []payments.Refund
	if err := c.queryIndex(ctx, c.tables.Refunds, indexRefundPayment, "payment_id", paymentID, &found); err != nil {
		return nil, err
	}
	return found, nil
}

func (c conn) CountPromotionUsage(ctx context.Context, code, userID string) (int, int, error) {
	total, err := c.countUsage(ctx, code, "")
	if err != nil {
		return 0, 0, err
	}
	if userID == "" {
		return total, 0, nil
	}
	byUser, err := c.countUsage(ctx, code, userID)
	if err != nil {
		return 0, 0, err
	}
	return total, byUser, nil
}

func (c conn) countUsage(ctx context.Context, code, userID string) (int, error) {
	in := &dyn.QueryInput{
		TableName:                 sdkaws.String(c.tables.PromotionUsage),
		IndexName:                 sdkaws.String(indexUsageCode),
		KeyConditionExpression:    sdkaws.String("#pk = :pk"),
		ExpressionAttributeNames:  map[string]string{"#pk": "code"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": strAttr(code)},
		Select:                    types.SelectCount,
	}
	if userID != "" {
		in.FilterExpression = sdkaws.String("user_id = :u")
		in.ExpressionAttributeValues[":u"] = strAttr(userID)
	}
	count := 0
	for {
		res, err := c.client.Query(ctx, in)
		if err != nil {
			return 0, fmt.Errorf("count promotion usage: %w", err)
		}
		count += int(res.Count)
		if len(res.LastEvaluatedKey) == 0 {
			return count, nil
		}
		in.ExclusiveStartKey = res.LastEvaluatedKey
	}
}
