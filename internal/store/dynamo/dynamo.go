// Package dynamo implements store.Store on DynamoDB. A transaction collects
// its writes and commits them as one TransactWriteItems call; reads go to the
// tables immediately with strongly consistent GetItem where possible.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-checkout-reconciler/internal/aws"
	"github.com/imrishuroy/go-checkout-reconciler/internal/idempotency"
	"github.com/imrishuroy/go-checkout-reconciler/internal/store"
)

// MaxTransactItems is DynamoDB's cap on writes per transaction. A checkout
// spends two writes per cart line, which bounds the cart size.
const MaxTransactItems = 100

// MaxCheckoutLines keeps a checkout (two writes per line plus order, keys,
// intent, usage, user and cart) inside MaxTransactItems.
const MaxCheckoutLines = 40

const txAttempts = 5

// Global secondary indexes. Each is keyed on the attribute in its name.
const (
	indexOrderNumber       = "order_number-index"
	indexCartUser          = "user_id-index"
	indexIntentOrder       = "order_id-index"
	indexIntentCorrelation = "provider_correlation-index"
	indexPaymentIntent     = "intent_id-index"
	indexRefundPayment     = "payment_id-index"
	indexUsageCode         = "code-index"
)

// Tables names every table the store touches. Idempotency records live in
// the table owned by the idempotency.Store.
type Tables struct {
	Products       string
	Carts          string
	Users          string
	Inventory      string
	Movements      string
	Orders         string
	Intents        string
	Payments       string
	Refunds        string
	PromotionUsage string
}

// Store is the DynamoDB-backed store.Store.
type Store struct {
	conn
	Logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

func New(client aws.DynamoDBAPI, tables Tables, keys *idempotency.Store) *Store {
	return &Store{conn: conn{
		client:  client,
		tables:  tables,
		keys:    keys,
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}, Logger: slog.Default()}
}

type conn struct {
	client  aws.DynamoDBAPI
	tables  Tables
	keys    *idempotency.Store
	nowFunc func() time.Time
	newID   func() string
}

// txn buffers writes. failWith[i] is the error reported when the condition
// on items[i] is what cancelled the transaction.
type txn struct {
	conn
	items    []types.TransactWriteItem
	failWith []error
}

func (t *txn) add(item types.TransactWriteItem, onConditionFailed error) {
	t.items = append(t.items, item)
	t.failWith = append(t.failWith, onConditionFailed)
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return store.Retry(ctx, txAttempts, isRetryable, func() error {
		t := &txn{conn: s.conn}
		if err := fn(ctx, t); err != nil {
			return err
		}
		return t.commit(ctx)
	})
}

func (t *txn) commit(ctx context.Context) error {
	if len(t.items) == 0 {
		return nil
	}
	if len(t.items) > MaxTransactItems {
		return fmt.Errorf("transaction has %d writes, limit is %d", len(t.items), MaxTransactItems)
	}
	_, err := t.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: t.items,
	})
	if err == nil {
		return nil
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for i, reason := range tce.CancellationReasons {
			switch sdkaws.ToString(reason.Code) {
			case "ConditionalCheckFailed":
				if i < len(t.failWith) && t.failWith[i] != nil {
					return t.failWith[i]
				}
				return fmt.Errorf("transaction condition failed on write %d", i)
			case "TransactionConflict":
				return store.ErrConflict
			}
		}
	}
	if isAPIError(err, "TransactionConflictException", "TransactionInProgressException") {
		return store.ErrConflict
	}
	return fmt.Errorf("transact write items: %w", err)
}

func isRetryable(err error) bool {
	return errors.Is(err, store.ErrConflict)
}

func isAPIError(err error, codes ...string) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	for _, c := range codes {
		if ae.ErrorCode() == c {
			return true
		}
	}
	return false
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf) || isAPIError(err, "ConditionalCheckFailedException")
}

// --- helpers ---

func strAttr(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

func numAttr(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", v)}
}

func timeAttr(t time.Time) types.AttributeValue {
	av, _ := attributevalue.Marshal(t)
	return av
}

func keyOf(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{name: strAttr(value)}
}

// get loads one item by key into out; found is false when it does not exist.
func (c conn) get(ctx context.Context, table string, key map[string]types.AttributeValue, out any) (bool, error) {
	res, err := c.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      sdkaws.String(table),
		Key:            key,
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("get item from %s: %w", table, err)
	}
	if len(res.Item) == 0 {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal %s item: %w", table, err)
	}
	return true, nil
}

// queryIndex returns every item of index whose hash key attr equals value.
func (c conn) queryIndex(ctx context.Context, table, index, attr, value string, out any) error {
	var items []map[string]types.AttributeValue
	var start map[string]types.AttributeValue
	for {
		res, err := c.client.Query(ctx, &dyn.QueryInput{
			TableName:                 sdkaws.String(table),
			IndexName:                 sdkaws.String(index),
			KeyConditionExpression:    sdkaws.String("#pk = :pk"),
			ExpressionAttributeNames:  map[string]string{"#pk": attr},
			ExpressionAttributeValues: map[string]types.AttributeValue{":pk": strAttr(value)},
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return fmt.Errorf("query %s.%s: %w", table, index, err)
		}
		items = append(items, res.Items...)
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		start = res.LastEvaluatedKey
	}
	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("unmarshal %s items: %w", table, err)
	}
	return nil
}

// put builds a conditional Put of v into table.
func put(table string, v any, condition string) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal %s item: %w", table, err)
	}
	p := &types.Put{TableName: sdkaws.String(table), Item: item}
	if condition != "" {
		p.ConditionExpression = sdkaws.String(condition)
	}
	return types.TransactWriteItem{Put: p}, nil
}
