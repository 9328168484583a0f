// Package ratelimit throttles the write endpoints per client with a
// fixed one-minute window.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-checkout-reconciler/internal/apperr"
	"github.com/imrishuroy/go-checkout-reconciler/internal/auth"
	"github.com/imrishuroy/go-checkout-reconciler/internal/aws"
)

const window = time.Minute

var ErrRateLimited = apperr.New(apperr.TooManyRequests, "RATE_LIMITED", "too many requests, slow down")

// Limiter decides whether clientID may make another request now.
type Limiter interface {
	Allow(ctx context.Context, clientID string) (bool, error)
}

// DynamoLimiter counts hits in one item per client and window. Items carry
// expires_at so table TTL removes old windows.
type DynamoLimiter struct {
	client  aws.DynamoDBAPI
	table   string
	limit   int
	nowFunc func() time.Time
}

func NewDynamoLimiter(client aws.DynamoDBAPI, table string, perMinute int) *DynamoLimiter {
	return &DynamoLimiter{client: client, table: table, limit: perMinute, nowFunc: time.Now}
}

type counter struct {
	Hits int `dynamodbav:"hits"`
}

func (l *DynamoLimiter) Allow(ctx context.Context, clientID string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	start := l.nowFunc().Truncate(window)
	key := clientID + "#" + strconv.FormatInt(start.Unix(), 10)
	out, err := l.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &l.table,
		Key:              map[string]types.AttributeValue{"window_key": &types.AttributeValueMemberS{Value: key}},
		UpdateExpression: strPtr("ADD hits :one SET expires_at = :exp"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":exp": &types.AttributeValueMemberN{Value: strconv.FormatInt(start.Add(2*window).Unix(), 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return false, fmt.Errorf("rate limit update: %w", err)
	}
	var c counter
	if err := attributevalue.UnmarshalMap(out.Attributes, &c); err != nil {
		return false, fmt.Errorf("rate limit unmarshal: %w", err)
	}
	return c.Hits <= l.limit, nil
}

func strPtr(s string) *string { return &s }

// MemoryLimiter is the single-process limiter used when no table is
// configured (local runs, the SQL backend).
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	start   time.Time
	hits    map[string]int
	nowFunc func() time.Time
}

func NewMemoryLimiter(perMinute int) *MemoryLimiter {
	return &MemoryLimiter{limit: perMinute, hits: map[string]int{}, nowFunc: time.Now}
}

func (l *MemoryLimiter) Allow(_ context.Context, clientID string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if start := l.nowFunc().Truncate(window); !start.Equal(l.start) {
		l.start = start
		clear(l.hits)
	}
	l.hits[clientID]++
	return l.hits[clientID] <= l.limit, nil
}

// Counter is satisfied by *aws.Metrics.
type Counter interface {
	Incr(ctx context.Context, name string, dims ...string)
}

// Middleware rejects clients over the limit with RATE_LIMITED. The client is
// the signed-in user, else the remote IP. Limiter failures let the request
// through.
func Middleware(l Limiter, metrics Counter, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		client := "ip:" + c.ClientIP()
		if id := auth.UserID(c); id != "" {
			client = "user:" + id
		}
		ok, err := l.Allow(ctx, client)
		if err != nil {
			logger.ErrorContext(ctx, "rate limiter unavailable", "client", client, "err", err)
			c.Next()
			return
		}
		if !ok {
			logger.WarnContext(ctx, "rate limited", "client", client, "path", c.FullPath())
			if metrics != nil {
				metrics.Incr(ctx, aws.MetricRateLimited, "Route", c.FullPath())
			}
			_ = c.Error(ErrRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}
