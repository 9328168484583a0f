package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-checkout-reconciler/internal/apperr"
	"github.com/imrishuroy/go-checkout-reconciler/internal/aws"
)

// counterMock implements only UpdateItem; the embedded interface panics on
// anything else.
type counterMock struct {
	aws.DynamoDBAPI
	hits map[string]int
	exp  map[string]string
	err  error
}

func (m *counterMock) UpdateItem(_ context.Context, in *dyn.UpdateItemInput, _ ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	key := in.Key["window_key"].(*types.AttributeValueMemberS).Value
	m.hits[key]++
	m.exp[key] = in.ExpressionAttributeValues[":exp"].(*types.AttributeValueMemberN).Value
	return &dyn.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
		"hits": &types.AttributeValueMemberN{Value: strconv.Itoa(m.hits[key])},
	}}, nil
}

func TestDynamoLimiterWindows(t *testing.T) {
	m := &counterMock{hits: map[string]int{}, exp: map[string]string{}}
	l := NewDynamoLimiter(m, "rate_limits", 2)
	now := time.Date(2026, 10, 18, 10, 0, 5, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		ok, err := l.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, want, ok, "hit %d", i+1)
	}
	ok, err := l.Allow(ctx, "ip:5.6.7.8")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, err = l.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)

	key := "ip:1.2.3.4#" + strconv.FormatInt(now.Truncate(time.Minute).Unix(), 10)
	assert.Equal(t, strconv.FormatInt(now.Truncate(time.Minute).Add(2*time.Minute).Unix(), 10), m.exp[key])
}

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter(1)
	now := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "a")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "a")
	assert.False(t, ok)

	now = now.Add(61 * time.Second)
	ok, _ = l.Allow(ctx, "a")
	assert.True(t, ok)
}

type countMetrics struct{ names []string }

func (c *countMetrics) Incr(_ context.Context, name string, _ ...string) { c.names = append(c.names, name) }

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := &counterMock{hits: map[string]int{}, exp: map[string]string{}}
	metrics := &countMetrics{}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		if err := c.Errors.Last(); err != nil {
			c.Status(apperr.HTTPStatus(err.Err))
		}
	})
	r.POST("/checkout", Middleware(NewDynamoLimiter(m, "rate_limits", 1), metrics, nil), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	do := func() int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/checkout", nil))
		return w.Code
	}
	assert.Equal(t, http.StatusCreated, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
	assert.Equal(t, []string{aws.MetricRateLimited}, metrics.names)

	// the limiter failing lets traffic through
	m.err = errors.New("throttled")
	assert.Equal(t, http.StatusCreated, do())
}
