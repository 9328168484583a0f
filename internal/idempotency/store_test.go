package idempotency

import (
	"context"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "order#u1#key-1", Key(KindOrder, "u1", "key-1"))
	assert.Equal(t, "payment#i1", Key(KindPayment, "i1"))
}

func TestNewRecordExpiry(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewStore(newSimpleMock(), "idempotency-table", 48*time.Hour)
	s.nowFunc = func() time.Time { return now }

	rec := s.NewRecord("order#u1#k", KindOrder, "o1", true)
	assert.Equal(t, now.Add(48*time.Hour).Unix(), rec.ExpiresAt)
	assert.Equal(t, "o1", rec.ResourceID)

	permanent := s.NewRecord("payment#i1", KindPayment, "p1", false)
	assert.Zero(t, permanent.ExpiresAt)
	assert.False(t, permanent.Expired(now.Add(365*24*time.Hour)))
}

func TestTransactPutThenGet(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", time.Hour)
	ctx := context.Background()

	put, err := s.TransactPut(s.NewRecord("order#u1#k", KindOrder, "o1", true))
	require.NoError(t, err)
	require.NotNil(t, put.Put)
	assert.Equal(t, "idempotency-table", *put.Put.TableName)
	assert.Contains(t, *put.Put.ConditionExpression, "attribute_not_exists(idempotency_key)")

	_, err = mock.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: []types.TransactWriteItem{put}})
	require.NoError(t, err)

	rec, err := s.Get(ctx, "order#u1#k")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, KindOrder, rec.Kind)
	assert.Equal(t, "o1", rec.ResourceID)

	_, err = mock.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: []types.TransactWriteItem{put}})
	var tce *types.TransactionCanceledException
	assert.ErrorAs(t, err, &tce)
}

func TestGetIgnoresExpiredAndMissing(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", time.Hour)
	ctx := context.Background()

	put, err := s.TransactPut(s.NewRecord("order#u1#k", KindOrder, "o1", true))
	require.NoError(t, err)
	_, err = mock.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: []types.TransactWriteItem{put}})
	require.NoError(t, err)

	s.nowFunc = func() time.Time { return time.Now().Add(2 * time.Hour) }
	rec, err := s.Get(ctx, "order#u1#k")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = s.Get(ctx, "order#nobody#k")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDelete(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", time.Hour)
	ctx := context.Background()

	put, err := s.TransactPut(s.NewRecord("order#u1#k", KindOrder, "o1", true))
	require.NoError(t, err)
	_, err = mock.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: []types.TransactWriteItem{put}})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "order#u1#k"))
	assert.Equal(t, 1, mock.deleteCalls)
	rec, err := s.Get(ctx, "order#u1#k")
	require.NoError(t, err)
	assert.Nil(t, rec)
}
