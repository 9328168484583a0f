package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStock struct {
	stock    map[string]int
	calls    []string
	failOn   string
	adjusted []Adjustment
}

func (f *fakeStock) DeductStock(_ context.Context, productID string, qty int, _ Reference) error {
	f.calls = append(f.calls, productID)
	if f.stock[productID] < qty {
		return ErrInsufficientStock
	}
	f.stock[productID] -= qty
	return nil
}

func (f *fakeStock) AdjustStock(_ context.Context, adj Adjustment) (*Movement, error) {
	if adj.ProductID == f.failOn {
		return nil, errors.New("throttled")
	}
	before := int64(f.stock[adj.ProductID])
	f.stock[adj.ProductID] += adj.Delta
	f.adjusted = append(f.adjusted, adj)
	return &Movement{ProductID: adj.ProductID, StockBefore: before, StockAfter: int64(f.stock[adj.ProductID])}, nil
}

func TestMergeLinesSumsAndSorts(t *testing.T) {
	got := MergeLines([]Line{{"p2", 1}, {"p1", 2}, {"p2", 3}})

	assert.Equal(t, []Line{{"p1", 2}, {"p2", 4}}, got)
}

func TestReserveAndDeduct(t *testing.T) {
	l := NewLedger(nil)
	f := &fakeStock{stock: map[string]int{"a": 5, "b": 1}}

	err := l.ReserveAndDeduct(context.Background(), f, []Line{{"b", 1}, {"a", 2}}, Reference{Type: RefOrder, ID: "o1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, f.calls)
	assert.Equal(t, 3, f.stock["a"])
	assert.Equal(t, 0, f.stock["b"])

	err = l.ReserveAndDeduct(context.Background(), f, []Line{{"b", 1}}, Reference{Type: RefOrder, ID: "o2"})
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestReserveAndDeductRejectsZeroQuantity(t *testing.T) {
	l := NewLedger(nil)
	f := &fakeStock{stock: map[string]int{"a": 5}}

	err := l.ReserveAndDeduct(context.Background(), f, []Line{{"a", 0}}, Reference{})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Empty(t, f.calls)
}

func TestRestoreIsBestEffort(t *testing.T) {
	l := NewLedger(nil)
	f := &fakeStock{stock: map[string]int{"a": 0, "b": 0}, failOn: "a"}

	failed := l.Restore(context.Background(), f, []Line{{"a", 1}, {"b", 2}}, Reference{Type: RefOrderCancelled, ID: "o1"})

	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, f.stock["b"])
	require.Len(t, f.adjusted, 1)
	assert.Equal(t, MovementRestore, f.adjusted[0].Type)
}

func TestCorrect(t *testing.T) {
	l := NewLedger(nil)
	f := &fakeStock{stock: map[string]int{"a": 3}}

	mv, err := l.Correct(context.Background(), f, "a", -2, "cycle count")
	require.NoError(t, err)
	assert.EqualValues(t, 1, mv.StockAfter)
	assert.Equal(t, MovementAdjust, f.adjusted[0].Type)

	_, err = l.Correct(context.Background(), f, "a", 0, "noop")
	assert.Error(t, err)
}
