// Package inventory implements the Inventory Ledger: the only path through
// which stock rows change.
package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Deductor performs the atomic check-and-decrement inside the caller's
// transaction. Implementations must return ErrInsufficientStock (possibly
// deferred to commit) instead of letting available-to-sell go negative.
type Deductor interface {
	DeductStock(ctx context.Context, productID string, qty int, ref Reference) error
}

// Adjuster applies a single stock change in its own atomic write.
type Adjuster interface {
	AdjustStock(ctx context.Context, adj Adjustment) (*Movement, error)
}

// Ledger groups the stock operations used by checkout and order lifecycle.
type Ledger struct {
	Logger *slog.Logger
}

func NewLedger(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{Logger: logger}
}

// MergeLines sums quantities per product and sorts by product id so
// concurrent checkouts touch rows in the same order.
func MergeLines(lines []Line) []Line {
	want := make(map[string]int, len(lines))
	for _, ln := range lines {
		want[ln.ProductID] += ln.Quantity
	}
	out := make([]Line, 0, len(want))
	for id, q := range want {
		out = append(out, Line{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// ReserveAndDeduct deducts every line inside the caller's transaction. The
// first failure is returned and the caller must abort the transaction.
func (l *Ledger) ReserveAndDeduct(ctx context.Context, d Deductor, lines []Line, ref Reference) error {
	for _, ln := range MergeLines(lines) {
		if ln.Quantity < 1 {
			return ErrInvalidQuantity
		}
		if err := d.DeductStock(ctx, ln.ProductID, ln.Quantity, ref); err != nil {
			return fmt.Errorf("deduct %s: %w", ln.ProductID, err)
		}
	}
	return nil
}

// Restore puts stock back for every line. Best-effort: failures are logged
// and the remaining lines are still attempted. Returns the number of lines
// that could not be restored.
func (l *Ledger) Restore(ctx context.Context, a Adjuster, lines []Line, ref Reference) int {
	failed := 0
	for _, ln := range MergeLines(lines) {
		if ln.Quantity < 1 {
			continue
		}
		_, err := a.AdjustStock(ctx, Adjustment{
			ProductID: ln.ProductID,
			Delta:     ln.Quantity,
			Type:      MovementRestore,
			Ref:       ref,
		})
		if err != nil {
			failed++
			l.Logger.ErrorContext(ctx, "stock restore failed",
				"product_id", ln.ProductID,
				"quantity", ln.Quantity,
				"reference_type", ref.Type,
				"reference_id", ref.ID,
				"err", err,
			)
		}
	}
	return failed
}

// Correct applies an operator correction (positive or negative).
func (l *Ledger) Correct(ctx context.Context, a Adjuster, productID string, delta int, reason string) (*Movement, error) {
	if delta == 0 {
		return nil, fmt.Errorf("delta must be non-zero")
	}
	mv, err := a.AdjustStock(ctx, Adjustment{
		ProductID: productID,
		Delta:     delta,
		Type:      MovementAdjust,
		Ref:       Reference{Type: RefManual, ID: productID, Reason: reason},
	})
	if err != nil {
		return nil, err
	}
	l.Logger.InfoContext(ctx, "stock corrected",
		"product_id", productID,
		"delta", delta,
		"stock_after", mv.StockAfter,
	)
	return mv, nil
}
