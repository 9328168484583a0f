// Package checkout turns carts into orders and orders into payment intents.
// Every multi-row change runs in one store transaction; notifications go out
// only after commit.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/imrishuroy/go-checkout-reconciler/internal/apperr"
	"github.com/imrishuroy/go-checkout-reconciler/internal/catalog"
	"github.com/imrishuroy/go-checkout-reconciler/internal/ids"
	"github.com/imrishuroy/go-checkout-reconciler/internal/inventory"
	"github.com/imrishuroy/go-checkout-reconciler/internal/notify"
	"github.com/imrishuroy/go-checkout-reconciler/internal/orders"
	"github.com/imrishuroy/go-checkout-reconciler/internal/payments"
	"github.com/imrishuroy/go-checkout-reconciler/internal/promotions"
	"github.com/imrishuroy/go-checkout-reconciler/internal/store"
)

// Config holds the pricing knobs. Amounts are minor currency units.
type Config struct {
	FreeShippingThreshold int64
	FlatShippingFee       int64
	Currency              string
	// MaxLines caps distinct products per order; zero means no cap.
	MaxLines int
}

// OrderParams is what the client submits at checkout. Guests must send
// CartID and CustomerEmail; signed-in users check out their active cart.
type OrderParams struct {
	CartID          string
	PromotionCode   string
	ShippingAddress string
	CustomerEmail   string
	CustomerName    string
	CustomerPhone   string
	PaymentMethod   string
	IdempotencyKey  string
}

// OrderResult is the created order, or the earlier order when the
// idempotency key was seen before (Created is false then).
type OrderResult struct {
	Order   *orders.Order
	Created bool
}

// Orchestrator runs checkout.
type Orchestrator struct {
	Store      store.Store
	Promotions promotions.Evaluator
	Ledger     *inventory.Ledger
	IDs        *ids.Generator
	Notifier   notify.Notifier
	Config     Config
	Logger     *slog.Logger
	Now        func() time.Time
}

func NewOrchestrator(st store.Store, promos promotions.Evaluator, gen *ids.Generator, notifier notify.Notifier, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Currency == "" {
		cfg.Currency = "VND"
	}
	return &Orchestrator{
		Store:      st,
		Promotions: promos,
		Ledger:     inventory.NewLedger(logger),
		IDs:        gen,
		Notifier:   notifier,
		Config:     cfg,
		Logger:     logger,
		Now:        time.Now,
	}
}

// idempotencyScope keys order idempotency to the signed-in user, or to the
// guest cart.
func idempotencyScope(userID, cartID string) string {
	if userID != "" {
		return userID
	}
	return "cart:" + cartID
}

// CreateOrder validates the cart, deducts stock, prices the order and
// persists it in one transaction. A repeated idempotency key returns the
// order created the first time.
func (o *Orchestrator) CreateOrder(ctx context.Context, userID string, p OrderParams) (*OrderResult, error) {
	p.CustomerEmail = strings.ToLower(strings.TrimSpace(p.CustomerEmail))
	p.IdempotencyKey = strings.TrimSpace(p.IdempotencyKey)
	p.PromotionCode = strings.TrimSpace(p.PromotionCode)
	if userID == "" {
		if p.CartID == "" {
			return nil, ErrEmptyCart
		}
		if p.CustomerEmail == "" {
			return nil, ErrMissingCustomerEmail
		}
	}
	var method payments.Provider
	if p.PaymentMethod != "" {
		m, err := payments.ParseProvider(p.PaymentMethod)
		if err != nil {
			return nil, err
		}
		method = m
	}

	scope := idempotencyScope(userID, p.CartID)
	if p.IdempotencyKey != "" {
		if prior, err := o.Store.FindOrderByIdempotencyKey(ctx, scope, p.IdempotencyKey); err != nil {
			return nil, err
		} else if prior != nil {
			o.Logger.InfoContext(ctx, "checkout replayed", "order_id", prior.OrderID, "idempotency_key", p.IdempotencyKey)
			return &OrderResult{Order: prior}, nil
		}
	}

	var order *orders.Order
	err := o.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		order, err = o.placeOrder(ctx, tx, userID, scope, method, p)
		return err
	})
	if err != nil {
		// a concurrent request with the same key won the race
		if p.IdempotencyKey != "" && (errors.Is(err, orders.ErrDuplicateOrder) || errors.Is(err, catalog.ErrCartCompleted)) {
			prior, ferr := o.Store.FindOrderByIdempotencyKey(ctx, scope, p.IdempotencyKey)
			if ferr == nil && prior != nil {
				return &OrderResult{Order: prior}, nil
			}
		}
		if errors.Is(err, orders.ErrDuplicateOrder) {
			return nil, apperr.WithCause(catalog.ErrCartCompleted, err)
		}
		return nil, err
	}

	o.Logger.InfoContext(ctx, "order created",
		"order_id", order.OrderID,
		"order_number", order.OrderNumber,
		"status", order.Status,
		"total_cents", order.TotalCents,
		"payment_method", order.PaymentMethod,
	)
	notify.Send(ctx, o.Notifier, o.Logger, order.Notification(notify.KindOrderConfirmation))
	return &OrderResult{Order: order, Created: true}, nil
}

// placeOrder does every read before the first write it depends on, so it
// also runs on stores that defer writes to commit.
func (o *Orchestrator) placeOrder(ctx context.Context, tx store.Tx, userID, scope string, method payments.Provider, p OrderParams) (*orders.Order, error) {
	cart, err := o.loadCart(ctx, tx, userID, p.CartID)
	if err != nil {
		return nil, err
	}
	lines := make([]inventory.Line, 0, len(cart.Lines))
	for _, ln := range cart.Lines {
		if ln.Quantity < 1 {
			return nil, inventory.ErrInvalidQuantity
		}
		lines = append(lines, inventory.Line{ProductID: ln.ProductID, Quantity: ln.Quantity})
	}
	lines = inventory.MergeLines(lines)
	if o.Config.MaxLines > 0 && len(lines) > o.Config.MaxLines {
		return nil, apperr.Wrapf(ErrCartTooLarge, "cart has %d products, at most %d can be ordered at once", len(lines), o.Config.MaxLines)
	}

	now := o.Now().UTC()
	order := &orders.Order{
		OrderID:         o.IDs.ID(),
		OrderNumber:     o.IDs.OrderNumber(),
		Status:          orders.StatusPending,
		Currency:        o.Config.Currency,
		PaymentMethod:   string(method),
		ShippingAddress: p.ShippingAddress,
		CartID:          cart.CartID,
		CustomerName:    p.CustomerName,
		CustomerPhone:   p.CustomerPhone,
		CustomerEmail:   p.CustomerEmail,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if p.IdempotencyKey != "" {
		order.IdempotencyScope = scope
		order.IdempotencyKey = p.IdempotencyKey
	}

	// 1. price every line from a fresh product read
	promoItems := make([]promotions.Item, 0, len(lines))
	for _, ln := range lines {
		prod, err := tx.GetProduct(ctx, ln.ProductID)
		if err != nil {
			return nil, err
		}
		if !prod.Purchasable() {
			return nil, apperr.Wrapf(ErrProductUnavailable, "product %s is not available", ln.ProductID)
		}
		order.Items = append(order.Items, orders.Item{
			ItemID:         o.IDs.ID(),
			ProductID:      prod.ProductID,
			Name:           prod.Name,
			Quantity:       ln.Quantity,
			UnitPriceCents: prod.PriceCents,
		})
		promoItems = append(promoItems, promotions.Item{ProductID: prod.ProductID, Quantity: ln.Quantity, UnitPriceCents: prod.PriceCents})
		order.SubtotalCents += int64(ln.Quantity) * prod.PriceCents
	}

	// 2. all-or-nothing stock deduction
	ref := inventory.Reference{Type: inventory.RefOrder, ID: order.OrderID}
	if err := o.Ledger.ReserveAndDeduct(ctx, tx, lines, ref); err != nil {
		return nil, err
	}

	// 3. customer
	var guest *catalog.User
	if userID != "" {
		order.UserID = userID
		if order.CustomerEmail == "" || order.CustomerName == "" || order.CustomerPhone == "" {
			u, err := tx.GetUser(ctx, userID)
			if err != nil {
				return nil, err
			}
			if u != nil {
				order.CustomerEmail = firstNonEmpty(order.CustomerEmail, u.Email)
				order.CustomerName = firstNonEmpty(order.CustomerName, u.Name)
				order.CustomerPhone = firstNonEmpty(order.CustomerPhone, u.Phone)
			}
		}
	} else {
		existing, err := tx.FindUserByEmail(ctx, p.CustomerEmail)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			order.UserID = existing.UserID
		} else {
			guest = &catalog.User{
				UserID:    o.IDs.ID(),
				Email:     p.CustomerEmail,
				Name:      p.CustomerName,
				Phone:     p.CustomerPhone,
				Guest:     true,
				CreatedAt: now,
			}
			order.UserID = guest.UserID
		}
	}

	// 4. promotion, evaluated against the lines being committed
	var promo promotions.Result
	if p.PromotionCode != "" {
		promo, err = o.Promotions.Validate(ctx, tx, promotions.Request{
			Code:          p.PromotionCode,
			SubtotalCents: order.SubtotalCents,
			UserID:        order.UserID,
			Items:         promoItems,
		})
		if err != nil {
			return nil, err
		}
		if !promo.Valid {
			return nil, apperr.Wrapf(ErrInvalidPromotionCode, "%s", promo.Error)
		}
		order.PromotionCode = promo.Code
		order.DiscountCents = promo.DiscountCents
	}

	// 5. shipping and total
	if order.SubtotalCents <= o.Config.FreeShippingThreshold && !promo.FreeShipping {
		order.ShippingCents = o.Config.FlatShippingFee
	}
	order.TotalCents = orders.ComputeTotal(order.SubtotalCents, order.DiscountCents, order.ShippingCents)

	if method == payments.ProviderCOD {
		if err := order.Transition(orders.StatusConfirmed, now); err != nil {
			return nil, err
		}
	}

	// writes
	if guest != nil {
		if err := tx.CreateUser(ctx, guest); err != nil {
			return nil, err
		}
	}
	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	if method == payments.ProviderCOD {
		corr := o.IDs.CorrelationCode()
		if err := tx.CreateIntent(ctx, &payments.Intent{
			IntentID:       o.IDs.ID(),
			OrderID:        order.OrderID,
			Provider:       payments.ProviderCOD,
			Status:         payments.IntentSucceeded,
			AmountCents:    order.TotalCents,
			Currency:       order.Currency,
			IdempotencyKey: "checkout:" + order.OrderID,
			CorrelationID:  corr,
			ProviderRef:    "cod-" + corr,
			CreatedAt:      now,
			UpdatedAt:      now,
		}); err != nil {
			return nil, err
		}
	}
	if promo.Valid {
		if err := tx.RecordPromotionUsage(ctx, &promotions.Usage{
			UsageID:       o.IDs.ID(),
			Code:          promo.Code,
			UserID:        order.UserID,
			OrderID:       order.OrderID,
			DiscountCents: promo.DiscountCents,
			CreatedAt:     now,
			UsageLimit:    promo.UsageLimit,
			PerUserLimit:  promo.PerUserLimit,
		}); err != nil {
			if errors.Is(err, promotions.ErrUsageLimitReached) {
				return nil, apperr.Wrapf(ErrInvalidPromotionCode, "promotion code has been fully redeemed")
			}
			return nil, err
		}
	}
	if err := tx.CompleteCart(ctx, cart.CartID); err != nil {
		return nil, err
	}
	return order, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func (o *Orchestrator) loadCart(ctx context.Context, tx store.Tx, userID, cartID string) (*catalog.Cart, error) {
	var cart *catalog.Cart
	var err error
	if userID != "" && cartID == "" {
		cart, err = tx.GetActiveCart(ctx, userID)
	} else {
		cart, err = tx.GetCart(ctx, cartID)
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart == nil || len(cart.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	// a guest may only check out a guest cart
	if cart.UserID != "" && cart.UserID != userID {
		return nil, ErrEmptyCart
	}
	if cart.Status != catalog.CartActive {
		return nil, catalog.ErrCartCompleted
	}
	return cart, nil
}
