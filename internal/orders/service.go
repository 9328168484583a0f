package orders

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/imrishuroy/go-checkout-reconciler/internal/apperr"
	"github.com/imrishuroy/go-checkout-reconciler/internal/inventory"
	"github.com/imrishuroy/go-checkout-reconciler/internal/notify"
)

// Repository is the persistence the order service needs. Get methods return
// (nil, nil) when the order does not exist.
type Repository interface {
	inventory.Adjuster
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error)
	// UpdateOrderStatus writes to only if the stored status is still from,
	// else ErrStatusMismatch.
	UpdateOrderStatus(ctx context.Context, orderID string, from, to Status) error
	// DeleteOrder removes the order and its items, or returns
	// ErrOrderReferenced when payment intents point at it.
	DeleteOrder(ctx context.Context, orderID string) error
}

// Service is the Order Aggregate: lookups, state transitions and deletion.
type Service struct {
	Repo     Repository
	Ledger   *inventory.Ledger
	Notifier notify.Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

func NewService(repo Repository, notifier notify.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Repo:     repo,
		Ledger:   inventory.NewLedger(logger),
		Notifier: notifier,
		Logger:   logger,
		Now:      time.Now,
	}
}

func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) GetByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	o, err := s.Repo.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// Transition validates next against the state machine and persists it with a
// conditional write on the observed status. Cancelling restores stock for
// every line after the write; restore failures are logged only.
func (s *Service) Transition(ctx context.Context, orderID string, next Status) (*Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	from := o.Status
	if err := o.Transition(next, s.Now().UTC()); err != nil {
		return nil, err
	}

	err = s.Repo.UpdateOrderStatus(ctx, orderID, from, next)
	if errors.Is(err, ErrStatusMismatch) {
		return nil, apperr.Wrapf(ErrInvalidStateTransition, "order %s is no longer %s", o.OrderNumber, from)
	}
	if err != nil {
		return nil, err
	}

	s.Logger.InfoContext(ctx, "order status changed",
		"order_id", orderID,
		"from", from,
		"to", next,
	)

	if next == StatusCancelled {
		s.Ledger.Restore(ctx, s.Repo, o.Lines(), inventory.Reference{
			Type: inventory.RefOrderCancelled,
			ID:   orderID,
		})
		notify.Send(ctx, s.Notifier, s.Logger, o.Notification(notify.KindOrderCancelled))
	}
	return o, nil
}

// Delete removes an order nobody paid against. Completed orders are kept for
// the books; stock is restored unless a cancellation already did it.
func (s *Service) Delete(ctx context.Context, orderID string) error {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status == StatusCompleted {
		return apperr.Wrapf(ErrInvalidStateTransition, "completed order %s cannot be deleted", o.OrderNumber)
	}
	if err := s.Repo.DeleteOrder(ctx, orderID); err != nil {
		return err
	}

	s.Logger.InfoContext(ctx, "order deleted", "order_id", orderID, "status", o.Status)
	if o.Status != StatusCancelled {
		s.Ledger.Restore(ctx, s.Repo, o.Lines(), inventory.Reference{
			Type: inventory.RefOrderDeleted,
			ID:   orderID,
		})
	}
	return nil
}

// Notification builds the customer message for kind.
func (o *Order) Notification(kind notify.Kind) notify.Message {
	return notify.Message{
		Kind:        kind,
		OrderID:     o.OrderID,
		OrderNumber: o.OrderNumber,
		Email:       o.CustomerEmail,
		Name:        o.CustomerName,
		TotalCents:  o.TotalCents,
		Currency:    o.Currency,
	}
}
