package orders

import (
	"strings"
	"time"

	"github.com/imrishuroy/go-checkout-reconciler/internal/apperr"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled},
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus accepts any letter case.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", apperr.Validation("unknown order status", map[string]string{"status": v})
	}
	return s, nil
}

// CanTransition reports whether from -> to is an edge of the order state machine.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the order to next. On an invalid edge the order is left
// untouched and ErrInvalidStateTransition is returned.
func (o *Order) Transition(next Status, now time.Time) error {
	if !CanTransition(o.Status, next) {
		return apperr.Wrapf(ErrInvalidStateTransition, "cannot move order from %s to %s", o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}
