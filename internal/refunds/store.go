package refunds

import (
	"context"
	"time"
)

// Update describes a conditional transition. Nil fields are left untouched.
type Update struct {
	To             Status
	PaymentID      *string
	TxID           *string
	ErrorMessage   *string
	IncRetry       bool
	StampInitiated bool
	StampCompleted bool
}

type ListFilter struct {
	Status Status // empty = all
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Store persists refunds. Repo is the Postgres implementation.
type Store interface {
	// Insert fails with a conflict when the order already has a live refund.
	Insert(ctx context.Context, r *Refund) error
	Get(ctx context.Context, refundID string) (*Refund, error)
	// LiveForOrder returns the non-cancelled refund of an order, or NotFound.
	LiveForOrder(ctx context.Context, orderID string) (*Refund, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*Refund, error)
	// Transition applies u only while the refund is in one of from.
	// Zero affected rows is a conflict (or NotFound when the refund does not exist).
	Transition(ctx context.Context, refundID string, from []Status, u Update) error
	Detail(ctx context.Context, refundID string) (*Detail, error)
	List(ctx context.Context, f ListFilter) ([]Detail, int, error)
	// Stalled lists processing refunds initiated before the cutoff.
	Stalled(ctx context.Context, before time.Time, limit int) ([]Refund, error)
}
