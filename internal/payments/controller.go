// Package payments drives an order's Pi payment through approve, complete and cancel.
package payments

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	"github.com/ariefcatur/go-pi-orders/internal/orders"
	"github.com/ariefcatur/go-pi-orders/internal/pinet"
)

// Orders is the slice of the order store the controller needs. *orders.Service satisfies it.
type Orders interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*orders.Order, error)
	AttachPayment(ctx context.Context, orderID, paymentID string) error
	MarkPaid(ctx context.Context, orderID, paymentID, txID string) (*orders.Order, error)
	CancelPayment(ctx context.Context, orderID string) error
}

// Gateway is the subset of *pinet.Client used for user-to-app payments.
type Gateway interface {
	GetPayment(ctx context.Context, paymentID string) (*pinet.Payment, error)
	ApprovePayment(ctx context.Context, paymentID string) error
	CompletePayment(ctx context.Context, paymentID, txid string) error
}

type Controller struct {
	Orders  Orders
	Gateway Gateway
	Events  orders.Emitter
	Log     *slog.Logger
}

func NewController(o Orders, gw Gateway, events orders.Emitter, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{Orders: o, Gateway: gw, Events: events, Log: log}
}

// Approve attaches paymentID to the order after approving it upstream.
// Re-approving the payment already recorded on the order is a no-op.
func (c *Controller) Approve(ctx context.Context, orderID, paymentID string) error {
	if err := required(map[string]string{"order_id": orderID, "payment_id": paymentID}); err != nil {
		return err
	}
	o, err := c.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.ExternalPaymentID == paymentID {
		c.Log.Info("payment already approved", "order_id", orderID, "payment_id", paymentID)
		return nil
	}
	if o.Status == orders.StatusPaid {
		return apperr.Conflict("Order %s is already paid", orderID)
	}
	if prev := o.ExternalPaymentID; prev != "" {
		p, err := c.Gateway.GetPayment(ctx, prev)
		switch {
		case err != nil:
			// pembayaran lama tidak bisa dicek, anggap sudah tidak aktif
			c.Log.Warn("previous payment lookup failed", "order_id", orderID, "payment_id", prev, "err", err)
		case p.Pending():
			return apperr.Conflict("Payment already in progress for this order")
		}
	}

	p, err := c.Gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	from := StateOf(nil, p)
	if from == StateCancelled || from == StateCompleted {
		return apperr.Conflict("Payment %s is %s", paymentID, strings.ToLower(string(from)))
	}
	if from == StatePendingApproval {
		if err := c.Gateway.ApprovePayment(ctx, paymentID); err != nil {
			return err
		}
	}
	if err := c.Orders.AttachPayment(ctx, orderID, paymentID); err != nil {
		return err
	}
	c.Log.Info("payment approved", "order_id", orderID, "payment_id", paymentID)
	c.Events.Emit(orders.TopicPaymentApproved, orders.EventPaymentApproved, orderID, "",
		orders.PaymentApprovedPayload{OrderID: orderID, PaymentID: paymentID})
	return nil
}

// Complete finalizes the payment upstream when needed and marks the order Paid.
func (c *Controller) Complete(ctx context.Context, orderID, paymentID, txid string) (*orders.Order, error) {
	if err := required(map[string]string{"order_id": orderID, "payment_id": paymentID, "txid": txid}); err != nil {
		return nil, err
	}
	o, err := c.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.ExternalPaymentID != "" && o.ExternalPaymentID != paymentID {
		return nil, apperr.Conflict("Order %s is attached to a different payment", orderID)
	}
	if o.Status == orders.StatusPaid {
		c.Log.Info("order already paid", "order_id", orderID, "payment_id", paymentID)
		return o, nil
	}

	p, err := c.Gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Cancelled() {
		return nil, apperr.Conflict("Payment %s was cancelled", paymentID)
	}
	if !p.Completed() {
		if err := c.Gateway.CompletePayment(ctx, paymentID, txid); err != nil {
			return nil, err
		}
	}

	updated, err := c.Orders.MarkPaid(ctx, orderID, paymentID, txid)
	if err != nil {
		return nil, err
	}
	c.Log.Info("payment completed", "order_id", orderID, "payment_id", paymentID, "txid", txid)
	c.Events.Emit(orders.TopicPaymentCompleted, orders.EventPaymentCompleted, orderID, "",
		orders.PaymentCompletedPayload{OrderID: orderID, PaymentID: paymentID, TxID: txid})
	return updated, nil
}

type FoundBy string

const (
	FoundByOrderID   FoundBy = "order_id"
	FoundByPaymentID FoundBy = "payment_id"
	NotFound         FoundBy = "not_found"
)

// Lookup is the result of resolving which order a cancel refers to.
type Lookup struct {
	Order   *orders.Order
	FoundBy FoundBy
}

// Locate resolves the order for a payment. An order id match only counts when that
// order carries the same payment, or has none attached and is still awaiting payment.
func (c *Controller) Locate(ctx context.Context, paymentID, orderID string) (Lookup, error) {
	if orderID != "" {
		o, err := c.Orders.Get(ctx, orderID)
		switch {
		case err == nil:
			if o.ExternalPaymentID == paymentID ||
				(o.ExternalPaymentID == "" && o.Status == orders.StatusPendingPayment) {
				return Lookup{Order: o, FoundBy: FoundByOrderID}, nil
			}
		case !errors.Is(err, apperr.ErrNotFound):
			return Lookup{}, err
		}
	}
	o, err := c.Orders.FindByPaymentID(ctx, paymentID)
	switch {
	case err == nil:
		return Lookup{Order: o, FoundBy: FoundByPaymentID}, nil
	case errors.Is(err, apperr.ErrNotFound):
		return Lookup{FoundBy: NotFound}, nil
	default:
		return Lookup{}, err
	}
}

// Cancel clears the payment from its order. A payment with no matching order is
// treated as already cleaned up.
func (c *Controller) Cancel(ctx context.Context, paymentID, orderID string) (Lookup, error) {
	if err := required(map[string]string{"payment_id": paymentID}); err != nil {
		return Lookup{}, err
	}
	l, err := c.Locate(ctx, paymentID, orderID)
	if err != nil {
		return Lookup{}, err
	}
	if l.FoundBy == NotFound {
		c.Log.Info("cancel for unknown payment ignored", "payment_id", paymentID, "order_id", orderID)
		return l, nil
	}
	if from := StateOf(l.Order, nil); from != StateCancelled && !CanTransition(from, StateCancelled) {
		return l, apperr.Conflict("Cannot cancel a completed payment")
	}
	if err := c.Orders.CancelPayment(ctx, l.Order.OrderID); err != nil {
		return l, err
	}
	c.Log.Info("payment cancelled", "order_id", l.Order.OrderID, "payment_id", paymentID, "found_by", l.FoundBy)
	c.Events.Emit(orders.TopicPaymentCancelled, orders.EventPaymentCancelled, l.Order.OrderID, "",
		orders.PaymentCancelledPayload{OrderID: l.Order.OrderID, PaymentID: paymentID, FoundBy: string(l.FoundBy)})
	return l, nil
}

func required(fields map[string]string) error {
	var missing []string
	for _, k := range []string{"order_id", "payment_id", "txid"} {
		if v, ok := fields[k]; ok && strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return apperr.Validation("Missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
