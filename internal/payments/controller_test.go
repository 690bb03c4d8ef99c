package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	"github.com/ariefcatur/go-pi-orders/internal/orders"
	"github.com/ariefcatur/go-pi-orders/internal/pinet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	mu     sync.Mutex
	byID   map[string]*orders.Order
	getErr error
}

func newFakeOrders(os ...orders.Order) *fakeOrders {
	f := &fakeOrders{byID: map[string]*orders.Order{}}
	for i := range os {
		o := os[i]
		f.byID[o.OrderID] = &o
	}
	return f
}

func (f *fakeOrders) Get(_ context.Context, id string) (*orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	o, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("Order not found: %s", id)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) FindByPaymentID(_ context.Context, pid string) (*orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.byID {
		if o.ExternalPaymentID == pid {
			cp := *o
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("No order for payment: %s", pid)
}

func (f *fakeOrders) AttachPayment(_ context.Context, id, pid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].ExternalPaymentID = pid
	return nil
}

func (f *fakeOrders) MarkPaid(_ context.Context, id, pid, tx string) (*orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.byID[id]
	o.Status, o.ExternalPaymentID, o.ExternalTxID, o.PaymentMethod = orders.StatusPaid, pid, tx, orders.PaymentMethodPi
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) CancelPayment(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.byID[id]
	o.ExternalPaymentID, o.ExternalTxID, o.Status = "", "", orders.StatusCancelled
	return nil
}

type fakeGateway struct {
	mu        sync.Mutex
	payments  map[string]*pinet.Payment
	getErr    error
	approved  []string
	completed []string
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (*pinet.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	p, ok := g.payments[id]
	if !ok {
		return nil, &apperr.GatewayError{Op: "get", StatusCode: 404, Body: "not found"}
	}
	cp := *p
	return &cp, nil
}

func (g *fakeGateway) ApprovePayment(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.approved = append(g.approved, id)
	return nil
}

func (g *fakeGateway) CompletePayment(_ context.Context, id, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed = append(g.completed, id)
	return nil
}

func pending(id string) *pinet.Payment { return &pinet.Payment{Identifier: id} }

func approved(id string) *pinet.Payment {
	return &pinet.Payment{Identifier: id, Status: pinet.Status{DeveloperApproved: true}}
}

func newController(o *fakeOrders, g *fakeGateway) *Controller {
	return NewController(o, g, orders.Emitter{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func order(id string) orders.Order {
	return orders.Order{OrderID: id, Status: orders.StatusPendingPayment}
}

func TestApprove(t *testing.T) {
	t.Parallel()
	o := newFakeOrders(order("ORD1"))
	g := &fakeGateway{payments: map[string]*pinet.Payment{"pay_1": pending("pay_1")}}
	c := newController(o, g)

	require.NoError(t, c.Approve(context.Background(), "ORD1", "pay_1"))
	assert.Equal(t, []string{"pay_1"}, g.approved)
	assert.Equal(t, "pay_1", o.byID["ORD1"].ExternalPaymentID)

	// idempotent: no second gateway call
	require.NoError(t, c.Approve(context.Background(), "ORD1", "pay_1"))
	assert.Len(t, g.approved, 1)
}

func TestApproveSkipsGatewayWhenAlreadyApproved(t *testing.T) {
	t.Parallel()
	o := newFakeOrders(order("ORD1"))
	g := &fakeGateway{payments: map[string]*pinet.Payment{"pay_1": approved("pay_1")}}

	require.NoError(t, newController(o, g).Approve(context.Background(), "ORD1", "pay_1"))
	assert.Empty(t, g.approved)
	assert.Equal(t, "pay_1", o.byID["ORD1"].ExternalPaymentID)
}

func TestApproveErrors(t *testing.T) {
	t.Parallel()

	cancelled := &pinet.Payment{Identifier: "pay_c", Status: pinet.Status{Cancelled: true}}
	done := &pinet.Payment{Identifier: "pay_old", Status: pinet.Status{DeveloperCompleted: true}}

	tests := []struct {
		name      string
		order     orders.Order
		paymentID string
		payments  map[string]*pinet.Payment
		orderID   string
		want      error
		attached  string
	}{
		{
			name:    "missing_fields",
			order:   order("ORD1"),
			orderID: "ORD1",
			want:    apperr.ErrValidation,
		},
		{
			name:      "order_not_found",
			order:     order("ORD1"),
			orderID:   "NOPE",
			paymentID: "pay_1",
			want:      apperr.ErrNotFound,
		},
		{
			name:      "previous_payment_in_progress",
			order:     orders.Order{OrderID: "ORD1", ExternalPaymentID: "pay_old"},
			orderID:   "ORD1",
			paymentID: "pay_new",
			payments:  map[string]*pinet.Payment{"pay_old": approved("pay_old"), "pay_new": pending("pay_new")},
			want:      apperr.ErrConflict,
			attached:  "pay_old",
		},
		{
			name:      "previous_payment_done",
			order:     orders.Order{OrderID: "ORD1", ExternalPaymentID: "pay_old"},
			orderID:   "ORD1",
			paymentID: "pay_new",
			payments:  map[string]*pinet.Payment{"pay_old": done, "pay_new": pending("pay_new")},
			attached:  "pay_new",
		},
		{
			name:      "new_payment_cancelled",
			order:     order("ORD1"),
			orderID:   "ORD1",
			paymentID: "pay_c",
			payments:  map[string]*pinet.Payment{"pay_c": cancelled},
			want:      apperr.ErrConflict,
		},
		{
			name:      "new_payment_unknown_upstream",
			order:     order("ORD1"),
			orderID:   "ORD1",
			paymentID: "pay_x",
			want:      apperr.ErrGateway,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := newFakeOrders(tt.order)
			g := &fakeGateway{payments: tt.payments}
			err := newController(o, g).Approve(context.Background(), tt.orderID, tt.paymentID)
			if tt.want == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.want)
			}
			assert.Equal(t, tt.attached, o.byID[tt.order.OrderID].ExternalPaymentID)
		})
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		payment       *pinet.Payment
		wantGatewayOp bool
	}{
		{name: "not_yet_completed", payment: approved("pay_1"), wantGatewayOp: true},
		{
			name:    "already_completed_upstream",
			payment: &pinet.Payment{Identifier: "pay_1", Status: pinet.Status{DeveloperApproved: true, DeveloperCompleted: true}},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := newFakeOrders(orders.Order{OrderID: "ORD1", Status: orders.StatusPendingPayment, ExternalPaymentID: "pay_1", PaymentMethod: "FPX"})
			g := &fakeGateway{payments: map[string]*pinet.Payment{"pay_1": tt.payment}}

			got, err := newController(o, g).Complete(context.Background(), "ORD1", "pay_1", "tx_1")
			require.NoError(t, err)
			assert.Equal(t, orders.StatusPaid, got.Status)
			assert.Equal(t, "tx_1", got.ExternalTxID)
			assert.Equal(t, orders.PaymentMethodPi, got.PaymentMethod)
			assert.Equal(t, tt.wantGatewayOp, len(g.completed) == 1)
		})
	}
}

func TestCompleteRejectsForeignPayment(t *testing.T) {
	t.Parallel()
	o := newFakeOrders(orders.Order{OrderID: "ORD1", ExternalPaymentID: "pay_1"})
	g := &fakeGateway{payments: map[string]*pinet.Payment{"pay_2": approved("pay_2")}}

	_, err := newController(o, g).Complete(context.Background(), "ORD1", "pay_2", "tx")
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Empty(t, g.completed)
}

func TestCancel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		orders    []orders.Order
		paymentID string
		orderID   string
		wantFound FoundBy
		want      error
	}{
		{
			name:      "by_order_id_before_approve",
			orders:    []orders.Order{order("ORD1")},
			paymentID: "pay_1",
			orderID:   "ORD1",
			wantFound: FoundByOrderID,
		},
		{
			name:      "order_id_with_other_payment_falls_back_to_payment_id",
			orders:    []orders.Order{{OrderID: "ORD1", ExternalPaymentID: "pay_other"}, {OrderID: "ORD2", ExternalPaymentID: "pay_1"}},
			paymentID: "pay_1",
			orderID:   "ORD1",
			wantFound: FoundByPaymentID,
		},
		{
			name:      "by_payment_id",
			orders:    []orders.Order{{OrderID: "ORD2", ExternalPaymentID: "pay_1"}},
			paymentID: "pay_1",
			wantFound: FoundByPaymentID,
		},
		{
			name:      "orphan_is_success",
			paymentID: "pay_ghost",
			orderID:   "ORD404",
			wantFound: NotFound,
		},
		{
			name:      "paid_order_conflict",
			orders:    []orders.Order{{OrderID: "ORD1", Status: orders.StatusPaid, ExternalPaymentID: "pay_1"}},
			paymentID: "pay_1",
			orderID:   "ORD1",
			wantFound: FoundByOrderID,
			want:      apperr.ErrConflict,
		},
		{
			name: "settled_payment_with_later_status_conflict",
			orders: []orders.Order{{OrderID: "ORD1", Status: "Shipped",
				ExternalPaymentID: "pay_1", ExternalTxID: "tx_1"}},
			paymentID: "pay_1",
			wantFound: FoundByPaymentID,
			want:      apperr.ErrConflict,
		},
		{
			name:      "order_id_alone_ignored_once_past_pending",
			orders:    []orders.Order{{OrderID: "ORD2", Status: "Shipped", PaymentMethod: "FPX"}},
			paymentID: "pay_random",
			orderID:   "ORD2",
			wantFound: NotFound,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := newFakeOrders(tt.orders...)
			before := map[string]orders.Order{}
			for _, x := range tt.orders {
				before[x.OrderID] = x
			}
			l, err := newController(o, &fakeGateway{}).Cancel(context.Background(), tt.paymentID, tt.orderID)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
				assert.Equal(t, tt.wantFound, l.FoundBy)
				stored := o.byID[l.Order.OrderID]
				assert.Equal(t, before[l.Order.OrderID].Status, stored.Status)
				assert.Equal(t, before[l.Order.OrderID].ExternalTxID, stored.ExternalTxID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, l.FoundBy)
			if l.Order != nil {
				stored := o.byID[l.Order.OrderID]
				assert.Equal(t, orders.StatusCancelled, stored.Status)
				assert.Empty(t, stored.ExternalPaymentID)
			}
			if tt.wantFound == NotFound {
				for id, x := range before {
					assert.Equal(t, x.Status, o.byID[id].Status)
				}
			}
		})
	}
}

func TestCancelRequiresPaymentID(t *testing.T) {
	t.Parallel()
	_, err := newController(newFakeOrders(), &fakeGateway{}).Cancel(context.Background(), "", "ORD1")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestLocatePropagatesStoreErrors(t *testing.T) {
	t.Parallel()
	o := newFakeOrders()
	o.getErr = apperr.Persistence("get order", errors.New("conn reset"))
	_, err := newController(o, &fakeGateway{}).Locate(context.Background(), "pay_1", "ORD1")
	require.ErrorIs(t, err, apperr.ErrPersistence)
}

func TestStateOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		o    *orders.Order
		p    *pinet.Payment
		want State
	}{
		{name: "fresh_order", o: &orders.Order{}, want: StateNone},
		{name: "attached", o: &orders.Order{ExternalPaymentID: "p"}, want: StateApproved},
		{name: "paid", o: &orders.Order{Status: orders.StatusPaid}, want: StateCompleted},
		{name: "txid_with_later_status", o: &orders.Order{Status: "Shipped", ExternalPaymentID: "p", ExternalTxID: "tx"}, want: StateCompleted},
		{name: "cancelled_order", o: &orders.Order{Status: orders.StatusCancelled}, want: StateCancelled},
		{name: "upstream_pending", p: pending("p"), want: StatePendingApproval},
		{name: "upstream_approved", p: approved("p"), want: StateApproved},
		{name: "upstream_cancelled", p: &pinet.Payment{Status: pinet.Status{UserCancelled: true}}, want: StateCancelled},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StateOf(tt.o, tt.p))
		})
	}

	assert.True(t, CanTransition(StateApproved, StateCompleted))
	assert.False(t, CanTransition(StateCompleted, StateCancelled))
}
