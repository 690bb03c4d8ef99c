package orders

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	orders   map[string]Order
	products map[string]Product
	updates  map[string]map[string]any
}

func newMemStore() *memStore {
	return &memStore{
		orders:   map[string]Order{},
		products: map[string]Product{},
		updates:  map[string]map[string]any{},
	}
}

func (m *memStore) Insert(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.OrderID]; ok {
		return apperr.Conflict("Order already exists: %s", o.OrderID)
	}
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	m.orders[o.OrderID] = *o
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, apperr.NotFound("Order not found: %s", id)
	}
	return &o, nil
}

func (m *memStore) List(_ context.Context, f Filter) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if f.Phone == "" || o.Phone == f.Phone {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return apperr.NotFound("Order not found: %s", id)
	}
	m.updates[id] = fields
	return nil
}

func (m *memStore) FindByPaymentID(_ context.Context, pid string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ExternalPaymentID == pid {
			return &o, nil
		}
	}
	return nil, apperr.NotFound("No order for payment: %s", pid)
}

func (m *memStore) mutate(id string, fn func(o *Order) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return apperr.NotFound("Order not found: %s", id)
	}
	if err := fn(&o); err != nil {
		return err
	}
	m.orders[id] = o
	return nil
}

func (m *memStore) AttachPayment(_ context.Context, id, pid string) error {
	return m.mutate(id, func(o *Order) error { o.ExternalPaymentID = pid; return nil })
}

func (m *memStore) MarkPaid(_ context.Context, id, pid, tx, method string) error {
	return m.mutate(id, func(o *Order) error {
		o.Status, o.ExternalPaymentID, o.ExternalTxID, o.PaymentMethod = StatusPaid, pid, tx, method
		return nil
	})
}

func (m *memStore) ClearPayment(_ context.Context, id, status string) error {
	return m.mutate(id, func(o *Order) error {
		if o.Status == StatusPaid || o.ExternalTxID != "" {
			return apperr.Conflict("Cannot cancel a completed payment")
		}
		o.ExternalPaymentID, o.ExternalTxID, o.Status = "", "", status
		return nil
	})
}

func (m *memStore) MarkRefunded(_ context.Context, id, reason string, at time.Time) error {
	return m.mutate(id, func(o *Order) error {
		o.HasRefund, o.RefundReason, o.RefundedAt = true, reason, &at
		return nil
	})
}

func (m *memStore) ListProducts(context.Context) ([]Product, error) { return nil, nil }

func (m *memStore) GetProduct(_ context.Context, id string) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, apperr.NotFound("Product not found: %s", id)
	}
	return &p, nil
}

func (m *memStore) ProductByName(_ context.Context, name string) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, apperr.NotFound("Product not found: %s", name)
}

func (m *memStore) UpdateProduct(_ context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return apperr.NotFound("Product not found: %s", id)
	}
	m.updates[id] = fields
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(topic string, _, _ []byte, _ ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
}

func newTestService() (*Service, *memStore, *recordingPublisher) {
	store := newMemStore()
	pub := &recordingPublisher{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, Emitter{Publisher: pub, Producer: "test"}, log), store, pub
}

func validOrder(id string) Order {
	return Order{
		OrderID:      id,
		CustomerName: "Siti",
		Phone:        "60123",
		ProductName:  "Kopi",
		Quantity:     2,
		TotalAmount:  decimal.RequireFromString("100.00"),
	}
}

func TestCreateThenGet(t *testing.T) {
	t.Parallel()
	svc, store, pub := newTestService()
	store.products["p1"] = Product{ProductID: "p1", Name: "Kopi", Weight: decimal.RequireFromString("0.5")}

	created, err := svc.Create(context.Background(), validOrder("ORD1"))
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), "ORD1")
	require.NoError(t, err)
	assert.Equal(t, created.OrderID, got.OrderID)
	assert.Equal(t, "Siti", got.CustomerName)
	assert.Equal(t, "Kopi", got.ProductName)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, StatusPendingPayment, got.Status)
	assert.Equal(t, DefaultCountry, got.Country)
	assert.Equal(t, DefaultShippingMethod, got.ShippingMethod)
	assert.Equal(t, DefaultPaymentMethod, got.PaymentMethod)
	assert.True(t, got.ShippingWeight.Equal(decimal.NewFromInt(1)), "0.5 x 2")
	assert.Equal(t, []string{TopicOrderCreated}, pub.topics)
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), validOrder("ORD1"))
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), validOrder("ORD1"))
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(o *Order)
	}{
		{name: "missing_id", mutate: func(o *Order) { o.OrderID = "  " }},
		{name: "missing_customer", mutate: func(o *Order) { o.CustomerName = "" }},
		{name: "missing_product", mutate: func(o *Order) { o.ProductName = "" }},
		{name: "negative_total", mutate: func(o *Order) { o.TotalAmount = decimal.NewFromInt(-1) }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, _, pub := newTestService()
			o := validOrder("ORD1")
			tt.mutate(&o)
			_, err := svc.Create(context.Background(), o)
			require.ErrorIs(t, err, apperr.ErrValidation)
			assert.Empty(t, pub.topics)
		})
	}
}

func TestCreateIgnoresClientPaymentFields(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService()
	o := validOrder("ORD1")
	o.ExternalPaymentID = "spoofed"
	o.HasRefund = true

	got, err := svc.Create(context.Background(), o)
	require.NoError(t, err)
	assert.Empty(t, got.ExternalPaymentID)
	assert.False(t, got.HasRefund)
	assert.True(t, got.ShippingWeight.Equal(decimal.NewFromInt(1)), "unknown product falls back to 1")
}

func TestListPagination(t *testing.T) {
	t.Parallel()
	svc, store, _ := newTestService()
	base := time.Now()
	for i, id := range []string{"A", "B", "C"} {
		store.orders[id] = Order{OrderID: id, Phone: "1", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
	}
	store.orders["X"] = Order{OrderID: "X", Phone: "2", CreatedAt: base}

	got, err := svc.List(context.Background(), Filter{Phone: "1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "C", got[0].OrderID)
	assert.Equal(t, "B", got[1].OrderID)

	got, err = svc.List(context.Background(), Filter{Phone: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFilterNormalized(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Filter{Limit: DefaultListLimit}, Filter{}.normalized())
	assert.Equal(t, Filter{Limit: MaxListLimit}, Filter{Limit: 5000, Offset: -3}.normalized())
}

func TestUpdateFieldsAllowList(t *testing.T) {
	t.Parallel()
	svc, store, _ := newTestService()
	store.orders["ORD1"] = validOrder("ORD1")

	err := svc.UpdateFields(context.Background(), "ORD1", map[string]any{
		"order_status":  "Shipped",
		"tracking_link": "https://track/1",
		"shipping_cost": 12.5,
		"total_amount":  1,
		"customer_name": "hacker",
	})
	require.NoError(t, err)

	applied := store.updates["ORD1"]
	require.Len(t, applied, 3)
	assert.Equal(t, "Shipped", applied["order_status"])
	assert.True(t, applied["shipping_cost"].(decimal.Decimal).Equal(decimal.RequireFromString("12.5")))
	assert.NotContains(t, applied, "total_amount")
}

func TestUpdateFieldsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		id      string
		partial map[string]any
		want    error
	}{
		{name: "only_unknown_fields", id: "ORD1", partial: map[string]any{"foo": "bar"}, want: apperr.ErrValidation},
		{name: "empty", id: "ORD1", partial: map[string]any{}, want: apperr.ErrValidation},
		{name: "wrong_type", id: "ORD1", partial: map[string]any{"order_status": 5.0}, want: apperr.ErrValidation},
		{name: "negative_cost", id: "ORD1", partial: map[string]any{"shipping_cost": -2.0}, want: apperr.ErrValidation},
		{name: "missing_order", id: "NOPE", partial: map[string]any{"order_status": "Paid"}, want: apperr.ErrNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, store, _ := newTestService()
			store.orders["ORD1"] = validOrder("ORD1")
			err := svc.UpdateFields(context.Background(), tt.id, tt.partial)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdateProduct(t *testing.T) {
	t.Parallel()
	svc, store, _ := newTestService()
	store.products["p1"] = Product{ProductID: "p1", Name: "Kopi"}

	require.NoError(t, svc.UpdateProduct(context.Background(), "p1", map[string]any{"stock": 7.0, "name": "ignored"}))
	assert.Equal(t, map[string]any{"stock": 7}, store.updates["p1"])

	err := svc.UpdateProduct(context.Background(), "p1", map[string]any{"stock": 1.5})
	require.ErrorIs(t, err, apperr.ErrValidation)
	err = svc.UpdateProduct(context.Background(), "p1", map[string]any{"name": "x"})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSetClauseIsStable(t *testing.T) {
	t.Parallel()
	set, args := setClause(map[string]any{"tracking_link": "t", "courier_name": "c"})
	assert.Equal(t, "courier_name=$1, tracking_link=$2", set)
	assert.Equal(t, []any{"c", "t"}, args)
}
