package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	"github.com/shopspring/decimal"
)

// Store is the persistence contract for orders and the product catalogue.
// Repo is the Postgres implementation.
type Store interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, orderID string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	Update(ctx context.Context, orderID string, fields map[string]any) error
	FindByPaymentID(ctx context.Context, paymentID string) (*Order, error)
	AttachPayment(ctx context.Context, orderID, paymentID string) error
	MarkPaid(ctx context.Context, orderID, paymentID, txID, method string) error
	ClearPayment(ctx context.Context, orderID, status string) error
	MarkRefunded(ctx context.Context, orderID, reason string, at time.Time) error

	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, productID string) (*Product, error)
	ProductByName(ctx context.Context, name string) (*Product, error)
	UpdateProduct(ctx context.Context, productID string, fields map[string]any) error
}

type Service struct {
	Store  Store
	Events Emitter
	Log    *slog.Logger
}

func NewService(store Store, events Emitter, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{Store: store, Events: events, Log: log}
}

// Create validates and persists a new order. Duplicate ids are a conflict, never a silent success.
func (s *Service) Create(ctx context.Context, o Order) (*Order, error) {
	if err := applyDefaults(&o); err != nil {
		return nil, err
	}
	if o.ShippingWeight.IsZero() {
		o.ShippingWeight = s.resolveWeight(ctx, o.ProductName, o.Quantity)
	}
	if err := s.Store.Insert(ctx, &o); err != nil {
		return nil, err
	}
	s.Log.Info("order created", "order_id", o.OrderID, "total", o.TotalAmount.String())
	s.Events.Emit(TopicOrderCreated, EventOrderCreated, o.OrderID, "", OrderCreatedPayload{
		OrderID:     o.OrderID,
		Phone:       o.Phone,
		ProductName: o.ProductName,
		Quantity:    o.Quantity,
		TotalAmount: o.TotalAmount,
	})
	return &o, nil
}

func (s *Service) resolveWeight(ctx context.Context, productName string, qty int) decimal.Decimal {
	p, err := s.Store.ProductByName(ctx, productName)
	if err != nil || p.Weight.Sign() <= 0 {
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			s.Log.Warn("product weight lookup failed", "product", productName, "err", err)
		}
		return decimal.NewFromInt(1)
	}
	return p.Weight.Mul(decimal.NewFromInt(int64(qty)))
}

func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, apperr.Validation("missing order_id")
	}
	return s.Store.Get(ctx, orderID)
}

func (s *Service) List(ctx context.Context, f Filter) ([]Order, error) {
	out, err := s.Store.List(ctx, f.normalized())
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Order{}
	}
	return out, nil
}

// UpdateFields applies the allow-listed subset of fields. Unknown keys are ignored.
func (s *Service) UpdateFields(ctx context.Context, orderID string, partial map[string]any) error {
	fields, err := FilterUpdates(partial)
	if err != nil {
		return err
	}
	if err := s.Store.Update(ctx, orderID, fields); err != nil {
		return err
	}
	s.Log.Info("order updated", "order_id", orderID, "fields", sortedKeys(fields))
	return nil
}

func (s *Service) FindByPaymentID(ctx context.Context, paymentID string) (*Order, error) {
	return s.Store.FindByPaymentID(ctx, paymentID)
}

func (s *Service) AttachPayment(ctx context.Context, orderID, paymentID string) error {
	return s.Store.AttachPayment(ctx, orderID, paymentID)
}

// MarkPaid records a completed payment and returns the updated order.
func (s *Service) MarkPaid(ctx context.Context, orderID, paymentID, txID string) (*Order, error) {
	if err := s.Store.MarkPaid(ctx, orderID, paymentID, txID, PaymentMethodPi); err != nil {
		return nil, err
	}
	return s.Store.Get(ctx, orderID)
}

func (s *Service) CancelPayment(ctx context.Context, orderID string) error {
	return s.Store.ClearPayment(ctx, orderID, StatusCancelled)
}

func (s *Service) MarkRefunded(ctx context.Context, orderID, reason string, at time.Time) error {
	return s.Store.MarkRefunded(ctx, orderID, reason, at)
}

func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	out, err := s.Store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Product{}
	}
	return out, nil
}

func (s *Service) GetProduct(ctx context.Context, productID string) (*Product, error) {
	return s.Store.GetProduct(ctx, productID)
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, partial map[string]any) error {
	fields, err := filterProductUpdates(partial)
	if err != nil {
		return err
	}
	return s.Store.UpdateProduct(ctx, productID, fields)
}

func applyDefaults(o *Order) error {
	o.OrderID = strings.TrimSpace(o.OrderID)
	var missing []string
	if o.OrderID == "" {
		missing = append(missing, "order_id")
	}
	if strings.TrimSpace(o.CustomerName) == "" {
		missing = append(missing, "customer_name")
	}
	if strings.TrimSpace(o.ProductName) == "" {
		missing = append(missing, "product_name")
	}
	if len(missing) > 0 {
		return apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}
	if o.TotalAmount.Sign() < 0 {
		return apperr.Validation("total_amount must not be negative")
	}
	if o.Quantity <= 0 {
		o.Quantity = 1
	}
	if o.Country == "" {
		o.Country = DefaultCountry
	}
	if o.ShippingMethod == "" {
		o.ShippingMethod = DefaultShippingMethod
	}
	if o.PaymentMethod == "" {
		o.PaymentMethod = DefaultPaymentMethod
	}
	if o.Status == "" {
		o.Status = StatusPendingPayment
	}
	if o.DeliveryETA == "" {
		o.DeliveryETA = DefaultDeliveryETA
	}
	if o.CourierName == "" {
		o.CourierName = DefaultCourier
	}
	// payment fields are attached by the payment flow only
	o.ExternalPaymentID, o.ExternalTxID = "", ""
	o.HasRefund, o.RefundReason, o.RefundedAt = false, "", nil
	return nil
}

type fieldKind int

const (
	textField fieldKind = iota
	moneyField
	intField
)

var updatableOrderFields = map[string]fieldKind{
	"order_status":        textField,
	"courier_name":        textField,
	"tracking_link":       textField,
	"shipping_method":     textField,
	"shipping_cost":       moneyField,
	"delivery_eta":        textField,
	"payment_method":      textField,
	"external_payment_id": textField,
	"external_tx_id":      textField,
}

var updatableProductFields = map[string]fieldKind{
	"price":     moneyField,
	"stock":     intField,
	"weight":    moneyField,
	"image_url": textField,
}

// FilterUpdates keeps allow-listed order fields, coercing JSON values to column types.
func FilterUpdates(partial map[string]any) (map[string]any, error) {
	return filterFields(partial, updatableOrderFields, "No valid update fields provided")
}

func filterProductUpdates(partial map[string]any) (map[string]any, error) {
	return filterFields(partial, updatableProductFields, "No valid fields to update")
}

func filterFields(partial map[string]any, allowed map[string]fieldKind, emptyMsg string) (map[string]any, error) {
	out := make(map[string]any, len(partial))
	for k, v := range partial {
		kind, ok := allowed[k]
		if !ok {
			continue
		}
		cv, err := coerce(k, kind, v)
		if err != nil {
			return nil, err
		}
		out[k] = cv
	}
	if len(out) == 0 {
		return nil, apperr.Validation("%s", emptyMsg)
	}
	return out, nil
}

func coerce(field string, kind fieldKind, v any) (any, error) {
	switch kind {
	case textField:
		s, ok := v.(string)
		if !ok {
			return nil, apperr.Validation("%s must be a string", field)
		}
		return s, nil
	case moneyField:
		d, err := toDecimal(v)
		if err != nil || d.Sign() < 0 {
			return nil, apperr.Validation("%s must be a non-negative number", field)
		}
		return d, nil
	case intField:
		d, err := toDecimal(v)
		if err != nil || !d.IsInteger() || d.Sign() < 0 {
			return nil, apperr.Validation("%s must be a non-negative integer", field)
		}
		return int(d.IntPart()), nil
	}
	return nil, fmt.Errorf("unknown field kind for %s", field)
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case string:
		return decimal.NewFromString(n)
	case decimal.Decimal:
		return n, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported type %T", v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
