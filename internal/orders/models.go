package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Weight    decimal.Decimal `json:"weight"`
	ImageURL  string          `json:"image_url"`
	CreatedAt time.Time       `json:"created_at"`
}

type Order struct {
	OrderID string `json:"order_id"`

	CustomerName string `json:"customer_name"`
	Address      string `json:"address"`
	Postcode     string `json:"postcode"`
	Region       string `json:"region"`
	Country      string `json:"country"`
	Phone        string `json:"phone"`

	ProductName    string          `json:"product_name"`
	Quantity       int             `json:"quantity"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ShippingWeight decimal.Decimal `json:"shipping_weight"`
	ShippingMethod string          `json:"shipping_method"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	DeliveryETA    string          `json:"delivery_eta"`

	PaymentMethod string `json:"payment_method"`
	Status        string `json:"order_status"` // lihat status.go
	CourierName   string `json:"courier_name"`
	TrackingLink  string `json:"tracking_link"`

	ExternalPaymentID string `json:"external_payment_id,omitempty"`
	ExternalTxID      string `json:"external_tx_id,omitempty"`
	UserExternalID    string `json:"user_external_id,omitempty"`

	HasRefund    bool       `json:"has_refund"`
	RefundReason string     `json:"refund_reason,omitempty"`
	RefundedAt   *time.Time `json:"refunded_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Filter narrows List. Phone is optional.
type Filter struct {
	Phone  string
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

func (f Filter) normalized() Filter {
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
