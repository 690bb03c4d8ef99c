// Package refunds orchestrates app-to-user refund payments and reconciles them
// with the Pi network.
package refunds

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusFailed: true, StatusCancelled: true},
	StatusProcessing: {StatusCompleted: true, StatusFailed: true, StatusCancelled: true},
	StatusFailed:     {StatusPending: true, StatusCancelled: true}, // retry manual oleh admin
	StatusCompleted:  {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	_, ok := validNext[st]
	return st, ok
}

// Terminal statuses are never left.
func (s Status) Terminal() bool { return len(validNext[s]) == 0 }

type Refund struct {
	RefundID          string          `json:"refund_id"`
	OrderID           string          `json:"order_id"`
	UserExternalID    string          `json:"user_external_id"`
	Amount            decimal.Decimal `json:"amount"`
	AmountLocal       decimal.Decimal `json:"amount_local"`
	ExchangeRate      decimal.Decimal `json:"exchange_rate"`
	Memo              string          `json:"memo"`
	Metadata          json.RawMessage `json:"metadata"`
	ExternalPaymentID string          `json:"external_payment_id,omitempty"`
	ExternalTxID      string          `json:"external_tx_id,omitempty"`
	Status            Status          `json:"status"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	RetryCount        int             `json:"retry_count"`
	ProcessedBy       string          `json:"processed_by"`
	CreatedAt         time.Time       `json:"created_at"`
	InitiatedAt       *time.Time      `json:"initiated_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
}

// OrderSummary is the order context shown next to a refund.
type OrderSummary struct {
	CustomerName string          `json:"customer_name"`
	Phone        string          `json:"phone"`
	ProductName  string          `json:"product_name"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	OrderStatus  string          `json:"order_status"`
	PaymentID    string          `json:"order_payment_id,omitempty"`
}

type Detail struct {
	Refund
	Order OrderSummary `json:"order"`
}

// Metadata is attached to the outbound payment so it can be traced back to the order.
type Metadata struct {
	OrderID        string          `json:"orderId"`
	CustomerName   string          `json:"customerName"`
	AdminID        string          `json:"adminId"`
	OriginalAmount decimal.Decimal `json:"originalAmount"`
	Reason         string          `json:"reason"`
	CreatedAt      time.Time       `json:"createdAt"`
	Type           string          `json:"type"`
}

// NewID returns a time-ordered refund id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "REF_" + uuid.NewString()
	}
	return "REF_" + id.String()
}
