package orders

import (
	"encoding/json"
	"time"

	kafkax "github.com/ariefcatur/go-pi-orders/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated     = "OrderCreated"
	EventPaymentApproved  = "PaymentApproved"
	EventPaymentCompleted = "PaymentCompleted"
	EventPaymentCancelled = "PaymentCancelled"
	EventRefundCreated    = "RefundCreated"
	EventRefundProcessing = "RefundProcessing"
	EventRefundCompleted  = "RefundCompleted"
	EventRefundFailed     = "RefundFailed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`                  // payload spesifik
}

// ---- Payload tipe per event ----

type OrderCreatedPayload struct {
	OrderID     string          `json:"order_id"`
	Phone       string          `json:"phone,omitempty"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type PaymentApprovedPayload struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
}

type PaymentCompletedPayload struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	TxID      string `json:"txid"`
}

type PaymentCancelledPayload struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	FoundBy   string `json:"found_by"`
}

type RefundCreatedPayload struct {
	RefundID     string          `json:"refund_id"`
	OrderID      string          `json:"order_id"`
	Amount       decimal.Decimal `json:"amount"`
	AmountLocal  decimal.Decimal `json:"amount_local"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
}

type RefundProcessingPayload struct {
	RefundID  string `json:"refund_id"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
}

type RefundCompletedPayload struct {
	RefundID  string `json:"refund_id"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	TxID      string `json:"txid"`
}

type RefundFailedPayload struct {
	RefundID   string `json:"refund_id"`
	OrderID    string `json:"order_id"`
	Reason     string `json:"reason"`
	RetryCount int    `json:"retry_count"`
}

// Publisher is satisfied by kafka.Producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// Emitter wraps payloads in a v1 envelope and publishes them keyed by order id.
// A zero Emitter (nil Publisher) drops events.
type Emitter struct {
	Publisher Publisher
	Producer  string
}

func (e Emitter) Emit(topic, eventType, orderID, traceID string, payload any) {
	if e.Publisher == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Producer,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	e.Publisher.Publish(topic, PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
