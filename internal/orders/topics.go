package orders

const (
	TopicOrderCreated     = "order.created"
	TopicPaymentApproved  = "payment.approved"
	TopicPaymentCompleted = "payment.completed"
	TopicPaymentCancelled = "payment.cancelled"
	TopicRefundCreated    = "refund.created"
	TopicRefundProcessing = "refund.processing"
	TopicRefundCompleted  = "refund.completed"
	TopicRefundFailed     = "refund.failed"
)

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
