package orders

// Order status values set by checkout and the payment flow.
// Admins may also store free text.
const (
	StatusPendingPayment = "Pending Payment"
	StatusPaid           = "Paid"
	StatusCancelled      = "Cancelled"
)

const PaymentMethodPi = "Pi Network"

// creation defaults
const (
	DefaultCountry        = "Malaysia"
	DefaultShippingMethod = "Standard Courier"
	DefaultPaymentMethod  = "FPX"
	DefaultDeliveryETA    = "1-4 days"
	DefaultCourier        = "City-Link"
)
