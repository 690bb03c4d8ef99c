package payments

import (
	"github.com/ariefcatur/go-pi-orders/internal/orders"
	"github.com/ariefcatur/go-pi-orders/internal/pinet"
)

// State of an order's payment.
type State string

const (
	StateNone            State = "NONE"
	StatePendingApproval State = "PENDING_APPROVAL"
	StateApproved        State = "APPROVED"
	StateCompleted       State = "COMPLETED"
	StateCancelled       State = "CANCELLED"
)

var validNext = map[State]map[State]bool{
	StateNone:            {StatePendingApproval: true, StateCancelled: true}, // dibatalkan sebelum approve
	StatePendingApproval: {StateApproved: true, StateCancelled: true},
	StateApproved:        {StateCompleted: true, StateCancelled: true},
	StateCompleted:       {},
	StateCancelled:       {StatePendingApproval: true}, // boleh bayar ulang
}

func CanTransition(from, to State) bool {
	return validNext[from][to]
}

// StateOf derives the payment state from the local order and, when known, the upstream snapshot.
func StateOf(o *orders.Order, p *pinet.Payment) State {
	// txid berarti sudah on-chain, apa pun status teksnya
	if o != nil && (o.Status == orders.StatusPaid || o.ExternalTxID != "") {
		return StateCompleted
	}
	if p != nil {
		switch {
		case p.Cancelled():
			return StateCancelled
		case p.Completed():
			return StateCompleted
		case p.Approved():
			return StateApproved
		default:
			return StatePendingApproval
		}
	}
	if o == nil || o.ExternalPaymentID == "" {
		if o != nil && o.Status == orders.StatusCancelled {
			return StateCancelled
		}
		return StateNone
	}
	// payment id hanya disimpan setelah approve
	return StateApproved
}
