package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-pi-orders/internal/orders"
	"github.com/ariefcatur/go-pi-orders/internal/payments"
)

type paymentReq struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	TxID      string `json:"txid"`
}

type paymentResp struct {
	Success     bool             `json:"success"`
	Message     string           `json:"message"`
	OrderID     string           `json:"order_id,omitempty"`
	PaymentID   string           `json:"payment_id"`
	TxID        string           `json:"txid,omitempty"`
	OrderStatus string           `json:"order_status,omitempty"`
	FoundBy     payments.FoundBy `json:"found_by,omitempty"`
	Order       *orders.Order    `json:"order,omitempty"`
}

func (a *API) approvePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentReq
	if err := decode(r, &req); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	if err := a.Payments.Approve(r.Context(), req.OrderID, req.PaymentID); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResp{
		Success:   true,
		Message:   "Payment approved successfully",
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
	})
}

func (a *API) completePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentReq
	if err := decode(r, &req); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	o, err := a.Payments.Complete(r.Context(), req.OrderID, req.PaymentID, req.TxID)
	if err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResp{
		Success:     true,
		Message:     "Payment completed successfully",
		OrderID:     o.OrderID,
		PaymentID:   req.PaymentID,
		TxID:        req.TxID,
		OrderStatus: o.Status,
		Order:       o,
	})
}

func (a *API) cancelPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentReq
	if err := decode(r, &req); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	l, err := a.Payments.Cancel(r.Context(), req.PaymentID, req.OrderID)
	if err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	resp := paymentResp{
		Success:   true,
		Message:   "Payment cancelled successfully",
		PaymentID: req.PaymentID,
		FoundBy:   l.FoundBy,
	}
	if l.Order != nil {
		resp.OrderID = l.Order.OrderID
	} else {
		resp.Message = "Payment not linked to any order, nothing to cancel"
	}
	writeJSON(w, http.StatusOK, resp)
}
