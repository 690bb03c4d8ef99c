package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	"github.com/ariefcatur/go-pi-orders/internal/refunds"
	"github.com/shopspring/decimal"
)

type createRefundReq struct {
	OrderID     string          `json:"order_id"`
	AmountLocal decimal.Decimal `json:"amount_rm"`
	Reason      string          `json:"reason"`
	AdminID     string          `json:"admin_id"`
}

type refundIDReq struct {
	RefundID string `json:"refund_id"`
	Reason   string `json:"reason"`
}

func (req refundIDReq) validate() error {
	if strings.TrimSpace(req.RefundID) == "" {
		return apperr.Validation("Missing refund_id")
	}
	return nil
}

// refundView adds amount_pi as a plain JSON number with 8 decimals.
type refundView struct {
	refunds.Detail
	AmountPi json.Number `json:"amount_pi"`
}

func viewOf(d refunds.Detail) refundView {
	return refundView{Detail: d, AmountPi: json.Number(d.Amount.StringFixed(8))}
}

type createRefundResp struct {
	Success      bool           `json:"success"`
	RefundID     string         `json:"refund_id"`
	OrderID      string         `json:"order_id"`
	AmountPi     json.Number    `json:"amount_pi"`
	AmountLocal  json.Number    `json:"amount_rm"`
	ExchangeRate json.Number    `json:"exchange_rate"`
	Status       refunds.Status `json:"status"`
	Message      string         `json:"message"`
}

func (a *API) createRefund(w http.ResponseWriter, r *http.Request) {
	var req createRefundReq
	if err := decode(r, &req); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	ref, err := a.Refunds.Create(r.Context(), refunds.CreateRequest{
		OrderID:     req.OrderID,
		AmountLocal: req.AmountLocal,
		Reason:      req.Reason,
		AdminID:     req.AdminID,
	})
	if err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, createRefundResp{
		Success:      true,
		RefundID:     ref.RefundID,
		OrderID:      ref.OrderID,
		AmountPi:     json.Number(ref.Amount.StringFixed(8)),
		AmountLocal:  number(ref.AmountLocal),
		ExchangeRate: number(ref.ExchangeRate),
		Status:       ref.Status,
		Message:      "Refund created, process it to send the payment",
	})
}

type processResp struct {
	Success bool `json:"success"`
	refunds.ProcessResult
	Message string `json:"message"`
}

func processMessage(s refunds.Status) string {
	switch s {
	case refunds.StatusCompleted:
		return "Refund processed and completed successfully"
	case refunds.StatusProcessing:
		return "Payment created but not confirmed yet, check again in a few moments"
	default:
		return "Refund is " + string(s)
	}
}

func (a *API) processRefund(w http.ResponseWriter, r *http.Request) {
	a.runRefund(w, r, a.Refunds.Process)
}

func (a *API) checkRefund(w http.ResponseWriter, r *http.Request) {
	a.runRefund(w, r, a.Refunds.Recheck)
}

func (a *API) runRefund(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, string) (refunds.ProcessResult, error)) {
	var req refundIDReq
	if err := decode(r, &req); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	if err := req.validate(); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	res, err := fn(r.Context(), req.RefundID)
	if err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, processResp{Success: true, ProcessResult: res, Message: processMessage(res.Status)})
}

func (a *API) retryRefund(w http.ResponseWriter, r *http.Request) {
	var req refundIDReq
	if err := decode(r, &req); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	if err := req.validate(); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	if err := a.Refunds.Retry(r.Context(), req.RefundID); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResp{Success: true, Message: "Refund " + req.RefundID + " is pending again"})
}

func (a *API) cancelRefund(w http.ResponseWriter, r *http.Request) {
	var req refundIDReq
	if err := decode(r, &req); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	if err := req.validate(); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	if err := a.Refunds.Cancel(r.Context(), req.RefundID, req.Reason); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResp{Success: true, Message: "Refund " + req.RefundID + " cancelled"})
}

type sweepResp struct {
	Success   bool                  `json:"success"`
	Processed int                   `json:"processed"`
	Failed    int                   `json:"failed"`
	Results   []refunds.SweepResult `json:"results"`
}

func (a *API) sweepRefunds(w http.ResponseWriter, r *http.Request) {
	results, err := a.Refunds.Sweep(r.Context())
	if err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	resp := sweepResp{Success: true, Processed: len(results), Results: results}
	if resp.Results == nil {
		resp.Results = []refunds.SweepResult{}
	}
	for _, res := range results {
		if !res.Success {
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type refundStatusResp struct {
	Success bool       `json:"success"`
	Refund  refundView `json:"refund"`
}

func (a *API) refundStatus(w http.ResponseWriter, r *http.Request) {
	d, err := a.Refunds.Status(r.Context(), r.URL.Query().Get("refund_id"))
	if err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, refundStatusResp{Success: true, Refund: viewOf(*d)})
}

type refundListResp struct {
	Success bool         `json:"success"`
	Refunds []refundView `json:"refunds"`
	Total   int          `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

func (a *API) listRefunds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	page, err := a.Refunds.List(r.Context(), q.Get("status"), limit, offset)
	if err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	views := make([]refundView, 0, len(page.Refunds))
	for _, d := range page.Refunds {
		views = append(views, viewOf(d))
	}
	writeJSON(w, http.StatusOK, refundListResp{
		Success: true,
		Refunds: views,
		Total:   page.Total,
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
}
