package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	"github.com/ariefcatur/go-pi-orders/internal/rates"
	"github.com/shopspring/decimal"
)

type rateResp struct {
	Success    bool        `json:"success"`
	Rate       json.Number `json:"rate"`
	PiPerLocal json.Number `json:"pi_per_local"`
	UpdatedAt  *time.Time  `json:"updated_at,omitempty"`
	Fallback   bool        `json:"fallback,omitempty"`
}

type rateRow struct {
	Rate       json.Number `json:"rate"`
	PiPerLocal json.Number `json:"pi_per_local"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func number(d decimal.Decimal) json.Number { return json.Number(d.String()) }

func piPerLocal(rate decimal.Decimal) json.Number {
	if rate.Sign() <= 0 {
		return "0"
	}
	return number(decimal.NewFromInt(1).DivRound(rate, 8))
}

// currentRate never fails; the fallback quote is still a 200 but reports success=false.
func (a *API) currentRate(w http.ResponseWriter, r *http.Request) {
	q := a.Rates.Current(r.Context())
	writeJSON(w, http.StatusOK, rateResp{
		Success:    !q.Fallback,
		Rate:       number(q.Rate),
		PiPerLocal: piPerLocal(q.Rate),
		UpdatedAt:  q.UpdatedAt,
		Fallback:   q.Fallback,
	})
}

type adminRateReq struct {
	Action string          `json:"action"`
	Rate   decimal.Decimal `json:"rate"`
	Limit  int             `json:"limit"`
}

type rateUpdatedResp struct {
	Success bool         `json:"success"`
	OldRate *json.Number `json:"old_rate"`
	NewRate json.Number  `json:"new_rate"`
	Message string       `json:"message"`
}

type rateHistoryResp struct {
	Success bool      `json:"success"`
	History []rateRow `json:"history"`
}

func (a *API) adminExchangeRate(w http.ResponseWriter, r *http.Request) {
	var req adminRateReq
	if err := decode(r, &req); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}

	switch req.Action {
	case "update":
		prev, cur, err := a.Rates.Set(r.Context(), req.Rate)
		if err != nil {
			writeErr(w, r, a.Log, err)
			return
		}
		resp := rateUpdatedResp{
			Success: true,
			NewRate: number(cur.Rate),
			Message: "Exchange rate updated to " + cur.Rate.String() + " per Pi",
		}
		if prev != nil {
			old := number(prev.Rate)
			resp.OldRate = &old
		}
		writeJSON(w, http.StatusOK, resp)

	case "history":
		hist, err := a.Rates.History(r.Context(), req.Limit)
		if err != nil {
			writeErr(w, r, a.Log, err)
			return
		}
		rows := make([]rateRow, 0, len(hist))
		for _, h := range hist {
			rows = append(rows, historyRow(h))
		}
		writeJSON(w, http.StatusOK, rateHistoryResp{Success: true, History: rows})

	default:
		writeErr(w, r, a.Log, apperr.Validation("Invalid action"))
	}
}

func historyRow(h rates.Rate) rateRow {
	return rateRow{Rate: number(h.Rate), PiPerLocal: piPerLocal(h.Rate), UpdatedAt: h.UpdatedAt}
}
