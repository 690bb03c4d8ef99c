package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-pi-orders/internal/notice"
)

type noticeResp struct {
	Success bool          `json:"success"`
	Notice  notice.Notice `json:"notice"`
}

func (a *API) getNotice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, noticeResp{Success: true, Notice: a.Notice.Get(r.Context())})
}

func (a *API) setNotice(w http.ResponseWriter, r *http.Request) {
	var req notice.Notice
	if err := decode(r, &req); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	n, err := a.Notice.Set(r.Context(), req)
	if err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, noticeResp{Success: true, Notice: n})
}
