package httpx

import (
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-pi-orders/internal/orders"
	"github.com/go-chi/chi/v5"
)

type createOrderResp struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id"`
}

type messageResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.Order
	if err := decode(r, &req); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	o, err := a.Orders.Create(r.Context(), req)
	if err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, createOrderResp{Success: true, OrderID: o.OrderID})
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := orders.Filter{Phone: q.Get("phone")}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))

	list, err := a.Orders.List(r.Context(), f)
	if err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.Orders.Get(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (a *API) updateOrder(w http.ResponseWriter, r *http.Request) {
	var partial map[string]any
	if err := decode(r, &partial); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	if err := a.Orders.UpdateFields(r.Context(), chi.URLParam(r, "order_id"), partial); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResp{Success: true, Message: "Order updated"})
}

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := a.Orders.ListProducts(r.Context())
	if err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	if ps == nil {
		ps = []orders.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (a *API) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := a.Orders.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) updateProduct(w http.ResponseWriter, r *http.Request) {
	var partial map[string]any
	if err := decode(r, &partial); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	if err := a.Orders.UpdateProduct(r.Context(), chi.URLParam(r, "id"), partial); err != nil {
		writeErr(w, r, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResp{Success: true, Message: "Product updated"})
}
