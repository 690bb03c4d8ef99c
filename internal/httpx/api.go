package httpx

import (
	"context"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-pi-orders/internal/notice"
	"github.com/ariefcatur/go-pi-orders/internal/orders"
	"github.com/ariefcatur/go-pi-orders/internal/payments"
	"github.com/ariefcatur/go-pi-orders/internal/rates"
	"github.com/ariefcatur/go-pi-orders/internal/refunds"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

// Services the handlers depend on. The concrete types live in their own packages.

type OrderService interface {
	Create(ctx context.Context, o orders.Order) (*orders.Order, error)
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	List(ctx context.Context, f orders.Filter) ([]orders.Order, error)
	UpdateFields(ctx context.Context, orderID string, partial map[string]any) error
	ListProducts(ctx context.Context) ([]orders.Product, error)
	GetProduct(ctx context.Context, productID string) (*orders.Product, error)
	UpdateProduct(ctx context.Context, productID string, partial map[string]any) error
}

type RateService interface {
	Current(ctx context.Context) rates.Quote
	Set(ctx context.Context, rate decimal.Decimal) (prev, cur *rates.Rate, err error)
	History(ctx context.Context, limit int) ([]rates.Rate, error)
}

type PaymentService interface {
	Approve(ctx context.Context, orderID, paymentID string) error
	Complete(ctx context.Context, orderID, paymentID, txid string) (*orders.Order, error)
	Cancel(ctx context.Context, paymentID, orderID string) (payments.Lookup, error)
}

type RefundService interface {
	Create(ctx context.Context, req refunds.CreateRequest) (*refunds.Refund, error)
	Process(ctx context.Context, refundID string) (refunds.ProcessResult, error)
	Recheck(ctx context.Context, refundID string) (refunds.ProcessResult, error)
	Retry(ctx context.Context, refundID string) error
	Cancel(ctx context.Context, refundID, reason string) error
	Sweep(ctx context.Context) ([]refunds.SweepResult, error)
	Status(ctx context.Context, refundID string) (*refunds.Detail, error)
	List(ctx context.Context, status string, limit, offset int) (refunds.Page, error)
}

type NoticeService interface {
	Get(ctx context.Context) notice.Notice
	Set(ctx context.Context, n notice.Notice) (notice.Notice, error)
}

type API struct {
	Orders   OrderService
	Rates    RateService
	Payments PaymentService
	Refunds  RefundService
	Notice   NoticeService
	Log      *slog.Logger

	AdminToken    string
	AdminLimiter  *IPLimiter
	Timeout       time.Duration // semua route kecuali refund
	RefundTimeout time.Duration // process/check menunggu konfirmasi blockchain
}

func (a *API) Register(r chi.Router) {
	if a.Log == nil {
		a.Log = slog.Default()
	}
	if a.Timeout <= 0 {
		a.Timeout = 15 * time.Second
	}
	if a.RefundTimeout <= 0 {
		a.RefundTimeout = 30 * time.Second
	}
	if a.AdminLimiter == nil {
		a.AdminLimiter = NewIPLimiter(5, 10)
	}
	admin := AdminOnly(a.AdminToken, a.Log)

	// public
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(a.Timeout))
		r.Get("/orders", a.listOrders)
		r.Post("/orders", a.createOrder)
		r.Get("/orders/{order_id}", a.getOrder)
		r.Get("/products", a.listProducts)
		r.Get("/products/{id}", a.getProduct)
		r.Get("/exchange-rate", a.currentRate)
		r.Get("/maintenance-notice", a.getNotice)
		r.Post("/pi/approve", a.approvePayment)
		r.Post("/pi/complete", a.completePayment)
		r.Post("/pi/cancel", a.cancelPayment)
		r.Get("/refund/status", a.refundStatus)
	})

	// admin
	r.Group(func(r chi.Router) {
		r.Use(a.AdminLimiter.Middleware, admin, middleware.Timeout(a.Timeout))
		r.Put("/orders/{order_id}", a.updateOrder)
		r.Put("/admin/products/{id}", a.updateProduct)
		r.Post("/admin/exchange-rate", a.adminExchangeRate)
		r.Post("/admin/maintenance-notice", a.setNotice)
		r.Post("/refund/create", a.createRefund)
		r.Post("/refund/retry", a.retryRefund)
		r.Post("/refund/cancel", a.cancelRefund)
		r.Get("/refund/list", a.listRefunds)
	})

	// admin, long-running
	r.Group(func(r chi.Router) {
		r.Use(a.AdminLimiter.Middleware, admin, middleware.Timeout(a.RefundTimeout))
		r.Post("/refund/process", a.processRefund)
		r.Post("/refund/check", a.checkRefund)
		r.Post("/refund/cleanup", a.sweepRefunds)
	})
}
