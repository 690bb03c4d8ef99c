package refunds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	"github.com/ariefcatur/go-pi-orders/internal/orders"
	"github.com/ariefcatur/go-pi-orders/internal/pinet"
	"github.com/ariefcatur/go-pi-orders/internal/rates"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPollInterval = time.Second
	DefaultPollAttempts = 10
	sweepConcurrency    = 4

	amountScale = 8
	localScale  = 2 // sen, sama dengan NUMERIC(12,2)

	msgCancelledByGateway = "payment was cancelled by gateway"
	msgSweepCancelled     = "Cancelled - no blockchain transaction created"
	msgOrderNotMarked     = "refund completed but the order was not marked refunded; run check again"
)

type Orders interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	MarkRefunded(ctx context.Context, orderID, reason string, at time.Time) error
}

type Rates interface {
	Current(ctx context.Context) rates.Quote
}

// Gateway is the subset of *pinet.Client used for outbound payments.
type Gateway interface {
	CreateOutboundPayment(ctx context.Context, p pinet.OutboundPayment) (string, error)
	GetPayment(ctx context.Context, paymentID string) (*pinet.Payment, error)
	CompletePayment(ctx context.Context, paymentID, txid string) error
	CancelPayment(ctx context.Context, paymentID string) error
	IncompleteOutboundPayments(ctx context.Context) ([]pinet.Payment, error)
}

type Orchestrator struct {
	Store   Store
	Orders  Orders
	Rates   Rates
	Gateway Gateway
	Events  orders.Emitter
	Sleeper Sleeper
	Log     *slog.Logger

	PollInterval time.Duration
	PollAttempts int
}

func NewOrchestrator(store Store, o Orders, r Rates, gw Gateway, events orders.Emitter, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		Store:        store,
		Orders:       o,
		Rates:        r,
		Gateway:      gw,
		Events:       events,
		Sleeper:      TimerSleeper{},
		Log:          log,
		PollInterval: DefaultPollInterval,
		PollAttempts: DefaultPollAttempts,
	}
}

type CreateRequest struct {
	OrderID     string
	AmountLocal decimal.Decimal
	Reason      string
	AdminID     string
}

// Create records a pending refund. The amount in Pi is fixed at creation using the current rate.
func (s *Orchestrator) Create(ctx context.Context, req CreateRequest) (*Refund, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, apperr.Validation("Missing required fields: order_id")
	}
	o, err := s.Orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if o.UserExternalID == "" {
		return nil, apperr.Validation("Order %s has no Pi user id, cannot refund", o.OrderID)
	}
	if req.AmountLocal.Sign() <= 0 {
		return nil, apperr.Validation("Refund amount must be greater than 0")
	}
	if !req.AmountLocal.Equal(req.AmountLocal.Round(localScale)) {
		return nil, apperr.Validation("Refund amount %s has more than %d decimal places", req.AmountLocal.String(), localScale)
	}
	if req.AmountLocal.GreaterThan(o.TotalAmount) {
		return nil, apperr.Validation("Refund amount %s exceeds order total %s",
			req.AmountLocal.StringFixed(2), o.TotalAmount.StringFixed(2))
	}
	if live, err := s.Store.LiveForOrder(ctx, o.OrderID); err == nil {
		return nil, apperr.Conflict("Refund %s already exists for order %s (%s)", live.RefundID, o.OrderID, live.Status)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	q := s.Rates.Current(ctx)
	if q.Fallback {
		s.Log.Warn("no exchange rate configured, using fallback", "order_id", o.OrderID, "rate", q.Rate.String())
	}
	amount := req.AmountLocal.DivRound(q.Rate, amountScale)
	if amount.Sign() <= 0 {
		return nil, apperr.Validation("Refund amount is too small at rate %s", q.Rate.String())
	}

	now := time.Now().UTC()
	meta, err := json.Marshal(Metadata{
		OrderID:        o.OrderID,
		CustomerName:   o.CustomerName,
		AdminID:        req.AdminID,
		OriginalAmount: req.AmountLocal,
		Reason:         req.Reason,
		CreatedAt:      now,
		Type:           "refund",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal refund metadata: %w", err)
	}
	memo := strings.TrimSpace(req.Reason)
	if memo == "" {
		memo = "Refund for order " + o.OrderID
	}
	processedBy := req.AdminID
	if processedBy == "" {
		processedBy = "admin"
	}

	r := &Refund{
		RefundID:       NewID(),
		OrderID:        o.OrderID,
		UserExternalID: o.UserExternalID,
		Amount:         amount,
		AmountLocal:    req.AmountLocal,
		ExchangeRate:   q.Rate,
		Memo:           memo,
		Metadata:       meta,
		Status:         StatusPending,
		ProcessedBy:    processedBy,
		CreatedAt:      now,
	}
	if err := s.Store.Insert(ctx, r); err != nil {
		return nil, err
	}
	s.Log.Info("refund created", "refund_id", r.RefundID, "order_id", r.OrderID,
		"amount_pi", r.Amount.StringFixed(amountScale), "amount_local", r.AmountLocal.String(), "rate", q.Rate.String())
	s.Events.Emit(orders.TopicRefundCreated, orders.EventRefundCreated, r.OrderID, "", orders.RefundCreatedPayload{
		RefundID:     r.RefundID,
		OrderID:      r.OrderID,
		Amount:       r.Amount,
		AmountLocal:  r.AmountLocal,
		ExchangeRate: r.ExchangeRate,
	})
	return r, nil
}

// ProcessResult reports where a refund stands after Process or Recheck.
// StatusProcessing means "not confirmed yet, check again later".
type ProcessResult struct {
	RefundID  string `json:"refund_id"`
	Status    Status `json:"status"`
	PaymentID string `json:"payment_id,omitempty"`
	TxID      string `json:"txid,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

// Process sends the outbound payment for a pending refund and waits, bounded by
// PollAttempts and ctx, for blockchain confirmation.
func (s *Orchestrator) Process(ctx context.Context, refundID string) (ProcessResult, error) {
	r, err := s.Store.Get(ctx, refundID)
	if err != nil {
		return ProcessResult{}, err
	}
	switch r.Status {
	case StatusPending:
	case StatusCompleted:
		return ProcessResult{}, apperr.Conflict("Refund %s already completed", refundID)
	default:
		return ProcessResult{}, apperr.Conflict("Refund %s is %s, expected pending", refundID, r.Status)
	}

	// klaim dulu supaya dua request paralel tidak sama-sama kirim payment
	if err := s.Store.Transition(ctx, refundID, []Status{StatusPending},
		Update{To: StatusProcessing, StampInitiated: true}); err != nil {
		return ProcessResult{}, err
	}
	r.Status = StatusProcessing

	pid, err := s.Gateway.CreateOutboundPayment(ctx, pinet.OutboundPayment{
		Amount:   r.Amount,
		Memo:     r.Memo,
		Metadata: r.Metadata,
		UID:      r.UserExternalID,
	})
	if err != nil {
		s.fail(ctx, r, "Pi API create error: "+err.Error())
		return ProcessResult{}, err
	}
	r.ExternalPaymentID = pid
	if err := s.Store.Transition(ctx, refundID, []Status{StatusProcessing},
		Update{To: StatusProcessing, PaymentID: &pid}); err != nil {
		s.Log.Error("record payment id failed", "refund_id", refundID, "payment_id", pid, "err", err)
		return ProcessResult{}, err
	}
	s.Log.Info("refund payment created", "refund_id", refundID, "payment_id", pid)

	p, outcome := s.poll(ctx, pid)
	switch outcome {
	case pollConfirmed:
		return s.finalize(ctx, r, p)
	case pollCancelled:
		s.fail(ctx, r, msgCancelledByGateway)
		return ProcessResult{}, &apperr.GatewayError{Op: "poll", Body: msgCancelledByGateway}
	default:
		return s.stillProcessing(r), nil
	}
}

type pollOutcome int

const (
	pollExhausted pollOutcome = iota
	pollConfirmed
	pollCancelled
)

func (s *Orchestrator) poll(ctx context.Context, paymentID string) (*pinet.Payment, pollOutcome) {
	for attempt := 1; attempt <= s.PollAttempts; attempt++ {
		if err := s.Sleeper.Sleep(ctx, s.PollInterval); err != nil {
			s.Log.Info("poll interrupted", "payment_id", paymentID, "attempt", attempt, "err", err)
			return nil, pollExhausted
		}
		p, err := s.Gateway.GetPayment(ctx, paymentID)
		if err != nil {
			s.Log.Warn("poll status failed", "payment_id", paymentID, "attempt", attempt, "err", err)
			continue
		}
		switch {
		case p.Cancelled():
			return p, pollCancelled
		case p.Confirmed():
			return p, pollConfirmed
		}
	}
	return nil, pollExhausted
}

func (s *Orchestrator) stillProcessing(r *Refund) ProcessResult {
	s.Log.Info("refund awaiting confirmation", "refund_id", r.RefundID, "payment_id", r.ExternalPaymentID)
	s.Events.Emit(orders.TopicRefundProcessing, orders.EventRefundProcessing, r.OrderID, "", orders.RefundProcessingPayload{
		RefundID:  r.RefundID,
		OrderID:   r.OrderID,
		PaymentID: r.ExternalPaymentID,
	})
	return ProcessResult{RefundID: r.RefundID, Status: StatusProcessing, PaymentID: r.ExternalPaymentID}
}

// finalize completes the payment upstream when needed and records the refund as done.
// A failed complete call is left for the sweep.
func (s *Orchestrator) finalize(ctx context.Context, r *Refund, p *pinet.Payment) (ProcessResult, error) {
	ctx = context.WithoutCancel(ctx)
	txid := p.TxID()
	if !p.Completed() {
		if err := s.Gateway.CompletePayment(ctx, r.ExternalPaymentID, txid); err != nil {
			s.Log.Error("complete refund payment failed, sweep will retry", "refund_id", r.RefundID,
				"payment_id", r.ExternalPaymentID, "err", err)
		}
	}
	if err := s.Store.Transition(ctx, r.RefundID, []Status{StatusProcessing},
		Update{To: StatusCompleted, TxID: &txid, StampCompleted: true}); err != nil {
		return ProcessResult{}, err
	}
	res := ProcessResult{RefundID: r.RefundID, Status: StatusCompleted, PaymentID: r.ExternalPaymentID, TxID: txid}
	if err := s.Orders.MarkRefunded(ctx, r.OrderID, r.Memo, time.Now().UTC()); err != nil {
		s.Log.Error("mark order refunded failed", "order_id", r.OrderID, "refund_id", r.RefundID, "err", err)
		res.Warning = msgOrderNotMarked
	}
	s.Log.Info("refund completed", "refund_id", r.RefundID, "payment_id", r.ExternalPaymentID, "txid", txid)
	s.Events.Emit(orders.TopicRefundCompleted, orders.EventRefundCompleted, r.OrderID, "", orders.RefundCompletedPayload{
		RefundID:  r.RefundID,
		OrderID:   r.OrderID,
		PaymentID: r.ExternalPaymentID,
		TxID:      txid,
	})
	return res, nil
}

// repairOrderFlag marks the order of a completed refund when an earlier attempt
// could not.
func (s *Orchestrator) repairOrderFlag(ctx context.Context, r *Refund) error {
	o, err := s.Orders.Get(ctx, r.OrderID)
	if err != nil {
		return err
	}
	if o.HasRefund {
		return nil
	}
	at := time.Now().UTC()
	if r.CompletedAt != nil {
		at = *r.CompletedAt
	}
	if err := s.Orders.MarkRefunded(ctx, r.OrderID, r.Memo, at); err != nil {
		return err
	}
	s.Log.Info("order refund flag repaired", "order_id", r.OrderID, "refund_id", r.RefundID)
	return nil
}

// fail annotates the refund; it never goes back to pending on its own.
func (s *Orchestrator) fail(ctx context.Context, r *Refund, msg string) {
	ctx = context.WithoutCancel(ctx)
	err := s.Store.Transition(ctx, r.RefundID, []Status{StatusPending, StatusProcessing},
		Update{To: StatusFailed, ErrorMessage: &msg, IncRetry: true})
	if err != nil {
		s.Log.Error("mark refund failed", "refund_id", r.RefundID, "err", err)
		return
	}
	s.Log.Warn("refund failed", "refund_id", r.RefundID, "reason", msg)
	s.Events.Emit(orders.TopicRefundFailed, orders.EventRefundFailed, r.OrderID, "", orders.RefundFailedPayload{
		RefundID:   r.RefundID,
		OrderID:    r.OrderID,
		Reason:     msg,
		RetryCount: r.RetryCount + 1,
	})
}

// Recheck reads the upstream payment once for a processing refund and settles it
// if the outcome is known. A completed refund whose order lacks the refund flag gets
// it set again. Other statuses are reported as they are.
func (s *Orchestrator) Recheck(ctx context.Context, refundID string) (ProcessResult, error) {
	r, err := s.Store.Get(ctx, refundID)
	if err != nil {
		return ProcessResult{}, err
	}
	res := ProcessResult{RefundID: r.RefundID, Status: r.Status, PaymentID: r.ExternalPaymentID, TxID: r.ExternalTxID}
	if r.Status == StatusCompleted {
		if err := s.repairOrderFlag(ctx, r); err != nil {
			s.Log.Error("repair order refund flag", "order_id", r.OrderID, "refund_id", r.RefundID, "err", err)
			res.Warning = msgOrderNotMarked
		}
		return res, nil
	}
	if r.Status != StatusProcessing {
		return res, nil
	}
	if r.ExternalPaymentID == "" {
		s.fail(ctx, r, "no payment identifier recorded")
		res.Status = StatusFailed
		return res, nil
	}
	p, err := s.Gateway.GetPayment(ctx, r.ExternalPaymentID)
	if err != nil {
		return ProcessResult{}, err
	}
	switch {
	case p.Cancelled():
		s.fail(ctx, r, msgCancelledByGateway)
		res.Status = StatusFailed
		return res, nil
	case p.Confirmed():
		return s.finalize(ctx, r, p)
	}
	return res, nil
}

// RecheckStalled rechecks processing refunds initiated more than olderThan ago.
func (s *Orchestrator) RecheckStalled(ctx context.Context, olderThan time.Duration, limit int) ([]ProcessResult, error) {
	stalled, err := s.Store.Stalled(ctx, time.Now().Add(-olderThan), limit)
	if err != nil {
		return nil, err
	}
	out := make([]ProcessResult, 0, len(stalled))
	for _, r := range stalled {
		res, err := s.Recheck(ctx, r.RefundID)
		if err != nil {
			s.Log.Warn("recheck stalled refund", "refund_id", r.RefundID, "err", err)
			res = ProcessResult{RefundID: r.RefundID, Status: r.Status, PaymentID: r.ExternalPaymentID}
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *Orchestrator) Status(ctx context.Context, refundID string) (*Detail, error) {
	if strings.TrimSpace(refundID) == "" {
		return nil, apperr.Validation("Missing refund_id")
	}
	return s.Store.Detail(ctx, refundID)
}

// Page is one page of refunds plus the total matching the filter.
type Page struct {
	Refunds []Detail `json:"refunds"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// List accepts "all" or "" for every status.
func (s *Orchestrator) List(ctx context.Context, status string, limit, offset int) (Page, error) {
	f := ListFilter{Limit: limit, Offset: offset}
	if status != "" && status != "all" {
		st, ok := ParseStatus(status)
		if !ok {
			return Page{}, apperr.Validation("Invalid status filter: %s", status)
		}
		f.Status = st
	}
	f = f.normalized()
	items, total, err := s.Store.List(ctx, f)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []Detail{}
	}
	return Page{Refunds: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Retry puts a failed refund back in the queue. The error history and retry count are kept.
func (s *Orchestrator) Retry(ctx context.Context, refundID string) error {
	if err := s.Store.Transition(ctx, refundID, []Status{StatusFailed}, Update{To: StatusPending}); err != nil {
		return err
	}
	s.Log.Info("refund re-queued", "refund_id", refundID)
	return nil
}

// Cancel abandons a refund that has not been sent, or that failed.
func (s *Orchestrator) Cancel(ctx context.Context, refundID, reason string) error {
	msg := "Cancelled by admin"
	if reason = strings.TrimSpace(reason); reason != "" {
		msg += ": " + reason
	}
	if err := s.Store.Transition(ctx, refundID, []Status{StatusPending, StatusFailed},
		Update{To: StatusCancelled, ErrorMessage: &msg}); err != nil {
		return err
	}
	s.Log.Info("refund cancelled", "refund_id", refundID)
	return nil
}

type SweepAction string

const (
	SweepCompleted SweepAction = "completed"
	SweepCancelled SweepAction = "cancelled"
	SweepSkipped   SweepAction = "skipped"
)

type SweepResult struct {
	PaymentID string      `json:"payment_id"`
	RefundID  string      `json:"refund_id,omitempty"`
	Action    SweepAction `json:"action"`
	TxID      string      `json:"txid,omitempty"`
	Success   bool        `json:"success"`
	Error     string      `json:"error,omitempty"`
}

// Sweep settles every incomplete outbound payment upstream: payments with a
// transaction are completed, the rest are cancelled. One failure never stops the others.
func (s *Orchestrator) Sweep(ctx context.Context) ([]SweepResult, error) {
	pending, err := s.Gateway.IncompleteOutboundPayments(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]SweepResult, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for i := range pending {
		i, p := i, pending[i]
		g.Go(func() error {
			results[i] = s.sweepOne(gctx, &p)
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	s.Log.Info("sweep finished", "payments", len(results), "failed", failed)
	return results, nil
}

func (s *Orchestrator) sweepOne(ctx context.Context, p *pinet.Payment) SweepResult {
	res := SweepResult{PaymentID: p.Identifier, TxID: p.TxID()}
	local, err := s.Store.FindByPaymentID(ctx, p.Identifier)
	switch {
	case err == nil:
		res.RefundID = local.RefundID
	case !errors.Is(err, apperr.ErrNotFound):
		s.Log.Warn("sweep refund lookup", "payment_id", p.Identifier, "err", err)
	}

	switch {
	case res.TxID != "" && !p.Completed():
		res.Action = SweepCompleted
		if err := s.Gateway.CompletePayment(ctx, p.Identifier, res.TxID); err != nil {
			res.Error = err.Error()
			return res
		}
		if local != nil && !local.Status.Terminal() {
			txid := res.TxID
			if err := s.Store.Transition(ctx, local.RefundID, []Status{StatusPending, StatusProcessing, StatusFailed},
				Update{To: StatusCompleted, TxID: &txid, StampCompleted: true}); err != nil {
				res.Error = err.Error()
				return res
			}
			if err := s.Orders.MarkRefunded(ctx, local.OrderID, local.Memo, time.Now().UTC()); err != nil {
				s.Log.Error("mark order refunded failed", "order_id", local.OrderID, "err", err)
				res.Error = msgOrderNotMarked
				return res
			}
		}
	case res.TxID == "":
		res.Action = SweepCancelled
		if err := s.Gateway.CancelPayment(ctx, p.Identifier); err != nil {
			res.Error = err.Error()
			return res
		}
		if local != nil && !local.Status.Terminal() {
			msg := msgSweepCancelled
			if err := s.Store.Transition(ctx, local.RefundID, []Status{StatusPending, StatusProcessing, StatusFailed},
				Update{To: StatusCancelled, ErrorMessage: &msg}); err != nil {
				res.Error = err.Error()
				return res
			}
		}
	default:
		res.Action = SweepSkipped
	}
	res.Success = true
	s.Log.Info("sweep payment", "payment_id", p.Identifier, "refund_id", res.RefundID, "action", res.Action)
	return res
}
