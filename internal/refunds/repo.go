package refunds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	"github.com/ariefcatur/go-pi-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const refundColumns = `r.refund_id, r.order_id, r.user_external_id, r.amount, r.amount_local, r.exchange_rate,
	r.memo, r.metadata, COALESCE(r.external_payment_id, ''), COALESCE(r.external_tx_id, ''),
	r.status, r.error_message, r.retry_count, r.processed_by, r.created_at, r.initiated_at, r.completed_at`

const summaryColumns = `o.customer_name, o.phone, o.product_name, o.total_amount, o.order_status,
	COALESCE(o.external_payment_id, '')`

func scanRefund(row pgx.Row, extra ...any) (*Refund, error) {
	var r Refund
	var status string
	dest := []any{&r.RefundID, &r.OrderID, &r.UserExternalID, &r.Amount, &r.AmountLocal, &r.ExchangeRate,
		&r.Memo, &r.Metadata, &r.ExternalPaymentID, &r.ExternalTxID,
		&status, &r.ErrorMessage, &r.RetryCount, &r.ProcessedBy, &r.CreatedAt, &r.InitiatedAt, &r.CompletedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	r.Status = Status(status)
	return &r, nil
}

func scanDetail(row pgx.Row) (*Detail, error) {
	var d Detail
	s := &d.Order
	r, err := scanRefund(row, &s.CustomerName, &s.Phone, &s.ProductName, &s.TotalAmount, &s.OrderStatus, &s.PaymentID)
	if err != nil {
		return nil, err
	}
	d.Refund = *r
	return &d, nil
}

func refundNotFound(id string) error { return apperr.NotFound("Refund not found: %s", id) }

func (r *Repo) Insert(ctx context.Context, x *Refund) error {
	err := r.DB.QueryRow(ctx, `
		INSERT INTO refunds(refund_id, order_id, user_external_id, amount, amount_local, exchange_rate,
			memo, metadata, status, processed_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`,
		x.RefundID, x.OrderID, x.UserExternalID, x.Amount, x.AmountLocal, x.ExchangeRate,
		x.Memo, x.Metadata, string(x.Status), x.ProcessedBy,
	).Scan(&x.CreatedAt)
	return postgres.MapErr("insert refund", err, nil,
		apperr.Conflict("Refund already exists for order %s", x.OrderID))
}

func (r *Repo) Get(ctx context.Context, refundID string) (*Refund, error) {
	x, err := scanRefund(r.DB.QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds r WHERE r.refund_id=$1`, refundID))
	if err != nil {
		return nil, postgres.MapErr("get refund", err, refundNotFound(refundID), nil)
	}
	return x, nil
}

func (r *Repo) LiveForOrder(ctx context.Context, orderID string) (*Refund, error) {
	x, err := scanRefund(r.DB.QueryRow(ctx, `
		SELECT `+refundColumns+` FROM refunds r
		WHERE r.order_id=$1 AND r.status <> 'cancelled'
		LIMIT 1`, orderID))
	if err != nil {
		return nil, postgres.MapErr("live refund for order", err,
			apperr.NotFound("No live refund for order %s", orderID), nil)
	}
	return x, nil
}

func (r *Repo) FindByPaymentID(ctx context.Context, paymentID string) (*Refund, error) {
	x, err := scanRefund(r.DB.QueryRow(ctx, `
		SELECT `+refundColumns+` FROM refunds r
		WHERE r.external_payment_id=$1
		ORDER BY r.created_at DESC LIMIT 1`, paymentID))
	if err != nil {
		return nil, postgres.MapErr("refund by payment", err,
			apperr.NotFound("No refund for payment %s", paymentID), nil)
	}
	return x, nil
}

// Transition is a single conditional UPDATE; it is the only way a refund changes status.
func (r *Repo) Transition(ctx context.Context, refundID string, from []Status, u Update) error {
	args := []any{refundID, string(u.To)}
	sets := []string{"status=$2"}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if u.PaymentID != nil {
		add("external_payment_id", *u.PaymentID)
	}
	if u.TxID != nil {
		add("external_tx_id", *u.TxID)
	}
	if u.ErrorMessage != nil {
		add("error_message", *u.ErrorMessage)
	}
	if u.IncRetry {
		sets = append(sets, "retry_count=retry_count+1")
	}
	if u.StampInitiated {
		sets = append(sets, "initiated_at=now()")
	}
	if u.StampCompleted {
		sets = append(sets, "completed_at=now()")
	}
	froms := make([]string, len(from))
	for i, s := range from {
		froms[i] = string(s)
	}
	args = append(args, froms)

	q := fmt.Sprintf(`UPDATE refunds SET %s WHERE refund_id=$1 AND status = ANY($%d)`,
		strings.Join(sets, ", "), len(args))
	ct, err := r.DB.Exec(ctx, q, args...)
	if err != nil {
		return apperr.Persistence("transition refund", err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	cur, err := r.Get(ctx, refundID)
	if err != nil {
		return err
	}
	return apperr.Conflict("Refund %s is %s, cannot move to %s", refundID, cur.Status, u.To)
}

func (r *Repo) Detail(ctx context.Context, refundID string) (*Detail, error) {
	d, err := scanDetail(r.DB.QueryRow(ctx, `
		SELECT `+refundColumns+`, `+summaryColumns+`
		FROM refunds r JOIN orders o ON o.order_id = r.order_id
		WHERE r.refund_id=$1`, refundID))
	if err != nil {
		return nil, postgres.MapErr("refund detail", err, refundNotFound(refundID), nil)
	}
	return d, nil
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Detail, int, error) {
	where := ""
	args := []any{}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = ` WHERE r.status=$1`
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT count(*) FROM refunds r`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Persistence("count refunds", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.DB.Query(ctx, `
		SELECT `+refundColumns+`, `+summaryColumns+`
		FROM refunds r JOIN orders o ON o.order_id = r.order_id`+where+
		fmt.Sprintf(` ORDER BY r.created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, apperr.Persistence("list refunds", err)
	}
	defer rows.Close()

	var out []Detail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, 0, apperr.Persistence("list refunds", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Persistence("list refunds", err)
	}
	return out, total, nil
}

func (r *Repo) Stalled(ctx context.Context, before time.Time, limit int) ([]Refund, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+refundColumns+` FROM refunds r
		WHERE r.status='processing' AND r.initiated_at < $1
		ORDER BY r.initiated_at LIMIT $2`, before, limit)
	if err != nil {
		return nil, apperr.Persistence("stalled refunds", err)
	}
	defer rows.Close()

	var out []Refund
	for rows.Next() {
		x, err := scanRefund(rows)
		if err != nil {
			return nil, apperr.Persistence("stalled refunds", err)
		}
		out = append(out, *x)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("stalled refunds", err)
	}
	return out, nil
}
