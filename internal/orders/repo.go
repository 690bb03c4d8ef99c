package orders

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	"github.com/ariefcatur/go-pi-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `order_id, customer_name, address, postcode, region, country, phone,
	product_name, quantity, total_amount, shipping_weight, shipping_method, shipping_cost,
	delivery_eta, payment_method, order_status, courier_name, tracking_link,
	COALESCE(external_payment_id, ''), COALESCE(external_tx_id, ''), user_external_id,
	has_refund, refund_reason, refunded_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.OrderID, &o.CustomerName, &o.Address, &o.Postcode, &o.Region, &o.Country, &o.Phone,
		&o.ProductName, &o.Quantity, &o.TotalAmount, &o.ShippingWeight, &o.ShippingMethod, &o.ShippingCost,
		&o.DeliveryETA, &o.PaymentMethod, &o.Status, &o.CourierName, &o.TrackingLink,
		&o.ExternalPaymentID, &o.ExternalTxID, &o.UserExternalID,
		&o.HasRefund, &o.RefundReason, &o.RefundedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func orderNotFound(id string) error { return apperr.NotFound("Order not found: %s", id) }

// Insert relies on the primary key; a duplicate order_id is a conflict.
func (r *Repo) Insert(ctx context.Context, o *Order) error {
	err := r.DB.QueryRow(ctx, `
		INSERT INTO orders(order_id, customer_name, address, postcode, region, country, phone,
			product_name, quantity, total_amount, shipping_weight, shipping_method, shipping_cost,
			delivery_eta, payment_method, order_status, courier_name, tracking_link, user_external_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING created_at, updated_at`,
		o.OrderID, o.CustomerName, o.Address, o.Postcode, o.Region, o.Country, o.Phone,
		o.ProductName, o.Quantity, o.TotalAmount, o.ShippingWeight, o.ShippingMethod, o.ShippingCost,
		o.DeliveryETA, o.PaymentMethod, o.Status, o.CourierName, o.TrackingLink, o.UserExternalID,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	return postgres.MapErr("insert order", err, nil,
		apperr.Conflict("Order already exists: %s", o.OrderID))
}

func (r *Repo) Get(ctx context.Context, orderID string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id=$1`, orderID))
	if err != nil {
		return nil, postgres.MapErr("get order", err, orderNotFound(orderID), nil)
	}
	return o, nil
}

func (r *Repo) FindByPaymentID(ctx context.Context, paymentID string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE external_payment_id=$1
		ORDER BY created_at DESC LIMIT 1`, paymentID))
	if err != nil {
		return nil, postgres.MapErr("find order by payment", err,
			apperr.NotFound("No order for payment: %s", paymentID), nil)
	}
	return o, nil
}

func (r *Repo) List(ctx context.Context, f Filter) ([]Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{}
	if f.Phone != "" {
		args = append(args, f.Phone)
		q += ` WHERE phone=$1`
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Persistence("list orders", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, apperr.Persistence("list orders", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list orders", err)
	}
	return out, nil
}

// Update builds the SET clause from already allow-listed column names only.
func (r *Repo) Update(ctx context.Context, orderID string, fields map[string]any) error {
	set, args := setClause(fields)
	args = append(args, orderID)
	ct, err := r.DB.Exec(ctx,
		`UPDATE orders SET `+set+`, updated_at=now() WHERE order_id=$`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return apperr.Persistence("update order", err)
	}
	if ct.RowsAffected() == 0 {
		return orderNotFound(orderID)
	}
	return nil
}

func (r *Repo) AttachPayment(ctx context.Context, orderID, paymentID string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET external_payment_id=$2, updated_at=now()
		WHERE order_id=$1`, orderID, paymentID)
	if err != nil {
		return apperr.Persistence("attach payment", err)
	}
	if ct.RowsAffected() == 0 {
		return orderNotFound(orderID)
	}
	return nil
}

func (r *Repo) MarkPaid(ctx context.Context, orderID, paymentID, txID, method string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET order_status=$2, external_payment_id=$3, external_tx_id=$4, payment_method=$5, updated_at=now()
		WHERE order_id=$1`, orderID, StatusPaid, paymentID, txID, method)
	if err != nil {
		return apperr.Persistence("mark order paid", err)
	}
	if ct.RowsAffected() == 0 {
		return orderNotFound(orderID)
	}
	return nil
}

// ClearPayment hanya berlaku untuk order yang belum Paid dan belum punya txid.
func (r *Repo) ClearPayment(ctx context.Context, orderID, status string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET external_payment_id=NULL, external_tx_id=NULL, order_status=$2, updated_at=now()
		WHERE order_id=$1 AND order_status <> $3 AND external_tx_id IS NULL`, orderID, status, StatusPaid)
	if err != nil {
		return apperr.Persistence("clear payment", err)
	}
	if ct.RowsAffected() == 0 {
		if _, gerr := r.Get(ctx, orderID); gerr != nil {
			return gerr
		}
		return apperr.Conflict("Cannot cancel a completed payment")
	}
	return nil
}

func (r *Repo) MarkRefunded(ctx context.Context, orderID, reason string, at time.Time) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET has_refund=true, refund_reason=$2, refunded_at=$3, updated_at=now()
		WHERE order_id=$1`, orderID, reason, at)
	if err != nil {
		return apperr.Persistence("mark order refunded", err)
	}
	if ct.RowsAffected() == 0 {
		return orderNotFound(orderID)
	}
	return nil
}

const productColumns = `product_id, name, price, stock, weight, image_url, created_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	if err := row.Scan(&p.ProductID, &p.Name, &p.Price, &p.Stock, &p.Weight, &p.ImageURL, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperr.Persistence("list products", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, apperr.Persistence("list products", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list products", err)
	}
	return out, nil
}

func (r *Repo) GetProduct(ctx context.Context, productID string) (*Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE product_id=$1`, productID))
	if err != nil {
		return nil, postgres.MapErr("get product", err, apperr.NotFound("Product not found: %s", productID), nil)
	}
	return p, nil
}

func (r *Repo) ProductByName(ctx context.Context, name string) (*Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE lower(name)=lower($1) LIMIT 1`, strings.TrimSpace(name)))
	if err != nil {
		return nil, postgres.MapErr("product by name", err, apperr.NotFound("Product not found: %s", name), nil)
	}
	return p, nil
}

func (r *Repo) UpdateProduct(ctx context.Context, productID string, fields map[string]any) error {
	set, args := setClause(fields)
	args = append(args, productID)
	ct, err := r.DB.Exec(ctx,
		`UPDATE products SET `+set+` WHERE product_id=$`+fmt.Sprint(len(args)), args...)
	if err != nil {
		return apperr.Persistence("update product", err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("Product not found: %s", productID)
	}
	return nil
}

// setClause renders "col=$1, col=$2" in a stable column order.
func setClause(fields map[string]any) (string, []any) {
	cols := make([]string, 0, len(fields))
	for k := range fields {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	parts := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s=$%d", c, i+1)
		args[i] = fields[c]
	}
	return strings.Join(parts, ", "), args
}
