package rates

import (
	"context"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	"github.com/ariefcatur/go-pi-orders/internal/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Latest(ctx context.Context, currency string) (*Rate, error) {
	var out Rate
	err := r.DB.QueryRow(ctx, `
		SELECT currency, rate, updated_at FROM exchange_rates
		WHERE currency=$1
		ORDER BY updated_at DESC, id DESC LIMIT 1`, currency).
		Scan(&out.Currency, &out.Rate, &out.UpdatedAt)
	if err != nil {
		return nil, postgres.MapErr("latest rate", err, apperr.NotFound("no exchange rate for %s", currency), nil)
	}
	return &out, nil
}

// Append never overwrites; history is kept.
func (r *Repo) Append(ctx context.Context, currency string, rate decimal.Decimal) (*Rate, error) {
	out := Rate{Currency: currency, Rate: rate}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO exchange_rates(currency, rate) VALUES ($1, $2)
		RETURNING updated_at`, currency, rate).Scan(&out.UpdatedAt)
	if err != nil {
		return nil, apperr.Persistence("append rate", err)
	}
	return &out, nil
}

func (r *Repo) History(ctx context.Context, currency string, limit int) ([]Rate, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT currency, rate, updated_at FROM exchange_rates
		WHERE currency=$1
		ORDER BY updated_at DESC, id DESC LIMIT $2`, currency, limit)
	if err != nil {
		return nil, apperr.Persistence("rate history", err)
	}
	defer rows.Close()

	var out []Rate
	for rows.Next() {
		var x Rate
		if err := rows.Scan(&x.Currency, &x.Rate, &x.UpdatedAt); err != nil {
			return nil, apperr.Persistence("rate history", err)
		}
		out = append(out, x)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("rate history", err)
	}
	return out, nil
}
