package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapErr(t *testing.T) {
	t.Parallel()

	notFound := apperr.NotFound("order not found")
	conflict := apperr.Conflict("order already exists")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "nil", err: nil, want: nil},
		{name: "no_rows", err: pgx.ErrNoRows, want: apperr.ErrNotFound},
		{name: "no_rows_wrapped", err: fmt.Errorf("scan: %w", pgx.ErrNoRows), want: apperr.ErrNotFound},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, want: apperr.ErrConflict},
		{name: "fk", err: &pgconn.PgError{Code: "23503"}, want: apperr.ErrPersistence},
		{name: "other", err: errors.New("conn refused"), want: apperr.ErrPersistence},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := MapErr("op", tt.err, notFound, conflict)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestSchemaEmbedded(t *testing.T) {
	t.Parallel()

	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS refunds")
	assert.Contains(t, schema, "refunds_one_live_per_order")
}
