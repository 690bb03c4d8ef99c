package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("wrapped: %w", NotFound("order %s not found", "o-1"))

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "validation", err: Validation("bad"), want: KindValidation},
		{name: "not_found_wrapped", err: wrapped, want: KindNotFound},
		{name: "conflict", err: Conflict("dup"), want: KindConflict},
		{name: "unauthorized", err: Unauthorized(), want: KindUnauthorized},
		{name: "gateway", err: &GatewayError{Op: "create", StatusCode: 500, Body: "boom"}, want: KindGateway},
		{name: "persistence", err: Persistence("insert order", errors.New("conn reset")), want: KindPersistence},
		{name: "deadline", err: context.DeadlineExceeded, want: KindTimeout},
		{name: "unknown", err: errors.New("unknown"), want: KindInternal},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "validation", err: Validation("x"), want: http.StatusBadRequest},
		{name: "not_found", err: NotFound("x"), want: http.StatusNotFound},
		{name: "conflict", err: Conflict("x"), want: http.StatusConflict},
		{name: "unauthorized", err: Unauthorized(), want: http.StatusForbidden},
		{name: "gateway", err: &GatewayError{Op: "get", StatusCode: 503}, want: http.StatusBadGateway},
		{name: "config", err: Config("missing"), want: http.StatusInternalServerError},
		{name: "unknown", err: errors.New("x"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestSentinels(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, fmt.Errorf("x: %w", Conflict("already")), ErrConflict)
	assert.NotErrorIs(t, Conflict("already"), ErrValidation)
	assert.ErrorIs(t, &GatewayError{Op: "approve", StatusCode: 400}, ErrGateway)
	assert.ErrorIs(t, Persistence("x", context.Canceled), context.Canceled)
}

func TestPublicHidesPersistenceDetail(t *testing.T) {
	t.Parallel()

	err := Persistence("load refund", errors.New("password authentication failed"))
	assert.Equal(t, "load refund", Public(err))
	assert.Equal(t, "datastore error", Hint(err))
	assert.Equal(t, "internal error", Public(errors.New("nil map")))
}
