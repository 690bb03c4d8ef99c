// Package rates tracks the local-currency price of one Pi with append-only history.
package rates

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	"github.com/shopspring/decimal"
)

// Currency is the only supported code.
const Currency = "PI"

const DefaultHistoryLimit = 10

var FallbackRate = decimal.NewFromInt(1)

type Rate struct {
	Currency  string          `json:"currency"`
	Rate      decimal.Decimal `json:"rate"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Quote is what readers get. Fallback is set when no rate has been configured.
type Quote struct {
	Rate      decimal.Decimal `json:"rate"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
	Fallback  bool            `json:"fallback,omitempty"`
}

type Store interface {
	Latest(ctx context.Context, currency string) (*Rate, error)
	Append(ctx context.Context, currency string, rate decimal.Decimal) (*Rate, error)
	History(ctx context.Context, currency string, limit int) ([]Rate, error)
}

// Cache is optional; a nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, currency string) (*Rate, bool)
	Set(ctx context.Context, r Rate)
	Invalidate(ctx context.Context, currency string)
}

type Service struct {
	Store Store
	Cache Cache
	Log   *slog.Logger
}

func NewService(store Store, cache Cache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{Store: store, Cache: cache, Log: log}
}

// Current never fails: a missing or unreadable rate yields the fallback quote.
func (s *Service) Current(ctx context.Context) Quote {
	if s.Cache != nil {
		if r, ok := s.Cache.Get(ctx, Currency); ok {
			return quoteOf(r)
		}
	}
	r, err := s.Store.Latest(ctx, Currency)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.Log.Warn("exchange rate read failed, using fallback", "err", err)
		}
		return Quote{Rate: FallbackRate, Fallback: true}
	}
	if s.Cache != nil {
		s.Cache.Set(ctx, *r)
	}
	return quoteOf(r)
}

func quoteOf(r *Rate) Quote {
	at := r.UpdatedAt
	return Quote{Rate: r.Rate, UpdatedAt: &at}
}

// Set appends a new rate and returns the one it replaced, if any.
func (s *Service) Set(ctx context.Context, rate decimal.Decimal) (prev *Rate, cur *Rate, err error) {
	if rate.Sign() <= 0 {
		return nil, nil, apperr.Validation("Invalid rate value")
	}
	prev, err = s.Store.Latest(ctx, Currency)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, nil, err
	}
	cur, err = s.Store.Append(ctx, Currency, rate)
	if err != nil {
		return nil, nil, err
	}
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, Currency)
	}
	attrs := []any{"rate", cur.Rate.String()}
	if prev != nil {
		attrs = append(attrs, "previous", prev.Rate.String())
	}
	s.Log.Info("exchange rate updated", attrs...)
	return prev, cur, nil
}

func (s *Service) History(ctx context.Context, limit int) ([]Rate, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	out, err := s.Store.History(ctx, Currency, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Rate{}
	}
	return out, nil
}
