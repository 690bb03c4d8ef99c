// Package reconciler settles refunds that were still awaiting blockchain
// confirmation when the request that sent them returned.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-pi-orders/internal/apperr"
	kafkax "github.com/ariefcatur/go-pi-orders/internal/kafka"
	"github.com/ariefcatur/go-pi-orders/internal/orders"
	"github.com/ariefcatur/go-pi-orders/internal/redisx"
	"github.com/ariefcatur/go-pi-orders/internal/refunds"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// Rechecker is satisfied by *refunds.Orchestrator.
type Rechecker interface {
	Recheck(ctx context.Context, refundID string) (refunds.ProcessResult, error)
	RecheckStalled(ctx context.Context, olderThan time.Duration, limit int) ([]refunds.ProcessResult, error)
}

// Dedup remembers which events have been taken by a worker.
type Dedup interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// RedisDedup claims event ids under dedup:{service}:{event_id}.
type RedisDedup struct {
	RDB     redis.Cmdable
	Service string
}

func (d RedisDedup) Claim(ctx context.Context, id string) (bool, error) {
	return redisx.Claim(ctx, d.RDB, d.Service, id)
}

func (d RedisDedup) Release(ctx context.Context, id string) error {
	return redisx.Release(ctx, d.RDB, d.Service, id)
}

type Service struct {
	Refunds Rechecker
	Dedup   Dedup
	Sleeper refunds.Sleeper
	Log     *slog.Logger

	Grace    time.Duration // tunggu sebelum cek pertama
	Interval time.Duration
	Attempts int
}

func New(r Rechecker, d Dedup, grace time.Duration, attempts int, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if attempts <= 0 {
		attempts = 1
	}
	return &Service{
		Refunds:  r,
		Dedup:    d,
		Sleeper:  refunds.TimerSleeper{},
		Log:      log,
		Grace:    grace,
		Interval: grace,
		Attempts: attempts,
	}
}

// HandleRefundProcessing dipasang sebagai handler consumer refund.processing.
// A nil return commits the offset.
func (s *Service) HandleRefundProcessing(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return fmt.Errorf("decode envelope at offset %d: %w", m.Offset, err)
	}
	if env.EventType != orders.EventRefundProcessing {
		return nil
	}

	// 2) dedup via Redis (pakai event_id)
	ok, err := s.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("claim event %s: %w", env.EventID, err)
	}
	if !ok {
		s.Log.Debug("event already claimed", "event_id", env.EventID)
		return nil
	}

	// 3) decode payload
	p, err := kafkax.UnwrapPayload[orders.RefundProcessingPayload](env.Payload)
	if err != nil {
		return fmt.Errorf("event %s: %w", env.EventID, err)
	}

	// 4) recheck sampai refund keluar dari processing
	if err := s.settle(ctx, p.RefundID); err != nil {
		// lepas klaim supaya redelivery bisa diproses worker lain
		if rerr := s.Dedup.Release(context.WithoutCancel(ctx), env.EventID); rerr != nil {
			s.Log.Warn("release claim", "event_id", env.EventID, "err", rerr)
		}
		return err
	}
	return nil
}

func (s *Service) settle(ctx context.Context, refundID string) error {
	wait := s.Grace
	for attempt := 1; attempt <= s.Attempts; attempt++ {
		if err := s.Sleeper.Sleep(ctx, wait); err != nil {
			return err
		}
		wait = s.Interval

		res, err := s.Refunds.Recheck(ctx, refundID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			s.Log.Warn("refund vanished", "refund_id", refundID)
			return nil
		case err != nil:
			s.Log.Warn("recheck refund", "refund_id", refundID, "attempt", attempt, "err", err)
			continue
		case res.Status != refunds.StatusProcessing:
			s.Log.Info("refund settled", "refund_id", refundID, "status", res.Status, "attempt", attempt)
			return nil
		}
	}
	// masih processing, sisanya ditangani RunStalled
	s.Log.Warn("refund still processing after rechecks", "refund_id", refundID, "attempts", s.Attempts)
	return nil
}

// RunStalled rechecks old processing refunds every tick until ctx is done.
// It covers events that were dropped or exhausted their attempts.
func (s *Service) RunStalled(ctx context.Context, every, olderThan time.Duration, limit int) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		res, err := s.Refunds.RecheckStalled(ctx, olderThan, limit)
		if err != nil {
			s.Log.Error("recheck stalled refunds", "err", err)
			continue
		}
		if len(res) > 0 {
			s.Log.Info("stalled refunds rechecked", "count", len(res))
		}
	}
}
