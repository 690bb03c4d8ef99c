// Package app wires the stores, gateway client and services shared by the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/ariefcatur/go-pi-orders/internal/config"
	kafkax "github.com/ariefcatur/go-pi-orders/internal/kafka"
	"github.com/ariefcatur/go-pi-orders/internal/notice"
	"github.com/ariefcatur/go-pi-orders/internal/orders"
	"github.com/ariefcatur/go-pi-orders/internal/payments"
	"github.com/ariefcatur/go-pi-orders/internal/pinet"
	"github.com/ariefcatur/go-pi-orders/internal/postgres"
	"github.com/ariefcatur/go-pi-orders/internal/rates"
	"github.com/ariefcatur/go-pi-orders/internal/redisx"
	"github.com/ariefcatur/go-pi-orders/internal/refunds"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

type App struct {
	Cfg config.Config
	Log *slog.Logger

	DB       *pgxpool.Pool
	Redis    *redis.Client
	Producer *kafkax.Producer

	Orders   *orders.Service
	Rates    *rates.Service
	Gateway  *pinet.Client
	Payments *payments.Controller
	Refunds  *refunds.Orchestrator
	Notice   *notice.Service
}

// Open connects to Postgres and Redis, starts the event producer and builds the services.
// service is the producer name stamped on events.
func Open(ctx context.Context, cfg config.Config, service string, log *slog.Logger) (*App, error) {
	gw, err := pinet.New(cfg.PiAPIKey,
		pinet.WithBaseURL(cfg.PiBaseURL),
		pinet.WithWalletSecret(cfg.AppWalletSecret),
		pinet.WithHTTPClient(&http.Client{Timeout: cfg.PiTimeout}),
	)
	if err != nil {
		return nil, err
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	rdb := redisx.New(cfg.RedisAddr)

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(context.Background()) // berhenti lewat Close, bukan sinyal

	events := orders.Emitter{Publisher: prod, Producer: service}

	a := &App{Cfg: cfg, Log: log, DB: db, Redis: rdb, Producer: prod, Gateway: gw}
	a.Orders = orders.NewService(&orders.Repo{DB: db}, events, log.With("component", "orders"))
	a.Rates = rates.NewService(&rates.Repo{DB: db}, &rates.RedisCache{RDB: rdb, Log: log}, log.With("component", "rates"))
	a.Payments = payments.NewController(a.Orders, gw, events, log.With("component", "payments"))
	a.Refunds = refunds.NewOrchestrator(&refunds.Repo{DB: db}, a.Orders, a.Rates, gw, events, log.With("component", "refunds"))
	a.Refunds.PollInterval = cfg.PollInterval
	a.Refunds.PollAttempts = cfg.PollAttempts
	a.Notice = notice.NewService(&notice.RedisStore{RDB: rdb}, log.With("component", "notice"))
	return a, nil
}

// Close flushes pending events, then releases connections.
func (a *App) Close() {
	a.Producer.Close()      // tutup inbox -> flush & close writer
	a.Producer.WaitClosed() // drain
	_ = a.Redis.Close()
	a.DB.Close()
}
