package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-pi-orders/internal/app"
	"github.com/ariefcatur/go-pi-orders/internal/config"
	"github.com/ariefcatur/go-pi-orders/internal/httpx"
	"github.com/ariefcatur/go-pi-orders/internal/postgres"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := app.NewLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, cfg.ServiceName, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := postgres.Migrate(ctx, a.DB); err != nil {
		log.Error("migrate", "err", err)
		os.Exit(1)
	}

	router := httpx.NewRouter(cfg.AllowedOrigins)
	api := &httpx.API{
		Orders:        a.Orders,
		Rates:         a.Rates,
		Payments:      a.Payments,
		Refunds:       a.Refunds,
		Notice:        a.Notice,
		Log:           log.With("component", "http"),
		AdminToken:    cfg.AdminToken,
		AdminLimiter:  httpx.NewIPLimiter(cfg.AdminRatePerSec, cfg.AdminRateBurst),
		RefundTimeout: cfg.RefundTimeout,
	}
	api.Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		ctx2, cancel := context.WithTimeout(context.Background(), cfg.RefundTimeout+5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx2)
	})
	if err := g.Wait(); err != nil {
		log.Error("server exit", "err", err)
	}
}
