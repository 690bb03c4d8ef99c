package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ariefcatur/go-pi-orders/internal/app"
	"github.com/ariefcatur/go-pi-orders/internal/config"
	"github.com/ariefcatur/go-pi-orders/internal/postgres"
	"github.com/ariefcatur/go-pi-orders/internal/rates"
	"github.com/ariefcatur/go-pi-orders/internal/redisx"
	"github.com/jackc/pgx/v5/pgxpool"
)

func cliLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
}

// withDB is for commands that only touch Postgres (no gateway credentials needed).
func withDB(ctx context.Context, fn func(cfg config.Config, db *pgxpool.Pool, log *slog.Logger) error) error {
	cfg := config.Load()
	log := cliLogger(cfg)
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()
	return fn(cfg, db, log)
}

// rateService shares the API's Redis cache so Set invalidates it. Redis errors only log.
func rateService(cfg config.Config, db *pgxpool.Pool, log *slog.Logger) (*rates.Service, func()) {
	rdb := redisx.New(cfg.RedisAddr)
	svc := rates.NewService(&rates.Repo{DB: db}, &rates.RedisCache{RDB: rdb, Log: log}, log)
	return svc, func() { _ = rdb.Close() }
}

func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := cliLogger(cfg)
	a, err := app.Open(ctx, cfg, cfg.ServiceName+"-cli", log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
