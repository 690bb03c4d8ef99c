package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-pi-orders/internal/app"
	"github.com/ariefcatur/go-pi-orders/internal/config"
	kafkax "github.com/ariefcatur/go-pi-orders/internal/kafka"
	"github.com/ariefcatur/go-pi-orders/internal/orders"
	"github.com/ariefcatur/go-pi-orders/internal/reconciler"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const (
	stalledEvery = time.Minute
	stalledAge   = 5 * time.Minute
	stalledLimit = 50
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := app.NewLogger(cfg.LogLevel).With("service", cfg.ServiceName+"-reconciler")
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, cfg.ServiceName+"-reconciler", log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	svc := reconciler.New(
		a.Refunds,
		reconciler.RedisDedup{RDB: a.Redis, Service: "reconciler"},
		cfg.ReconcilerGrace,
		cfg.ReconcilerAttempts,
		log,
	)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ReconcilerGroup, orders.TopicRefundProcessing, cfg.ReconcilerWorkers, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("reconciler consumer started", "group", cfg.ReconcilerGroup,
			"topic", orders.TopicRefundProcessing, "workers", cfg.ReconcilerWorkers)
		return cons.Start(gctx, svc.HandleRefundProcessing)
	})
	g.Go(func() error {
		return svc.RunStalled(gctx, stalledEvery, stalledAge, stalledLimit)
	})

	if err := g.Wait(); err != nil {
		log.Error("consumer exit", "err", err)
	}
	log.Info("reconciler stopped")
}
