package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	DefaultAttempts = 3
	DefaultBackoff  = 500 * time.Millisecond
)

// Consumer fans messages out to a worker pool and commits each one after its handler.
// Offsets are committed per partition, so a message that still fails after Attempts
// is logged and committed; the owner of the topic needs a sweep for those.
type Consumer struct {
	r       reader
	workers int
	log     *slog.Logger

	Attempts int
	Backoff  time.Duration // dikali nomor percobaan
}

func NewConsumer(brokers []string, group, topic string, workers int, log *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r reader, workers int, log *slog.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{r: r, workers: workers, log: log, Attempts: DefaultAttempts, Backoff: DefaultBackoff}
}

// Start blocks until ctx is done or the reader fails. Workers finish their current
// message before the reader is closed.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				c.handle(ctx, h, m)
			}
		}()
	}
	defer wg.Wait()
	defer close(jobs)

	// dispatcher loop
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			// kecilkan noise saat shutdown
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) {
	attempts := max(c.Attempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = h(ctx, m); err == nil {
			break
		}
		if ctx.Err() != nil {
			// shutdown: jangan commit, message dibaca ulang setelah restart
			return
		}
		c.log.Warn("handler failed", "topic", m.Topic, "partition", m.Partition,
			"offset", m.Offset, "attempt", attempt, "err", err)
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(c.Backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return
		}
	}
	if err != nil {
		c.log.Error("message skipped after retries", "topic", m.Topic, "partition", m.Partition,
			"offset", m.Offset, "attempts", attempts, "err", err)
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.Error("commit offset", "topic", m.Topic, "offset", m.Offset, "err", err)
	}
}
