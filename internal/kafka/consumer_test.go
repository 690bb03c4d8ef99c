package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
	onClose   func()
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	if f.onClose != nil {
		f.onClose()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeReader) commits() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

func testConsumer(r reader) *Consumer {
	c := newConsumer(r, 2, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.Backoff = 0
	return c
}

func run(t *testing.T, c *Consumer, h Handler) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()
	return cancel, done
}

func TestConsumerRetriesBeforeCommit(t *testing.T) {
	t.Parallel()
	r := &fakeReader{msgs: []kafka.Message{{Offset: 7}}}
	var calls atomic.Int32
	cancel, done := run(t, testConsumer(r), func(context.Context, kafka.Message) error {
		if calls.Add(1) < 3 {
			return errors.New("redis down")
		}
		return nil
	})

	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []int64{7}, r.commits())
}

func TestConsumerCommitsAfterExhaustedAttempts(t *testing.T) {
	t.Parallel()
	r := &fakeReader{msgs: []kafka.Message{{Offset: 1}}}
	c := testConsumer(r)
	c.Attempts = 2
	var calls atomic.Int32
	cancel, done := run(t, c, func(context.Context, kafka.Message) error {
		calls.Add(1)
		return errors.New("still failing")
	})

	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(2), calls.Load())
}

func TestConsumerShutdownWaitsForWorkersAndSkipsCommit(t *testing.T) {
	t.Parallel()
	var finished atomic.Bool
	var finishedBeforeClose bool
	r := &fakeReader{msgs: []kafka.Message{{Offset: 3}}}
	r.onClose = func() { finishedBeforeClose = finished.Load() }

	started := make(chan struct{})
	cancel, done := run(t, testConsumer(r), func(ctx context.Context, _ kafka.Message) error {
		close(started)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	})

	<-started
	cancel()
	require.NoError(t, <-done)
	assert.True(t, finishedBeforeClose)
	assert.Empty(t, r.commits())
}
