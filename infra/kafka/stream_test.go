package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apex/api/wire"
	"apex/domain/orderbook"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestStreamPublishesTrades(t *testing.T) {
	fw := &fakeWriter{}
	s := NewStream(NewProducerWith(fw), WithFilter(Trades), WithBatch(2, 5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	maker := uuid.New()
	s.Notify(orderbook.Event{Seq: 1, Kind: orderbook.EventInserted, OrderID: maker})
	s.Notify(orderbook.Event{Seq: 2, Kind: orderbook.EventFilled, OrderID: maker, Maker: true, Delta: 3})
	s.Notify(orderbook.Event{Seq: 3, Kind: orderbook.EventFilled, OrderID: uuid.New(), Delta: 3})
	s.Notify(orderbook.Event{Seq: 4, Kind: orderbook.EventFilled, OrderID: maker, Maker: true, Delta: 1})

	require.Eventually(t, func() bool { return fw.count() == 2 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	for i, want := range []uint64{2, 4} {
		ev, err := wire.UnmarshalEvent(fw.msgs[i].Value)
		require.NoError(t, err)
		assert.Equal(t, want, ev.Seq)
		assert.Equal(t, maker[:], fw.msgs[i].Key)
	}
	assert.Equal(t, uint64(2), s.Sent())
	assert.Zero(t, s.Dropped())
}

func TestStreamDropsWhenFull(t *testing.T) {
	s := NewStream(NewProducerWith(&fakeWriter{}), WithBuffer(1))
	s.Notify(orderbook.Event{Seq: 1})
	s.Notify(orderbook.Event{Seq: 2})
	assert.Equal(t, uint64(1), s.Dropped())
}

func TestStreamFlushesOnShutdown(t *testing.T) {
	fw := &fakeWriter{}
	s := NewStream(NewProducerWith(fw), WithBatch(100, time.Hour))
	for i := 1; i <= 3; i++ {
		s.Notify(orderbook.Event{Seq: uint64(i)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = s.Run(ctx)
	assert.Equal(t, 3, fw.count())
}

func TestStreamCountsFailedWrites(t *testing.T) {
	fw := &fakeWriter{err: errors.New("broker down")}
	s := NewStream(NewProducerWith(fw))
	s.Notify(orderbook.Event{Seq: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = s.Run(ctx)
	assert.Equal(t, uint64(1), s.Dropped())
	assert.Zero(t, s.Sent())
}
