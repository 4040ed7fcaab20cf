package kafka

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"apex/api/wire"
	"apex/domain/orderbook"
)

// Stream is an asynchronous orderbook.Syncer that publishes events in
// batches. Notify never blocks: when the buffer is full the event is
// dropped and counted.
type Stream struct {
	p       *Producer
	ch      chan orderbook.Event
	filter  func(orderbook.Event) bool
	batch   int
	flush   time.Duration
	log     *slog.Logger
	sent    atomic.Uint64
	dropped atomic.Uint64
}

type StreamOption func(*Stream)

func WithBuffer(n int) StreamOption {
	return func(s *Stream) {
		if n > 0 {
			s.ch = make(chan orderbook.Event, n)
		}
	}
}

// WithBatch sets the largest batch and how long a partial batch may wait.
func WithBatch(size int, every time.Duration) StreamOption {
	return func(s *Stream) {
		if size > 0 {
			s.batch = size
		}
		if every > 0 {
			s.flush = every
		}
	}
}

// WithFilter publishes only the events fn accepts.
func WithFilter(fn func(orderbook.Event) bool) StreamOption {
	return func(s *Stream) { s.filter = fn }
}

func WithLogger(l *slog.Logger) StreamOption {
	return func(s *Stream) {
		if l != nil {
			s.log = l
		}
	}
}

// Trades accepts the maker side of each fill, i.e. one event per trade.
func Trades(ev orderbook.Event) bool {
	return ev.Kind == orderbook.EventFilled && ev.Maker
}

func NewStream(p *Producer, opts ...StreamOption) *Stream {
	s := &Stream{
		p:     p,
		ch:    make(chan orderbook.Event, 4096),
		batch: 256,
		flush: 50 * time.Millisecond,
		log:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With(slog.String("component", "kafka-stream"))
	return s
}

func (s *Stream) Notify(ev orderbook.Event) {
	if s.filter != nil && !s.filter(ev) {
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Run publishes buffered events until ctx is done, then flushes what is
// left with a short grace period.
func (s *Stream) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.flush)
	defer ticker.Stop()

	pending := make([]kafka.Message, 0, s.batch)
	for {
		select {
		case ev := <-s.ch:
			pending = append(pending, message(ev))
			if len(pending) >= s.batch {
				pending = s.write(ctx, pending)
			}
		case <-ticker.C:
			pending = s.write(ctx, pending)
		case <-ctx.Done():
			for drained := false; !drained; {
				select {
				case ev := <-s.ch:
					pending = append(pending, message(ev))
				default:
					drained = true
				}
			}
			grace, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.write(grace, pending)
			cancel()
			return ctx.Err()
		}
	}
}

func (s *Stream) write(ctx context.Context, pending []kafka.Message) []kafka.Message {
	if len(pending) == 0 {
		return pending
	}
	if err := s.p.SendBatch(ctx, pending); err != nil {
		s.dropped.Add(uint64(len(pending)))
		s.log.Warn("publish failed", slog.Int("messages", len(pending)), slog.Any("err", err))
	} else {
		s.sent.Add(uint64(len(pending)))
	}
	return pending[:0]
}

// Sent counts published events.
func (s *Stream) Sent() uint64 { return s.sent.Load() }

// Dropped counts events lost to a full buffer or a failed write.
func (s *Stream) Dropped() uint64 { return s.dropped.Load() }

func message(ev orderbook.Event) kafka.Message {
	return kafka.Message{
		Key:   ev.OrderID[:],
		Value: wire.MarshalEvent(ev),
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind.String())},
		},
		Time: ev.Time,
	}
}
