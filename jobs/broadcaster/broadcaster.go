package broadcaster

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/cockroachdb/errors"

	"apex/api/wire"
	"apex/infra/wal/exit"
)

type Config struct {
	Topic      string
	Interval   time.Duration
	Batch      int
	MaxRetries uint32
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 250 * time.Millisecond
	}
	if c.Batch <= 0 {
		c.Batch = 512
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 10
	}
}

// Broadcaster drains the outbox to Kafka. A record is marked SENT before
// publishing and ACKED after the broker confirms it, so a crash in between
// re-sends rather than loses it.
type Broadcaster struct {
	outbox   *exit.Outbox
	producer sarama.SyncProducer
	cfg      Config
	log      *slog.Logger

	published atomic.Uint64
	failed    atomic.Uint64
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(
	outbox *exit.Outbox,
	brokers []string,
	cfg Config,
	log *slog.Logger,
) (*Broadcaster, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Idempotent = false

	producer, err := sarama.NewSyncProducer(brokers, sc)
	if err != nil {
		return nil, errors.Wrap(err, "broadcaster: producer")
	}
	return NewWithProducer(outbox, producer, cfg, log), nil
}

func NewWithProducer(
	outbox *exit.Outbox,
	producer sarama.SyncProducer,
	cfg Config,
	log *slog.Logger,
) *Broadcaster {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{
		outbox:   outbox,
		producer: producer,
		cfg:      cfg,
		log:      log.With(slog.String("component", "broadcaster"), slog.String("topic", cfg.Topic)),
	}
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

// Start runs the drain loop until ctx is done. The returned channel is
// closed when the loop has exited.
func (b *Broadcaster) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	b.log.Info("started", slog.Duration("interval", b.cfg.Interval))

	go func() {
		defer close(done)
		ticker := time.NewTicker(b.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				b.log.Info("stopped")
				return
			case <-ticker.C:
				if _, err := b.Flush(); err != nil {
					b.log.Warn("flush interrupted", slog.Any("err", err))
				}
			}
		}
	}()
	return done
}

// Flush publishes one batch of pending records: SENT ones left over from a
// previous attempt first, then NEW ones. It stops at the first failed send.
func (b *Broadcaster) Flush() (int, error) {
	sent := 0
	for _, state := range []exit.ExitState{exit.StateSent, exit.StateNew} {
		err := b.outbox.ScanByState(state, b.cfg.Batch-sent, func(seq uint64, rec exit.ExitRecord) error {
			if err := b.publish(seq, rec); err != nil {
				return err
			}
			sent++
			return nil
		})
		if err != nil {
			return sent, err
		}
		if sent >= b.cfg.Batch {
			break
		}
	}
	return sent, nil
}

func (b *Broadcaster) publish(seq uint64, rec exit.ExitRecord) error {
	ev, err := wire.UnmarshalEvent(rec.Payload)
	if err != nil {
		b.failed.Add(1)
		b.log.Error("undecodable outbox record", slog.Uint64("event_seq", seq), slog.Any("err", err))
		return b.outbox.UpdateState(seq, exit.StateFailed, rec.Retries)
	}

	// 1. mark SENT
	if err := b.outbox.UpdateState(seq, exit.StateSent, rec.Retries); err != nil {
		return err
	}

	// 2. publish
	msg := &sarama.ProducerMessage{
		Topic: b.cfg.Topic,
		Key:   sarama.ByteEncoder(ev.OrderID[:]),
		Value: sarama.ByteEncoder(rec.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(ev.Kind.String())},
			{Key: []byte("seq"), Value: []byte(strconv.FormatUint(seq, 10))},
		},
	}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		retries := rec.Retries + 1
		state := exit.StateSent
		if retries >= b.cfg.MaxRetries {
			state = exit.StateFailed
			b.failed.Add(1)
			b.log.Error("giving up on event", slog.Uint64("event_seq", seq), slog.Any("err", err))
		}
		if uerr := b.outbox.UpdateState(seq, state, retries); uerr != nil {
			return errors.CombineErrors(err, uerr)
		}
		return errors.Wrapf(err, "publish event %d", seq)
	}

	// 3. mark ACKED
	b.published.Add(1)
	return b.outbox.UpdateState(seq, exit.StateAcked, rec.Retries)
}

// Published counts acknowledged events.
func (b *Broadcaster) Published() uint64 { return b.published.Load() }

// Failed counts events moved to FAILED.
func (b *Broadcaster) Failed() uint64 { return b.failed.Load() }

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
