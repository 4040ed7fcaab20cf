package booksync

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"apex/domain/orderbook"
)

// Async moves delivery to a wrapped syncer off the goroutine that changed
// the book. Events are queued in emission order and delivered by Run.
// Nothing is dropped: Notify waits for room when the queue is full, so a
// slow sink throttles the book instead of losing durability.
type Async struct {
	next      orderbook.Syncer
	ch        chan orderbook.Event
	log       *slog.Logger
	queued    atomic.Uint64
	delivered atomic.Uint64
	stalls    atomic.Uint64
}

func NewAsync(next orderbook.Syncer, size int, log *slog.Logger) *Async {
	if size <= 0 {
		size = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Async{
		next: next,
		ch:   make(chan orderbook.Event, size),
		log:  log.With(slog.String("component", "sync-queue")),
	}
}

func (a *Async) Notify(ev orderbook.Event) {
	a.queued.Add(1)
	select {
	case a.ch <- ev:
	default:
		a.stalls.Add(1)
		a.ch <- ev
	}
}

// Run delivers queued events until ctx is done, then delivers whatever is
// still queued and returns. Events queued after Run returns stay queued.
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-a.ch:
			a.deliver(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-a.ch:
					a.deliver(ev)
				default:
					a.log.Debug("sync queue drained", slog.Uint64("delivered", a.delivered.Load()))
					return ctx.Err()
				}
			}
		}
	}
}

func (a *Async) deliver(ev orderbook.Event) {
	a.next.Notify(ev)
	a.delivered.Add(1)
}

// Flush waits until every event queued before the call was delivered.
func (a *Async) Flush(ctx context.Context) error {
	target := a.queued.Load()
	if a.delivered.Load() >= target {
		return nil
	}
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for a.delivered.Load() < target {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

// Backlog is the number of queued events not yet delivered.
func (a *Async) Backlog() uint64 {
	return a.queued.Load() - a.delivered.Load()
}

// Stalls counts Notify calls that found the queue full and had to wait.
func (a *Async) Stalls() uint64 {
	return a.stalls.Load()
}
