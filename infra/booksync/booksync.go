// Package booksync holds orderbook.Syncer implementations that carry book
// events out of the engine: the entry journal, the delivery outbox, a
// fan-out combining several sinks and a queue that delivers off the
// matching path.
//
// Syncers run on the goroutine that changed the book, sometimes under a
// price level lock. None of them call back into the engine. Wrap slow
// sinks in Async to keep their writes out of those critical sections.
package booksync

import (
	"log/slog"
	"sync/atomic"

	"apex/api/wire"
	"apex/domain/orderbook"
	"apex/infra/wal/entry"
	"apex/infra/wal/exit"
)

// Fanout delivers each event to every syncer in order.
type Fanout []orderbook.Syncer

func (f Fanout) Notify(ev orderbook.Event) {
	for _, s := range f {
		s.Notify(ev)
	}
}

// Journal appends every event to the entry WAL.
type Journal struct {
	w        *entry.WAL
	log      *slog.Logger
	failures atomic.Uint64
}

func NewJournal(w *entry.WAL, log *slog.Logger) *Journal {
	if log == nil {
		log = slog.Default()
	}
	return &Journal{w: w, log: log.With(slog.String("component", "journal"))}
}

func (j *Journal) Notify(ev orderbook.Event) {
	rec := entry.NewRecord(entry.RecordEvent, wire.MarshalEvent(ev))
	if !ev.Time.IsZero() {
		rec.Time = ev.Time.UnixNano()
	}
	if err := j.w.Append(rec); err != nil {
		j.failures.Add(1)
		j.log.Error("journal append failed",
			slog.Uint64("event_seq", ev.Seq),
			slog.String("kind", ev.Kind.String()),
			slog.Any("err", err),
		)
	}
}

// Failures counts events that could not be journaled.
func (j *Journal) Failures() uint64 {
	return j.failures.Load()
}

// Outbox stores every event as a NEW outbox record for the broadcaster.
type Outbox struct {
	box      *exit.Outbox
	log      *slog.Logger
	failures atomic.Uint64
}

func NewOutbox(box *exit.Outbox, log *slog.Logger) *Outbox {
	if log == nil {
		log = slog.Default()
	}
	return &Outbox{box: box, log: log.With(slog.String("component", "outbox"))}
}

func (o *Outbox) Notify(ev orderbook.Event) {
	if err := o.box.Put(ev.Seq, wire.MarshalEvent(ev)); err != nil {
		o.failures.Add(1)
		o.log.Error("outbox put failed",
			slog.Uint64("event_seq", ev.Seq),
			slog.Any("err", err),
		)
	}
}

func (o *Outbox) Failures() uint64 {
	return o.failures.Load()
}
