package service

import (
	"context"
	"log/slog"
	"time"

	"apex/snapshot"
)

// Snapshot writes a snapshot of the live book, then drops the journal
// segments and acknowledged outbox records it covers, then purges
// terminal orders from the book's ID index.
func (s *OrderService) Snapshot(w *snapshot.Writer) (*snapshot.Snapshot, error) {
	// Read the journal position before capturing: every record up to it
	// belongs to an event the capture already reflects.
	var journaled uint64
	if s.journal != nil {
		journaled = s.journal.LastSeq()
	}

	snap := snapshot.Capture(s.engine.Book())
	path, err := w.Write(snap)
	if err != nil {
		return nil, err
	}

	log := s.log.With(slog.Uint64("seq", snap.Seq))
	if s.journal != nil {
		if err := s.journal.Sync(); err != nil {
			log.Warn("journal sync failed", slog.Any("err", err))
		}
		if n, err := s.journal.TruncateBefore(journaled); err != nil {
			log.Warn("journal truncate failed", slog.Any("err", err))
		} else if n > 0 {
			log.Debug("journal truncated", slog.Int("segments", n))
		}
	}
	if s.outbox != nil {
		if _, err := s.outbox.TruncateAckedUpTo(snap.Seq); err != nil {
			log.Warn("outbox gc failed", slog.Any("err", err))
		}
	}
	purged := s.engine.Book().Purge()

	log.Info("snapshot written",
		slog.String("path", path),
		slog.Int("orders", len(snap.Orders)),
		slog.Int("purged", purged),
	)
	return snap, nil
}

// StartSnapshotJob snapshots every interval until ctx is done. The returned
// channel closes when the job has stopped.
func (s *OrderService) StartSnapshotJob(
	ctx context.Context,
	w *snapshot.Writer,
	interval time.Duration,
) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := s.Snapshot(w); err != nil {
					s.log.Error("snapshot failed", slog.Any("err", err))
				}
			}
		}
	}()
	return done
}
