package service

import (
	"context"
	"log/slog"
	"time"
)

// StartSweepJob uncrosses resting orders every interval until ctx is done.
func (s *OrderService) StartSweepJob(ctx context.Context, interval time.Duration) <-chan struct{} {
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
				if trades, _ := s.MatchOrders(ctx); len(trades) > 0 {
					s.log.Debug("sweep matched", slog.Int("trades", len(trades)))
				}
			}
		}
	}()
	return done
}
