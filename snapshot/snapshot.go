package snapshot

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"apex/domain/orderbook"
)

type Snapshot struct {
	// Seq is the last event sequence the snapshot is known to include.
	Seq     uint64
	Created time.Time
	Orders  []OrderEntry
}

// OrderEntry is one resting limit order.
type OrderEntry struct {
	ID        uuid.UUID
	Side      orderbook.Side
	Directive orderbook.Directive
	Price     int64
	Quantity  int64
	Remaining int64
	// Seq is the arrival sequence; it orders entries within a level.
	Seq uint64
}

// Capture walks book. Concurrent changes may make it newer than Seq but
// never older, so replaying events after Seq converges on the live state.
func Capture(book *orderbook.Book) *Snapshot {
	s := &Snapshot{
		Seq:     book.LastEventSeq(),
		Created: time.Now().UTC(),
		Orders:  make([]OrderEntry, 0, 1024),
	}
	for _, side := range []orderbook.Side{orderbook.Buy, orderbook.Sell} {
		book.Walk(side, func(o *orderbook.Order) bool {
			v := o.View()
			if v.Status.Resting() {
				s.Orders = append(s.Orders, OrderEntry{
					ID:        v.ID,
					Side:      v.Side,
					Directive: v.Directive,
					Price:     v.Price,
					Quantity:  v.Quantity,
					Remaining: v.Remaining,
					Seq:       v.Seq,
				})
			}
			return true
		})
	}
	return s
}

// Restore rests every entry in book in arrival order. The book should be
// empty and its syncer quiet: restored orders emit no events.
func (s *Snapshot) Restore(book *orderbook.Book) error {
	orders := append([]OrderEntry(nil), s.Orders...)
	sort.Slice(orders, func(i, j int) bool { return orders[i].Seq < orders[j].Seq })

	for _, e := range orders {
		o := orderbook.NewOrder(e.ID, orderbook.Terms{
			Side:        e.Side,
			Type:        orderbook.Limit,
			Price:       e.Price,
			Quantity:    e.Quantity,
			Directive:   e.Directive,
			TimeInForce: orderbook.GoodTillCancel,
		})
		if err := book.Restore(o, e.Remaining, e.Seq); err != nil {
			return err
		}
	}
	return nil
}
