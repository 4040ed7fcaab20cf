package orderbook

import (
	"time"

	"github.com/google/uuid"
)

type EventKind uint8

const (
	// EventInserted: an order started resting. Delta is its resting quantity.
	EventInserted EventKind = iota + 1
	// EventRemoved: a resting order was cancelled and unlinked.
	EventRemoved
	// EventRepriced: a resting order moved from OldPrice to Price with a new sequence.
	EventRepriced
	// EventFilled: one side of a trade. Delta is the filled quantity.
	EventFilled
	// EventRejected: an order was refused before touching the book.
	EventRejected
	// EventExpired: a taker remainder was cancelled instead of resting.
	EventExpired
)

func (k EventKind) String() string {
	switch k {
	case EventInserted:
		return "inserted"
	case EventRemoved:
		return "removed"
	case EventRepriced:
		return "repriced"
	case EventFilled:
		return "filled"
	case EventRejected:
		return "rejected"
	case EventExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Event describes one book-affecting mutation.
type Event struct {
	Seq       uint64
	Kind      EventKind
	OrderID   uuid.UUID
	Side      Side
	Price     int64
	OldPrice  int64
	Delta     int64
	Remaining int64
	// Quantity and Directive are the order's fixed terms, carried so the
	// book can be rebuilt from events alone.
	Quantity  int64
	Directive Directive
	Status    Status
	Reason    Reason
	OrderSeq  uint64
	Time      time.Time

	// set on EventFilled
	Counterparty uuid.UUID
	TradeSeq     uint64
	Maker        bool
}

// Syncer receives every book-affecting event. Notify may be called from
// many goroutines, sometimes while a price level is locked, so an
// implementation must not block for long and must not call back into the book.
type Syncer interface {
	Notify(Event)
}

// NopSyncer discards events.
type NopSyncer struct{}

func (NopSyncer) Notify(Event) {}

// SyncerFunc adapts a function to Syncer.
type SyncerFunc func(Event)

func (f SyncerFunc) Notify(ev Event) { f(ev) }

var (
	_ Syncer = NopSyncer{}
	_ Syncer = SyncerFunc(nil)
)
