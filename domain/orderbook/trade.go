package orderbook

import (
	"time"

	"github.com/google/uuid"
)

// Trade is an immutable fill between a resting maker and a taker,
// always at the maker's price.
type Trade struct {
	Seq       uint64
	MakerID   uuid.UUID
	TakerID   uuid.UUID
	TakerSide Side
	Price     int64
	Quantity  int64
	Time      time.Time
}
