package orderbook

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Terms are the fixed terms an order is created with.
type Terms struct {
	Side        Side
	Type        OrderType
	Price       int64
	Quantity    int64
	Directive   Directive
	TimeInForce TimeInForce

	// Slippage is the market order tolerance in basis points, nil when unbounded.
	Slippage *uint32
}

// Order is a domain entity shared by every goroutine touching the book.
// Terms are immutable after construction; everything else changes only
// through compare-and-swap on the packed state word.
type Order struct {
	ID          uuid.UUID
	Side        Side
	Type        OrderType
	Directive   Directive
	TimeInForce TimeInForce
	Quantity    int64
	Slippage    *uint32
	Created     time.Time

	price  atomic.Int64
	state  atomic.Uint64
	reason atomic.Uint32
	seq    atomic.Uint64
	level  atomic.Pointer[PriceLevel]

	// guarded by level.mu
	next *Order
	prev *Order
}

func NewOrder(id uuid.UUID, t Terms) *Order {
	o := &Order{
		ID:          id,
		Side:        t.Side,
		Type:        t.Type,
		Directive:   t.Directive,
		TimeInForce: t.TimeInForce,
		Quantity:    t.Quantity,
		Slippage:    t.Slippage,
		Created:     time.Now(),
	}
	o.price.Store(t.Price)
	o.state.Store(pack(Created, false, clampQty(t.Quantity)))
	return o
}

// NewLimit builds a good-till-cancel limit order.
func NewLimit(id uuid.UUID, side Side, price, qty int64) *Order {
	return NewOrder(id, Terms{
		Side:        side,
		Type:        Limit,
		Price:       price,
		Quantity:    qty,
		TimeInForce: GoodTillCancel,
	})
}

// NewMarket builds a market order with the given time in force.
func NewMarket(id uuid.UUID, side Side, qty int64, tif TimeInForce) *Order {
	return NewOrder(id, Terms{
		Side:        side,
		Type:        Market,
		Quantity:    qty,
		TimeInForce: tif,
	})
}

// Bps is a helper for Terms.Slippage.
func Bps(n uint32) *uint32 {
	return &n
}

func (o *Order) Price() int64 {
	return o.price.Load()
}

func (o *Order) Status() Status {
	st, _, _ := unpack(o.state.Load())
	return st
}

func (o *Order) Remaining() int64 {
	_, _, rem := unpack(o.state.Load())
	return rem
}

func (o *Order) Filled() int64 {
	return clampQty(o.Quantity) - o.Remaining()
}

// Reason is the terminal outcome reason, ReasonNone until one is recorded.
func (o *Order) Reason() Reason {
	return Reason(o.reason.Load())
}

// Seq is the arrival sequence that orders o within its price level.
func (o *Order) Seq() uint64 {
	return o.seq.Load()
}

// View is a consistent copy of an order's mutable state.
type View struct {
	ID        uuid.UUID
	Side      Side
	Type      OrderType
	Directive Directive
	Price     int64
	Quantity  int64
	Remaining int64
	Status    Status
	Reason    Reason
	Seq       uint64
}

func (o *Order) View() View {
	st, _, rem := unpack(o.state.Load())
	return View{
		ID:        o.ID,
		Side:      o.Side,
		Type:      o.Type,
		Directive: o.Directive,
		Price:     o.Price(),
		Quantity:  o.Quantity,
		Remaining: rem,
		Status:    st,
		Reason:    o.Reason(),
		Seq:       o.Seq(),
	}
}

// Crosses reports whether a resting price on the opposite side satisfies
// the limit of a taker on side.
func Crosses(side Side, limit, resting int64) bool {
	if side == Buy {
		return resting <= limit
	}
	return resting >= limit
}

func clampQty(q int64) int64 {
	if q < 0 {
		return 0
	}
	if q > MaxQuantity {
		return MaxQuantity
	}
	return q
}
